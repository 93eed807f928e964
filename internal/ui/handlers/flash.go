// flash.go — одноразовое сообщение о результате действия между redirect и страницей.
package handlers

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/arturkryukov/artstore/workstation/internal/ui/pages"
)

const (
	flashCookieName = "ws_flash"
	flashNotice     = "notice"
	flashError      = "error"
)

func setFlash(w http.ResponseWriter, kind, msg string) {
	http.SetCookie(w, &http.Cookie{
		Name:     flashCookieName,
		Value:    url.QueryEscape(kind + ":" + msg),
		Path:     pages.BasePath,
		MaxAge:   60,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// readFlash читает и удаляет flash-cookie.
func readFlash(w http.ResponseWriter, r *http.Request) (kind, msg string, ok bool) {
	cookie, err := r.Cookie(flashCookieName)
	if err != nil {
		return "", "", false
	}
	http.SetCookie(w, &http.Cookie{
		Name:     flashCookieName,
		Path:     pages.BasePath,
		MaxAge:   -1,
		HttpOnly: true,
	})

	raw, err := url.QueryUnescape(cookie.Value)
	if err != nil {
		return "", "", false
	}
	kind, msg, ok = strings.Cut(raw, ":")
	if !ok || (kind != flashNotice && kind != flashError) {
		return "", "", false
	}
	return kind, msg, true
}

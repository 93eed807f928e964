// language.go — переключение языка страниц.
package handlers

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/arturkryukov/artstore/workstation/internal/ui/i18n"
	"github.com/arturkryukov/artstore/workstation/internal/ui/pages"
)

// HandleSetLanguage обрабатывает POST /admin/set-language.
// Устанавливает cookie "lang" на год и возвращает на страницу из Referer (только /admin/...).
func HandleSetLanguage(w http.ResponseWriter, r *http.Request) {
	lang := r.FormValue("lang")
	if !i18n.IsSupported(lang) {
		lang = i18n.DefaultLang
	}

	http.SetCookie(w, &http.Cookie{
		Name:     i18n.LangCookieName,
		Value:    lang,
		Path:     "/",
		MaxAge:   365 * 24 * 60 * 60,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, backTarget(r.Header.Get("Referer")), http.StatusSeeOther)
}

// backTarget — путь из Referer, если он внутри /admin/, иначе страница рабочего места.
func backTarget(referer string) string {
	u, err := url.Parse(referer)
	if err != nil || !strings.HasPrefix(u.Path, "/admin/") {
		return pages.BasePath
	}
	if u.RawQuery != "" {
		return u.Path + "?" + u.RawQuery
	}
	return u.Path
}

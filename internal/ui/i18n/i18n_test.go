package i18n

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sort"
	"testing"
)

func loadBundle(t *testing.T) *Bundle {
	t.Helper()
	b, err := Load(slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return b
}

func TestCatalogsHaveSameKeys(t *testing.T) {
	b := loadBundle(t)
	en, ru := b.Keys("en"), b.Keys("ru")
	sort.Strings(en)
	sort.Strings(ru)

	ruSet := make(map[string]bool, len(ru))
	for _, k := range ru {
		ruSet[k] = true
	}
	for _, k := range en {
		if !ruSet[k] {
			t.Errorf("ключ %q отсутствует в ru", k)
		}
	}
	if len(en) != len(ru) {
		t.Errorf("en: %d ключей, ru: %d", len(en), len(ru))
	}
}

func TestTranslate(t *testing.T) {
	b := NewBundle()
	if err := b.LoadMessages("en", []byte(`{"hello":"Hello","only.en":"English"}`)); err != nil {
		t.Fatal(err)
	}
	if err := b.LoadMessages("ru", []byte(`{"hello":"Привет"}`)); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		lang, key, want string
	}{
		{"ru", "hello", "Привет"},
		{"en", "hello", "Hello"},
		{"ru", "only.en", "English"},
		{"ru", "missing", "missing"},
		{"de", "hello", "Hello"},
	}
	for _, tt := range tests {
		if got := b.Translate(tt.lang, tt.key); got != tt.want {
			t.Errorf("Translate(%q, %q) = %q, ожидалось %q", tt.lang, tt.key, got, tt.want)
		}
	}

	if err := b.LoadMessages("en", []byte(`{`)); err == nil {
		t.Error("ожидалась ошибка для некорректного JSON")
	}
}

func TestMatchLanguage(t *testing.T) {
	tests := []struct {
		accept string
		want   string
	}{
		{"ru-RU,ru;q=0.9,en;q=0.8", "ru"},
		{"en-US,en;q=0.9", "en"},
		{"de-DE,de;q=0.9", "en"},
		{"de;q=0.9,ru;q=0.5", "ru"},
		{"", "en"},
	}
	for _, tt := range tests {
		if got := MatchLanguage(tt.accept); got != tt.want {
			t.Errorf("MatchLanguage(%q) = %q, ожидался %q", tt.accept, got, tt.want)
		}
	}
}

func TestDetectLanguage(t *testing.T) {
	tests := []struct {
		name   string
		cookie string
		accept string
		want   string
	}{
		{"cookie важнее заголовка", "ru", "en-US", "ru"},
		{"неизвестная cookie", "fr", "ru-RU", "ru"},
		{"только заголовок", "", "ru", "ru"},
		{"ничего", "", "", "en"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.cookie != "" {
				r.AddCookie(&http.Cookie{Name: LangCookieName, Value: tt.cookie})
			}
			if tt.accept != "" {
				r.Header.Set("Accept-Language", tt.accept)
			}
			if got := DetectLanguage(r); got != tt.want {
				t.Errorf("DetectLanguage = %q, ожидался %q", got, tt.want)
			}
		})
	}
}

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	if got := T(ctx, "stats.total"); got != "stats.total" {
		t.Errorf("без каталогов T должен вернуть ключ, получено %q", got)
	}
	if LangFromContext(ctx) != DefaultLang {
		t.Error("язык по умолчанию должен быть en")
	}

	b := loadBundle(t)
	ctx = WithLang(ctx, b, "ru")
	if got := Tf(ctx, "directory.count", 3); got != "Пользователей: 3" {
		t.Errorf("Tf = %q", got)
	}
	if got := Tf(WithLang(context.Background(), b, "en"), "directory.count", 3); got != "3 users" {
		t.Errorf("Tf en = %q", got)
	}
}

// Пакет i18n — переводы страниц рабочего места (en, ru).
// Язык определяется middleware: cookie "lang" → Accept-Language → "en".
// Каталоги — плоские JSON {"key": "перевод"}, встроены в бинарник.
package i18n

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"log/slog"

	"golang.org/x/text/language"
)

// DefaultLang — язык по умолчанию и fallback для отсутствующих ключей.
const DefaultLang = "en"

//go:embed locales/*.json
var localeFS embed.FS

var (
	// SupportedLanguages — теги в порядке предпочтения matcher'а.
	SupportedLanguages = []language.Tag{
		language.English,
		language.Russian,
	}

	matcher = language.NewMatcher(SupportedLanguages)
)

// Bundle — каталоги переводов всех языков. После загрузки только читается.
type Bundle struct {
	catalogs map[string]map[string]string
}

// NewBundle создаёт пустой Bundle.
func NewBundle() *Bundle {
	return &Bundle{catalogs: make(map[string]map[string]string)}
}

// Load загружает встроенные каталоги en и ru.
func Load(logger *slog.Logger) (*Bundle, error) {
	b := NewBundle()
	for _, tag := range SupportedLanguages {
		lang := tag.String()
		path := fmt.Sprintf("locales/%s.json", lang)
		data, err := localeFS.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("i18n: не удалось прочитать %s: %w", path, err)
		}
		if err := b.LoadMessages(lang, data); err != nil {
			return nil, err
		}
		logger.Debug("i18n каталог загружен",
			slog.String("lang", lang),
			slog.Int("keys", len(b.catalogs[lang])),
		)
	}
	return b, nil
}

// LoadMessages загружает JSON-каталог для языка.
func (b *Bundle) LoadMessages(lang string, data []byte) error {
	var messages map[string]string
	if err := json.Unmarshal(data, &messages); err != nil {
		return fmt.Errorf("i18n: ошибка парсинга каталога %s: %w", lang, err)
	}
	b.catalogs[lang] = messages
	return nil
}

// Translate возвращает перевод ключа. Нет в языке — английский, нет и там — сам ключ.
func (b *Bundle) Translate(lang, key string) string {
	if msg, ok := b.catalogs[lang][key]; ok {
		return msg
	}
	if msg, ok := b.catalogs[DefaultLang][key]; ok {
		return msg
	}
	return key
}

// Keys возвращает ключи каталога языка.
func (b *Bundle) Keys(lang string) []string {
	keys := make([]string, 0, len(b.catalogs[lang]))
	for k := range b.catalogs[lang] {
		keys = append(keys, k)
	}
	return keys
}

// MatchLanguage выбирает поддерживаемый язык по Accept-Language.
func MatchLanguage(acceptLanguage string) string {
	_, idx := language.MatchStrings(matcher, acceptLanguage)
	return SupportedLanguages[idx].String()
}

// IsSupported — язык есть среди поддерживаемых.
func IsSupported(lang string) bool {
	for _, tag := range SupportedLanguages {
		if tag.String() == lang {
			return true
		}
	}
	return false
}

// --- Контекст запроса ---

type contextKey struct{}

type localizer struct {
	bundle *Bundle
	lang   string
}

// WithLang помещает язык и каталоги в контекст.
func WithLang(ctx context.Context, b *Bundle, lang string) context.Context {
	return context.WithValue(ctx, contextKey{}, localizer{bundle: b, lang: lang})
}

// LangFromContext возвращает язык запроса (по умолчанию "en").
func LangFromContext(ctx context.Context) string {
	if l, ok := ctx.Value(contextKey{}).(localizer); ok && l.lang != "" {
		return l.lang
	}
	return DefaultLang
}

// T возвращает перевод ключа для языка запроса.
func T(ctx context.Context, key string) string {
	l, ok := ctx.Value(contextKey{}).(localizer)
	if !ok || l.bundle == nil {
		return key
	}
	return l.bundle.Translate(l.lang, key)
}

// Tf — T с подстановкой аргументов.
func Tf(ctx context.Context, key string, args ...any) string {
	return formatFunc(T(ctx, key), args...)
}

// formatFunc — fmt.Sprintf через переменную: формат-строки приходят из каталогов,
// go vet их проверить не может.
//
//nolint:govet // обход go vet printf-анализатора
var formatFunc = fmt.Sprintf

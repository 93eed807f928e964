// Пакет static — встроенные CSS и JS страниц рабочего места.
package static

import (
	"embed"
	"net/http"
)

//go:embed css/*.css js/*.js
var content embed.FS

// Handler раздаёт файлы по путям /static/css/..., /static/js/...
func Handler() http.Handler {
	return http.StripPrefix("/static/", http.FileServerFS(content))
}

// metrics.go — Prometheus HTTP метрики рабочего места.
// Регистрирует метрики: ws_http_requests_total, ws_http_request_duration_seconds.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP метрики
var (
	// httpRequestsTotal — общее количество HTTP-запросов.
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ws_http_requests_total",
			Help: "Общее количество HTTP-запросов к рабочему месту",
		},
		[]string{"method", "path", "status"},
	)

	// httpRequestDuration — гистограмма длительности HTTP-запросов.
	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ws_http_request_duration_seconds",
			Help:    "Длительность HTTP-запросов к рабочему месту в секундах",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// MetricsMiddleware возвращает HTTP middleware для сбора Prometheus метрик.
// SSE-поток учитывается одним запросом по завершении.
func MetricsMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			normalizedPath := normalizePath(r.URL.Path)

			wrapped := newMetricsResponseWriter(w)
			next.ServeHTTP(wrapped, r)

			status := strconv.Itoa(wrapped.statusCode)
			httpRequestsTotal.WithLabelValues(r.Method, normalizedPath, status).Inc()
			httpRequestDuration.WithLabelValues(r.Method, normalizedPath).Observe(time.Since(start).Seconds())
		})
	}
}

// metricsResponseWriter — обёртка для перехвата статус-кода.
type metricsResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func newMetricsResponseWriter(w http.ResponseWriter) *metricsResponseWriter {
	return &metricsResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
}

func (rw *metricsResponseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Unwrap позволяет http.ResponseController получить доступ к оригинальному ResponseWriter.
func (rw *metricsResponseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// viewApplyPrefix — единственный путь с параметром.
const viewApplyPrefix = "/api/v1/workstation/views/"

// normalizePath ограничивает кардинальность лейбла path.
// /api/v1/workstation/views/clients/apply → /api/v1/workstation/views/{view}/apply
func normalizePath(path string) string {
	switch path {
	case "/health/live", "/health/ready", "/metrics",
		"/api/v1/openapi.yaml",
		"/api/v1/workstation",
		"/api/v1/workstation/users",
		"/api/v1/workstation/filters",
		"/api/v1/workstation/filters/reset",
		"/api/v1/workstation/views",
		"/api/v1/workstation/refresh",
		"/api/v1/workstation/stats",
		"/api/v1/workstation/export",
		"/api/v1/workstation/import",
		"/api/v1/directory/sync",
		"/admin/workstation",
		"/admin/workstation/events",
		"/admin/workstation/reset",
		"/admin/workstation/refresh",
		"/admin/workstation/filters",
		"/admin/workstation/import",
		"/admin/workstation/export",
		"/admin/workstation/sync",
		"/admin/set-language":
		return path
	}

	if strings.HasPrefix(path, viewApplyPrefix) && strings.HasSuffix(path, "/apply") {
		return viewApplyPrefix + "{view}/apply"
	}
	if strings.HasPrefix(path, "/admin/workstation/views/") {
		return "/admin/workstation/views/{view}"
	}
	if strings.HasPrefix(path, "/static/") {
		return "/static/*"
	}

	return "other"
}

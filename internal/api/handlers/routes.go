// routes.go — регистрация маршрутов API на chi-роутере.
package handlers

import (
	"github.com/go-chi/chi/v5"

	"github.com/arturkryukov/artstore/workstation/internal/api/middleware"
)

// HandlerFromMux регистрирует маршруты API на роутере.
// Аутентификация подключается снаружи; здесь — только проверка ролей.
func HandlerFromMux(h *APIHandler, r chi.Router) {
	r.Get("/health/live", h.HealthLive)
	r.Get("/health/ready", h.HealthReady)
	r.Get("/metrics", h.GetMetrics)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/openapi.yaml", h.GetOpenAPISpec)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireViewer())

			r.Get("/workstation", h.GetWorkstation)
			r.Get("/workstation/users", h.QueryUsers)
			r.Get("/workstation/filters", h.GetFilters)
			r.Put("/workstation/filters", h.UpdateFilters)
			r.Post("/workstation/filters/reset", h.ResetFilters)
			r.Get("/workstation/views", h.ListViews)
			r.Post("/workstation/views/{view}/apply", h.ApplyView)
			r.Post("/workstation/refresh", h.Refresh)
			r.Get("/workstation/stats", h.GetStats)
			r.Get("/workstation/export", h.ExportUsers)
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireManager())

			r.Post("/workstation/import", h.ImportUsers)
			r.Post("/directory/sync", h.SyncDirectory)
		})
	})
}

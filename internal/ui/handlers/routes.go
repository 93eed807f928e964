// routes.go — маршруты страниц рабочего места.
package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/arturkryukov/artstore/workstation/internal/ui/i18n"
	"github.com/arturkryukov/artstore/workstation/internal/ui/pages"
	"github.com/arturkryukov/artstore/workstation/internal/ui/static"
)

// UI — набор обработчиков страниц.
type UI struct {
	workstation *WorkstationHandler
	events      *EventsHandler
	bundle      *i18n.Bundle
}

// NewUI собирает обработчики страниц.
func NewUI(workstation *WorkstationHandler, events *EventsHandler, bundle *i18n.Bundle) *UI {
	return &UI{workstation: workstation, events: events, bundle: bundle}
}

// Mount регистрирует маршруты страниц и статики.
func (u *UI) Mount(r chi.Router) {
	r.Handle("/static/*", static.Handler())

	r.Group(func(r chi.Router) {
		r.Use(i18n.Middleware(u.bundle))

		r.Get("/admin", redirectToWorkstation)
		r.Get("/admin/", redirectToWorkstation)
		r.Post("/admin/set-language", HandleSetLanguage)

		r.Route(pages.BasePath, func(r chi.Router) {
			r.Get("/", u.workstation.HandlePage)
			r.Get("/events", u.events.HandleQuickStats)
			r.Get("/export", u.workstation.HandleExport)
			r.Post("/views/{view}", u.workstation.HandleApplyView)
			r.Post("/reset", u.workstation.HandleReset)
			r.Post("/refresh", u.workstation.HandleRefresh)
			r.Post("/filters", u.workstation.HandleFilters)
			r.Post("/import", u.workstation.HandleImport)
			r.Post("/sync", u.workstation.HandleSync)
		})
	})
}

func redirectToWorkstation(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, pages.BasePath, http.StatusFound)
}

// workstation.go — обработчики /api/v1/workstation endpoints.
// Снимок рабочего места, фильтры, сохранённые виды, обновление и метрики.
// Доступ: TEAM и выше (RequireViewer на уровне роутера).
package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"

	apierrors "github.com/arturkryukov/artstore/workstation/internal/api/errors"
	"github.com/arturkryukov/artstore/workstation/internal/domain/filters"
	"github.com/arturkryukov/artstore/workstation/internal/service"
)

// GetWorkstation — GET /api/v1/workstation.
// Возвращает текущий снимок владельца (при необходимости обновляет).
func (h *APIHandler) GetWorkstation(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := bindPagination(r)
	if err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}

	snap, err := h.workstation.Current(r.Context(), owner(r))
	h.writeSnapshot(w, snap, err, limit, offset)
}

// QueryUsers — GET /api/v1/workstation/users.
// Разовый запрос без изменения сохранённых фильтров.
func (h *APIHandler) QueryUsers(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := bindPagination(r)
	if err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}
	f, err := bindFilters(r)
	if err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}

	res, err := h.workstation.Query(r.Context(), f, limit, offset)
	if err != nil {
		h.writeServiceError(w, err, "Ошибка запроса к каталогу")
		return
	}

	writeJSON(w, http.StatusOK, QueryResponse{
		Filters: res.Filters,
		Users:   mapUsers(res.Users),
		Total:   res.Total,
		Limit:   limit,
		Offset:  offset,
		Stats:   res.Stats,
	})
}

// GetFilters — GET /api/v1/workstation/filters.
func (h *APIHandler) GetFilters(w http.ResponseWriter, r *http.Request) {
	f, err := h.workstation.Filters(r.Context(), owner(r))
	if err != nil {
		h.writeServiceError(w, err, "Ошибка загрузки фильтров")
		return
	}
	writeJSON(w, http.StatusOK, f)
}

// UpdateFilters — PUT /api/v1/workstation/filters.
func (h *APIHandler) UpdateFilters(w http.ResponseWriter, r *http.Request) {
	var f filters.UserFilters
	if err := json.NewDecoder(r.Body).Decode(&f); err != nil {
		apierrors.ValidationError(w, "Некорректный JSON: "+err.Error())
		return
	}

	snap, err := h.workstation.UpdateFilters(r.Context(), owner(r), f)
	h.writeSnapshot(w, snap, err, defaultLimit, 0)
}

// ResetFilters — POST /api/v1/workstation/filters/reset.
func (h *APIHandler) ResetFilters(w http.ResponseWriter, r *http.Request) {
	snap, err := h.workstation.ResetFilters(r.Context(), owner(r))
	h.writeSnapshot(w, snap, err, defaultLimit, 0)
}

// ListViews — GET /api/v1/workstation/views.
func (h *APIHandler) ListViews(w http.ResponseWriter, r *http.Request) {
	snap, err := h.workstation.Current(r.Context(), owner(r))
	if snap == nil {
		h.writeServiceError(w, err, "Ошибка получения видов")
		return
	}
	writeJSON(w, http.StatusOK, ViewListResponse{Items: mapViews(snap.Views)})
}

// ApplyView — POST /api/v1/workstation/views/{view}/apply.
func (h *APIHandler) ApplyView(w http.ResponseWriter, r *http.Request) {
	snap, err := h.workstation.ApplyView(r.Context(), owner(r), chi.URLParam(r, "view"))
	h.writeSnapshot(w, snap, err, defaultLimit, 0)
}

// Refresh — POST /api/v1/workstation/refresh.
func (h *APIHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	snap, err := h.workstation.Refresh(r.Context(), owner(r))
	h.writeSnapshot(w, snap, err, defaultLimit, 0)
}

// GetStats — GET /api/v1/workstation/stats.
func (h *APIHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	snap, err := h.workstation.Current(r.Context(), owner(r))
	if snap == nil {
		h.writeServiceError(w, err, "Ошибка получения метрик")
		return
	}
	if snap.Stale {
		w.Header().Set("X-Workstation-Stale", "true")
	}
	writeJSON(w, http.StatusOK, snap.Stats)
}

// writeSnapshot отвечает снимком. Устаревший снимок (обновление не удалось)
// возвращается со stale=true и статусом 200.
func (h *APIHandler) writeSnapshot(w http.ResponseWriter, snap *service.Snapshot, err error, limit, offset int) {
	if snap == nil {
		h.writeServiceError(w, err, "Ошибка обновления рабочего места")
		return
	}
	if err != nil {
		h.logger.Warn("Возвращён последний успешный снимок",
			slog.String("owner", snap.Owner),
			slog.String("error", err.Error()),
		)
		w.Header().Set("X-Workstation-Stale", "true")
	}
	writeJSON(w, http.StatusOK, mapSnapshot(snap, limit, offset))
}

// bindFilters читает фильтры из query-параметров.
func bindFilters(r *http.Request) (filters.UserFilters, error) {
	query := r.URL.Query()
	var f filters.UserFilters
	var dateRange string
	params := []struct {
		name string
		dest *string
	}{
		{"search", &f.Search},
		{"role", &f.Role},
		{"status", &f.Status},
		{"department", &f.Department},
		{"dateRange", &dateRange},
	}
	for _, p := range params {
		if err := runtime.BindQueryParameter("form", true, false, p.name, query, p.dest); err != nil {
			return filters.UserFilters{}, err
		}
	}
	f.DateRange = filters.DateRange(dateRange)
	return f, nil
}

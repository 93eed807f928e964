// Пакет handlers — HTTP-обработчики API рабочего места.
// handler.go — основной обработчик API: делегирует запросы в сервисный слой.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/oapi-codegen/runtime"

	apierrors "github.com/arturkryukov/artstore/workstation/internal/api/errors"
	"github.com/arturkryukov/artstore/workstation/internal/api/middleware"
	"github.com/arturkryukov/artstore/workstation/internal/domain/model"
	"github.com/arturkryukov/artstore/workstation/internal/service"
)

// DirectorySyncer — немедленная синхронизация каталога.
// Реализуется *service.DirectorySyncService.
type DirectorySyncer interface {
	SyncNow(ctx context.Context) (*model.DirectorySyncResult, error)
}

// APIHandler — основной обработчик API рабочего места.
type APIHandler struct {
	health      *HealthHandler
	workstation *service.WorkstationService
	transfer    *service.TransferService
	syncer      DirectorySyncer
	logger      *slog.Logger
}

// NewAPIHandler создаёт основной обработчик API.
func NewAPIHandler(
	health *HealthHandler,
	workstation *service.WorkstationService,
	transfer *service.TransferService,
	syncer DirectorySyncer,
	logger *slog.Logger,
) *APIHandler {
	return &APIHandler{
		health:      health,
		workstation: workstation,
		transfer:    transfer,
		syncer:      syncer,
		logger:      logger.With(slog.String("component", "api_handler")),
	}
}

// HealthLive — проверка liveness (делегируется в HealthHandler).
func (h *APIHandler) HealthLive(w http.ResponseWriter, r *http.Request) {
	h.health.HealthLive(w, r)
}

// HealthReady — проверка readiness (делегируется в HealthHandler).
func (h *APIHandler) HealthReady(w http.ResponseWriter, r *http.Request) {
	h.health.HealthReady(w, r)
}

// GetMetrics — Prometheus метрики (делегируется в HealthHandler).
func (h *APIHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	h.health.GetMetrics(w, r)
}

// --- Вспомогательные функции ---

// owner возвращает владельца состояния рабочего места для запроса.
func owner(r *http.Request) string {
	return middleware.OwnerFromContext(r.Context(), service.DefaultOwner)
}

// writeJSON записывает JSON-ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// bindPagination читает limit/offset из query (style=form, explode=true).
func bindPagination(r *http.Request) (limit, offset int, err error) {
	var l, o *int
	query := r.URL.Query()
	if err := runtime.BindQueryParameter("form", true, false, "limit", query, &l); err != nil {
		return 0, 0, err
	}
	if err := runtime.BindQueryParameter("form", true, false, "offset", query, &o); err != nil {
		return 0, 0, err
	}
	limit, offset = paginationDefaults(l, o)
	return limit, offset, nil
}

// defaultLimit — размер страницы по умолчанию.
const defaultLimit = 100

// paginationDefaults нормализует параметры пагинации.
// Возвращает корректные limit и offset.
func paginationDefaults(limit *int, offset *int) (int, int) {
	l := defaultLimit
	o := 0

	if limit != nil {
		l = *limit
		if l < 1 {
			l = 1
		}
		if l > 1000 {
			l = 1000
		}
	}

	if offset != nil {
		o = *offset
		if o < 0 {
			o = 0
		}
	}

	return l, o
}

// writeServiceError отображает ошибки сервисного слоя в ответы API.
func (h *APIHandler) writeServiceError(w http.ResponseWriter, err error, msg string) {
	switch {
	case errors.Is(err, service.ErrUnknownView):
		apierrors.UnknownView(w, err.Error())
	case errors.Is(err, service.ErrValidation):
		apierrors.ValidationError(w, err.Error())
	case errors.Is(err, service.ErrNotFound):
		apierrors.NotFound(w, err.Error())
	case errors.Is(err, service.ErrIDPUnavailable):
		h.logger.Error(msg, slog.String("error", err.Error()))
		apierrors.IDPUnavailable(w, "Keycloak недоступен")
	case errors.Is(err, service.ErrDirectoryUnavailable):
		h.logger.Error(msg, slog.String("error", err.Error()))
		apierrors.DirectoryUnavailable(w, "Каталог пользователей недоступен")
	default:
		h.logger.Error(msg, slog.String("error", err.Error()))
		apierrors.InternalError(w, "Внутренняя ошибка сервера")
	}
}

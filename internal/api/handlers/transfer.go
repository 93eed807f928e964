// transfer.go — экспорт и импорт каталога в XLSX.
package handlers

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	apierrors "github.com/arturkryukov/artstore/workstation/internal/api/errors"
	"github.com/arturkryukov/artstore/workstation/internal/api/openapi"
)

// maxImportSize — предел размера загружаемой книги.
const maxImportSize = 32 << 20

// ExportUsers — GET /api/v1/workstation/export.
// Выгружает пользователей по текущим фильтрам владельца.
func (h *APIHandler) ExportUsers(w http.ResponseWriter, r *http.Request) {
	f, err := h.workstation.Filters(r.Context(), owner(r))
	if err != nil {
		h.writeServiceError(w, err, "Ошибка загрузки фильтров")
		return
	}

	// Книга собирается в буфер, чтобы ошибка не оборвала ответ на середине.
	var buf bytes.Buffer
	if _, err := h.transfer.Export(r.Context(), f, &buf); err != nil {
		h.writeServiceError(w, err, "Ошибка экспорта каталога")
		return
	}

	filename := fmt.Sprintf("users-%s.xlsx", time.Now().UTC().Format("20060102-150405"))
	w.Header().Set("Content-Type", openapi.XLSXContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

// ImportUsers — POST /api/v1/workstation/import.
// Тело запроса — книга XLSX. Доступ: ADMIN.
func (h *APIHandler) ImportUsers(w http.ResponseWriter, r *http.Request) {
	body := http.MaxBytesReader(w, r.Body, maxImportSize)
	res, err := h.transfer.Import(r.Context(), body, owner(r))
	if err != nil {
		h.writeServiceError(w, err, "Ошибка импорта каталога")
		return
	}

	writeJSON(w, http.StatusOK, ImportResponse{
		Rows:     res.Rows,
		Imported: res.Imported,
		Errors:   res.Errors,
	})
}

// SyncDirectory — POST /api/v1/directory/sync.
// Немедленная синхронизация каталога с Keycloak. Доступ: ADMIN.
func (h *APIHandler) SyncDirectory(w http.ResponseWriter, r *http.Request) {
	if h.syncer == nil {
		apierrors.IDPUnavailable(w, "Синхронизация каталога не настроена")
		return
	}

	res, err := h.syncer.SyncNow(r.Context())
	if err != nil {
		h.writeServiceError(w, err, "Ошибка синхронизации каталога")
		return
	}

	writeJSON(w, http.StatusOK, SyncResponse{
		TotalKeycloak: res.TotalKeycloak,
		Upserted:      res.Upserted,
		Removed:       res.Removed,
		Failed:        res.Failed,
		StartedAt:     res.StartedAt,
		CompletedAt:   res.CompletedAt,
	})
}

// GetOpenAPISpec — GET /api/v1/openapi.yaml.
func (h *APIHandler) GetOpenAPISpec(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/yaml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(openapi.Spec())
}

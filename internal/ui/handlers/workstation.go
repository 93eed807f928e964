// Пакет handlers — HTTP-обработчики страниц рабочего места.
// Действия отправляются формами (POST) и завершаются redirect на страницу;
// результат действия передаётся через flash-cookie.
package handlers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/arturkryukov/artstore/workstation/internal/api/middleware"
	"github.com/arturkryukov/artstore/workstation/internal/domain/filters"
	"github.com/arturkryukov/artstore/workstation/internal/domain/model"
	"github.com/arturkryukov/artstore/workstation/internal/domain/rbac"
	"github.com/arturkryukov/artstore/workstation/internal/service"
	"github.com/arturkryukov/artstore/workstation/internal/ui/i18n"
	"github.com/arturkryukov/artstore/workstation/internal/ui/pages"
)

const (
	// DefaultPageSize — строк каталога на странице.
	DefaultPageSize = 25

	xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	maxImportSize   = 32 << 20
)

// DirectorySyncer — немедленная синхронизация каталога.
type DirectorySyncer interface {
	SyncNow(ctx context.Context) (*model.DirectorySyncResult, error)
}

// WorkstationHandler — страница рабочего места и её действия.
type WorkstationHandler struct {
	workstation *service.WorkstationService
	transfer    *service.TransferService
	syncer      DirectorySyncer
	pageSize    int
	logger      *slog.Logger
}

// NewWorkstationHandler создаёт обработчик страницы.
// syncer может быть nil (синхронизация отключена).
func NewWorkstationHandler(
	workstation *service.WorkstationService,
	transfer *service.TransferService,
	syncer DirectorySyncer,
	pageSize int,
	logger *slog.Logger,
) *WorkstationHandler {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &WorkstationHandler{
		workstation: workstation,
		transfer:    transfer,
		syncer:      syncer,
		pageSize:    pageSize,
		logger:      logger.With(slog.String("component", "ui.workstation")),
	}
}

func owner(r *http.Request) string {
	return middleware.OwnerFromContext(r.Context(), service.DefaultOwner)
}

// HandlePage обрабатывает GET /admin/workstation.
// Каталог недоступен и снимка нет — страница отдаётся с 502 и пустыми показателями.
func (h *WorkstationHandler) HandlePage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	who := owner(r)

	snap, err := h.workstation.Current(ctx, who)
	data := pages.WorkstationData{Owner: who, Page: 1, Pages: 1}
	status := http.StatusOK

	switch {
	case snap != nil:
		h.fillSnapshot(&data, snap, pageParam(r))
		data.Stale = snap.Stale
	case err != nil:
		h.logger.Warn("Рабочее место без данных",
			slog.String("owner", who),
			slog.String("error", err.Error()),
		)
		data.Unavailable = true
		data.Views = emptyViews()
		if f, ferr := h.workstation.Filters(ctx, who); ferr == nil {
			data.Filters = f
		}
		status = http.StatusBadGateway
	}

	if kind, msg, ok := readFlash(w, r); ok {
		if kind == flashError {
			data.Error = msg
		} else {
			data.Notice = msg
		}
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)

	if err := pages.Workstation(data).Render(ctx, w); err != nil {
		h.logger.Error("Ошибка рендеринга рабочего места",
			slog.String("error", err.Error()),
			slog.String("owner", who),
		)
	}
}

// fillSnapshot переносит снимок в данные страницы.
func (h *WorkstationHandler) fillSnapshot(data *pages.WorkstationData, snap *service.Snapshot, page int) {
	data.Filters = snap.Filters
	data.Stats = snap.Stats
	data.Directory = snap.Directory
	data.Total = len(snap.Users)

	data.Views = make([]pages.ViewButton, 0, len(snap.Views))
	for _, v := range snap.Views {
		data.Views = append(data.Views, pages.ViewButton{Name: v.Name, Count: v.Count, Active: v.Active})
	}

	data.Pages = (data.Total + h.pageSize - 1) / h.pageSize
	if data.Pages < 1 {
		data.Pages = 1
	}
	data.Page = min(max(page, 1), data.Pages)
	data.Users = service.Page(snap.Users, h.pageSize, (data.Page-1)*h.pageSize)
}

// emptyViews — кнопки видов без счётчиков, когда снимка нет.
func emptyViews() []pages.ViewButton {
	views := filters.Views()
	out := make([]pages.ViewButton, 0, len(views))
	for _, v := range views {
		out = append(out, pages.ViewButton{Name: v.Name})
	}
	return out
}

func pageParam(r *http.Request) int {
	page, err := strconv.Atoi(r.URL.Query().Get("page"))
	if err != nil {
		return 1
	}
	return page
}

// backToPage завершает действие redirect на страницу рабочего места.
func backToPage(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, pages.BasePath, http.StatusSeeOther)
}

// HandleApplyView обрабатывает POST /admin/workstation/views/{view}.
func (h *WorkstationHandler) HandleApplyView(w http.ResponseWriter, r *http.Request) {
	_, err := h.workstation.ApplyView(r.Context(), owner(r), chi.URLParam(r, "view"))
	h.afterAction(w, r, err, "Ошибка применения вида")
	backToPage(w, r)
}

// HandleReset обрабатывает POST /admin/workstation/reset.
func (h *WorkstationHandler) HandleReset(w http.ResponseWriter, r *http.Request) {
	_, err := h.workstation.ResetFilters(r.Context(), owner(r))
	h.afterAction(w, r, err, "Ошибка сброса фильтров")
	backToPage(w, r)
}

// HandleRefresh обрабатывает POST /admin/workstation/refresh.
func (h *WorkstationHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	_, err := h.workstation.Refresh(r.Context(), owner(r))
	h.afterAction(w, r, err, "Ошибка обновления")
	backToPage(w, r)
}

// HandleFilters обрабатывает POST /admin/workstation/filters.
func (h *WorkstationHandler) HandleFilters(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		setFlash(w, flashError, i18n.T(r.Context(), "error.filters"))
		backToPage(w, r)
		return
	}

	f := filters.UserFilters{
		Search:     r.PostFormValue("search"),
		Role:       r.PostFormValue("role"),
		Status:     r.PostFormValue("status"),
		Department: r.PostFormValue("department"),
		DateRange:  filters.DateRange(r.PostFormValue("dateRange")),
	}
	_, err := h.workstation.UpdateFilters(r.Context(), owner(r), f)
	h.afterAction(w, r, err, "Ошибка изменения фильтров")
	backToPage(w, r)
}

// afterAction переводит ошибку действия во flash-сообщение.
// Недоступность каталога не сообщается отдельно: страница покажет баннер сама.
func (h *WorkstationHandler) afterAction(w http.ResponseWriter, r *http.Request, err error, logMsg string) {
	if err == nil {
		return
	}
	ctx := r.Context()
	switch {
	case errors.Is(err, service.ErrUnknownView):
		setFlash(w, flashError, i18n.T(ctx, "error.unknownView"))
	case errors.Is(err, service.ErrValidation):
		setFlash(w, flashError, i18n.T(ctx, "error.filters"))
	default:
		h.logger.Warn(logMsg,
			slog.String("owner", owner(r)),
			slog.String("error", err.Error()),
		)
	}
}

// HandleExport обрабатывает GET /admin/workstation/export.
func (h *WorkstationHandler) HandleExport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	f, err := h.workstation.Filters(ctx, owner(r))
	if err == nil {
		var buf bytes.Buffer
		if _, err = h.transfer.Export(ctx, f, &buf); err == nil {
			filename := fmt.Sprintf("users-%s.xlsx", time.Now().UTC().Format("20060102-150405"))
			w.Header().Set("Content-Type", xlsxContentType)
			w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
			_, _ = buf.WriteTo(w)
			return
		}
	}

	h.logger.Error("Ошибка экспорта", slog.String("error", err.Error()))
	setFlash(w, flashError, i18n.T(ctx, "error.export"))
	backToPage(w, r)
}

// HandleImport обрабатывает POST /admin/workstation/import (multipart, поле file).
func (h *WorkstationHandler) HandleImport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !canManage(r) {
		setFlash(w, flashError, i18n.T(ctx, "error.forbidden"))
		backToPage(w, r)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxImportSize)
	file, _, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			setFlash(w, flashError, i18n.T(ctx, "error.importSize"))
		} else {
			setFlash(w, flashError, i18n.T(ctx, "error.import"))
		}
		backToPage(w, r)
		return
	}
	defer file.Close()

	res, err := h.transfer.Import(ctx, file, owner(r))
	switch {
	case err != nil:
		h.logger.Warn("Ошибка импорта", slog.String("error", err.Error()))
		setFlash(w, flashError, i18n.T(ctx, "error.import"))
	case len(res.Errors) > 0:
		setFlash(w, flashNotice, i18n.Tf(ctx, "notice.importErrors", res.Imported, res.Rows, len(res.Errors)))
	default:
		setFlash(w, flashNotice, i18n.Tf(ctx, "notice.imported", res.Imported, res.Rows))
	}
	backToPage(w, r)
}

// HandleSync обрабатывает POST /admin/workstation/sync.
func (h *WorkstationHandler) HandleSync(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	switch {
	case !canManage(r):
		setFlash(w, flashError, i18n.T(ctx, "error.forbidden"))
	case h.syncer == nil:
		setFlash(w, flashError, i18n.T(ctx, "error.syncDisabled"))
	default:
		res, err := h.syncer.SyncNow(ctx)
		if err != nil {
			h.logger.Warn("Ошибка синхронизации каталога", slog.String("error", err.Error()))
			setFlash(w, flashError, i18n.T(ctx, "error.sync"))
			break
		}
		setFlash(w, flashNotice, i18n.Tf(ctx, "notice.synced", res.Upserted, res.Removed))
	}
	backToPage(w, r)
}

func canManage(r *http.Request) bool {
	claims := middleware.ClaimsFromContext(r.Context())
	return claims != nil && rbac.CanManage(claims.Role)
}

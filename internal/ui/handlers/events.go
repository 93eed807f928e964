// events.go — SSE-поток быстрых показателей рабочего места.
// Каждый клиент обслуживается своей горутиной запроса; поток завершается
// при отключении клиента (отмена контекста запроса).
package handlers

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/arturkryukov/artstore/workstation/internal/domain/metrics"
	"github.com/arturkryukov/artstore/workstation/internal/service"
)

// EventsHandler — SSE endpoint quick-stats.
type EventsHandler struct {
	workstation *service.WorkstationService
	interval    time.Duration
	logger      *slog.Logger
}

// NewEventsHandler создаёт обработчик SSE.
// interval — период отправки (WS_SSE_INTERVAL).
func NewEventsHandler(workstation *service.WorkstationService, interval time.Duration, logger *slog.Logger) *EventsHandler {
	return &EventsHandler{
		workstation: workstation,
		interval:    interval,
		logger:      logger.With(slog.String("component", "ui.events")),
	}
}

// quickStatsEvent — данные события quick-stats.
type quickStatsEvent struct {
	metrics.QuickStatsData
	Stale bool `json:"stale"`
}

// HandleQuickStats обрабатывает GET /admin/workstation/events.
// Формат: event: quick-stats\ndata: {json}\n\n — сразу при подключении и далее каждые interval.
func (h *EventsHandler) HandleQuickStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	// ResponseController находит Flusher через Unwrap() обёрток middleware.
	rc := http.NewResponseController(w)
	if err := rc.Flush(); err != nil {
		http.Error(w, "SSE не поддерживается", http.StatusInternalServerError)
		return
	}
	// Поток живёт дольше WriteTimeout сервера.
	_ = rc.SetWriteDeadline(time.Time{})

	who := owner(r)
	h.logger.Debug("SSE клиент подключён",
		slog.String("owner", who),
		slog.String("remote_addr", r.RemoteAddr),
	)

	if err := h.send(w, r, rc, who); err != nil {
		return
	}

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			h.logger.Debug("SSE клиент отключён", slog.String("owner", who))
			return
		case <-ticker.C:
			if err := h.send(w, r, rc, who); err != nil {
				return
			}
		}
	}
}

// send отправляет одно событие. Ошибка возвращается только при обрыве записи.
func (h *EventsHandler) send(w http.ResponseWriter, r *http.Request, rc *http.ResponseController, who string) error {
	snap, err := h.workstation.Current(r.Context(), who)
	if snap == nil {
		if err != nil {
			h.logger.Debug("quick-stats пропущены", slog.String("error", err.Error()))
		}
		return nil
	}

	data, err := json.Marshal(quickStatsEvent{QuickStatsData: snap.Stats, Stale: snap.Stale})
	if err != nil {
		h.logger.Error("Ошибка сериализации quick-stats", slog.String("error", err.Error()))
		return nil
	}

	if _, err := fmt.Fprintf(w, "event: quick-stats\ndata: %s\n\n", data); err != nil {
		return err
	}
	return rc.Flush()
}

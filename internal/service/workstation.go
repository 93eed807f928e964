// workstation.go — координатор рабочего места администратора.
//
// WorkstationService хранит фильтры каждого владельца (администратора),
// применяет к ним сохранённые виды и сброс через модель filters, получает
// коллекцию пользователей из каталога и пересчитывает показатели.
//
// Обновления нумеруются: завершившийся запрос заменяет снимок, только если
// более поздний запрос ещё не завершился (last-write-wins, без слияния).
// При ошибке получения возвращается последний успешный снимок, помеченный
// устаревшим; фильтры владельца при этом не меняются.
//
// Prometheus-метрики:
//   - ws_quick_stats{kind} — показатели последнего применённого снимка
//   - ws_refresh_total{result} — обновления по результату (applied, superseded, error)
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/arturkryukov/artstore/workstation/internal/domain/filters"
	"github.com/arturkryukov/artstore/workstation/internal/domain/metrics"
	"github.com/arturkryukov/artstore/workstation/internal/domain/model"
	"github.com/arturkryukov/artstore/workstation/internal/repository"
)

var (
	quickStatsGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "ws_quick_stats",
		Help: "Показатели карточек рабочего места по последнему обновлению.",
	}, []string{"kind"})

	refreshTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ws_refresh_total",
		Help: "Количество обновлений рабочего места по результату.",
	}, []string{"result"})
)

// DefaultOwner — владелец состояния, если шлюз не передал пользователя.
const DefaultOwner = "default"

// UserSource — каталог пользователей, отвечающий на запросы с фильтрами.
// Реализуется repository.UserRepository.
type UserSource interface {
	List(ctx context.Context, f filters.UserFilters, now time.Time, limit, offset int) ([]model.User, error)
	Count(ctx context.Context, f filters.UserFilters, now time.Time) (int, error)
}

// FilterStore — хранилище фильтров владельцев.
// Реализуется repository.FilterStateRepository.
type FilterStore interface {
	Get(ctx context.Context, owner string) (filters.UserFilters, error)
	Save(ctx context.Context, owner string, f filters.UserFilters) error
}

// ViewState — сохранённый вид с признаком активности и количеством пользователей.
type ViewState struct {
	Name   filters.ViewName `json:"name"`
	Label  string           `json:"label"`
	Active bool             `json:"active"`
	Count  int              `json:"count"`
}

// Snapshot — состояние рабочего места после обновления.
type Snapshot struct {
	Owner      string                 `json:"owner"`
	Filters    filters.UserFilters    `json:"filters"`
	ActiveView filters.ViewName       `json:"activeView"`
	Users      []model.User           `json:"users"`
	Stats      metrics.QuickStatsData `json:"stats"`
	Directory  metrics.DirectoryStats `json:"directory"`
	Views      []ViewState            `json:"views"`
	// Seq — номер обновления, создавшего снимок
	Seq uint64 `json:"seq"`
	// Stale — снимок устарел (обновление не удалось)
	Stale bool `json:"stale"`
}

// QueryResult — результат разового запроса к каталогу.
type QueryResult struct {
	Filters filters.UserFilters    `json:"filters"`
	Users   []model.User           `json:"users"`
	Total   int                    `json:"total"`
	Stats   metrics.QuickStatsData `json:"stats"`
}

// ownerState — состояние одного владельца.
type ownerState struct {
	filters  filters.UserFilters
	loaded   bool
	snapshot *Snapshot
	stale    bool
	// issued — последний выданный номер, applied — номер текущего снимка
	issued  uint64
	applied uint64
}

// WorkstationService — координатор рабочего места.
type WorkstationService struct {
	source     UserSource
	store      FilterStore
	aggregator *metrics.Aggregator
	maxUsers   int
	timeout    time.Duration
	now        func() time.Time
	logger     *slog.Logger

	mu     sync.Mutex
	owners map[string]*ownerState
}

// NewWorkstationService создаёт координатор рабочего места.
// maxUsers — предел размера коллекции, timeout — таймаут одного обновления.
func NewWorkstationService(
	source UserSource,
	store FilterStore,
	aggregator *metrics.Aggregator,
	maxUsers int,
	timeout time.Duration,
	logger *slog.Logger,
) *WorkstationService {
	return &WorkstationService{
		source:     source,
		store:      store,
		aggregator: aggregator,
		maxUsers:   maxUsers,
		timeout:    timeout,
		now:        func() time.Time { return time.Now().UTC() },
		logger:     logger.With(slog.String("component", "workstation")),
		owners:     make(map[string]*ownerState),
	}
}

// state возвращает состояние владельца, создавая его при необходимости.
// Вызывается под s.mu.
func (s *WorkstationService) state(owner string) *ownerState {
	st, ok := s.owners[owner]
	if !ok {
		st = &ownerState{filters: filters.Defaults()}
		s.owners[owner] = st
	}
	return st
}

// loadFilters загружает сохранённые фильтры владельца один раз.
func (s *WorkstationService) loadFilters(ctx context.Context, owner string) error {
	s.mu.Lock()
	loaded := s.state(owner).loaded
	s.mu.Unlock()
	if loaded {
		return nil
	}

	f, err := s.store.Get(ctx, owner)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		f = filters.Defaults()
	case err != nil:
		return fmt.Errorf("загрузка фильтров: %w", err)
	}

	s.mu.Lock()
	st := s.state(owner)
	if !st.loaded {
		st.filters = f
		st.loaded = true
	}
	s.mu.Unlock()
	return nil
}

// Filters возвращает текущие фильтры владельца.
func (s *WorkstationService) Filters(ctx context.Context, owner string) (filters.UserFilters, error) {
	if err := s.loadFilters(ctx, owner); err != nil {
		return filters.UserFilters{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state(owner).filters, nil
}

// Current возвращает последний снимок владельца.
// Если снимка нет или он помечен устаревшим — выполняет обновление.
func (s *WorkstationService) Current(ctx context.Context, owner string) (*Snapshot, error) {
	s.mu.Lock()
	st := s.state(owner)
	if st.snapshot != nil && !st.stale {
		snap := *st.snapshot
		s.mu.Unlock()
		return &snap, nil
	}
	s.mu.Unlock()

	return s.Refresh(ctx, owner)
}

// Refresh получает коллекцию с текущими фильтрами владельца и пересчитывает показатели.
func (s *WorkstationService) Refresh(ctx context.Context, owner string) (*Snapshot, error) {
	if err := s.loadFilters(ctx, owner); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDirectoryUnavailable, err)
	}
	snap, _, err := s.refresh(ctx, owner, nil)
	return snap, err
}

// refresh выполняет обновление. next, если задан, вычисляет новые фильтры из текущих;
// они становятся фильтрами владельца только вместе с применённым снимком.
// Ошибка получения оставляет фильтры и снимок прежними и помечает снимок устаревшим.
// committed — фильтры владельца заменены результатом next.
func (s *WorkstationService) refresh(
	ctx context.Context,
	owner string,
	next func(filters.UserFilters) filters.UserFilters,
) (snap *Snapshot, committed bool, err error) {
	s.mu.Lock()
	st := s.state(owner)
	st.issued++
	seq := st.issued
	f := st.filters
	if next != nil {
		f = next(f)
	}
	s.mu.Unlock()

	fresh, fetchErr := s.fetch(ctx, owner, f, seq)

	s.mu.Lock()
	defer s.mu.Unlock()

	if fetchErr != nil {
		refreshTotal.WithLabelValues("error").Inc()
		s.logger.Warn("Ошибка обновления рабочего места",
			slog.String("owner", owner),
			slog.Uint64("seq", seq),
			slog.String("error", fetchErr.Error()),
		)
		if seq > st.applied {
			st.stale = true
		}
		wrapped := fmt.Errorf("%w: %w", ErrDirectoryUnavailable, fetchErr)
		if st.snapshot == nil {
			return nil, false, wrapped
		}
		last := *st.snapshot
		last.Stale = st.stale
		return &last, false, wrapped
	}

	if seq > st.applied {
		st.snapshot = fresh
		st.applied = seq
		st.stale = false
		if next != nil {
			st.filters = f
			committed = true
		}
		refreshTotal.WithLabelValues("applied").Inc()
		observeQuickStats(fresh.Stats)
	} else {
		// Более поздний запрос уже завершился — этот результат отбрасывается.
		refreshTotal.WithLabelValues("superseded").Inc()
		s.logger.Debug("Результат обновления отброшен",
			slog.String("owner", owner),
			slog.Uint64("seq", seq),
			slog.Uint64("applied", st.applied),
		)
	}

	result := *st.snapshot
	return &result, committed, nil
}

// fetch выполняет запросы к каталогу вне блокировки.
func (s *WorkstationService) fetch(ctx context.Context, owner string, f filters.UserFilters, seq uint64) (*Snapshot, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	now := s.now()

	users, err := s.source.List(ctx, f, now, s.maxUsers, 0)
	if err != nil {
		return nil, fmt.Errorf("получение пользователей: %w", err)
	}

	views, err := s.viewStates(ctx, f, now)
	if err != nil {
		return nil, err
	}

	return &Snapshot{
		Owner:      owner,
		Filters:    f,
		ActiveView: filters.ActiveView(f).Name,
		Users:      users,
		Stats:      s.aggregator.Compute(users),
		Directory:  metrics.ComputeDirectoryStats(users),
		Views:      views,
		Seq:        seq,
	}, nil
}

// viewStates считает пользователей каждого вида, применённого к значениям по умолчанию.
func (s *WorkstationService) viewStates(ctx context.Context, f filters.UserFilters, now time.Time) ([]ViewState, error) {
	catalogue := filters.Views()
	states := make([]ViewState, 0, len(catalogue))
	for _, v := range catalogue {
		count, err := s.source.Count(ctx, filters.ApplyView(filters.Defaults(), v), now)
		if err != nil {
			return nil, fmt.Errorf("подсчёт вида %s: %w", v.Name, err)
		}
		states = append(states, ViewState{
			Name:   v.Name,
			Label:  v.Label,
			Active: filters.IsViewActive(f, v),
			Count:  count,
		})
	}
	return states, nil
}

// ApplyView применяет сохранённый вид к фильтрам владельца и обновляет снимок.
func (s *WorkstationService) ApplyView(ctx context.Context, owner, name string) (*Snapshot, error) {
	view, ok := filters.ViewByName(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownView, name)
	}
	return s.mutate(ctx, owner, func(cur filters.UserFilters) filters.UserFilters {
		return filters.ApplyView(cur, view)
	})
}

// ResetFilters сбрасывает фильтры владельца к значениям по умолчанию.
func (s *WorkstationService) ResetFilters(ctx context.Context, owner string) (*Snapshot, error) {
	return s.mutate(ctx, owner, func(filters.UserFilters) filters.UserFilters {
		return filters.ResetFilters()
	})
}

// UpdateFilters заменяет фильтры владельца.
func (s *WorkstationService) UpdateFilters(ctx context.Context, owner string, f filters.UserFilters) (*Snapshot, error) {
	f = filters.Normalize(f)
	if err := filters.Validate(f); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidation, err)
	}
	return s.mutate(ctx, owner, func(filters.UserFilters) filters.UserFilters {
		return f
	})
}

// mutate вычисляет новые фильтры и обновляет снимок с ними.
// Фильтры сохраняются только после успешного обновления.
func (s *WorkstationService) mutate(ctx context.Context, owner string, next func(filters.UserFilters) filters.UserFilters) (*Snapshot, error) {
	if err := s.loadFilters(ctx, owner); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDirectoryUnavailable, err)
	}

	snap, committed, err := s.refresh(ctx, owner, next)
	if err != nil || !committed {
		return snap, err
	}

	if err := s.store.Save(ctx, owner, snap.Filters); err != nil {
		// Фильтры в памяти уже изменены; сохранение повторится при следующем действии.
		s.logger.Warn("Ошибка сохранения фильтров",
			slog.String("owner", owner),
			slog.String("error", err.Error()),
		)
	}

	s.logger.Debug("Фильтры изменены",
		slog.String("owner", owner),
		slog.String("active_view", string(snap.ActiveView)),
	)
	return snap, nil
}

// Invalidate помечает снимки всех владельцев устаревшими.
// Следующий Current выполнит обновление.
func (s *WorkstationService) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, st := range s.owners {
		st.stale = true
	}
}

// Query выполняет разовый запрос без изменения состояния владельцев.
// Показатели считаются по всей отфильтрованной коллекции, Users — страница.
func (s *WorkstationService) Query(ctx context.Context, f filters.UserFilters, limit, offset int) (*QueryResult, error) {
	f = filters.Normalize(f)
	if err := filters.Validate(f); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidation, err)
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	users, err := s.source.List(ctx, f, s.now(), s.maxUsers, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDirectoryUnavailable, err)
	}

	return &QueryResult{
		Filters: f,
		Users:   Page(users, limit, offset),
		Total:   len(users),
		Stats:   s.aggregator.Compute(users),
	}, nil
}

// Page возвращает срез users[offset:offset+limit] с учётом границ.
func Page(users []model.User, limit, offset int) []model.User {
	if offset >= len(users) || limit <= 0 {
		return []model.User{}
	}
	if offset < 0 {
		offset = 0
	}
	end := offset + limit
	if end > len(users) {
		end = len(users)
	}
	return users[offset:end]
}

// observeQuickStats обновляет gauge показателей.
func observeQuickStats(st metrics.QuickStatsData) {
	quickStatsGauge.WithLabelValues("total").Set(float64(st.TotalUsers))
	quickStatsGauge.WithLabelValues("active").Set(float64(st.ActiveUsers))
	quickStatsGauge.WithLabelValues("pending").Set(float64(st.PendingApprovals))
	quickStatsGauge.WithLabelValues("in_progress").Set(float64(st.InProgressWorkflows))
	quickStatsGauge.WithLabelValues("due_this_week").Set(float64(st.DueThisWeek))
}

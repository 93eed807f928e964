// directory_sync.go — периодическая синхронизация каталога пользователей с Keycloak.
//
// DirectorySyncService запускает фоновую горутину с ticker (WS_DIRECTORY_SYNC_INTERVAL).
//
// Синхронизация:
//  1. Постранично получить пользователей realm (полное представление с attributes)
//  2. Для каждого: группы → роль (rbac), enabled → ACTIVE/INACTIVE, атрибут отдела
//  3. Upsert в каталог с synced_at = время начала синхронизации
//  4. Удалить пользователей источника keycloak, не встреченных в этом проходе
//     (только если все пользователи записаны без ошибок)
//  5. Записать last_directory_sync_at и пометить снимки рабочего места устаревшими
//
// Prometheus-метрики:
//   - ws_directory_sync_duration_seconds — длительность синхронизации
package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/arturkryukov/artstore/workstation/internal/domain/model"
	"github.com/arturkryukov/artstore/workstation/internal/domain/rbac"
	"github.com/arturkryukov/artstore/workstation/internal/keycloak"
	"github.com/arturkryukov/artstore/workstation/internal/repository"
)

var directorySyncDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Name:    "ws_directory_sync_duration_seconds",
	Help:    "Длительность синхронизации каталога пользователей с Keycloak",
	Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 0.1s … ~51s
})

// DirectoryClient — операции Keycloak, нужные синхронизации.
// Реализуется *keycloak.Client.
type DirectoryClient interface {
	CountUsers(ctx context.Context) (int, error)
	ListUsers(ctx context.Context, first, max int) ([]keycloak.KeycloakUser, error)
	GetUserGroups(ctx context.Context, userID string) ([]keycloak.KeycloakGroup, error)
}

// DirectoryUserStore — запись в каталог пользователей.
type DirectoryUserStore interface {
	Upsert(ctx context.Context, u *model.User) (bool, error)
	DeleteSyncedBefore(ctx context.Context, source string, t time.Time) (int, error)
}

// DirectorySyncService — фоновый сервис синхронизации каталога с Keycloak.
type DirectorySyncService struct {
	kcClient      DirectoryClient
	users         DirectoryUserStore
	syncStateRepo repository.SyncStateRepository
	mapping       rbac.GroupMapping
	deptAttribute string
	pageSize      int
	interval      time.Duration
	onSynced      func()
	logger        *slog.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// NewDirectorySyncService создаёт сервис синхронизации каталога.
// onSynced вызывается после успешной синхронизации (может быть nil).
func NewDirectorySyncService(
	kcClient DirectoryClient,
	users DirectoryUserStore,
	syncStateRepo repository.SyncStateRepository,
	mapping rbac.GroupMapping,
	deptAttribute string,
	pageSize int,
	interval time.Duration,
	onSynced func(),
	logger *slog.Logger,
) *DirectorySyncService {
	return &DirectorySyncService{
		kcClient:      kcClient,
		users:         users,
		syncStateRepo: syncStateRepo,
		mapping:       mapping,
		deptAttribute: deptAttribute,
		pageSize:      pageSize,
		interval:      interval,
		onSynced:      onSynced,
		logger:        logger.With(slog.String("component", "directory_sync")),
	}
}

// Start выполняет первую синхронизацию и запускает периодическую.
func (s *DirectorySyncService) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)

		s.logger.Info("Периодическая синхронизация каталога запущена",
			slog.String("interval", s.interval.String()),
			slog.Int("page_size", s.pageSize),
		)
		if last, ok := s.lastSyncWithin(ctx, s.interval); ok {
			s.logger.Info("Первая синхронизация пропущена: каталог синхронизирован недавно",
				slog.Time("last_sync_at", last),
			)
		} else {
			s.runOnce(ctx)
		}

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				s.logger.Info("Периодическая синхронизация каталога остановлена")
				return
			case <-ticker.C:
				s.runOnce(ctx)
			}
		}
	}()
}

// lastSyncWithin сообщает, была ли синхронизация не раньше d назад
// (например, другой репликой).
func (s *DirectorySyncService) lastSyncWithin(ctx context.Context, d time.Duration) (time.Time, bool) {
	state, err := s.syncStateRepo.Get(ctx)
	if err != nil {
		s.logger.Warn("Ошибка чтения sync_state", slog.String("error", err.Error()))
		return time.Time{}, false
	}
	if state.LastDirectorySyncAt == nil {
		return time.Time{}, false
	}
	last := *state.LastDirectorySyncAt
	return last, time.Since(last) < d
}

// runOnce выполняет синхронизацию и логирует результат.
func (s *DirectorySyncService) runOnce(ctx context.Context) {
	result, err := s.SyncNow(ctx)
	if err != nil {
		s.logger.Error("Ошибка синхронизации каталога",
			slog.String("error", err.Error()),
		)
		return
	}
	s.logger.Info("Синхронизация каталога завершена",
		slog.Int("total_keycloak", result.TotalKeycloak),
		slog.Int("upserted", result.Upserted),
		slog.Int("removed", result.Removed),
		slog.Int("failed", result.Failed),
	)
}

// Stop останавливает фоновую горутину и ждёт завершения.
func (s *DirectorySyncService) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	if s.done != nil {
		<-s.done
	}
}

// SyncNow выполняет немедленную синхронизацию каталога.
// Если чтение из Keycloak прервалось или вернуло меньше пользователей,
// чем /users/count, удаление не выполняется.
func (s *DirectorySyncService) SyncNow(ctx context.Context) (*model.DirectorySyncResult, error) {
	startedAt := time.Now().UTC()
	result := &model.DirectorySyncResult{StartedAt: startedAt}

	expected, err := s.kcClient.CountUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: количество пользователей: %w", ErrIDPUnavailable, err)
	}

	for first := 0; ; first += s.pageSize {
		page, err := s.kcClient.ListUsers(ctx, first, s.pageSize)
		if err != nil {
			return nil, fmt.Errorf("%w: получение пользователей (first=%d): %w", ErrIDPUnavailable, first, err)
		}
		result.TotalKeycloak += len(page)

		for i := range page {
			u, err := s.toUser(ctx, &page[i], startedAt)
			if err == nil {
				_, err = s.users.Upsert(ctx, u)
			}
			if err != nil {
				result.Failed++
				s.logger.Warn("Ошибка синхронизации пользователя",
					slog.String("user_id", page[i].ID),
					slog.String("username", page[i].Username),
					slog.String("error", err.Error()),
				)
				continue
			}
			result.Upserted++
		}

		if len(page) < s.pageSize {
			break
		}
	}

	// Пользователи с ошибкой не обновили synced_at и были бы удалены.
	switch {
	case result.Failed > 0:
		s.logger.Warn("Удаление отсутствующих пропущено: есть ошибки синхронизации",
			slog.Int("failed", result.Failed),
		)
	case result.TotalKeycloak < expected:
		s.logger.Warn("Удаление отсутствующих пропущено: получено меньше пользователей, чем в realm",
			slog.Int("received", result.TotalKeycloak),
			slog.Int("expected", expected),
		)
	default:
		removed, err := s.users.DeleteSyncedBefore(ctx, model.SourceKeycloak, startedAt)
		if err != nil {
			return nil, fmt.Errorf("удаление отсутствующих в Keycloak пользователей: %w", err)
		}
		result.Removed = removed
	}

	if err := s.syncStateRepo.UpdateDirectorySyncAt(ctx, startedAt); err != nil {
		s.logger.Warn("Ошибка обновления last_directory_sync_at", slog.String("error", err.Error()))
	}

	result.CompletedAt = time.Now().UTC()
	directorySyncDuration.Observe(result.CompletedAt.Sub(startedAt).Seconds())

	if s.onSynced != nil {
		s.onSynced()
	}

	return result, nil
}

// toUser преобразует пользователя Keycloak в запись каталога.
func (s *DirectorySyncService) toUser(ctx context.Context, ku *keycloak.KeycloakUser, syncedAt time.Time) (*model.User, error) {
	groups, err := s.kcClient.GetUserGroups(ctx, ku.ID)
	if err != nil {
		return nil, fmt.Errorf("получение групп: %w", err)
	}

	names := make([]string, 0, len(groups))
	for _, g := range groups {
		names = append(names, groupName(g))
	}

	status := model.StatusActive
	if !ku.Enabled {
		status = model.StatusInactive
	}

	createdAt := ku.CreatedAtTime()
	if createdAt.IsZero() {
		createdAt = syncedAt
	}

	return &model.User{
		ID:         ku.ID,
		Username:   ku.Username,
		Email:      ku.Email,
		FirstName:  ku.FirstName,
		LastName:   ku.LastName,
		Role:       rbac.MapGroupsToRole(names, s.mapping),
		Status:     status,
		Department: strings.TrimSpace(ku.Attribute(s.deptAttribute)),
		Groups:     names,
		Source:     model.SourceKeycloak,
		CreatedAt:  createdAt,
		SyncedAt:   syncedAt,
	}, nil
}

// groupName возвращает имя группы; для вложенных групп без имени — последний сегмент пути.
func groupName(g keycloak.KeycloakGroup) string {
	if g.Name != "" {
		return g.Name
	}
	path := strings.TrimRight(g.Path, "/")
	if i := strings.LastIndex(path, "/"); i >= 0 {
		return path[i+1:]
	}
	return path
}

package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/arturkryukov/artstore/workstation/internal/domain/model"
)

// SyncStateRepository — интерфейс для таблицы sync_state (одна строка).
type SyncStateRepository interface {
	// Get возвращает текущее состояние синхронизации.
	Get(ctx context.Context) (*model.SyncState, error)
	// UpdateDirectorySyncAt обновляет время последней синхронизации каталога.
	UpdateDirectorySyncAt(ctx context.Context, t time.Time) error
}

// syncStateRepo — реализация SyncStateRepository.
type syncStateRepo struct {
	db DBTX
}

// NewSyncStateRepository создаёт репозиторий состояния синхронизации.
func NewSyncStateRepository(db DBTX) SyncStateRepository {
	return &syncStateRepo{db: db}
}

func (r *syncStateRepo) Get(ctx context.Context) (*model.SyncState, error) {
	query := `
		SELECT id, last_directory_sync_at, created_at, updated_at
		FROM sync_state
		WHERE id = 1`

	s := &model.SyncState{}
	err := r.db.QueryRow(ctx, query).Scan(
		&s.ID, &s.LastDirectorySyncAt, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения sync_state: %w", err)
	}
	return s, nil
}

func (r *syncStateRepo) UpdateDirectorySyncAt(ctx context.Context, t time.Time) error {
	query := `UPDATE sync_state SET last_directory_sync_at = $1, updated_at = NOW() WHERE id = 1`
	_, err := r.db.Exec(ctx, query, t)
	if err != nil {
		return fmt.Errorf("ошибка обновления last_directory_sync_at: %w", err)
	}
	return nil
}

package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/arturkryukov/artstore/workstation/internal/domain/filters"
)

// FilterStateRepository — сохранённые фильтры рабочего места по владельцу.
type FilterStateRepository interface {
	// Get возвращает фильтры владельца или ErrNotFound.
	Get(ctx context.Context, owner string) (filters.UserFilters, error)
	// Save сохраняет фильтры владельца (upsert).
	Save(ctx context.Context, owner string, f filters.UserFilters) error
}

type filterStateRepo struct {
	db DBTX
}

// NewFilterStateRepository создаёт репозиторий фильтров.
func NewFilterStateRepository(db DBTX) FilterStateRepository {
	return &filterStateRepo{db: db}
}

func (r *filterStateRepo) Get(ctx context.Context, owner string) (filters.UserFilters, error) {
	var raw []byte
	err := r.db.QueryRow(ctx,
		`SELECT filters FROM filter_states WHERE owner = $1`, owner,
	).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return filters.UserFilters{}, ErrNotFound
		}
		return filters.UserFilters{}, fmt.Errorf("ошибка получения фильтров: %w", err)
	}

	var f filters.UserFilters
	if err := json.Unmarshal(raw, &f); err != nil {
		return filters.UserFilters{}, fmt.Errorf("ошибка десериализации фильтров: %w", err)
	}
	return filters.Normalize(f), nil
}

func (r *filterStateRepo) Save(ctx context.Context, owner string, f filters.UserFilters) error {
	raw, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("ошибка сериализации фильтров: %w", err)
	}

	query := `
		INSERT INTO filter_states (owner, filters, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (owner) DO UPDATE SET
			filters = EXCLUDED.filters,
			updated_at = NOW()`

	if _, err := r.db.Exec(ctx, query, owner, raw); err != nil {
		return fmt.Errorf("ошибка сохранения фильтров: %w", err)
	}
	return nil
}

package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/arturkryukov/artstore/workstation/internal/domain/filters"
	"github.com/arturkryukov/artstore/workstation/internal/domain/model"
)

// UserRepository — каталог пользователей (таблица users).
type UserRepository interface {
	// Upsert вставляет или обновляет пользователя по id.
	// Возвращает true, если запись была создана.
	Upsert(ctx context.Context, u *model.User) (bool, error)
	// Get возвращает пользователя по id.
	Get(ctx context.Context, id string) (*model.User, error)
	// List возвращает пользователей, прошедших фильтры, новые первыми.
	List(ctx context.Context, f filters.UserFilters, now time.Time, limit, offset int) ([]model.User, error)
	// Count возвращает количество пользователей, прошедших фильтры.
	Count(ctx context.Context, f filters.UserFilters, now time.Time) (int, error)
	// DeleteSyncedBefore удаляет пользователей источника, не обновлённых с момента t.
	DeleteSyncedBefore(ctx context.Context, source string, t time.Time) (int, error)
}

// userRepo — реализация UserRepository.
type userRepo struct {
	db DBTX
}

// NewUserRepository создаёт репозиторий каталога пользователей.
func NewUserRepository(db DBTX) UserRepository {
	return &userRepo{db: db}
}

const userColumns = `id, username, email, first_name, last_name, role, status,
	department, idp_groups, source, created_at, synced_at`

// scanUser сканирует строку результата в модель User.
func scanUser(row pgx.Row) (*model.User, error) {
	u := &model.User{}
	err := row.Scan(
		&u.ID, &u.Username, &u.Email, &u.FirstName, &u.LastName, &u.Role, &u.Status,
		&u.Department, &u.Groups, &u.Source, &u.CreatedAt, &u.SyncedAt,
	)
	return u, err
}

func (r *userRepo) Upsert(ctx context.Context, u *model.User) (bool, error) {
	query := `
		INSERT INTO users (id, username, email, first_name, last_name, role, status,
			department, idp_groups, source, created_at, synced_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			username = EXCLUDED.username,
			email = EXCLUDED.email,
			first_name = EXCLUDED.first_name,
			last_name = EXCLUDED.last_name,
			role = EXCLUDED.role,
			status = EXCLUDED.status,
			department = EXCLUDED.department,
			idp_groups = EXCLUDED.idp_groups,
			source = EXCLUDED.source,
			created_at = EXCLUDED.created_at,
			synced_at = EXCLUDED.synced_at
		RETURNING (xmax = 0) AS is_insert`

	groups := u.Groups
	if groups == nil {
		groups = []string{}
	}

	var isInsert bool
	err := r.db.QueryRow(ctx, query,
		u.ID, u.Username, u.Email, u.FirstName, u.LastName, u.Role, u.Status,
		u.Department, groups, u.Source, u.CreatedAt, u.SyncedAt,
	).Scan(&isInsert)
	if err != nil {
		return false, fmt.Errorf("ошибка upsert пользователя %s: %w", u.ID, err)
	}
	return isInsert, nil
}

func (r *userRepo) Get(ctx context.Context, id string) (*model.User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users WHERE id = $1`, userColumns)
	u, err := scanUser(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения пользователя: %w", err)
	}
	return u, nil
}

// buildUserWhere строит WHERE-условие по фильтрам каталога.
// Семантика совпадает с filters.Matches.
func buildUserWhere(f filters.UserFilters, now time.Time, startArg int) (string, []any) {
	var conditions []string
	var args []any
	argNum := startArg

	if f.Search != "" {
		conditions = append(conditions, fmt.Sprintf(
			"(username ILIKE $%[1]d OR email ILIKE $%[1]d OR first_name ILIKE $%[1]d OR last_name ILIKE $%[1]d)",
			argNum))
		args = append(args, "%"+escapeLike(f.Search)+"%")
		argNum++
	}
	if f.Role != "" {
		conditions = append(conditions, fmt.Sprintf("role = $%d", argNum))
		args = append(args, f.Role)
		argNum++
	}
	if f.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argNum))
		args = append(args, f.Status)
		argNum++
	}
	if f.Department != "" {
		conditions = append(conditions, fmt.Sprintf("LOWER(department) = LOWER($%d)", argNum))
		args = append(args, f.Department)
		argNum++
	}
	if since, ok := filters.Since(f.DateRange, now); ok {
		conditions = append(conditions, fmt.Sprintf("created_at >= $%d", argNum))
		args = append(args, since)
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}
	return where, args
}

// escapeLike экранирует спецсимволы шаблона LIKE (\ — символ экранирования по умолчанию).
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func (r *userRepo) List(ctx context.Context, f filters.UserFilters, now time.Time, limit, offset int) ([]model.User, error) {
	where, args := buildUserWhere(f, now, 1)
	argNum := len(args) + 1

	query := fmt.Sprintf(`
		SELECT %s
		FROM users
		%s
		ORDER BY created_at DESC, id
		LIMIT $%d OFFSET $%d`, userColumns, where, argNum, argNum+1)

	args = append(args, limit, offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка пользователей: %w", err)
	}
	defer rows.Close()

	result := make([]model.User, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования пользователя: %w", err)
		}
		result = append(result, *u)
	}
	return result, rows.Err()
}

func (r *userRepo) Count(ctx context.Context, f filters.UserFilters, now time.Time) (int, error) {
	where, args := buildUserWhere(f, now, 1)
	query := fmt.Sprintf(`SELECT COUNT(*) FROM users %s`, where)

	var count int
	if err := r.db.QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("ошибка подсчёта пользователей: %w", err)
	}
	return count, nil
}

func (r *userRepo) DeleteSyncedBefore(ctx context.Context, source string, t time.Time) (int, error) {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM users WHERE source = $1 AND synced_at < $2`, source, t)
	if err != nil {
		return 0, fmt.Errorf("ошибка удаления устаревших пользователей: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// transfer.go — экспорт и импорт каталога пользователей в XLSX (кнопки Export / Import).
//
// Книга экспорта:
//   - лист "Users" — пользователи, прошедшие фильтры (не более WS_EXPORT_MAX_ROWS)
//   - лист "Stats" — быстрые метрики по той же выборке и применённые фильтры
//
// Импорт читает лист "Users" той же структуры. Заголовки сопоставляются без учёта
// регистра, лишние колонки игнорируются. Строки с ошибками пропускаются, остальные
// записываются одной транзакцией с source = import.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"github.com/arturkryukov/artstore/workstation/internal/domain/filters"
	"github.com/arturkryukov/artstore/workstation/internal/domain/metrics"
	"github.com/arturkryukov/artstore/workstation/internal/domain/model"
	"github.com/arturkryukov/artstore/workstation/internal/domain/rbac"
)

const (
	usersSheet = "Users"
	statsSheet = "Stats"
)

// userColumns — колонки листа Users в порядке экспорта.
var userColumns = []string{
	"id", "username", "email", "first_name", "last_name",
	"role", "status", "department", "created_at", "source",
}

// UserWriter — запись пользователей при импорте.
type UserWriter interface {
	Upsert(ctx context.Context, u *model.User) (bool, error)
}

// UsersInTx выполняет fn в транзакции с репозиторием, привязанным к ней.
type UsersInTx func(ctx context.Context, fn func(users UserWriter) error) error

// TransferService — экспорт/импорт каталога.
type TransferService struct {
	source     UserSource
	inTx       UsersInTx
	maxRows    int
	onImported func()
	logger     *slog.Logger
}

// NewTransferService создаёт сервис экспорта/импорта.
// onImported вызывается после успешного импорта (может быть nil).
func NewTransferService(source UserSource, inTx UsersInTx, maxRows int, onImported func(), logger *slog.Logger) *TransferService {
	return &TransferService{
		source:     source,
		inTx:       inTx,
		maxRows:    maxRows,
		onImported: onImported,
		logger:     logger.With(slog.String("component", "transfer")),
	}
}

// Export записывает книгу XLSX с пользователями, прошедшими фильтры.
// Возвращает число выгруженных пользователей.
func (s *TransferService) Export(ctx context.Context, f filters.UserFilters, w io.Writer) (int, error) {
	f = filters.Normalize(f)
	if err := filters.Validate(f); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrValidation, err)
	}

	now := time.Now().UTC()
	users, err := s.source.List(ctx, f, now, s.maxRows, 0)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrDirectoryUnavailable, err)
	}

	book, err := buildWorkbook(f, users, now)
	if err != nil {
		return 0, err
	}
	defer book.Close() //nolint:errcheck // файл в памяти

	if err := book.Write(w); err != nil {
		return 0, fmt.Errorf("ошибка записи XLSX: %w", err)
	}

	s.logger.Info("Каталог выгружен", slog.Int("users", len(users)))
	return len(users), nil
}

// buildWorkbook формирует книгу экспорта.
func buildWorkbook(f filters.UserFilters, users []model.User, now time.Time) (*excelize.File, error) {
	book := excelize.NewFile()

	if err := book.SetSheetName("Sheet1", usersSheet); err != nil {
		book.Close() //nolint:errcheck,gosec
		return nil, fmt.Errorf("ошибка создания листа %s: %w", usersSheet, err)
	}
	if _, err := book.NewSheet(statsSheet); err != nil {
		book.Close() //nolint:errcheck,gosec
		return nil, fmt.Errorf("ошибка создания листа %s: %w", statsSheet, err)
	}

	if err := writeUsersSheet(book, users); err != nil {
		book.Close() //nolint:errcheck,gosec
		return nil, err
	}
	if err := writeStatsSheet(book, f, users, now); err != nil {
		book.Close() //nolint:errcheck,gosec
		return nil, err
	}

	book.SetActiveSheet(0)
	return book, nil
}

func writeUsersSheet(book *excelize.File, users []model.User) error {
	header := make([]any, len(userColumns))
	for i, c := range userColumns {
		header[i] = c
	}
	if err := book.SetSheetRow(usersSheet, "A1", &header); err != nil {
		return fmt.Errorf("ошибка записи заголовка: %w", err)
	}

	bold, err := book.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err == nil {
		_ = book.SetRowStyle(usersSheet, 1, 1, bold)
	}

	for i := range users {
		u := &users[i]
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := []any{
			u.ID, u.Username, u.Email, u.FirstName, u.LastName,
			u.Role, u.Status, u.Department, u.CreatedAt.UTC().Format(time.RFC3339), u.Source,
		}
		if err := book.SetSheetRow(usersSheet, cell, &row); err != nil {
			return fmt.Errorf("ошибка записи строки %d: %w", i+2, err)
		}
	}

	_ = book.SetColWidth(usersSheet, "A", "A", 38)
	_ = book.SetColWidth(usersSheet, "B", "J", 18)
	return nil
}

func writeStatsSheet(book *excelize.File, f filters.UserFilters, users []model.User, now time.Time) error {
	st := metrics.ComputeStatsAt(users, now)
	dir := metrics.ComputeDirectoryStats(users)

	rows := [][]any{
		{"metric", "value"},
		{"totalUsers", st.TotalUsers},
		{"activeUsers", st.ActiveUsers},
		{"pendingApprovals", st.PendingApprovals},
		{"inProgressWorkflows", st.InProgressWorkflows},
		{"dueThisWeek", st.DueThisWeek},
		{"clients", dir.Clients},
		{"team", dir.Team},
		{"admins", dir.Admins},
		{"refreshedAt", st.RefreshedAt.Format(time.RFC3339)},
		{"filter.search", f.Search},
		{"filter.role", f.Role},
		{"filter.status", f.Status},
		{"filter.department", f.Department},
		{"filter.dateRange", string(f.DateRange)},
	}
	for i := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := book.SetSheetRow(statsSheet, cell, &rows[i]); err != nil {
			return fmt.Errorf("ошибка записи листа %s: %w", statsSheet, err)
		}
	}
	_ = book.SetColWidth(statsSheet, "A", "A", 22)
	return nil
}

// Import читает лист Users и записывает корректные строки.
// importedBy попадает в лог.
func (s *TransferService) Import(ctx context.Context, r io.Reader, importedBy string) (*model.ImportResult, error) {
	book, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: файл не является книгой XLSX: %w", ErrValidation, err)
	}
	defer book.Close() //nolint:errcheck // файл в памяти

	if idx, err := book.GetSheetIndex(usersSheet); err != nil || idx < 0 {
		return nil, fmt.Errorf("%w: лист %q не найден", ErrValidation, usersSheet)
	}
	rows, err := book.GetRows(usersSheet)
	if err != nil {
		return nil, fmt.Errorf("%w: чтение листа %s: %w", ErrValidation, usersSheet, err)
	}
	if len(rows)-1 > s.maxRows {
		return nil, fmt.Errorf("%w: строк %d, допустимо не более %d", ErrValidation, len(rows)-1, s.maxRows)
	}

	now := time.Now().UTC()
	users, result, err := ParseUserRows(rows, now)
	if err != nil {
		return nil, err
	}

	err = s.inTx(ctx, func(store UserWriter) error {
		for i := range users {
			if _, err := store.Upsert(ctx, &users[i]); err != nil {
				return fmt.Errorf("запись пользователя %s: %w", users[i].Username, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ошибка импорта: %w", err)
	}
	result.Imported = len(users)

	s.logger.Info("Каталог импортирован",
		slog.String("imported_by", importedBy),
		slog.Int("rows", result.Rows),
		slog.Int("imported", result.Imported),
		slog.Int("errors", len(result.Errors)),
	)

	if result.Imported > 0 && s.onImported != nil {
		s.onImported()
	}
	return result, nil
}

// ParseUserRows разбирает строки листа Users (первая строка — заголовок).
// Ошибки строк собираются по номеру строки листа, такие строки пропускаются.
// Ошибка возвращается только для некорректного заголовка.
func ParseUserRows(rows [][]string, now time.Time) ([]model.User, *model.ImportResult, error) {
	result := &model.ImportResult{Errors: make(map[int]string)}
	if len(rows) == 0 {
		return nil, nil, fmt.Errorf("%w: лист %s пуст", ErrValidation, usersSheet)
	}

	index := make(map[string]int, len(rows[0]))
	for i, h := range rows[0] {
		index[strings.ToLower(strings.TrimSpace(h))] = i
	}
	if _, ok := index["username"]; !ok {
		return nil, nil, fmt.Errorf("%w: нет колонки username", ErrValidation)
	}

	seen := make(map[string]int)
	users := make([]model.User, 0, len(rows)-1)
	for i, row := range rows[1:] {
		line := i + 2
		if isBlankRow(row) {
			continue
		}
		result.Rows++

		get := func(col string) string {
			j, ok := index[col]
			if !ok || j >= len(row) {
				return ""
			}
			return strings.TrimSpace(row[j])
		}

		u, err := parseUserRow(get, now)
		if err != nil {
			result.Errors[line] = err.Error()
			continue
		}
		if prev, dup := seen[u.ID]; dup {
			result.Errors[line] = fmt.Sprintf("id %s повторяет строку %d", u.ID, prev)
			continue
		}
		seen[u.ID] = line
		users = append(users, *u)
	}
	return users, result, nil
}

var errEmptyUsername = errors.New("username обязателен")

func parseUserRow(get func(string) string, now time.Time) (*model.User, error) {
	u := &model.User{
		ID:         get("id"),
		Username:   get("username"),
		Email:      get("email"),
		FirstName:  get("first_name"),
		LastName:   get("last_name"),
		Role:       strings.ToUpper(get("role")),
		Status:     strings.ToUpper(get("status")),
		Department: get("department"),
		Groups:     []string{},
		Source:     model.SourceImport,
		CreatedAt:  now,
		SyncedAt:   now,
	}

	if u.Username == "" {
		return nil, errEmptyUsername
	}

	if u.ID == "" {
		u.ID = uuid.NewString()
	} else if id, err := uuid.Parse(u.ID); err != nil {
		return nil, fmt.Errorf("id %q не является UUID", u.ID)
	} else {
		u.ID = id.String()
	}

	if u.Role == "" {
		u.Role = model.RoleClient
	} else if !rbac.IsValidRole(u.Role) {
		return nil, fmt.Errorf("недопустимая роль %q", u.Role)
	}

	switch u.Status {
	case "":
		u.Status = model.StatusActive
	case model.StatusActive, model.StatusInactive:
	default:
		return nil, fmt.Errorf("недопустимый статус %q", u.Status)
	}

	if v := get("created_at"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return nil, fmt.Errorf("created_at %q: ожидается RFC3339", v)
		}
		u.CreatedAt = t.UTC()
	}
	return u, nil
}

func isBlankRow(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

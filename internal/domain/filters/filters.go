// Пакет filters — модель состояния фильтров рабочего места администратора.
// Фильтры — неизменяемое значение: каждое действие пользователя (выбор
// сохранённого вида, сброс) возвращает новое значение UserFilters.
// Пакет не хранит состояния и не выполняет ввода-вывода.
package filters

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/arturkryukov/artstore/workstation/internal/domain/model"
)

// ErrInvalidFilter — недопустимое значение одного из полей фильтра.
var ErrInvalidFilter = errors.New("недопустимое значение фильтра")

// DateRange — период создания аккаунта.
type DateRange string

// Допустимые периоды.
const (
	DateRangeAll   DateRange = "all"
	DateRangeWeek  DateRange = "week"
	DateRangeMonth DateRange = "month"
)

// Длительность периодов week/month.
const (
	weekSpan  = 7 * 24 * time.Hour
	monthSpan = 30 * 24 * time.Hour
)

// UserFilters — текущие критерии фильтрации каталога.
// Пустая строка в любом строковом поле означает «без фильтра».
type UserFilters struct {
	// Search — свободный текст (username, email, имя, фамилия)
	Search string `json:"search" validate:"max=200"`
	// Role — "", CLIENT, TEAM, ADMIN
	Role string `json:"role" validate:"omitempty,oneof=CLIENT TEAM ADMIN"`
	// Status — "", ACTIVE, INACTIVE
	Status string `json:"status" validate:"omitempty,oneof=ACTIVE INACTIVE"`
	// Department — отдел, свободный текст
	Department string `json:"department" validate:"max=200"`
	// DateRange — all, week, month
	DateRange DateRange `json:"dateRange" validate:"oneof=all week month"`
}

// Defaults возвращает каноническое значение «без фильтров» — вид All.
func Defaults() UserFilters {
	return UserFilters{DateRange: DateRangeAll}
}

// ResetFilters возвращает канонические значения по умолчанию
// независимо от текущего состояния.
func ResetFilters() UserFilters {
	return Defaults()
}

// IsDefault сообщает, совпадают ли фильтры с каноническими значениями.
func (f UserFilters) IsDefault() bool {
	return f == Defaults()
}

// Normalize приводит фильтры к каноническому виду: обрезает пробелы,
// role/status — в верхний регистр, dateRange — в нижний, пустой dateRange → all.
func Normalize(f UserFilters) UserFilters {
	f.Search = strings.TrimSpace(f.Search)
	f.Department = strings.TrimSpace(f.Department)
	f.Role = strings.ToUpper(strings.TrimSpace(f.Role))
	f.Status = strings.ToUpper(strings.TrimSpace(f.Status))
	f.DateRange = DateRange(strings.ToLower(strings.TrimSpace(string(f.DateRange))))
	if f.DateRange == "" {
		f.DateRange = DateRangeAll
	}
	return f
}

// validate проверяет UserFilters по тегам validate; поля называются по json-тегам.
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		return name
	})
	return v
}

// Validate проверяет перечислимые поля и длину свободного текста.
// Ожидает нормализованные фильтры.
func Validate(f UserFilters) error {
	err := validate.Struct(f)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return fmt.Errorf("%w: %w", ErrInvalidFilter, err)
	}
	fe := fieldErrs[0]
	switch fe.Tag() {
	case "oneof":
		return fmt.Errorf("%w: %s %q, допустимые: %s", ErrInvalidFilter, fe.Field(), fe.Value(),
			strings.ReplaceAll(fe.Param(), " ", ", "))
	case "max":
		return fmt.Errorf("%w: %s длиннее %s символов", ErrInvalidFilter, fe.Field(), fe.Param())
	default:
		return fmt.Errorf("%w: %s", ErrInvalidFilter, fe.Field())
	}
}

// Since возвращает нижнюю границу created_at для периода.
// Для all (и неизвестных значений) ok == false — ограничения нет.
func Since(r DateRange, now time.Time) (since time.Time, ok bool) {
	switch r {
	case DateRangeWeek:
		return now.Add(-weekSpan), true
	case DateRangeMonth:
		return now.Add(-monthSpan), true
	default:
		return time.Time{}, false
	}
}

// Matches проверяет, проходит ли пользователь фильтры.
// Поиск — регистронезависимая подстрока по username, email, имени и фамилии.
func Matches(f UserFilters, u *model.User, now time.Time) bool {
	if u == nil {
		return false
	}
	if f.Role != "" && u.Role != f.Role {
		return false
	}
	if f.Status != "" && u.Status != f.Status {
		return false
	}
	if f.Department != "" && !strings.EqualFold(u.Department, f.Department) {
		return false
	}
	if since, ok := Since(f.DateRange, now); ok && u.CreatedAt.Before(since) {
		return false
	}
	if f.Search != "" {
		q := strings.ToLower(f.Search)
		if !containsLower(u.Username, q) &&
			!containsLower(u.Email, q) &&
			!containsLower(u.FirstName, q) &&
			!containsLower(u.LastName, q) {
			return false
		}
	}
	return true
}

// Filter возвращает пользователей, прошедших фильтры, сохраняя порядок.
func Filter(f UserFilters, users []model.User, now time.Time) []model.User {
	result := make([]model.User, 0, len(users))
	for i := range users {
		if Matches(f, &users[i], now) {
			result = append(result, users[i])
		}
	}
	return result
}

// containsLower — регистронезависимый strings.Contains (q уже в нижнем регистре).
func containsLower(s, q string) bool {
	return strings.Contains(strings.ToLower(s), q)
}

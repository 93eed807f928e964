// Пакет pages — templ-компоненты страниц рабочего места.
//
// Разметка описана в *.templ, *_templ.go получены командой templ generate.
package pages

//go:generate templ generate

import (
	"github.com/arturkryukov/artstore/workstation/internal/domain/filters"
	"github.com/arturkryukov/artstore/workstation/internal/domain/metrics"
	"github.com/arturkryukov/artstore/workstation/internal/domain/model"
)

// BasePath — адрес страницы рабочего места.
const BasePath = "/admin/workstation"

// ViewButton — кнопка сохранённого вида.
type ViewButton struct {
	Name   filters.ViewName
	Count  int
	Active bool
}

// WorkstationData — данные страницы.
type WorkstationData struct {
	Owner     string
	Filters   filters.UserFilters
	Views     []ViewButton
	Stats     metrics.QuickStatsData
	Directory metrics.DirectoryStats
	// Users — пользователи текущей страницы, Total — всего по фильтрам
	Users []model.User
	Total int
	Page  int
	Pages int
	// Stale — показан последний успешный снимок, обновление не удалось
	Stale bool
	// Unavailable — каталог недоступен и снимка нет
	Unavailable bool
	Notice      string
	Error       string
}

// option — значение выпадающего списка и ключ его подписи.
type option struct {
	value string
	key   string
}

var (
	languages   = []string{"en", "ru"}
	userColumns = []string{"column.name", "column.email", "column.role", "column.status", "column.department", "column.created"}

	roleOptions = []option{
		{"", "filters.any"},
		{model.RoleClient, "role.CLIENT"},
		{model.RoleTeam, "role.TEAM"},
		{model.RoleAdmin, "role.ADMIN"},
	}
	statusOptions = []option{
		{"", "filters.any"},
		{model.StatusActive, "status.ACTIVE"},
		{model.StatusInactive, "status.INACTIVE"},
	}
	dateRangeOptions = []option{
		{string(filters.DateRangeAll), "dateRange.all"},
		{string(filters.DateRangeWeek), "dateRange.week"},
		{string(filters.DateRangeMonth), "dateRange.month"},
	}
)

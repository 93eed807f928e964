// views.go — сохранённые виды (All / Clients / Team / Admins).
//
// Активный вид не хранится: он вычисляется из фильтров проверкой
// конкретных видов сверху вниз, All — запасной вариант в конце списка.
package filters

import "github.com/arturkryukov/artstore/workstation/internal/domain/model"

// ViewName — имя сохранённого вида.
type ViewName string

// Сохранённые виды.
const (
	ViewAll     ViewName = "all"
	ViewClients ViewName = "clients"
	ViewTeam    ViewName = "team"
	ViewAdmins  ViewName = "admins"
)

// Patch — частичное обновление фильтров. nil-поле отсутствует в патче.
type Patch struct {
	Search     *string
	Role       *string
	Status     *string
	Department *string
	DateRange  *DateRange
}

// SavedView — именованный пресет фильтров.
type SavedView struct {
	Name  ViewName
	Label string
	Patch Patch
}

// Каталог видов. Вид all задаёт все поля, поэтому его применение
// всегда даёт канонические значения по умолчанию.
var (
	allView = SavedView{
		Name:  ViewAll,
		Label: "All",
		Patch: Patch{
			Search:     ptr(""),
			Role:       ptr(""),
			Status:     ptr(""),
			Department: ptr(""),
			DateRange:  ptr(DateRangeAll),
		},
	}
	clientsView = SavedView{Name: ViewClients, Label: "Clients", Patch: Patch{Role: ptr(model.RoleClient)}}
	teamView    = SavedView{Name: ViewTeam, Label: "Team", Patch: Patch{Role: ptr(model.RoleTeam)}}
	adminsView  = SavedView{Name: ViewAdmins, Label: "Admins", Patch: Patch{Role: ptr(model.RoleAdmin)}}
)

// precedence — порядок проверки активного вида; All не входит, это fallback.
var precedence = []SavedView{clientsView, teamView, adminsView}

// Views возвращает виды в порядке отображения: All, Clients, Team, Admins.
func Views() []SavedView {
	return []SavedView{allView, clientsView, teamView, adminsView}
}

// AllView возвращает вид All.
func AllView() SavedView {
	return allView
}

// ViewByName ищет вид по имени.
func ViewByName(name string) (SavedView, bool) {
	for _, v := range Views() {
		if string(v.Name) == name {
			return v, true
		}
	}
	return SavedView{}, false
}

// ApplyView возвращает {...current, ...view.Patch}. current не изменяется:
// UserFilters передаётся по значению.
func ApplyView(current UserFilters, view SavedView) UserFilters {
	next := current
	p := view.Patch
	if p.Search != nil {
		next.Search = *p.Search
	}
	if p.Role != nil {
		next.Role = *p.Role
	}
	if p.Status != nil {
		next.Status = *p.Status
	}
	if p.Department != nil {
		next.Department = *p.Department
	}
	if p.DateRange != nil {
		next.DateRange = *p.DateRange
	}
	return next
}

// IsViewActive сообщает, активен ли вид для фильтров.
// Search и Department не участвуют в сравнении.
// All активен, только если не активен ни один конкретный вид.
func IsViewActive(f UserFilters, view SavedView) bool {
	if view.Name == ViewAll {
		for _, v := range precedence {
			if patchMatches(f, v.Patch) {
				return false
			}
		}
		return true
	}
	return patchMatches(f, view.Patch)
}

// ActiveView возвращает единственный активный вид для фильтров.
func ActiveView(f UserFilters) SavedView {
	for _, v := range precedence {
		if patchMatches(f, v.Patch) {
			return v
		}
	}
	return allView
}

// patchMatches сравнивает поля role/status/dateRange, присутствующие в патче.
func patchMatches(f UserFilters, p Patch) bool {
	if p.Role != nil && f.Role != *p.Role {
		return false
	}
	if p.Status != nil && f.Status != *p.Status {
		return false
	}
	if p.DateRange != nil && f.DateRange != *p.DateRange {
		return false
	}
	return true
}

func ptr[T any](v T) *T {
	return &v
}

// types.go — модели ответов API и маппинг доменных моделей.
package handlers

import (
	"time"

	"github.com/arturkryukov/artstore/workstation/internal/domain/filters"
	"github.com/arturkryukov/artstore/workstation/internal/domain/metrics"
	"github.com/arturkryukov/artstore/workstation/internal/domain/model"
	"github.com/arturkryukov/artstore/workstation/internal/service"
)

// User — пользователь каталога.
type User struct {
	ID         string    `json:"id"`
	Username   string    `json:"username"`
	Email      string    `json:"email"`
	FirstName  string    `json:"firstName"`
	LastName   string    `json:"lastName"`
	Role       string    `json:"role"`
	Status     string    `json:"status"`
	Department string    `json:"department"`
	Source     string    `json:"source"`
	CreatedAt  time.Time `json:"createdAt"`
}

// ViewState — сохранённый вид.
type ViewState struct {
	Name   string `json:"name"`
	Label  string `json:"label"`
	Active bool   `json:"active"`
	Count  int    `json:"count"`
}

// ViewListResponse — ответ GET /workstation/views.
type ViewListResponse struct {
	Items []ViewState `json:"items"`
}

// SnapshotResponse — снимок рабочего места; Users — страница.
type SnapshotResponse struct {
	Owner      string                 `json:"owner"`
	Filters    filters.UserFilters    `json:"filters"`
	ActiveView string                 `json:"activeView"`
	Views      []ViewState            `json:"views"`
	Stats      metrics.QuickStatsData `json:"stats"`
	Directory  metrics.DirectoryStats `json:"directory"`
	Users      []User                 `json:"users"`
	Total      int                    `json:"total"`
	Limit      int                    `json:"limit"`
	Offset     int                    `json:"offset"`
	Seq        uint64                 `json:"seq"`
	Stale      bool                   `json:"stale"`
}

// QueryResponse — ответ GET /workstation/users.
type QueryResponse struct {
	Filters filters.UserFilters    `json:"filters"`
	Users   []User                 `json:"users"`
	Total   int                    `json:"total"`
	Limit   int                    `json:"limit"`
	Offset  int                    `json:"offset"`
	Stats   metrics.QuickStatsData `json:"stats"`
}

// ImportResponse — результат импорта; ключ errors — номер строки листа.
type ImportResponse struct {
	Rows     int            `json:"rows"`
	Imported int            `json:"imported"`
	Errors   map[int]string `json:"errors"`
}

// SyncResponse — результат синхронизации каталога.
type SyncResponse struct {
	TotalKeycloak int       `json:"totalKeycloak"`
	Upserted      int       `json:"upserted"`
	Removed       int       `json:"removed"`
	Failed        int       `json:"failed"`
	StartedAt     time.Time `json:"startedAt"`
	CompletedAt   time.Time `json:"completedAt"`
}

func mapUser(u *model.User) User {
	return User{
		ID:         u.ID,
		Username:   u.Username,
		Email:      u.Email,
		FirstName:  u.FirstName,
		LastName:   u.LastName,
		Role:       u.Role,
		Status:     u.Status,
		Department: u.Department,
		Source:     u.Source,
		CreatedAt:  u.CreatedAt,
	}
}

func mapUsers(users []model.User) []User {
	items := make([]User, len(users))
	for i := range users {
		items[i] = mapUser(&users[i])
	}
	return items
}

func mapViews(views []service.ViewState) []ViewState {
	items := make([]ViewState, len(views))
	for i, v := range views {
		items[i] = ViewState{Name: string(v.Name), Label: v.Label, Active: v.Active, Count: v.Count}
	}
	return items
}

func mapSnapshot(s *service.Snapshot, limit, offset int) SnapshotResponse {
	return SnapshotResponse{
		Owner:      s.Owner,
		Filters:    s.Filters,
		ActiveView: string(s.ActiveView),
		Views:      mapViews(s.Views),
		Stats:      s.Stats,
		Directory:  s.Directory,
		Users:      mapUsers(service.Page(s.Users, limit, offset)),
		Total:      len(s.Users),
		Limit:      limit,
		Offset:     offset,
		Seq:        s.Seq,
		Stale:      s.Stale,
	}
}

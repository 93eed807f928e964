// Пакет metrics — производные показатели для карточек рабочего места.
// ComputeStats — чистая функция коллекции пользователей, без ошибок.
package metrics

import (
	"time"

	"github.com/arturkryukov/artstore/workstation/internal/domain/model"
)

// QuickStatsData — показатели карточек. Создаётся заново при каждом вызове.
type QuickStatsData struct {
	TotalUsers int `json:"totalUsers"`
	// ActiveUsers совпадает с InProgressWorkflows: оба считают status == ACTIVE
	ActiveUsers int `json:"activeUsers"`
	// PendingApprovals — пользователи со статусом INACTIVE
	PendingApprovals    int `json:"pendingApprovals"`
	InProgressWorkflows int `json:"inProgressWorkflows"`
	// DueThisWeek — в каталоге нет сроков, всегда 0
	DueThisWeek int       `json:"dueThisWeek"`
	RefreshedAt time.Time `json:"refreshedAt"`
}

// DirectoryStats — разбивка каталога по ролям.
type DirectoryStats struct {
	Total   int `json:"total"`
	Clients int `json:"clients"`
	Team    int `json:"team"`
	Admins  int `json:"admins"`
}

// ComputeStats считает показатели с текущим временем в RefreshedAt.
// nil и пустая коллекция дают нули.
func ComputeStats(users []model.User) QuickStatsData {
	return ComputeStatsAt(users, time.Now().UTC())
}

// ComputeStatsAt — ComputeStats с явными часами.
// Записи с другим или пустым статусом учитываются только в TotalUsers.
func ComputeStatsAt(users []model.User, now time.Time) QuickStatsData {
	var active, inactive int
	for i := range users {
		switch users[i].Status {
		case model.StatusActive:
			active++
		case model.StatusInactive:
			inactive++
		}
	}

	return QuickStatsData{
		TotalUsers:          len(users),
		ActiveUsers:         active,
		PendingApprovals:    inactive,
		InProgressWorkflows: active,
		DueThisWeek:         0,
		RefreshedAt:         now,
	}
}

// ComputeDirectoryStats считает пользователей по ролям.
func ComputeDirectoryStats(users []model.User) DirectoryStats {
	ds := DirectoryStats{Total: len(users)}
	for i := range users {
		switch users[i].Role {
		case model.RoleClient:
			ds.Clients++
		case model.RoleTeam:
			ds.Team++
		case model.RoleAdmin:
			ds.Admins++
		}
	}
	return ds
}

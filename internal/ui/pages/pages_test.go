package pages

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/arturkryukov/artstore/workstation/internal/domain/filters"
	"github.com/arturkryukov/artstore/workstation/internal/domain/metrics"
	"github.com/arturkryukov/artstore/workstation/internal/domain/model"
	"github.com/arturkryukov/artstore/workstation/internal/ui/i18n"
)

func render(t *testing.T, lang string, data WorkstationData) string {
	t.Helper()
	b, err := i18n.Load(slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatal(err)
	}
	var out bytes.Buffer
	if err := Workstation(data).Render(i18n.WithLang(context.Background(), b, lang), &out); err != nil {
		t.Fatalf("Render: %v", err)
	}
	return out.String()
}

func sampleData() WorkstationData {
	created := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	f := filters.ApplyView(filters.ResetFilters(), filters.Views()[1])
	return WorkstationData{
		Owner:   "alice",
		Filters: f,
		Views: []ViewButton{
			{Name: filters.ViewAll, Count: 3},
			{Name: filters.ViewClients, Count: 2, Active: true},
			{Name: filters.ViewTeam, Count: 1},
			{Name: filters.ViewAdmins, Count: 0},
		},
		Stats:     metrics.QuickStatsData{TotalUsers: 2, ActiveUsers: 1, PendingApprovals: 1, InProgressWorkflows: 1, RefreshedAt: created},
		Directory: metrics.DirectoryStats{Total: 3, Clients: 2, Team: 1},
		Users: []model.User{
			{ID: "1", Username: "c1", FirstName: "Carl", LastName: "One", Role: model.RoleClient, Status: model.StatusActive, CreatedAt: created},
			{ID: "2", Username: "c2", Role: model.RoleClient, Status: model.StatusInactive, CreatedAt: created},
		},
		Total: 2,
		Page:  1,
		Pages: 1,
	}
}

func TestWorkstation_Structure(t *testing.T) {
	out := render(t, "en", sampleData())

	for _, want := range []string{
		`class="workstation-container"`,
		`<aside class="workstation-sidebar" data-testid="workstation-sidebar"`,
		`<main class="workstation-main-content"`,
		`<aside class="workstation-insights-panel"`,
		`data-testid="quick-stats-section"`,
		`data-testid="stats-container"`,
		`data-testid="filters-section"`,
		`data-testid="sidebar-footer"`,
		`data-testid="sidebar-close-btn"`,
		`aria-label="Quick Actions"`,
		`aria-label="User Metrics"`,
		`aria-label="User Directory"`,
		`aria-label="Pagination"`,
		`aria-label="Add new user"`,
		`aria-label="Import users"`,
		`aria-label="Bulk operations"`,
		`aria-label="Export user list"`,
		`aria-label="Refresh user list"`,
		`aria-label="Reset all filters"`,
		`aria-label="Previous page"`,
		`aria-label="Next page"`,
		"Loading user directory...",
		"2 users",
		"Signed in as alice",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("в разметке нет %q", want)
		}
	}

	if n := strings.Count(out, `class="metric-card"`); n != 4 {
		t.Errorf("карточек показателей %d, ожидалось 4", n)
	}
	if n := strings.Count(out, "<aside"); n < 2 {
		t.Errorf("элементов aside %d, ожидалось не меньше 2", n)
	}
}

func TestWorkstation_ViewButtons(t *testing.T) {
	out := render(t, "en", sampleData())

	if !strings.Contains(out, `class="view-btn active" data-testid="view-btn-clients" aria-pressed="true"`) {
		t.Error("кнопка clients должна быть активной")
	}
	if !strings.Contains(out, `class="view-btn" data-testid="view-btn-all" aria-pressed="false"`) {
		t.Error("кнопка all не должна быть активной")
	}
	if strings.Count(out, "view-btn active") != 1 {
		t.Error("активной должна быть ровно одна кнопка")
	}
	if !strings.Contains(out, `<span class="view-label">Clients</span><span class="view-count">2</span>`) {
		t.Error("кнопка clients должна показывать количество")
	}
}

func TestWorkstation_StatsText(t *testing.T) {
	out := render(t, "en", sampleData())
	for _, want := range []string{
		`<span>Total Users</span>: <span data-stat="totalUsers">2</span>`,
		`<span>Pending Approvals</span>: <span data-stat="pendingApprovals">1</span>`,
		`<span>In Progress</span>: <span data-stat="inProgressWorkflows">1</span>`,
		`<p class="metric-value" data-stat="dueThisWeek">0</p>`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("нет показателя %q", want)
		}
	}
}

func TestWorkstation_Pagination(t *testing.T) {
	data := sampleData()
	out := render(t, "en", data)
	if !strings.Contains(out, `aria-label="Previous page" disabled`) || !strings.Contains(out, `aria-label="Next page" disabled`) {
		t.Error("на единственной странице обе кнопки должны быть отключены")
	}

	data.Page, data.Pages = 2, 3
	out = render(t, "en", data)
	if strings.Contains(out, "disabled") {
		t.Error("на средней странице кнопки не отключаются")
	}
	if !strings.Contains(out, "Page 2 of 3") {
		t.Error("нет номера страницы")
	}
}

func TestWorkstation_EmptyAndBanners(t *testing.T) {
	data := sampleData()
	data.Users, data.Total = nil, 0
	data.Stale = true
	data.Notice = "Imported 1 of 1 rows."
	out := render(t, "en", data)

	for _, want := range []string{"No users found", "0 users", `data-testid="stale-banner"`, "Imported 1 of 1 rows."} {
		if !strings.Contains(out, want) {
			t.Errorf("нет %q", want)
		}
	}

	data.Unavailable = true
	out = render(t, "en", data)
	if !strings.Contains(out, `data-testid="directory-unavailable"`) || strings.Contains(out, `data-testid="stale-banner"`) {
		t.Error("при недоступном каталоге показывается только баннер недоступности")
	}
}

func TestWorkstation_EscapesInput(t *testing.T) {
	data := sampleData()
	data.Filters.Search = `"><script>alert(1)</script>`
	data.Users[0].Department = "<b>R&D</b>"
	out := render(t, "en", data)

	if strings.Contains(out, "<script>alert") || strings.Contains(out, "<b>R&D</b>") {
		t.Error("пользовательские данные должны экранироваться")
	}
	if !strings.Contains(out, "&lt;b&gt;R&amp;D&lt;/b&gt;") {
		t.Error("нет экранированного отдела")
	}
}

func TestWorkstation_Russian(t *testing.T) {
	out := render(t, "ru", sampleData())
	if !strings.Contains(out, `<html lang="ru">`) {
		t.Error("нет атрибута lang=ru")
	}
	if !strings.Contains(out, "Всего пользователей") || !strings.Contains(out, "Пользователей: 2") {
		t.Error("нет русских подписей")
	}
}

func TestWorkstation_Attributes(t *testing.T) {
	out := render(t, "ru", sampleData())

	for _, want := range []string{
		`<span class="status status-ACTIVE">`,
		`<span class="status status-INACTIVE">`,
		`<option value="CLIENT" selected>`,
		`<button type="submit" name="lang" value="ru" aria-current="true">`,
		`<button type="submit" name="lang" value="en">`,
		`<form method="post" class="inline-form" action="/admin/workstation/views/clients">`,
		`<time datetime="2026-02-01T09:00:00Z">2026-02-01 09:00:00 UTC</time>`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("в разметке нет %q", want)
		}
	}
	if n := strings.Count(out, " selected>"); n != 3 {
		t.Errorf("выбранных значений %d, ожидалось по одному на список", n)
	}
}

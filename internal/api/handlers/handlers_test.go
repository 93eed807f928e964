package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/xuri/excelize/v2"

	"github.com/arturkryukov/artstore/workstation/internal/api/middleware"
	"github.com/arturkryukov/artstore/workstation/internal/domain/filters"
	"github.com/arturkryukov/artstore/workstation/internal/domain/metrics"
	"github.com/arturkryukov/artstore/workstation/internal/domain/model"
	"github.com/arturkryukov/artstore/workstation/internal/repository"
	"github.com/arturkryukov/artstore/workstation/internal/service"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// memSource — каталог в памяти.
type memSource struct {
	mu    sync.Mutex
	users []model.User
	err   error
}

func (m *memSource) List(_ context.Context, f filters.UserFilters, now time.Time, limit, offset int) ([]model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	return service.Page(filters.Filter(f, m.users, now), limit, offset), nil
}

func (m *memSource) Count(_ context.Context, f filters.UserFilters, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return 0, m.err
	}
	return len(filters.Filter(f, m.users, now)), nil
}

func (m *memSource) Upsert(_ context.Context, u *model.User) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.users {
		if m.users[i].ID == u.ID {
			m.users[i] = *u
			return false, nil
		}
	}
	m.users = append(m.users, *u)
	return true, nil
}

func (m *memSource) setErr(err error) {
	m.mu.Lock()
	m.err = err
	m.mu.Unlock()
}

// memFilterStore — хранилище фильтров в памяти.
type memFilterStore struct {
	mu    sync.Mutex
	saved map[string]filters.UserFilters
}

func (m *memFilterStore) Get(_ context.Context, owner string) (filters.UserFilters, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.saved[owner]
	if !ok {
		return filters.UserFilters{}, repository.ErrNotFound
	}
	return f, nil
}

func (m *memFilterStore) Save(_ context.Context, owner string, f filters.UserFilters) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved[owner] = f
	return nil
}

type fakeSyncer struct {
	result *model.DirectorySyncResult
	err    error
	calls  int
}

func (f *fakeSyncer) SyncNow(context.Context) (*model.DirectorySyncResult, error) {
	f.calls++
	return f.result, f.err
}

type testEnv struct {
	router http.Handler
	source *memSource
	store  *memFilterStore
	syncer *fakeSyncer
}

// withRole подставляет claims с заданной ролью.
func withRole(user, role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := &middleware.AuthClaims{Subject: user, PreferredUsername: user, Role: role}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), middleware.ContextKeyClaims, claims)))
		})
	}
}

func newTestEnv(t *testing.T, role string) *testEnv {
	t.Helper()
	now := time.Now().UTC()
	src := &memSource{users: []model.User{
		{ID: "1", Username: "client1", Role: model.RoleClient, Status: model.StatusActive, Source: model.SourceKeycloak, CreatedAt: now.Add(-time.Hour)},
		{ID: "2", Username: "client2", Role: model.RoleClient, Status: model.StatusInactive, Source: model.SourceKeycloak, CreatedAt: now.Add(-10 * 24 * time.Hour)},
		{ID: "3", Username: "team1", Role: model.RoleTeam, Status: model.StatusActive, Source: model.SourceKeycloak, CreatedAt: now.Add(-40 * 24 * time.Hour)},
		{ID: "4", Username: "admin1", Role: model.RoleAdmin, Status: model.StatusActive, Source: model.SourceKeycloak, CreatedAt: now.Add(-2 * time.Hour)},
	}}
	store := &memFilterStore{saved: make(map[string]filters.UserFilters)}
	syncer := &fakeSyncer{result: &model.DirectorySyncResult{TotalKeycloak: 4, Upserted: 4}}

	ws := service.NewWorkstationService(src, store, metrics.NewAggregator(16, time.Minute), 1000, time.Second, testLogger())
	inTx := func(ctx context.Context, fn func(service.UserWriter) error) error { return fn(src) }
	transfer := service.NewTransferService(src, inTx, 100, ws.Invalidate, testLogger())
	h := NewAPIHandler(NewHealthHandler(nil, nil, nil), ws, transfer, syncer, testLogger())

	r := chi.NewRouter()
	r.Use(withRole("alice", role))
	HandlerFromMux(h, r)

	return &testEnv{router: r, source: src, store: store, syncer: syncer}
}

func (e *testEnv) do(t *testing.T, method, target string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("некорректный JSON: %v, тело: %s", err, rec.Body.String())
	}
	return v
}

func TestGetWorkstation(t *testing.T) {
	env := newTestEnv(t, model.RoleTeam)

	rec := env.do(t, http.MethodGet, "/api/v1/workstation?limit=2&offset=1", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("статус = %d, тело: %s", rec.Code, rec.Body.String())
	}
	snap := decode[SnapshotResponse](t, rec)

	if snap.Owner != "alice" {
		t.Errorf("owner = %q, ожидался alice", snap.Owner)
	}
	if snap.ActiveView != "all" {
		t.Errorf("activeView = %q, ожидался all", snap.ActiveView)
	}
	if snap.Total != 4 || len(snap.Users) != 2 || snap.Limit != 2 || snap.Offset != 1 {
		t.Errorf("total=%d users=%d limit=%d offset=%d", snap.Total, len(snap.Users), snap.Limit, snap.Offset)
	}
	if snap.Stats.TotalUsers != 4 || snap.Stats.PendingApprovals != 1 || snap.Stats.InProgressWorkflows != 3 || snap.Stats.ActiveUsers != 3 {
		t.Errorf("stats = %+v", snap.Stats)
	}
	if len(snap.Views) != 4 {
		t.Fatalf("views = %d, ожидалось 4", len(snap.Views))
	}
	counts := map[string]int{}
	for _, v := range snap.Views {
		counts[v.Name] = v.Count
	}
	if counts["all"] != 4 || counts["clients"] != 2 || counts["team"] != 1 || counts["admins"] != 1 {
		t.Errorf("счётчики видов = %v", counts)
	}
}

func TestApplyViewAndReset(t *testing.T) {
	env := newTestEnv(t, model.RoleTeam)

	rec := env.do(t, http.MethodPost, "/api/v1/workstation/views/clients/apply", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("статус = %d, тело: %s", rec.Code, rec.Body.String())
	}
	snap := decode[SnapshotResponse](t, rec)
	if snap.ActiveView != "clients" || snap.Filters.Role != model.RoleClient {
		t.Errorf("activeView = %q, role = %q", snap.ActiveView, snap.Filters.Role)
	}
	if snap.Stats.TotalUsers != 2 || snap.Stats.PendingApprovals != 1 || snap.Stats.InProgressWorkflows != 1 {
		t.Errorf("stats = %+v", snap.Stats)
	}
	if saved := env.store.saved["alice"]; saved.Role != model.RoleClient {
		t.Errorf("сохранённые фильтры = %+v", saved)
	}

	rec = env.do(t, http.MethodPost, "/api/v1/workstation/views/owners/apply", nil, "")
	if rec.Code != http.StatusBadRequest || !strings.Contains(rec.Body.String(), "UNKNOWN_VIEW") {
		t.Errorf("неизвестный вид: статус = %d, тело: %s", rec.Code, rec.Body.String())
	}

	rec = env.do(t, http.MethodPost, "/api/v1/workstation/filters/reset", nil, "")
	snap = decode[SnapshotResponse](t, rec)
	if !snap.Filters.IsDefault() || snap.ActiveView != "all" || snap.Stats.TotalUsers != 4 {
		t.Errorf("после сброса: filters = %+v, activeView = %q", snap.Filters, snap.ActiveView)
	}
}

func TestUpdateFilters(t *testing.T) {
	env := newTestEnv(t, model.RoleAdmin)

	rec := env.do(t, http.MethodPut, "/api/v1/workstation/filters",
		strings.NewReader(`{"search":"client","status":"inactive","dateRange":"month"}`), "application/json")
	if rec.Code != http.StatusOK {
		t.Fatalf("статус = %d, тело: %s", rec.Code, rec.Body.String())
	}
	snap := decode[SnapshotResponse](t, rec)
	if snap.Filters.Status != model.StatusInactive {
		t.Errorf("status не нормализован: %q", snap.Filters.Status)
	}
	if snap.Stats.TotalUsers != 1 {
		t.Errorf("totalUsers = %d, ожидался 1", snap.Stats.TotalUsers)
	}

	rec = env.do(t, http.MethodGet, "/api/v1/workstation/filters", nil, "")
	f := decode[filters.UserFilters](t, rec)
	if f.Search != "client" || f.DateRange != filters.DateRangeMonth {
		t.Errorf("GET filters = %+v", f)
	}

	rec = env.do(t, http.MethodPut, "/api/v1/workstation/filters", strings.NewReader(`{"role":"OWNER"}`), "application/json")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("недопустимая роль: статус = %d", rec.Code)
	}

	rec = env.do(t, http.MethodPut, "/api/v1/workstation/filters", strings.NewReader(`{`), "application/json")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("битый JSON: статус = %d", rec.Code)
	}
}

func TestQueryUsers(t *testing.T) {
	env := newTestEnv(t, model.RoleTeam)

	rec := env.do(t, http.MethodGet, "/api/v1/workstation/users?role=client&dateRange=week&limit=1", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("статус = %d, тело: %s", rec.Code, rec.Body.String())
	}
	res := decode[QueryResponse](t, rec)
	if res.Total != 1 || len(res.Users) != 1 || res.Users[0].Username != "client1" {
		t.Errorf("результат = %+v", res)
	}

	// Разовый запрос не меняет сохранённые фильтры.
	if _, ok := env.store.saved["alice"]; ok {
		t.Error("разовый запрос сохранил фильтры")
	}

	rec = env.do(t, http.MethodGet, "/api/v1/workstation/users?dateRange=year", nil, "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("недопустимый dateRange: статус = %d", rec.Code)
	}

	rec = env.do(t, http.MethodGet, "/api/v1/workstation/users?limit=x", nil, "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("limit=x: статус = %d", rec.Code)
	}
}

func TestRefreshFailureKeepsStats(t *testing.T) {
	env := newTestEnv(t, model.RoleTeam)

	rec := env.do(t, http.MethodGet, "/api/v1/workstation/stats", nil, "")
	before := decode[metrics.QuickStatsData](t, rec)

	env.source.setErr(errors.New("connection reset"))
	rec = env.do(t, http.MethodPost, "/api/v1/workstation/refresh", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("статус = %d, тело: %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("X-Workstation-Stale") != "true" {
		t.Error("нет заголовка X-Workstation-Stale")
	}
	snap := decode[SnapshotResponse](t, rec)
	if !snap.Stale || snap.Stats.TotalUsers != before.TotalUsers {
		t.Errorf("stale = %v, stats = %+v, ожидались прежние %+v", snap.Stale, snap.Stats, before)
	}
}

func TestApplyViewFailureKeepsFilters(t *testing.T) {
	env := newTestEnv(t, model.RoleTeam)
	env.do(t, http.MethodGet, "/api/v1/workstation", nil, "")

	env.source.setErr(errors.New("connection reset"))
	rec := env.do(t, http.MethodPost, "/api/v1/workstation/views/clients/apply", nil, "")
	if rec.Code != http.StatusOK || rec.Header().Get("X-Workstation-Stale") != "true" {
		t.Fatalf("статус = %d, stale = %q", rec.Code, rec.Header().Get("X-Workstation-Stale"))
	}
	snap := decode[SnapshotResponse](t, rec)
	if snap.ActiveView != string(filters.ViewAll) || snap.Filters.Role != "" {
		t.Errorf("activeView = %s, role = %q, ожидались прежние фильтры", snap.ActiveView, snap.Filters.Role)
	}
	if _, ok := env.store.saved["alice"]; ok {
		t.Error("фильтры неудачного действия сохранены")
	}

	// После восстановления каталога вид clients не появляется сам собой.
	env.source.setErr(nil)
	rec = env.do(t, http.MethodPost, "/api/v1/workstation/refresh", nil, "")
	snap = decode[SnapshotResponse](t, rec)
	if snap.Stale || snap.ActiveView != string(filters.ViewAll) {
		t.Errorf("stale = %v, activeView = %s, ожидался all", snap.Stale, snap.ActiveView)
	}
}

func TestRefreshFailureWithoutSnapshot(t *testing.T) {
	env := newTestEnv(t, model.RoleTeam)
	env.source.setErr(errors.New("connection refused"))

	rec := env.do(t, http.MethodGet, "/api/v1/workstation", nil, "")
	if rec.Code != http.StatusBadGateway || !strings.Contains(rec.Body.String(), "DIRECTORY_UNAVAILABLE") {
		t.Errorf("статус = %d, тело: %s", rec.Code, rec.Body.String())
	}
}

func TestRoleChecks(t *testing.T) {
	tests := []struct {
		name       string
		role       string
		method     string
		target     string
		wantStatus int
	}{
		{"CLIENT не видит рабочее место", model.RoleClient, http.MethodGet, "/api/v1/workstation", http.StatusForbidden},
		{"TEAM не синхронизирует", model.RoleTeam, http.MethodPost, "/api/v1/directory/sync", http.StatusForbidden},
		{"TEAM не импортирует", model.RoleTeam, http.MethodPost, "/api/v1/workstation/import", http.StatusForbidden},
		{"ADMIN синхронизирует", model.RoleAdmin, http.MethodPost, "/api/v1/directory/sync", http.StatusOK},
		{"контракт доступен всем", model.RoleClient, http.MethodGet, "/api/v1/openapi.yaml", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, tt.role)
			rec := env.do(t, tt.method, tt.target, nil, "")
			if rec.Code != tt.wantStatus {
				t.Errorf("статус = %d, ожидался %d, тело: %s", rec.Code, tt.wantStatus, rec.Body.String())
			}
		})
	}
}

func TestExportImport(t *testing.T) {
	env := newTestEnv(t, model.RoleAdmin)

	env.do(t, http.MethodPost, "/api/v1/workstation/views/clients/apply", nil, "")
	rec := env.do(t, http.MethodGet, "/api/v1/workstation/export", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("export: статус = %d, тело: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Header().Get("Content-Disposition"), "users-") {
		t.Errorf("Content-Disposition = %q", rec.Header().Get("Content-Disposition"))
	}

	book, err := excelize.OpenReader(bytes.NewReader(rec.Body.Bytes()))
	if err != nil {
		t.Fatalf("ответ не является XLSX: %v", err)
	}
	rows, err := book.GetRows("Users")
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 3 {
		t.Errorf("строк = %d, ожидалось 3 (заголовок + 2 клиента)", len(rows))
	}
	_ = book.Close()

	upload := excelize.NewFile()
	_ = upload.SetSheetName("Sheet1", "Users")
	_ = upload.SetSheetRow("Users", "A1", &[]any{"username", "role", "status"})
	_ = upload.SetSheetRow("Users", "A2", &[]any{"newbie", "CLIENT", "INACTIVE"})
	_ = upload.SetSheetRow("Users", "A3", &[]any{"broken", "OWNER", "ACTIVE"})
	var buf bytes.Buffer
	if err := upload.Write(&buf); err != nil {
		t.Fatal(err)
	}
	_ = upload.Close()

	rec = env.do(t, http.MethodPost, "/api/v1/workstation/import", &buf, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	if rec.Code != http.StatusOK {
		t.Fatalf("import: статус = %d, тело: %s", rec.Code, rec.Body.String())
	}
	res := decode[ImportResponse](t, rec)
	if res.Rows != 2 || res.Imported != 1 || res.Errors[3] == "" {
		t.Errorf("результат импорта = %+v", res)
	}

	// Импорт помечает снимки устаревшими: следующий запрос видит нового пользователя.
	rec = env.do(t, http.MethodGet, "/api/v1/workstation/stats", nil, "")
	st := decode[metrics.QuickStatsData](t, rec)
	if st.TotalUsers != 3 || st.PendingApprovals != 2 {
		t.Errorf("stats после импорта = %+v", st)
	}
}

func TestSyncDirectory(t *testing.T) {
	env := newTestEnv(t, model.RoleAdmin)

	rec := env.do(t, http.MethodPost, "/api/v1/directory/sync", nil, "")
	res := decode[SyncResponse](t, rec)
	if res.TotalKeycloak != 4 || env.syncer.calls != 1 {
		t.Errorf("результат = %+v, вызовов %d", res, env.syncer.calls)
	}

	env.syncer.err = service.ErrIDPUnavailable
	rec = env.do(t, http.MethodPost, "/api/v1/directory/sync", nil, "")
	if rec.Code != http.StatusBadGateway || !strings.Contains(rec.Body.String(), "IDP_UNAVAILABLE") {
		t.Errorf("статус = %d, тело: %s", rec.Code, rec.Body.String())
	}
}

func TestPaginationDefaults(t *testing.T) {
	intPtr := func(v int) *int { return &v }
	tests := []struct {
		name       string
		limit      *int
		offset     *int
		wantLimit  int
		wantOffset int
	}{
		{"по умолчанию", nil, nil, 100, 0},
		{"limit меньше 1", intPtr(0), nil, 1, 0},
		{"limit больше 1000", intPtr(5000), nil, 1000, 0},
		{"отрицательный offset", intPtr(10), intPtr(-5), 10, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, o := paginationDefaults(tt.limit, tt.offset)
			if l != tt.wantLimit || o != tt.wantOffset {
				t.Errorf("paginationDefaults() = (%d, %d), ожидалось (%d, %d)", l, o, tt.wantLimit, tt.wantOffset)
			}
		})
	}
}

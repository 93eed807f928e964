package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/arturkryukov/artstore/workstation/internal/domain/filters"
	"github.com/arturkryukov/artstore/workstation/internal/domain/metrics"
	"github.com/arturkryukov/artstore/workstation/internal/domain/model"
	"github.com/arturkryukov/artstore/workstation/internal/repository"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// memorySource — каталог в памяти, фильтрация через filters.Filter.
type memorySource struct {
	mu      sync.Mutex
	users   []model.User
	listErr error
	// onList вызывается перед ответом List (номер вызова с 1)
	onList func(call int)
	calls  int
}

func (m *memorySource) List(_ context.Context, f filters.UserFilters, now time.Time, limit, offset int) ([]model.User, error) {
	m.mu.Lock()
	m.calls++
	call := m.calls
	hook := m.onList
	err := m.listErr
	users := append([]model.User(nil), m.users...)
	m.mu.Unlock()

	if hook != nil {
		hook(call)
	}
	if err != nil {
		return nil, err
	}
	return Page(filters.Filter(f, users, now), limit, offset), nil
}

func (m *memorySource) Count(_ context.Context, f filters.UserFilters, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(filters.Filter(f, m.users, now)), nil
}

func (m *memorySource) setUsers(users []model.User) {
	m.mu.Lock()
	m.users = users
	m.mu.Unlock()
}

// memoryStore — хранилище фильтров в памяти.
type memoryStore struct {
	mu    sync.Mutex
	saved map[string]filters.UserFilters
}

func newMemoryStore() *memoryStore {
	return &memoryStore{saved: make(map[string]filters.UserFilters)}
}

func (m *memoryStore) Get(_ context.Context, owner string) (filters.UserFilters, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.saved[owner]
	if !ok {
		return filters.UserFilters{}, repository.ErrNotFound
	}
	return f, nil
}

func (m *memoryStore) Save(_ context.Context, owner string, f filters.UserFilters) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved[owner] = f
	return nil
}

func sampleUsers(now time.Time) []model.User {
	return []model.User{
		{ID: "1", Username: "client1", Role: model.RoleClient, Status: model.StatusActive, CreatedAt: now.Add(-time.Hour)},
		{ID: "2", Username: "client2", Role: model.RoleClient, Status: model.StatusInactive, CreatedAt: now.Add(-10 * 24 * time.Hour)},
		{ID: "3", Username: "team1", Role: model.RoleTeam, Status: model.StatusActive, CreatedAt: now.Add(-40 * 24 * time.Hour)},
		{ID: "4", Username: "admin1", Role: model.RoleAdmin, Status: model.StatusActive, CreatedAt: now.Add(-2 * time.Hour)},
	}
}

func newTestWorkstation(src UserSource, store FilterStore) *WorkstationService {
	return NewWorkstationService(src, store, metrics.NewAggregator(16, time.Minute), 1000, time.Second, testLogger())
}

func TestWorkstation_CurrentDefaults(t *testing.T) {
	src := &memorySource{users: sampleUsers(time.Now().UTC())}
	ws := newTestWorkstation(src, newMemoryStore())

	snap, err := ws.Current(context.Background(), "admin")
	if err != nil {
		t.Fatalf("Current() ошибка: %v", err)
	}
	if !snap.Filters.IsDefault() {
		t.Errorf("Filters = %+v, хотели значения по умолчанию", snap.Filters)
	}
	if snap.ActiveView != filters.ViewAll {
		t.Errorf("ActiveView = %s, хотели all", snap.ActiveView)
	}
	if snap.Stats.TotalUsers != 4 || snap.Stats.PendingApprovals != 1 || snap.Stats.InProgressWorkflows != 3 {
		t.Errorf("Stats = %+v", snap.Stats)
	}
	if snap.Directory.Clients != 2 || snap.Directory.Team != 1 || snap.Directory.Admins != 1 {
		t.Errorf("Directory = %+v", snap.Directory)
	}

	wantCounts := map[filters.ViewName]int{
		filters.ViewAll: 4, filters.ViewClients: 2, filters.ViewTeam: 1, filters.ViewAdmins: 1,
	}
	active := 0
	for _, v := range snap.Views {
		if v.Count != wantCounts[v.Name] {
			t.Errorf("вид %s: Count = %d, хотели %d", v.Name, v.Count, wantCounts[v.Name])
		}
		if v.Active {
			active++
		}
	}
	if active != 1 {
		t.Errorf("активных видов %d, хотели 1", active)
	}

	// Повторный Current берёт снимок из памяти.
	again, err := ws.Current(context.Background(), "admin")
	if err != nil {
		t.Fatalf("повторный Current() ошибка: %v", err)
	}
	if again.Seq != snap.Seq {
		t.Errorf("Seq = %d, хотели %d (без обновления)", again.Seq, snap.Seq)
	}
}

func TestWorkstation_ApplyViewAndReset(t *testing.T) {
	src := &memorySource{users: sampleUsers(time.Now().UTC())}
	store := newMemoryStore()
	ws := newTestWorkstation(src, store)
	ctx := context.Background()

	snap, err := ws.ApplyView(ctx, "admin", "clients")
	if err != nil {
		t.Fatalf("ApplyView(clients) ошибка: %v", err)
	}
	if snap.Filters.Role != model.RoleClient {
		t.Errorf("Role = %q, хотели CLIENT", snap.Filters.Role)
	}
	if snap.ActiveView != filters.ViewClients {
		t.Errorf("ActiveView = %s, хотели clients", snap.ActiveView)
	}
	if snap.Stats.TotalUsers != 2 || snap.Stats.PendingApprovals != 1 {
		t.Errorf("Stats = %+v, хотели total=2 pending=1", snap.Stats)
	}
	if saved, _ := store.Get(ctx, "admin"); saved.Role != model.RoleClient {
		t.Errorf("сохранённые фильтры = %+v", saved)
	}

	for _, name := range []string{"team", "admins", "all"} {
		if snap, err = ws.ApplyView(ctx, "admin", name); err != nil {
			t.Fatalf("ApplyView(%s) ошибка: %v", name, err)
		}
	}
	if snap.ActiveView != filters.ViewAll || !snap.Filters.IsDefault() {
		t.Errorf("после clients→team→admins→all: view=%s filters=%+v", snap.ActiveView, snap.Filters)
	}

	if _, err := ws.UpdateFilters(ctx, "admin", filters.UserFilters{Search: "team", Status: "active"}); err != nil {
		t.Fatalf("UpdateFilters() ошибка: %v", err)
	}
	snap, err = ws.ResetFilters(ctx, "admin")
	if err != nil {
		t.Fatalf("ResetFilters() ошибка: %v", err)
	}
	if !snap.Filters.IsDefault() {
		t.Errorf("после сброса Filters = %+v", snap.Filters)
	}

	if _, err := ws.ApplyView(ctx, "admin", "owners"); !errors.Is(err, ErrUnknownView) {
		t.Errorf("ApplyView(owners) = %v, хотели ErrUnknownView", err)
	}
}

func TestWorkstation_UpdateFiltersValidation(t *testing.T) {
	ws := newTestWorkstation(&memorySource{}, newMemoryStore())

	_, err := ws.UpdateFilters(context.Background(), "admin", filters.UserFilters{Role: "ROOT"})
	if !errors.Is(err, ErrValidation) {
		t.Errorf("UpdateFilters(ROOT) = %v, хотели ErrValidation", err)
	}
	if !errors.Is(err, filters.ErrInvalidFilter) {
		t.Errorf("ошибка не оборачивает ErrInvalidFilter: %v", err)
	}
}

func TestWorkstation_OwnersIsolated(t *testing.T) {
	src := &memorySource{users: sampleUsers(time.Now().UTC())}
	store := newMemoryStore()
	_ = store.Save(context.Background(), "bob", filters.UserFilters{Role: model.RoleAdmin, DateRange: filters.DateRangeAll})
	ws := newTestWorkstation(src, store)
	ctx := context.Background()

	if _, err := ws.ApplyView(ctx, "alice", "team"); err != nil {
		t.Fatalf("ApplyView ошибка: %v", err)
	}
	bob, err := ws.Current(ctx, "bob")
	if err != nil {
		t.Fatalf("Current(bob) ошибка: %v", err)
	}
	if bob.ActiveView != filters.ViewAdmins {
		t.Errorf("bob: ActiveView = %s, хотели admins (из хранилища)", bob.ActiveView)
	}
	alice, _ := ws.Filters(ctx, "alice")
	if alice.Role != model.RoleTeam {
		t.Errorf("alice: Role = %q, хотели TEAM", alice.Role)
	}
}

func TestWorkstation_RefreshErrorKeepsLastSnapshot(t *testing.T) {
	src := &memorySource{users: sampleUsers(time.Now().UTC())}
	ws := newTestWorkstation(src, newMemoryStore())
	ctx := context.Background()

	good, err := ws.Refresh(ctx, "admin")
	if err != nil {
		t.Fatalf("Refresh() ошибка: %v", err)
	}

	src.mu.Lock()
	src.listErr = errors.New("connection refused")
	src.mu.Unlock()

	snap, err := ws.Refresh(ctx, "admin")
	if !errors.Is(err, ErrDirectoryUnavailable) {
		t.Fatalf("Refresh() = %v, хотели ErrDirectoryUnavailable", err)
	}
	if snap == nil {
		t.Fatal("при ошибке не возвращён последний снимок")
	}
	if snap.Seq != good.Seq || snap.Stats.TotalUsers != good.Stats.TotalUsers {
		t.Errorf("снимок после ошибки = seq %d total %d, хотели seq %d total %d",
			snap.Seq, snap.Stats.TotalUsers, good.Seq, good.Stats.TotalUsers)
	}
	if !snap.Stale {
		t.Error("снимок после ошибки не помечен Stale")
	}

	// Первое обновление без снимка — только ошибка.
	fresh := newTestWorkstation(src, newMemoryStore())
	if snap, err := fresh.Refresh(ctx, "admin"); err == nil || snap != nil {
		t.Errorf("Refresh() без снимка = (%v, %v), хотели (nil, ошибка)", snap, err)
	}
}

func TestWorkstation_FailedActionKeepsFilters(t *testing.T) {
	src := &memorySource{users: sampleUsers(time.Now().UTC())}
	store := newMemoryStore()
	ws := newTestWorkstation(src, store)
	ctx := context.Background()

	if _, err := ws.Current(ctx, "admin"); err != nil {
		t.Fatalf("Current() ошибка: %v", err)
	}

	src.mu.Lock()
	src.listErr = errors.New("timeout")
	src.mu.Unlock()

	snap, err := ws.ApplyView(ctx, "admin", "clients")
	if !errors.Is(err, ErrDirectoryUnavailable) {
		t.Fatalf("ApplyView() = %v, хотели ErrDirectoryUnavailable", err)
	}
	if snap == nil || snap.ActiveView != filters.ViewAll || !snap.Stale {
		t.Fatalf("снимок после ошибки = %+v, хотели прежний вид all со Stale", snap)
	}
	if f, _ := ws.Filters(ctx, "admin"); !f.IsDefault() {
		t.Errorf("фильтры изменились после неудачного действия: %+v", f)
	}
	if _, ok := store.saved["admin"]; ok {
		t.Error("фильтры неудачного действия сохранены в хранилище")
	}

	// Пока каталог недоступен, Current сообщает об устаревшем снимке.
	cur, err := ws.Current(ctx, "admin")
	if err == nil || cur == nil || !cur.Stale {
		t.Errorf("Current() = (%+v, %v), хотели устаревший снимок и ошибку", cur, err)
	}

	src.mu.Lock()
	src.listErr = nil
	src.mu.Unlock()

	snap, err = ws.Refresh(ctx, "admin")
	if err != nil {
		t.Fatalf("Refresh() ошибка: %v", err)
	}
	if snap.ActiveView != filters.ViewAll || snap.Stale {
		t.Errorf("после восстановления вид %s stale %v, хотели all без Stale", snap.ActiveView, snap.Stale)
	}

	// Успешное действие сохраняет фильтры.
	if _, err := ws.ApplyView(ctx, "admin", "clients"); err != nil {
		t.Fatalf("ApplyView() ошибка: %v", err)
	}
	if saved := store.saved["admin"]; saved.Role != model.RoleClient {
		t.Errorf("сохранённая роль = %q, хотели CLIENT", saved.Role)
	}
}

func TestWorkstation_FailedRefreshMarksStale(t *testing.T) {
	src := &memorySource{users: sampleUsers(time.Now().UTC())}
	ws := newTestWorkstation(src, newMemoryStore())
	ctx := context.Background()

	good, _ := ws.Current(ctx, "admin")

	src.mu.Lock()
	src.listErr = errors.New("timeout")
	src.mu.Unlock()
	if _, err := ws.Refresh(ctx, "admin"); err == nil {
		t.Fatal("Refresh() без ошибки при недоступном каталоге")
	}

	cur, err := ws.Current(ctx, "admin")
	if err == nil {
		t.Error("Current() должен повторить обновление и вернуть ошибку")
	}
	if cur == nil || !cur.Stale || cur.Seq != good.Seq {
		t.Errorf("Current() = %+v, хотели снимок seq %d со Stale", cur, good.Seq)
	}
}

func TestWorkstation_LastWriteWins(t *testing.T) {
	now := time.Now().UTC()
	entered := make(chan struct{})
	release := make(chan struct{})

	src := &memorySource{users: sampleUsers(now)[:1]}
	src.onList = func(call int) {
		if call == 1 {
			close(entered)
			<-release
		}
	}
	ws := newTestWorkstation(src, newMemoryStore())
	ws.timeout = 0
	ctx := context.Background()

	type result struct {
		snap *Snapshot
		err  error
	}
	first := make(chan result, 1)
	go func() {
		snap, err := ws.Refresh(ctx, "admin")
		first <- result{snap, err}
	}()

	<-entered
	// Первый запрос завис внутри List; каталог меняется, второй завершается раньше.
	src.setUsers(sampleUsers(now))
	second, err := ws.Refresh(ctx, "admin")
	if err != nil {
		t.Fatalf("второй Refresh() ошибка: %v", err)
	}
	if second.Seq != 2 || second.Stats.TotalUsers != 4 {
		t.Fatalf("второй снимок: seq %d total %d, хотели seq 2 total 4", second.Seq, second.Stats.TotalUsers)
	}

	close(release)
	r := <-first
	if r.err != nil {
		t.Fatalf("первый Refresh() ошибка: %v", r.err)
	}
	if r.snap.Seq != 2 || r.snap.Stats.TotalUsers != 4 {
		t.Errorf("устаревший ответ перезаписал снимок: seq %d total %d", r.snap.Seq, r.snap.Stats.TotalUsers)
	}

	cur, _ := ws.Current(ctx, "admin")
	if cur.Seq != 2 {
		t.Errorf("Current().Seq = %d, хотели 2", cur.Seq)
	}
}

func TestWorkstation_Invalidate(t *testing.T) {
	src := &memorySource{users: sampleUsers(time.Now().UTC())}
	ws := newTestWorkstation(src, newMemoryStore())
	ctx := context.Background()

	first, _ := ws.Current(ctx, "admin")
	ws.Invalidate()
	second, err := ws.Current(ctx, "admin")
	if err != nil {
		t.Fatalf("Current() ошибка: %v", err)
	}
	if second.Seq <= first.Seq {
		t.Errorf("после Invalidate Seq = %d, хотели > %d", second.Seq, first.Seq)
	}
}

func TestWorkstation_Query(t *testing.T) {
	src := &memorySource{users: sampleUsers(time.Now().UTC())}
	ws := newTestWorkstation(src, newMemoryStore())

	res, err := ws.Query(context.Background(), filters.UserFilters{Status: "active"}, 2, 0)
	if err != nil {
		t.Fatalf("Query() ошибка: %v", err)
	}
	if res.Total != 3 || len(res.Users) != 2 {
		t.Errorf("Total = %d, len(Users) = %d, хотели 3 и 2", res.Total, len(res.Users))
	}
	if res.Stats.TotalUsers != 3 || res.Stats.InProgressWorkflows != 3 {
		t.Errorf("Stats = %+v", res.Stats)
	}
	if res.Filters.Status != model.StatusActive {
		t.Errorf("Filters.Status = %q, хотели нормализованный ACTIVE", res.Filters.Status)
	}

	if _, err := ws.Query(context.Background(), filters.UserFilters{DateRange: "year"}, 10, 0); !errors.Is(err, ErrValidation) {
		t.Errorf("Query(year) = %v, хотели ErrValidation", err)
	}
}

func TestPage(t *testing.T) {
	users := make([]model.User, 5)
	tests := []struct {
		limit, offset, want int
	}{
		{limit: 2, offset: 0, want: 2},
		{limit: 2, offset: 4, want: 1},
		{limit: 2, offset: 5, want: 0},
		{limit: 0, offset: 0, want: 0},
		{limit: 10, offset: -1, want: 5},
	}
	for _, tt := range tests {
		if got := Page(users, tt.limit, tt.offset); len(got) != tt.want {
			t.Errorf("Page(limit=%d, offset=%d) = %d, хотели %d", tt.limit, tt.offset, len(got), tt.want)
		}
	}
}

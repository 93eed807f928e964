package handlers

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/xuri/excelize/v2"

	"github.com/arturkryukov/artstore/workstation/internal/api/middleware"
	"github.com/arturkryukov/artstore/workstation/internal/domain/metrics"
	"github.com/arturkryukov/artstore/workstation/internal/domain/model"
	"github.com/arturkryukov/artstore/workstation/internal/service"
	"github.com/arturkryukov/artstore/workstation/internal/testutil"
	"github.com/arturkryukov/artstore/workstation/internal/ui/i18n"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeSyncer struct {
	calls int
}

func (f *fakeSyncer) SyncNow(context.Context) (*model.DirectorySyncResult, error) {
	f.calls++
	return &model.DirectorySyncResult{TotalKeycloak: 4, Upserted: 4}, nil
}

type testEnv struct {
	router http.Handler
	source *testutil.MemDirectory
	ws     *service.WorkstationService
	syncer *fakeSyncer
}

func newTestEnv(t *testing.T, role string, pageSize int) *testEnv {
	t.Helper()
	src := testutil.NewMemDirectory(testutil.SampleUsers(time.Now().UTC())...)
	store := testutil.NewMemFilterStore()
	syncer := &fakeSyncer{}

	ws := service.NewWorkstationService(src, store, metrics.NewAggregator(16, time.Minute), 1000, time.Second, testLogger())
	transfer := service.NewTransferService(src, src.InTx, 100, ws.Invalidate, testLogger())

	bundle, err := i18n.Load(testLogger())
	if err != nil {
		t.Fatal(err)
	}

	ui := NewUI(
		NewWorkstationHandler(ws, transfer, syncer, pageSize, testLogger()),
		NewEventsHandler(ws, 50*time.Millisecond, testLogger()),
		bundle,
	)

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := &middleware.AuthClaims{Subject: "alice", PreferredUsername: "alice", Role: role}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), middleware.ContextKeyClaims, claims)))
		})
	})
	ui.Mount(r)

	return &testEnv{router: r, source: src, ws: ws, syncer: syncer}
}

// do выполняет запрос; cookies переносятся из предыдущего ответа.
func (e *testEnv) do(method, target string, body io.Reader, contentType string, cookies []*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) page(t *testing.T, cookies ...*http.Cookie) string {
	t.Helper()
	rec := e.do(http.MethodGet, "/admin/workstation", nil, "", cookies)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET страницы: статус %d", rec.Code)
	}
	return rec.Body.String()
}

// post выполняет действие формы и проверяет redirect на страницу.
func (e *testEnv) post(t *testing.T, target string, form url.Values) []*http.Cookie {
	t.Helper()
	rec := e.do(http.MethodPost, target, strings.NewReader(form.Encode()), "application/x-www-form-urlencoded", nil)
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("POST %s: ожидался 303, получен %d", target, rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "/admin/workstation" {
		t.Fatalf("POST %s: redirect на %q", target, loc)
	}
	return rec.Result().Cookies()
}

func activeButton(view string) string {
	return `class="view-btn active" data-testid="view-btn-` + view + `"`
}

func TestPage_Initial(t *testing.T) {
	env := newTestEnv(t, model.RoleAdmin, 0)
	body := env.page(t)

	for _, want := range []string{
		activeButton("all"),
		"4 users",
		`<span data-stat="totalUsers">4</span>`,
		`<span data-stat="pendingApprovals">2</span>`,
		`<span data-stat="inProgressWorkflows">2</span>`,
		`<span class="view-label">Clients</span><span class="view-count">2</span>`,
		"Signed in as alice",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("на странице нет %q", want)
		}
	}
}

func TestPage_RedirectsFromAdminRoot(t *testing.T) {
	env := newTestEnv(t, model.RoleAdmin, 0)
	rec := env.do(http.MethodGet, "/admin/", nil, "", nil)
	if rec.Code != http.StatusFound || rec.Header().Get("Location") != "/admin/workstation" {
		t.Errorf("ожидался redirect на /admin/workstation, получен %d %q", rec.Code, rec.Header().Get("Location"))
	}
}

func TestApplyViewAndReset(t *testing.T) {
	env := newTestEnv(t, model.RoleAdmin, 0)

	env.post(t, "/admin/workstation/views/clients", nil)
	body := env.page(t)
	if !strings.Contains(body, activeButton("clients")) {
		t.Error("после применения вид clients должен быть активным")
	}
	if strings.Contains(body, activeButton("all")) {
		t.Error("вид all не должен оставаться активным")
	}
	if !strings.Contains(body, "2 users") {
		t.Error("ожидалось 2 пользователя")
	}

	// Обновление сохраняет фильтры.
	env.post(t, "/admin/workstation/refresh", nil)
	if body := env.page(t); !strings.Contains(body, activeButton("clients")) {
		t.Error("после обновления вид clients должен остаться активным")
	}

	env.post(t, "/admin/workstation/reset", nil)
	body = env.page(t)
	if !strings.Contains(body, activeButton("all")) || !strings.Contains(body, "4 users") {
		t.Error("после сброса активен вид all и показаны все пользователи")
	}
}

func TestApplyView_Unknown(t *testing.T) {
	env := newTestEnv(t, model.RoleAdmin, 0)
	cookies := env.post(t, "/admin/workstation/views/owners", nil)
	if len(cookies) == 0 {
		t.Fatal("ожидалась flash-cookie")
	}

	body := env.page(t, cookies...)
	if !strings.Contains(body, "Unknown saved view.") {
		t.Error("нет сообщения о неизвестном виде")
	}
	if !strings.Contains(body, activeButton("all")) {
		t.Error("фильтры не должны измениться")
	}
}

func TestFilters_Form(t *testing.T) {
	env := newTestEnv(t, model.RoleAdmin, 0)

	env.post(t, "/admin/workstation/filters", url.Values{"search": {"team"}, "dateRange": {"all"}})
	body := env.page(t)
	if !strings.Contains(body, "1 users") {
		t.Error("поиск team должен оставить одного пользователя")
	}
	if !strings.Contains(body, `value="team"`) {
		t.Error("поле поиска должно сохранить значение")
	}

	cookies := env.post(t, "/admin/workstation/filters", url.Values{"dateRange": {"year"}})
	body = env.page(t, cookies...)
	if !strings.Contains(body, "Invalid filter values.") {
		t.Error("нет сообщения о недопустимых фильтрах")
	}
	if !strings.Contains(body, "1 users") {
		t.Error("недопустимые фильтры не применяются")
	}
}

func TestPage_Pagination(t *testing.T) {
	env := newTestEnv(t, model.RoleAdmin, 3)

	body := env.page(t)
	if !strings.Contains(body, "Page 1 of 2") {
		t.Error("ожидалось 2 страницы")
	}
	if strings.Contains(body, `data-user-id="4"`) {
		t.Error("четвёртый пользователь на второй странице")
	}

	rec := env.do(http.MethodGet, "/admin/workstation?page=9", nil, "", nil)
	body = rec.Body.String()
	if !strings.Contains(body, "Page 2 of 2") || !strings.Contains(body, `data-user-id="4"`) {
		t.Error("номер страницы должен ограничиваться последней")
	}
	if !strings.Contains(body, `aria-label="Next page" disabled`) {
		t.Error("на последней странице кнопка Next отключена")
	}
}

func TestPage_DirectoryUnavailable(t *testing.T) {
	env := newTestEnv(t, model.RoleAdmin, 0)
	env.source.SetErr(errors.New("connection refused"))

	rec := env.do(http.MethodGet, "/admin/workstation", nil, "", nil)
	if rec.Code != http.StatusBadGateway {
		t.Errorf("ожидался 502, получен %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, `data-testid="directory-unavailable"`) {
		t.Error("нет баннера недоступности")
	}
	if !strings.Contains(body, `data-testid="view-btn-all"`) {
		t.Error("кнопки видов показываются и без данных")
	}
}

func TestPage_StaleAfterFailedRefresh(t *testing.T) {
	env := newTestEnv(t, model.RoleAdmin, 0)
	env.page(t)

	env.ws.Invalidate()
	env.source.SetErr(errors.New("timeout"))

	body := env.page(t)
	if !strings.Contains(body, `data-testid="stale-banner"`) {
		t.Error("нет баннера устаревших данных")
	}
	if !strings.Contains(body, `<span data-stat="totalUsers">4</span>`) {
		t.Error("должны остаться последние успешные показатели")
	}
}

func TestRefreshFailure_ShowsStaleBanner(t *testing.T) {
	env := newTestEnv(t, model.RoleAdmin, 0)
	env.page(t)

	env.source.SetErr(errors.New("timeout"))
	env.post(t, "/admin/workstation/refresh", nil)

	body := env.page(t)
	if !strings.Contains(body, `data-testid="stale-banner"`) {
		t.Error("после неудачного обновления нет баннера устаревших данных")
	}
	if !strings.Contains(body, `<span data-stat="totalUsers">4</span>`) {
		t.Error("должны остаться последние успешные показатели")
	}

	env.source.SetErr(nil)
	env.post(t, "/admin/workstation/refresh", nil)
	if body := env.page(t); strings.Contains(body, `data-testid="stale-banner"`) {
		t.Error("баннер остался после успешного обновления")
	}
}

func TestApplyViewFailure_KeepsFilters(t *testing.T) {
	env := newTestEnv(t, model.RoleAdmin, 0)
	env.page(t)

	env.source.SetErr(errors.New("timeout"))
	env.post(t, "/admin/workstation/views/clients", nil)

	body := env.page(t)
	if !strings.Contains(body, activeButton("all")) || strings.Contains(body, activeButton("clients")) {
		t.Error("неудачное применение вида изменило активный вид")
	}
	if !strings.Contains(body, `data-testid="stale-banner"`) {
		t.Error("нет баннера устаревших данных")
	}

	// После восстановления применяются прежние фильтры.
	env.source.SetErr(nil)
	env.post(t, "/admin/workstation/refresh", nil)
	body = env.page(t)
	if !strings.Contains(body, activeButton("all")) || strings.Contains(body, activeButton("clients")) {
		t.Error("вид clients применился после восстановления каталога")
	}
}

func TestPage_Russian(t *testing.T) {
	env := newTestEnv(t, model.RoleAdmin, 0)
	body := env.page(t, &http.Cookie{Name: i18n.LangCookieName, Value: "ru"})
	if !strings.Contains(body, "Всего пользователей") || !strings.Contains(body, "Пользователей: 4") {
		t.Error("страница должна быть на русском")
	}
}

func buildWorkbook(t *testing.T, rows ...[]any) []byte {
	t.Helper()
	book := excelize.NewFile()
	if err := book.SetSheetName("Sheet1", "Users"); err != nil {
		t.Fatal(err)
	}
	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := book.SetSheetRow("Users", cell, &row); err != nil {
			t.Fatal(err)
		}
	}
	var buf bytes.Buffer
	if err := book.Write(&buf); err != nil {
		t.Fatal(err)
	}
	_ = book.Close()
	return buf.Bytes()
}

func multipartBody(t *testing.T, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "users.xlsx")
	if err != nil {
		t.Fatal(err)
	}
	_, _ = part.Write(data)
	_ = mw.Close()
	return &body, mw.FormDataContentType()
}

func TestImport(t *testing.T) {
	env := newTestEnv(t, model.RoleAdmin, 0)
	env.page(t)

	data := buildWorkbook(t,
		[]any{"username", "role", "status"},
		[]any{"newclient", "CLIENT", "INACTIVE"},
		[]any{"broken", "OWNER", ""},
	)
	body, ct := multipartBody(t, data)
	rec := env.do(http.MethodPost, "/admin/workstation/import", body, ct, nil)
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("ожидался 303, получен %d", rec.Code)
	}

	page := env.page(t, rec.Result().Cookies()...)
	if !strings.Contains(page, "Imported 1 of 2 rows, 1 rows skipped with errors.") {
		t.Error("нет сообщения о результате импорта")
	}
	if !strings.Contains(page, "5 users") {
		t.Error("после импорта снимок должен обновиться")
	}
}

func TestImport_RejectsNonWorkbook(t *testing.T) {
	env := newTestEnv(t, model.RoleAdmin, 0)
	body, ct := multipartBody(t, []byte("plain text"))
	rec := env.do(http.MethodPost, "/admin/workstation/import", body, ct, nil)

	page := env.page(t, rec.Result().Cookies()...)
	if !strings.Contains(page, "Import failed.") {
		t.Error("нет сообщения об ошибке импорта")
	}
}

func TestManagerActions_Forbidden(t *testing.T) {
	env := newTestEnv(t, model.RoleTeam, 0)

	cookies := env.post(t, "/admin/workstation/sync", nil)
	if env.syncer.calls != 0 {
		t.Error("синхронизация не должна запускаться без роли ADMIN")
	}
	if !strings.Contains(env.page(t, cookies...), "This action requires the ADMIN role.") {
		t.Error("нет сообщения о недостатке прав")
	}
}

func TestSync(t *testing.T) {
	env := newTestEnv(t, model.RoleAdmin, 0)
	cookies := env.post(t, "/admin/workstation/sync", nil)
	if env.syncer.calls != 1 {
		t.Errorf("SyncNow вызван %d раз", env.syncer.calls)
	}
	if !strings.Contains(env.page(t, cookies...), "Directory synced: 4 updated, 0 removed.") {
		t.Error("нет сообщения о синхронизации")
	}
}

func TestExport(t *testing.T) {
	env := newTestEnv(t, model.RoleAdmin, 0)
	env.post(t, "/admin/workstation/views/team", nil)

	rec := env.do(http.MethodGet, "/admin/workstation/export", nil, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("ожидался 200, получен %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != xlsxContentType {
		t.Errorf("Content-Type = %q", ct)
	}

	book, err := excelize.OpenReader(rec.Body)
	if err != nil {
		t.Fatalf("ответ не является книгой XLSX: %v", err)
	}
	defer book.Close()
	rows, err := book.GetRows("Users")
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 || rows[1][1] != "team1" {
		t.Errorf("ожидался только team1, получено %v", rows)
	}
}

func TestSetLanguage(t *testing.T) {
	env := newTestEnv(t, model.RoleAdmin, 0)
	req := httptest.NewRequest(http.MethodPost, "/admin/set-language", strings.NewReader("lang=ru"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Referer", "http://gateway.local/admin/workstation?page=2")
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != "/admin/workstation?page=2" {
		t.Errorf("redirect: %d %q", rec.Code, rec.Header().Get("Location"))
	}
	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != i18n.LangCookieName || cookies[0].Value != "ru" {
		t.Errorf("cookie языка: %v", cookies)
	}
}

func TestBackTarget(t *testing.T) {
	tests := []struct {
		referer, want string
	}{
		{"", "/admin/workstation"},
		{"https://evil.example/phish", "/admin/workstation"},
		{"http://host/admin/workstation", "/admin/workstation"},
		{"http://host/admin/workstation?page=3", "/admin/workstation?page=3"},
		{"::bad", "/admin/workstation"},
	}
	for _, tt := range tests {
		if got := backTarget(tt.referer); got != tt.want {
			t.Errorf("backTarget(%q) = %q, ожидался %q", tt.referer, got, tt.want)
		}
	}
}

func TestStatic(t *testing.T) {
	env := newTestEnv(t, model.RoleAdmin, 0)
	for _, path := range []string{"/static/css/workstation.css", "/static/js/workstation.js"} {
		rec := env.do(http.MethodGet, path, nil, "", nil)
		if rec.Code != http.StatusOK || rec.Body.Len() == 0 {
			t.Errorf("%s: статус %d", path, rec.Code)
		}
	}
}

func TestEvents_QuickStats(t *testing.T) {
	env := newTestEnv(t, model.RoleAdmin, 0)
	srv := httptest.NewServer(env.router)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/admin/workstation/events", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q", ct)
	}

	scanner := bufio.NewScanner(resp.Body)
	events := 0
	for scanner.Scan() && events < 2 {
		line := scanner.Text()
		if line == "event: quick-stats" {
			events++
			continue
		}
		if strings.HasPrefix(line, "data: ") && !strings.Contains(line, `"totalUsers":4`) {
			t.Errorf("неожиданные данные события: %s", line)
		}
	}
	if events < 2 {
		t.Errorf("получено событий %d, ожидалось не меньше 2", events)
	}
}

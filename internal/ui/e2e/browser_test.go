//go:build e2e

// Браузерные тесты страницы рабочего места (playwright-go).
// Запуск: go test -tags e2e ./internal/ui/e2e/...
// WS_E2E_BASE_URL — адрес развёрнутого сервиса; без него поднимается
// in-process сервер с каталогом в памяти.
// PLAYWRIGHT_PREINSTALLED=1 — не устанавливать браузеры перед запуском.
package e2e

import (
	"io"
	"log/slog"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/playwright-community/playwright-go"
	"github.com/stretchr/testify/require"

	"github.com/arturkryukov/artstore/workstation/internal/api/middleware"
	"github.com/arturkryukov/artstore/workstation/internal/domain/metrics"
	"github.com/arturkryukov/artstore/workstation/internal/service"
	"github.com/arturkryukov/artstore/workstation/internal/testutil"
	"github.com/arturkryukov/artstore/workstation/internal/ui/handlers"
	"github.com/arturkryukov/artstore/workstation/internal/ui/i18n"
)

const workstationPath = "/admin/workstation"

var pw *playwright.Playwright

func TestMain(m *testing.M) {
	if os.Getenv("PLAYWRIGHT_PREINSTALLED") != "1" {
		if err := playwright.Install(); err != nil {
			slog.Error("Не удалось установить браузеры playwright", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	var err error
	pw, err = playwright.Run()
	if err != nil {
		slog.Error("Не удалось запустить playwright", slog.String("error", err.Error()))
		os.Exit(1)
	}

	code := m.Run()
	_ = pw.Stop()
	os.Exit(code)
}

// startServer поднимает страницы рабочего места над каталогом в памяти.
func startServer(t *testing.T) string {
	t.Helper()
	if base := os.Getenv("WS_E2E_BASE_URL"); base != "" {
		return base
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	dir := testutil.NewMemDirectory(testutil.SampleUsers(time.Now().UTC())...)
	ws := service.NewWorkstationService(dir, testutil.NewMemFilterStore(),
		metrics.NewAggregator(64, time.Minute), 10000, 5*time.Second, logger)
	transfer := service.NewTransferService(dir, dir.InTx, 1000, ws.Invalidate, logger)

	bundle, err := i18n.Load(logger)
	require.NoError(t, err)

	ui := handlers.NewUI(
		handlers.NewWorkstationHandler(ws, transfer, nil, handlers.DefaultPageSize, logger),
		handlers.NewEventsHandler(ws, time.Second, logger),
		bundle,
	)

	r := chi.NewRouter()
	r.Use(middleware.TrustedGateway(service.DefaultOwner))
	ui.Mount(r)

	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		// SSE-соединения иначе держат Close до таймаута.
		srv.CloseClientConnections()
		srv.Close()
	})
	return srv.URL
}

// openPage открывает страницу рабочего места в новом контексте браузера.
func openPage(t *testing.T, viewport *playwright.Size) playwright.Page {
	t.Helper()
	base := startServer(t)

	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(os.Getenv("WS_E2E_HEADED") != "1"),
	})
	require.NoError(t, err, "запуск браузера")
	t.Cleanup(func() { _ = browser.Close() })

	if viewport == nil {
		viewport = &playwright.Size{Width: 1280, Height: 800}
	}
	bctx, err := browser.NewContext(playwright.BrowserNewContextOptions{
		Viewport: viewport,
		Locale:   playwright.String("en-US"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = bctx.Close() })

	page, err := bctx.NewPage()
	require.NoError(t, err)
	page.SetDefaultTimeout(10000)

	// SSE держит соединение открытым, поэтому ждём load, а не networkidle.
	_, err = page.Goto(base+workstationPath, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateLoad,
	})
	require.NoError(t, err, "переход на страницу")
	return page
}

// waitReady ждёт завершения навигации после отправки формы.
func waitReady(t *testing.T, page playwright.Page) {
	t.Helper()
	require.NoError(t, page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
		State: playwright.LoadStateLoad,
	}))
}

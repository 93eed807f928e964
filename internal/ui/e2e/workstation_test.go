//go:build e2e

package e2e

import (
	"regexp"
	"testing"

	"github.com/playwright-community/playwright-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	expect   = playwright.NewPlaywrightAssertions(10000)
	activeRe = regexp.MustCompile(`\bactive\b`)
)

func viewButton(page playwright.Page, view string) playwright.Locator {
	return page.Locator(`[data-testid="view-btn-` + view + `"]`)
}

func TestLayout(t *testing.T) {
	page := openPage(t, nil)

	for _, sel := range []string{
		".workstation-container",
		".workstation-sidebar",
		"main.workstation-main-content",
		".workstation-insights-panel",
		`[data-testid="quick-stats-section"]`,
		`[data-testid="filters-section"]`,
		`[data-testid="sidebar-footer"]`,
		`[aria-label="Quick Actions"]`,
		`[aria-label="User Metrics"]`,
		`[aria-label="User Directory"]`,
		`[aria-label="Pagination"]`,
	} {
		require.NoError(t, expect.Locator(page.Locator(sel)).ToBeVisible(), "элемент %s не виден", sel)
	}

	asides, err := page.Locator("aside").Count()
	require.NoError(t, err)
	assert.GreaterOrEqual(t, asides, 2)

	headings, err := page.Locator("h2, h3").Count()
	require.NoError(t, err)
	assert.Positive(t, headings)
}

func TestSavedViews(t *testing.T) {
	page := openPage(t, nil)

	require.NoError(t, expect.Locator(viewButton(page, "all")).ToHaveClass(activeRe))
	for _, view := range []string{"all", "clients", "team", "admins"} {
		require.NoError(t, expect.Locator(viewButton(page, view)).ToContainText(regexp.MustCompile(`\d+`)),
			"кнопка %s без количества", view)
	}

	for _, view := range []string{"clients", "team", "admins", "all"} {
		require.NoError(t, viewButton(page, view).Click())
		waitReady(t, page)
		require.NoError(t, expect.Locator(viewButton(page, view)).ToHaveClass(activeRe), "вид %s не активен", view)
	}
}

func TestSavedViews_CountsAndStats(t *testing.T) {
	page := openPage(t, nil)

	require.NoError(t, viewButton(page, "clients").Click())
	waitReady(t, page)

	require.NoError(t, expect.Locator(page.Locator(`[aria-label="User Directory"]`)).ToContainText("2 users"))
	stats := page.GetByTestId("stats-container")
	require.NoError(t, expect.Locator(stats).ToContainText("Total Users: 2"))
	require.NoError(t, expect.Locator(stats).ToContainText("Pending Approvals: 1"))
	require.NoError(t, expect.Locator(stats).ToContainText("In Progress: 1"))
}

func TestResetFilters(t *testing.T) {
	page := openPage(t, nil)

	require.NoError(t, viewButton(page, "clients").Click())
	waitReady(t, page)
	require.NoError(t, expect.Locator(viewButton(page, "clients")).ToHaveClass(activeRe))

	reset := page.GetByTestId("reset-filters-btn")
	require.NoError(t, expect.Locator(reset).ToHaveAttribute("aria-label", "Reset all filters"))
	require.NoError(t, reset.Click())
	waitReady(t, page)

	require.NoError(t, expect.Locator(viewButton(page, "all")).ToHaveClass(activeRe))
	require.NoError(t, expect.Locator(page.Locator(`[aria-label="User Directory"]`)).ToContainText("4 users"))
}

func TestActionButtons(t *testing.T) {
	page := openPage(t, nil)

	for _, label := range []string{"Add new user", "Import users", "Bulk operations", "Export user list", "Refresh user list"} {
		btn := page.Locator(`button[aria-label="` + label + `"]`)
		require.NoError(t, expect.Locator(btn).ToBeVisible(), "кнопка %q не видна", label)

		box, err := btn.BoundingBox()
		require.NoError(t, err)
		require.NotNil(t, box)
		assert.GreaterOrEqual(t, box.Width, 44.0, "ширина кнопки %q", label)
		assert.GreaterOrEqual(t, box.Height, 44.0, "высота кнопки %q", label)
	}

	add := page.Locator(`button[aria-label="Add new user"]`)
	require.NoError(t, add.Focus())
	focused, err := add.Evaluate("el => document.activeElement === el", nil)
	require.NoError(t, err)
	assert.Equal(t, true, focused)

	require.NoError(t, add.Click())
	require.NoError(t, expect.Locator(page.Locator("#add-user-dialog")).ToBeVisible())
}

func TestRefreshKeepsFilters(t *testing.T) {
	page := openPage(t, nil)

	require.NoError(t, viewButton(page, "clients").Click())
	waitReady(t, page)

	require.NoError(t, page.Locator(`button[aria-label="Refresh user list"]`).Click())
	waitReady(t, page)

	require.NoError(t, expect.Locator(viewButton(page, "clients")).ToHaveClass(activeRe))
	require.NoError(t, expect.Locator(page.Locator(`[aria-label="User Directory"]`)).ToBeVisible())
}

func TestMetricCards(t *testing.T) {
	page := openPage(t, nil)

	require.NoError(t, expect.Locator(page.Locator(".metric-card")).ToHaveCount(4))
	require.NoError(t, expect.Locator(page.GetByTestId("stats-container")).ToContainText("Total Users"))
}

func TestPagination(t *testing.T) {
	page := openPage(t, nil)

	require.NoError(t, expect.Locator(page.Locator(`button[aria-label="Previous page"]`)).ToBeVisible())
	require.NoError(t, expect.Locator(page.Locator(`button[aria-label="Next page"]`)).ToBeVisible())
	require.NoError(t, expect.Locator(page.Locator(`[aria-label="User Directory"]`)).ToContainText("users"))
}

func TestSidebarClose(t *testing.T) {
	page := openPage(t, nil)

	require.NoError(t, page.GetByTestId("sidebar-close-btn").Click())
	require.NoError(t, expect.Locator(page.GetByTestId("workstation-sidebar")).ToBeHidden())

	require.NoError(t, page.Locator(`button[aria-label="Open sidebar"]`).Click())
	require.NoError(t, expect.Locator(page.GetByTestId("workstation-sidebar")).ToBeVisible())
}

func TestKeyboardNavigation(t *testing.T) {
	page := openPage(t, nil)

	for range 6 {
		require.NoError(t, page.Keyboard().Press("Tab"))
	}
	tag, err := page.Evaluate("() => document.activeElement && document.activeElement.tagName")
	require.NoError(t, err)
	assert.NotEmpty(t, tag)
	require.NoError(t, expect.Locator(page.GetByTestId("reset-filters-btn")).ToBeVisible())
}

func TestResponsive(t *testing.T) {
	t.Run("mobile 375", func(t *testing.T) {
		page := openPage(t, &playwright.Size{Width: 375, Height: 667})
		require.NoError(t, expect.Locator(page.Locator(".workstation-main-content")).ToBeVisible())

		display, err := page.Locator(".workstation-insights-panel").Evaluate("el => getComputedStyle(el).display", nil)
		require.NoError(t, err)
		assert.Equal(t, "none", display)
	})

	t.Run("tablet 768", func(t *testing.T) {
		page := openPage(t, &playwright.Size{Width: 768, Height: 1024})
		require.NoError(t, expect.Locator(page.Locator(".workstation-container")).ToBeVisible())
	})

	t.Run("desktop 1920", func(t *testing.T) {
		page := openPage(t, &playwright.Size{Width: 1920, Height: 1080})
		for _, sel := range []string{".workstation-sidebar", ".workstation-main-content", ".workstation-insights-panel"} {
			require.NoError(t, expect.Locator(page.Locator(sel)).ToBeVisible(), sel)
		}
	})
}

func TestNoConsoleErrors(t *testing.T) {
	page := openPage(t, nil)

	var errs []string
	page.OnConsole(func(msg playwright.ConsoleMessage) {
		if msg.Type() == "error" {
			errs = append(errs, msg.Text())
		}
	})

	_, err := page.Reload(playwright.PageReloadOptions{WaitUntil: playwright.WaitUntilStateLoad})
	require.NoError(t, err)
	page.WaitForTimeout(500)
	assert.Empty(t, errs)
}

func TestRapidViewSwitching(t *testing.T) {
	page := openPage(t, nil)

	for range 3 {
		for _, view := range []string{"clients", "team", "admins", "all"} {
			require.NoError(t, viewButton(page, view).Click())
			waitReady(t, page)
		}
	}
	require.NoError(t, expect.Locator(viewButton(page, "all")).ToHaveClass(activeRe))
	require.NoError(t, expect.Locator(page.Locator(`[aria-label="User Directory"]`)).ToContainText("4 users"))
}

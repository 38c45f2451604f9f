package tui

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fakeyudi/tabsession/internal/bundle"
)

func testBundle() *bundle.SessionBundle {
	return &bundle.SessionBundle{
		Meta: bundle.Meta{ID: "x", DataDir: "/data", Commands: 12},
		Windows: []bundle.Window{
			{ID: 1, SelectedTabIndex: 1, Tabs: []bundle.Tab{
				{ID: 2, Navigations: []bundle.Navigation{{URL: "http://a", Title: "Alpha"}}},
				{ID: 3, CurrentNavigationIndex: 1, Navigations: []bundle.Navigation{
					{Index: 0, URL: "http://b"},
					{Index: 1, URL: "http://form", PostData: true},
				}},
			}},
			{ID: 4, Tabs: []bundle.Tab{{ID: 5, Navigations: []bundle.Navigation{{URL: "http://c"}}}}},
		},
		Recent: []bundle.RecentEntry{
			{Kind: bundle.KindTab, Timestamp: time.Unix(1_700_000_000, 0), Tabs: []bundle.Tab{{Navigations: []bundle.Navigation{{URL: "http://newest", Title: "Newest"}}}}},
			{Kind: bundle.KindWindow, FromLastSession: true, Tabs: []bundle.Tab{{Navigations: []bundle.Navigation{{URL: "http://oldest"}}}}},
		},
	}
}

func key(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func send(t *testing.T, m Model, msgs ...tea.Msg) Model {
	t.Helper()
	for _, msg := range msgs {
		next, _ := m.Update(msg)
		m = next.(Model)
	}
	return m
}

func TestNewFlattensTabs(t *testing.T) {
	m := New(testBundle(), nil, "/tmp/Current Session")
	assert.Equal(t, []tabRef{{0, 0}, {0, 1}, {1, 0}}, m.rows)
	assert.Equal(t, "Current Session", m.filename)
}

func TestViewBeforeResize(t *testing.T) {
	m := New(testBundle(), nil, "f")
	assert.Equal(t, "Loading…", m.View())
}

func TestTabSwitching(t *testing.T) {
	m := send(t, New(testBundle(), nil, "f"), tea.WindowSizeMsg{Width: 100, Height: 30})
	assert.Equal(t, tabSummary, m.activeTab)

	m = send(t, m, key("l"))
	assert.Equal(t, tabWindows, m.activeTab)

	m = send(t, m, key("h"), key("h"))
	assert.Equal(t, tabCommands, m.activeTab)

	m = send(t, m, key("3"))
	assert.Equal(t, tabRecent, m.activeTab)
	assert.Contains(t, m.View(), "Recently closed")
}

func TestWindowsCursorAndExpand(t *testing.T) {
	m := send(t, New(testBundle(), nil, "f"), tea.WindowSizeMsg{Width: 100, Height: 40}, key("2"))

	m = send(t, m, key("down"), key("enter"))
	assert.Equal(t, 1, m.cursor)
	assert.True(t, m.expanded[1])

	out := m.renderWindows()
	assert.Contains(t, out, "http://form")
	assert.Contains(t, out, "[POST]")
	assert.Contains(t, out, "Window 2")

	m = send(t, m, key("enter"))
	assert.False(t, m.expanded[1])

	// The cursor stops at the last tab.
	m = send(t, m, key("j"), key("j"), key("j"))
	assert.Equal(t, 2, m.cursor)
}

func TestRecentSortToggle(t *testing.T) {
	m := send(t, New(testBundle(), nil, "f"), tea.WindowSizeMsg{Width: 100, Height: 40}, key("3"))

	out := m.renderRecent()
	assert.Less(t, strings.Index(out, "Newest"), strings.Index(out, "WINDOW"))
	assert.Contains(t, out, "(previous run)")

	m = send(t, m, key("s"))
	require.True(t, m.sortAsc)
	out = m.renderRecent()
	assert.Greater(t, strings.Index(out, "Newest"), strings.Index(out, "WINDOW"))
}

func TestCommandsTab(t *testing.T) {
	log := []LogRecord{{Name: "SetTabWindow", Size: 8}, {Name: "UpdateTabNavigation", Size: 120}}
	m := New(testBundle(), log, "f")

	out := m.renderCommands()
	assert.Contains(t, out, "Commands (2)")
	assert.Contains(t, out, "UpdateTabNavigation")
	assert.Contains(t, out, "120 bytes")

	empty := New(&bundle.SessionBundle{}, nil, "f")
	assert.Contains(t, empty.renderCommands(), "(none)")
	assert.Contains(t, empty.renderWindows(), "(nothing to restore)")
}

func TestQuit(t *testing.T) {
	_, cmd := New(testBundle(), nil, "f").Update(key("q"))
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
}

// Package tui provides a Bubble Tea TUI for browsing a reconstructed session.
package tui

import (
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/fakeyudi/tabsession/internal/bundle"
)

// ── Styles ────────────

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("62")).
			Padding(0, 2)

	activeTabStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("62")).
			Padding(0, 1)

	inactiveTabStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("245")).
				Background(lipgloss.Color("235")).
				Padding(0, 1)

	tabSepStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("238")).
			Background(lipgloss.Color("235"))

	sectionHeader = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("86"))

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("33")).
			Bold(true)

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	timeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("178"))

	kindTabStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("82")).Bold(true)
	kindWindowStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true)
	commandStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Bold(true)
	postStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))

	statusBarStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("235")).
			Foreground(lipgloss.Color("245")).
			Padding(0, 1)

	selectedRowStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("15")).
				Background(lipgloss.Color("237"))
)

// ── Tab definitions ─────────────────

type tabID int

const (
	tabSummary tabID = iota
	tabWindows
	tabRecent
	tabCommands
	tabCount
)

var tabNames = [tabCount]string{
	"Summary", "Windows", "Recently closed", "Commands",
}

// LogRecord is one command of the raw log, shown on the Commands tab.
type LogRecord struct {
	Name string
	Size int
}

// tabRef points at one tab of the Windows list.
type tabRef struct {
	window, tab int
}

// ── Model ────────────────────

// Model is the root Bubble Tea model for the TUI.
type Model struct {
	bundle    *bundle.SessionBundle
	log       []LogRecord
	filename  string
	activeTab tabID
	viewports [tabCount]viewport.Model
	width     int
	height    int
	ready     bool
	sortAsc   bool
	// Windows tab: cursor over every tab of every window and the set whose
	// history is expanded.
	rows     []tabRef
	cursor   int
	expanded map[int]bool
}

// New creates a new TUI model for b. log may be nil.
func New(b *bundle.SessionBundle, log []LogRecord, filename string) Model {
	m := Model{
		bundle:   b,
		log:      log,
		filename: filepath.Base(filename),
		expanded: make(map[int]bool),
	}
	for wi, w := range b.Windows {
		for ti := range w.Tabs {
			m.rows = append(m.rows, tabRef{window: wi, tab: ti})
		}
	}
	return m
}

// ── Bubble Tea interface ───────────────

func (m Model) Init() tea.Cmd { return nil }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "tab", "l", "right":
			m.activeTab = (m.activeTab + 1) % tabCount
		case "shift+tab", "h", "left":
			m.activeTab = (m.activeTab - 1 + tabCount) % tabCount
		case "1", "2", "3", "4":
			m.activeTab = tabID(msg.String()[0] - '1')
		case "s":
			if m.activeTab == tabRecent {
				m.sortAsc = !m.sortAsc
				m.rebuild(tabRecent)
				m.viewports[tabRecent].GotoTop()
			}
		case "up", "k":
			if m.activeTab == tabWindows && m.cursor > 0 {
				m.cursor--
				m.rebuild(tabWindows)
				return m, nil
			}
		case "down", "j":
			if m.activeTab == tabWindows && m.cursor < len(m.rows)-1 {
				m.cursor++
				m.rebuild(tabWindows)
				return m, nil
			}
		case "enter", " ":
			if m.activeTab == tabWindows && len(m.rows) > 0 {
				if m.expanded[m.cursor] {
					delete(m.expanded, m.cursor)
				} else {
					m.expanded[m.cursor] = true
				}
				m.rebuild(tabWindows)
				return m, nil
			}
		}
		var cmd tea.Cmd
		m.viewports[m.activeTab], cmd = m.viewports[m.activeTab].Update(msg)
		return m, cmd

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true
		m.initViewports()
		return m, nil
	}
	return m, nil
}

func (m Model) View() string {
	if !m.ready {
		return "Loading…"
	}

	title := titleStyle.Width(m.width).Render("  tabsession  " + m.filename)

	var tabParts []string
	for i := tabID(0); i < tabCount; i++ {
		label := fmt.Sprintf(" %d %s ", i+1, tabNames[i])
		if i == m.activeTab {
			tabParts = append(tabParts, activeTabStyle.Render(label))
		} else {
			tabParts = append(tabParts, inactiveTabStyle.Render(label))
		}
		if i < tabCount-1 {
			tabParts = append(tabParts, tabSepStyle.Render("│"))
		}
	}
	tabRow := lipgloss.NewStyle().
		Background(lipgloss.Color("235")).
		Width(m.width).
		Render(lipgloss.JoinHorizontal(lipgloss.Top, tabParts...))

	content := m.viewports[m.activeTab].View()

	hint := "  ←/→ tab  ↑/↓ scroll  1-4 jump  q quit"
	switch m.activeTab {
	case tabRecent:
		dir := "newest first"
		if m.sortAsc {
			dir = "oldest first"
		}
		hint += "  s sort (" + dir + ")"
	case tabWindows:
		hint += "  enter history"
	}
	pct := fmt.Sprintf("%3.0f%%", m.viewports[m.activeTab].ScrollPercent()*100)
	pad := max(m.width-lipgloss.Width(hint)-len(pct)-2, 1)
	statusBar := statusBarStyle.Width(m.width).Render(
		hint + strings.Repeat(" ", pad) + pct,
	)

	return lipgloss.JoinVertical(lipgloss.Left, title, tabRow, content, statusBar)
}

// ── Viewport management ───────────────────────────────────────────────────────

func (m *Model) initViewports() {
	// title(1) + tabRow(1) + statusBar(1) = 3 fixed rows
	vpHeight := max(m.height-3, 1)
	for i := tabID(0); i < tabCount; i++ {
		vp := viewport.New(m.width, vpHeight)
		vp.SetContent(m.renderTab(i))
		m.viewports[i] = vp
	}
}

func (m *Model) rebuild(t tabID) {
	m.viewports[t].SetContent(m.renderTab(t))
}

// ── Tab renderers ─────────────────────────────────────────────────────────────

func (m *Model) renderTab(t tabID) string {
	switch t {
	case tabSummary:
		return m.renderSummary()
	case tabWindows:
		return m.renderWindows()
	case tabRecent:
		return m.renderRecent()
	case tabCommands:
		return m.renderCommands()
	}
	return ""
}

func heading(s string) string {
	return "\n" + sectionHeader.Render("  "+s) + "\n\n"
}

func (m *Model) renderSummary() string {
	meta := m.bundle.Meta
	var sb strings.Builder
	sb.WriteString(heading("Session"))

	row := func(label, value string) {
		sb.WriteString(labelStyle.Render(fmt.Sprintf("  %-18s", label)) + "  " + value + "\n")
	}
	row("Data dir:", meta.DataDir)
	if meta.SessionLog != "" {
		row("Session log:", meta.SessionLog)
	}
	if meta.TabsLog != "" {
		row("Tabs log:", meta.TabsLog)
	}
	if !meta.CreatedAt.IsZero() {
		row("Read at:", meta.CreatedAt.Format("2006-01-02 15:04:05 MST"))
	}

	sb.WriteString(heading("Counts"))
	row("Windows:", fmt.Sprintf("%d", len(m.bundle.Windows)))
	row("Tabs:", fmt.Sprintf("%d", m.bundle.TabCount()))
	row("Recently closed:", fmt.Sprintf("%d", len(m.bundle.Recent)))
	row("Commands:", fmt.Sprintf("%d", meta.Commands))
	return sb.String()
}

func (m *Model) renderWindows() string {
	var sb strings.Builder
	sb.WriteString(heading(fmt.Sprintf("Windows (%d)", len(m.bundle.Windows))))
	if len(m.rows) == 0 {
		sb.WriteString(dimStyle.Render("  (nothing to restore)") + "\n")
		return sb.String()
	}
	lastWindow := -1
	for i, ref := range m.rows {
		w := m.bundle.Windows[ref.window]
		if ref.window != lastWindow {
			lastWindow = ref.window
			state := ""
			if w.Maximized {
				state = " maximized"
			}
			sb.WriteString(labelStyle.Render(fmt.Sprintf("  Window %d", ref.window+1)) +
				dimStyle.Render(fmt.Sprintf("  id %d  %dx%d%s", w.ID, w.Bounds.Width, w.Bounds.Height, state)) + "\n")
		}
		t := w.Tabs[ref.tab]

		toggle := dimStyle.Render("  ▶ ")
		if m.expanded[i] {
			toggle = dimStyle.Render("  ▼ ")
		}
		sel := "  "
		if ref.tab == w.SelectedTabIndex {
			sel = kindTabStyle.Render("● ")
		}
		row := fmt.Sprintf("%s%s%s  %s", toggle, sel, t.CurrentTitle(), dimStyle.Render(t.CurrentURL()))
		if i == m.cursor {
			row = selectedRowStyle.Width(max(m.width-2, 1)).Render(row)
		}
		sb.WriteString(row + "\n")
		if m.expanded[i] {
			sb.WriteString(renderHistory(t))
		}
	}
	return sb.String()
}

// renderHistory lists a tab's navigations, marking the current one.
func renderHistory(t bundle.Tab) string {
	var sb strings.Builder
	for i, n := range t.Navigations {
		mark := "   "
		if i == t.CurrentNavigationIndex {
			mark = " → "
		}
		line := fmt.Sprintf("      %s%3d  %s", mark, n.Index, n.URL)
		if n.PostData {
			line += postStyle.Render("  [POST]")
		}
		sb.WriteString(line + "\n")
	}
	return sb.String()
}

func (m *Model) renderRecent() string {
	var sb strings.Builder

	dir := "newest first"
	if m.sortAsc {
		dir = "oldest first"
	}
	sb.WriteString(heading(fmt.Sprintf("Recently closed (%d, %s)", len(m.bundle.Recent), dir)))
	if len(m.bundle.Recent) == 0 {
		sb.WriteString(dimStyle.Render("  (none)") + "\n")
		return sb.String()
	}

	// The list is stored newest first.
	entries := slices.Clone(m.bundle.Recent)
	if m.sortAsc {
		slices.Reverse(entries)
	}

	for _, e := range entries {
		ts := timeStyle.Render("        ")
		if !e.Timestamp.IsZero() {
			ts = timeStyle.Render(e.Timestamp.Local().Format("15:04:05"))
		}
		prev := ""
		if e.FromLastSession {
			prev = dimStyle.Render("  (previous run)")
		}
		switch e.Kind {
		case bundle.KindWindow:
			badge := kindWindowStyle.Render(fmt.Sprintf("  %-8s", "WINDOW"))
			sb.WriteString(ts + badge + fmt.Sprintf("  %d tabs", len(e.Tabs)) + prev + "\n")
			for _, t := range e.Tabs {
				sb.WriteString(dimStyle.Render("                      "+t.CurrentURL()) + "\n")
			}
		default:
			badge := kindTabStyle.Render(fmt.Sprintf("  %-8s", "TAB"))
			text := ""
			if len(e.Tabs) > 0 {
				text = e.Tabs[0].CurrentTitle()
			}
			sb.WriteString(ts + badge + "  " + text + prev + "\n")
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func (m *Model) renderCommands() string {
	var sb strings.Builder
	sb.WriteString(heading(fmt.Sprintf("Commands (%d)", len(m.log))))
	if len(m.log) == 0 {
		sb.WriteString(dimStyle.Render("  (none)") + "\n")
		return sb.String()
	}
	for i, r := range m.log {
		num := dimStyle.Render(fmt.Sprintf("  %4d.", i+1))
		sb.WriteString(num + "  " + commandStyle.Render(r.Name) + dimStyle.Render(fmt.Sprintf("  %d bytes", r.Size)) + "\n")
	}
	return sb.String()
}

// Run starts the TUI for b.
func Run(b *bundle.SessionBundle, log []LogRecord, filename string) error {
	p := tea.NewProgram(New(b, log, filename), tea.WithAltScreen())
	_, err := p.Run()
	return err
}

package cmd

import (
	"fmt"
	"io"
	"path/filepath"
	"slices"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fakeyudi/tabsession/internal/backend"
	"github.com/fakeyudi/tabsession/internal/session"
	"github.com/fakeyudi/tabsession/internal/sessionid"
	"github.com/fakeyudi/tabsession/internal/tabrestore"
	"github.com/fakeyudi/tabsession/internal/taskloop"
)

var (
	simWindows     int
	simTabs        int
	simNavs        int
	simCloseTabs   int
	simCloseWindow bool
	simRestore     bool
	simCrashed     bool
	simMetrics     bool
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run a scripted browser against the data directory",
	Long: `Open windows and tabs, navigate, close and restore them the way a browser
would, writing real session and tab restore logs into the data directory.
Each run starts like a browser launch: the previous run's logs become the
last logs and its recently closed entries are loaded back.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if simWindows < 1 || simTabs < 1 || simNavs < 1 {
			return fmt.Errorf("--windows, --tabs and --navs must be at least 1")
		}
		return runSimulation(cmd.OutOrStdout())
	},
}

func runSimulation(out io.Writer) error {
	ui, worker := taskloop.New(), taskloop.New()
	defer worker.Close()
	defer ui.Close()
	onUI := func(f func()) {
		done := make(chan struct{})
		ui.Post(func() {
			defer close(done)
			f()
		})
		<-done
	}

	opts := session.Options{
		Logger:    logger,
		Metrics:   counters,
		UI:        ui,
		Backend:   worker,
		SaveDelay: saveDelay(),
	}
	ids := sessionid.NewGenerator(0)
	world := &simWorld{ids: ids}
	sim := &simulation{world: world}
	world.onTabAdded = sim.tabAdded
	world.onBrowserCreated = sim.browserCreated

	onUI(func() {
		sim.sessions = session.NewService(cfg.DataDir, world, opts)
		sim.tabs = tabrestore.NewService(cfg.DataDir, world, tabrestore.Options{Options: opts, IDs: sessionid.NewGenerator(0)})
		sim.tabs.LoadTabsFromLastSession(tabrestore.LoadOptions{
			PreviousSession:    sim.sessions,
			LastSessionCrashed: simCrashed,
		})
	})
	// Loading reads on the I/O loop and answers on the UI loop.
	worker.Flush()
	ui.Flush()

	var loaded int
	onUI(func() {
		loaded = len(sim.tabs.Entries())
		sim.run()
	})
	fmt.Fprintf(out, "loaded %d recently closed entries from the previous run\n", loaded)
	for _, line := range sim.journal {
		fmt.Fprintln(out, line)
	}

	onUI(func() {
		sim.tabs.Shutdown()
		sim.sessions.Shutdown()
	})
	worker.Flush()

	for _, typ := range []backend.SessionType{backend.SessionRestore, backend.TabRestore} {
		path := filepath.Join(cfg.DataDir, typ.CurrentFileName())
		line, err := summarizeLog(typ, path)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s: %s\n", typ.CurrentFileName(), line)
	}
	if simMetrics {
		return writeMetrics(out)
	}
	return nil
}

// simulation replays a scripted browser against both services. It runs on
// the UI loop.
type simulation struct {
	world    *simWorld
	sessions *session.Service
	tabs     *tabrestore.Service
	journal  []string
}

func (s *simulation) logf(format string, args ...any) {
	s.journal = append(s.journal, fmt.Sprintf(format, args...))
}

func (s *simulation) run() {
	for w := range simWindows {
		b := s.world.createBrowser()
		for t := range simTabs {
			tab := b.addTab(len(b.tabs))
			for n := range simNavs {
				s.navigate(b, tab, session.NavigationEntry{
					URL:   fmt.Sprintf("https://example.com/w%d/t%d/%d", w+1, t+1, n+1),
					Title: fmt.Sprintf("Window %d tab %d page %d", w+1, t+1, n+1),
				})
			}
		}
		b.selected = len(b.tabs) - 1
		s.sessions.SetSelectedTabInWindow(b.id, b.selected)
		s.logf("opened window %s with %d tabs", b.id, len(b.tabs))
	}

	first := s.world.browsers[0]
	for range min(simCloseTabs, len(first.tabs)) {
		s.closeTab(first, len(first.tabs)-1)
	}

	if simCloseWindow && len(s.world.browsers) > 1 {
		s.closeWindow(s.world.browsers[len(s.world.browsers)-1])
	}

	if simRestore {
		if entries := s.tabs.Entries(); len(entries) > 0 {
			id := entries[0].Base().ID
			s.tabs.RestoreMostRecentEntry(first)
			s.logf("restored entry %s, %d left", id, len(s.tabs.Entries()))
		}
	}
}

func (s *simulation) navigate(b *simBrowser, t *simTab, entry session.NavigationEntry) {
	// A new navigation drops the forward history.
	if t.current+1 < len(t.entries) {
		t.entries = t.entries[:t.current+1]
		s.sessions.TabNavigationPathPrunedFromBack(b.id, t.id, len(t.entries))
	}
	t.entries = append(t.entries, entry)
	t.current = len(t.entries) - 1
	s.sessions.NavigationEntryCommitted(b.id, t.id, t.current, entry)
}

func (s *simulation) closeTab(b *simBrowser, index int) {
	tab := b.tabs[index]
	s.tabs.CreateHistoricalTab(tab, index)
	b.tabs = slices.Delete(b.tabs, index, index+1)
	s.sessions.TabClosed(b.id, tab.id)
	for i := index; i < len(b.tabs); i++ {
		s.sessions.SetTabIndexInWindow(b.id, b.tabs[i].id, i)
	}
	if b.selected >= len(b.tabs) && len(b.tabs) > 0 {
		b.selected = len(b.tabs) - 1
		s.sessions.SetSelectedTabInWindow(b.id, b.selected)
	}
	s.logf("closed tab %s of window %s", tab.id, b.id)
}

func (s *simulation) closeWindow(b *simBrowser) {
	s.tabs.BrowserClosing(b)
	s.sessions.WindowClosing(b.id)
	for len(b.tabs) > 0 {
		tab := b.tabs[len(b.tabs)-1]
		b.tabs = b.tabs[:len(b.tabs)-1]
		s.sessions.TabClosed(b.id, tab.id)
	}
	s.world.remove(b)
	s.sessions.WindowClosed(b.id)
	s.tabs.BrowserClosed(b)
	s.logf("closed window %s", b.id)
}

func (s *simulation) browserCreated(b *simBrowser) {
	s.sessions.WindowOpened(b.id, session.TypeNormal)
	s.sessions.SetWindowType(b.id, session.TypeNormal)
	s.sessions.SetWindowBounds(b.id, b.bounds, false)
}

func (s *simulation) tabAdded(b *simBrowser, t *simTab, index int) {
	s.sessions.SetTabWindow(b.id, t.id)
	s.sessions.SetTabIndexInWindow(b.id, t.id, index)
	if len(t.entries) > 0 {
		s.sessions.TabRestored(t)
	}
}

// simTab is a scripted tab with a linear history.
type simTab struct {
	id, window sessionid.ID
	entries    []session.NavigationEntry
	current    int
}

func (t *simTab) SessionID() sessionid.ID               { return t.id }
func (t *simTab) WindowID() sessionid.ID                { return t.window }
func (t *simTab) EntryCount() int                       { return len(t.entries) }
func (t *simTab) EntryAt(i int) session.NavigationEntry { return t.entries[i] }
func (t *simTab) CurrentEntryIndex() int                { return t.current }

// simBrowser is a scripted window.
type simBrowser struct {
	world    *simWorld
	id       sessionid.ID
	bounds   session.Rect
	selected int
	tabs     []*simTab
}

func (b *simBrowser) SessionID() sessionid.ID  { return b.id }
func (b *simBrowser) Type() session.WindowType { return session.TypeNormal }
func (b *simBrowser) Bounds() session.Rect     { return b.bounds }
func (b *simBrowser) IsMaximized() bool        { return false }
func (b *simBrowser) SelectedIndex() int       { return b.selected }
func (b *simBrowser) TabCount() int            { return len(b.tabs) }
func (b *simBrowser) Show()                    {}

func (b *simBrowser) TabAt(i int) session.NavigationController {
	if i < 0 || i >= len(b.tabs) {
		return nil
	}
	return b.tabs[i]
}

func (b *simBrowser) addTab(index int) *simTab {
	t := &simTab{id: b.world.ids.Next(), window: b.id, current: -1}
	b.tabs = slices.Insert(b.tabs, index, t)
	b.world.onTabAdded(b, t, index)
	return t
}

func (b *simBrowser) AddRestoredTab(navs []session.TabNavigation, index, selectedNavigation int, selected bool) {
	t := &simTab{id: b.world.ids.Next(), window: b.id, current: selectedNavigation}
	for _, n := range navs {
		t.entries = append(t.entries, n.Entry())
	}
	b.tabs = slices.Insert(b.tabs, index, t)
	if selected {
		b.selected = index
	}
	b.world.onTabAdded(b, t, index)
}

func (b *simBrowser) ReplaceRestoredTab(navs []session.TabNavigation, selectedNavigation int) {
	if len(b.tabs) == 0 {
		b.AddRestoredTab(navs, 0, selectedNavigation, true)
		return
	}
	t := b.tabs[b.selected]
	t.entries = t.entries[:0]
	for _, n := range navs {
		t.entries = append(t.entries, n.Entry())
	}
	t.current = selectedNavigation
	b.world.onTabAdded(b, t, b.selected)
}

// simWorld is the set of open scripted windows.
type simWorld struct {
	ids              *sessionid.Generator
	browsers         []*simBrowser
	onTabAdded       func(*simBrowser, *simTab, int)
	onBrowserCreated func(*simBrowser)
}

func (w *simWorld) Browsers() []session.Browser {
	out := make([]session.Browser, len(w.browsers))
	for i, b := range w.browsers {
		out[i] = b
	}
	return out
}

func (w *simWorld) FindBrowserWithID(id sessionid.ID) tabrestore.Browser {
	for _, b := range w.browsers {
		if b.id == id {
			return b
		}
	}
	return nil
}

func (w *simWorld) CreateBrowser() tabrestore.Browser {
	return w.createBrowser()
}

func (w *simWorld) createBrowser() *simBrowser {
	n := len(w.browsers)
	b := &simBrowser{
		world:  w,
		id:     w.ids.Next(),
		bounds: session.Rect{X: 40 * n, Y: 40 * n, Width: 1280, Height: 800},
	}
	w.browsers = append(w.browsers, b)
	w.onBrowserCreated(b)
	return b
}

func (w *simWorld) remove(b *simBrowser) {
	if i := slices.Index(w.browsers, b); i >= 0 {
		w.browsers = slices.Delete(w.browsers, i, i+1)
	}
}

// writeMetrics prints every counter of this run's registry.
func writeMetrics(out io.Writer) error {
	families, err := registry.Gather()
	if err != nil {
		return err
	}
	var lines []string
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			var labels []string
			for _, lp := range m.GetLabel() {
				labels = append(labels, lp.GetName()+"="+lp.GetValue())
			}
			value := m.GetGauge().GetValue()
			if c := m.GetCounter(); c != nil {
				value = c.GetValue()
			}
			lines = append(lines, fmt.Sprintf("%s{%s} %g", mf.GetName(), strings.Join(labels, ","), value))
		}
	}
	sort.Strings(lines)
	for _, l := range lines {
		fmt.Fprintln(out, l)
	}
	return nil
}

func init() {
	f := simulateCmd.Flags()
	f.IntVar(&simWindows, "windows", 2, "windows to open")
	f.IntVar(&simTabs, "tabs", 3, "tabs per window")
	f.IntVar(&simNavs, "navs", 3, "navigations per tab")
	f.IntVar(&simCloseTabs, "close-tabs", 1, "tabs to close in the first window")
	f.BoolVar(&simCloseWindow, "close-window", true, "close the last window when more than one is open")
	f.BoolVar(&simRestore, "restore", false, "restore the most recently closed entry into the first window")
	f.BoolVar(&simCrashed, "crashed", false, "treat the previous run as crashed and offer its windows as closed windows")
	f.BoolVar(&simMetrics, "metrics", false, "print the counters collected during the run")
	rootCmd.AddCommand(simulateCmd)
}

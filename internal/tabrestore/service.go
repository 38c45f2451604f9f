package tabrestore

import (
	"slices"

	"go.uber.org/zap"

	"github.com/fakeyudi/tabsession/internal/backend"
	"github.com/fakeyudi/tabsession/internal/invariant"
	"github.com/fakeyudi/tabsession/internal/session"
	"github.com/fakeyudi/tabsession/internal/sessionid"
)

const (
	// MaxEntries caps the recently closed list.
	MaxEntries = 10

	// entriesPerReset is how many entries are appended to the log before it
	// is rewritten from the list.
	entriesPerReset = 40

	// maxPersistNavigationCount is how many navigations on each side of the
	// selected one are written per tab.
	maxPersistNavigationCount = 6
)

// Options configures a Service.
type Options struct {
	session.Options
	// IDs hands out entry ids. Entry ids have their own counter, separate
	// from the one handing out window and tab ids. Nil starts a private one.
	IDs *sessionid.Generator
}

// Service is the recently closed list. Entries are most recent first. It is
// not safe for concurrent use; all calls must come from the UI runner.
type Service struct {
	*session.BaseService

	ids  *sessionid.Generator
	host BrowserHost

	entries   []Entry
	observers []Observer

	// Set while an entry is being restored so the tabs it creates and
	// closes are not recorded.
	restoring bool
	// Set once the list overflowed; loading no longer adds old entries.
	reachedMax bool

	// Entries at the front of the list not yet written.
	entriesToWrite int
	// Entries written since the last reset.
	entriesWritten int

	closingBrowsers map[sessionid.ID]struct{}

	loadState      loadState
	loadConsumer   session.Consumer
	stagingEntries []Entry
}

// NewService returns a service writing "Current Tabs" under dir. host may be
// nil, in which case windows cannot be restored.
func NewService(dir string, host BrowserHost, opts Options) *Service {
	s := &Service{
		BaseService:     session.NewBaseService(backend.TabRestore, dir, opts.Options),
		ids:             opts.IDs,
		host:            host,
		closingBrowsers: make(map[sessionid.ID]struct{}),
	}
	if s.ids == nil {
		s.ids = sessionid.NewGenerator(0)
	}
	s.SetSaveFunc(s.Save)
	return s
}

// AddObserver registers o.
func (s *Service) AddObserver(o Observer) {
	s.observers = append(s.observers, o)
}

// RemoveObserver unregisters o.
func (s *Service) RemoveObserver(o Observer) {
	if i := slices.Index(s.observers, o); i >= 0 {
		s.observers = slices.Delete(s.observers, i, i+1)
	}
}

// Entries returns the list, most recent first. The slice must not be
// modified.
func (s *Service) Entries() []Entry { return s.entries }

// CreateHistoricalTab records a tab that is being closed at tabstripIndex of
// its window. Tabs closed while restoring or as part of closing their
// window are not recorded, nor are tabs with nothing that can be written.
func (s *Service) CreateHistoricalTab(tab session.NavigationController, tabstripIndex int) {
	if s.restoring {
		return
	}
	if _, closing := s.closingBrowsers[tab.WindowID()]; closing {
		return
	}
	t := s.populateTab(tab, tab.WindowID(), tabstripIndex)
	if selectedNavigationIndexToPersist(t) == -1 {
		return
	}
	s.addEntry(t, true, true)
}

// BrowserClosing records a window that is being closed. Its tabs are then
// ignored by CreateHistoricalTab until BrowserClosed. A window none of whose
// tabs has a navigation that can be written is not recorded.
func (s *Service) BrowserClosing(b session.Browser) {
	s.closingBrowsers[b.SessionID()] = struct{}{}
	if !session.ShouldTrackChangesForWindowType(b.Type()) || b.TabCount() == 0 {
		return
	}

	w := &Window{EntryBase: EntryBase{ID: s.ids.Next(), Timestamp: s.Now()}}
	selected := b.SelectedIndex()
	keptBeforeSelected := 0
	for i := range b.TabCount() {
		tab := b.TabAt(i)
		if tab == nil {
			continue
		}
		t := s.populateTab(tab, b.SessionID(), i)
		if selectedNavigationIndexToPersist(t) == -1 {
			continue
		}
		if i < selected {
			keptBeforeSelected++
		}
		w.Tabs = append(w.Tabs, t)
	}
	if len(w.Tabs) == 0 {
		return
	}
	w.SelectedTabIndex = min(keptBeforeSelected, len(w.Tabs)-1)
	s.addEntry(w, true, true)
}

// BrowserClosed ends the window close started by BrowserClosing.
func (s *Service) BrowserClosed(b session.Browser) {
	delete(s.closingBrowsers, b.SessionID())
}

// ClearEntries empties the list and rewrites the log so nothing comes back
// on the next run.
func (s *Service) ClearEntries() {
	for _, e := range s.entries {
		s.ScheduleCommand(createRestoredEntryCommand(e.Base().ID))
	}
	s.entriesToWrite = 0
	s.SetPendingReset(true)
	// Save does nothing without a pending command.
	s.ScheduleCommand(createRestoredEntryCommand(1))

	s.entries = nil
	s.notifyTabsChanged()
}

// RestoreMostRecentEntry restores the front of the list into browser.
func (s *Service) RestoreMostRecentEntry(browser Browser) {
	if len(s.entries) == 0 {
		return
	}
	s.RestoreEntryByID(browser, s.entries[0].Base().ID, false)
}

// RestoreEntryByID removes the entry with id from the list and recreates
// it. A tab goes back to the window it was closed in when that window is
// still open, otherwise into browser, replacing its selected tab when
// replaceExistingTab is set. A window gets a new browser. Unknown ids are
// ignored.
func (s *Service) RestoreEntryByID(browser Browser, id sessionid.ID, replaceExistingTab bool) {
	i := slices.IndexFunc(s.entries, func(e Entry) bool { return e.Base().ID == id })
	if i < 0 {
		return
	}
	if i < s.entriesToWrite {
		s.entriesToWrite--
	}
	s.ScheduleCommand(createRestoredEntryCommand(id))

	entry := s.entries[i]
	s.entries = slices.Delete(s.entries, i, i+1)

	s.restoring = true
	switch e := entry.(type) {
	case *Tab:
		s.restoreTab(browser, e, replaceExistingTab)
	case *Window:
		s.restoreWindow(e)
	}
	s.restoring = false

	s.notifyTabsChanged()
}

func (s *Service) restoreTab(browser Browser, t *Tab, replace bool) {
	if replace && browser != nil {
		browser.ReplaceRestoredTab(t.Navigations, t.CurrentNavigationIndex)
		return
	}

	var target Browser
	index := -1
	if t.BrowserID != 0 && s.host != nil {
		target = s.host.FindBrowserWithID(t.BrowserID)
	}
	switch {
	case target != nil:
		index = t.TabstripIndex
	case browser != nil:
		target = browser
	case s.host != nil:
		target = s.host.CreateBrowser()
		defer target.Show()
	default:
		s.Logger().Warn("no window to restore tab into", zap.Stringer("entry", t.ID))
		return
	}
	if index < 0 || index > target.TabCount() {
		index = target.TabCount()
	}
	target.AddRestoredTab(t.Navigations, index, t.CurrentNavigationIndex, true)
}

func (s *Service) restoreWindow(w *Window) {
	if s.host == nil {
		s.Logger().Warn("no browser host to restore window into", zap.Stringer("entry", w.ID))
		return
	}
	b := s.host.CreateBrowser()
	for i, t := range w.Tabs {
		b.AddRestoredTab(t.Navigations, b.TabCount(), t.CurrentNavigationIndex, i == w.SelectedTabIndex)
	}
	b.Show()
}

// Save turns the entries added since the last save into commands and hands
// them to the backend. Every entriesPerReset entries the whole list is
// written over a fresh log instead.
func (s *Service) Save() {
	toWrite := min(s.entriesToWrite, len(s.entries))
	s.entriesToWrite = 0
	if s.entriesWritten+toWrite > entriesPerReset {
		toWrite = len(s.entries)
		s.SetPendingReset(true)
	}
	// Oldest first, so the log reads in the order entries were added.
	for i := toWrite - 1; i >= 0; i-- {
		switch e := s.entries[i].(type) {
		case *Tab:
			if selected := selectedNavigationIndexToPersist(e); selected != -1 {
				s.scheduleCommandsForTab(e, selected)
			}
		case *Window:
			s.scheduleCommandsForWindow(e)
		}
		s.entriesWritten++
	}
	if s.PendingReset() {
		s.entriesWritten = 0
	}
	s.BaseService.Save()
}

// Shutdown saves, tells observers, and closes the backend.
func (s *Service) Shutdown() {
	s.loadConsumer.CancelAll()
	s.BaseService.Shutdown()
	for _, o := range slices.Clone(s.observers) {
		o.TabRestoreServiceDestroyed(s)
	}
	s.entries = nil
	s.stagingEntries = nil
}

func (s *Service) scheduleCommandsForWindow(w *Window) {
	if len(w.Tabs) == 0 {
		invariant.Violated(s.Logger(), "window entry without tabs", zap.Stringer("entry", w.ID))
		return
	}
	selected := w.SelectedTabIndex
	valid := 0
	for i, t := range w.Tabs {
		if selectedNavigationIndexToPersist(t) != -1 {
			valid++
		} else if i < w.SelectedTabIndex {
			selected--
		}
	}
	if valid == 0 {
		return
	}
	s.ScheduleCommand(createWindowCommand(w.ID, min(selected, valid-1), valid))
	for _, t := range w.Tabs {
		if i := selectedNavigationIndexToPersist(t); i != -1 {
			s.scheduleCommandsForTab(t, i)
		}
	}
}

// scheduleCommandsForTab writes up to maxPersistNavigationCount writable
// navigations before selected and as many after, renumbered from zero.
func (s *Service) scheduleCommandsForTab(t *Tab, selected int) {
	navs := t.Navigations
	first := selected
	before := 0
	for i := selected - 1; i >= 0 && before < maxPersistNavigationCount; i-- {
		if session.ShouldTrackEntry(navs[i].Entry()) {
			first = i
			before++
		}
	}
	s.ScheduleCommand(createSelectedNavigationInTabCommand(t.ID, before))

	wrote := 0
	for i := first; i < len(navs) && wrote < 2*maxPersistNavigationCount; i++ {
		if session.ShouldTrackEntry(navs[i].Entry()) {
			s.ScheduleCommand(createUpdateTabNavigationCommand(t.ID, wrote, navs[i]))
			wrote++
		}
	}
}

func (s *Service) populateTab(tab session.NavigationController, browserID sessionid.ID, tabstripIndex int) *Tab {
	t := &Tab{
		EntryBase:     EntryBase{ID: s.ids.Next(), Timestamp: s.Now()},
		BrowserID:     browserID,
		TabstripIndex: tabstripIndex,
	}
	n := tab.EntryCount()
	t.Navigations = make([]session.TabNavigation, n)
	for i := range n {
		t.Navigations[i] = session.NavigationFromEntry(i, tab.EntryAt(i))
	}
	t.CurrentNavigationIndex = tab.CurrentEntryIndex()
	if t.CurrentNavigationIndex == -1 && n > 0 {
		t.CurrentNavigationIndex = 0
	}
	return t
}

func (s *Service) addEntry(e Entry, notify, toFront bool) {
	if toFront {
		s.entries = slices.Insert(s.entries, 0, e)
	} else {
		s.entries = append(s.entries, e)
	}
	if notify {
		s.pruneAndNotify()
	}
	s.StartSaveTimer()
	s.entriesToWrite++
}

func (s *Service) pruneAndNotify() {
	if len(s.entries) > MaxEntries {
		s.entries = s.entries[:MaxEntries]
		s.reachedMax = true
	}
	s.notifyTabsChanged()
}

func (s *Service) notifyTabsChanged() {
	s.Metrics().RestoreEntries.Set(float64(len(s.entries)))
	for _, o := range slices.Clone(s.observers) {
		o.TabRestoreServiceChanged(s)
	}
}

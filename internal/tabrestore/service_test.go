package tabrestore

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fakeyudi/tabsession/internal/backend"
	"github.com/fakeyudi/tabsession/internal/command"
	"github.com/fakeyudi/tabsession/internal/metrics"
	"github.com/fakeyudi/tabsession/internal/session"
	"github.com/fakeyudi/tabsession/internal/sessionid"
	"github.com/fakeyudi/tabsession/internal/taskloop"
)

func newTestService(t *testing.T, dir string, host BrowserHost) *Service {
	t.Helper()
	s := NewService(dir, host, Options{IDs: sessionid.NewGenerator(100)})
	t.Cleanup(s.Shutdown)
	return s
}

// reopen shuts s down and loads its entries in a new service, as the next
// run would.
func reopen(t *testing.T, s *Service, dir string, host BrowserHost) *Service {
	t.Helper()
	s.Shutdown()
	next := newTestService(t, dir, host)
	next.LoadTabsFromLastSession(LoadOptions{})
	require.True(t, next.IsLoaded())
	return next
}

func urlOf(t *testing.T, e Entry) string {
	t.Helper()
	tab, ok := e.(*Tab)
	require.True(t, ok, "entry %d is a %T", e.Base().ID, e)
	return tab.Navigations[tab.CurrentNavigationIndex].URL
}

func urls(t *testing.T, entries []Entry) []string {
	var out []string
	for _, e := range entries {
		out = append(out, urlOf(t, e))
	}
	return out
}

func currentFileCommands(t *testing.T, dir string) []command.Command {
	t.Helper()
	cmds, err := backend.ReadFile(filepath.Join(dir, backend.TabRestore.CurrentFileName()))
	require.NoError(t, err)
	return cmds
}

func countIDs(cmds []command.Command, id command.ID) int {
	n := 0
	for _, c := range cmds {
		if c.ID() == id {
			n++
		}
	}
	return n
}

func TestListIsBounded(t *testing.T) {
	s := newTestService(t, t.TempDir(), nil)
	for i := range MaxEntries + 5 {
		s.CreateHistoricalTab(tabWithURLs(sessionid.ID(i+1), 1, 0, fmt.Sprintf("http://%d", i)), 0)
	}

	entries := s.Entries()
	require.Len(t, entries, MaxEntries)
	for i, e := range entries {
		assert.Equal(t, fmt.Sprintf("http://%d", MaxEntries+4-i), urlOf(t, e))
	}
	assert.True(t, s.reachedMax)
}

func TestTabsWithNothingToWriteAreDropped(t *testing.T) {
	s := newTestService(t, t.TempDir(), nil)

	s.CreateHistoricalTab(&fakeTab{id: 1, windowID: 1, current: -1}, 0)
	posted := tabWithURLs(2, 1, 0, "http://form")
	posted.entries[0].HasPostData = true
	s.CreateHistoricalTab(posted, 0)
	assert.Empty(t, s.Entries())

	mixed := tabWithURLs(3, 1, 1, "http://a", "http://form")
	mixed.entries[1].HasPostData = true
	s.CreateHistoricalTab(mixed, 0)
	require.Len(t, s.Entries(), 1)
	// POST entries stay in memory so this run can restore them.
	assert.Len(t, s.Entries()[0].(*Tab).Navigations, 2)
}

func TestEntriesSurviveRestart(t *testing.T) {
	dir := t.TempDir()
	s := newTestService(t, dir, nil)
	for i, u := range []string{"http://a", "http://b", "http://c"} {
		s.CreateHistoricalTab(tabWithURLs(sessionid.ID(i+1), 1, 0, u), i)
	}

	next := reopen(t, s, dir, nil)
	entries := next.Entries()
	assert.Equal(t, []string{"http://c", "http://b", "http://a"}, urls(t, entries))
	for _, e := range entries {
		assert.True(t, e.Base().FromLastSession)
	}

	// Loaded entries are written to the fresh log, so they survive one more
	// restart too.
	again := reopen(t, next, dir, nil)
	assert.Equal(t, []string{"http://c", "http://b", "http://a"}, urls(t, again.Entries()))
}

func TestLoadAppendsBehindNewEntries(t *testing.T) {
	dir := t.TempDir()
	s := newTestService(t, dir, nil)
	s.CreateHistoricalTab(tabWithURLs(1, 1, 0, "http://old"), 0)
	s.Shutdown()

	next := newTestService(t, dir, nil)
	next.CreateHistoricalTab(tabWithURLs(2, 1, 0, "http://new"), 0)
	next.LoadTabsFromLastSession(LoadOptions{})
	assert.Equal(t, []string{"http://new", "http://old"}, urls(t, next.Entries()))
	assert.False(t, next.Entries()[0].Base().FromLastSession)
	assert.True(t, next.Entries()[1].Base().FromLastSession)

	// A second load does nothing.
	next.LoadTabsFromLastSession(LoadOptions{})
	assert.Len(t, next.Entries(), 2)
}

func TestLoadSkippedOnceListFilledUp(t *testing.T) {
	dir := t.TempDir()
	s := newTestService(t, dir, nil)
	s.CreateHistoricalTab(tabWithURLs(1, 1, 0, "http://old"), 0)
	s.Shutdown()

	next := newTestService(t, dir, nil)
	for i := range MaxEntries + 1 {
		next.CreateHistoricalTab(tabWithURLs(sessionid.ID(i+10), 1, 0, fmt.Sprintf("http://%d", i)), 0)
	}
	next.LoadTabsFromLastSession(LoadOptions{})
	assert.False(t, next.IsLoaded())
	for _, e := range next.Entries() {
		assert.False(t, e.Base().FromLastSession)
	}
}

func TestLoadMergeIsTruncated(t *testing.T) {
	dir := t.TempDir()
	s := newTestService(t, dir, nil)
	for i := range 6 {
		s.CreateHistoricalTab(tabWithURLs(sessionid.ID(i+1), 1, 0, fmt.Sprintf("http://old%d", i)), 0)
	}
	s.Shutdown()

	next := newTestService(t, dir, nil)
	for i := range 7 {
		next.CreateHistoricalTab(tabWithURLs(sessionid.ID(i+10), 1, 0, fmt.Sprintf("http://new%d", i)), 0)
	}
	next.LoadTabsFromLastSession(LoadOptions{})
	got := urls(t, next.Entries())
	require.Len(t, got, MaxEntries)
	assert.Equal(t, []string{"http://old5", "http://old4", "http://old3"}, got[7:])
}

func TestCrashedSessionComesFirst(t *testing.T) {
	dir := t.TempDir()
	s := newTestService(t, dir, nil)
	s.CreateHistoricalTab(tabWithURLs(1, 1, 0, "http://closed-before-crash"), 0)
	s.Shutdown()

	previous := &fakeLastSession{windows: []*session.SessionWindow{{
		WindowID:         7,
		SelectedTabIndex: 1,
		Tabs: []*session.SessionTab{
			{TabID: 8, Navigations: []session.TabNavigation{{URL: "http://open1"}}},
			{TabID: 9},
			{TabID: 10, Navigations: []session.TabNavigation{{URL: "http://open2"}, {Index: 1, URL: "http://open3"}}, CurrentNavigationIndex: 1},
		},
	}}}

	next := newTestService(t, dir, nil)
	next.LoadTabsFromLastSession(LoadOptions{PreviousSession: previous, LastSessionCrashed: true})
	require.Equal(t, 1, previous.calls)

	entries := next.Entries()
	require.Len(t, entries, 2)
	w, ok := entries[0].(*Window)
	require.True(t, ok)
	require.Len(t, w.Tabs, 2)
	assert.Equal(t, 1, w.SelectedTabIndex)
	assert.Equal(t, "http://open3", w.Tabs[1].Navigations[w.Tabs[1].CurrentNavigationIndex].URL)
	assert.Equal(t, "http://closed-before-crash", urlOf(t, entries[1]))
}

func TestPreviousSessionIgnoredUnlessCrashedAndNotRestored(t *testing.T) {
	for _, opts := range []LoadOptions{
		{LastSessionCrashed: false},
		{LastSessionCrashed: true, RestoredLastSession: true},
	} {
		previous := &fakeLastSession{}
		opts.PreviousSession = previous
		s := newTestService(t, t.TempDir(), nil)
		s.LoadTabsFromLastSession(opts)
		assert.True(t, s.IsLoaded())
		assert.Zero(t, previous.calls)
	}
}

func TestRestoreTabIntoOriginalWindow(t *testing.T) {
	dir := t.TempDir()
	original := &fakeBrowser{id: 1, typ: session.TypeNormal, tabs: []*fakeTab{tabWithURLs(5, 1, 0, "http://x")}}
	host := &fakeHost{browsers: []*fakeBrowser{original}}
	s := newTestService(t, dir, host)
	obs := &fakeObserver{}
	s.AddObserver(obs)

	s.CreateHistoricalTab(tabWithURLs(2, 1, 1, "http://a", "http://b"), 0)
	s.CreateHistoricalTab(tabWithURLs(3, 1, 0, "http://c"), 7)
	require.Len(t, s.Entries(), 2)
	id := s.Entries()[1].Base().ID

	other := &fakeBrowser{id: 50, typ: session.TypeNormal}
	s.RestoreEntryByID(other, id, false)
	require.Len(t, original.restored, 1)
	assert.Equal(t, 0, original.restored[0].index)
	assert.Equal(t, 1, original.restored[0].selected)
	assert.True(t, original.restored[0].active)
	assert.Empty(t, other.restored)
	assert.Len(t, s.Entries(), 1)
	assert.Equal(t, 3, obs.changed)

	// The tabstrip index is clamped to the window's size.
	s.RestoreMostRecentEntry(other)
	require.Len(t, original.restored, 2)
	assert.Equal(t, 2, original.restored[1].index)
	assert.Empty(t, s.Entries())

	s.RemoveObserver(obs)
	s.CreateHistoricalTab(tabWithURLs(4, 1, 0, "http://d"), 0)
	assert.Equal(t, 4, obs.changed)
}

func TestRestoreTabWithoutOriginalWindow(t *testing.T) {
	host := &fakeHost{}
	s := newTestService(t, t.TempDir(), host)

	s.CreateHistoricalTab(tabWithURLs(2, 99, 0, "http://a"), 3)
	s.CreateHistoricalTab(tabWithURLs(3, 99, 0, "http://b"), 3)

	into := &fakeBrowser{id: 5, typ: session.TypeNormal}
	s.RestoreMostRecentEntry(into)
	require.Len(t, into.restored, 1)
	assert.Equal(t, 0, into.restored[0].index)

	s.RestoreMostRecentEntry(nil)
	require.Len(t, host.created, 1)
	assert.True(t, host.created[0].shown)
	assert.Len(t, host.created[0].restored, 1)
}

func TestRestoreReplacingExistingTab(t *testing.T) {
	s := newTestService(t, t.TempDir(), nil)
	s.CreateHistoricalTab(tabWithURLs(2, 1, 0, "http://a"), 0)

	b := &fakeBrowser{id: 5, typ: session.TypeNormal}
	s.RestoreEntryByID(b, s.Entries()[0].Base().ID, true)
	require.Len(t, b.replaced, 1)
	assert.Equal(t, "http://a", b.replaced[0].URL)
}

func TestRestoreUnknownIDIsIgnored(t *testing.T) {
	s := newTestService(t, t.TempDir(), nil)
	s.CreateHistoricalTab(tabWithURLs(2, 1, 0, "http://a"), 0)
	pending := len(s.PendingCommands())

	s.RestoreEntryByID(nil, 12345, false)
	assert.Len(t, s.Entries(), 1)
	assert.Len(t, s.PendingCommands(), pending)
}

func TestRestoredEntriesDoNotComeBack(t *testing.T) {
	dir := t.TempDir()
	s := newTestService(t, dir, nil)
	s.CreateHistoricalTab(tabWithURLs(2, 1, 0, "http://a"), 0)
	s.CreateHistoricalTab(tabWithURLs(3, 1, 0, "http://b"), 0)
	s.Save()

	s.RestoreMostRecentEntry(&fakeBrowser{id: 9, typ: session.TypeNormal})
	next := reopen(t, s, dir, nil)
	assert.Equal(t, []string{"http://a"}, urls(t, next.Entries()))
}

func TestWindowCloseAndRestore(t *testing.T) {
	dir := t.TempDir()
	host := &fakeHost{}
	s := newTestService(t, dir, host)

	b := &fakeBrowser{id: 1, typ: session.TypeNormal, selected: 2, tabs: []*fakeTab{
		tabWithURLs(2, 1, 0, "http://a"),
		{id: 3, windowID: 1, current: -1},
		tabWithURLs(4, 1, 1, "http://b", "http://c"),
	}}
	s.BrowserClosing(b)
	for _, tab := range b.tabs {
		s.CreateHistoricalTab(tab, 0)
	}
	s.BrowserClosed(b)

	require.Len(t, s.Entries(), 1)
	w, ok := s.Entries()[0].(*Window)
	require.True(t, ok)
	require.Len(t, w.Tabs, 2)
	assert.Equal(t, 1, w.SelectedTabIndex)

	// Closing tabs after the window is gone records them again.
	s.CreateHistoricalTab(tabWithURLs(5, 1, 0, "http://later"), 0)
	assert.Len(t, s.Entries(), 2)

	next := reopen(t, s, dir, host)
	require.Len(t, next.Entries(), 2)
	loaded, ok := next.Entries()[1].(*Window)
	require.True(t, ok)
	require.Len(t, loaded.Tabs, 2)
	assert.Equal(t, 1, loaded.SelectedTabIndex)
	assert.Equal(t, "http://c", loaded.Tabs[1].Navigations[loaded.Tabs[1].CurrentNavigationIndex].URL)

	next.RestoreEntryByID(nil, loaded.ID, false)
	require.Len(t, host.created, 1)
	created := host.created[0]
	require.Len(t, created.restored, 2)
	assert.False(t, created.restored[0].active)
	assert.True(t, created.restored[1].active)
	assert.Equal(t, 1, created.restored[1].index)
	assert.True(t, created.shown)
}

func TestSingleTabWindowIsRecordedAsWindow(t *testing.T) {
	host := &fakeHost{}
	s := newTestService(t, t.TempDir(), host)
	b := &fakeBrowser{id: 1, typ: session.TypeNormal, tabs: []*fakeTab{tabWithURLs(2, 1, 0, "http://a")}}
	s.BrowserClosing(b)
	s.CreateHistoricalTab(b.tabs[0], 0)
	s.BrowserClosed(b)

	require.Len(t, s.Entries(), 1)
	w, ok := s.Entries()[0].(*Window)
	require.True(t, ok, "got %T", s.Entries()[0])
	require.Len(t, w.Tabs, 1)
	assert.Equal(t, 0, w.SelectedTabIndex)
	assert.Equal(t, sessionid.ID(1), w.Tabs[0].BrowserID)

	// Restoring takes the window path: a new browser is created.
	s.RestoreMostRecentEntry(nil)
	require.Len(t, host.created, 1)
	require.Len(t, host.created[0].restored, 1)
	assert.True(t, host.created[0].shown)
}

func TestWindowOfPostOnlyTabsIsDropped(t *testing.T) {
	s := newTestService(t, t.TempDir(), nil)
	first := tabWithURLs(2, 1, 0, "http://form")
	first.entries[0].HasPostData = true
	second := tabWithURLs(3, 1, 1, "http://login", "http://submit")
	second.entries[0].HasPostData = true
	second.entries[1].HasPostData = true

	b := &fakeBrowser{id: 1, typ: session.TypeNormal, tabs: []*fakeTab{first, second}}
	s.BrowserClosing(b)
	for _, tab := range b.tabs {
		s.CreateHistoricalTab(tab, 0)
	}
	s.BrowserClosed(b)
	assert.Empty(t, s.Entries())
}

func TestWindowCloseSkipsPostOnlyTabs(t *testing.T) {
	s := newTestService(t, t.TempDir(), nil)
	posted := tabWithURLs(2, 1, 0, "http://form")
	posted.entries[0].HasPostData = true

	b := &fakeBrowser{id: 1, typ: session.TypeNormal, selected: 1, tabs: []*fakeTab{
		posted,
		tabWithURLs(3, 1, 0, "http://a"),
		tabWithURLs(4, 1, 0, "http://b"),
	}}
	s.BrowserClosing(b)
	s.BrowserClosed(b)

	require.Len(t, s.Entries(), 1)
	w := s.Entries()[0].(*Window)
	require.Len(t, w.Tabs, 2)
	// The selected tab keeps its selection after the tab before it is dropped.
	assert.Equal(t, 0, w.SelectedTabIndex)
	assert.Equal(t, "http://a", w.Tabs[w.SelectedTabIndex].Navigations[0].URL)
}

func TestPopupsAreNotRecorded(t *testing.T) {
	s := newTestService(t, t.TempDir(), nil)
	b := &fakeBrowser{id: 1, typ: session.TypePopup, tabs: []*fakeTab{
		tabWithURLs(2, 1, 0, "http://a"), tabWithURLs(3, 1, 0, "http://b"),
	}}
	s.BrowserClosing(b)
	s.CreateHistoricalTab(b.tabs[0], 0)
	assert.Empty(t, s.Entries())
}

func TestTabsClosedWhileRestoringAreNotRecorded(t *testing.T) {
	host := &fakeHost{}
	s := newTestService(t, t.TempDir(), host)
	b := &fakeBrowser{id: 1, typ: session.TypeNormal}
	b.onAdd = func() { s.CreateHistoricalTab(tabWithURLs(77, 1, 0, "http://blank"), 0) }

	s.CreateHistoricalTab(tabWithURLs(2, 1, 0, "http://a"), 0)
	s.RestoreMostRecentEntry(b)
	assert.Empty(t, s.Entries())
}

func TestClearEntries(t *testing.T) {
	dir := t.TempDir()
	s := newTestService(t, dir, nil)
	s.CreateHistoricalTab(tabWithURLs(2, 1, 0, "http://a"), 0)
	s.Save()
	s.CreateHistoricalTab(tabWithURLs(3, 1, 0, "http://b"), 0)

	s.ClearEntries()
	assert.Empty(t, s.Entries())
	s.Save()
	cmds := currentFileCommands(t, dir)
	assert.Equal(t, len(cmds), countIDs(cmds, CommandRestoredEntry))

	next := reopen(t, s, dir, nil)
	assert.Empty(t, next.Entries())
}

func TestSaveWritesBoundedNavigations(t *testing.T) {
	dir := t.TempDir()
	s := newTestService(t, dir, nil)

	tab := &fakeTab{id: 2, windowID: 1, current: 10}
	for i := range 25 {
		tab.entries = append(tab.entries, session.NavigationEntry{URL: fmt.Sprintf("http://%d", i)})
	}
	tab.entries[8].HasPostData = true
	s.CreateHistoricalTab(tab, 0)
	s.Save()

	cmds := currentFileCommands(t, dir)
	require.Equal(t, CommandSelectedNavigationInTab, cmds[0].ID())
	var sel selectedNavigationInTabPayload
	require.NoError(t, cmds[0].Decode(&sel))
	assert.Equal(t, int32(6), sel.Index)

	navs := cmds[1:]
	require.Len(t, navs, 2*maxPersistNavigationCount)
	first, _, err := session.RestoreUpdateTabNavigationCommand(navs[0])
	require.NoError(t, err)
	assert.Equal(t, "http://3", first.URL, "index 8 is skipped so the window reaches back to 3")
	assert.Equal(t, 0, first.Index)
	last, _, err := session.RestoreUpdateTabNavigationCommand(navs[len(navs)-1])
	require.NoError(t, err)
	assert.Equal(t, "http://15", last.URL)
	assert.Equal(t, 11, last.Index)

	next := reopen(t, s, dir, nil)
	loaded := next.Entries()[0].(*Tab)
	assert.Equal(t, "http://10", loaded.Navigations[loaded.CurrentNavigationIndex].URL)
}

func TestSelectedNavigationFallsBackToWritableEntry(t *testing.T) {
	tab := &Tab{CurrentNavigationIndex: 1, Navigations: []session.TabNavigation{
		{URL: "a", TypeMask: session.HasPostData},
		{URL: "b", TypeMask: session.HasPostData},
		{URL: "c"},
	}}
	assert.Equal(t, 2, selectedNavigationIndexToPersist(tab))

	tab.Navigations[0].TypeMask = 0
	assert.Equal(t, 0, selectedNavigationIndexToPersist(tab))

	tab.Navigations = tab.Navigations[:2]
	tab.Navigations[0].TypeMask = session.HasPostData
	assert.Equal(t, -1, selectedNavigationIndexToPersist(tab))
}

func TestLogIsRewrittenEveryEntriesPerReset(t *testing.T) {
	dir := t.TempDir()
	s := newTestService(t, dir, nil)
	for i := range entriesPerReset {
		s.CreateHistoricalTab(tabWithURLs(sessionid.ID(i+1), 1, 0, fmt.Sprintf("http://%d", i)), 0)
		s.Save()
	}
	assert.Equal(t, entriesPerReset, countIDs(currentFileCommands(t, dir), CommandSelectedNavigationInTab))

	s.CreateHistoricalTab(tabWithURLs(500, 1, 0, "http://last"), 0)
	s.Save()
	assert.Equal(t, MaxEntries, countIDs(currentFileCommands(t, dir), CommandSelectedNavigationInTab))
	assert.Zero(t, s.entriesWritten)
}

func TestSaveTimerBuildsCommandsLate(t *testing.T) {
	dir := t.TempDir()
	ui := taskloop.NewManual()
	m := metrics.New(nil)
	s := NewService(dir, nil, Options{Options: session.Options{UI: ui, Metrics: m}})
	obs := &fakeObserver{}
	s.AddObserver(obs)

	s.CreateHistoricalTab(tabWithURLs(2, 1, 0, "http://a"), 0)
	assert.Empty(t, s.PendingCommands(), "commands are built when the timer fires")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RestoreEntries))

	ui.Advance(session.DefaultSaveDelay)
	assert.Equal(t, 2, countIDs(currentFileCommands(t, dir), CommandSelectedNavigationInTab)+countIDs(currentFileCommands(t, dir), CommandUpdateTabNavigation))

	s.Shutdown()
	assert.Equal(t, 1, obs.destroyed)
	assert.Zero(t, ui.Advance(time.Hour))
}

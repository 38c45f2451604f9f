package tabrestore

import (
	"github.com/google/uuid"

	"github.com/fakeyudi/tabsession/internal/session"
	"github.com/fakeyudi/tabsession/internal/sessionid"
)

type fakeTab struct {
	id       sessionid.ID
	windowID sessionid.ID
	entries  []session.NavigationEntry
	current  int
}

func (t *fakeTab) SessionID() sessionid.ID               { return t.id }
func (t *fakeTab) WindowID() sessionid.ID                { return t.windowID }
func (t *fakeTab) EntryCount() int                       { return len(t.entries) }
func (t *fakeTab) EntryAt(i int) session.NavigationEntry { return t.entries[i] }
func (t *fakeTab) CurrentEntryIndex() int                { return t.current }

func tabWithURLs(id, window sessionid.ID, current int, urls ...string) *fakeTab {
	t := &fakeTab{id: id, windowID: window, current: current}
	for _, u := range urls {
		t.entries = append(t.entries, session.NavigationEntry{URL: u, Title: u, State: "s"})
	}
	return t
}

type restoredTab struct {
	navs     []session.TabNavigation
	index    int
	selected int
	active   bool
}

type fakeBrowser struct {
	id       sessionid.ID
	typ      session.WindowType
	selected int
	tabs     []*fakeTab
	restored []restoredTab
	replaced []session.TabNavigation
	shown    bool
	onAdd    func()
}

func (b *fakeBrowser) SessionID() sessionid.ID  { return b.id }
func (b *fakeBrowser) Type() session.WindowType { return b.typ }
func (b *fakeBrowser) Bounds() session.Rect     { return session.Rect{} }
func (b *fakeBrowser) IsMaximized() bool        { return false }
func (b *fakeBrowser) SelectedIndex() int       { return b.selected }
func (b *fakeBrowser) TabCount() int            { return len(b.tabs) + len(b.restored) }

func (b *fakeBrowser) TabAt(i int) session.NavigationController {
	if i >= len(b.tabs) {
		return nil
	}
	return b.tabs[i]
}

func (b *fakeBrowser) AddRestoredTab(navs []session.TabNavigation, index, selected int, active bool) {
	b.restored = append(b.restored, restoredTab{navs: navs, index: index, selected: selected, active: active})
	if b.onAdd != nil {
		b.onAdd()
	}
}

func (b *fakeBrowser) ReplaceRestoredTab(navs []session.TabNavigation, selected int) {
	b.replaced = navs
}

func (b *fakeBrowser) Show() { b.shown = true }

type fakeHost struct {
	browsers []*fakeBrowser
	created  []*fakeBrowser
	nextID   sessionid.ID
}

func (h *fakeHost) FindBrowserWithID(id sessionid.ID) Browser {
	for _, b := range h.browsers {
		if b.id == id {
			return b
		}
	}
	return nil
}

func (h *fakeHost) CreateBrowser() Browser {
	h.nextID++
	b := &fakeBrowser{id: 1000 + h.nextID, typ: session.TypeNormal}
	h.browsers = append(h.browsers, b)
	h.created = append(h.created, b)
	return b
}

type fakeObserver struct {
	changed   int
	destroyed int
}

func (o *fakeObserver) TabRestoreServiceChanged(*Service)   { o.changed++ }
func (o *fakeObserver) TabRestoreServiceDestroyed(*Service) { o.destroyed++ }

type fakeLastSession struct {
	windows []*session.SessionWindow
	calls   int
}

func (f *fakeLastSession) GetLastSession(_ *session.Consumer, callback func(uuid.UUID, []*session.SessionWindow)) uuid.UUID {
	f.calls++
	h := uuid.New()
	callback(h, f.windows)
	return h
}

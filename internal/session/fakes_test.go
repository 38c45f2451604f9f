package session

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/fakeyudi/tabsession/internal/sessionid"
)

type fakeTab struct {
	id       sessionid.ID
	windowID sessionid.ID
	entries  []NavigationEntry
	current  int
}

func (t *fakeTab) SessionID() sessionid.ID       { return t.id }
func (t *fakeTab) WindowID() sessionid.ID        { return t.windowID }
func (t *fakeTab) EntryCount() int               { return len(t.entries) }
func (t *fakeTab) EntryAt(i int) NavigationEntry { return t.entries[i] }
func (t *fakeTab) CurrentEntryIndex() int        { return t.current }

type fakeBrowser struct {
	id        sessionid.ID
	typ       WindowType
	bounds    Rect
	maximized bool
	selected  int
	tabs      []*fakeTab
}

func (b *fakeBrowser) SessionID() sessionid.ID { return b.id }
func (b *fakeBrowser) Type() WindowType        { return b.typ }
func (b *fakeBrowser) Bounds() Rect            { return b.bounds }
func (b *fakeBrowser) IsMaximized() bool       { return b.maximized }
func (b *fakeBrowser) SelectedIndex() int      { return b.selected }
func (b *fakeBrowser) TabCount() int           { return len(b.tabs) }

func (b *fakeBrowser) TabAt(i int) NavigationController {
	if b.tabs[i] == nil {
		return nil
	}
	return b.tabs[i]
}

func (b *fakeBrowser) removeTab(id sessionid.ID) {
	for i, t := range b.tabs {
		if t.id == id {
			b.tabs = append(b.tabs[:i], b.tabs[i+1:]...)
			return
		}
	}
}

type fakeBrowserList struct {
	browsers []*fakeBrowser
}

func (l *fakeBrowserList) Browsers() []Browser {
	out := make([]Browser, len(l.browsers))
	for i, b := range l.browsers {
		out[i] = b
	}
	return out
}

func (l *fakeBrowserList) remove(id sessionid.ID) {
	for i, b := range l.browsers {
		if b.id == id {
			l.browsers = append(l.browsers[:i], l.browsers[i+1:]...)
			return
		}
	}
}

func nav(url, title string) NavigationEntry {
	return NavigationEntry{URL: url, Title: title, State: "state:" + url, Transition: 1}
}

// newTestService returns a service with inline backend and no save timer.
// Callers Save explicitly.
func newTestService(t *testing.T, dir string, browsers BrowserList) *Service {
	t.Helper()
	s := NewService(dir, browsers, Options{})
	t.Cleanup(s.Shutdown)
	return s
}

// reload shuts s down and reads back what it wrote through a fresh service,
// the way the next run would.
func reload(t *testing.T, s *Service, dir string) []*SessionWindow {
	t.Helper()
	s.Save()
	s.Shutdown()

	next := newTestService(t, dir, nil)
	var got []*SessionWindow
	called := false
	next.GetLastSession(&Consumer{}, func(_ uuid.UUID, windows []*SessionWindow) {
		called = true
		got = windows
	})
	require.True(t, called, "inline services deliver synchronously")
	return got
}

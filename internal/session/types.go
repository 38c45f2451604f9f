// Package session tracks live windows and tabs as an append-only command log
// and rebuilds windows, tabs and navigations from that log on restore.
package session

import (
	"github.com/fakeyudi/tabsession/internal/sessionid"
)

// TransitionType records how a navigation was started. Values are opaque to
// this package and persisted as-is.
type TransitionType int32

// Bits of TabNavigation.TypeMask.
const (
	HasPostData int32 = 1
)

// NavigationEntry is the live history entry supplied by the navigation layer.
type NavigationEntry struct {
	URL         string
	Referrer    string
	Title       string
	State       string // serialized page state
	Transition  TransitionType
	HasPostData bool
}

// ShouldTrackEntry reports whether entry may be written to disk. Entries that
// carry POST data are never persisted since the body may hold credentials.
func ShouldTrackEntry(entry NavigationEntry) bool {
	return !entry.HasPostData
}

// TabNavigation is a persisted snapshot of one history entry.
type TabNavigation struct {
	// Index is the entry's position in the tab's history, -1 when unknown.
	Index      int
	URL        string
	Referrer   string
	Title      string
	State      string
	Transition TransitionType
	TypeMask   int32
}

// NavigationFromEntry snapshots entry at index.
func NavigationFromEntry(index int, entry NavigationEntry) TabNavigation {
	n := TabNavigation{
		Index:      index,
		URL:        entry.URL,
		Referrer:   entry.Referrer,
		Title:      entry.Title,
		State:      entry.State,
		Transition: entry.Transition,
	}
	if entry.HasPostData {
		n.TypeMask |= HasPostData
	}
	return n
}

// Entry converts the snapshot back into a navigation entry.
func (n TabNavigation) Entry() NavigationEntry {
	return NavigationEntry{
		URL:         n.URL,
		Referrer:    n.Referrer,
		Title:       n.Title,
		State:       n.State,
		Transition:  n.Transition,
		HasPostData: n.TypeMask&HasPostData != 0,
	}
}

// SessionTab is a tab rebuilt from the log.
type SessionTab struct {
	WindowID sessionid.ID
	TabID    sessionid.ID
	// VisualIndex is the tab's position in its window. While replaying it
	// may have gaps; the final order is what Tabs holds.
	VisualIndex int
	// CurrentNavigationIndex is a position in Navigations once the tab is
	// returned from a restore.
	CurrentNavigationIndex int
	Navigations            []TabNavigation
}

func newSessionTab(id sessionid.ID) *SessionTab {
	return &SessionTab{TabID: id, VisualIndex: -1, CurrentNavigationIndex: -1}
}

// WindowType distinguishes tabbed windows from popups. Only normal windows
// are persisted.
type WindowType int32

const (
	TypeNormal WindowType = 0
	TypePopup  WindowType = 1
)

func (t WindowType) String() string {
	switch t {
	case TypeNormal:
		return "normal"
	case TypePopup:
		return "popup"
	default:
		return "unknown"
	}
}

// ShouldTrackChangesForWindowType reports whether windows of type t are
// written to the session log.
func ShouldTrackChangesForWindowType(t WindowType) bool {
	return t == TypeNormal
}

// Rect is a window's on-screen bounds.
type Rect struct {
	X, Y, Width, Height int
}

// SessionWindow is a window rebuilt from the log. It owns its tabs.
type SessionWindow struct {
	WindowID sessionid.ID
	Bounds   Rect
	// SelectedTabIndex is a position in Tabs once the window is returned
	// from a restore.
	SelectedTabIndex int
	Type             WindowType
	// IsConstrained stays true until the log says what type the window is;
	// windows that never get a type are dropped.
	IsConstrained bool
	IsMaximized   bool
	Tabs          []*SessionTab
}

func newSessionWindow(id sessionid.ID) *SessionWindow {
	return &SessionWindow{WindowID: id, SelectedTabIndex: -1, Type: TypeNormal, IsConstrained: true}
}

// NavigationController is the live history of one tab.
type NavigationController interface {
	// SessionID is the tab's id.
	SessionID() sessionid.ID
	// WindowID is the id of the window currently holding the tab.
	WindowID() sessionid.ID
	EntryCount() int
	// EntryAt returns the entry at i, or the pending entry when i is the
	// pending index.
	EntryAt(i int) NavigationEntry
	// CurrentEntryIndex is the selected entry, -1 when there is none.
	CurrentEntryIndex() int
}

// Browser is a live window.
type Browser interface {
	SessionID() sessionid.ID
	Type() WindowType
	// Bounds returns the restored (non-maximized) bounds.
	Bounds() Rect
	IsMaximized() bool
	SelectedIndex() int
	TabCount() int
	// TabAt may return nil for a tab that is being torn down.
	TabAt(i int) NavigationController
}

// BrowserList enumerates the live windows of the profile.
type BrowserList interface {
	Browsers() []Browser
}

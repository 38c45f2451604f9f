// Package tabrestore keeps the bounded list of recently closed tabs and
// windows and persists it across runs.
package tabrestore

import (
	"time"

	"github.com/fakeyudi/tabsession/internal/session"
	"github.com/fakeyudi/tabsession/internal/sessionid"
)

// Entry is a closed tab (*Tab) or a closed window (*Window).
type Entry interface {
	Base() *EntryBase
}

// EntryBase holds what every entry has.
type EntryBase struct {
	ID        sessionid.ID
	Timestamp time.Time
	// FromLastSession is set on entries loaded from a previous run.
	FromLastSession bool
}

// Base implements Entry.
func (e *EntryBase) Base() *EntryBase { return e }

// Tab is a closed tab.
type Tab struct {
	EntryBase
	Navigations []session.TabNavigation
	// CurrentNavigationIndex is a position in Navigations.
	CurrentNavigationIndex int
	// BrowserID is the window the tab was closed in, 0 if unknown.
	BrowserID     sessionid.ID
	TabstripIndex int
}

// Window is a closed window and the tabs it held.
type Window struct {
	EntryBase
	Tabs             []*Tab
	SelectedTabIndex int
}

// Browser is a live window tabs can be restored into.
type Browser interface {
	session.Browser
	// AddRestoredTab inserts a tab at index with the given history.
	AddRestoredTab(navs []session.TabNavigation, index, selectedNavigation int, selected bool)
	// ReplaceRestoredTab loads the history into the selected tab.
	ReplaceRestoredTab(navs []session.TabNavigation, selectedNavigation int)
	Show()
}

// BrowserHost finds and creates live windows.
type BrowserHost interface {
	// FindBrowserWithID returns nil if no such window is open.
	FindBrowserWithID(id sessionid.ID) Browser
	CreateBrowser() Browser
}

// Observer is told when the list changes and when the service goes away.
type Observer interface {
	TabRestoreServiceChanged(s *Service)
	TabRestoreServiceDestroyed(s *Service)
}

// validateTab clamps the current index and reports whether the tab has any
// navigation at all.
func validateTab(t *Tab) bool {
	if len(t.Navigations) == 0 {
		return false
	}
	t.CurrentNavigationIndex = max(0, min(t.CurrentNavigationIndex, len(t.Navigations)-1))
	return true
}

// validateWindow drops tabs without navigations, keeping the selection on
// the same tab where possible, and reports whether any tab is left.
func validateWindow(w *Window) bool {
	kept := w.Tabs[:0]
	selected := w.SelectedTabIndex
	for i, t := range w.Tabs {
		if validateTab(t) {
			kept = append(kept, t)
		} else if i < w.SelectedTabIndex {
			selected--
		}
	}
	w.Tabs = kept
	if len(w.Tabs) == 0 {
		return false
	}
	w.SelectedTabIndex = max(0, min(selected, len(w.Tabs)-1))
	return true
}

// selectedNavigationIndexToPersist returns the navigation to write as
// selected: the current one if it can be written, else the nearest writable
// one before it, else the nearest after it. It returns -1 if none can be.
func selectedNavigationIndexToPersist(t *Tab) int {
	navs := t.Navigations
	i := min(t.CurrentNavigationIndex, len(navs)-1)
	for ; i >= 0; i-- {
		if session.ShouldTrackEntry(navs[i].Entry()) {
			return i
		}
	}
	for i = max(t.CurrentNavigationIndex+1, 0); i < len(navs); i++ {
		if session.ShouldTrackEntry(navs[i].Entry()) {
			return i
		}
	}
	return -1
}

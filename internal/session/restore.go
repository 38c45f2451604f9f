package session

import (
	"errors"
	"fmt"
	"slices"
	"sort"

	"go.uber.org/zap"

	"github.com/fakeyudi/tabsession/internal/command"
	"github.com/fakeyudi/tabsession/internal/logging"
	"github.com/fakeyudi/tabsession/internal/sessionid"
)

// RestoreSessionFromCommands replays cmds into windows. Replay stops at the
// first command it cannot decode and keeps what it built up to there. The
// result holds only normal, typed windows with at least one tab that has
// navigations, ordered by window id; tabs are in visual order and the
// selected and current indices are positions in Tabs and Navigations.
func RestoreSessionFromCommands(cmds []command.Command, log *zap.Logger) []*SessionWindow {
	log = logging.OrNop(log)
	tabs := make(map[sessionid.ID]*SessionTab)
	windows := make(map[sessionid.ID]*SessionWindow)

	if err := createTabsAndWindows(cmds, tabs, windows); err != nil {
		log.Warn("stopping replay", zap.Error(err))
	}
	addTabsToWindows(tabs, windows)
	valid := sortTabsBasedOnVisualOrderAndPrune(windows)
	updateSelectedTabIndex(valid)
	return valid
}

var errUnknownCommand = errors.New("unknown command id")

type replayError struct {
	index int
	id    command.ID
	err   error
}

func (e *replayError) Error() string {
	return fmt.Sprintf("replaying command %d (%s): %v", e.index, CommandName(e.id), e.err)
}

func (e *replayError) Unwrap() error { return e.err }

func getTab(tabs map[sessionid.ID]*SessionTab, id sessionid.ID) *SessionTab {
	t, ok := tabs[id]
	if !ok {
		t = newSessionTab(id)
		tabs[id] = t
	}
	return t
}

func getWindow(windows map[sessionid.ID]*SessionWindow, id sessionid.ID) *SessionWindow {
	w, ok := windows[id]
	if !ok {
		w = newSessionWindow(id)
		windows[id] = w
	}
	return w
}

// findClosestNavigationWithIndex returns the position of the first
// navigation whose Index is >= index, or len(navs) if there is none. navs
// must be sorted by Index.
func findClosestNavigationWithIndex(navs []TabNavigation, index int) int {
	return sort.Search(len(navs), func(i int) bool { return navs[i].Index >= index })
}

func createTabsAndWindows(cmds []command.Command, tabs map[sessionid.ID]*SessionTab, windows map[sessionid.ID]*SessionWindow) error {
	for i, c := range cmds {
		if err := applyCommand(c, tabs, windows); err != nil {
			return &replayError{index: i, id: c.ID(), err: err}
		}
	}
	return nil
}

func applyCommand(c command.Command, tabs map[sessionid.ID]*SessionTab, windows map[sessionid.ID]*SessionWindow) error {
	switch c.ID() {
	case CommandSetTabWindow:
		var p setTabWindowPayload
		if err := c.Decode(&p); err != nil {
			return err
		}
		getTab(tabs, sessionid.ID(p.TabID)).WindowID = sessionid.ID(p.WindowID)

	case CommandSetWindowBounds2:
		var p windowBoundsPayload2
		if err := c.Decode(&p); err != nil {
			return err
		}
		w := getWindow(windows, sessionid.ID(p.WindowID))
		w.Bounds = Rect{X: int(p.X), Y: int(p.Y), Width: int(p.W), Height: int(p.H)}
		w.IsMaximized = p.IsMaximized

	case CommandSetTabIndexInWindow:
		var p setTabIndexInWindowPayload
		if err := c.Decode(&p); err != nil {
			return err
		}
		getTab(tabs, sessionid.ID(p.ID)).VisualIndex = int(p.Index)

	case CommandTabClosed:
		var p closedPayload
		if err := c.Decode(&p); err != nil {
			return err
		}
		delete(tabs, sessionid.ID(p.ID))

	case CommandWindowClosed:
		var p closedPayload
		if err := c.Decode(&p); err != nil {
			return err
		}
		delete(windows, sessionid.ID(p.ID))

	case CommandTabNavigationPathPrunedFromBack:
		var p prunedFromBackPayload
		if err := c.Decode(&p); err != nil {
			return err
		}
		t := getTab(tabs, sessionid.ID(p.ID))
		t.Navigations = t.Navigations[:findClosestNavigationWithIndex(t.Navigations, int(p.Index))]

	case CommandTabNavigationPathPrunedFromFront:
		var p prunedFromFrontPayload
		if err := c.Decode(&p); err != nil {
			return err
		}
		if p.Index <= 0 {
			return nil
		}
		pruneFromFront(getTab(tabs, sessionid.ID(p.ID)), int(p.Index))

	case CommandUpdateTabNavigation:
		nav, tabID, err := RestoreUpdateTabNavigationCommand(c)
		if err != nil {
			return err
		}
		t := getTab(tabs, tabID)
		i := findClosestNavigationWithIndex(t.Navigations, nav.Index)
		if i < len(t.Navigations) && t.Navigations[i].Index == nav.Index {
			t.Navigations[i] = nav
		} else {
			t.Navigations = slices.Insert(t.Navigations, i, nav)
		}

	case CommandSetSelectedNavigationIndex:
		var p setSelectedNavigationIndexPayload
		if err := c.Decode(&p); err != nil {
			return err
		}
		getTab(tabs, sessionid.ID(p.ID)).CurrentNavigationIndex = int(p.Index)

	case CommandSetSelectedTabInIndex:
		var p setSelectedTabInIndexPayload
		if err := c.Decode(&p); err != nil {
			return err
		}
		getWindow(windows, sessionid.ID(p.ID)).SelectedTabIndex = int(p.Index)

	case CommandSetWindowType:
		var p setWindowTypePayload
		if err := c.Decode(&p); err != nil {
			return err
		}
		w := getWindow(windows, sessionid.ID(p.ID))
		w.IsConstrained = false
		w.Type = WindowType(p.Index)

	default:
		return errUnknownCommand
	}
	return nil
}

// pruneFromFront drops the first count navigations and shifts the rest so
// indices start at zero again.
func pruneFromFront(t *SessionTab, count int) {
	t.CurrentNavigationIndex = max(-1, t.CurrentNavigationIndex-count)
	kept := t.Navigations[:0]
	for _, n := range t.Navigations {
		n.Index -= count
		if n.Index >= 0 {
			kept = append(kept, n)
		}
	}
	t.Navigations = kept
}

func addTabsToWindows(tabs map[sessionid.ID]*SessionTab, windows map[sessionid.ID]*SessionWindow) {
	for _, t := range tabs {
		if t.WindowID == 0 || len(t.Navigations) == 0 {
			continue
		}
		w := getWindow(windows, t.WindowID)
		w.Tabs = append(w.Tabs, t)

		// The stored index is a history index; turn it into a position,
		// falling back to the last navigation if the selected one is gone.
		pos := findClosestNavigationWithIndex(t.Navigations, t.CurrentNavigationIndex)
		if pos == len(t.Navigations) {
			pos--
		}
		t.CurrentNavigationIndex = pos
	}
}

func sortTabsBasedOnVisualOrderAndPrune(windows map[sessionid.ID]*SessionWindow) []*SessionWindow {
	valid := make([]*SessionWindow, 0, len(windows))
	for _, w := range windows {
		if len(w.Tabs) == 0 || w.IsConstrained || !ShouldTrackChangesForWindowType(w.Type) {
			continue
		}
		sort.SliceStable(w.Tabs, func(i, j int) bool {
			a, b := w.Tabs[i], w.Tabs[j]
			if a.VisualIndex != b.VisualIndex {
				return a.VisualIndex < b.VisualIndex
			}
			return a.TabID < b.TabID
		})
		valid = append(valid, w)
	}
	sort.Slice(valid, func(i, j int) bool { return valid[i].WindowID < valid[j].WindowID })
	return valid
}

func updateSelectedTabIndex(windows []*SessionWindow) {
	for _, w := range windows {
		selected := 0
		for i, t := range w.Tabs {
			if t.VisualIndex == w.SelectedTabIndex {
				selected = i
				break
			}
		}
		w.SelectedTabIndex = selected
	}
}

package session

import (
	"slices"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fakeyudi/tabsession/internal/backend"
	"github.com/fakeyudi/tabsession/internal/command"
	"github.com/fakeyudi/tabsession/internal/invariant"
	"github.com/fakeyudi/tabsession/internal/sessionid"
)

const (
	// maxPersistNavigationCount is how many navigations on each side of the
	// current one a reset writes.
	maxPersistNavigationCount = 6

	// writesPerReset is how many commands are appended before the log is
	// rewritten from the live windows.
	writesPerReset = 250
)

// navRange is the half-open range of navigation indices last written for a
// tab by a reset.
type navRange struct {
	min, max int
}

type idSet map[sessionid.ID]struct{}

func (s idSet) has(id sessionid.ID) bool {
	_, ok := s[id]
	return ok
}

func (s idSet) sorted() []sessionid.ID {
	ids := make([]sessionid.ID, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Service records changes to the live windows of one profile so they can be
// restored after a restart or crash.
//
// Closing the last tab of the last window is held back: the close is only
// written once another window shows up, so a user who quits by closing
// everything gets everything back.
type Service struct {
	*BaseService

	browsers BrowserList

	tabToAvailableRange map[sessionid.ID]navRange
	windowsTracking     idSet

	// Windows that are closing while other windows stay open.
	windowClosingIDs idSet
	// Closes held back because no trackable window would be left.
	pendingWindowCloseIDs idSet
	pendingTabCloseIDs    idSet

	hasOpenTrackableBrowsers bool
	moveOnNewBrowser         bool
}

// NewService returns a service writing "Current Session" under dir. browsers
// may be nil, in which case the service never holds back a close.
func NewService(dir string, browsers BrowserList, opts Options) *Service {
	return &Service{
		BaseService:           NewBaseService(backend.SessionRestore, dir, opts),
		browsers:              browsers,
		tabToAvailableRange:   make(map[sessionid.ID]navRange),
		windowsTracking:       make(idSet),
		windowClosingIDs:      make(idSet),
		pendingWindowCloseIDs: make(idSet),
		pendingTabCloseIDs:    make(idSet),
	}
}

// HasOpenTrackableBrowsers reports whether the service believes a normal
// window is still open.
func (s *Service) HasOpenTrackableBrowsers() bool { return s.hasOpenTrackableBrowsers }

// WindowOpened is called when a window is created. If it is the first normal
// window after all of them were closed, the current log becomes the last
// session and WindowOpened returns true so the caller can offer to restore it.
func (s *Service) WindowOpened(windowID sessionid.ID, t WindowType) bool {
	if !ShouldTrackChangesForWindowType(t) || s.hasOpenTrackableBrowsers {
		return false
	}
	if s.moveOnNewBrowser {
		s.MoveCurrentSessionToLastSession()
		s.moveOnNewBrowser = false
	}
	s.log.Debug("first window after all windows closed", zap.Stringer("window", windowID))
	return true
}

// SetTabWindow records that tab lives in window.
func (s *Service) SetTabWindow(windowID, tabID sessionid.ID) {
	if !s.shouldTrackChangesToWindow(windowID) {
		return
	}
	s.ScheduleCommand(createSetTabWindowCommand(windowID, tabID))
}

// SetWindowBounds records a window's restored bounds.
func (s *Service) SetWindowBounds(windowID sessionid.ID, bounds Rect, maximized bool) {
	if !s.shouldTrackChangesToWindow(windowID) {
		return
	}
	s.ScheduleCommand(createSetWindowBoundsCommand(windowID, bounds, maximized))
}

// SetTabIndexInWindow records a tab's visual position.
func (s *Service) SetTabIndexInWindow(windowID, tabID sessionid.ID, index int) {
	if !s.shouldTrackChangesToWindow(windowID) {
		return
	}
	s.ScheduleCommand(createSetTabIndexInWindowCommand(tabID, index))
}

// TabClosed records that a tab was closed. A tab id of zero means the tab
// was replaced rather than closed and is ignored.
func (s *Service) TabClosed(windowID, tabID sessionid.ID) {
	if tabID == 0 || !s.shouldTrackChangesToWindow(windowID) {
		return
	}
	delete(s.tabToAvailableRange, tabID)

	switch {
	case s.pendingWindowCloseIDs.has(windowID):
		// The window's close is held back, so is the tab's.
		s.pendingTabCloseIDs[tabID] = struct{}{}
	case s.windowClosingIDs.has(windowID) || !s.isOnlyOneTabLeft():
		s.ScheduleCommand(createTabClosedCommand(tabID, s.now()))
	default:
		// Last tab of the last window.
		s.pendingTabCloseIDs[tabID] = struct{}{}
		s.hasOpenTrackableBrowsers = false
	}
}

// WindowClosing is called before a window's tabs are closed.
func (s *Service) WindowClosing(windowID sessionid.ID) {
	if !s.shouldTrackChangesToWindow(windowID) {
		return
	}
	if s.hasOpenTrackableBrowsers {
		s.hasOpenTrackableBrowsers = s.hasOpenTrackableBrowsersExcept(windowID)
	}
	if !s.hasOpenTrackableBrowsers {
		s.pendingWindowCloseIDs[windowID] = struct{}{}
	} else {
		s.windowClosingIDs[windowID] = struct{}{}
	}
}

// WindowClosed is called once a window and its tabs are gone.
func (s *Service) WindowClosed(windowID sessionid.ID) {
	if !s.shouldTrackChangesToWindow(windowID) {
		return
	}
	delete(s.windowsTracking, windowID)

	switch {
	case s.windowClosingIDs.has(windowID):
		delete(s.windowClosingIDs, windowID)
		s.ScheduleCommand(createWindowClosedCommand(windowID, s.now()))
	case !s.pendingWindowCloseIDs.has(windowID):
		// Closed without WindowClosing first.
		s.hasOpenTrackableBrowsers = s.hasOpenTrackableBrowsersExcept(windowID)
		if !s.hasOpenTrackableBrowsers {
			s.pendingWindowCloseIDs[windowID] = struct{}{}
		} else {
			s.ScheduleCommand(createWindowClosedCommand(windowID, s.now()))
		}
	}
}

// SetWindowType starts tracking a window. Only normal windows are tracked;
// the first one commits any closes that were held back.
func (s *Service) SetWindowType(windowID sessionid.ID, t WindowType) {
	if !ShouldTrackChangesForWindowType(t) {
		return
	}
	s.windowsTracking[windowID] = struct{}{}

	s.commitPendingCloses()
	s.hasOpenTrackableBrowsers = true
	s.moveOnNewBrowser = true

	s.ScheduleCommand(createSetWindowTypeCommand(windowID, t))
}

// TabNavigationPathPrunedFromBack records that a tab's history was cut down
// to its first count navigations.
func (s *Service) TabNavigationPathPrunedFromBack(windowID, tabID sessionid.ID, count int) {
	if !s.shouldTrackChangesToWindow(windowID) {
		return
	}
	s.ScheduleCommand(createPrunedFromBackCommand(tabID, count))
}

// TabNavigationPathPrunedFromFront records that the oldest count
// navigations of a tab were dropped.
func (s *Service) TabNavigationPathPrunedFromFront(windowID, tabID sessionid.ID, count int) {
	if !s.shouldTrackChangesToWindow(windowID) {
		return
	}
	if r, ok := s.tabToAvailableRange[tabID]; ok {
		s.tabToAvailableRange[tabID] = navRange{min: max(0, r.min-count), max: max(0, r.max-count)}
	}
	s.ScheduleCommand(createPrunedFromFrontCommand(tabID, count))
}

// UpdateTabNavigation records the navigation at index of a tab. Entries
// with POST data are never written.
func (s *Service) UpdateTabNavigation(windowID, tabID sessionid.ID, index int, entry NavigationEntry) {
	if !ShouldTrackEntry(entry) || !s.shouldTrackChangesToWindow(windowID) {
		return
	}
	if r, ok := s.tabToAvailableRange[tabID]; ok {
		s.tabToAvailableRange[tabID] = navRange{min: min(index, r.min), max: max(index, r.max)}
	}
	s.ScheduleCommand(CreateUpdateTabNavigationCommand(CommandUpdateTabNavigation, tabID, index, entry))
}

// SetSelectedNavigationIndex records a tab's current navigation. Selecting
// a navigation outside what the last reset wrote triggers another reset.
func (s *Service) SetSelectedNavigationIndex(windowID, tabID sessionid.ID, index int) {
	if !s.shouldTrackChangesToWindow(windowID) {
		return
	}
	if r, ok := s.tabToAvailableRange[tabID]; ok && (index < r.min || index > r.max) {
		s.ScheduleReset()
		return
	}
	s.ScheduleCommand(createSetSelectedNavigationIndexCommand(tabID, index))
}

// SetSelectedTabInWindow records a window's selected tab.
func (s *Service) SetSelectedTabInWindow(windowID sessionid.ID, index int) {
	if !s.shouldTrackChangesToWindow(windowID) {
		return
	}
	s.ScheduleCommand(createSetSelectedTabInWindowCommand(windowID, index))
}

// NavigationEntryCommitted records a committed navigation and selects it.
func (s *Service) NavigationEntryCommitted(windowID, tabID sessionid.ID, index int, entry NavigationEntry) {
	s.UpdateTabNavigation(windowID, tabID, index, entry)
	s.SetSelectedNavigationIndex(windowID, tabID, index)
}

// NavigationEntryChanged records an in-place change to an existing
// navigation, such as a new title.
func (s *Service) NavigationEntryChanged(windowID, tabID sessionid.ID, index int, entry NavigationEntry) {
	s.UpdateTabNavigation(windowID, tabID, index, entry)
}

// TabRestored writes the full state of a tab brought back from the
// recently closed list.
func (s *Service) TabRestored(tab NavigationController) {
	if !s.shouldTrackChangesToWindow(tab.WindowID()) {
		return
	}
	s.pending = buildCommandsForTab(tab.WindowID(), tab, -1, s.pending, s.tabToAvailableRange)
	s.StartSaveTimer()
}

// ScheduleCommand queues c, merging it with a pending navigation update for
// the same entry. Once enough commands pile up the log is rewritten from the
// live windows instead, except while a close is held back or when c is a
// close itself.
func (s *Service) ScheduleCommand(c command.Command) {
	if s.replacePendingCommand(c) {
		return
	}
	s.BaseService.ScheduleCommand(c)
	if !s.pendingReset && len(s.pendingWindowCloseIDs) == 0 &&
		s.commandsSinceReset >= writesPerReset &&
		c.ID() != CommandTabClosed && c.ID() != CommandWindowClosed {
		s.ScheduleReset()
	}
}

// replacePendingCommand swaps c in for the newest pending navigation update
// when both describe the same navigation of the same tab. The merged
// command moves to the back of the queue. An update queued before the tab
// was pruned from the front names a navigation that has since moved, so it
// is never merged.
func (s *Service) replacePendingCommand(c command.Command) bool {
	if c.ID() != CommandUpdateTabNavigation {
		return false
	}
	nav, tabID, err := RestoreUpdateTabNavigationCommand(c)
	if err != nil {
		return false
	}
	for i := len(s.pending) - 1; i >= 0; i-- {
		existing := s.pending[i]
		if existing.ID() == CommandTabNavigationPathPrunedFromFront {
			var p prunedFromFrontPayload
			if err := existing.Decode(&p); err != nil || sessionid.ID(p.ID) == tabID {
				return false
			}
			continue
		}
		if existing.ID() != CommandUpdateTabNavigation {
			continue
		}
		existingNav, existingTab, err := RestoreUpdateTabNavigationCommand(existing)
		if err != nil {
			invariant.Violated(s.log, "pending navigation update does not decode", zap.Error(err))
			return false
		}
		if existingTab != tabID || existingNav.Index != nav.Index {
			return false
		}
		s.pending = append(slices.Delete(s.pending, i, i+1), c)
		return true
	}
	return false
}

// ScheduleReset discards the pending commands and queues a rewrite of the
// whole log from the live windows.
func (s *Service) ScheduleReset() {
	s.pendingReset = true
	s.pending = nil
	clear(s.tabToAvailableRange)
	clear(s.windowsTracking)
	s.pending = s.buildCommandsFromBrowsers(s.pending, s.tabToAvailableRange, s.windowsTracking)
	if len(s.windowsTracking) > 0 {
		// No SetWindowType arrives for windows that existed before the
		// service did.
		s.hasOpenTrackableBrowsers = true
		s.moveOnNewBrowser = true
	}
	s.m.ScheduledResets.WithLabelValues(s.Type().String()).Inc()
	s.log.Debug("scheduled reset", zap.Int("commands", len(s.pending)), zap.Int("windows", len(s.windowsTracking)))
	s.StartSaveTimer()
}

// MoveCurrentSessionToLastSession forgets held-back closes, saves, and
// makes the current log the last session.
func (s *Service) MoveCurrentSessionToLastSession() {
	clear(s.pendingTabCloseIDs)
	clear(s.windowClosingIDs)
	clear(s.pendingWindowCloseIDs)
	s.Save()
	s.moveCurrentSessionToLastSession()
}

// GetLastSession reads the last session on the backend runner and calls
// callback with the rebuilt windows on the UI runner.
func (s *Service) GetLastSession(consumer *Consumer, callback func(uuid.UUID, []*SessionWindow)) uuid.UUID {
	return s.ScheduleGetLastSessionCommands(consumer, func(h uuid.UUID, cmds []command.Command) {
		callback(h, RestoreSessionFromCommands(cmds, s.log))
	})
}

// GetCurrentSession rebuilds the live windows the same way a restore would,
// without touching disk.
func (s *Service) GetCurrentSession() []*SessionWindow {
	cmds := s.buildCommandsFromBrowsers(nil, nil, nil)
	return RestoreSessionFromCommands(cmds, s.log)
}

func (s *Service) shouldTrackChangesToWindow(windowID sessionid.ID) bool {
	return s.windowsTracking.has(windowID)
}

func (s *Service) commitPendingCloses() {
	for _, id := range s.pendingTabCloseIDs.sorted() {
		s.ScheduleCommand(createTabClosedCommand(id, s.now()))
	}
	clear(s.pendingTabCloseIDs)
	for _, id := range s.pendingWindowCloseIDs.sorted() {
		s.ScheduleCommand(createWindowClosedCommand(id, s.now()))
	}
	clear(s.pendingWindowCloseIDs)
}

// isOnlyOneTabLeft reports whether the tab being closed is the last tab of
// the last normal window. It runs after the tab left its window, so any
// remaining tab means it was not the last.
func (s *Service) isOnlyOneTabLeft() bool {
	if s.browsers == nil {
		return false
	}
	windows := 0
	for _, b := range s.browsers.Browsers() {
		id := b.SessionID()
		if !ShouldTrackChangesForWindowType(b.Type()) || s.windowClosingIDs.has(id) {
			continue
		}
		windows++
		if windows > 1 || b.TabCount() > 0 {
			return false
		}
	}
	return true
}

func (s *Service) hasOpenTrackableBrowsersExcept(windowID sessionid.ID) bool {
	if s.browsers == nil {
		return true
	}
	for _, b := range s.browsers.Browsers() {
		id := b.SessionID()
		if ShouldTrackChangesForWindowType(b.Type()) && id != windowID && !s.windowClosingIDs.has(id) {
			return true
		}
	}
	return false
}

func (s *Service) buildCommandsFromBrowsers(cmds []command.Command, ranges map[sessionid.ID]navRange, tracked idSet) []command.Command {
	if s.browsers == nil {
		return cmds
	}
	for _, b := range s.browsers.Browsers() {
		if !ShouldTrackChangesForWindowType(b.Type()) || b.TabCount() == 0 {
			continue
		}
		cmds = buildCommandsForBrowser(b, cmds, ranges, tracked)
	}
	return cmds
}

func buildCommandsForBrowser(b Browser, cmds []command.Command, ranges map[sessionid.ID]navRange, tracked idSet) []command.Command {
	id := b.SessionID()
	cmds = append(cmds,
		createSetWindowBoundsCommand(id, b.Bounds(), b.IsMaximized()),
		createSetWindowTypeCommand(id, b.Type()))
	for i := range b.TabCount() {
		tab := b.TabAt(i)
		if tab == nil {
			continue
		}
		cmds = buildCommandsForTab(id, tab, i, cmds, ranges)
	}
	cmds = append(cmds, createSetSelectedTabInWindowCommand(id, b.SelectedIndex()))
	if tracked != nil {
		tracked[id] = struct{}{}
	}
	return cmds
}

// buildCommandsForTab writes a tab's window, the trackable navigations
// within maxPersistNavigationCount of the current one, its selection and,
// unless indexInWindow is -1, its position.
func buildCommandsForTab(windowID sessionid.ID, tab NavigationController, indexInWindow int, cmds []command.Command, ranges map[sessionid.ID]navRange) []command.Command {
	tabID := tab.SessionID()
	cmds = append(cmds, createSetTabWindowCommand(windowID, tabID))

	current := tab.CurrentEntryIndex()
	lo := max(0, current-maxPersistNavigationCount)
	hi := min(current+maxPersistNavigationCount, tab.EntryCount())
	if ranges != nil {
		ranges[tabID] = navRange{min: lo, max: hi}
	}
	for i := lo; i < hi; i++ {
		entry := tab.EntryAt(i)
		if ShouldTrackEntry(entry) {
			cmds = append(cmds, CreateUpdateTabNavigationCommand(CommandUpdateTabNavigation, tabID, i, entry))
		}
	}
	cmds = append(cmds, createSetSelectedNavigationIndexCommand(tabID, current))
	if indexInWindow != -1 {
		cmds = append(cmds, createSetTabIndexInWindowCommand(tabID, indexInWindow))
	}
	return cmds
}

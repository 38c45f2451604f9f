package tabrestore

import (
	"errors"
	"fmt"
	"slices"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fakeyudi/tabsession/internal/command"
	"github.com/fakeyudi/tabsession/internal/session"
	"github.com/fakeyudi/tabsession/internal/sessionid"
)

type loadState uint8

const (
	loading loadState = 1 << iota
	loadedLastTabs
	loadedLastSession
	loaded
)

// LastSessionSource supplies the windows that were open when the previous
// run ended. *session.Service implements it.
type LastSessionSource interface {
	GetLastSession(consumer *session.Consumer, callback func(uuid.UUID, []*session.SessionWindow)) uuid.UUID
}

// LoadOptions says where entries from the previous run come from.
type LoadOptions struct {
	// PreviousSession is read only when the previous run crashed and its
	// windows were not restored; those windows are then offered as closed
	// windows, ahead of what the previous run's own log holds.
	PreviousSession     LastSessionSource
	LastSessionCrashed  bool
	RestoredLastSession bool
}

// LoadTabsFromLastSession merges the previous run's entries into the back of
// the list. It runs at most once and not at all once the list has filled
// up. Observers are notified when the merge completes.
func (s *Service) LoadTabsFromLastSession(opts LoadOptions) {
	if s.loadState != 0 || s.reachedMax {
		return
	}
	s.loadState = loading

	if opts.PreviousSession != nil && opts.LastSessionCrashed && !opts.RestoredLastSession {
		opts.PreviousSession.GetLastSession(&s.loadConsumer, func(_ uuid.UUID, windows []*session.SessionWindow) {
			s.onGotPreviousSession(windows)
		})
	} else {
		s.loadState |= loadedLastSession
	}

	s.ScheduleGetLastSessionCommands(&s.loadConsumer, func(_ uuid.UUID, cmds []command.Command) {
		s.onGotLastSessionCommands(cmds)
	})
}

// IsLoaded reports whether LoadTabsFromLastSession has finished.
func (s *Service) IsLoaded() bool { return s.loadState&loaded != 0 }

func (s *Service) onGotLastSessionCommands(cmds []command.Command) {
	entries, err := s.createEntriesFromCommands(cmds)
	if err != nil {
		s.Logger().Warn("stopping tab restore replay", zap.Error(err), zap.Int("entries", len(entries)))
	}
	s.stagingEntries = append(s.stagingEntries, entries...)
	s.loadState |= loadedLastTabs
	s.loadStateChanged()
}

func (s *Service) onGotPreviousSession(windows []*session.SessionWindow) {
	entries := s.createEntriesFromWindows(windows)
	s.stagingEntries = slices.Insert(s.stagingEntries, 0, entries...)
	s.loadState |= loadedLastSession
	s.loadStateChanged()
}

func (s *Service) loadStateChanged() {
	if s.loadState&(loadedLastTabs|loadedLastSession) != loadedLastTabs|loadedLastSession {
		return
	}
	s.loadState |= loaded

	staged := s.stagingEntries
	s.stagingEntries = nil
	if len(staged) == 0 || s.reachedMax {
		return
	}
	if room := MaxEntries - len(s.entries); len(staged) > room {
		staged = staged[:max(room, 0)]
	}
	for _, e := range staged {
		e.Base().FromLastSession = true
		s.addEntry(e, false, false)
	}
	// The current log was started fresh this run; everything in the list
	// has to be written again.
	s.entriesToWrite = len(s.entries)
	s.pruneAndNotify()
}

func (s *Service) createEntriesFromWindows(windows []*session.SessionWindow) []Entry {
	var entries []Entry
	for _, sw := range windows {
		w := &Window{EntryBase: EntryBase{ID: s.ids.Next(), Timestamp: s.Now()}}
		for _, st := range sw.Tabs {
			if len(st.Navigations) == 0 {
				continue
			}
			w.Tabs = append(w.Tabs, &Tab{
				EntryBase:              EntryBase{ID: s.ids.Next(), Timestamp: w.Timestamp},
				Navigations:            st.Navigations,
				CurrentNavigationIndex: st.CurrentNavigationIndex,
			})
		}
		if len(w.Tabs) == 0 {
			continue
		}
		w.SelectedTabIndex = min(sw.SelectedTabIndex, len(w.Tabs)-1)
		entries = append(entries, w)
	}
	return entries
}

var (
	errWindowInWindow   = errors.New("window command while tabs of a previous window are pending")
	errRestoredInWindow = errors.New("restored entry command while tabs of a window are pending")
	errEmptyWindow      = errors.New("window without tabs")
	errNavigationNoTab  = errors.New("navigation outside of a tab")
	errUnknownCommand   = errors.New("unknown command id")
)

// createEntriesFromCommands replays a tab restore log into the room left
// in the list.
func (s *Service) createEntriesFromCommands(cmds []command.Command) ([]Entry, error) {
	room := MaxEntries - len(s.entries)
	if room <= 0 {
		return nil, nil
	}
	return EntriesFromCommands(cmds, s.ids, room)
}

// EntriesFromCommands replays a tab restore log and returns at most limit
// entries, most recent first. Replay stops at the first command that makes
// no sense; the entries built so far are still returned along with the
// error. ids numbers the entries; nil starts a fresh generator.
func EntriesFromCommands(cmds []command.Command, ids *sessionid.Generator, limit int) ([]Entry, error) {
	if ids == nil {
		ids = sessionid.NewGenerator(0)
	}
	r := replay{ids: ids, idToEntry: make(map[sessionid.ID]Entry)}
	var err error
	for i, c := range cmds {
		if err = r.apply(c); err != nil {
			err = fmt.Errorf("command %d (%s): %w", i, CommandName(c.ID()), err)
			break
		}
	}
	return validateAndDeleteEmptyEntries(r.entries, limit), err
}

// replay is the state of EntriesFromCommands.
type replay struct {
	ids       *sessionid.Generator
	entries   []Entry
	idToEntry map[sessionid.ID]Entry

	// Tab whose navigations are being read.
	currentTab *Tab
	// Window whose tabs are being read, while pendingWindowTabs > 0.
	currentWindow     *Window
	pendingWindowTabs int
}

func (r *replay) apply(c command.Command) error {
	switch c.ID() {
	case CommandRestoredEntry:
		if r.pendingWindowTabs > 0 {
			return errRestoredInWindow
		}
		r.currentTab, r.currentWindow = nil, nil
		var id restoredEntryPayload
		if err := c.Decode(&id); err != nil {
			return err
		}
		r.removeEntryByID(sessionid.ID(id))

	case CommandWindow:
		if r.pendingWindowTabs > 0 {
			return errWindowInWindow
		}
		var p windowPayload
		if err := c.Decode(&p); err != nil {
			return err
		}
		if p.NumTabs <= 0 {
			return errEmptyWindow
		}
		r.pendingWindowTabs = int(p.NumTabs)
		r.removeEntryByID(sessionid.ID(p.WindowID))
		r.currentWindow = &Window{
			EntryBase:        EntryBase{ID: r.ids.Next()},
			SelectedTabIndex: int(p.SelectedTabIndex),
		}
		r.entries = append(r.entries, r.currentWindow)
		r.idToEntry[sessionid.ID(p.WindowID)] = r.currentWindow

	case CommandSelectedNavigationInTab:
		var p selectedNavigationInTabPayload
		if err := c.Decode(&p); err != nil {
			return err
		}
		tab := &Tab{EntryBase: EntryBase{ID: r.ids.Next()}, CurrentNavigationIndex: int(p.Index)}
		if r.pendingWindowTabs > 0 {
			r.currentWindow.Tabs = append(r.currentWindow.Tabs, tab)
			if r.pendingWindowTabs--; r.pendingWindowTabs == 0 {
				r.currentWindow = nil
			}
		} else {
			r.removeEntryByID(sessionid.ID(p.ID))
			r.entries = append(r.entries, tab)
			r.idToEntry[sessionid.ID(p.ID)] = tab
		}
		r.currentTab = tab

	case CommandUpdateTabNavigation:
		if r.currentTab == nil {
			return errNavigationNoTab
		}
		nav, _, err := session.RestoreUpdateTabNavigationCommand(c)
		if err != nil {
			return err
		}
		r.currentTab.Navigations = append(r.currentTab.Navigations, nav)

	default:
		return errUnknownCommand
	}
	return nil
}

// removeEntryByID drops the entry the log knew as id, if it is a top-level
// entry.
func (r *replay) removeEntryByID(id sessionid.ID) {
	e, ok := r.idToEntry[id]
	if !ok {
		return
	}
	delete(r.idToEntry, id)
	if i := slices.Index(r.entries, e); i >= 0 {
		r.entries = slices.Delete(r.entries, i, i+1)
	}
}

// validateAndDeleteEmptyEntries drops entries with nothing to restore and
// returns the rest most recent first, keeping at most limit.
func validateAndDeleteEmptyEntries(entries []Entry, limit int) []Entry {
	var valid []Entry
	for i := len(entries) - 1; i >= 0 && len(valid) < limit; i-- {
		ok := false
		switch e := entries[i].(type) {
		case *Tab:
			ok = validateTab(e)
		case *Window:
			ok = validateWindow(e)
		}
		if ok {
			valid = append(valid, entries[i])
		}
	}
	return valid
}

package session

import (
	"fmt"
	"time"

	"github.com/fakeyudi/tabsession/internal/command"
	"github.com/fakeyudi/tabsession/internal/sessionid"
)

// Command ids of the session log. Values are on disk and never reused.
const (
	CommandSetTabWindow                     command.ID = 0
	// 1 held the original window bounds layout and is no longer written.
	CommandSetTabIndexInWindow              command.ID = 2
	CommandTabClosed                        command.ID = 3
	CommandWindowClosed                     command.ID = 4
	CommandTabNavigationPathPrunedFromBack  command.ID = 5
	CommandUpdateTabNavigation              command.ID = 6
	CommandSetSelectedNavigationIndex       command.ID = 7
	CommandSetSelectedTabInIndex            command.ID = 8
	CommandSetWindowType                    command.ID = 9
	CommandSetWindowBounds2                 command.ID = 10
	CommandTabNavigationPathPrunedFromFront command.ID = 11
)

var commandNames = map[command.ID]string{
	CommandSetTabWindow:                     "SetTabWindow",
	CommandSetTabIndexInWindow:              "SetTabIndexInWindow",
	CommandTabClosed:                        "TabClosed",
	CommandWindowClosed:                     "WindowClosed",
	CommandTabNavigationPathPrunedFromBack:  "TabNavigationPathPrunedFromBack",
	CommandUpdateTabNavigation:              "UpdateTabNavigation",
	CommandSetSelectedNavigationIndex:       "SetSelectedNavigationIndex",
	CommandSetSelectedTabInIndex:            "SetSelectedTabInIndex",
	CommandSetWindowType:                    "SetWindowType",
	CommandSetWindowBounds2:                 "SetWindowBounds2",
	CommandTabNavigationPathPrunedFromFront: "TabNavigationPathPrunedFromFront",
}

// CommandName returns a readable name for a session log id.
func CommandName(id command.ID) string {
	if n, ok := commandNames[id]; ok {
		return n
	}
	return fmt.Sprintf("Unknown(%d)", id)
}

// Payload layouts. Fields are written in host byte order, blank fields are
// the padding the layout has always carried.

type idAndIndexPayload struct {
	ID    int32
	Index int32
}

type setTabWindowPayload struct {
	WindowID int32
	TabID    int32
}

type closedPayload struct {
	ID        int32
	_         [4]byte
	CloseTime int64 // microseconds since the Unix epoch
}

type windowBoundsPayload2 struct {
	WindowID    int32
	X           int32
	Y           int32
	W           int32
	H           int32
	IsMaximized bool
	_           [3]byte
}

type (
	setTabIndexInWindowPayload        = idAndIndexPayload
	setSelectedNavigationIndexPayload = idAndIndexPayload
	setSelectedTabInIndexPayload      = idAndIndexPayload
	setWindowTypePayload              = idAndIndexPayload
	prunedFromBackPayload             = idAndIndexPayload
	prunedFromFrontPayload            = idAndIndexPayload
)

func createSetTabWindowCommand(windowID, tabID sessionid.ID) command.Command {
	return command.FromStruct(CommandSetTabWindow, setTabWindowPayload{WindowID: int32(windowID), TabID: int32(tabID)})
}

func createSetWindowBoundsCommand(windowID sessionid.ID, bounds Rect, maximized bool) command.Command {
	return command.FromStruct(CommandSetWindowBounds2, windowBoundsPayload2{
		WindowID:    int32(windowID),
		X:           int32(bounds.X),
		Y:           int32(bounds.Y),
		W:           int32(bounds.Width),
		H:           int32(bounds.Height),
		IsMaximized: maximized,
	})
}

func createSetTabIndexInWindowCommand(tabID sessionid.ID, index int) command.Command {
	return command.FromStruct(CommandSetTabIndexInWindow, setTabIndexInWindowPayload{ID: int32(tabID), Index: int32(index)})
}

func createTabClosedCommand(tabID sessionid.ID, at time.Time) command.Command {
	return command.FromStruct(CommandTabClosed, closedPayload{ID: int32(tabID), CloseTime: at.UnixMicro()})
}

func createWindowClosedCommand(windowID sessionid.ID, at time.Time) command.Command {
	return command.FromStruct(CommandWindowClosed, closedPayload{ID: int32(windowID), CloseTime: at.UnixMicro()})
}

func createSetSelectedNavigationIndexCommand(tabID sessionid.ID, index int) command.Command {
	return command.FromStruct(CommandSetSelectedNavigationIndex, setSelectedNavigationIndexPayload{ID: int32(tabID), Index: int32(index)})
}

func createSetSelectedTabInWindowCommand(windowID sessionid.ID, index int) command.Command {
	return command.FromStruct(CommandSetSelectedTabInIndex, setSelectedTabInIndexPayload{ID: int32(windowID), Index: int32(index)})
}

func createSetWindowTypeCommand(windowID sessionid.ID, t WindowType) command.Command {
	return command.FromStruct(CommandSetWindowType, setWindowTypePayload{ID: int32(windowID), Index: int32(t)})
}

func createPrunedFromBackCommand(tabID sessionid.ID, count int) command.Command {
	return command.FromStruct(CommandTabNavigationPathPrunedFromBack, prunedFromBackPayload{ID: int32(tabID), Index: int32(count)})
}

func createPrunedFromFrontCommand(tabID sessionid.ID, count int) command.Command {
	return command.FromStruct(CommandTabNavigationPathPrunedFromFront, prunedFromFrontPayload{ID: int32(tabID), Index: int32(count)})
}

// maxStateSize bounds the strings of one navigation so the whole pickle,
// ints and padding included, stays under the payload limit.
const maxStateSize = command.MaxPayloadSize - 1024

// writeStringWithBudget writes s whole if it fits in what is left of max,
// otherwise an empty string. Strings are never cut.
func writeStringWithBudget(p *command.Pickle, written *int, max int, s string) {
	if *written+len(s) < max {
		*written += len(s)
		p.WriteString(s)
		return
	}
	p.WriteString("")
}

// CreateUpdateTabNavigationCommand encodes entry, the navigation at index of
// tab, as a pickle tagged id. The session and tab restore logs use different
// ids for the same layout.
func CreateUpdateTabNavigationCommand(id command.ID, tabID sessionid.ID, index int, entry NavigationEntry) command.Command {
	p := command.NewPickle()
	p.WriteInt(int32(tabID))
	p.WriteInt(int32(index))

	written := 0
	writeStringWithBudget(p, &written, maxStateSize, entry.URL)
	writeStringWithBudget(p, &written, maxStateSize, entry.Title)
	state := entry.State
	if entry.HasPostData {
		state = ""
	}
	writeStringWithBudget(p, &written, maxStateSize, state)

	p.WriteInt(int32(entry.Transition))
	var mask int32
	if entry.HasPostData {
		mask |= HasPostData
	}
	p.WriteInt(mask)
	writeStringWithBudget(p, &written, maxStateSize, entry.Referrer)
	return command.FromPickle(id, p)
}

// RestoreUpdateTabNavigationCommand decodes a navigation written by
// CreateUpdateTabNavigationCommand. The type mask and referrer are optional
// so logs written before they existed still decode.
func RestoreUpdateTabNavigationCommand(c command.Command) (TabNavigation, sessionid.ID, error) {
	r, err := c.Reader()
	if err != nil {
		return TabNavigation{}, 0, err
	}
	tabID, err := r.ReadInt()
	if err != nil {
		return TabNavigation{}, 0, err
	}
	index, err := r.ReadInt()
	if err != nil {
		return TabNavigation{}, 0, err
	}
	nav := TabNavigation{Index: int(index)}
	if nav.URL, err = r.ReadString(); err != nil {
		return TabNavigation{}, 0, err
	}
	if nav.Title, err = r.ReadString(); err != nil {
		return TabNavigation{}, 0, err
	}
	if nav.State, err = r.ReadString(); err != nil {
		return TabNavigation{}, 0, err
	}
	transition, err := r.ReadInt()
	if err != nil {
		return TabNavigation{}, 0, err
	}
	nav.Transition = TransitionType(transition)

	if r.Remaining() > 0 {
		if nav.TypeMask, err = r.ReadInt(); err != nil {
			return TabNavigation{}, 0, err
		}
		if r.Remaining() > 0 {
			if nav.Referrer, err = r.ReadString(); err != nil {
				return TabNavigation{}, 0, err
			}
		}
	}
	return nav, sessionid.ID(tabID), nil
}

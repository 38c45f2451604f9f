package tabrestore

import (
	"fmt"

	"github.com/fakeyudi/tabsession/internal/command"
	"github.com/fakeyudi/tabsession/internal/session"
	"github.com/fakeyudi/tabsession/internal/sessionid"
)

// Command ids of the tab restore log.
const (
	CommandUpdateTabNavigation     command.ID = 1
	CommandRestoredEntry           command.ID = 2
	CommandWindow                  command.ID = 3
	CommandSelectedNavigationInTab command.ID = 4
)

// CommandName returns a readable name for a tab restore log id.
func CommandName(id command.ID) string {
	switch id {
	case CommandUpdateTabNavigation:
		return "UpdateTabNavigation"
	case CommandRestoredEntry:
		return "RestoredEntry"
	case CommandWindow:
		return "Window"
	case CommandSelectedNavigationInTab:
		return "SelectedNavigationInTab"
	default:
		return fmt.Sprintf("Unknown(%d)", id)
	}
}

type windowPayload struct {
	WindowID         int32
	SelectedTabIndex int32
	NumTabs          int32
}

type selectedNavigationInTabPayload struct {
	ID    int32
	Index int32
}

type restoredEntryPayload = int32

func createWindowCommand(id sessionid.ID, selectedTab, numTabs int) command.Command {
	return command.FromStruct(CommandWindow, windowPayload{
		WindowID:         int32(id),
		SelectedTabIndex: int32(selectedTab),
		NumTabs:          int32(numTabs),
	})
}

func createSelectedNavigationInTabCommand(tabID sessionid.ID, index int) command.Command {
	return command.FromStruct(CommandSelectedNavigationInTab, selectedNavigationInTabPayload{ID: int32(tabID), Index: int32(index)})
}

func createRestoredEntryCommand(id sessionid.ID) command.Command {
	return command.FromStruct(CommandRestoredEntry, restoredEntryPayload(id))
}

func createUpdateTabNavigationCommand(tabID sessionid.ID, index int, nav session.TabNavigation) command.Command {
	return session.CreateUpdateTabNavigationCommand(CommandUpdateTabNavigation, tabID, index, nav.Entry())
}

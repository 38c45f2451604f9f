package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/fakeyudi/tabsession/internal/backend"
	"github.com/fakeyudi/tabsession/internal/bundle"
	"github.com/fakeyudi/tabsession/internal/command"
	"github.com/fakeyudi/tabsession/internal/session"
	"github.com/fakeyudi/tabsession/internal/tabrestore"
	"github.com/fakeyudi/tabsession/internal/tui"
)

// Which log of a pair to read.
const (
	whichCurrent = "current"
	whichLast    = "last"
)

// logPath returns the path of the current or last file of typ.
func logPath(typ backend.SessionType, which string) (string, error) {
	switch which {
	case whichCurrent:
		return filepath.Join(cfg.DataDir, typ.CurrentFileName()), nil
	case whichLast:
		return filepath.Join(cfg.DataDir, typ.LastFileName()), nil
	}
	return "", fmt.Errorf("unknown log %q (want %s or %s)", which, whichCurrent, whichLast)
}

// readLog reads a session file. A missing file reads as empty.
func readLog(path string) ([]command.Command, error) {
	cmds, err := backend.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	typ := backend.SessionRestore
	if isTabsLog(path) {
		typ = backend.TabRestore
	}
	counters.CommandsRead.WithLabelValues(typ.String()).Add(float64(len(cmds)))
	return cmds, nil
}

// commandName names c using the ids of whichever service writes path.
func commandName(path string, c command.Command) string {
	if isTabsLog(path) {
		return tabrestore.CommandName(c.ID())
	}
	return session.CommandName(c.ID())
}

func isTabsLog(path string) bool {
	base := filepath.Base(path)
	return base == backend.TabRestore.CurrentFileName() || base == backend.TabRestore.LastFileName()
}

func logRecords(path string, cmds []command.Command) []tui.LogRecord {
	out := make([]tui.LogRecord, 0, len(cmds))
	for _, c := range cmds {
		out = append(out, tui.LogRecord{Name: commandName(path, c), Size: c.Size()})
	}
	return out
}

// snapshot is everything the read-only commands show.
type snapshot struct {
	bundle      *bundle.SessionBundle
	sessionCmds []command.Command
	windows     []*session.SessionWindow
	entries     []tabrestore.Entry
}

// loadSnapshot replays the session and tab restore logs named by which.
func loadSnapshot(which string) (*snapshot, error) {
	sessionPath, err := logPath(backend.SessionRestore, which)
	if err != nil {
		return nil, err
	}
	tabsPath, _ := logPath(backend.TabRestore, which)

	sessionCmds, err := readLog(sessionPath)
	if err != nil {
		return nil, err
	}
	tabCmds, err := readLog(tabsPath)
	if err != nil {
		return nil, err
	}

	snap := &snapshot{
		sessionCmds: sessionCmds,
		windows:     session.RestoreSessionFromCommands(sessionCmds, logger),
	}
	snap.entries, err = tabrestore.EntriesFromCommands(tabCmds, nil, tabrestore.MaxEntries)
	if err != nil {
		logger.Warn("tab restore log stops early", zap.String("path", tabsPath), zap.Error(err))
	}

	b := bundle.New(cfg.DataDir, time.Now())
	b.Meta.SessionLog = sessionPath
	b.Meta.TabsLog = tabsPath
	b.Meta.Commands = len(sessionCmds)
	b.Windows = bundle.FromWindows(snap.windows)
	b.Recent = bundle.FromEntries(snap.entries)
	snap.bundle = b
	return snap, nil
}

// render writes b in the configured format.
func render(b *bundle.SessionBundle) ([]byte, error) {
	r, err := bundle.RendererFor(cfg.DefaultFormat)
	if err != nil {
		return nil, err
	}
	return r.Render(b)
}

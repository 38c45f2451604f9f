package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fakeyudi/tabsession/internal/backend"
	"github.com/fakeyudi/tabsession/internal/session"
	"github.com/fakeyudi/tabsession/internal/tabrestore"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow the current session logs and print a summary on every write",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()
		return watchSessions(ctx, cfg.DataDir, cmd.OutOrStdout(), nil)
	},
}

// watchSessions prints a line for each write to the current session or tab
// restore log under dir until ctx is done. ready, if not nil, is closed once
// the watch is in place.
func watchSessions(ctx context.Context, dir string, out io.Writer, ready chan<- struct{}) error {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watching %s: %w", dir, err)
	}
	if ready != nil {
		close(ready)
	}
	fmt.Fprintf(out, "watching %s\n", dir)

	watched := map[string]backend.SessionType{
		backend.SessionRestore.CurrentFileName(): backend.SessionRestore,
		backend.TabRestore.CurrentFileName():     backend.TabRestore,
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			typ, ok := watched[filepath.Base(event.Name)]
			if !ok {
				continue
			}
			line, err := summarizeLog(typ, event.Name)
			if err != nil {
				logger.Debug("reading changed log", zap.String("path", event.Name), zap.Error(err))
				continue
			}
			fmt.Fprintf(out, "%s  %s: %s\n", time.Now().Format("15:04:05"), filepath.Base(event.Name), line)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			// Watcher errors are non-fatal; continue watching.
			logger.Warn("watch error", zap.Error(err))
		}
	}
}

// summarizeLog replays the log at path and describes the result.
func summarizeLog(typ backend.SessionType, path string) (string, error) {
	cmds, err := backend.ReadFile(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return "", err
	}
	if typ == backend.TabRestore {
		entries, _ := tabrestore.EntriesFromCommands(cmds, nil, tabrestore.MaxEntries)
		return fmt.Sprintf("%d commands, %d recently closed", len(cmds), len(entries)), nil
	}
	windows := session.RestoreSessionFromCommands(cmds, logger)
	tabs := 0
	for _, w := range windows {
		tabs += len(w.Tabs)
	}
	return fmt.Sprintf("%d commands, %d windows, %d tabs", len(cmds), len(windows), tabs), nil
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

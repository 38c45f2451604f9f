package cmd

import (
	"fmt"
	"os"

	"github.com/charmbracelet/x/term"
	"github.com/spf13/cobra"

	"github.com/fakeyudi/tabsession/internal/backend"
	"github.com/fakeyudi/tabsession/internal/bundle"
	"github.com/fakeyudi/tabsession/internal/tui"
)

var (
	plainOutput bool
	viewWhich   string
)

var viewCmd = &cobra.Command{
	Use:   "view [bundle]",
	Short: "Browse a session interactively",
	Long: `Browse the windows, recently closed entries and raw commands of the
session logs in the data directory, or of an exported bundle file. Output
falls back to plain text when stdout is not a terminal.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var (
			b     *bundle.SessionBundle
			log   []tui.LogRecord
			title string
		)
		if len(args) == 1 {
			path := args[0]
			data, err := os.ReadFile(path)
			if err != nil {
				if os.IsNotExist(err) {
					return fmt.Errorf("file not found: %s", path)
				}
				return err
			}
			b, err = bundle.ParserFor(path).Parse(data)
			if err != nil {
				return err
			}
			title = path
		} else {
			snap, err := loadSnapshot(viewWhich)
			if err != nil {
				return err
			}
			b = snap.bundle
			log = logRecords(b.Meta.SessionLog, snap.sessionCmds)
			title, _ = logPath(backend.SessionRestore, viewWhich)
		}

		if plainOutput || !term.IsTerminal(os.Stdout.Fd()) {
			out, err := (&bundle.TextRenderer{}).Render(b)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		}
		return tui.Run(b, log, title)
	},
}

func init() {
	viewCmd.Flags().BoolVar(&plainOutput, "plain", false, "plain text output instead of TUI")
	viewCmd.Flags().StringVar(&viewWhich, "which", whichCurrent, "logs to view when no bundle is given: current or last")
	rootCmd.AddCommand(viewCmd)
}

package cmd

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/fakeyudi/tabsession/internal/backend"
)

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Discard the saved session and tab restore logs",
	Long: `Rotate the current logs into last and delete them, leaving empty
current logs behind. Refuses to touch logs a running browser holds.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		var errs []error
		for _, typ := range []backend.SessionType{backend.SessionRestore, backend.TabRestore} {
			b := backend.New(typ, cfg.DataDir, backend.Options{Logger: logger, Metrics: counters})
			if !b.Writable() {
				errs = append(errs, errors.New(typ.CurrentFileName()+": in use by another process"))
				b.Close()
				continue
			}
			b.DeleteLastSession()
			if err := b.Close(); err != nil {
				errs = append(errs, err)
				continue
			}
			cmd.Printf("cleared %s\n", typ.CurrentFileName())
		}
		return errors.Join(errs...)
	},
}

func init() {
	rootCmd.AddCommand(clearCmd)
}

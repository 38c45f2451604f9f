package cmd

import (
	"github.com/spf13/cobra"

	"github.com/fakeyudi/tabsession/internal/bundle"
)

var restoreWhich string

var restoreCmd = &cobra.Command{
	Use:   "restore",
	Short: "Print the windows and tabs a session log restores to",
	RunE: func(cmd *cobra.Command, args []string) error {
		snap, err := loadSnapshot(restoreWhich)
		if err != nil {
			return err
		}
		snap.bundle.Recent = []bundle.RecentEntry{}
		out, err := render(snap.bundle)
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(out)
		return err
	},
}

func init() {
	restoreCmd.Flags().StringVar(&restoreWhich, "which", whichCurrent, "log to replay: current or last")
	rootCmd.AddCommand(restoreCmd)
}

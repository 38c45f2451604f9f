package cmd

import (
	"github.com/spf13/cobra"

	"github.com/fakeyudi/tabsession/internal/bundle"
)

var recentWhich string

var recentCmd = &cobra.Command{
	Use:   "recent",
	Short: "Print the recently closed tabs and windows",
	RunE: func(cmd *cobra.Command, args []string) error {
		snap, err := loadSnapshot(recentWhich)
		if err != nil {
			return err
		}
		snap.bundle.Windows = []bundle.Window{}
		out, err := render(snap.bundle)
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(out)
		return err
	},
}

func init() {
	recentCmd.Flags().StringVar(&recentWhich, "which", whichCurrent, "log to replay: current or last")
	rootCmd.AddCommand(recentCmd)
}

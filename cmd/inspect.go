package cmd

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/fakeyudi/tabsession/internal/backend"
)

var (
	inspectWhich string
	inspectTabs  bool
)

type inspectedCommand struct {
	Index int    `json:"index"`
	ID    uint8  `json:"id"`
	Name  string `json:"name"`
	Size  int    `json:"size"`
}

var inspectCmd = &cobra.Command{
	Use:   "inspect [file]",
	Short: "List the commands stored in a session log",
	Long: `List every command of a session or tab restore log, in file order.
Without a file argument the log is picked from the data directory with
--which and --tabs.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := ""
		if len(args) == 1 {
			path = args[0]
		} else {
			typ := backend.SessionRestore
			if inspectTabs {
				typ = backend.TabRestore
			}
			p, err := logPath(typ, inspectWhich)
			if err != nil {
				return err
			}
			path = p
		}

		cmds, err := backend.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}

		rows := make([]inspectedCommand, len(cmds))
		for i, c := range cmds {
			rows[i] = inspectedCommand{Index: i, ID: uint8(c.ID()), Name: commandName(path, c), Size: c.Size()}
		}

		out := cmd.OutOrStdout()
		if cfg.DefaultFormat == "json" {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(rows)
		}
		fmt.Fprintf(out, "%s: %d commands\n", path, len(rows))
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "#\tID\tNAME\tSIZE")
		for _, r := range rows {
			fmt.Fprintf(tw, "%d\t%d\t%s\t%d\n", r.Index, r.ID, r.Name, r.Size)
		}
		return tw.Flush()
	},
}

func init() {
	inspectCmd.Flags().StringVar(&inspectWhich, "which", whichCurrent, "log to read: current or last")
	inspectCmd.Flags().BoolVar(&inspectTabs, "tabs", false, "read the tab restore log instead of the session log")
	rootCmd.AddCommand(inspectCmd)
}

package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/fakeyudi/tabsession/internal/backend"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the session files in the data directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Data dir: %s\n", cfg.DataDir)

		for _, typ := range []backend.SessionType{backend.SessionRestore, backend.TabRestore} {
			for _, name := range []string{typ.CurrentFileName(), typ.LastFileName()} {
				path := filepath.Join(cfg.DataDir, name)
				info, err := os.Stat(path)
				if errors.Is(err, os.ErrNotExist) {
					fmt.Fprintf(out, "%s: missing\n", name)
					continue
				}
				if err != nil {
					return err
				}
				cmds, err := readLog(path)
				if err != nil {
					fmt.Fprintf(out, "%s: %d bytes, unreadable (%v)\n", name, info.Size(), err)
					continue
				}
				fmt.Fprintf(out, "%s: %d bytes, %d commands\n", name, info.Size(), len(cmds))
			}
			lock := filepath.Join(cfg.DataDir, typ.CurrentFileName()+".lock")
			if _, err := os.Stat(lock); err == nil {
				fmt.Fprintf(out, "%s: in use\n", filepath.Base(lock))
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

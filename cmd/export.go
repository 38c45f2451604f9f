package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
)

var (
	exportWhich  string
	exportOutput string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the restored session and recently closed list to a bundle file",
	Long: `Write a bundle holding the windows a session log restores to and the
recently closed list. The format follows --format, or the output file's
extension (.json or .md) when --format is not given. Markdown bundles embed
the full data and can be read back with "tabsession view".`,
	RunE: func(cmd *cobra.Command, args []string) error {
		snap, err := loadSnapshot(exportWhich)
		if err != nil {
			return err
		}

		if flagFormat == "" && exportOutput != "" {
			switch strings.ToLower(filepath.Ext(exportOutput)) {
			case ".json":
				cfg.DefaultFormat = "json"
			case ".md", ".markdown":
				cfg.DefaultFormat = "markdown"
			}
		}
		data, err := render(snap.bundle)
		if err != nil {
			return err
		}

		if exportOutput == "" || exportOutput == "-" {
			_, err = cmd.OutOrStdout().Write(data)
			return err
		}
		if err := os.WriteFile(exportOutput, data, 0o644); err != nil {
			return fmt.Errorf("writing bundle: %w", err)
		}
		cmd.Printf("Bundle %s written to %s\n", snap.bundle.Meta.ID, exportOutput)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportWhich, "which", whichCurrent, "logs to export: current or last")
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "output file (default stdout)")
	rootCmd.AddCommand(exportCmd)
}

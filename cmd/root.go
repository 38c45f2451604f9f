package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fakeyudi/tabsession/internal/config"
	"github.com/fakeyudi/tabsession/internal/logging"
	"github.com/fakeyudi/tabsession/internal/metrics"
)

// cfg holds the merged configuration, populated in PersistentPreRunE.
var cfg config.Config

// logger and registry live for one command invocation.
var (
	logger   = zap.NewNop()
	registry *prometheus.Registry
	counters *metrics.Metrics
)

// Persistent flags. Empty means "use the configuration".
var (
	flagDataDir string
	flagFormat  string
	flagVerbose bool
)

var rootCmd = &cobra.Command{
	Use:          "tabsession",
	Short:        "Inspect, replay and export browser session logs",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load()
		if err != nil {
			return err
		}
		cfg = loaded
		if flagDataDir != "" {
			cfg.DataDir = flagDataDir
		}
		if flagFormat != "" {
			cfg.DefaultFormat = flagFormat
		}
		if flagVerbose {
			cfg.LogLevel = "debug"
		}

		l, err := logging.New(logging.Config{
			Level:       cfg.LogLevel,
			Development: cfg.LogDevelopment,
			OutputPaths: []string{"stderr"},
		})
		if err != nil {
			return fmt.Errorf("building logger: %w", err)
		}
		logger = l.Named("tabsession")

		registry = prometheus.NewRegistry()
		counters = metrics.New(registry)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

// Execute runs the root command. Exits with code 1 on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// GetConfig returns the merged configuration for use by subcommands.
func GetConfig() config.Config {
	return cfg
}

func saveDelay() time.Duration {
	return time.Duration(cfg.SaveDelay)
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagDataDir, "data-dir", "", "directory holding the session files (default from config)")
	pf.StringVar(&flagFormat, "format", "", "output format: text, json or markdown (default from config)")
	pf.BoolVarP(&flagVerbose, "verbose", "v", false, "log at debug level")
}

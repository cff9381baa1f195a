package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/segdag/segdag/pkg/config"
	"github.com/segdag/segdag/pkg/telemetry"
	"github.com/segdag/segdag/pkg/utils"
)

var (
	// Global flags
	verbose    bool
	configPath string

	logger            utils.Logger
	cfg               *config.Config
	shutdownTelemetry telemetry.ShutdownFunc = func(context.Context) error { return nil }
)

// rootCmd represents the base command.
var rootCmd = &cobra.Command{
	Use:   "segdag",
	Short: "A segmented commit-graph store and query engine",
	Long: `segdag builds and queries an on-disk, incrementally built,
hierarchical segmentation of a directed acyclic graph of commits, so
that ancestry queries run in time proportional to segment count rather
than commit count.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		cfg = loaded

		logLevel := utils.ParseLogLevel(cfg.Log.Level)
		if verbose {
			logLevel = utils.LevelDebug
		}

		if cfg.Log.OutputPath != "" && cfg.Log.OutputPath != "-" {
			fileLogger, ferr := utils.NewFileLogger(logLevel, filepath.Join(cfg.Log.OutputPath, "segdag.log"))
			if ferr != nil {
				return fmt.Errorf("opening log output path %q: %w", cfg.Log.OutputPath, ferr)
			}
			logger = fileLogger
		} else {
			logger = utils.NewDefaultLogger(logLevel, os.Stdout)
		}

		shutdown, err := telemetry.Init(context.Background(), cfg.Telemetry)
		if err != nil {
			logger.Warn("telemetry init failed, continuing without tracing: %v", err)
		} else {
			shutdownTelemetry = shutdown
		}

		return cfg.EnsureDataDir()
	},
}

// Execute adds all child commands to the root command and sets flags
// appropriately.
func Execute() {
	defer shutdownTelemetry(context.Background())
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file (defaults to ./config.yaml)")

	binName := BinName()
	rootCmd.Example = `  # Build a dag from an edge list up to a head
  ` + binName + ` build --dag main --input edges.txt --head HEAD

  # Query ancestors of a set of ids
  ` + binName + ` query --dag main ancestors --ids 11

  # Render the ancestry graph as ASCII
  ` + binName + ` render --dag main

  # Start the read-only debug query server
  ` + binName + ` serve --dag main --addr :8088

  # List known dags in the catalog
  ` + binName + ` catalog list`
}

// GetLogger returns the configured logger.
func GetLogger() utils.Logger {
	return logger
}

// GetConfig returns the loaded configuration.
func GetConfig() *config.Config {
	return cfg
}

// BinName returns the base name of the current executable.
func BinName() string {
	return filepath.Base(os.Args[0])
}

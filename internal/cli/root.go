package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/lucasnoah/variantfactory/internal/logging"
)

var version = "dev"

func SetVersion(v string) {
	version = v
}

var (
	logLevel  string
	logFormat string
	logFile   string
	dbDSN     string

	// logger is set up by the root command before any subcommand runs.
	logger   = logging.Discard()
	closeLog = func() error { return nil }
)

var rootCmd = &cobra.Command{
	Use:   "variantfactory",
	Short: "Generate robot navigation test scenario variations",
	Long: `variantfactory expands abstract navigation scenarios from a .vast file into
concrete test configs: parameter sweeps, floorplan variants, start/goal routes
with a planned path of a given length, and obstacles that keep the route
navigable.

Expensive steps are cached in a .cache directory next to the .vast file.
Run history can be recorded in SQLite (default) or Postgres.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg := logging.DefaultConfig()
		cfg.Level = logLevel
		cfg.Format = logFormat
		if logFile != "" {
			cfg.Output = "file"
			cfg.OutputPath = logFile
		}
		l, closer, err := logging.New(cfg)
		if err != nil {
			return err
		}
		logger, closeLog = l, closer
		slog.SetDefault(l)
		return nil
	},
}

func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	defer closeLog()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format: text, json")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "write logs to this file instead of stderr")
	rootCmd.PersistentFlags().StringVar(&dbDSN, "db", "", "history database: SQLite path or postgres:// URL (default ~/.variantfactory/history.db)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(stagesCmd)
	rootCmd.AddCommand(cacheCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(dbCmd)
	rootCmd.AddCommand(previewCmd)
}

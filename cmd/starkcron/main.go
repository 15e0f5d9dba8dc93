package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	root := &cobra.Command{
		Use:          "starkcron",
		Short:        "Relay Voyager contract events to the Starklens indexer",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")
	root.PersistentFlags().String("env-file", ".env", "dotenv settings file (ignored when missing)")
	root.PersistentFlags().String("db-driver", "sqlite", "event store driver (sqlite, postgres)")
	root.PersistentFlags().String("db-path", "starkcron_voyager.db", "sqlite database path")
	root.PersistentFlags().String("pg-dsn", "", "Postgres DSN")
	root.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	root.PersistentFlags().String("log-format", "console", "log encoding (console, json)")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Poll the event feed forever and forward new events",
		RunE:  runPoller,
	}

	runCmd.Flags().String("contract", "", "tracked contract address")
	runCmd.Flags().String("api-key", "", "Voyager API key")
	runCmd.Flags().String("feed-url", "https://sepolia-api.voyager.online/beta/events", "Voyager events endpoint")
	runCmd.Flags().Duration("interval", 20*time.Second, "pause between poll cycles")
	runCmd.Flags().String("state-file", "./data/state.json", "cycle state file path")
	runCmd.Flags().Bool("state-enabled", true, "write the cycle state file")
	runCmd.Flags().String("metrics-addr", "", "listen address for /metrics and /healthz (empty disables)")
	addForwardFlags(runCmd)

	root.AddCommand(runCmd)

	replayCmd := &cobra.Command{
		Use:   "replay",
		Short: "Forward stored events that were never delivered",
		RunE:  runReplay,
	}
	addForwardFlags(replayCmd)

	root.AddCommand(replayCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show stored and pending event counts",
		RunE:  runStatus,
	}
	statusCmd.Flags().String("state-file", "./data/state.json", "cycle state file path")

	root.AddCommand(statusCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func addForwardFlags(cmd *cobra.Command) {
	cmd.Flags().String("forward-url", "https://starklens.vercel.app/api/indexer", "indexing API endpoint")
	cmd.Flags().String("forward-file", "", "append batches to this JSONL file instead of posting them")
	cmd.Flags().Duration("http-timeout", 30*time.Second, "HTTP request timeout (0 disables)")
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// newLogger writes progress lines to stdout.
func newLogger(level, format string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	switch format {
	case "json":
	case "console", "":
		cfg.Encoding = "console"
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	default:
		return nil, fmt.Errorf("unsupported log format: %s", format)
	}

	cfg.OutputPaths = []string{"stdout"}
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}

package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"starkcron/internal/config"
	"starkcron/internal/indexer"
)

func runReplay(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signalContext()
	defer stop()

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	runner := indexer.NewRunner(indexer.RunConfig{}, nil, store, newForwarder(cfg, logger), logger, nil)
	n, err := runner.Replay(ctx)
	if err != nil {
		return err
	}

	logger.Info("replay complete", zap.Int("events", n))
	return nil
}

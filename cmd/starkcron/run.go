package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"starkcron/internal/config"
	"starkcron/internal/feed"
	"starkcron/internal/forward"
	"starkcron/internal/indexer"
	"starkcron/internal/metrics"
	"starkcron/internal/storage"
	"starkcron/internal/storage/postgres"
	"starkcron/internal/storage/sqlite"
)

func runPoller(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	contract, err := indexer.ContractQuery(cfg.Contract)
	if err != nil {
		return err
	}
	canonical, _ := indexer.ParseContract(contract)

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

	m := metrics.New()
	if cfg.MetricsAddr != "" {
		go func() {
			if err := m.Serve(ctx, cfg.MetricsAddr, logger); err != nil {
				logger.Error("metrics server stopped", zap.Error(err))
			}
		}()
	}

	runner := indexer.NewRunner(indexer.RunConfig{
		Contract:     contract,
		Interval:     cfg.Interval,
		StatePath:    cfg.StateFile,
		StateEnabled: cfg.StateEnabled,
	}, feed.NewClient(cfg.FeedURL, cfg.APIKey, cfg.HTTPTimeout), store, newForwarder(cfg, logger), logger, m)

	logger.Info("starkcron start",
		zap.String("contract", contract),
		zap.String("contract_canonical", canonical),
		zap.String("feed_url", cfg.FeedURL),
		zap.String("forward_url", cfg.ForwardURL),
		zap.String("forward_file", cfg.ForwardFile),
		zap.String("db_driver", cfg.DBDriver),
		zap.Duration("interval", cfg.Interval),
		zap.Bool("state_enabled", cfg.StateEnabled),
		zap.String("metrics_addr", cfg.MetricsAddr),
	)

	err = runner.Run(ctx)
	if indexer.IsShutdown(err) {
		logger.Info("shutdown")
		return nil
	}
	return err
}

func openStore(ctx context.Context, cfg config.Config) (storage.EventStore, error) {
	if err := cfg.ValidateStore(); err != nil {
		return nil, err
	}
	switch cfg.DBDriver {
	case "postgres":
		store, err := postgres.NewStore(ctx, cfg.PGDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres store: %w", err)
		}
		return store, nil
	default:
		store, err := sqlite.Open(ctx, cfg.DBPath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return store, nil
	}
}

func newForwarder(cfg config.Config, logger *zap.Logger) indexer.Forwarder {
	if cfg.ForwardFile != "" {
		return forward.NewFileForwarder(cfg.ForwardFile)
	}
	return forward.NewHTTPForwarder(cfg.ForwardURL, cfg.HTTPTimeout, logger)
}

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"starkcron/internal/config"
	"starkcron/internal/indexer"
)

func runStatus(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	stored, err := store.Count(ctx)
	if err != nil {
		return err
	}
	pending, err := store.Pending(ctx)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "stored events:  %d\n", stored)
	fmt.Fprintf(out, "pending events: %d\n", len(pending))

	st, ok, err := indexer.NewStateStore(cfg.StateFile, true).Load()
	if err != nil {
		return err
	}
	if !ok {
		fmt.Fprintln(out, "last cycle:     none recorded")
		return nil
	}
	fmt.Fprintf(out, "last cycle:     %s at %s (pages=%d new=%d forwarded=%t last_block=%d)\n",
		st.LastCycleID, st.UpdatedAt, st.Pages, st.NewEvents, st.Forwarded, st.LastBlockNumber)
	return nil
}

package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lowaak/fitness-link/internal/session"
	"github.com/lowaak/fitness-link/internal/store"

	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the last persisted snapshot",
		Long: `Print the snapshot the last session left in the configured store. The
snapshot is removed when a session disconnects, so this shows data only
while a session is running or after it was interrupted.`,
		Args: cobra.NoArgs,
		RunE: runStatus,
	}
}

func runStatus(cmd *cobra.Command, _ []string) error {
	cmd.SilenceUsage = true
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, logCloser, err := newLogger(cfg, false)
	if err != nil {
		return err
	}
	defer logCloser.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
	defer cancel()

	st, closeStore, err := store.Open(ctx, cfg.Store, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	out := cmd.OutOrStdout()
	raw, err := st.Get(ctx, cfg.Session.StoreKey)
	if errors.Is(err, store.ErrNotFound) {
		fmt.Fprintln(out, "No persisted snapshot")
		return nil
	}
	if err != nil {
		return fmt.Errorf("read snapshot: %w", err)
	}
	snap, err := session.DecodeSnapshot(raw)
	if err != nil {
		return fmt.Errorf("read snapshot: %w", err)
	}
	printSnapshot(out, snap)
	return nil
}

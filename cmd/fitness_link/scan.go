package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func newScanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scan",
		Short: "Scan for a fitness device",
		Long: `Scan until a device whose name starts with one of the configured prefixes
(Fitness, 健身, HeartRate by default) is seen, then print it.`,
		Args: cobra.NoArgs,
		RunE: runScan,
	}
}

func runScan(cmd *cobra.Command, _ []string) error {
	cmd.SilenceUsage = true
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cmd, appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	p, err := a.manager.ScanDevices(ctx)
	if err != nil {
		return err
	}
	if p == nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return ErrNoDevice
	}
	printPeripheral(cmd.OutOrStdout(), p)
	return nil
}

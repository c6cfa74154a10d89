package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/lowaak/fitness-link/internal/session"

	"github.com/spf13/cobra"
)

func newConnectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "connect",
		Short: "Connect to a fitness device and stream its measurements",
		Long: `Scan for a fitness device, connect to it and print every measurement update
until interrupted with Ctrl+C. The device is disconnected on exit.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runConnect(cmd, appOptions{})
		},
	}
	cmd.Flags().Bool("dump", false, "Print the attribute groups of the device after connecting")
	return cmd
}

func runConnect(cmd *cobra.Command, opts appOptions) error {
	cmd.SilenceUsage = true
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cmd, opts)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.startBackground(ctx); err != nil {
		return err
	}
	return streamSession(ctx, cmd, a)
}

// streamSession connects and prints notices and updates until ctx is done
// or the device goes away.
func streamSession(ctx context.Context, cmd *cobra.Command, a *app) error {
	out := cmd.OutOrStdout()

	notices := make(chan session.Notice, 16)
	defer a.manager.Notices().ListenChan(notices)()

	p, err := a.scanAndConnect(ctx)
	if err != nil {
		return err
	}
	printPeripheral(out, p)

	if dump, _ := cmd.Flags().GetBool("dump"); dump {
		printGroups(out, a.manager.Groups())
	}

	// registered after connecting: the replayed value is the connected snapshot
	updates := make(chan session.Update, 16)
	defer a.manager.Updates().ListenChan(updates)()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case n := <-notices:
			printNotice(out, n)
		case u := <-updates:
			if !u.Connected {
				return ErrDeviceGone
			}
			printSnapshot(out, u.Snapshot)
		}
	}
}

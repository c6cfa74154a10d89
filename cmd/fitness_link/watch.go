package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/lowaak/fitness-link/internal/dashboard"
	"github.com/lowaak/fitness-link/internal/go_func_utils"
	"github.com/lowaak/fitness-link/internal/session"

	"github.com/rivo/tview"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Follow a fitness device in a terminal dashboard",
		Long: `Open a full-screen dashboard, then scan for and connect to a fitness device.

Keys: D disconnects the device, Esc or Q quits. Logs go to
~/.fitness-link/fitness-link.log unless --log-file is set.`,
		Args: cobra.NoArgs,
		RunE: runWatch,
	}
}

func runWatch(cmd *cobra.Command, _ []string) error {
	cmd.SilenceUsage = true
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cmd, appOptions{ownsTerminal: true})
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	d := dashboard.New(tview.NewApplication(), a.manager, a.logger)
	a.logger.AddHook(d.LogHook(logrus.InfoLevel))

	if err := a.startBackground(ctx); err != nil {
		return err
	}

	go_func_utils.SafeGo(a.logger, func() {
		<-ctx.Done()
		d.Stop()
	})
	go_func_utils.SafeGo(a.logger, func() {
		if _, err := a.scanAndConnect(ctx); err != nil && !errors.Is(err, context.Canceled) {
			d.AppendLog(dashboard.FormatNotice(session.Notice{Level: session.NoticeError, Message: FormatUserError(err)}))
		}
	})

	return d.Run()
}

package main

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	"github.com/lowaak/fitness-link/internal/bt"
	"github.com/lowaak/fitness-link/internal/bt/sim"
	"github.com/lowaak/fitness-link/internal/config"
	"github.com/lowaak/fitness-link/internal/go_func_utils"
	"github.com/lowaak/fitness-link/internal/logging"
	"github.com/lowaak/fitness-link/internal/metrics"
	"github.com/lowaak/fitness-link/internal/session"
	"github.com/lowaak/fitness-link/internal/sink"
	"github.com/lowaak/fitness-link/internal/store"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"tinygo.org/x/bluetooth"
)

type appOptions struct {
	// forces the simulator regardless of --simulate
	simulate bool
	// ownsTerminal sends logs to a file when none is configured
	ownsTerminal bool
}

// app is the wiring shared by the device commands.
type app struct {
	cfg     config.Config
	logger  *logrus.Logger
	store   store.Store
	manager *session.Manager
	sim     *sim.Adapter // nil on hardware
	bt      *bt.BTManager

	closers []func() error
}

func loadConfig(cmd *cobra.Command) (config.Config, error) {
	configFile, _ := cmd.Flags().GetString("config")
	return config.Load(viper.New(), configFile, cmd.Flags())
}

func newLogger(cfg config.Config, ownsTerminal bool) (*logrus.Logger, io.Closer, error) {
	logCfg := cfg.Log
	if ownsTerminal && logCfg.File == "" {
		logCfg.File = filepath.Join(config.DefaultDir(), "fitness-link.log")
	}
	return logging.New(logCfg)
}

func newApp(ctx context.Context, cmd *cobra.Command, opts appOptions) (*app, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	if opts.simulate {
		cfg.Sim.Enabled = true
	}

	logger, logCloser, err := newLogger(cfg, opts.ownsTerminal)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, logger: logger}
	a.closers = append(a.closers, logCloser.Close)

	st, closeStore, err := store.Open(ctx, cfg.Store, logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.store = st
	a.closers = append(a.closers, closeStore)

	var adapter bt.Adapter
	if cfg.Sim.Enabled {
		a.sim = sim.NewAdapter(logger, sim.DefaultDevices()...)
		adapter = a.sim
		logger.Info("Using simulated devices")
	} else {
		a.bt = bt.NewBTManager(bluetooth.DefaultAdapter, logger)
		if err := a.bt.Enable(); err != nil {
			a.Close()
			return nil, err
		}
		adapter = a.bt
	}

	a.manager = session.NewManager(adapter, st, logger, cfg.SessionOptions())
	return a, nil
}

// startBackground launches the optional services: metrics endpoint, MQTT
// sink and, when simulating, the control API and value generators. They
// stop with ctx.
func (a *app) startBackground(ctx context.Context) error {
	if addr := a.cfg.Metrics.Addr; addr != "" {
		srv := metrics.NewServer(addr, a.logger)
		go_func_utils.SafeGo(a.logger, func() {
			if err := srv.Run(ctx); err != nil {
				a.logger.WithError(err).Error("Metrics server stopped")
			}
		})
	}

	if a.cfg.MQTT.Broker != "" {
		pub, err := sink.NewPahoPublisher(a.cfg.MQTT)
		if err != nil {
			return err
		}
		s := sink.New(pub, a.cfg.MQTT, a.logger)
		go_func_utils.SafeGo(a.logger, func() { s.Run(ctx, a.manager.Updates()) })
	}

	if a.sim != nil {
		if addr := a.cfg.Sim.ControlAddr; addr != "" {
			srv := sim.NewControlServer(addr, a.sim, a.logger)
			go_func_utils.SafeGo(a.logger, func() {
				if err := srv.Run(ctx); err != nil {
					a.logger.WithError(err).Error("Simulator control API stopped")
				}
			})
		}
		for _, d := range a.sim.Devices() {
			g := sim.NewGenerator(d, a.cfg.Sim.Interval, a.logger)
			go_func_utils.SafeGo(a.logger, func() { g.Run(ctx) })
		}
	}
	return nil
}

// scanAndConnect finds a device and opens a session to it.
func (a *app) scanAndConnect(ctx context.Context) (bt.Peripheral, error) {
	p, err := a.manager.ScanDevices(ctx)
	if err != nil {
		return nil, err
	}
	if p == nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, ErrNoDevice
	}
	if err := a.manager.ConnectToDevice(ctx, p); err != nil {
		return nil, fmt.Errorf("connect to %s: %w", p.ID(), err)
	}
	return p, nil
}

// Close disconnects the session and releases everything newApp opened.
func (a *app) Close() {
	if a.manager != nil {
		if err := a.manager.Disconnect(); err != nil {
			a.logger.WithError(err).Warn("Disconnect failed")
		}
	}
	if a.bt != nil {
		a.bt.Shutdown()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.WithError(err).Warn("Close failed")
		}
	}
}

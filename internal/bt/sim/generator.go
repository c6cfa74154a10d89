package sim

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/sirupsen/logrus"
)

// Generator animates a device while it is connected: the heart rate drifts
// inside a plausible band and the workout clock and energy advance.
type Generator struct {
	device   *Device
	interval time.Duration
	// kcal burnt per second of workout
	burnRate float64
	logger   logrus.FieldLogger
	rng      *rand.Rand
}

func NewGenerator(device *Device, interval time.Duration, logger logrus.FieldLogger) *Generator {
	if interval <= 0 {
		interval = time.Second
	}
	return &Generator{
		device:   device,
		interval: interval,
		burnRate: 0.15,
		logger:   logger,
		rng:      rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x5eed)),
	}
}

// Run ticks until ctx is done.
func (g *Generator) Run(ctx context.Context) {
	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()

	g.logger.Infof("Sim: generator started for %s (every %v)", g.device, g.interval)
	for {
		select {
		case <-ctx.Done():
			g.logger.Debugf("Sim: generator stopped for %s", g.device)
			return
		case <-ticker.C:
			g.Step()
		}
	}
}

// Step advances the simulation by one interval and notifies subscribers.
// Nothing changes while the device is disconnected.
func (g *Generator) Step() {
	if !g.device.IsConnected() {
		return
	}
	state := g.device.State()

	bpm := state.HeartRate + g.rng.IntN(7) - 3
	g.device.SetHeartRate(clamp(bpm, 55, 185))

	seconds := uint32(g.interval / time.Second)
	if seconds == 0 {
		seconds = 1
	}
	g.device.SetWorkout(state.ElapsedSeconds+seconds, state.CaloriesKcal+g.burnRate*float64(seconds))

	g.device.PushHeartRate()
	g.device.PushWorkout()
}

func clamp(v, lo, hi int) int {
	return max(lo, min(v, hi))
}

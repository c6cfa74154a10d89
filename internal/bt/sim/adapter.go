package sim

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/lowaak/fitness-link/internal/bt"

	"github.com/sirupsen/logrus"
)

// Verify Adapter implements bt.Adapter
var _ bt.Adapter = (*Adapter)(nil)

// Adapter is a bt.Adapter over a fixed set of simulated devices. A scan
// returns the first device whose name passes the filter; with no match it
// blocks until ctx is done, like a radio scan that never sees a device.
type Adapter struct {
	logger logrus.FieldLogger

	mu           sync.RWMutex
	devices      []*Device
	scanDelay    time.Duration
	connectDelay time.Duration
	connectErr   error
	filter       bt.ScanFilter
}

func NewAdapter(logger logrus.FieldLogger, devices ...*Device) *Adapter {
	if logger == nil {
		panic("sim.Adapter: logger cannot be nil")
	}
	return &Adapter{
		logger:  logger,
		devices: devices,
		filter:  bt.DefaultScanFilter(),
	}
}

// DefaultDevices returns the demo peripherals used by the simulate command.
func DefaultDevices() []*Device {
	return []*Device{
		NewDevice(DeviceConfig{ID: "00:11:22:33:44:01", Name: "Fitness Band Sim"}),
		NewDevice(DeviceConfig{ID: "00:11:22:33:44:02", Name: "HeartRate Strap Sim", Services: []string{bt.ServiceUUIDHeartRate}}),
		NewDevice(DeviceConfig{ID: "00:11:22:33:44:03", Name: "Fitness Beacon Sim", NoGatt: true}),
	}
}

// Add makes d visible to later scans.
func (a *Adapter) Add(d *Device) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.devices = append(a.devices, d)
}

// Remove hides the device with the given id from later scans.
func (a *Adapter) Remove(id string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	kept := a.devices[:0]
	for _, d := range a.devices {
		if d.ID() != id {
			kept = append(kept, d)
		}
	}
	a.devices = kept
}

// Devices returns every simulated device, matching or not.
func (a *Adapter) Devices() []*Device {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return append([]*Device(nil), a.devices...)
}

// Device looks a device up by id.
func (a *Adapter) Device(id string) (*Device, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	for _, d := range a.devices {
		if d.ID() == id {
			return d, true
		}
	}
	return nil, false
}

// SetScanDelay delays every scan result by d.
func (a *Adapter) SetScanDelay(d time.Duration) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.scanDelay = d
}

// SetConnect scripts connection attempts: each one completes after delay,
// ignoring cancellation the way a radio connect does, and fails with err
// when it is non-nil.
func (a *Adapter) SetConnect(delay time.Duration, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.connectDelay = delay
	a.connectErr = err
}

func (a *Adapter) ScanForPeripheral(ctx context.Context, filter bt.ScanFilter) (bt.Peripheral, error) {
	a.mu.Lock()
	a.filter = filter
	delay := a.scanDelay
	var match *Device
	for _, d := range a.devices {
		if filter.MatchesName(d.Name()) {
			match = d
			break
		}
	}
	a.mu.Unlock()

	a.logger.Debugf("Sim: scanning (name prefixes %v)", filter.NamePrefixes)
	if match == nil {
		<-ctx.Done()
		return nil, scanCancelErr(ctx)
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		a.logger.Infof("Sim: found device: %s", match)
		return match, nil
	case <-ctx.Done():
		return nil, scanCancelErr(ctx)
	}
}

func (a *Adapter) Connect(_ context.Context, p bt.Peripheral) (bt.Connection, error) {
	d, ok := p.(*Device)
	if !ok || d == nil {
		return nil, fmt.Errorf("peripheral %v is not simulated", p)
	}

	a.mu.RLock()
	delay, connectErr, filter := a.connectDelay, a.connectErr, a.filter
	a.mu.RUnlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	if connectErr != nil {
		return nil, fmt.Errorf("connect %s: %w", d.ID(), connectErr)
	}
	if d.noGatt {
		return nil, fmt.Errorf("connect %s: no attribute server", d.ID())
	}
	conn, err := d.attach()
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", d.ID(), err)
	}
	conn.filter = filter
	a.logger.Infof("Sim: connected to %s", d)
	return conn, nil
}

func scanCancelErr(ctx context.Context) error {
	if errors.Is(ctx.Err(), context.Canceled) {
		return bt.ErrUserCancelled
	}
	return ctx.Err()
}

type connection struct {
	device *Device
	filter bt.ScanFilter
	closed bool // guarded by device.mu
}

func (c *connection) Peripheral() bt.Peripheral {
	return c.device
}

func (c *connection) IsConnected() bool {
	c.device.mu.Lock()
	defer c.device.mu.Unlock()
	return !c.closed
}

func (c *connection) AttributeGroups() ([]bt.AttributeGroup, error) {
	if !c.IsConnected() {
		return nil, bt.ErrNotConnected
	}
	groups := make([]bt.AttributeGroup, 0, len(c.device.services))
	for _, s := range c.device.services {
		uuid := normalize(s)
		if !c.filter.AllowsService(uuid) {
			continue
		}
		groups = append(groups, &group{conn: c, uuid: uuid})
	}
	return groups, nil
}

// Disconnect closes the connection without running disconnect hooks.
func (c *connection) Disconnect() error {
	c.device.mu.Lock()
	defer c.device.mu.Unlock()
	if c.closed {
		return nil
	}
	if c.device.conn == c {
		c.device.closeLocked()
	}
	c.closed = true
	return nil
}

type group struct {
	conn *connection
	uuid string
}

func (g *group) UUID() string {
	return g.uuid
}

func (g *group) Attributes() ([]bt.Attribute, error) {
	if !g.conn.IsConnected() {
		return nil, bt.ErrNotConnected
	}
	d := g.conn.device
	d.mu.Lock()
	err := d.groupErrs[g.uuid]
	d.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if !d.hasService(g.uuid) {
		return nil, fmt.Errorf("service %s not found", g.uuid)
	}

	uuids := attributesOf(g.uuid)
	attrs := make([]bt.Attribute, 0, len(uuids))
	for _, u := range uuids {
		attrs = append(attrs, &attribute{conn: g.conn, uuid: u})
	}
	return attrs, nil
}

type attribute struct {
	conn *connection
	uuid string
}

func (a *attribute) UUID() string {
	return a.uuid
}

func (a *attribute) Properties() bt.Properties {
	if a.uuid == "00002a00-0000-1000-8000-00805f9b34fb" {
		return bt.PropRead
	}
	return bt.PropRead | bt.PropNotify
}

func (a *attribute) Read() ([]byte, error) {
	if !a.conn.IsConnected() {
		return nil, bt.ErrNotConnected
	}
	return a.conn.device.payload(a.uuid), nil
}

func (a *attribute) Subscribe(callback func(buf []byte)) error {
	if callback == nil {
		return errors.New("nil notification callback")
	}
	d := a.conn.device
	d.mu.Lock()
	defer d.mu.Unlock()
	if a.conn.closed {
		return bt.ErrNotConnected
	}
	if err := d.subscribeErrs[a.uuid]; err != nil {
		return err
	}
	d.subscribers[a.uuid] = callback
	return nil
}

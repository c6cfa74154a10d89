// Package session owns the lifecycle of the one peripheral the user is
// working out with: discovery, connection, subscriptions, the decoded
// measurement snapshot and its persisted mirror.
package session

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/lowaak/fitness-link/internal/bt"
	"github.com/lowaak/fitness-link/internal/codec"
	"github.com/lowaak/fitness-link/internal/events"
	"github.com/lowaak/fitness-link/internal/go_func_utils"
	"github.com/lowaak/fitness-link/internal/metrics"
	"github.com/lowaak/fitness-link/internal/store"

	"github.com/sirupsen/logrus"
)

// Options tunes a Manager. Zero fields take the DefaultOptions value.
type Options struct {
	ScanTimeout    time.Duration
	ConnectTimeout time.Duration
	// Bound on each store operation
	StoreTimeout time.Duration
	Filter       bt.ScanFilter
	Layout       codec.WorkoutLayout
	StoreKey     string
}

// DefaultOptions: 30s scan, 10s connect, default filter and workout layout.
func DefaultOptions() Options {
	return Options{
		ScanTimeout:    30 * time.Second,
		ConnectTimeout: 10 * time.Second,
		StoreTimeout:   2 * time.Second,
		Filter:         bt.DefaultScanFilter(),
		Layout:         codec.DefaultWorkoutLayout,
		StoreKey:       DefaultStoreKey,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.ScanTimeout <= 0 {
		o.ScanTimeout = d.ScanTimeout
	}
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = d.ConnectTimeout
	}
	if o.StoreTimeout <= 0 {
		o.StoreTimeout = d.StoreTimeout
	}
	if o.Filter.NamePrefixes == nil && o.Filter.Services == nil {
		o.Filter = d.Filter
	}
	if o.Layout == (codec.WorkoutLayout{}) {
		o.Layout = d.Layout
	}
	if o.StoreKey == "" {
		o.StoreKey = d.StoreKey
	}
	return o
}

// activeSession exists from the start of ConnectToDevice until teardown.
type activeSession struct {
	gen        uint64
	peripheral bt.Peripheral
	conn       bt.Connection // nil until the connect race is won
	groups     []GroupInfo
}

// Manager is the session controller. All session state is owned here and
// mutated only by its methods; backend callbacks enter through the same
// mutex. gen increments on every session start and teardown so callbacks of
// a finished session are recognised and dropped.
type Manager struct {
	adapter bt.Adapter
	store   store.Store
	opts    Options
	logger  logrus.FieldLogger

	mu       sync.Mutex
	state    State
	gen      uint64
	devices  []bt.Peripheral
	active   *activeSession
	snapshot Snapshot

	updates *events.Feed[Update]
	notices *events.Feed[Notice]
}

// NewManager builds a Manager and restores the snapshot persisted by a
// previous run, if any.
func NewManager(adapter bt.Adapter, st store.Store, logger logrus.FieldLogger, opts Options) *Manager {
	if adapter == nil {
		panic("Manager: adapter cannot be nil")
	}
	if st == nil {
		panic("Manager: store cannot be nil")
	}
	if logger == nil {
		panic("Manager: logger cannot be nil")
	}
	opts = opts.withDefaults()
	if err := opts.Layout.Validate(); err != nil {
		panic("Manager: " + err.Error())
	}
	m := &Manager{
		adapter: adapter,
		store:   st,
		opts:    opts,
		logger:  logger,
		updates: events.NewFeed[Update](true),
		notices: events.NewFeed[Notice](false),
	}
	m.snapshot = m.restore()
	m.updates.Notify(Update{Snapshot: m.snapshot})
	setSnapshotGauges(m.snapshot)
	return m
}

// Updates publishes every snapshot change. New listeners receive the
// latest value immediately.
func (m *Manager) Updates() *events.Feed[Update] {
	return m.updates
}

// Notices publishes user-visible success and error messages.
func (m *Manager) Notices() *events.Feed[Notice] {
	return m.notices
}

// State returns the current lifecycle position.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Snapshot returns a copy of the current measurements.
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshot
}

// Devices returns the discovery list in discovery order.
func (m *Manager) Devices() []bt.Peripheral {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]bt.Peripheral(nil), m.devices...)
}

// Connected returns the peripheral of the connected session.
func (m *Manager) Connected() (bt.Peripheral, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateConnected || m.active == nil {
		return nil, false
	}
	return m.active.peripheral, true
}

// Groups returns the attribute metadata of the connected session.
func (m *Manager) Groups() []GroupInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil {
		return nil
	}
	return append([]GroupInfo(nil), m.active.groups...)
}

// ScanDevices asks the adapter for a peripheral matching the configured
// filter. A new peripheral is appended to the discovery list and gets the
// unsolicited-disconnect hook; a known one is returned as already stored.
// A user-cancelled scan returns (nil, nil).
func (m *Manager) ScanDevices(ctx context.Context) (bt.Peripheral, error) {
	m.mu.Lock()
	if m.state != StateIdle {
		state := m.state
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: cannot scan while %s", ErrBusy, state)
	}
	m.state = StateScanning
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		if m.state == StateScanning {
			m.state = StateIdle
		}
		m.mu.Unlock()
	}()

	m.logger.Infof("Session: scanning (timeout %v)", m.opts.ScanTimeout)
	p, err := raceTimeout(ctx, m.logger, m.opts.ScanTimeout, ErrScanTimeout,
		func(ctx context.Context) (bt.Peripheral, error) {
			return m.adapter.ScanForPeripheral(ctx, m.opts.Filter)
		}, nil)
	if err != nil {
		if isUserCancel(err) {
			m.logger.Debug("Session: scan cancelled by user")
			metrics.ScanResults.WithLabelValues("cancelled").Inc()
			return nil, nil
		}
		if errors.Is(err, ErrScanTimeout) {
			metrics.ScanResults.WithLabelValues("timeout").Inc()
		} else {
			metrics.ScanResults.WithLabelValues("error").Inc()
		}
		m.reportError(fmt.Sprintf("Scan failed: %v", err), err)
		return nil, err
	}
	if p == nil {
		err := errors.New("adapter returned no peripheral")
		metrics.ScanResults.WithLabelValues("error").Inc()
		m.reportError(fmt.Sprintf("Scan failed: %v", err), err)
		return nil, err
	}

	id := p.ID()
	m.mu.Lock()
	for _, known := range m.devices {
		if known.ID() == id {
			m.mu.Unlock()
			m.logger.Debugf("Session: %s already discovered", id)
			metrics.ScanResults.WithLabelValues("duplicate").Inc()
			return known, nil
		}
	}
	m.devices = append(m.devices, p)
	m.mu.Unlock()

	p.OnDisconnect(func() { m.handleDrop(id) })

	metrics.ScanResults.WithLabelValues("found").Inc()
	m.logger.WithField("peripheral", id).Infof("Session: device found: %s", displayName(p))
	m.report(NoticeSuccess, "Device found")
	return p, nil
}

// ConnectToDevice opens a session to p, enumerates its attribute groups and
// subscribes to the heart rate and workout data attributes. A group that
// cannot be set up is skipped; every other failure leaves the manager Idle.
func (m *Manager) ConnectToDevice(ctx context.Context, p bt.Peripheral) error {
	if p == nil {
		return errors.New("nil peripheral")
	}
	log := m.logger.WithField("peripheral", p.ID())

	m.mu.Lock()
	switch m.state {
	case StateConnected:
		current := m.active.peripheral.ID()
		m.mu.Unlock()
		metrics.ConnectResults.WithLabelValues("rejected").Inc()
		return fmt.Errorf("%w: %s", ErrAlreadyConnected, current)
	case StateScanning, StateConnecting:
		state := m.state
		m.mu.Unlock()
		metrics.ConnectResults.WithLabelValues("rejected").Inc()
		return fmt.Errorf("%w: cannot connect while %s", ErrBusy, state)
	}
	if !p.Connectable() {
		m.mu.Unlock()
		err := fmt.Errorf("%w: %s", ErrNoGattSupport, displayName(p))
		metrics.ConnectResults.WithLabelValues("no_gatt").Inc()
		m.reportError("This device does not support GATT services", err)
		return err
	}
	m.gen++
	gen := m.gen
	m.state = StateConnecting
	m.active = &activeSession{gen: gen, peripheral: p}
	m.mu.Unlock()

	log.Infof("Session: connecting to %s (timeout %v)", displayName(p), m.opts.ConnectTimeout)
	m.report(NoticeInfo, "Connecting to device...")

	conn, err := raceTimeout(ctx, m.logger, m.opts.ConnectTimeout, ErrConnectTimeout,
		func(ctx context.Context) (bt.Connection, error) {
			return m.adapter.Connect(ctx, p)
		},
		func(late bt.Connection) {
			log.Info("Session: closing connection that opened after the timeout")
			if err := late.Disconnect(); err != nil {
				log.WithError(err).Warn("Session: error closing late connection")
			}
		})
	if err != nil {
		return m.failConnect(gen, nil, err)
	}

	m.mu.Lock()
	if !m.isCurrentLocked(gen) {
		m.mu.Unlock()
		return m.failConnect(gen, conn, ErrConnectionLost)
	}
	m.active.conn = conn
	m.mu.Unlock()

	groups, err := conn.AttributeGroups()
	if err != nil {
		return m.failConnect(gen, conn, fmt.Errorf("list attribute groups: %w", err))
	}

	infos := make([]GroupInfo, 0, len(groups))
	for _, group := range groups {
		infos = append(infos, m.setupGroup(gen, group))
	}

	m.mu.Lock()
	if !m.isCurrentLocked(gen) {
		m.mu.Unlock()
		return m.failConnect(gen, conn, ErrConnectionLost)
	}
	m.active.groups = infos
	m.state = StateConnected
	snap := m.snapshot
	m.mu.Unlock()

	metrics.ConnectResults.WithLabelValues("connected").Inc()
	metrics.SessionConnected.Set(1)
	log.Infof("Session: connected to %s (%d attribute groups)", displayName(p), len(infos))
	m.updates.Notify(Update{PeripheralID: p.ID(), PeripheralName: p.Name(), Connected: true, Snapshot: snap})
	m.report(NoticeSuccess, fmt.Sprintf("Connected to: %s", displayName(p)))
	return nil
}

// setupGroup enumerates one group and installs its watchers. Failures are
// contained to the group.
func (m *Manager) setupGroup(gen uint64, group bt.AttributeGroup) GroupInfo {
	info := GroupInfo{UUID: group.UUID()}
	log := m.logger.WithField("group", info.UUID)

	attrs, err := group.Attributes()
	if err != nil {
		info.Err = fmt.Errorf("%w: %s: %v", ErrPartialServiceFailure, info.UUID, err)
		metrics.PartialServiceFailures.Inc()
		log.WithError(err).Warn("Session: attribute enumeration failed, skipping group")
		return info
	}
	for _, a := range attrs {
		info.Attributes = append(info.Attributes, AttributeInfo{UUID: a.UUID(), Properties: a.Properties()})
	}

	for _, w := range m.watchersFor(info.UUID) {
		attr := findAttribute(attrs, w.attributeUUID)
		if attr == nil {
			log.Debugf("Session: %s attribute not present", w.name)
			continue
		}
		if err := m.watch(gen, w, attr); err != nil {
			info.Err = fmt.Errorf("%w: %s: %v", ErrPartialServiceFailure, info.UUID, err)
			metrics.PartialServiceFailures.Inc()
			log.WithError(err).Warnf("Session: %s setup failed, skipping group", w.name)
			return info
		}
	}
	return info
}

// watch reads attr once, then subscribes to its notifications. A failed
// initial read is reported but does not stop the subscription.
func (m *Manager) watch(gen uint64, w watcher, attr bt.Attribute) error {
	buf, err := attr.Read()
	if err == nil && len(buf) == 0 {
		err = ErrEmptyPayload
	}
	if err != nil {
		m.reportError(fmt.Sprintf("Failed to read %s data", w.name), fmt.Errorf("initial %s read: %w", w.name, err))
	} else {
		go_func_utils.Recover(m.logger, w.id+" read", func() {
			m.apply(gen, w, buf, "read")
		})
	}

	return attr.Subscribe(func(buf []byte) {
		go_func_utils.Recover(m.logger, w.id+" notification", func() {
			m.apply(gen, w, buf, "notify")
		})
	})
}

// apply decodes one payload and folds it into the snapshot of session gen.
func (m *Manager) apply(gen uint64, w watcher, buf []byte, source string) {
	metrics.PayloadsReceived.WithLabelValues(w.id, source).Inc()

	mutate, err := w.decode(buf)
	if err != nil {
		metrics.DecodeFailures.WithLabelValues(w.id).Inc()
		m.logger.WithField("raw", hex.EncodeToString(buf)).WithError(err).Warnf("Session: %s parse error", w.name)
		m.report(NoticeError, fmt.Sprintf("Failed to parse %s data", w.name), err)
		return
	}

	m.mu.Lock()
	if !m.isCurrentLocked(gen) {
		m.mu.Unlock()
		m.logger.Debugf("Session: dropping %s payload from a finished session", w.name)
		return
	}
	mutate(&m.snapshot)
	m.snapshot.HasData = true
	snap := m.snapshot
	m.persistLocked(snap)
	upd := Update{
		PeripheralID:   m.active.peripheral.ID(),
		PeripheralName: m.active.peripheral.Name(),
		Connected:      m.state == StateConnected,
		Snapshot:       snap,
	}
	m.mu.Unlock()

	setSnapshotGauges(snap)
	m.updates.Notify(upd)
}

// Disconnect tears the session down. It is a no-op without an open session.
func (m *Manager) Disconnect() error {
	return m.teardown("", false)
}

// handleDrop runs when a peripheral drops the link on its own.
func (m *Manager) handleDrop(peripheralID string) {
	if err := m.teardown(peripheralID, true); err != nil {
		m.logger.WithError(err).Warn("Session: teardown after unsolicited disconnect")
	}
}

// teardown closes the open session. A non-empty onlyID restricts it to the
// session of that peripheral. A session still waiting for its connection is
// abandoned: ConnectToDevice sees the new generation and closes the late
// connection itself.
func (m *Manager) teardown(onlyID string, dropped bool) error {
	m.mu.Lock()
	active := m.active
	if active == nil || (onlyID != "" && active.peripheral.ID() != onlyID) {
		m.mu.Unlock()
		return nil
	}
	if active.conn == nil {
		if dropped {
			m.mu.Unlock()
			return nil
		}
		m.gen++
		m.state = StateIdle
		m.active = nil
		m.mu.Unlock()
		m.logger.WithField("peripheral", active.peripheral.ID()).Info("Session: disconnect requested while connecting, abandoning attempt")
		return nil
	}
	m.gen++
	m.state = StateIdle
	m.active = nil
	m.snapshot = Snapshot{}
	m.removePersistedLocked()
	m.mu.Unlock()

	p := active.peripheral
	log := m.logger.WithField("peripheral", p.ID())
	if dropped {
		log.Info("Session: peripheral dropped the connection")
	} else {
		log.Info("Session: disconnecting")
	}

	var err error
	if active.conn.IsConnected() {
		if derr := active.conn.Disconnect(); derr != nil {
			err = fmt.Errorf("disconnect %s: %w", p.ID(), derr)
			log.WithError(derr).Warn("Session: error closing connection")
		}
	}

	metrics.SessionConnected.Set(0)
	setSnapshotGauges(Snapshot{})
	m.updates.Notify(Update{PeripheralID: p.ID(), PeripheralName: p.Name(), Snapshot: Snapshot{}})
	if dropped {
		m.report(NoticeError, "Device disconnected unexpectedly")
	} else {
		m.report(NoticeSuccess, "Disconnected from device")
	}
	return err
}

// failConnect unwinds a connection attempt of session gen.
func (m *Manager) failConnect(gen uint64, conn bt.Connection, err error) error {
	m.mu.Lock()
	if m.gen == gen {
		m.gen++
		m.state = StateIdle
		m.active = nil
	}
	m.mu.Unlock()

	if conn != nil && conn.IsConnected() {
		if derr := conn.Disconnect(); derr != nil {
			m.logger.WithError(derr).Warn("Session: error closing failed connection")
		}
	}

	switch {
	case errors.Is(err, ErrConnectTimeout):
		metrics.ConnectResults.WithLabelValues("timeout").Inc()
	default:
		metrics.ConnectResults.WithLabelValues("error").Inc()
	}
	if isUserCancel(err) {
		m.logger.Debug("Session: connect cancelled by user")
		return err
	}
	m.reportError(fmt.Sprintf("Connection failed: %v", err), err)
	return err
}

func (m *Manager) isCurrentLocked(gen uint64) bool {
	return m.gen == gen && m.active != nil
}

func (m *Manager) storeContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), m.opts.StoreTimeout)
}

func (m *Manager) restore() Snapshot {
	ctx, cancel := m.storeContext()
	defer cancel()

	raw, err := m.store.Get(ctx, m.opts.StoreKey)
	if errors.Is(err, store.ErrNotFound) {
		m.logger.Debug("Session: no persisted snapshot")
		return Snapshot{}
	}
	if err != nil {
		m.logger.WithError(err).Warn("Session: could not load persisted snapshot, starting empty")
		return Snapshot{}
	}
	snap, err := DecodeSnapshot(raw)
	if err != nil {
		m.logger.WithError(err).Warn("Session: ignoring persisted snapshot")
		return Snapshot{}
	}
	m.logger.Infof("Session: restored snapshot (heart rate %d, time %s, %.1f kcal)", snap.HeartRate, snap.Clock(), snap.CaloriesKcal)
	return snap
}

func (m *Manager) persistLocked(snap Snapshot) {
	raw, err := EncodeSnapshot(snap)
	if err != nil {
		m.logger.WithError(err).Error("Session: encode snapshot")
		return
	}
	ctx, cancel := m.storeContext()
	defer cancel()
	if err := m.store.Set(ctx, m.opts.StoreKey, raw); err != nil {
		m.logger.WithError(err).Error("Session: persist snapshot")
	}
}

func (m *Manager) removePersistedLocked() {
	ctx, cancel := m.storeContext()
	defer cancel()
	if err := m.store.Remove(ctx, m.opts.StoreKey); err != nil {
		m.logger.WithError(err).Error("Session: remove persisted snapshot")
	}
}

func (m *Manager) report(level NoticeLevel, message string, errs ...error) {
	n := Notice{Level: level, Message: message, Time: time.Now()}
	if len(errs) > 0 {
		n.Err = errs[0]
	}
	m.notices.Notify(n)
}

func (m *Manager) reportError(message string, err error) {
	m.logger.WithError(err).Error("Session: " + message)
	m.report(NoticeError, message, err)
}

func isUserCancel(err error) bool {
	return errors.Is(err, bt.ErrUserCancelled) || errors.Is(err, context.Canceled)
}

func displayName(p bt.Peripheral) string {
	if name := p.Name(); name != "" {
		return name
	}
	return "Unknown Device"
}

func setSnapshotGauges(s Snapshot) {
	metrics.HeartRate.Set(float64(s.HeartRate))
	metrics.ElapsedSeconds.Set(float64(s.ElapsedSeconds))
	metrics.CaloriesKcal.Set(s.CaloriesKcal)
}

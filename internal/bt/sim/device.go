// Package sim is an in-process bt.Adapter with scripted peripherals, used
// for tests and for running the dashboard without hardware.
package sim

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/lowaak/fitness-link/internal/bt"
	"github.com/lowaak/fitness-link/internal/codec"
)

// Verify Device implements bt.Peripheral
var _ bt.Peripheral = (*Device)(nil)

// DeviceConfig describes a simulated peripheral.
type DeviceConfig struct {
	ID   string
	Name string
	// NoGatt marks a peripheral that is seen while scanning but exposes no
	// attribute server.
	NoGatt bool
	// Services defaults to heart rate plus fitness machine
	Services []string
	Layout   codec.WorkoutLayout
}

// DeviceState is the simulated measurement state of a Device.
type DeviceState struct {
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	Connected      bool    `json:"connected"`
	HeartRate      int     `json:"heartRate"`
	ElapsedSeconds uint32  `json:"elapsedSeconds"`
	CaloriesKcal   float64 `json:"caloriesKcal"`
}

// Device is a simulated peripheral. It exposes the heart rate measurement
// attribute under the heart rate service and the workout data attribute
// under the fitness machine service.
type Device struct {
	id       string
	name     string
	noGatt   bool
	services []string
	layout   codec.WorkoutLayout

	mu             sync.Mutex
	heartRate      int
	elapsedSeconds uint32
	caloriesKcal   float64
	conn           *connection // nil if not connected
	subscribers    map[string]func([]byte)
	hooks          []func()
	groupErrs      map[string]error
	subscribeErrs  map[string]error
	readOverrides  map[string][]byte
}

func NewDevice(cfg DeviceConfig) *Device {
	services := cfg.Services
	if len(services) == 0 {
		services = []string{bt.ServiceUUIDHeartRate, bt.ServiceUUIDFitnessMachine}
	}
	layout := cfg.Layout
	if layout == (codec.WorkoutLayout{}) {
		layout = codec.DefaultWorkoutLayout
	}
	return &Device{
		id:            cfg.ID,
		name:          cfg.Name,
		noGatt:        cfg.NoGatt,
		services:      append([]string(nil), services...),
		layout:        layout,
		heartRate:     70,
		subscribers:   make(map[string]func([]byte)),
		groupErrs:     make(map[string]error),
		subscribeErrs: make(map[string]error),
		readOverrides: make(map[string][]byte),
	}
}

func (d *Device) ID() string { return d.id }
func (d *Device) Name() string { return d.name }
func (d *Device) Connectable() bool { return !d.noGatt }
func (d *Device) String() string { return fmt.Sprintf("%s (%s)", d.name, d.id) }
func (d *Device) Layout() codec.WorkoutLayout { return d.layout }

func (d *Device) OnDisconnect(hook func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.hooks = append(d.hooks, hook)
}

// IsConnected reports whether a connection to the device is open.
func (d *Device) IsConnected() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.conn != nil
}

// State returns the simulated values.
func (d *Device) State() DeviceState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return DeviceState{
		ID:             d.id,
		Name:           d.name,
		Connected:      d.conn != nil,
		HeartRate:      d.heartRate,
		ElapsedSeconds: d.elapsedSeconds,
		CaloriesKcal:   d.caloriesKcal,
	}
}

func (d *Device) SetHeartRate(bpm int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.heartRate = bpm
}

func (d *Device) SetWorkout(elapsedSeconds uint32, caloriesKcal float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.elapsedSeconds = elapsedSeconds
	d.caloriesKcal = caloriesKcal
}

// FailGroup makes attribute enumeration of the group fail with err. A nil
// err clears the failure.
func (d *Device) FailGroup(groupUUID string, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	setOrClear(d.groupErrs, normalize(groupUUID), err)
}

// FailSubscribe makes subscribing to the attribute fail with err.
func (d *Device) FailSubscribe(attrUUID string, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	setOrClear(d.subscribeErrs, normalize(attrUUID), err)
}

// SetReadPayload makes reads of the attribute return buf verbatim instead of
// the encoded simulated values. A nil buf restores the default.
func (d *Device) SetReadPayload(attrUUID string, buf []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	key := normalize(attrUUID)
	if buf == nil {
		delete(d.readOverrides, key)
		return
	}
	d.readOverrides[key] = append([]byte{}, buf...)
}

// Push delivers buf to the subscriber of the attribute. It reports whether
// a subscriber received it.
func (d *Device) Push(attrUUID string, buf []byte) bool {
	d.mu.Lock()
	cb := d.subscribers[normalize(attrUUID)]
	d.mu.Unlock()
	if cb == nil {
		return false
	}
	cb(append([]byte(nil), buf...))
	return true
}

// PushHeartRate notifies the current heart rate.
func (d *Device) PushHeartRate() bool {
	return d.Push(bt.CharUUIDHeartRateMeasurement, d.payload(bt.CharUUIDHeartRateMeasurement))
}

// PushWorkout notifies the current workout values.
func (d *Device) PushWorkout() bool {
	return d.Push(bt.CharUUIDWorkoutData, d.payload(bt.CharUUIDWorkoutData))
}

// Drop simulates the peripheral ending the connection on its own: the
// connection closes and every disconnect hook runs.
func (d *Device) Drop() bool {
	d.mu.Lock()
	if d.conn == nil {
		d.mu.Unlock()
		return false
	}
	d.closeLocked()
	hooks := append([]func(){}, d.hooks...)
	d.mu.Unlock()

	for _, hook := range hooks {
		hook()
	}
	return true
}

func (d *Device) payload(attrUUID string) []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	key := normalize(attrUUID)
	if buf, ok := d.readOverrides[key]; ok {
		return append([]byte{}, buf...)
	}
	switch key {
	case bt.CharUUIDHeartRateMeasurement:
		return codec.EncodeHeartRate(d.heartRate)
	case bt.CharUUIDWorkoutData:
		return d.layout.Encode(codec.WorkoutSummary{ElapsedSeconds: d.elapsedSeconds, CaloriesKcal: d.caloriesKcal})
	default:
		return nil
	}
}

func (d *Device) attach() (*connection, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.conn != nil {
		return nil, errors.New("device already connected")
	}
	d.conn = &connection{device: d}
	return d.conn, nil
}

func (d *Device) closeLocked() {
	if d.conn != nil {
		d.conn.closed = true
	}
	d.conn = nil
	d.subscribers = make(map[string]func([]byte))
}

func (d *Device) hasService(uuid string) bool {
	for _, s := range d.services {
		if normalize(s) == uuid {
			return true
		}
	}
	return false
}

// attributesOf lists the attribute UUIDs a group exposes.
func attributesOf(groupUUID string) []string {
	switch groupUUID {
	case bt.ServiceUUIDHeartRate:
		return []string{bt.CharUUIDHeartRateMeasurement}
	case bt.ServiceUUIDFitnessMachine:
		return []string{bt.CharUUIDWorkoutData}
	case bt.ServiceUUIDGenericAccess:
		return []string{"00002a00-0000-1000-8000-00805f9b34fb"}
	default:
		return nil
	}
}

func setOrClear(m map[string]error, key string, err error) {
	if err == nil {
		delete(m, key)
		return
	}
	m[key] = err
}

func normalize(u string) string {
	if n, err := bt.NormalizeUUID(u); err == nil {
		return n
	}
	return strings.ToLower(u)
}

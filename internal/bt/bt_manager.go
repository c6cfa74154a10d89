package bt

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/lowaak/fitness-link/internal/go_func_utils"

	"github.com/sirupsen/logrus"
	"tinygo.org/x/bluetooth"
)

// Verify BTManager implements Adapter
var _ Adapter = (*BTManager)(nil)

// BTManager is an Adapter backed by the host radio through tinygo bluetooth.
type BTManager struct {
	adapter              *bluetooth.Adapter
	peripheralsByAddress map[string]*btPeripheral
	mu                   sync.RWMutex
	scanning             bool
	logger               logrus.FieldLogger
}

func NewBTManager(adapter *bluetooth.Adapter, logger logrus.FieldLogger) *BTManager {
	if adapter == nil {
		panic("BTManager: adapter cannot be nil")
	}
	if logger == nil {
		panic("BTManager: logger cannot be nil")
	}
	return &BTManager{
		adapter:              adapter,
		peripheralsByAddress: make(map[string]*btPeripheral),
		logger:               logger,
	}
}

// Enable powers up the BLE stack and installs the connect handler that turns
// unsolicited disconnects into peripheral hook calls.
func (m *BTManager) Enable() error {
	m.adapter.SetConnectHandler(func(device bluetooth.Device, connected bool) {
		addressStr := device.Address.String()

		m.mu.RLock()
		p, ok := m.peripheralsByAddress[addressStr]
		m.mu.RUnlock()
		if !ok {
			return
		}

		if connected {
			m.logger.Debugf("BTManager: device connected: %s", addressStr)
			return
		}
		m.logger.Infof("BTManager: device disconnected: %s", addressStr)
		p.handleDisconnect()
	})

	if err := m.adapter.Enable(); err != nil {
		return fmt.Errorf("enable BLE stack: %w", err)
	}
	return nil
}

func (m *BTManager) getPeripheral(result bluetooth.ScanResult, filter ScanFilter) *btPeripheral {
	addressStr := result.Address.String()

	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.peripheralsByAddress[addressStr]
	if !ok {
		p = newBtPeripheral(result.Address, m.logger)
		m.peripheralsByAddress[addressStr] = p
	}
	p.update(result.LocalName(), filter)
	return p
}

// ScanForPeripheral scans until a device whose local name matches the filter
// is seen. Cancelling ctx while scanning yields ErrUserCancelled unless the
// context deadline expired.
func (m *BTManager) ScanForPeripheral(ctx context.Context, filter ScanFilter) (Peripheral, error) {
	m.mu.Lock()
	if m.scanning {
		m.mu.Unlock()
		return nil, errors.New("a scan is already running")
	}
	m.scanning = true
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.scanning = false
		m.mu.Unlock()
	}()

	m.logger.Infof("BTManager: starting scan (name prefixes %v)", filter.NamePrefixes)

	found := make(chan bluetooth.ScanResult, 1)
	scanDone := make(chan error, 1)

	go_func_utils.SafeGo(m.logger, func() {
		scanDone <- m.adapter.Scan(func(adapter *bluetooth.Adapter, result bluetooth.ScanResult) {
			name := result.LocalName()
			if !filter.MatchesName(name) {
				return
			}
			m.logger.Infof("BTManager: found device: %s (%s) [RSSI: %d]", name, result.Address.String(), result.RSSI)
			select {
			case found <- result:
				if err := adapter.StopScan(); err != nil {
					m.logger.Warnf("BTManager: error stopping scan: %v", err)
				}
			default:
				// a result is already pending; the scan is stopping
			}
		})
	})

	select {
	case result := <-found:
		<-scanDone
		return m.getPeripheral(result, filter), nil
	case err := <-scanDone:
		select {
		case result := <-found:
			return m.getPeripheral(result, filter), nil
		default:
		}
		if err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		return nil, errors.New("scan stopped without finding a device")
	case <-ctx.Done():
		if err := m.adapter.StopScan(); err != nil {
			m.logger.Warnf("BTManager: error stopping scan: %v", err)
		}
		<-scanDone
		if errors.Is(ctx.Err(), context.Canceled) {
			return nil, ErrUserCancelled
		}
		return nil, ctx.Err()
	}
}

// Connect opens a connection to a peripheral found by ScanForPeripheral.
// A connection that completes after ctx is done is closed again.
func (m *BTManager) Connect(ctx context.Context, p Peripheral) (Connection, error) {
	peripheral, ok := p.(*btPeripheral)
	if !ok || peripheral == nil {
		return nil, fmt.Errorf("peripheral %v was not discovered by this adapter", p)
	}
	addressStr := peripheral.ID()
	m.logger.Infof("BTManager: attempting to connect to device: %s", addressStr)

	type connectResult struct {
		device bluetooth.Device
		err    error
	}
	done := make(chan connectResult, 1)

	go_func_utils.SafeGo(m.logger, func() {
		device, err := m.adapter.Connect(peripheral.address, bluetooth.ConnectionParams{})
		done <- connectResult{device: device, err: err}
	})

	select {
	case r := <-done:
		if r.err != nil {
			m.logger.Warnf("BTManager: connection error: %v", r.err)
			return nil, fmt.Errorf("connect %s: %w", addressStr, r.err)
		}
		m.logger.Infof("BTManager: connected to device: %s", addressStr)
		return peripheral.attach(&r.device), nil
	case <-ctx.Done():
		go_func_utils.SafeGo(m.logger, func() {
			r := <-done
			if r.err != nil {
				return
			}
			m.logger.Infof("BTManager: discarding late connection to %s", addressStr)
			if err := r.device.Disconnect(); err != nil {
				m.logger.Warnf("BTManager: error closing late connection: %v", err)
			}
		})
		return nil, ctx.Err()
	}
}

// Shutdown stops a running scan and closes every open connection.
func (m *BTManager) Shutdown() {
	m.logger.Info("BTManager: shutting down")
	m.mu.RLock()
	scanning := m.scanning
	peripherals := make([]*btPeripheral, 0, len(m.peripheralsByAddress))
	for _, p := range m.peripheralsByAddress {
		peripherals = append(peripherals, p)
	}
	m.mu.RUnlock()

	if scanning {
		if err := m.adapter.StopScan(); err != nil {
			m.logger.Warnf("BTManager: error stopping scan: %v", err)
		}
	}
	for _, p := range peripherals {
		if conn := p.currentConnection(); conn != nil && conn.IsConnected() {
			if err := conn.Disconnect(); err != nil {
				m.logger.Warnf("BTManager: error disconnecting from %s: %v", p.ID(), err)
			}
		}
	}
	m.logger.Info("BTManager: shutdown complete")
}

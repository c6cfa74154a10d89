package bt

import (
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"tinygo.org/x/bluetooth"
)

type btPeripheral struct {
	address bluetooth.Address
	logger  logrus.FieldLogger

	mu        sync.RWMutex
	localName string
	filter    ScanFilter
	hooks     []func()
	conn      *btConnection // nil if not connected
}

func newBtPeripheral(address bluetooth.Address, logger logrus.FieldLogger) *btPeripheral {
	return &btPeripheral{
		address:   address,
		localName: "Unknown",
		logger:    logger.WithField("peripheral", address.String()),
	}
}

func (p *btPeripheral) ID() string {
	return p.address.String()
}

func (p *btPeripheral) Name() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.localName
}

// Connectable is always true: the scan only surfaces devices the host stack
// can open a GATT client to.
func (p *btPeripheral) Connectable() bool {
	return true
}

func (p *btPeripheral) OnDisconnect(hook func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.hooks = append(p.hooks, hook)
}

func (p *btPeripheral) String() string {
	return fmt.Sprintf("%s (%s)", p.Name(), p.ID())
}

func (p *btPeripheral) update(localName string, filter ScanFilter) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if localName != "" {
		p.localName = localName
	}
	p.filter = filter
}

func (p *btPeripheral) attach(device *bluetooth.Device) *btConnection {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.conn = &btConnection{
		peripheral: p,
		device:     device,
		filter:     p.filter,
		connected:  true,
		logger:     p.logger,
	}
	return p.conn
}

func (p *btPeripheral) currentConnection() *btConnection {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.conn
}

func (p *btPeripheral) handleDisconnect() {
	p.mu.Lock()
	conn := p.conn
	p.conn = nil
	hooks := append([]func(){}, p.hooks...)
	p.mu.Unlock()

	if conn == nil {
		return
	}
	conn.markClosed()
	for _, hook := range hooks {
		hook()
	}
}

type btConnection struct {
	peripheral *btPeripheral
	device     *bluetooth.Device
	filter     ScanFilter
	logger     logrus.FieldLogger

	mu        sync.Mutex
	connected bool
	groups    []AttributeGroup

	// Serializes BLE operations on the device (discovery, reads, notifications)
	bleMu sync.Mutex
}

func (c *btConnection) Peripheral() Peripheral {
	return c.peripheral
}

func (c *btConnection) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *btConnection) markClosed() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
}

// AttributeGroups discovers every service once per connection; discovering
// single services repeatedly interrupts services already in use. Groups
// outside the scan filter's allowlist are not returned.
func (c *btConnection) AttributeGroups() ([]AttributeGroup, error) {
	if !c.IsConnected() {
		return nil, ErrNotConnected
	}

	c.bleMu.Lock()
	defer c.bleMu.Unlock()

	c.mu.Lock()
	cached := c.groups
	c.mu.Unlock()
	if cached != nil {
		return cached, nil
	}

	c.logger.Debug("BTDevice: discovering all services")
	services, err := c.device.DiscoverServices(nil)
	if err != nil {
		return nil, fmt.Errorf("error discovering services: %w", err)
	}

	groups := make([]AttributeGroup, 0, len(services))
	for i := range services {
		svc := &services[i]
		uuidStr := svc.UUID().String()
		if !c.filter.AllowsService(uuidStr) {
			c.logger.Debugf("BTDevice: skipping service %s (not in allowlist)", uuidStr)
			continue
		}
		groups = append(groups, &btService{conn: c, service: svc, uuid: uuidStr})
	}

	c.mu.Lock()
	c.groups = groups
	c.mu.Unlock()
	return groups, nil
}

func (c *btConnection) Disconnect() error {
	c.mu.Lock()
	wasConnected := c.connected
	c.connected = false
	c.mu.Unlock()
	if !wasConnected {
		return nil
	}

	c.peripheral.mu.Lock()
	if c.peripheral.conn == c {
		c.peripheral.conn = nil
	}
	c.peripheral.mu.Unlock()

	if err := c.device.Disconnect(); err != nil {
		return fmt.Errorf("disconnect: %w", err)
	}
	return nil
}

type btService struct {
	conn    *btConnection
	service *bluetooth.DeviceService
	uuid    string
}

func (s *btService) UUID() string {
	return s.uuid
}

func (s *btService) Attributes() ([]Attribute, error) {
	if !s.conn.IsConnected() {
		return nil, ErrNotConnected
	}

	s.conn.bleMu.Lock()
	defer s.conn.bleMu.Unlock()

	s.conn.logger.Debugf("BTDevice: discovering all characteristics for service %s", s.uuid)
	chars, err := s.service.DiscoverCharacteristics(nil)
	if err != nil {
		return nil, fmt.Errorf("could not discover characteristics for service %v: %w", s.uuid, err)
	}

	attrs := make([]Attribute, 0, len(chars))
	for i := range chars {
		char := &chars[i]
		attrs = append(attrs, &btCharacteristic{conn: s.conn, char: char, uuid: char.UUID().String()})
	}
	return attrs, nil
}

type btCharacteristic struct {
	conn *btConnection
	char *bluetooth.DeviceCharacteristic
	uuid string
}

func (c *btCharacteristic) UUID() string {
	return c.uuid
}

// Properties is not reported portably by tinygo bluetooth.
func (c *btCharacteristic) Properties() Properties {
	return 0
}

func (c *btCharacteristic) Read() ([]byte, error) {
	if !c.conn.IsConnected() {
		return nil, ErrNotConnected
	}

	c.conn.bleMu.Lock()
	defer c.conn.bleMu.Unlock()

	buf := make([]byte, 512)
	n, err := c.char.Read(buf)
	if err != nil {
		return nil, fmt.Errorf("failed to read characteristic %s: %w", c.uuid, err)
	}
	return buf[:n], nil
}

func (c *btCharacteristic) Subscribe(callback func(buf []byte)) error {
	if callback == nil {
		return errors.New("nil notification callback")
	}
	if !c.conn.IsConnected() {
		return ErrNotConnected
	}

	c.conn.bleMu.Lock()
	defer c.conn.bleMu.Unlock()

	if err := c.char.EnableNotifications(callback); err != nil {
		return fmt.Errorf("failed to enable notifications for %s: %w", c.uuid, err)
	}
	c.conn.logger.Debugf("BTDevice: notifications enabled for %s", c.uuid)
	return nil
}

package bt

import (
	"context"
	"errors"
	"strings"
)

// ErrUserCancelled is returned by ScanForPeripheral when the user aborted the
// device chooser. It is not a failure and callers should not report it.
var ErrUserCancelled = errors.New("scan cancelled by user")

// ErrNotConnected is returned by attribute operations on a closed connection.
var ErrNotConnected = errors.New("not connected")

// Properties is the set of operations an attribute supports.
type Properties uint8

const (
	PropRead Properties = 1 << iota
	PropWrite
	PropWriteWithoutResponse
	PropNotify
	PropIndicate
)

var propertyNames = []struct {
	prop Properties
	name string
}{
	{PropRead, "read"},
	{PropWrite, "write"},
	{PropWriteWithoutResponse, "write-without-response"},
	{PropNotify, "notify"},
	{PropIndicate, "indicate"},
}

// Has reports whether every bit of q is set in p.
func (p Properties) Has(q Properties) bool {
	return p&q == q
}

func (p Properties) String() string {
	if p == 0 {
		return "unknown"
	}
	names := make([]string, 0, len(propertyNames))
	for _, pn := range propertyNames {
		if p.Has(pn.prop) {
			names = append(names, pn.name)
		}
	}
	return strings.Join(names, "|")
}

// ScanFilter restricts discovery. A peripheral matches when its name starts
// with one of NamePrefixes. Services is an allowlist of the attribute groups
// that may be used once connected; an empty list allows every group.
type ScanFilter struct {
	NamePrefixes []string
	Services     []string
}

// MatchesName reports whether name starts with one of the prefixes. An empty
// prefix list matches every name.
func (f ScanFilter) MatchesName(name string) bool {
	if len(f.NamePrefixes) == 0 {
		return true
	}
	for _, prefix := range f.NamePrefixes {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}

// AllowsService reports whether the group with the given UUID may be used.
func (f ScanFilter) AllowsService(serviceUUID string) bool {
	if len(f.Services) == 0 {
		return true
	}
	for _, s := range f.Services {
		if strings.EqualFold(s, serviceUUID) {
			return true
		}
	}
	return false
}

// Peripheral is a discovered device. Two handles refer to the same device
// when their IDs are equal.
type Peripheral interface {
	ID() string
	Name() string
	// Connectable is false for devices that expose no attribute server
	Connectable() bool
	// OnDisconnect registers a hook run when the device drops the connection
	// without being asked to
	OnDisconnect(hook func())
}

// Adapter is the host side of the radio.
type Adapter interface {
	ScanForPeripheral(ctx context.Context, filter ScanFilter) (Peripheral, error)
	Connect(ctx context.Context, p Peripheral) (Connection, error)
}

// Connection is an open channel to one peripheral.
type Connection interface {
	Peripheral() Peripheral
	IsConnected() bool
	AttributeGroups() ([]AttributeGroup, error)
	Disconnect() error
}

// AttributeGroup is a GATT service.
type AttributeGroup interface {
	UUID() string
	Attributes() ([]Attribute, error)
}

// Attribute is a GATT characteristic.
type Attribute interface {
	UUID() string
	Properties() Properties
	Read() ([]byte, error)
	// Subscribe enables notifications. The callback runs on a backend
	// goroutine; a single attribute's payloads arrive in send order.
	Subscribe(callback func(buf []byte)) error
}

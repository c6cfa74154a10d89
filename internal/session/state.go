package session

import (
	"time"

	"github.com/lowaak/fitness-link/internal/bt"
	"github.com/lowaak/fitness-link/internal/codec"
)

// State is the session lifecycle position.
type State int

const (
	StateIdle State = iota
	StateScanning
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateScanning:
		return "Scanning"
	case StateConnecting:
		return "Connecting"
	case StateConnected:
		return "Connected"
	default:
		// This shouldn't happen...
		return "Unknown"
	}
}

// Snapshot is the current best-known set of decoded measurements.
type Snapshot struct {
	HeartRate      int     // bpm, 0 = unknown
	ElapsedSeconds uint32  // as reported by the device
	CaloriesKcal   float64 // kcal
	HasData        bool    // true once any field came from a device
}

// Clock renders ElapsedSeconds as HH:MM:SS.
func (s Snapshot) Clock() string {
	return codec.FormatClock(int64(s.ElapsedSeconds))
}

// Update is published on every snapshot change, including the reset on
// disconnect.
type Update struct {
	PeripheralID   string
	PeripheralName string
	Connected      bool
	Snapshot       Snapshot
}

// NoticeLevel classifies user-visible notices.
type NoticeLevel int

const (
	NoticeInfo NoticeLevel = iota
	NoticeSuccess
	NoticeError
)

func (l NoticeLevel) String() string {
	switch l {
	case NoticeSuccess:
		return "success"
	case NoticeError:
		return "error"
	default:
		return "info"
	}
}

// Notice is a user-visible message about the session.
type Notice struct {
	Level   NoticeLevel
	Message string
	Err     error
	Time    time.Time
}

// AttributeInfo describes one attribute of a connected peripheral.
type AttributeInfo struct {
	UUID       string
	Properties bt.Properties
}

// GroupInfo describes one attribute group of a connected peripheral. Err is
// set (wrapping ErrPartialServiceFailure) when the group could not be set up.
type GroupInfo struct {
	UUID       string
	Attributes []AttributeInfo
	Err        error
}

package main

import (
	"errors"

	"github.com/lowaak/fitness-link/internal/codec"
	"github.com/lowaak/fitness-link/internal/session"
)

// Command-level errors
var (
	// ErrNoDevice is returned when a scan ended without a device and
	// without an error, which only happens when it was interrupted.
	ErrNoDevice = errors.New("no device found")
	// ErrDeviceGone is returned when the session ended while streaming.
	ErrDeviceGone = errors.New("device disconnected")
)

var userHints = []struct {
	err  error
	hint string
}{
	{session.ErrScanTimeout, "make sure the device is awake and advertising, or raise session.scan_timeout"},
	{session.ErrConnectTimeout, "move closer to the device or raise session.connect_timeout"},
	{session.ErrNoGattSupport, "the device only advertises; pick a band, strap or machine"},
	{codec.ErrMalformedPayload, "check the payload bytes and the session.workout layout"},
}

// FormatUserError renders err for the terminal, adding a hint for errors a
// user can act on.
func FormatUserError(err error) string {
	msg := err.Error()
	for _, h := range userHints {
		if errors.Is(err, h.err) {
			return msg + " (" + h.hint + ")"
		}
	}
	return msg
}

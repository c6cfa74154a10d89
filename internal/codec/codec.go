// Package codec decodes fitness characteristic payloads received from BLE
// peripherals into typed measurements.
package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrMalformedPayload is returned when a payload is too short for the format
// its flags (or the workout layout) declare.
var ErrMalformedPayload = errors.New("malformed payload")

// hrFlagUint16 is bit 0 of the heart rate measurement flags: 0 = UINT8, 1 = UINT16
const hrFlagUint16 = 0x01

// DecodeHeartRate parses a heart rate measurement characteristic (0x2A37).
// Only the value format bit is interpreted; sensor contact, energy expended
// and RR-interval fields are ignored.
// See: https://www.bluetooth.com/specifications/specs/heart-rate-service-1-0/
func DecodeHeartRate(buf []byte) (int, error) {
	if len(buf) < 2 {
		return 0, fmt.Errorf("%w: heart rate data too short: %d bytes", ErrMalformedPayload, len(buf))
	}

	flags := buf[0]
	if flags&hrFlagUint16 == 0 {
		return int(buf[1]), nil
	}

	if len(buf) < 3 {
		return 0, fmt.Errorf("%w: heart rate UINT16 data too short: %d bytes", ErrMalformedPayload, len(buf))
	}
	return int(binary.LittleEndian.Uint16(buf[1:3])), nil
}

// WorkoutSummary is the decoded content of a workout data payload.
type WorkoutSummary struct {
	ElapsedSeconds uint32
	CaloriesKcal   float64
}

// DecodeWorkoutSummary parses a workout data payload using DefaultWorkoutLayout.
func DecodeWorkoutSummary(buf []byte) (WorkoutSummary, error) {
	return DefaultWorkoutLayout.Decode(buf)
}

// FormatClock renders a second count as HH:MM:SS. Hours are not wrapped and
// may exceed 99. Negative input is clamped to zero.
func FormatClock(totalSeconds int64) string {
	if totalSeconds < 0 {
		totalSeconds = 0
	}
	h := totalSeconds / 3600
	m := (totalSeconds % 3600) / 60
	s := totalSeconds % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

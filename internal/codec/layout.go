package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// WorkoutLayout describes where a device puts elapsed time and energy in its
// workout data characteristic. The 0x2A6D payload is not a registered
// standard, so the offsets and energy scale are device-profile settings.
type WorkoutLayout struct {
	// Byte offset of the UINT32 little-endian elapsed seconds
	ElapsedOffset int `mapstructure:"elapsed_offset"`
	// Byte offset of the UINT32 little-endian energy value
	EnergyOffset int `mapstructure:"energy_offset"`
	// Number of raw energy units in one kilocalorie (1000 for milli-kcal)
	EnergyUnitsPerKcal float64 `mapstructure:"energy_units_per_kcal"`
}

// DefaultWorkoutLayout: bytes 0-3 elapsed seconds, bytes 4-7 milli-kcal.
var DefaultWorkoutLayout = WorkoutLayout{
	ElapsedOffset:      0,
	EnergyOffset:       4,
	EnergyUnitsPerKcal: 1000,
}

// Validate reports whether the layout can decode anything at all.
func (l WorkoutLayout) Validate() error {
	if l.ElapsedOffset < 0 || l.EnergyOffset < 0 {
		return fmt.Errorf("workout layout offsets must be >= 0 (elapsed=%d, energy=%d)", l.ElapsedOffset, l.EnergyOffset)
	}
	if l.EnergyUnitsPerKcal <= 0 {
		return errors.New("workout layout energy_units_per_kcal must be > 0")
	}
	return nil
}

// MinLength is the smallest payload that holds both fields.
func (l WorkoutLayout) MinLength() int {
	return max(l.ElapsedOffset, l.EnergyOffset) + 4
}

// Decode parses buf according to the layout. An invalid layout is an error,
// not a panic.
func (l WorkoutLayout) Decode(buf []byte) (WorkoutSummary, error) {
	if err := l.Validate(); err != nil {
		return WorkoutSummary{}, err
	}
	if need := l.MinLength(); len(buf) < need {
		return WorkoutSummary{}, fmt.Errorf("%w: workout data too short: %d bytes (need %d)", ErrMalformedPayload, len(buf), need)
	}

	elapsed := binary.LittleEndian.Uint32(buf[l.ElapsedOffset : l.ElapsedOffset+4])
	energy := binary.LittleEndian.Uint32(buf[l.EnergyOffset : l.EnergyOffset+4])

	return WorkoutSummary{
		ElapsedSeconds: elapsed,
		CaloriesKcal:   float64(energy) / l.EnergyUnitsPerKcal,
	}, nil
}

// Encode is the inverse of Decode. The simulator uses it to build payloads.
// An invalid layout encodes to nil.
func (l WorkoutLayout) Encode(s WorkoutSummary) []byte {
	if l.Validate() != nil {
		return nil
	}
	buf := make([]byte, l.MinLength())
	binary.LittleEndian.PutUint32(buf[l.ElapsedOffset:], s.ElapsedSeconds)
	binary.LittleEndian.PutUint32(buf[l.EnergyOffset:], uint32(s.CaloriesKcal*l.EnergyUnitsPerKcal+0.5))
	return buf
}

// EncodeHeartRate builds a heart rate measurement payload, choosing the UINT16
// format only when the value does not fit in a byte.
func EncodeHeartRate(bpm int) []byte {
	if bpm < 0 {
		bpm = 0
	}
	if bpm <= 0xff {
		return []byte{0x00, byte(bpm)}
	}
	buf := []byte{hrFlagUint16, 0, 0}
	binary.LittleEndian.PutUint16(buf[1:], uint16(bpm))
	return buf
}

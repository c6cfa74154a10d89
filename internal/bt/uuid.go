package bt

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// baseUUIDSuffix completes a 16 or 32 bit SIG assigned number into a full UUID.
const baseUUIDSuffix = "-0000-1000-8000-00805f9b34fb"

// Bluetooth Service and Characteristic UUIDs for fitness wearables
const (
	ServiceUUIDHeartRate      = "0000180d-0000-1000-8000-00805f9b34fb"
	ServiceUUIDFitnessMachine = "00001826-0000-1000-8000-00805f9b34fb"
	ServiceUUIDGenericAccess  = "00001800-0000-1000-8000-00805f9b34fb"

	CharUUIDHeartRateMeasurement = "00002a37-0000-1000-8000-00805f9b34fb"

	// Not a registered characteristic; the payload layout is device specific.
	CharUUIDWorkoutData = "00002a6d-0000-1000-8000-00805f9b34fb"
)

// DefaultNamePrefixes is the discovery name allowlist.
var DefaultNamePrefixes = []string{"Fitness", "健身", "HeartRate"}

// DefaultServiceAllowlist lists the groups a session may use.
var DefaultServiceAllowlist = []string{
	ServiceUUIDHeartRate,
	ServiceUUIDFitnessMachine,
	ServiceUUIDGenericAccess,
}

// DefaultScanFilter combines the default name and service allowlists.
func DefaultScanFilter() ScanFilter {
	return ScanFilter{
		NamePrefixes: append([]string(nil), DefaultNamePrefixes...),
		Services:     append([]string(nil), DefaultServiceAllowlist...),
	}
}

var knownUUIDNames = map[string]string{
	ServiceUUIDHeartRate:         "Heart Rate",
	ServiceUUIDFitnessMachine:    "Fitness Machine",
	ServiceUUIDGenericAccess:     "Generic Access",
	CharUUIDHeartRateMeasurement: "Heart Rate Measurement",
	CharUUIDWorkoutData:          "Workout Data",

	"00002a00-0000-1000-8000-00805f9b34fb": "Device Name",
	"00002a01-0000-1000-8000-00805f9b34fb": "Appearance",
	"00002a38-0000-1000-8000-00805f9b34fb": "Body Sensor Location",
	"00002a39-0000-1000-8000-00805f9b34fb": "Heart Rate Control Point",
	"00002acc-0000-1000-8000-00805f9b34fb": "Fitness Machine Feature",
}

// NormalizeUUID accepts a full UUID or a 16/32 bit short form ("180d",
// "0x180D", "0000180d") and returns the canonical lower-case full UUID.
func NormalizeUUID(s string) (string, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	v = strings.TrimPrefix(v, "0x")
	switch len(v) {
	case 4:
		v = "0000" + v + baseUUIDSuffix
	case 8:
		v = v + baseUUIDSuffix
	}
	u, err := uuid.Parse(v)
	if err != nil {
		return "", fmt.Errorf("invalid UUID %q: %w", s, err)
	}
	return u.String(), nil
}

// NormalizeUUIDs normalizes every entry, failing on the first invalid one.
func NormalizeUUIDs(in []string) ([]string, error) {
	out := make([]string, 0, len(in))
	for _, s := range in {
		n, err := NormalizeUUID(s)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

// ShortUUID returns the 4 hex digit form of a SIG base UUID, or the input
// unchanged when it is not built on the base UUID.
func ShortUUID(full string) string {
	if strings.HasPrefix(full, "0000") && strings.HasSuffix(full, baseUUIDSuffix) && len(full) == 36 {
		return full[4:8]
	}
	return full
}

// DescribeUUID returns a human-readable name for well known UUIDs.
func DescribeUUID(full string) string {
	if name, ok := knownUUIDNames[full]; ok {
		return fmt.Sprintf("%s (%s)", name, ShortUUID(full))
	}
	return full
}

package bt

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProperties_String(t *testing.T) {
	assert.Equal(t, "unknown", Properties(0).String())
	assert.Equal(t, "read", PropRead.String())
	assert.Equal(t, "read|notify", (PropRead | PropNotify).String())
	assert.Equal(t, "write|write-without-response|indicate", (PropWrite | PropWriteWithoutResponse | PropIndicate).String())
}

func TestProperties_Has(t *testing.T) {
	p := PropRead | PropNotify
	assert.True(t, p.Has(PropRead))
	assert.True(t, p.Has(PropRead|PropNotify))
	assert.False(t, p.Has(PropWrite))
	assert.False(t, p.Has(PropRead|PropWrite))
}

func TestScanFilter_MatchesName(t *testing.T) {
	f := DefaultScanFilter()
	assert.True(t, f.MatchesName("Fitness Band 5"))
	assert.True(t, f.MatchesName("健身手环"))
	assert.True(t, f.MatchesName("HeartRate-42"))
	assert.False(t, f.MatchesName("Speaker"))
	assert.False(t, f.MatchesName(""))
	assert.False(t, f.MatchesName("fitness")) // prefixes are case sensitive

	assert.True(t, ScanFilter{}.MatchesName("anything"))
}

func TestScanFilter_AllowsService(t *testing.T) {
	f := DefaultScanFilter()
	assert.True(t, f.AllowsService(ServiceUUIDHeartRate))
	assert.True(t, f.AllowsService("00001826-0000-1000-8000-00805F9B34FB"))
	assert.False(t, f.AllowsService("0000180f-0000-1000-8000-00805f9b34fb"))

	assert.True(t, ScanFilter{}.AllowsService("0000180f-0000-1000-8000-00805f9b34fb"))
}

func TestDefaultScanFilter_IsACopy(t *testing.T) {
	f := DefaultScanFilter()
	f.NamePrefixes[0] = "changed"
	assert.Equal(t, "Fitness", DefaultNamePrefixes[0])
}

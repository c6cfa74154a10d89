package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeSnapshot_FieldNames(t *testing.T) {
	raw, err := EncodeSnapshot(Snapshot{HeartRate: 72, ElapsedSeconds: 60, CaloriesKcal: 5, HasData: true})
	require.NoError(t, err)
	assert.JSONEq(t, `{"heartRate":72,"time":60,"calories":5,"isDataReceived":true}`, string(raw))
}

func TestEncodeDecodeSnapshot(t *testing.T) {
	want := Snapshot{HeartRate: 140, ElapsedSeconds: 3725, CaloriesKcal: 321.5, HasData: true}
	raw, err := EncodeSnapshot(want)
	require.NoError(t, err)
	got, err := DecodeSnapshot(raw)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	raw, err = EncodeSnapshot(Snapshot{})
	require.NoError(t, err)
	got, err = DecodeSnapshot(raw)
	require.NoError(t, err)
	assert.Equal(t, Snapshot{}, got)
}

func TestDecodeSnapshot_Malformed(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"not json", `heartRate=72`},
		{"missing field", `{"heartRate":72,"time":60,"calories":5}`},
		{"empty object", `{}`},
		{"negative heart rate", `{"heartRate":-1,"time":60,"calories":5,"isDataReceived":true}`},
		{"negative time", `{"heartRate":72,"time":-60,"calories":5,"isDataReceived":true}`},
		{"negative calories", `{"heartRate":72,"time":60,"calories":-5,"isDataReceived":true}`},
		{"wrong type", `{"heartRate":"72","time":60,"calories":5,"isDataReceived":true}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeSnapshot([]byte(tt.raw))
			assert.Error(t, err)
		})
	}
}

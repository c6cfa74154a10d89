package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/lowaak/fitness-link/internal/bt"
	"github.com/lowaak/fitness-link/internal/codec"
	"github.com/lowaak/fitness-link/internal/store"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	cfg, err := Load(viper.New(), "", nil)
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, store.BackendFile, cfg.Store.Backend)
	assert.Equal(t, 30*time.Second, cfg.Session.ScanTimeout)
	assert.Equal(t, 10*time.Second, cfg.Session.ConnectTimeout)
	assert.Equal(t, bt.DefaultNamePrefixes, cfg.Session.NamePrefixes)
	assert.Equal(t, bt.DefaultServiceAllowlist, cfg.Session.Services)
	assert.Equal(t, codec.DefaultWorkoutLayout, cfg.Session.Workout)
	assert.Empty(t, cfg.Metrics.Addr)
	assert.Empty(t, cfg.MQTT.Broker)
	assert.False(t, cfg.Sim.Enabled)

	opts := cfg.SessionOptions()
	assert.Equal(t, bt.DefaultScanFilter(), opts.Filter)
	assert.Equal(t, "fitness_data", opts.StoreKey)
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
log:
  level: debug
store:
  backend: redis
  redis:
    addr: redis.local:6379
    key_prefix: "gym:"
session:
  scan_timeout: 5s
  name_prefixes: [Tread]
  services: ["180d", "0x1826"]
  workout:
    elapsed_offset: 2
    energy_offset: 6
    energy_units_per_kcal: 1
mqtt:
  broker: tcp://broker:1883
  qos: 1
`)
	cfg, err := Load(viper.New(), path, nil)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, store.BackendRedis, cfg.Store.Backend)
	assert.Equal(t, "redis.local:6379", cfg.Store.Redis.Addr)
	assert.Equal(t, "gym:", cfg.Store.Redis.KeyPrefix)
	assert.Equal(t, 5*time.Second, cfg.Session.ScanTimeout)
	assert.Equal(t, 10*time.Second, cfg.Session.ConnectTimeout)
	assert.Equal(t, []string{"Tread"}, cfg.Session.NamePrefixes)
	assert.Equal(t, []string{bt.ServiceUUIDHeartRate, bt.ServiceUUIDFitnessMachine}, cfg.Session.Services)
	assert.Equal(t, codec.WorkoutLayout{ElapsedOffset: 2, EnergyOffset: 6, EnergyUnitsPerKcal: 1}, cfg.Session.Workout)
	assert.Equal(t, "tcp://broker:1883", cfg.MQTT.Broker)
	assert.Equal(t, byte(1), cfg.MQTT.QoS)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "session:\n  connect_timeout: 3s\n")
	t.Setenv("FITLINK_SESSION_CONNECT_TIMEOUT", "7s")
	t.Setenv("FITLINK_STORE_BACKEND", "memory")

	cfg, err := Load(viper.New(), path, nil)
	require.NoError(t, err)
	assert.Equal(t, 7*time.Second, cfg.Session.ConnectTimeout)
	assert.Equal(t, store.BackendMemory, cfg.Store.Backend)
}

func TestLoad_FlagsOverrideEnv(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("FITLINK_LOG_LEVEL", "warn")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("log-level", "", "")
	flags.String("metrics-addr", "", "")
	flags.Bool("simulate", false, "")
	require.NoError(t, flags.Parse([]string{"--log-level=debug", "--simulate", "--metrics-addr=:9100"}))

	cfg, err := Load(viper.New(), "", flags)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, ":9100", cfg.Metrics.Addr)
	assert.True(t, cfg.Sim.Enabled)
}

func TestLoad_UnsetFlagKeepsEnv(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("FITLINK_LOG_LEVEL", "warn")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("log-level", "", "")
	require.NoError(t, flags.Parse(nil))

	cfg, err := Load(viper.New(), "", flags)
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"zero energy units", "session:\n  workout:\n    energy_units_per_kcal: 0\n"},
		{"bad service uuid", "session:\n  services: [heart]\n"},
		{"unknown backend", "store:\n  backend: sqlite\n"},
		{"qos out of range", "mqtt:\n  qos: 3\n"},
		{"zero scan timeout", "session:\n  scan_timeout: 0s\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(viper.New(), writeConfig(t, tt.body), nil)
			assert.Error(t, err)
		})
	}
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(viper.New(), filepath.Join(t.TempDir(), "nope.yaml"), nil)
	assert.Error(t, err)
}

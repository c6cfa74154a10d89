// Package config loads fitness-link settings from defaults, an optional YAML
// file, FITLINK_ environment variables and command line flags, in increasing
// order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lowaak/fitness-link/internal/bt"
	"github.com/lowaak/fitness-link/internal/codec"
	"github.com/lowaak/fitness-link/internal/logging"
	"github.com/lowaak/fitness-link/internal/session"
	"github.com/lowaak/fitness-link/internal/sink"
	"github.com/lowaak/fitness-link/internal/store"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const EnvPrefix = "FITLINK"

type Config struct {
	Log     logging.Config `mapstructure:"log"`
	Store   store.Config   `mapstructure:"store"`
	Session SessionConfig  `mapstructure:"session"`
	Metrics MetricsConfig  `mapstructure:"metrics"`
	MQTT    sink.Config    `mapstructure:"mqtt"`
	Sim     SimConfig      `mapstructure:"sim"`
}

type SessionConfig struct {
	ScanTimeout    time.Duration       `mapstructure:"scan_timeout"`
	ConnectTimeout time.Duration       `mapstructure:"connect_timeout"`
	StoreTimeout   time.Duration       `mapstructure:"store_timeout"`
	StoreKey       string              `mapstructure:"store_key"`
	NamePrefixes   []string            `mapstructure:"name_prefixes"`
	Services       []string            `mapstructure:"services"`
	Workout        codec.WorkoutLayout `mapstructure:"workout"`
}

type MetricsConfig struct {
	// Empty disables the endpoint
	Addr string `mapstructure:"addr"`
}

type SimConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	ControlAddr string        `mapstructure:"control_addr"`
	Interval    time.Duration `mapstructure:"interval"`
}

// flagKeys maps global flag names to config keys.
var flagKeys = map[string]string{
	"log-level":    "log.level",
	"log-file":     "log.file",
	"store":        "store.backend",
	"metrics-addr": "metrics.addr",
	"mqtt-broker":  "mqtt.broker",
	"simulate":     "sim.enabled",
}

// DefaultDir is ~/.fitness-link.
func DefaultDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}
	return filepath.Join(homeDir, ".fitness-link")
}

// SetDefaults registers every key with its default value. Environment
// variables are only consulted for registered keys.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 28)

	v.SetDefault("store.backend", store.BackendFile)
	v.SetDefault("store.dir", store.DefaultDir())
	v.SetDefault("store.redis.addr", "localhost:6379")
	v.SetDefault("store.redis.password", "")
	v.SetDefault("store.redis.db", 0)
	v.SetDefault("store.redis.key_prefix", "fitlink:")

	defaults := session.DefaultOptions()
	v.SetDefault("session.scan_timeout", defaults.ScanTimeout)
	v.SetDefault("session.connect_timeout", defaults.ConnectTimeout)
	v.SetDefault("session.store_timeout", defaults.StoreTimeout)
	v.SetDefault("session.store_key", defaults.StoreKey)
	v.SetDefault("session.name_prefixes", bt.DefaultNamePrefixes)
	v.SetDefault("session.services", bt.DefaultServiceAllowlist)
	v.SetDefault("session.workout.elapsed_offset", codec.DefaultWorkoutLayout.ElapsedOffset)
	v.SetDefault("session.workout.energy_offset", codec.DefaultWorkoutLayout.EnergyOffset)
	v.SetDefault("session.workout.energy_units_per_kcal", codec.DefaultWorkoutLayout.EnergyUnitsPerKcal)

	v.SetDefault("metrics.addr", "")

	v.SetDefault("mqtt.broker", "")
	v.SetDefault("mqtt.client_id", "fitness-link")
	v.SetDefault("mqtt.topic_prefix", "fitness-link")
	v.SetDefault("mqtt.qos", 0)
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")

	v.SetDefault("sim.enabled", false)
	v.SetDefault("sim.control_addr", "127.0.0.1:9901")
	v.SetDefault("sim.interval", time.Second)
}

// Load reads the configuration. configFile overrides the default
// ~/.fitness-link/config.yaml lookup; a missing default file is not an
// error. flags may be nil.
func Load(v *viper.Viper, configFile string, flags *pflag.FlagSet) (Config, error) {
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(DefaultDir())
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return Config{}, fmt.Errorf("bind flag --%s: %w", name, err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks values the decoder cannot and normalizes service UUIDs.
func (c *Config) Validate() error {
	if err := c.Session.Workout.Validate(); err != nil {
		return fmt.Errorf("session.workout: %w", err)
	}
	services, err := bt.NormalizeUUIDs(c.Session.Services)
	if err != nil {
		return fmt.Errorf("session.services: %w", err)
	}
	c.Session.Services = services
	if c.Session.ScanTimeout <= 0 || c.Session.ConnectTimeout <= 0 {
		return errors.New("session: scan_timeout and connect_timeout must be positive")
	}
	switch c.Store.Backend {
	case store.BackendFile, store.BackendMemory, store.BackendRedis:
	default:
		return fmt.Errorf("store.backend: unknown backend %q (must be file, memory or redis)", c.Store.Backend)
	}
	if c.MQTT.QoS > 2 {
		return fmt.Errorf("mqtt.qos: %d is not 0, 1 or 2", c.MQTT.QoS)
	}
	return nil
}

// SessionOptions converts the session section for session.NewManager.
func (c Config) SessionOptions() session.Options {
	return session.Options{
		ScanTimeout:    c.Session.ScanTimeout,
		ConnectTimeout: c.Session.ConnectTimeout,
		StoreTimeout:   c.Session.StoreTimeout,
		Filter: bt.ScanFilter{
			NamePrefixes: append([]string(nil), c.Session.NamePrefixes...),
			Services:     append([]string(nil), c.Session.Services...),
		},
		Layout:   c.Session.Workout,
		StoreKey: c.Session.StoreKey,
	}
}

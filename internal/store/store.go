// Package store provides the key-value persistence used to mirror the
// measurement snapshot between runs.
package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
)

// ErrNotFound is returned by Get when the key holds no value.
var ErrNotFound = errors.New("key not found")

// Store is a flat key-value store. Removing an absent key is not an error.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Remove(ctx context.Context, key string) error
}

// Backend names accepted by Open
const (
	BackendFile   = "file"
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Config selects and configures a backend.
type Config struct {
	Backend string      `mapstructure:"backend"`
	Dir     string      `mapstructure:"dir"`
	Redis   RedisConfig `mapstructure:"redis"`
}

// DefaultDir is ~/.fitness-link/state, or ./.fitness-link/state when the home
// directory is unknown.
func DefaultDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}
	return filepath.Join(homeDir, ".fitness-link", "state")
}

// Open builds the backend named by cfg.Backend. The caller closes the
// returned closer when done.
func Open(ctx context.Context, cfg Config, logger logrus.FieldLogger) (Store, func() error, error) {
	noop := func() error { return nil }
	switch cfg.Backend {
	case "", BackendFile:
		dir := cfg.Dir
		if dir == "" {
			dir = DefaultDir()
		}
		return NewFileStore(dir, logger), noop, nil
	case BackendMemory:
		return NewMemoryStore(), noop, nil
	case BackendRedis:
		s, err := NewRedisStore(ctx, cfg.Redis, logger)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown store backend %q (must be file, memory or redis)", cfg.Backend)
	}
}

package state

import (
	"io"
	"log/slog"
)

type storeConfig struct {
	clock     Clock
	ids       IDGenerator
	logger    *slog.Logger
	snapshots SnapshotStore
}

func defaultConfig() storeConfig {
	return storeConfig{
		clock:  SystemClock{},
		ids:    UUIDv7Generator{},
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

// Option configures a StudyStore or ContrastStore.
type Option func(*storeConfig)

// WithClock overrides the timestamp source (default: SystemClock).
func WithClock(c Clock) Option {
	return func(cfg *storeConfig) {
		cfg.clock = c
	}
}

// WithIDGenerator overrides id allocation (default: UUIDv7Generator).
func WithIDGenerator(g IDGenerator) Option {
	return func(cfg *storeConfig) {
		cfg.ids = g
	}
}

// WithLogger sets the logger used for mutation diagnostics.
// Logs are discarded by default.
func WithLogger(l *slog.Logger) Option {
	return func(cfg *storeConfig) {
		cfg.logger = l
	}
}

// WithSnapshots enables persistence of the store's persisted subset.
func WithSnapshots(s SnapshotStore) Option {
	return func(cfg *storeConfig) {
		cfg.snapshots = s
	}
}

func buildConfig(opts []Option) storeConfig {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

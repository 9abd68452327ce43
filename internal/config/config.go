// Package config loads biblemarker settings.
//
// Sources, lowest to highest precedence: built-in defaults, an optional YAML
// file, BIBLEMARKER_* environment variables. Command-line flags are applied
// by the CLI on top of the loaded value.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Sync drivers.
const (
	DriverNone = "none"
	DriverFS   = "fs"
	DriverS3   = "s3"
)

// DefaultDatabasePath is the SQLite file used when nothing else is set.
const DefaultDatabasePath = "biblemarker.db"

// Config is the complete application configuration.
type Config struct {
	DatabasePath string     `yaml:"database_path" env:"BIBLEMARKER_DB"`
	LogLevel     string     `yaml:"log_level" env:"BIBLEMARKER_LOG_LEVEL"`
	Sync         SyncConfig `yaml:"sync" envPrefix:"BIBLEMARKER_SYNC_"`
}

// SyncConfig selects and configures the sync folder backend.
type SyncConfig struct {
	// Driver is one of none, fs or s3.
	Driver string `yaml:"driver" env:"DRIVER"`

	// Dir is the sync folder for the fs driver.
	Dir string `yaml:"dir" env:"DIR"`

	// Container is an iCloud-style container root. When set, the sync folder
	// is its Documents subdirectory and Dir is ignored.
	Container string `yaml:"container" env:"CONTAINER"`

	// Debounce delays watcher reloads until the bundle stops changing.
	Debounce time.Duration `yaml:"debounce" env:"DEBOUNCE"`

	S3 S3Config `yaml:"s3" envPrefix:"S3_"`
}

// S3Config configures the s3 driver. Without an access key, credentials come
// from the default AWS chain (AWS_ACCESS_KEY_ID, shared config, instance
// roles).
type S3Config struct {
	Bucket          string `yaml:"bucket" env:"BUCKET"`
	Region          string `yaml:"region" env:"REGION"`
	Endpoint        string `yaml:"endpoint" env:"ENDPOINT"`
	Prefix          string `yaml:"prefix" env:"PREFIX"`
	PathStyle       bool   `yaml:"path_style" env:"PATH_STYLE"`
	AccessKeyID     string `yaml:"access_key_id" env:"ACCESS_KEY_ID"`
	SecretAccessKey string `yaml:"secret_access_key" env:"SECRET_ACCESS_KEY"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		DatabasePath: DefaultDatabasePath,
		LogLevel:     "info",
		Sync: SyncConfig{
			Driver:   DriverNone,
			Debounce: 500 * time.Millisecond,
			S3: S3Config{
				Region: "us-east-1",
			},
		},
	}
}

// Load builds a Config from defaults, the YAML file at path (skipped when
// path is empty) and the environment, then validates it.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := decodeYAML(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// decodeYAML overlays data onto cfg. Unknown keys are rejected.
func decodeYAML(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Validate checks field values and cross-field requirements.
func (c Config) Validate() error {
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("config: database_path is required")
	}
	if _, err := c.SlogLevel(); err != nil {
		return err
	}
	if c.Sync.Debounce < 0 {
		return fmt.Errorf("config: sync.debounce must not be negative, got %s", c.Sync.Debounce)
	}

	switch c.Sync.Driver {
	case "", DriverNone:
	case DriverFS:
		if c.Sync.Dir == "" && c.Sync.Container == "" {
			return fmt.Errorf("config: sync driver fs requires sync.dir or sync.container")
		}
	case DriverS3:
		if c.Sync.S3.Bucket == "" {
			return fmt.Errorf("config: sync driver s3 requires sync.s3.bucket")
		}
		if (c.Sync.S3.AccessKeyID == "") != (c.Sync.S3.SecretAccessKey == "") {
			return fmt.Errorf("config: sync.s3.access_key_id and sync.s3.secret_access_key must be set together")
		}
	default:
		return fmt.Errorf("config: unknown sync driver %q (want none, fs or s3)", c.Sync.Driver)
	}
	return nil
}

// SlogLevel parses LogLevel. An empty level means info.
func (c Config) SlogLevel() (slog.Level, error) {
	if c.LogLevel == "" {
		return slog.LevelInfo, nil
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("config: log_level: %w", err)
	}
	return level, nil
}

// SyncEnabled reports whether a sync backend is configured.
func (c Config) SyncEnabled() bool {
	return c.Sync.Driver != "" && c.Sync.Driver != DriverNone
}

// Package config provides configuration loading and defaults for the relay
// daemon.
//
// Configuration is loaded from a TOML file in the data directory and
// controls logging, the host application lookup, and relay-specific
// tunables such as the handshake-response timeout and excluded hosts.
package config

//go:generate go run ../../cmd/genconfig

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/bmatcuk/doublestar/v4"

	"tools.zach/dev/dipcrelay/internal/atomicfile"
	"tools.zach/dev/dipcrelay/internal/migrate"
	"tools.zach/dev/dipcrelay/internal/paths"
)

// ///////////////////////////////////////////////
// Configuration Types
// ///////////////////////////////////////////////

// Config represents the top-level relay configuration.
type Config struct {
	// Version is the config schema version used for migrations.
	Version int `toml:"version"`
	// Log holds logging settings.
	Log LogConfig `toml:"log"`
	// Lookup holds host application lookup settings.
	Lookup LookupConfig `toml:"lookup"`
	// Relay holds relay-specific tunables.
	Relay RelayConfig `toml:"relay"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	// Level is the minimum log level (trace, debug, info, warn, error, fail).
	Level string `toml:"level"`
	// MaxSizeMB is the maximum log file size in megabytes before rotation.
	MaxSizeMB int `toml:"max_size_mb"`
}

// LookupConfig controls whether and how the host application lookup
// (client_id -> display name) is attempted.
type LookupConfig struct {
	// Enabled gates whether a lookup is attempted at all during handshake.
	Enabled bool `toml:"enabled"`
	// TimeoutSeconds bounds a single lookup call.
	TimeoutSeconds int `toml:"timeout_seconds"`
}

// RelayConfig holds relay-specific tunables.
type RelayConfig struct {
	// HandshakeTimeoutSeconds bounds how long a host connector waits for a
	// reply once the handshake has been written out to it.
	HandshakeTimeoutSeconds int `toml:"handshake_timeout_seconds"`
	// ExcludeHosts lists doublestar glob patterns matched against endpoint
	// names (e.g. "discord-ipc-3"); matching slots are never dialed.
	ExcludeHosts []string `toml:"exclude_hosts"`
}

// ///////////////////////////////////////////////
// Default Configuration
// ///////////////////////////////////////////////

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Version: migrate.Config.CurrentVersion,
		Log: LogConfig{
			Level:     "info",
			MaxSizeMB: 10,
		},
		Lookup: LookupConfig{
			Enabled:        true,
			TimeoutSeconds: 5,
		},
		Relay: RelayConfig{
			HandshakeTimeoutSeconds: 2,
			ExcludeHosts:            []string{},
		},
	}
}

// ExampleConfig returns a Config suitable for generating config.default.toml.
// For this project all defaults are good examples.
func ExampleConfig() *Config {
	return DefaultConfig()
}

// ///////////////////////////////////////////////
// PeekVersion
// ///////////////////////////////////////////////

// PeekVersion reads just the version field from raw TOML bytes.
// Returns 1 if the version field is missing or zero.
func PeekVersion(data []byte) int {
	var v struct {
		Version int `toml:"version"`
	}
	if err := toml.Unmarshal(data, &v); err != nil {
		return 1
	}
	if v.Version == 0 {
		return 1
	}
	return v.Version
}

// ///////////////////////////////////////////////
// Loading and Saving
// ///////////////////////////////////////////////

// Load reads and parses the configuration file from dataDir/config.toml.
// If the file doesn't exist, returns DefaultConfig.
func Load(dataDir string) (*Config, error) {
	path := filepath.Join(dataDir, paths.ConfigFile)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	version := PeekVersion(data)

	shouldMigrate := version != migrate.Config.CurrentVersion
	if shouldMigrate {
		if backupErr := os.WriteFile(path+".bak", data, 0o644); backupErr != nil {
			slog.Warn("failed to write config backup", "error", backupErr)
		}
		var migrateErr error
		data, _, migrateErr = migrate.Config.Run(data, version)
		if migrateErr != nil {
			return nil, fmt.Errorf("migrate config: %w", migrateErr)
		}
	}

	cfg := DefaultConfig()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.Version = migrate.Config.CurrentVersion

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	if shouldMigrate {
		if err := cfg.Save(path); err != nil {
			slog.Warn("failed to save migrated config", "error", err)
		}
	}

	return cfg, nil
}

// Save writes the config to disk as TOML using atomic file write.
func (c *Config) Save(path string) error {
	var buf bytes.Buffer
	enc := toml.NewEncoder(&buf)
	if err := enc.Encode(c); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	return atomicfile.Write(path, buf.Bytes(), 0o644)
}

// ///////////////////////////////////////////////
// Validation
// ///////////////////////////////////////////////

// validLogLevels is the set of accepted log level strings.
var validLogLevels = map[string]bool{
	"trace": true, "debug": true, "info": true, "warn": true, "error": true, "fail": true,
}

// Validate checks that all configuration values are within acceptable
// ranges, including that every exclude_hosts pattern is a syntactically
// valid doublestar glob.
func (c *Config) Validate() error {
	if !validLogLevels[strings.ToLower(c.Log.Level)] {
		return fmt.Errorf("invalid log.level %q: must be trace, debug, info, warn, error, or fail", c.Log.Level)
	}

	if c.Lookup.TimeoutSeconds <= 0 {
		return fmt.Errorf("lookup.timeout_seconds must be > 0, got %d", c.Lookup.TimeoutSeconds)
	}

	if c.Relay.HandshakeTimeoutSeconds <= 0 {
		return fmt.Errorf("relay.handshake_timeout_seconds must be > 0, got %d", c.Relay.HandshakeTimeoutSeconds)
	}

	for _, pattern := range c.Relay.ExcludeHosts {
		if _, err := doublestar.Match(pattern, "discord-ipc-0"); err != nil {
			return fmt.Errorf("invalid relay.exclude_hosts pattern %q: %w", pattern, err)
		}
	}

	return nil
}

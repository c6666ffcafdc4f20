// Tests for the config package covering [Load] behavior (defaults,
// overrides, missing files, malformed input, migration), [Config.Validate],
// [Config.Save] round-trips, and [ConfigDocs] completeness.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"tools.zach/dev/dipcrelay/internal/paths"
)

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	dir := t.TempDir()

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	def := DefaultConfig()
	if cfg.Log.Level != def.Log.Level {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, def.Log.Level)
	}
	if cfg.Relay.HandshakeTimeoutSeconds != def.Relay.HandshakeTimeoutSeconds {
		t.Errorf("Relay.HandshakeTimeoutSeconds = %d, want %d",
			cfg.Relay.HandshakeTimeoutSeconds, def.Relay.HandshakeTimeoutSeconds)
	}
}

func TestLoad_UserOverridesApplied(t *testing.T) {
	dir := t.TempDir()
	content := `
version = 1

[log]
level = "debug"
max_size_mb = 50

[relay]
handshake_timeout_seconds = 5
exclude_hosts = ["discord-ipc-9"]
`
	if err := os.WriteFile(filepath.Join(dir, paths.ConfigFile), []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want debug", cfg.Log.Level)
	}
	if cfg.Log.MaxSizeMB != 50 {
		t.Errorf("Log.MaxSizeMB = %d, want 50", cfg.Log.MaxSizeMB)
	}
	if cfg.Relay.HandshakeTimeoutSeconds != 5 {
		t.Errorf("Relay.HandshakeTimeoutSeconds = %d, want 5", cfg.Relay.HandshakeTimeoutSeconds)
	}
	if len(cfg.Relay.ExcludeHosts) != 1 || cfg.Relay.ExcludeHosts[0] != "discord-ipc-9" {
		t.Errorf("Relay.ExcludeHosts = %v, want [discord-ipc-9]", cfg.Relay.ExcludeHosts)
	}
}

func TestLoad_MalformedTOML(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, paths.ConfigFile), []byte("not valid = [toml"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	if _, err := Load(dir); err == nil {
		t.Fatal("expected error for malformed TOML")
	}
}

func TestLoad_InvalidValueFailsValidation(t *testing.T) {
	dir := t.TempDir()
	content := `
version = 1

[log]
level = "nonsense"
`
	if err := os.WriteFile(filepath.Join(dir, paths.ConfigFile), []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	if _, err := Load(dir); err == nil {
		t.Fatal("expected validation error for invalid log level")
	}
}

// PeekVersion reads a zero version as 1, the current version, so this load
// runs no migration and writes no backup.
func TestLoad_VersionZeroLoadsAsCurrent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, paths.ConfigFile)
	if err := os.WriteFile(path, []byte("version = 0\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Version != migrateCurrentVersion() {
		t.Errorf("Version = %d, want %d", cfg.Version, migrateCurrentVersion())
	}
}

func migrateCurrentVersion() int {
	return DefaultConfig().Version
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults are valid", func(c *Config) {}, false},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }, true},
		{"zero lookup timeout", func(c *Config) { c.Lookup.TimeoutSeconds = 0 }, true},
		{"zero handshake timeout", func(c *Config) { c.Relay.HandshakeTimeoutSeconds = 0 }, true},
		{"bad glob pattern", func(c *Config) { c.Relay.ExcludeHosts = []string{"["} }, true},
		{"good glob pattern", func(c *Config) { c.Relay.ExcludeHosts = []string{"discord-ipc-[3-5]"} }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_SaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, paths.ConfigFile)

	cfg := DefaultConfig()
	cfg.Relay.ExcludeHosts = []string{"discord-ipc-7"}
	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := Load(dir)
	if err != nil {
		t.Fatalf("Load after Save: %v", err)
	}
	if len(loaded.Relay.ExcludeHosts) != 1 || loaded.Relay.ExcludeHosts[0] != "discord-ipc-7" {
		t.Errorf("ExcludeHosts = %v, want [discord-ipc-7]", loaded.Relay.ExcludeHosts)
	}
}

func TestPeekVersion(t *testing.T) {
	if v := PeekVersion([]byte("version = 3\n")); v != 3 {
		t.Errorf("PeekVersion = %d, want 3", v)
	}
	if v := PeekVersion([]byte("")); v != 1 {
		t.Errorf("PeekVersion of empty data = %d, want 1", v)
	}
	if v := PeekVersion([]byte("not toml [[[")); v != 1 {
		t.Errorf("PeekVersion of malformed data = %d, want 1", v)
	}
}

// TestConfigDocsCoverAllFields ensures every TOML-tagged leaf field in
// Config has a ConfigDocs entry, so genconfig never silently drops a field
// from the generated config.default.toml.
func TestConfigDocsCoverAllFields(t *testing.T) {
	want := []string{
		"version",
		"log.level",
		"log.max_size_mb",
		"lookup.enabled",
		"lookup.timeout_seconds",
		"relay.handshake_timeout_seconds",
		"relay.exclude_hosts",
	}
	for _, path := range want {
		if _, ok := ConfigDocs[path]; !ok {
			t.Errorf("ConfigDocs missing entry for %q", path)
		}
	}
}

func TestConfigDocsNoStrayEntries(t *testing.T) {
	known := map[string]bool{
		"version": true, "log.level": true, "log.max_size_mb": true,
		"lookup.enabled": true, "lookup.timeout_seconds": true,
		"relay.handshake_timeout_seconds": true, "relay.exclude_hosts": true,
	}
	for path := range ConfigDocs {
		if !known[path] {
			t.Errorf("ConfigDocs has entry for unknown field %q", path)
		}
	}
}

func TestValidLogLevels_CaseInsensitive(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Log.Level = strings.ToUpper("warn")
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected uppercase log level to validate, got: %v", err)
	}
}

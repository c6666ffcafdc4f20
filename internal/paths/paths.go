// Package paths centralizes file and directory names used within a relay
// data directory. All data directory file names are defined here as the
// single source of truth.
package paths

import "path/filepath"

// ///////////////////////////////////////////////
// Constants
// ///////////////////////////////////////////////

// Data directory file names.
const (
	PIDFile    = "relay.pid"
	ConfigFile = "config.toml"
	LogFile    = "relay.log"
)

// DataDirRel is the default data directory path relative to the user's home
// directory.
const DataDirRel = ".dipcrelay"

// Remote-fetched file paths (relative to repo root).
const (
	ReleaseManifest = ".release-manifest.json"
)

// ///////////////////////////////////////////////
// DataDir
// ///////////////////////////////////////////////

// DataDir provides path construction methods rooted at a data directory.
type DataDir struct {
	Root string
}

// PID returns the full path to the PID file.
func (d DataDir) PID() string { return filepath.Join(d.Root, PIDFile) }

// Config returns the full path to the config file.
func (d DataDir) Config() string { return filepath.Join(d.Root, ConfigFile) }

// Log returns the full path to the log file.
func (d DataDir) Log() string { return filepath.Join(d.Root, LogFile) }

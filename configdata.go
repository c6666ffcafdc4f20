// Package dipcrelay provides embedded assets for the relay daemon.
//
// The root package exists solely to embed [config.default.toml] via
// [DefaultConfigTOML]. The daemon entrypoint (cmd/dipcrelay) writes it out
// at startup to seed first-run defaults.
package dipcrelay

import _ "embed"

// DefaultConfigTOML holds the raw bytes of config.default.toml, embedded at
// build time. cmd/dipcrelay copies this file to the data directory on first
// run, when no config.toml exists there yet.
//
//go:embed config.default.toml
var DefaultConfigTOML []byte

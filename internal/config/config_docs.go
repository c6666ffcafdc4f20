package config

// ///////////////////////////////////////////////
// Documentation Types
// ///////////////////////////////////////////////

// FieldDoc holds documentation and alternative examples for a single config
// field. The genconfig tool uses [FieldDoc] values to annotate the
// generated config.default.toml.
type FieldDoc struct {
	// Comment is shown as a header comment above the field in the example config.
	Comment string

	// Alternatives are shown as commented-out lines below the active value.
	Alternatives []string
}

// ///////////////////////////////////////////////
// Field Documentation Map
// ///////////////////////////////////////////////

// ConfigDocs maps TOML field paths (dot-separated, e.g. "relay.exclude_hosts")
// to their [FieldDoc] entries. The genconfig tool uses this map to annotate
// the generated config.default.toml with inline comments and alternative
// examples.
var ConfigDocs = map[string]FieldDoc{
	// ── Root ──────────────────────────────────────────────────────
	"version": {
		Comment: "Config schema version — do not edit.",
	},

	// ── Log ──────────────────────────────────────────────────────
	"log.level": {
		Comment: "Minimum log level: trace, debug, info, warn, error, fail.",
		Alternatives: []string{
			`level = "debug"`,
		},
	},
	"log.max_size_mb": {
		Comment: "Log file size in megabytes before rotation.",
	},

	// ── Lookup ───────────────────────────────────────────────────
	"lookup.enabled": {
		Comment: "Resolve a connecting client's application name via Discord's\npublic API during handshake. Disable to skip the outbound HTTPS\ncall entirely; the session proceeds using client_id as-is.",
		Alternatives: []string{
			"enabled = false",
		},
	},
	"lookup.timeout_seconds": {
		Comment: "Per-call timeout for the application name lookup.",
	},

	// ── Relay ────────────────────────────────────────────────────
	"relay.handshake_timeout_seconds": {
		Comment: "How long to wait for a newly connected host's reply once the\nhandshake has been sent to it. A host that sends nothing in that\nwindow is not dropped: it stays connected and keeps receiving frames.",
	},
	"relay.exclude_hosts": {
		Comment: "Endpoint names never dialed as hosts, as doublestar glob\npatterns matched against names like \"discord-ipc-3\".",
		Alternatives: []string{
			`exclude_hosts = ["discord-ipc-9"]`,
			`exclude_hosts = ["discord-ipc-[5-9]"]`,
		},
	},
}

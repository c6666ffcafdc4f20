package relay

import "errors"

// Sentinel errors surfaced by session and host-connector lifecycle events.
var (
	// ErrNoDiscords is returned when a handshake completes but zero host
	// connectors succeeded; the session cannot proceed without a peer.
	ErrNoDiscords = errors.New("relay: no discord-compatible hosts available")

	// ErrHostHandshakeTimeout marks a host that did not reply within the
	// configured handshake-response window. It is informational only: a
	// host that never replies stays connected and keeps relaying.
	ErrHostHandshakeTimeout = errors.New("relay: host did not respond to handshake in time")

	// ErrClientClosed reports normal session termination: inbound EOF or an
	// explicit Close opcode from the client.
	ErrClientClosed = errors.New("relay: client closed connection")

	// ErrBindFailure wraps a fatal failure to bind the server endpoint.
	ErrBindFailure = errors.New("relay: failed to bind server endpoint")
)

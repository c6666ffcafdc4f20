package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"time"

	"tools.zach/dev/dipcrelay/internal/ipc"
)

// defaultHandshakeTimeout bounds how long a host connector waits for a reply
// after writing the handshake out, before giving up on capturing one. A host
// that never replies is entirely normal and is not disconnected because of
// it.
const defaultHandshakeTimeout = 2 * time.Second

// hostConnector owns one outbound connection to a discovered peer endpoint.
// It subscribes to the session's outbound bus and forwards everything it
// receives to the host, while relaying whatever the host sends back into
// the session's inbound funnel. Neither pump attempts recovery: a single
// failure tears down this host only, leaving the session and its siblings
// untouched.
type hostConnector struct {
	name   ipc.EndpointName
	conn   net.Conn
	log    *slog.Logger
	bus    *outboundBus
	funnel *inboundFunnel

	subID int
	sub   <-chan ipcFrame

	handshakeTimeout time.Duration
}

// connectHost dials name and, on success, subscribes to bus and spawns the
// two steady-state pumps immediately. Nothing about the dial or subscribe
// waits on the host to say anything first: the handshake is delivered to
// this host through the same outbound bus once the caller publishes it, and
// outboundPump arms a bounded window on the host's reply once that happens.
// Any failure (dial, closed bus) leaves no pumps running and returns a
// non-nil error; the caller skips this host and continues with the rest.
func connectHost(ctx context.Context, name ipc.EndpointName, log *slog.Logger, bus *outboundBus, funnel *inboundFunnel, handshakeTimeout time.Duration) (*hostConnector, error) {
	conn, err := ipc.ConnectHost(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", name, err)
	}

	if handshakeTimeout <= 0 {
		handshakeTimeout = defaultHandshakeTimeout
	}

	subID, sub, ok := bus.subscribe()
	if !ok {
		_ = conn.Close()
		return nil, fmt.Errorf("connect %s: session is closing", name)
	}

	h := &hostConnector{
		name:             name,
		conn:             conn,
		log:              log,
		bus:              bus,
		funnel:           funnel,
		subID:            subID,
		sub:              sub,
		handshakeTimeout: handshakeTimeout,
	}

	go h.outboundPump()
	go h.inboundPump()

	return h, nil
}

// outboundPump drains the session's outbound bus into this host's
// connection. Exits when the subscription channel closes (bus closed or
// this connector was dropped as lagged) or a write fails. The handshake
// frame, once written, arms a bounded deadline on the next inbound read so
// a host that does reply is captured promptly; a host that never does is
// unaffected.
func (h *hostConnector) outboundPump() {
	defer h.teardown()

	for f := range h.sub {
		opcode, err := ipc.OpcodeFromUint32(f.opcode)
		if err != nil {
			h.log.Warn("host pump: invalid opcode from bus", "host", h.name, "error", err)
			return
		}

		buf, err := ipc.EncodeFrame(opcode, f.payload)
		if err != nil {
			h.log.Warn("host pump: encode failure", "host", h.name, "error", err)
			return
		}

		if _, err := h.conn.Write(buf); err != nil {
			h.log.Debug("host pump: write failed", "host", h.name, "error", err)
			return
		}

		if opcode == ipc.OpHandshake {
			_ = h.conn.SetReadDeadline(time.Now().Add(h.handshakeTimeout))
		}
	}
}

// inboundPump reads frames from the host until EOF, framing error, or the
// funnel refuses delivery (session torn down), delivering each to the
// session's inbound funnel. A read that times out against the bounded
// handshake-reply deadline armed by outboundPump is not an error: the
// deadline is cleared and the pump keeps reading as if nothing happened.
func (h *hostConnector) inboundPump() {
	defer h.teardown()

	for {
		opcode, payload, err := ipc.DecodeFrame(h.conn)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				_ = h.conn.SetReadDeadline(time.Time{})
				h.log.Debug("host pump: no reply within handshake window", "host", h.name, "error", ErrHostHandshakeTimeout)
				continue
			}
			if !errors.Is(err, io.EOF) {
				h.log.Debug("host pump: read ended", "host", h.name, "error", err)
			}
			return
		}

		if !h.funnel.send(ipcFrame{opcode: uint32(opcode), payload: payload}) {
			return
		}
	}
}

// teardown unsubscribes from the bus and closes the connection. Safe to
// call from both pumps; only the first call does real work since
// unsubscribe and Close are themselves idempotent-safe for our usage.
func (h *hostConnector) teardown() {
	h.bus.unsubscribe(h.subID)
	_ = h.conn.Close()
}

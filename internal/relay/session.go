package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"tools.zach/dev/dipcrelay/internal/ipc"
	"tools.zach/dev/dipcrelay/internal/lookup"
)

// pongPayload is the fixed reply to every Ping: the three ASCII characters
// `"4"`.
var pongPayload = []byte(`"4"`)

// SessionConfig carries the operator-tunable knobs a session needs,
// threaded down from the top-level relay configuration.
type SessionConfig struct {
	// HandshakeTimeout bounds each host's initial handshake-response read.
	HandshakeTimeout time.Duration
	// ExcludeHosts lists doublestar glob patterns matched against endpoint
	// names; a match is never dialed as a host.
	ExcludeHosts []string
	// LookupEnabled gates whether the host application lookup is invoked at all.
	LookupEnabled bool
	// LookupTimeout bounds a single lookup.Lookup call.
	LookupTimeout time.Duration
}

// Session is one accepted inbound client connection and its attendant host
// fan-out. It owns the inbound stream, the outbound bus, the inbound
// funnel, and every host connector it opens.
type Session struct {
	conn net.Conn
	self ipc.EndpointName
	log  *slog.Logger
	cfg  SessionConfig

	bus    *outboundBus
	funnel *inboundFunnel

	mu    sync.Mutex
	hosts []*hostConnector
}

// NewSession wraps an accepted connection. self is the server's own
// endpoint name, excluded from host fan-out regardless of exclude patterns.
func NewSession(conn net.Conn, self ipc.EndpointName, log *slog.Logger, cfg SessionConfig) *Session {
	return &Session{
		conn:   conn,
		self:   self,
		log:    log,
		cfg:    cfg,
		bus:    newOutboundBus(),
		funnel: newInboundFunnel(),
	}
}

// Run drives the session to completion: AwaitingHandshake, then Relaying,
// then Closing. It blocks until the session ends, via client EOF/Close,
// NoDiscords, a framing error, or ctx cancellation.
func (s *Session) Run(ctx context.Context) error {
	var writerWG sync.WaitGroup
	defer func() {
		s.closeAll()
		writerWG.Wait()
	}()

	// Closing the inbound stream on cancellation unblocks the handshake read.
	stop := context.AfterFunc(ctx, func() { _ = s.conn.Close() })
	defer stop()

	writerWG.Add(1)
	go func() {
		defer writerWG.Done()
		s.drainFunnel()
	}()

	opcode, payload, err := ipc.DecodeFrame(s.conn)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("awaiting handshake: %w", err)
	}
	if opcode != ipc.OpHandshake {
		return fmt.Errorf("awaiting handshake: unexpected opcode %d", opcode)
	}

	if err := s.handleHandshake(ctx, payload); err != nil {
		return err
	}

	return s.relayLoop(ctx)
}

// handleHandshake parses client_id, resolves a display name best-effort,
// fans out to every other endpoint, and — if at least one host connected —
// replays the verbatim payload onto the outbound bus so every connected
// host's outboundPump delivers it.
func (s *Session) handleHandshake(ctx context.Context, payload []byte) error {
	var parsed struct {
		ClientID string `json:"client_id"`
	}
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return fmt.Errorf("parsing handshake: %w", err)
	}

	if s.cfg.LookupEnabled && parsed.ClientID != "" {
		s.resolveAppName(ctx, parsed.ClientID)
	}

	candidates := ipc.OtherNames(s.self)
	connected := 0
	for _, name := range candidates {
		if s.excluded(name) {
			continue
		}

		h, err := connectHost(ctx, name, s.log, s.bus, s.funnel, s.cfg.HandshakeTimeout)
		if err != nil {
			s.log.Debug("session: host connect failed", "host", name, "error", err)
			continue
		}

		s.mu.Lock()
		s.hosts = append(s.hosts, h)
		s.mu.Unlock()
		connected++
	}

	if connected == 0 {
		return ErrNoDiscords
	}

	s.bus.publish(ipcFrame{opcode: uint32(ipc.OpHandshake), payload: payload})
	return nil
}

// resolveAppName performs the best-effort lookup.Lookup call. Any failure
// is logged and otherwise ignored; the session proceeds regardless.
func (s *Session) resolveAppName(ctx context.Context, clientID string) {
	timeout := s.cfg.LookupTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	lookupCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	app, err := lookup.Lookup(lookupCtx, clientID)
	if err != nil {
		s.log.Debug("session: app lookup failed", "client_id", clientID, "error", err)
		return
	}
	s.log.Info("session: resolved client application", "client_id", clientID, "name", app.Name)
}

// excluded reports whether name matches any configured exclude pattern.
func (s *Session) excluded(name ipc.EndpointName) bool {
	for _, pattern := range s.cfg.ExcludeHosts {
		if ok, err := doublestar.Match(pattern, string(name)); err == nil && ok {
			return true
		}
	}
	return false
}

// relayLoop implements the Relaying state: read frames from the client and
// dispatch them to every connected host until EOF, a Close opcode, a framing
// error, cancellation, or the last host dropping out of the fan-out.
func (s *Session) relayLoop(ctx context.Context) error {
	type readResult struct {
		opcode ipc.Opcode
		data   []byte
		err    error
	}
	reads := make(chan readResult, 1)

	for {
		go func() {
			opcode, data, err := ipc.DecodeFrame(s.conn)
			reads <- readResult{opcode, data, err}
		}()

		select {
		case <-ctx.Done():
			_ = s.conn.Close()
			<-reads
			return ctx.Err()

		case <-s.bus.emptied():
			_ = s.conn.Close()
			<-reads
			return ErrNoDiscords

		case r := <-reads:
			if r.err != nil {
				if errors.Is(r.err, io.EOF) {
					return ErrClientClosed
				}
				return fmt.Errorf("relay read: %w", r.err)
			}

			switch r.opcode {
			case ipc.OpClose:
				return ErrClientClosed
			case ipc.OpPing:
				if err := s.writePong(); err != nil {
					return fmt.Errorf("writing pong: %w", err)
				}
			default:
				s.bus.publish(ipcFrame{opcode: uint32(r.opcode), payload: r.data})
			}
		}
	}
}

// writePong answers a Ping directly on the inbound stream. Pings are never
// forwarded to hosts.
func (s *Session) writePong() error {
	buf, err := ipc.EncodeFrame(ipc.OpPong, pongPayload)
	if err != nil {
		return err
	}
	_, err = s.conn.Write(buf)
	return err
}

// drainFunnel is the session's sole inbound-stream writer: it reads the
// funnel (host replies, arrival order) until the funnel closes and writes
// each to the client.
func (s *Session) drainFunnel() {
	data, done := s.funnel.receive()
	for {
		select {
		case f, ok := <-data:
			if !ok {
				return
			}
			opcode, err := ipc.OpcodeFromUint32(f.opcode)
			if err != nil {
				continue
			}
			buf, err := ipc.EncodeFrame(opcode, f.payload)
			if err != nil {
				continue
			}
			if _, err := s.conn.Write(buf); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

// closeAll tears down every owned resource: the bus (unsubscribing every
// host), the funnel, every host connector's connection, and the inbound
// stream itself.
func (s *Session) closeAll() {
	s.bus.close()
	s.funnel.close()

	s.mu.Lock()
	hosts := s.hosts
	s.hosts = nil
	s.mu.Unlock()

	for _, h := range hosts {
		h.teardown()
	}

	_ = s.conn.Close()
}

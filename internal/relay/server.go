// Package relay implements the IPC multiplexing relay: a single bound
// endpoint that accepts Rich Presence clients, fans their frames out to
// every other live Discord-compatible host on the machine, and funnels
// replies back.
package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"tools.zach/dev/dipcrelay/internal/ipc"
)

// Server binds one well-known endpoint and accepts client sessions against
// it until its context is cancelled.
type Server struct {
	name ipc.EndpointName
	ep   ipc.ServerEndpoint
	log  *slog.Logger
	cfg  SessionConfig
}

// NewServer claims the lowest-available endpoint name and binds it. If the
// claimed name is not ipc.Preferred, the caller should log a warning — the
// relay remains fully functional on any slot.
func NewServer(log *slog.Logger, cfg SessionConfig) (*Server, error) {
	name, err := ipc.NextName()
	if err != nil {
		return nil, fmt.Errorf("selecting endpoint name: %w", err)
	}

	ep, err := ipc.BindServer(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrBindFailure, name, err)
	}

	return &Server{name: name, ep: ep, log: log, cfg: cfg}, nil
}

// Name returns the endpoint name this server bound.
func (s *Server) Name() ipc.EndpointName { return s.name }

// Serve runs the accept loop until ctx is cancelled. Each accepted
// connection is handed to a new Session running on its own goroutine;
// Serve does not wait for sessions to finish, only for the accept loop
// itself and any sessions still in flight at shutdown.
func (s *Server) Serve(ctx context.Context) error {
	var wg sync.WaitGroup
	defer wg.Wait()
	defer s.ep.Close()

	for {
		conn, err := s.ep.Accept(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			sess := NewSession(conn, s.name, s.log, s.cfg)
			if err := sess.Run(ctx); err != nil && !errors.Is(err, ErrClientClosed) && !errors.Is(err, context.Canceled) {
				s.log.Debug("session ended", "error", err)
			}
		}()
	}
}

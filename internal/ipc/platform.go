package ipc

import (
	"context"
	"net"
)

// ServerEndpoint is a bound, listening endpoint. Accept blocks until a client
// connects or ctx is done, whichever comes first. Close releases the
// underlying listener and, on Unix, removes the socket file.
type ServerEndpoint interface {
	Accept(ctx context.Context) (net.Conn, error)
	Close() error
}

// acceptResult carries the outcome of one Accept call between the goroutine
// that performs the (blocking) accept and the select that also watches ctx.
type acceptResult struct {
	conn net.Conn
	err  error
}

// acceptWithContext runs accept() on its own goroutine and returns whichever
// of (its result, ctx.Done()) resolves first. On cancellation, closeFn is
// invoked to unblock the accept goroutine; its eventual result is discarded.
func acceptWithContext(ctx context.Context, accept func() (net.Conn, error), closeFn func() error) (net.Conn, error) {
	ch := make(chan acceptResult, 1)
	go func() {
		conn, err := accept()
		ch <- acceptResult{conn, err}
	}()

	select {
	case res := <-ch:
		return res.conn, res.err
	case <-ctx.Done():
		_ = closeFn()
		return nil, ctx.Err()
	}
}

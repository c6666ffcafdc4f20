// bind_windows.go implements BindServer for Windows named pipes via go-winio.
//
// winio.ListenPipe creates the first pipe instance with
// FILE_FLAG_FIRST_PIPE_INSTANCE set and, on each Accept, transparently opens
// the next instance before returning the connected one — so the server is
// always listening without this package needing to manage instance
// rotation itself.

//go:build windows

package ipc

import (
	"context"
	"fmt"
	"net"

	"github.com/Microsoft/go-winio"
)

type winPipeServerEndpoint struct {
	ln net.Listener
}

// BindServer creates the named pipe for n and starts listening.
func BindServer(n EndpointName) (ServerEndpoint, error) {
	ln, err := winio.ListenPipe(n.Path(), &winio.PipeConfig{
		// Message-mode semantics are not exploited: framing is driven
		// entirely by the codec in frame.go, so byte-mode streaming suffices.
		MessageMode: false,
	})
	if err != nil {
		return nil, fmt.Errorf("bind %s: %w", n.Path(), err)
	}
	return &winPipeServerEndpoint{ln: ln}, nil
}

func (e *winPipeServerEndpoint) Accept(ctx context.Context) (net.Conn, error) {
	return acceptWithContext(ctx, e.ln.Accept, e.ln.Close)
}

func (e *winPipeServerEndpoint) Close() error {
	return e.ln.Close()
}

// ConnectHost dials the named pipe for n. A busy pipe (ERROR_PIPE_BUSY) is
// surfaced as an ordinary error and treated by the caller the same as any
// other unreachable host: that host is skipped.
func ConnectHost(ctx context.Context, n EndpointName) (net.Conn, error) {
	conn, err := winio.DialPipeContext(ctx, n.Path())
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", n, err)
	}
	return conn, nil
}

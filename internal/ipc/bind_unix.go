// bind_unix.go implements BindServer for Unix-domain stream sockets.

//go:build !windows

package ipc

import (
	"context"
	"fmt"
	"net"
	"os"
)

// unixServerEndpoint wraps a Unix-domain socket listener, removing the
// socket file from the filesystem on Close.
type unixServerEndpoint struct {
	ln   net.Listener
	path string
}

// BindServer creates and listens on the Unix-domain socket for n, removing
// any stale socket file left behind by a prior process at the same path
// first (a leftover file from an unclean shutdown would otherwise make
// net.Listen fail with "address already in use").
func BindServer(n EndpointName) (ServerEndpoint, error) {
	path := n.Path()
	_ = os.Remove(path)

	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("bind %s: %w", path, err)
	}
	return &unixServerEndpoint{ln: ln, path: path}, nil
}

func (e *unixServerEndpoint) Accept(ctx context.Context) (net.Conn, error) {
	return acceptWithContext(ctx, e.ln.Accept, e.ln.Close)
}

func (e *unixServerEndpoint) Close() error {
	err := e.ln.Close()
	_ = os.Remove(e.path)
	return err
}

// ConnectHost dials the Unix-domain socket for n.
func ConnectHost(ctx context.Context, n EndpointName) (net.Conn, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", n.Path())
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", n, err)
	}
	return conn, nil
}

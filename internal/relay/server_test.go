package relay

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"tools.zach/dev/dipcrelay/internal/ipc"
)

func TestNewServer_ClaimsPreferredSlot(t *testing.T) {
	dir := useTempRuntimeDir(t)

	srv, err := NewServer(discardLogger(), SessionConfig{})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	defer srv.ep.Close()

	if srv.Name() != ipc.Preferred {
		t.Errorf("Name() = %s, want %s", srv.Name(), ipc.Preferred)
	}

	if _, err := os.Stat(filepath.Join(dir, string(ipc.Preferred))); err != nil {
		t.Errorf("expected socket file to exist: %v", err)
	}
}

func TestNewServer_FallsBackWhenPreferredTaken(t *testing.T) {
	dir := useTempRuntimeDir(t)
	peer := startMockPeer(t, dir, 0)
	defer peer.ln.Close()

	srv, err := NewServer(discardLogger(), SessionConfig{})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	defer srv.ep.Close()

	if srv.Name() != ipc.NameForSlot(1) {
		t.Errorf("Name() = %s, want %s", srv.Name(), ipc.NameForSlot(1))
	}
}

func TestNewServer_AllSlotsTaken(t *testing.T) {
	dir := useTempRuntimeDir(t)
	for i := range ipc.MaxSlots {
		startMockPeer(t, dir, i)
	}

	if _, err := NewServer(discardLogger(), SessionConfig{}); err == nil {
		t.Fatal("expected error when all slots are taken")
	}
}

func TestServer_ServeStopsOnCancellation(t *testing.T) {
	useTempRuntimeDir(t)

	srv, err := NewServer(discardLogger(), SessionConfig{})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()

	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve never returned after cancellation")
	}
}

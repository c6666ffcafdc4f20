// Package discovery runs a best-effort background watch over the IPC
// directory, logging when the set of live discord-ipc-N endpoints changes.
// It is purely observational: relay logic re-discovers hosts itself at
// handshake time and never consults this package.
package discovery

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"tools.zach/dev/dipcrelay/internal/ipc"
)

// Watcher monitors the IPC directory using fsnotify with a polling
// fallback, logging additions and removals of discord-ipc-N slots.
type Watcher struct {
	log *slog.Logger

	done    chan struct{}
	fsw     *fsnotify.Watcher
	once    sync.Once
	polling atomic.Bool

	pollInterval time.Duration
}

// NewWatcher starts watching the directory holding discord-ipc-N endpoints
// and returns once the initial endpoint set has been logged.
func NewWatcher(log *slog.Logger) (*Watcher, error) {
	w := &Watcher{
		log:          log,
		done:         make(chan struct{}),
		pollInterval: 2 * time.Second,
	}

	w.logSnapshot(ipc.Names())

	dir := filepath.Dir(ipc.NameForSlot(0).Path())
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		log.Info("discovery: fsnotify unavailable, falling back to polling", "error", err)
		w.polling.Store(true)
		go w.poll()
		return w, nil
	}

	w.fsw = fsw
	if err := fsw.Add(dir); err != nil {
		log.Info("discovery: cannot watch directory, falling back to polling", "path", dir, "error", err)
		fsw.Close()
		w.fsw = nil
		w.polling.Store(true)
		go w.poll()
		return w, nil
	}

	go w.watch()
	return w, nil
}

// Polling reports whether the watcher fell back to stat-based polling.
func (w *Watcher) Polling() bool {
	return w.polling.Load()
}

// Close stops the watcher. Safe to call more than once.
func (w *Watcher) Close() error {
	var err error
	w.once.Do(func() {
		close(w.done)
		if w.fsw != nil {
			if closeErr := w.fsw.Close(); closeErr != nil {
				err = fmt.Errorf("closing fsnotify watcher: %w", closeErr)
			}
		}
	})
	return err
}

func (w *Watcher) watch() {
	last := currentSet()
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !isEndpointEvent(event) {
				continue
			}
			last = w.diffAndLog(last)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.Info("discovery: fsnotify error, switching to polling", "error", err)
			w.fsw.Close()
			w.fsw = nil
			w.polling.Store(true)
			go w.poll()
			return
		}
	}
}

func (w *Watcher) poll() {
	last := currentSet()
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			last = w.diffAndLog(last)
		}
	}
}

// isEndpointEvent filters fsnotify events down to creations, removals and
// renames, which are what can change the live endpoint set; plain writes to a
// socket file (there are none — sockets aren't written to as files) are
// irrelevant.
func isEndpointEvent(event fsnotify.Event) bool {
	return event.Has(fsnotify.Create) || event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename)
}

func currentSet() map[ipc.EndpointName]bool {
	set := make(map[ipc.EndpointName]bool)
	for _, n := range ipc.Names() {
		set[n] = true
	}
	return set
}

// diffAndLog compares the live endpoint set against prev, logs any slots
// gained or lost, and returns the new set.
func (w *Watcher) diffAndLog(prev map[ipc.EndpointName]bool) map[ipc.EndpointName]bool {
	cur := currentSet()

	for n := range cur {
		if !prev[n] {
			w.log.Info("discovery: host endpoint appeared", "endpoint", n)
		}
	}
	for n := range prev {
		if !cur[n] {
			w.log.Info("discovery: host endpoint disappeared", "endpoint", n)
		}
	}

	return cur
}

func (w *Watcher) logSnapshot(names []ipc.EndpointName) {
	w.log.Info("discovery: initial endpoint snapshot", "endpoints", names, "count", len(names))
}

// Package fswatchtest provides an in-memory watch.Watcher test double so
// that the registry, watcher manager, and protocol driver can be tested
// deterministically without touching the real filesystem or relying on a
// native notification backend being available in the test environment.
package fswatchtest

import (
	"sync"

	"github.com/google/uuid"

	"github.com/mutagen-io/unison-fsmonitor-agent/pkg/watch"
)

// Watcher is a fake watch.Watcher whose events are injected by tests via
// Emit rather than produced by any real filesystem activity.
type Watcher struct {
	// ID uniquely identifies this watcher instance, primarily so that debug
	// logs can correlate events with a specific watcher session.
	ID uuid.UUID

	root string
	sink watch.EventSink

	mu      sync.Mutex
	running bool

	// StartError, if set, is returned by Start instead of succeeding. This
	// lets tests exercise the WatcherStart failure path (spec's error kind
	// of the same name) without needing an actually-broken filesystem.
	StartError error
}

// NewWatcher constructs a fake watcher. It matches watch.NewFunc's
// signature so it can be substituted wherever a real backend constructor is
// expected.
func NewWatcher(root string, sink watch.EventSink) (watch.Watcher, error) {
	return &Watcher{
		ID:   uuid.New(),
		root: root,
		sink: sink,
	}, nil
}

// NewFactory returns a watch.NewFunc that hands out Watchers sharing a
// single slice, so a test can locate and drive the watcher created for a
// particular replica.
func NewFactory() (factory func(root string, sink watch.EventSink) (watch.Watcher, error), watchers *[]*Watcher) {
	var created []*Watcher
	var mu sync.Mutex
	return func(root string, sink watch.EventSink) (watch.Watcher, error) {
		w, err := NewWatcher(root, sink)
		if err != nil {
			return nil, err
		}
		mu.Lock()
		created = append(created, w.(*Watcher))
		mu.Unlock()
		return w, nil
	}, &created
}

func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.StartError != nil {
		return w.StartError
	}
	w.running = true
	return nil
}

func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.running = false
}

func (w *Watcher) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// Emit delivers a batch of absolute paths to the sink as if the native
// backend had observed them, provided the watcher is running.
func (w *Watcher) Emit(paths ...string) {
	w.mu.Lock()
	running := w.running
	w.mu.Unlock()
	if running {
		w.sink(paths)
	}
}

// Root returns the root path this fake watcher was constructed with.
func (w *Watcher) Root() string {
	return w.root
}

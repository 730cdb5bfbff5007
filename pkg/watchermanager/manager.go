// Package watchermanager subscribes to a registry's watch/unwatch
// notifications and owns the lifecycle of the concrete watch.Watcher
// instances that back each registered replica.
package watchermanager

import (
	"sync"

	"github.com/mutagen-io/unison-fsmonitor-agent/pkg/registry"
	"github.com/mutagen-io/unison-fsmonitor-agent/pkg/watch"
)

// Logger is the minimal logging surface the manager needs, satisfied by
// *logging.Logger without creating an import cycle between packages that
// would otherwise be independent.
type Logger interface {
	Warn(error)
	Debugf(format string, v ...interface{})
}

// nopLogger discards everything; used when no logger is supplied.
type nopLogger struct{}

func (nopLogger) Warn(error)                            {}
func (nopLogger) Debugf(format string, v ...interface{}) {}

// Manager creates and destroys a watch.Watcher per replica in response to
// Registry watch/unwatch events, and supplies each Watcher's event sink.
type Manager struct {
	registry *registry.Registry
	newFunc  watch.NewFunc
	logger   Logger

	mu       sync.Mutex
	watchers map[string]watch.Watcher
}

// Option configures a Manager at construction.
type Option func(*Manager)

// WithWatcherFunc overrides the backend constructor used for new replicas.
// It exists so tests can substitute a fake watcher.
func WithWatcherFunc(newFunc watch.NewFunc) Option {
	return func(m *Manager) {
		m.newFunc = newFunc
	}
}

// WithLogger attaches a logger for reporting WatcherStart failures.
func WithLogger(logger Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// New constructs a Manager and subscribes it to reg's watch/unwatch events.
func New(reg *registry.Registry, opts ...Option) *Manager {
	m := &Manager{
		registry: reg,
		newFunc:  watch.New,
		logger:   nopLogger{},
		watchers: make(map[string]watch.Watcher),
	}
	for _, opt := range opts {
		opt(m)
	}

	reg.OnWatch(m.startWatching)
	reg.OnUnwatch(m.stopWatching)

	return m
}

func (m *Manager) startWatching(replica *registry.Replica) {
	m.mu.Lock()
	if _, exists := m.watchers[replica.Hash]; exists {
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	fspath := replica.FSPath
	hash := replica.Hash
	w, err := m.newFunc(fspath, func(paths []string) {
		m.registry.PushFSEvents(hash, fspath, paths)
	})
	if err != nil {
		m.logger.Warn(err)
		return
	}

	m.mu.Lock()
	m.watchers[hash] = w
	m.mu.Unlock()

	if err := w.Start(); err != nil {
		m.logger.Warn(err)
		return
	}
	m.logger.Debugf("started watching replica %s at %s", hash, fspath)
}

func (m *Manager) stopWatching(replica *registry.Replica) {
	m.mu.Lock()
	w, ok := m.watchers[replica.Hash]
	m.mu.Unlock()
	if !ok {
		return
	}
	w.Stop()
}

// Stop stops every watcher this manager has created. It is called once, on
// process shutdown.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, w := range m.watchers {
		w.Stop()
	}
}

// Watcher returns the watcher registered for hash, if any, primarily for
// tests that need to drive a specific replica's fake watcher.
func (m *Manager) Watcher(hash string) (watch.Watcher, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.watchers[hash]
	return w, ok
}

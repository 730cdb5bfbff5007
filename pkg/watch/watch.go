// Package watch abstracts over native filesystem-notification backends. The
// rest of this repository depends only on the Watcher interface defined
// here; it has no notion of inotify, FSEvents, kqueue, or polling.
package watch

import (
	"path/filepath"
	"strings"
)

// excludedSegments lists path segments that are never reported to a sink,
// regardless of backend. This mirrors the convention that version-control
// metadata directories should not generate spurious synchronization churn.
var excludedSegments = []string{".git", ".hg"}

// excluded reports whether path contains any excluded segment.
func excluded(path string) bool {
	for _, segment := range excludedSegments {
		if containsSegment(path, segment) {
			return true
		}
	}
	return false
}

func containsSegment(path, segment string) bool {
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if part == segment {
			return true
		}
	}
	return false
}

// EventSink receives batches of absolute paths that have changed somewhere
// under a watched root. A sink makes no assumption about uniqueness or
// ordering within a single batch, but batches from a single Watcher are
// delivered in the order they were produced.
type EventSink func(paths []string)

// Watcher observes a single filesystem root and reports changes to a sink
// supplied at construction. Implementations must be safe to Stop from any
// goroutine, and Stop must be idempotent.
type Watcher interface {
	// Start begins producing events. It returns once events will be
	// delivered, or an error if the underlying notification mechanism could
	// not be initialized (the WatcherStart error kind).
	Start() error
	// Stop causes no further events to be delivered. It is safe to call
	// Stop multiple times and to call it before Start.
	Stop()
	// IsRunning reports the last observed running state.
	IsRunning() bool
}

// NewFunc constructs a Watcher bound to a root path, delivering events to
// sink. WatcherManager uses this type to remain agnostic of which concrete
// backend it is instantiating.
type NewFunc func(root string, sink EventSink) (Watcher, error)

// New constructs the default Watcher for the current platform: an
// fsnotify-backed recursive watcher, falling back to a polling
// implementation if fsnotify cannot be initialized (for example because the
// process has exhausted its inotify instance limit).
func New(root string, sink EventSink) (Watcher, error) {
	if w, err := newFsnotifyWatcher(root, sink); err == nil {
		return w, nil
	}
	return newPollWatcher(root, sink), nil
}

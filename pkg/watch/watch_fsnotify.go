package watch

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// fsnotifyWatcher watches an entire directory tree by adding every
// directory under root to a single fsnotify.Watcher and re-adding any
// directory that is created after the watch starts, since fsnotify only
// reports events for paths explicitly added to it.
type fsnotifyWatcher struct {
	root string
	sink EventSink

	watcher *fsnotify.Watcher

	mu      sync.Mutex
	running bool
	done    chan struct{}
}

func newFsnotifyWatcher(root string, sink EventSink) (*fsnotifyWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("unable to create fsnotify watcher: %w", err)
	}
	return &fsnotifyWatcher{
		root:    root,
		sink:    sink,
		watcher: w,
	}, nil
}

func (w *fsnotifyWatcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return nil
	}

	if err := w.addTreeLocked(w.root); err != nil {
		w.watcher.Close()
		return fmt.Errorf("unable to watch %s: %w", w.root, err)
	}

	w.done = make(chan struct{})
	w.running = true
	go w.run(w.done)

	return nil
}

// addTreeLocked recursively adds root and every directory beneath it to the
// underlying fsnotify watcher, skipping excluded segments such as .git and
// .hg. It must be called with mu held.
func (w *fsnotifyWatcher) addTreeLocked(root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			// A path that disappeared between the walk listing it and us
			// visiting it is not an error worth aborting the whole watch
			// for; just skip it.
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if !info.IsDir() {
			return nil
		}
		if path != root && excluded(path) {
			return filepath.SkipDir
		}
		return w.watcher.Add(path)
	})
}

func (w *fsnotifyWatcher) run(done chan struct{}) {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handle(event)
		case _, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			// Errors from the underlying backend (e.g. a watch descriptor
			// becoming invalid) are not retried; the watcher simply stops
			// producing events for the affected path.
		case <-done:
			return
		}
	}
}

func (w *fsnotifyWatcher) handle(event fsnotify.Event) {
	if excluded(event.Name) {
		return
	}

	// If a new directory was created, start watching it too so that changes
	// within it are observed.
	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			w.mu.Lock()
			w.addTreeLocked(event.Name)
			w.mu.Unlock()
		}
	}

	w.sink([]string{event.Name})
}

func (w *fsnotifyWatcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return
	}
	close(w.done)
	w.watcher.Close()
	w.running = false
}

func (w *fsnotifyWatcher) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// Package protocol implements the line-oriented state machine that the
// parent synchronizer drives over this agent's standard input and output:
// the command dispatcher, the START enumeration sub-dialog, and the WAIT /
// CHANGES rendezvous.
package protocol

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/mutagen-io/unison-fsmonitor-agent/pkg/codec"
	"github.com/mutagen-io/unison-fsmonitor-agent/pkg/fsmonitor"
	"github.com/mutagen-io/unison-fsmonitor-agent/pkg/logging"
	"github.com/mutagen-io/unison-fsmonitor-agent/pkg/registry"
)

// maxLineLength bounds a single protocol line. Replica paths are unbounded
// in principle, but a generous static bound avoids unbounded allocation
// from a misbehaving parent and is well beyond any real filesystem path.
const maxLineLength = 1 << 20

// Driver is the single-threaded protocol state machine described in
// spec.md §4.5. It owns the "waiting" set and serializes all writes to its
// output stream so that the main command loop and the asynchronous
// change-arrival notifier never interleave partial lines.
type Driver struct {
	registry *registry.Registry
	reader   *bufio.Scanner

	writeMu sync.Mutex
	writer  io.Writer

	waitingMu sync.Mutex
	waiting   map[string]struct{}

	// rendezvousMu serializes the "check which waiting replicas have
	// changes, and if any do, clear the waiting set and emit a single
	// CHANGES line" sequence. Both handleWait's immediate path and
	// runNotifier's asynchronous path call tryDeliverChanges to perform
	// that sequence; without this lock, both could observe the same
	// waiting hash as changed and each emit their own CHANGES line.
	rendezvousMu sync.Mutex

	changeNotifications chan string
	notifierQuit        chan struct{}

	logger *logging.Logger
}

// Option configures a Driver at construction.
type Option func(*Driver)

// WithLogger attaches a logger for protocol tracing.
func WithLogger(logger *logging.Logger) Option {
	return func(d *Driver) {
		d.logger = logger
	}
}

// New constructs a Driver reading commands from r and writing responses to
// w. It subscribes to reg's change notifications immediately, but does not
// begin reading commands until Run is called.
func New(reg *registry.Registry, r io.Reader, w io.Writer, opts ...Option) *Driver {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4096), maxLineLength)

	d := &Driver{
		registry:            reg,
		reader:              scanner,
		writer:              w,
		waiting:             make(map[string]struct{}),
		changeNotifications: make(chan string, 64),
		notifierQuit:        make(chan struct{}),
		logger:              logging.RootLogger.Sublogger("protocol"),
	}
	for _, opt := range opts {
		opt(d)
	}

	reg.OnChange(func(hash string) {
		select {
		case d.changeNotifications <- hash:
		default:
			// The channel is deep enough that this should never happen in
			// practice (spec bounds the waiting set to "tens of replicas"),
			// but if it does, dropping a notification is safe: the change
			// is still recorded in the replica's tree and will be picked up
			// by the next CHANGES or WAIT regardless. This channel is never
			// closed (see Run), so this send is safe for the lifetime of
			// the process, including after the protocol loop has exited.
		}
	})

	return d
}

// Run writes the initial VERSION line, starts the change-notification
// watcher goroutine, and then reads and dispatches commands until the input
// stream reaches EOF or becomes unreadable (the IOEnd error kind).
func (d *Driver) Run() error {
	d.writeLine(fmt.Sprintf("VERSION %d", fsmonitor.ProtocolVersion))

	notifierDone := make(chan struct{})
	go func() {
		defer close(notifierDone)
		d.runNotifier()
	}()
	defer func() {
		// Signal the notifier to stop via a dedicated channel rather than
		// closing changeNotifications: watcher goroutines feeding that
		// channel from reg.OnChange are not guaranteed to have stopped by
		// the time stdin reaches EOF (they are only stopped afterward, by
		// the caller's WatcherManager.Stop), so closing it here could race
		// a send against the close and panic.
		close(d.notifierQuit)
		<-notifierDone
	}()

	for d.reader.Scan() {
		line := strings.TrimRight(d.reader.Text(), " \t")
		if line == "" {
			continue
		}
		d.logger.Debugf(">>> %s", line)

		tokens := codec.Tokenize(line)
		if len(tokens) == 0 {
			continue
		}

		command, args := tokens[0], tokens[1:]

		if command != "WAIT" {
			d.clearWaiting()
		}

		d.dispatch(command, args)
	}

	return d.reader.Err()
}

// runNotifier implements the asynchronous half of the WAIT rendezvous: when
// a replica in the waiting set gains changes, it writes a single CHANGES
// line and clears the waiting set, per spec.md §4.5.
func (d *Driver) runNotifier() {
	for {
		select {
		case hash := <-d.changeNotifications:
			d.waitingMu.Lock()
			_, isWaiting := d.waiting[hash]
			d.waitingMu.Unlock()
			if isWaiting {
				d.tryDeliverChanges()
			}
		case <-d.notifierQuit:
			return
		}
	}
}

// tryDeliverChanges checks whether any currently-waiting replica has
// changes and, if so, clears the waiting set and emits a single CHANGES
// line. It is the sole path by which a CHANGES line is emitted outside of
// a direct CHANGES command, and both handleWait and runNotifier call it;
// rendezvousMu ensures only one of them ever commits to a delivery for a
// given round, so a replica can never be reported by both.
func (d *Driver) tryDeliverChanges() {
	d.rendezvousMu.Lock()
	defer d.rendezvousMu.Unlock()

	d.waitingMu.Lock()
	candidates := d.waitingSlice()
	d.waitingMu.Unlock()

	if len(candidates) == 0 {
		return
	}

	// ChangedReplicas acquires the registry's tree lock; the waiting lock
	// must never be held across that acquisition (spec.md §5), so it has
	// already been released above.
	changed := d.registry.ChangedReplicas(candidates)
	if len(changed) == 0 {
		return
	}

	d.waitingMu.Lock()
	d.waiting = make(map[string]struct{})
	d.waitingMu.Unlock()

	sort.Strings(changed)
	d.writeLine("CHANGES " + codec.Join(changed))
}

func (d *Driver) dispatch(command string, args []string) {
	switch command {
	case "START":
		d.handleStart(args)
	case "CHANGES":
		d.handleChanges(args)
	case "WAIT":
		d.handleWait(args)
	case "RESET":
		d.handleReset(args)
	default:
		// Malformed: an unrecognized command is skipped silently.
		d.logger.Debugf("skipping unrecognized command %q", command)
	}
}

func (d *Driver) handleStart(args []string) {
	if len(args) < 2 {
		return
	}
	hash, fspath := args[0], args[1]

	var subpath string
	if len(args) >= 3 {
		subpath = args[2]
	}

	d.registry.AddReplica(registry.NewReplica(hash, fspath, subpath))
	d.writeLine("OK")

	for d.reader.Scan() {
		line := strings.TrimRight(d.reader.Text(), " \t")
		if line == "" {
			continue
		}
		tokens := codec.Tokenize(line)
		if len(tokens) == 0 {
			continue
		}

		switch tokens[0] {
		case "DONE":
			return
		case "DIR", "LINK":
			d.writeLine("OK")
		default:
			// Any other line inside a START sub-dialog is malformed in
			// context; skip it silently and keep waiting for DONE.
		}
	}
}

func (d *Driver) handleChanges(args []string) {
	if len(args) < 1 {
		d.writeLine("DONE")
		return
	}
	hash := args[0]

	tree := d.registry.ConsumeDirectory(hash)
	for _, path := range tree.Compact() {
		d.writeLine("RECURSIVE " + codec.Encode(path))
	}
	d.writeLine("DONE")
}

func (d *Driver) handleWait(args []string) {
	if len(args) < 1 {
		return
	}
	hash := args[0]

	d.waitingMu.Lock()
	d.waiting[hash] = struct{}{}
	d.waitingMu.Unlock()

	d.tryDeliverChanges()
}

func (d *Driver) handleReset(args []string) {
	if len(args) < 1 {
		return
	}
	d.registry.Reset(args[0])
}

func (d *Driver) clearWaiting() {
	d.waitingMu.Lock()
	d.waiting = make(map[string]struct{})
	d.waitingMu.Unlock()
}

// waitingSlice returns a snapshot of the waiting set's keys. Callers must
// hold waitingMu.
func (d *Driver) waitingSlice() []string {
	out := make([]string, 0, len(d.waiting))
	for hash := range d.waiting {
		out = append(out, hash)
	}
	return out
}

func (d *Driver) writeLine(line string) {
	d.writeMu.Lock()
	defer d.writeMu.Unlock()
	fmt.Fprintf(d.writer, "%s\n", line)
	if f, ok := d.writer.(interface{ Flush() error }); ok {
		f.Flush()
	}
	d.logger.Debugf("<<< %s", line)
}

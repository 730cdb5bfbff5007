package protocol

import (
	"bufio"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/mutagen-io/unison-fsmonitor-agent/pkg/registry"
)

// harness wires a Driver to a pair of pipes so a test can act as the parent
// process: write commands on send, read responses on recv.
type harness struct {
	reg *registry.Registry

	toDriver   *io.PipeWriter
	fromDriver *bufio.Reader

	done chan error
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	reg := registry.New()

	inR, inW := io.Pipe()
	outR, outW := io.Pipe()

	d := New(reg, inR, outW)

	h := &harness{
		reg:        reg,
		toDriver:   inW,
		fromDriver: bufio.NewReader(outR),
		done:       make(chan error, 1),
	}

	go func() {
		h.done <- d.Run()
	}()

	// Consume the VERSION handshake line.
	h.expectLine(t, "VERSION 1")

	return h
}

func (h *harness) send(t *testing.T, line string) {
	t.Helper()
	if _, err := fmt.Fprintf(h.toDriver, "%s\n", line); err != nil {
		t.Fatalf("failed to send %q: %v", line, err)
	}
}

func (h *harness) expectLine(t *testing.T, expected string) {
	t.Helper()
	line, err := h.fromDriver.ReadString('\n')
	if err != nil {
		t.Fatalf("failed to read expected line %q: %v", expected, err)
	}
	line = line[:len(line)-1]
	if line != expected {
		t.Fatalf("expected line %q, got %q", expected, line)
	}
}

// expectNoLineWithin asserts the driver stays silent for the given window.
func (h *harness) expectNoLineWithin(t *testing.T, d time.Duration) {
	t.Helper()
	type result struct {
		line string
		err  error
	}
	lines := make(chan result, 1)
	go func() {
		line, err := h.fromDriver.ReadString('\n')
		lines <- result{line, err}
	}()
	select {
	case r := <-lines:
		t.Fatalf("expected no output, got %q (err=%v)", r.line, r.err)
	case <-time.After(d):
	}
}

func (h *harness) close() {
	h.toDriver.Close()
}

// TestHandshake implements S1.
func TestHandshake(t *testing.T) {
	h := newHarness(t)
	defer h.close()

	h.send(t, "START r1 /tmp/r1")
	h.expectLine(t, "OK")
	h.send(t, "DONE")

	h.expectNoLineWithin(t, 50*time.Millisecond)

	if !h.reg.HasReplica("r1") {
		t.Fatal("expected replica r1 to be registered")
	}
}

// TestChangeReporting implements S2.
func TestChangeReporting(t *testing.T) {
	h := newHarness(t)
	defer h.close()

	h.send(t, "START r1 /tmp/r1")
	h.expectLine(t, "OK")
	h.send(t, "DONE")

	h.reg.PushFSEvents("r1", "/tmp/r1", []string{"/tmp/r1/a/b"})

	h.send(t, "CHANGES r1")
	h.expectLine(t, "RECURSIVE a/b")
	h.expectLine(t, "DONE")

	h.send(t, "CHANGES r1")
	h.expectLine(t, "DONE")
}

// TestCompaction implements S3.
func TestCompaction(t *testing.T) {
	h := newHarness(t)
	defer h.close()

	h.send(t, "START r1 /tmp/r1")
	h.expectLine(t, "OK")
	h.send(t, "DONE")

	h.reg.PushFSEvents("r1", "/tmp/r1", []string{"/tmp/r1/a/b", "/tmp/r1/a/b/c"})

	h.send(t, "CHANGES r1")
	h.expectLine(t, "RECURSIVE a/b")
	h.expectLine(t, "DONE")
}

// TestRootChange implements S4.
func TestRootChange(t *testing.T) {
	h := newHarness(t)
	defer h.close()

	h.send(t, "START r1 /tmp/r1")
	h.expectLine(t, "OK")
	h.send(t, "DONE")

	h.reg.PushFSEvents("r1", "/tmp/r1", []string{"/tmp/r1"})

	h.send(t, "CHANGES r1")
	h.expectLine(t, "RECURSIVE .")
	h.expectLine(t, "DONE")
}

// TestWaitThenChange implements S5.
func TestWaitThenChange(t *testing.T) {
	h := newHarness(t)
	defer h.close()

	h.send(t, "START r1 /tmp/r1")
	h.expectLine(t, "OK")
	h.send(t, "DONE")

	h.send(t, "WAIT r1")
	h.expectNoLineWithin(t, 50*time.Millisecond)

	h.reg.PushFSEvents("r1", "/tmp/r1", []string{"/tmp/r1/x"})

	h.expectLine(t, "CHANGES r1")
}

// TestWaitCancelled implements S6.
func TestWaitCancelled(t *testing.T) {
	h := newHarness(t)
	defer h.close()

	h.send(t, "START r1 /tmp/r1")
	h.expectLine(t, "OK")
	h.send(t, "DONE")

	h.send(t, "WAIT r1")
	h.expectNoLineWithin(t, 50*time.Millisecond)

	h.send(t, "CHANGES r1")
	h.expectLine(t, "DONE")

	// No unsolicited CHANGES should ever arrive, even if the replica later
	// changes, since the WAIT was cancelled.
	h.reg.PushFSEvents("r1", "/tmp/r1", []string{"/tmp/r1/x"})
	h.expectNoLineWithin(t, 50*time.Millisecond)
}

func TestStartMergesPaths(t *testing.T) {
	h := newHarness(t)
	defer h.close()

	h.send(t, "START r1 /tmp/r1 sub1")
	h.expectLine(t, "OK")
	h.send(t, "DONE")

	h.send(t, "START r1 /tmp/r1 sub2")
	h.expectLine(t, "OK")
	h.send(t, "DONE")

	replica, err := h.reg.Replica("r1")
	if err != nil {
		t.Fatalf("expected replica to exist: %v", err)
	}
	paths := replica.SortedPaths()
	if len(paths) != 2 || paths[0] != "sub1" || paths[1] != "sub2" {
		t.Fatalf("expected merged paths [sub1 sub2], got %v", paths)
	}
}

func TestResetDiscardsChanges(t *testing.T) {
	h := newHarness(t)
	defer h.close()

	h.send(t, "START r1 /tmp/r1")
	h.expectLine(t, "OK")
	h.send(t, "DONE")

	h.reg.PushFSEvents("r1", "/tmp/r1", []string{"/tmp/r1/a"})
	h.send(t, "RESET r1")

	h.send(t, "CHANGES r1")
	h.expectLine(t, "DONE")
}

func TestDirAndLinkAcknowledgedInsideStart(t *testing.T) {
	h := newHarness(t)
	defer h.close()

	h.send(t, "START r1 /tmp/r1")
	h.expectLine(t, "OK")
	h.send(t, "DIR sub")
	h.expectLine(t, "OK")
	h.send(t, "LINK link1")
	h.expectLine(t, "OK")
	h.send(t, "DONE")
}

package registry

import (
	"reflect"
	"sort"
	"testing"
)

func TestAddReplicaInvokesWatchListenerOnce(t *testing.T) {
	r := New()

	var seen []string
	r.OnWatch(func(replica *Replica) {
		seen = append(seen, replica.Hash)
	})

	r.AddReplica(NewReplica("r1", "/tmp/r1"))
	r.AddReplica(NewReplica("r1", "/tmp/r1", "sub"))
	r.AddReplica(NewReplica("r2", "/tmp/r2"))

	expected := []string{"r1", "r2"}
	if !reflect.DeepEqual(seen, expected) {
		t.Fatalf("expected watch listener invoked for %v, got %v", expected, seen)
	}
}

func TestAddReplicaMergesPaths(t *testing.T) {
	r := New()
	r.AddReplica(NewReplica("r1", "/tmp/r1", "a"))
	r.AddReplica(NewReplica("r1", "/tmp/r1", "b"))

	replica, err := r.Replica("r1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	paths := replica.SortedPaths()
	if !reflect.DeepEqual(paths, []string{"a", "b"}) {
		t.Fatalf("expected merged paths [a b], got %v", paths)
	}
}

func TestReplicaNotFound(t *testing.T) {
	r := New()
	if _, err := r.Replica("missing"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if r.HasReplica("missing") {
		t.Fatal("expected HasReplica to report false")
	}
}

func TestPushFSEventsAndConsume(t *testing.T) {
	r := New()
	r.AddReplica(NewReplica("r1", "/tmp/r1"))

	var notified []string
	r.OnChange(func(hash string) {
		notified = append(notified, hash)
	})

	r.PushFSEvents("r1", "/tmp/r1", []string{"/tmp/r1/a/b", "/tmp/r1/c"})

	if len(notified) != 1 || notified[0] != "r1" {
		t.Fatalf("expected one change notification for r1, got %v", notified)
	}

	tree := r.ConsumeDirectory("r1")
	compacted := tree.Compact()
	sort.Strings(compacted)
	expected := []string{"a/b", "c"}
	if !reflect.DeepEqual(compacted, expected) {
		t.Fatalf("expected %v, got %v", expected, compacted)
	}

	// Immediately after consuming, the replica should report no changes.
	if changed := r.ChangedReplicas([]string{"r1"}); len(changed) != 0 {
		t.Fatalf("expected no changed replicas immediately after consume, got %v", changed)
	}
}

func TestConsumeDirectoryIsAtomic(t *testing.T) {
	r := New()
	r.AddReplica(NewReplica("r1", "/tmp/r1"))

	r.PushFSEvents("r1", "/tmp/r1", []string{"/tmp/r1/a"})
	first := r.ConsumeDirectory("r1")
	if first.IsEmpty() {
		t.Fatal("expected first consume to carry the recorded event")
	}

	second := r.ConsumeDirectory("r1")
	if !second.IsEmpty() {
		t.Fatal("expected second consume to be empty")
	}

	r.PushFSEvents("r1", "/tmp/r1", []string{"/tmp/r1/b"})
	third := r.ConsumeDirectory("r1")
	if compacted := third.Compact(); len(compacted) != 1 || compacted[0] != "b" {
		t.Fatalf("expected [b], got %v", compacted)
	}
}

func TestResetDiscardsPendingChanges(t *testing.T) {
	r := New()
	r.AddReplica(NewReplica("r1", "/tmp/r1"))
	r.PushFSEvents("r1", "/tmp/r1", []string{"/tmp/r1/a"})

	r.Reset("r1")

	if changed := r.ChangedReplicas([]string{"r1"}); len(changed) != 0 {
		t.Fatalf("expected no changed replicas after reset, got %v", changed)
	}
}

func TestRootEventRelativeToReplica(t *testing.T) {
	r := New()
	r.AddReplica(NewReplica("r1", "/tmp/r1"))
	r.PushFSEvents("r1", "/tmp/r1", []string{"/tmp/r1"})

	tree := r.ConsumeDirectory("r1")
	compacted := tree.Compact()
	if !reflect.DeepEqual(compacted, []string{"."}) {
		t.Fatalf("expected [.], got %v", compacted)
	}
}

// Package changetree implements the per-replica trie used to accumulate
// filesystem change notifications into a minimal set of recursive paths.
//
// A Tree never needs to be told what kind of change occurred (create,
// modify, delete, rename): every event is treated identically as "this path
// changed", and the tree's job is purely to compact an arbitrary number of
// such events into the smallest set of paths that covers them, using
// termination to subsume descendants.
package changetree

import (
	"sort"
	"strings"
)

// node is a single trie node. A node with terminated set to true represents
// "everything at or below this point has changed"; its children, if any,
// carry no additional information and are never visited once terminated is
// observed.
type node struct {
	// terminated indicates that this node's entire subtree should be
	// reported as a single recursive change.
	terminated bool
	// hasChanges is the monotonic OR of terminated at this node and
	// hasChanges at every child. It lets IsEmpty and ChangedReplicas answer
	// in O(1) without walking the tree.
	hasChanges bool
	// children maps a single path component to its child node. It is left
	// nil until the first child is created.
	children map[string]*node
}

func (n *node) child(component string) *node {
	if n.children == nil {
		n.children = make(map[string]*node)
	}
	c, ok := n.children[component]
	if !ok {
		c = &node{}
		n.children[component] = c
	}
	return c
}

func (n *node) terminate() {
	n.terminated = true
	n.hasChanges = true
}

// Tree is a per-replica trie of pending changes. The zero value is an empty
// tree ready to use.
type Tree struct {
	root node
}

// New creates an empty change tree.
func New() *Tree {
	return &Tree{}
}

// Record walks the tree from the root along relativePath, creating any
// missing intermediate nodes, and terminates the final node. An empty
// relativePath terminates the root itself, representing a change to the
// replica's root directory.
func (t *Tree) Record(relativePath []string) {
	n := &t.root
	for _, component := range relativePath {
		n.hasChanges = true
		n = n.child(component)
	}
	n.terminate()
}

// IsEmpty reports whether the tree has accumulated any changes at all.
func (t *Tree) IsEmpty() bool {
	return !t.root.hasChanges
}

// Compact returns the minimal list of slash-joined paths covering every
// terminated node in the tree. If a node is terminated, its path is emitted
// and its children are not visited, since they carry no additional
// information. The root, if terminated, is reported as ".".
func (t *Tree) Compact() []string {
	var out []string
	compactInto(&t.root, ".", &out)
	return out
}

// CompactInto appends the minimal path cover to out, in place, avoiding an
// extra allocation when the caller already owns a slice to reuse.
func (t *Tree) CompactInto(out *[]string) {
	compactInto(&t.root, ".", out)
}

func compactInto(n *node, path string, out *[]string) {
	if n.terminated {
		*out = append(*out, path)
		return
	}
	components := make([]string, 0, len(n.children))
	for component := range n.children {
		components = append(components, component)
	}
	sort.Strings(components)
	for _, component := range components {
		compactInto(n.children[component], join(path, component), out)
	}
}

// join performs canonical POSIX path joining of a parent path (which may be
// ".") and a single child component, using forward slashes unconditionally.
// It does not normalize ".." and never touches backslashes, matching the
// wire convention of the protocol this package serves.
func join(parent, component string) string {
	if parent == "." {
		return component
	}
	var b strings.Builder
	b.Grow(len(parent) + 1 + len(component))
	b.WriteString(parent)
	b.WriteByte('/')
	b.WriteString(component)
	return b.String()
}

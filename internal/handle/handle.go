// Package handle provides a small, comparable identity type usable as a
// map key wherever the core needs "identity of a shared object" without
// tying that identity to a pointer (which may be relocated/boxed) or to a
// domain-specific key (fd, offset, tid).
//
// Supplements spec.md with the occlum original's keyable-arc newtype
// (src/libos/crates/keyable-arc), which wraps an Arc so it can be used as a
// map key; this module's equivalent is a generated monotonic id rather than
// a pointer wrapper, since Go pointers already compare by identity but are
// not good map keys for objects the GC may otherwise collect independently.
package handle

import "sync/atomic"

// Handle is an opaque, comparable identity.
type Handle uint64

// Zero is the never-issued sentinel handle.
const Zero Handle = 0

var counter atomic.Uint64

// New issues a fresh, process-unique Handle.
func New() Handle {
	return Handle(counter.Add(1))
}

// Generator issues Handles for a specific owner (e.g. one per Poller
// registry, one per IoHandle table), so each domain gets a densely-spaced
// id sequence independent of others.
type Generator struct {
	next atomic.Uint64
}

// Next issues the next Handle from this generator, starting at 1.
func (g *Generator) Next() Handle {
	return Handle(g.next.Add(1))
}

// Package ioring implements spec §4.H: a callback-driven completion core
// over an asynchronous kernel I/O interface. Every submission returns an
// IoHandle; completion invokes the caller's callback exactly once.
//
// Grounded on the teacher's eventloop/registry.go id-keyed handle table
// (map[id]->entry under a mutex, monotonic id counter) simplified from its
// weak-pointer-scavenged form, since an IoHandle's owner holds a strong
// reference until it reaches a terminal state by design (spec §4.H: "a
// release escape hatch exists for explicitly-discarded handles" implies the
// default path is watched-to-completion, not GC'd away).
package ioring

import (
	"sync"
	"sync/atomic"

	"github.com/joeycumines/libos-core/internal/errno"
)

// State is an IoHandle's lifecycle state.
type State int

const (
	Submitted State = iota
	Cancelling
	Processed
	Cancelled
)

// Callback receives the operation's return value exactly once, at the
// terminal Processed/Cancelled transition.
type Callback func(retval int64)

// Op identifies the kind of operation a handle represents, for logging and
// for the supplemented connect sub-state-machine below.
type Op int

const (
	OpRead Op = iota
	OpWrite
	OpReadv
	OpWritev
	OpRecvmsg
	OpSendmsg
	OpConnect
	OpAccept
)

// IoHandle tracks one in-flight submission. Handles that reach a terminal
// state are expected to be observed (via Wait or the callback) before being
// dropped; Released handles are exempt (spec §4.H's "release escape
// hatch").
type IoHandle struct {
	mu       sync.Mutex
	state    State
	op       Op
	retval   int64
	cb       Callback
	released bool
	done     chan struct{}

	ring *Ring
	id   uint64
}

// Submit registers a new in-flight operation and returns its handle. The
// transport-specific code that actually issues the syscall should call
// this first, then arrange for Complete (or Cancel) to be invoked exactly
// once.
func (r *Ring) Submit(op Op, cb Callback) *IoHandle {
	h := &IoHandle{op: op, cb: cb, state: Submitted, ring: r, done: make(chan struct{})}
	h.id = r.register(h)
	return h
}

// Complete transitions the handle to Processed and invokes its callback
// exactly once. Calling Complete on an already-terminal handle panics (spec
// §4.H: completion invokes the callback exactly once; a double-complete is
// an internal invariant violation in the transport layer, not a recoverable
// user error).
func (h *IoHandle) Complete(retval int64) {
	h.mu.Lock()
	if h.state == Processed || h.state == Cancelled {
		h.mu.Unlock()
		panic("ioring: handle completed more than once")
	}
	h.state = Processed
	h.retval = retval
	cb := h.cb
	done := h.done
	h.mu.Unlock()

	h.ring.unregister(h.id)
	if cb != nil {
		cb(retval)
	}
	close(done)
}

// Cancel requests cancellation: the handle transitions to Cancelling, and
// the transport is expected to eventually call Complete (if the operation
// raced to success/failure first) or CompleteCancelled. Cancel on an
// already-terminal or already-cancelling handle is a no-op.
func (h *IoHandle) Cancel() {
	h.mu.Lock()
	if h.state != Submitted {
		h.mu.Unlock()
		return
	}
	h.state = Cancelling
	h.mu.Unlock()
}

// CompleteCancelled transitions a Cancelling handle to its terminal
// Cancelled state with retval -ECANCELED, invoking the callback exactly
// once. Panics if the handle was never put into Cancelling (use Complete
// instead for operations that finish without having been cancelled).
func (h *IoHandle) CompleteCancelled() {
	h.mu.Lock()
	if h.state != Cancelling {
		h.mu.Unlock()
		panic("ioring: CompleteCancelled on a handle that was never Cancelling")
	}
	h.state = Cancelled
	h.retval = int64(-errno.ECANCELED)
	cb := h.cb
	done := h.done
	h.mu.Unlock()

	h.ring.unregister(h.id)
	if cb != nil {
		cb(h.retval)
	}
	close(done)
}

// State returns the handle's current lifecycle state.
func (h *IoHandle) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Retval returns the terminal return value. Only meaningful once State is
// Processed or Cancelled.
func (h *IoHandle) Retval() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.retval
}

// Wait blocks until the handle reaches a terminal state and returns its
// return value.
func (h *IoHandle) Wait() int64 {
	<-h.done
	return h.Retval()
}

// Release is the escape hatch for explicitly-discarded handles: it
// suppresses the "dropped before terminal state" invariant check a
// finalizer-based implementation would otherwise perform. Safe to call
// regardless of current state.
func (h *IoHandle) Release() {
	h.mu.Lock()
	h.released = true
	h.mu.Unlock()
	h.ring.unregister(h.id)
}

// Released reports whether Release has been called.
func (h *IoHandle) Released() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.released
}

// Ring is the process-wide (or per-vCPU, at the caller's option) table of
// in-flight IoHandles, keyed by a monotonic id. Grounded on
// eventloop/registry.go's id->entry map, without the weak-pointer scavenger
// (handles here are strongly referenced by their owner until terminal, by
// design — see package doc).
type Ring struct {
	mu      sync.Mutex
	entries map[uint64]*IoHandle
	nextID  atomic.Uint64
}

// NewRing creates an empty Ring.
func NewRing() *Ring {
	return &Ring{entries: make(map[uint64]*IoHandle)}
}

func (r *Ring) register(h *IoHandle) uint64 {
	id := r.nextID.Add(1)
	r.mu.Lock()
	r.entries[id] = h
	r.mu.Unlock()
	return id
}

func (r *Ring) unregister(id uint64) {
	r.mu.Lock()
	delete(r.entries, id)
	r.mu.Unlock()
}

// Outstanding returns the number of handles not yet in a terminal state,
// used by shutdown sequencing to drain in-flight I/O before tearing down
// the transport.
func (r *Ring) Outstanding() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// CancelAll requests cancellation of every outstanding handle, used during
// shutdown.
func (r *Ring) CancelAll() {
	r.mu.Lock()
	handles := make([]*IoHandle, 0, len(r.entries))
	for _, h := range r.entries {
		handles = append(handles, h)
	}
	r.mu.Unlock()

	for _, h := range handles {
		h.Cancel()
	}
}

// Package wait implements spec §4.C: Waiter, WaiterQueue, and the
// waiter_loop combinator — the parking/waking primitives used both from
// task context and from the executor's bottom half (timer expiry, pollee
// notification, I/O completion callbacks).
//
// Grounded on the teacher's eventloop/state.go FastState (atomic CAS state
// machine, cache-line-padding-free here since Waiters aren't as hot as the
// per-loop state) and eventloop/promise.go's settle-once-then-notify shape.
package wait

import (
	"sync"
	"time"

	"github.com/joeycumines/libos-core/internal/clock"
	"github.com/joeycumines/libos-core/internal/errno"
)

// State is a Waiter's lifecycle state.
type State int

const (
	Idle State = iota
	Waiting
	Woken
)

// InterruptChecker reports whether the calling thread currently has an
// active interrupt request (spec §7 EINTR). Supplied by the process/thread
// layer; wait itself has no notion of threads.
type InterruptChecker func() bool

// Waiter is a single park/wake slot. Create one with NewWaiter: the zero
// value has no wake channel, so Wake on it panics and Wait never returns.
type Waiter struct {
	mu    sync.Mutex
	state State
	ch    chan struct{} // closed exactly once, on Wake, to release Wait

	// list linkage, used by WaiterQueue; guarded by the owning queue's lock,
	// not by mu.
	prev, next *Waiter
	queue      *WaiterQueue
}

// NewWaiter returns a ready-to-use Waiter in the Idle state.
func NewWaiter() *Waiter {
	return &Waiter{ch: make(chan struct{})}
}

// reset returns the Waiter to Idle, replacing its wake channel, so it can
// be reused across multiple wait/wake cycles (spec §4.C: "A waiter may be
// reset to Idle after being woken").
func (w *Waiter) reset() {
	w.state = Idle
	w.ch = make(chan struct{})
}

// Reset is the exported form of reset, for callers (e.g. waiter_loop) that
// need to recycle a Waiter between attempts.
func (w *Waiter) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.reset()
}

// Wake transitions Idle|Waiting -> Woken and releases exactly one pending
// Wait call. Waking an already-Woken waiter is a no-op.
func (w *Waiter) Wake() {
	w.mu.Lock()
	if w.state == Woken {
		w.mu.Unlock()
		return
	}
	w.state = Woken
	ch := w.ch
	w.mu.Unlock()
	close(ch)
}

// Wait blocks until woken or the deadline elapses. interrupt, if non-nil,
// is checked once before blocking; an interrupt raised while already
// blocked is not observed. A zero timeout means "wait forever". Per spec §4.C /
// §7: returns ETIMEDOUT on timer expiry, EINTR on interruption, nil on wake.
func (w *Waiter) Wait(clk clock.Source, timeout time.Duration, interrupt InterruptChecker) error {
	w.mu.Lock()
	if w.state == Woken {
		w.mu.Unlock()
		return nil
	}
	w.state = Waiting
	ch := w.ch
	w.mu.Unlock()

	if interrupt != nil && interrupt() {
		return errno.New(errno.EINTR, "wait: interrupted before suspension")
	}

	if timeout <= 0 {
		<-ch
		return nil
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-ch:
		return nil
	case <-timer.C:
		w.mu.Lock()
		timedOut := w.state != Woken
		w.mu.Unlock()
		if timedOut {
			return errno.New(errno.ETIMEDOUT, "wait: timed out")
		}
		return nil
	}
}

// State returns the current lifecycle state.
func (w *Waiter) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

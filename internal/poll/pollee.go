// Package poll implements spec §4.D: Pollee/Poller, the readiness bridge
// used throughout the core to turn "has this event already happened" into
// "wake me when it happens".
//
// Grounded on the teacher's eventloop/poller_linux.go FastPoller: register
// under a lock, then re-read state after publishing to close the race with
// a concurrent event add (RegisterFD's "rollback on failure", PollIO's
// version-check-after-syscall). Pollee↔Poller forms a reference cycle
// (spec §9). Here both directions hold ordinary pointers (Pollee.observers
// and Poller.tracked); the Poller additionally keeps weak.Pointers to its
// Pollees, mirroring the teacher's registry.go use of weak.Pointer[promise],
// which Close walks to unregister. The cycle is broken only by Close.
package poll

import (
	"sync"
	"weak"
)

// EventMask is a bitmask of readiness events. Concrete bit values are
// defined by callers (sockets define IN/OUT/ERR/HUP, etc.); this package is
// agnostic to their meaning.
type EventMask uint32

// AlwaysPoll is implicitly ORed into every poll mask, so ERR/HUP-style bits
// (whatever a caller assigns them) are delivered to any poller regardless
// of the mask it registered, per spec §3.
var AlwaysPoll EventMask

// SetAlwaysPoll configures the process-wide AlwaysPoll bits. Intended to be
// called once, during composition-root setup (cmd/libosd), with the
// concrete ERR|HUP bit values the caller's file-kind layer assigns.
func SetAlwaysPoll(mask EventMask) { AlwaysPoll = mask }

// Pollee is an endpoint holding a bitmask of active events plus a set of
// registered observers (Pollers) and the mask each is interested in.
type Pollee struct {
	mu        sync.Mutex
	events    EventMask
	observers map[*Poller]EventMask
}

// NewPollee creates an empty Pollee.
func NewPollee() *Pollee {
	return &Pollee{observers: make(map[*Poller]EventMask)}
}

// Events returns the currently active events, read under the lock; the
// value may be stale by the time the caller acts on it.
func (p *Pollee) Events() EventMask {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.events
}

// Poll returns events&(mask|AlwaysPoll) immediately if nonempty. If poller
// is non-nil and nothing is ready, poller is registered against this Pollee
// for (mask|AlwaysPoll), and events are re-read under the same lock to
// close the race against a concurrent AddEvents.
func (p *Pollee) Poll(mask EventMask, poller *Poller) EventMask {
	full := mask | AlwaysPoll

	p.mu.Lock()
	if ready := p.events & full; ready != 0 {
		p.mu.Unlock()
		return ready
	}
	if poller == nil {
		p.mu.Unlock()
		return 0
	}
	p.observers[poller] = full
	ready := p.events & full
	p.mu.Unlock()

	poller.trackPollee(p)
	return ready
}

// AddEvents ORs E into the active event set, then notifies every observer
// whose registered mask intersects E. Per spec §5, the OR must be
// visible-before notification; the mutex around both the update and the
// notifier snapshot provides that ordering.
func (p *Pollee) AddEvents(e EventMask) {
	p.mu.Lock()
	newlySet := e &^ p.events
	p.events |= e
	var toNotify []*Poller
	if newlySet != 0 || e != 0 {
		for poller, mask := range p.observers {
			if mask&e != 0 {
				toNotify = append(toNotify, poller)
			}
		}
	}
	p.mu.Unlock()

	for _, poller := range toNotify {
		poller.notify()
	}
}

// DelEvents clears bits from the active set without notifying observers.
func (p *Pollee) DelEvents(e EventMask) {
	p.mu.Lock()
	p.events &^= e
	p.mu.Unlock()
}

// unregister removes poller from this Pollee's observer set. Called when a
// Poller is dropped (best-effort, via weak references) or explicitly
// unregisters.
func (p *Pollee) unregister(poller *Poller) {
	p.mu.Lock()
	delete(p.observers, poller)
	p.mu.Unlock()
}

// weakSelf lets Poller hold a weak back-reference to this Pollee without
// the Pollee needing to know about any particular Poller's bookkeeping.
func (p *Pollee) weakSelf() weak.Pointer[Pollee] {
	return weak.Make(p)
}

package poll

import (
	"sync"
	"weak"
)

// Poller observes one or more Pollees and records a (saturating) wake each
// time any of them becomes ready for an event the Poller asked about. It
// keeps an ordinary-pointer set of the Pollees it has registered with (to
// skip duplicate registrations) plus a weak.Pointer to each, which Close
// walks to unregister. Each Pollee keeps an ordinary pointer to every
// registered Poller (the Pollee.observers map keys), so neither side's
// lifetime is independent of the other until Close runs; nothing
// unregisters a Poller that is dropped without Close. See
// Pollee.unregister for the explicit-unregister path used by Close.
type Poller struct {
	mu      sync.Mutex
	tracked map[*Pollee]struct{}
	weaks   []weak.Pointer[Pollee]

	wakeMu sync.Mutex
	wakeCh chan struct{}
	woken  bool
}

// NewPoller returns a Poller with no tracked Pollees.
func NewPoller() *Poller {
	return &Poller{
		tracked: make(map[*Pollee]struct{}),
		wakeCh:  make(chan struct{}, 1),
	}
}

// trackPollee records that p has registered this Poller as an observer, so
// Close can unregister from it later.
func (po *Poller) trackPollee(p *Pollee) {
	po.mu.Lock()
	defer po.mu.Unlock()
	if _, ok := po.tracked[p]; ok {
		return
	}
	po.tracked[p] = struct{}{}
	po.weaks = append(po.weaks, p.weakSelf())
}

// notify records a wake: exactly one pending Wait call (if any) is
// released, and any future Wait returns immediately until consumed. This
// mirrors an eventfd-style saturating counter rather than a queue of
// individual notifications — spec §4.D only promises "you will learn the
// event happened", not how many times.
func (po *Poller) notify() {
	po.wakeMu.Lock()
	if !po.woken {
		po.woken = true
		select {
		case po.wakeCh <- struct{}{}:
		default:
		}
	}
	po.wakeMu.Unlock()
}

// Wait blocks until notify has been called at least once since the last
// Wait returned, or ch is closed (e.g. a context's Done channel), whichever
// comes first. Returns true if woken by a notification, false if done fired
// first.
func (po *Poller) Wait(done <-chan struct{}) bool {
	select {
	case <-po.wakeCh:
		po.wakeMu.Lock()
		po.woken = false
		po.wakeMu.Unlock()
		return true
	case <-done:
		return false
	}
}

// Close unregisters this Poller from every Pollee it has ever observed.
// Safe to call multiple times. Best-effort for Pollees already collected:
// their weak.Pointer simply resolves to nil and is skipped, matching spec
// §9's "best-effort via weak refs".
func (po *Poller) Close() {
	po.mu.Lock()
	weaks := po.weaks
	po.weaks = nil
	po.tracked = make(map[*Pollee]struct{})
	po.mu.Unlock()

	for _, wp := range weaks {
		if p := wp.Value(); p != nil {
			p.unregister(po)
		}
	}
}

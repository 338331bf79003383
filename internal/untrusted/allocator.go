package untrusted

import (
	"sync"
	"sync/atomic"

	"github.com/joeycumines/libos-core/internal/poll"
)

// Allocator hands out byte-granular regions from a slab shared with the
// host I/O primitive. It tracks total outstanding bytes so it can raise a
// low-memory signal for the page evictor (spec §4.K), grounded on the
// supplemented "observable low-watermark" idea (SPEC_FULL.md, supplemented
// feature #5) rather than a bare polled getter.
type Allocator struct {
	limit      uint64
	used       atomic.Uint64
	lowPollee  *poll.Pollee
	lowWater   uint64 // used/limit ratio, fixed-point out of 1024, above which "low" fires
	mu         sync.Mutex
	regions    map[*Region]struct{}
}

// LowMemoryEvent is the event bit set on the allocator's pollee while the
// allocator is under memory pressure.
const LowMemoryEvent poll.EventMask = 1

// NewAllocator creates an Allocator with the given byte limit. lowWaterPct
// is the utilization percentage (0-100) above which the low-memory pollee
// fires; 0 disables the signal (never reports low).
func NewAllocator(limit uint64, lowWaterPct int) *Allocator {
	if lowWaterPct < 0 {
		lowWaterPct = 0
	}
	if lowWaterPct > 100 {
		lowWaterPct = 100
	}
	return &Allocator{
		limit:     limit,
		lowPollee: poll.NewPollee(),
		lowWater:  uint64(lowWaterPct) * 1024 / 100,
		regions:   make(map[*Region]struct{}),
	}
}

// Region is a single allocation within the untrusted slab.
type Region struct {
	Bytes []byte
	size  uint64
}

// New allocates size bytes. align is accepted but ignored: it adds nothing
// to the used-byte count and is not enforced on the backing Go slice,
// since Go slices from make() are already suitably aligned for
// any scalar type up to the platform word size.
func (a *Allocator) New(size uint64, align uint64) *Region {
	if size == 0 {
		return &Region{Bytes: nil}
	}
	_ = align // documented no-op per above; kept for API fidelity with spec §4.A
	r := &Region{Bytes: make([]byte, size), size: size}

	a.mu.Lock()
	a.regions[r] = struct{}{}
	a.mu.Unlock()

	newUsed := a.used.Add(size)
	a.refreshWatermark(newUsed)
	return r
}

// Free releases a Region. Freeing the same Region twice is an invariant
// violation and panics, matching spec §9's "panics only on violations of
// internal invariants".
func (a *Allocator) Free(r *Region) {
	a.mu.Lock()
	if _, ok := a.regions[r]; !ok {
		a.mu.Unlock()
		panic("untrusted: double free or free of unknown region")
	}
	delete(a.regions, r)
	a.mu.Unlock()

	newUsed := a.used.Add(^(r.size - 1)) // atomic subtract
	r.Bytes = nil
	a.refreshWatermark(newUsed)
}

// Used returns the current outstanding byte count.
func (a *Allocator) Used() uint64 { return a.used.Load() }

// LowMemoryPollee exposes the low-watermark signal for the evictor (§4.K)
// to register a Poller against.
func (a *Allocator) LowMemoryPollee() *poll.Pollee { return a.lowPollee }

// IsLow reports whether the allocator currently considers itself under
// memory pressure.
func (a *Allocator) IsLow() bool {
	return a.lowPollee.Events()&LowMemoryEvent != 0
}

func (a *Allocator) refreshWatermark(used uint64) {
	if a.lowWater == 0 || a.limit == 0 {
		return
	}
	ratio := used * 1024 / a.limit
	if ratio >= a.lowWater {
		a.lowPollee.AddEvents(LowMemoryEvent)
	} else {
		a.lowPollee.DelEvents(LowMemoryEvent)
	}
}

// Box couples an allocation with a typed, marker-restricted view, freeing
// the backing Region exactly once (via Close). T must satisfy
// MaybeUntrusted: only whitelisted representations may live here.
type Box[T MaybeUntrusted] struct {
	region *Region
	alloc  *Allocator
	value  T
	closed bool
	mu     sync.Mutex
}

// NewBox allocates size bytes from alloc and wraps them with the given
// initial typed value.
func NewBox[T MaybeUntrusted](alloc *Allocator, size uint64, initial T) *Box[T] {
	return &Box[T]{
		region: alloc.New(size, 8),
		alloc:  alloc,
		value:  initial,
	}
}

// Value returns the typed view.
func (b *Box[T]) Value() T { return b.value }

// Bytes returns the raw backing storage.
func (b *Box[T]) Bytes() []byte {
	if b.region == nil {
		return nil
	}
	return b.region.Bytes
}

// Close frees the backing region. Safe to call more than once; only the
// first call frees.
func (b *Box[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	if b.region != nil {
		b.alloc.Free(b.region)
		b.region = nil
	}
}

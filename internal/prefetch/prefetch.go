// Package prefetch implements spec §4.L: SeqRdTracker, a fixed 3-slot
// sequential-read heuristic. Each slot tracks a sliding window of recently
// observed reads for one file; a read whose offset falls inside a slot's
// window is treated as sequential and grows that slot's prefetch size.
//
// Grounded on catrate/ring.go's fixed-capacity, mutex-guarded slot
// shape (a small fixed array of independently-locked state, victim chosen
// by a comparable field) generalized from catrate's single ring to three
// independently try-locked slots.
package prefetch

import "sync"

const (
	maxConcurrency   = 3
	minPrefetchSize  = 4096
	maxPrefetchSize  = 4096 * 32
	invalidPrefetch  = -1 // sentinel: usize::MAX in the original, -1 here since Go ints are signed
)

// window is an inclusive byte range [start, end], mirroring the original
// tracker's RangeInclusive<usize> rather than a half-open Go-style range:
// a window's own end is itself a sequential hit, since end is exactly
// "offset of the read that produced this window" + "its length", which is
// precisely the offset the next back-to-back sequential read starts at.
type window struct {
	start, end uint64
}

func (w window) contains(offset uint64) bool {
	return offset >= w.start && offset <= w.end
}

// slot is one tracked sequential-read window.
type slot struct {
	mu           sync.Mutex
	win          window
	prefetchSize int
}

// Tracker holds the fixed set of slots for one file (or one cache, per
// spec's wording — callers typically keep one Tracker per open file).
type Tracker struct {
	slots [maxConcurrency]*slot
}

// NewTracker creates a Tracker with all slots in the invalid (unset)
// state. Each slot's window is left at its Go zero value, window{0, 0} —
// the inclusive range [0, 0], which by construction contains offset 0,
// mirroring the original tracker's Tracker::new() initializing
// seq_window to the inclusive range 0..=0 so that the very first read of
// a file (offset 0) is recognized as sequential rather than missing.
func NewTracker() *Tracker {
	t := &Tracker{}
	for i := range t.slots {
		t.slots[i] = &slot{prefetchSize: invalidPrefetch}
	}
	return t
}

// SeqRd is returned on a sequential-read hit; Complete records the
// outcome. It does not hold the slot's lock: Accept releases the lock
// before returning, so other reads may use the slot until Complete
// relocks it.
type SeqRd struct {
	t      *Tracker
	s      *slot
	size   int    // prefetch size to use for this read, captured at Accept time
	offset uint64 // the offset this read was accepted at
	length int    // the length requested at Accept time (not necessarily readBytes)
}

// PrefetchSize returns how many extra bytes beyond the requested read
// should be prefetched for this hit.
func (r *SeqRd) PrefetchSize() int { return r.size }

// Complete advances the slot's window to
// [offset+readBytes/2, offset+readBytes] and doubles prefetch_size, capped
// at min(MAX_PREFETCH_SIZE, length*4) where length is the size requested at
// Accept time, all under the slot's lock.
func (r *SeqRd) Complete(readBytes int) {
	r.s.mu.Lock()
	r.s.win = window{
		start: r.offset + uint64(readBytes)/2,
		end:   r.offset + uint64(readBytes),
	}

	next := r.s.prefetchSize * 2
	cap_ := r.length * 4
	if cap_ > maxPrefetchSize {
		cap_ = maxPrefetchSize
	}
	if next > cap_ {
		next = cap_
	}
	if next < minPrefetchSize {
		next = minPrefetchSize
	}
	r.s.prefetchSize = next
	r.s.mu.Unlock()
}

// Accept tries each slot's try-lock, looking for a hit (offset within that
// slot's window). On a hit, returns a SeqRd (slot unlocked) with prefetch_size
// initialized to MIN_PREFETCH_SIZE if it was previously invalid. On a
// miss, resets the victim slot (the one with the greatest prefetch_size,
// with invalid winning as if it were +infinity) to a fresh window derived
// from this read, and returns nil.
func (t *Tracker) Accept(offset uint64, length int) *SeqRd {
	// beats reports whether candidate should replace the current victim:
	// invalid (unset) beats any valid size, and among valid sizes the
	// larger one wins, matching spec §4.L's "INVALID = usize::MAX wins".
	beats := func(candidate, current int) bool {
		if candidate == invalidPrefetch {
			return current != invalidPrefetch
		}
		if current == invalidPrefetch {
			return false
		}
		return candidate > current
	}

	var victim *slot
	victimSize := 0
	anyLocked := false

	for _, s := range t.slots {
		if !s.mu.TryLock() {
			continue
		}
		anyLocked = true

		if s.win.contains(offset) {
			if s.prefetchSize == invalidPrefetch {
				s.prefetchSize = minPrefetchSize
			}
			size := s.prefetchSize
			s.mu.Unlock()
			return &SeqRd{t: t, s: s, size: size, offset: offset, length: length}
		}

		if victim == nil || beats(s.prefetchSize, victimSize) {
			if victim != nil {
				victim.mu.Unlock()
			}
			victim = s
			victimSize = s.prefetchSize
			continue
		}
		s.mu.Unlock()
	}

	if !anyLocked || victim == nil {
		return nil
	}

	end := offset + uint64(length)
	victim.win = window{start: offset + uint64(length)/2, end: end}
	victim.prefetchSize = invalidPrefetch
	victim.mu.Unlock()
	return nil
}

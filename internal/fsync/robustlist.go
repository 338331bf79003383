package fsync

// Robust list cleanup (spec §4.I): on thread exit, walk a per-thread user
// pointer to a list of futex entries, bounded, releasing ownership of any
// futex the exiting thread held.

const robustListWalkBound = 2048

// WaitersFlag and OwnerDied mirror Linux's FUTEX_WAITERS / FUTEX_OWNER_DIED
// bits packed into the high bits of a robust-list futex word alongside the
// owning tid.
const (
	WaitersFlag uint32 = 1 << 31
	OwnerDied   uint32 = 1 << 30
	TidMask     uint32 = ^uint32(0) &^ (WaitersFlag | OwnerDied)
)

// RobustEntry is one node of a thread's robust list, as the caller's
// memory layout exposes it. FutexAddr is the address of the futex word the
// entry governs.
type RobustEntry struct {
	FutexAddr Addr
	Next      *RobustEntry // nil terminates the list
}

// CAS attempts to atomically update the word at addr, returning the value
// actually observed (Go-style CAS report via a loop is the caller's
// responsibility if it needs to retry); supplied by the caller since this
// package has no notion of the enclave's memory layout.
type CAS func(addr Addr, old, new uint32) (actual uint32, swapped bool)

// CleanupRobustList walks head up to robustListWalkBound entries. For each
// entry whose futex word's tid matches exitingTid, it CASes the word to
// (old&WaitersFlag)|OwnerDied and, if WaitersFlag was set, wakes one waiter
// on that address.
func (t *Table) CleanupRobustList(head *RobustEntry, exitingTid uint32, load Load, cas CAS) {
	n := 0
	for e := head; e != nil && n < robustListWalkBound; e, n = e.Next, n+1 {
		old := load(e.FutexAddr)
		tid := old & TidMask
		if tid != exitingTid {
			continue
		}
		for {
			newVal := (old & WaitersFlag) | OwnerDied
			actual, swapped := cas(e.FutexAddr, old, newVal)
			if swapped {
				if old&WaitersFlag != 0 {
					t.Wake(e.FutexAddr, 1)
				}
				break
			}
			old = actual
			if old&TidMask != tid {
				// Ownership already changed hands; nothing left to clean up.
				break
			}
		}
	}
}

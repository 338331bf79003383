package fsync

import (
	"sync"

	"github.com/joeycumines/libos-core/internal/errno"
	"github.com/joeycumines/libos-core/internal/wait"
)

// FlockType matches flock(2)'s LOCK_SH/LOCK_EX.
type FlockType int

const (
	FlockShared FlockType = iota
	FlockExclusive
)

// FileRef identifies an open file description, the unit flock locks
// against (per spec §4.I, "owner is an open file reference", distinct from
// range locks which are owned by pid). Any comparable value works; callers
// typically use a *struct pointer from their file table entry.
type FileRef any

// Flock is a per-file advisory lock: any number of shared holders, or
// exactly one exclusive holder.
type Flock struct {
	mu       sync.Mutex
	typ      FlockType
	holders  map[FileRef]struct{}
	waiters  *wait.WaiterQueue
}

// NewFlock creates an unlocked Flock.
func NewFlock() *Flock {
	return &Flock{holders: make(map[FileRef]struct{}), waiters: wait.NewWaiterQueue()}
}

// Lock acquires typ on behalf of ref. Nonblocking (blocking=false) returns
// EAGAIN immediately on conflict; blocking enqueues on the current holder
// and retries once woken.
func (f *Flock) Lock(ref FileRef, typ FlockType, blocking bool) error {
	for {
		f.mu.Lock()
		if f.tryAcquireLocked(ref, typ) {
			f.mu.Unlock()
			return nil
		}
		if !blocking {
			f.mu.Unlock()
			return errno.New(errno.EAGAIN, "flock: conflicting lock held")
		}
		w := wait.NewWaiter()
		f.waiters.Enqueue(w)
		f.mu.Unlock()

		w.Wait(nil, 0, nil)
	}
}

func (f *Flock) tryAcquireLocked(ref FileRef, typ FlockType) bool {
	if len(f.holders) == 0 {
		f.typ = typ
		f.holders[ref] = struct{}{}
		return true
	}
	if _, already := f.holders[ref]; already && len(f.holders) == 1 {
		// Same single holder re-locking (e.g. upgrading SH->EX) is allowed.
		f.typ = typ
		return true
	}
	if typ == FlockShared && f.typ == FlockShared {
		f.holders[ref] = struct{}{}
		return true
	}
	return false
}

// Unlock releases ref's hold. If the lock becomes free, wakes every
// waiter so they can race to re-acquire (standard flock semantics: no
// ordering guarantee among waiters).
func (f *Flock) Unlock(ref FileRef) {
	f.mu.Lock()
	delete(f.holders, ref)
	empty := len(f.holders) == 0
	f.mu.Unlock()

	if empty {
		f.waiters.WakeAll()
	}
}

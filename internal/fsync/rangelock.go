package fsync

import (
	"sync"

	"github.com/joeycumines/libos-core/internal/errno"
	"github.com/joeycumines/libos-core/internal/wait"
)

// LockType matches fcntl(2)'s F_RDLCK/F_WRLCK/F_UNLCK.
type LockType int

const (
	RDLCK LockType = iota
	WRLCK
	UNLCK
)

// InodeID identifies the inode a range-lock list belongs to. Opaque to
// this package; the VFS layer supplies a stable identity.
type InodeID uint64

// rangeLock is one entry in an inode's lock list.
type rangeLock struct {
	owner       int32 // owning pid
	typ         LockType
	start, end  uint64 // end is exclusive; an empty range (start == end) overlaps nothing
	waiters     *wait.WaiterQueue
}

func (r *rangeLock) overlaps(o *rangeLock) bool {
	return r.start < o.end && o.start < r.end
}

func (r *rangeLock) conflicts(o *rangeLock) bool {
	return r.owner != o.owner && r.overlaps(o) && (r.typ == WRLCK || o.typ == WRLCK)
}

// InodeLocks is the per-inode range-lock list.
type InodeLocks struct {
	mu    sync.Mutex
	locks []*rangeLock
}

// RangeLockTable tracks range-lock lists per inode.
type RangeLockTable struct {
	mu     sync.Mutex
	inodes map[InodeID]*InodeLocks
}

// NewRangeLockTable creates an empty table.
func NewRangeLockTable() *RangeLockTable {
	return &RangeLockTable{inodes: make(map[InodeID]*InodeLocks)}
}

func (t *RangeLockTable) inode(id InodeID) *InodeLocks {
	t.mu.Lock()
	defer t.mu.Unlock()
	il, ok := t.inodes[id]
	if !ok {
		il = &InodeLocks{}
		t.inodes[id] = il
	}
	return il
}

// GetLK implements F_GETLK: returns the first conflicting lock's descriptor
// (owner, type, start, end), or ok=false if UNLCK (no conflict).
func (t *RangeLockTable) GetLK(id InodeID, owner int32, typ LockType, start, end uint64) (conflictOwner int32, conflictType LockType, conflictStart, conflictEnd uint64, ok bool) {
	il := t.inode(id)
	req := &rangeLock{owner: owner, typ: typ, start: start, end: end}

	il.mu.Lock()
	defer il.mu.Unlock()
	for _, l := range il.locks {
		if req.conflicts(l) {
			return l.owner, l.typ, l.start, l.end, true
		}
	}
	return 0, UNLCK, 0, 0, false
}

// SetLK implements F_SETLK (nonblocking, fails EAGAIN on conflict) when
// blocking is false, or F_SETLKW (enqueues a waiter) when true.
func (t *RangeLockTable) SetLK(id InodeID, owner int32, typ LockType, start, end uint64, blocking bool) error {
	il := t.inode(id)
	req := &rangeLock{owner: owner, typ: typ, start: start, end: end}

	for {
		il.mu.Lock()
		var conflict *rangeLock
		for _, l := range il.locks {
			if req.conflicts(l) {
				conflict = l
				break
			}
		}
		if conflict == nil {
			if typ == UNLCK {
				il.unlockLocked(owner, start, end)
			} else {
				il.mergeLocked(req)
			}
			il.mu.Unlock()
			return nil
		}
		if !blocking {
			il.mu.Unlock()
			return errno.New(errno.EAGAIN, "rangelock: conflicting lock held")
		}
		if conflict.waiters == nil {
			conflict.waiters = wait.NewWaiterQueue()
		}
		w := wait.NewWaiter()
		conflict.waiters.Enqueue(w)
		il.mu.Unlock()

		w.Wait(nil, 0, nil)
	}
}

// mergeLocked adds req to the owner's existing ranges, merging adjacent or
// overlapping same-type ranges from the same owner and splitting any
// differently-typed overlap from the same owner, per spec §4.I ("a request
// merges with/splits existing ranges under the same owner").
func (il *InodeLocks) mergeLocked(req *rangeLock) {
	var kept []*rangeLock
	merged := *req
	for _, l := range il.locks {
		adjacent := l.typ == req.typ && (l.end == req.start || l.start == req.end)
		if l.owner != req.owner || (!l.overlaps(req) && !adjacent) {
			kept = append(kept, l)
			continue
		}
		if l.typ == req.typ {
			if l.start < merged.start {
				merged.start = l.start
			}
			if l.end > merged.end {
				merged.end = l.end
			}
			continue
		}
		// Different type, same owner: split l around the new range.
		if l.start < req.start {
			kept = append(kept, &rangeLock{owner: l.owner, typ: l.typ, start: l.start, end: req.start})
		}
		if l.end > req.end {
			kept = append(kept, &rangeLock{owner: l.owner, typ: l.typ, start: req.end, end: l.end})
		}
	}
	kept = append(kept, &merged)
	il.locks = kept
}

// unlockLocked removes [start,end) owned by owner, splitting any
// partially-overlapping same-owner range and waking waiters attached to
// removed ranges.
func (il *InodeLocks) unlockLocked(owner int32, start, end uint64) {
	var kept []*rangeLock
	for _, l := range il.locks {
		if l.owner != owner || l.start >= end || start >= l.end {
			kept = append(kept, l)
			continue
		}
		if l.waiters != nil {
			l.waiters.WakeAll()
		}
		if l.start < start {
			kept = append(kept, &rangeLock{owner: l.owner, typ: l.typ, start: l.start, end: start})
		}
		if l.end > end {
			kept = append(kept, &rangeLock{owner: l.owner, typ: l.typ, start: end, end: l.end})
		}
	}
	il.locks = kept
}

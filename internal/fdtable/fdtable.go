// Package fdtable implements spec §4.O: the per-process file descriptor
// table and the FileHandle union over concrete file kinds.
//
// Grounded directly on the teacher's eventloop/poller_linux.go fixed-array
// fd-indexed table (there: [maxFDs]fdInfo under an RWMutex); here
// generalized to a growable slice since a process's fd space isn't bounded
// the way the teacher's single poller's registered-fd set is.
package fdtable

import (
	"sync"

	"github.com/joeycumines/libos-core/internal/errno"
)

// FileHandle is the sum-over-concrete-file-kinds interface every entry in
// the table satisfies. Concrete kinds (pollable socket, sync inode, async
// inode, timer, block-device-as-file, epoll) live in their own packages
// and implement this by embedding a common base or by hand; fdtable itself
// only needs uniform Close for cleanup.
type FileHandle interface {
	Close() error
}

type entry struct {
	file    FileHandle
	cloexec bool
}

// Table is one process's fd table.
type Table struct {
	mu      sync.RWMutex
	entries []*entry // index i holds fd i; nil means free
}

// New creates an empty fd table.
func New() *Table {
	return &Table{}
}

// Put inserts file at the smallest free fd, returning it.
func (t *Table) Put(file FileHandle, cloexec bool) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	fd := t.smallestFreeLocked()
	t.setLocked(fd, file, cloexec)
	return fd
}

// PutAt installs file at exactly fd, growing the table if needed and
// closing (per dup2 semantics, the caller's responsibility - this package
// only overwrites) whatever previously occupied fd. Used by dup2.
func (t *Table) PutAt(fd int, file FileHandle, cloexec bool) (previous FileHandle) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if fd < len(t.entries) && t.entries[fd] != nil {
		previous = t.entries[fd].file
	}
	t.setLocked(fd, file, cloexec)
	return previous
}

// Dup duplicates fd's entry at the smallest fd >= minFd, sharing the same
// underlying FileHandle.
func (t *Table) Dup(fd int, minFd int, cloexec bool) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if fd < 0 || fd >= len(t.entries) || t.entries[fd] == nil {
		return -1, errno.New(errno.EBADF, "fdtable: dup of closed fd")
	}
	file := t.entries[fd].file
	newFd := t.smallestFreeFromLocked(minFd)
	t.setLocked(newFd, file, cloexec)
	return newFd, nil
}

// Del removes fd's entry, returning the FileHandle that was there so the
// caller can Close it (closing is not this package's job: a dup'd fd may
// still reference the same FileHandle from another slot).
func (t *Table) Del(fd int) (FileHandle, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if fd < 0 || fd >= len(t.entries) || t.entries[fd] == nil {
		return nil, false
	}
	e := t.entries[fd]
	t.entries[fd] = nil
	return e.file, true
}

// Get returns fd's FileHandle.
func (t *Table) Get(fd int) (FileHandle, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if fd < 0 || fd >= len(t.entries) || t.entries[fd] == nil {
		return nil, false
	}
	return t.entries[fd].file, true
}

// SetCloexec flips the close-on-exec flag for fd.
func (t *Table) SetCloexec(fd int, cloexec bool) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if fd < 0 || fd >= len(t.entries) || t.entries[fd] == nil {
		return false
	}
	t.entries[fd].cloexec = cloexec
	return true
}

// Cloexec reports fd's close-on-exec flag.
func (t *Table) Cloexec(fd int) (bool, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if fd < 0 || fd >= len(t.entries) || t.entries[fd] == nil {
		return false, false
	}
	return t.entries[fd].cloexec, true
}

// CloneForSpawn builds a new Table for a freshly spawned process: entries
// with cloexec=false carry over (sharing the FileHandle), entries with
// cloexec=true are dropped, per spec §4.O.
func (t *Table) CloneForSpawn() *Table {
	t.mu.RLock()
	defer t.mu.RUnlock()
	clone := &Table{entries: make([]*entry, len(t.entries))}
	for i, e := range t.entries {
		if e == nil || e.cloexec {
			continue
		}
		clone.entries[i] = &entry{file: e.file, cloexec: false}
	}
	return clone
}

func (t *Table) smallestFreeLocked() int {
	return t.smallestFreeFromLocked(0)
}

func (t *Table) smallestFreeFromLocked(minFd int) int {
	if minFd < 0 {
		minFd = 0
	}
	for i := minFd; i < len(t.entries); i++ {
		if t.entries[i] == nil {
			return i
		}
	}
	if minFd > len(t.entries) {
		return minFd
	}
	return len(t.entries)
}

func (t *Table) setLocked(fd int, file FileHandle, cloexec bool) {
	for fd >= len(t.entries) {
		t.entries = append(t.entries, nil)
	}
	t.entries[fd] = &entry{file: file, cloexec: cloexec}
}

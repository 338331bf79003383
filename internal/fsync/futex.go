// Package fsync implements spec §4.I: the futex table, per-thread robust
// list cleanup, per-inode POSIX range locks, and per-file flock.
//
// Grounded on internal/wait's WaiterQueue (a futex bucket is exactly a
// waiter queue keyed by address) plus the teacher's poller_linux.go
// direct-indexed-array idiom, here adapted to a sharded map since user
// virtual addresses are not dense like file descriptors.
package fsync

import (
	"sync"

	"github.com/joeycumines/libos-core/internal/errno"
	"github.com/joeycumines/libos-core/internal/wait"
)

// Futex op bits, mapped onto Linux's futex(2) op/flag values.
const (
	OpWait = iota
	OpWake
	OpRequeue
	OpCmpRequeue
	OpWakeOp
	OpWaitBitset
)

// FlagPrivate is informational only: this implementation has no concept of
// shared-across-process-boundary futex tables distinct from private ones
// (there is exactly one enclave address space), so the bit is accepted and
// ignored rather than rejected, matching spec §4.I ("a PRIVATE flag that is
// informational").
const FlagPrivate = 1 << 7

// Addr is a user virtual address, the futex table's key.
type Addr uintptr

type bucket struct {
	mu    sync.Mutex
	queue *wait.WaiterQueue
}

// Table is a process-wide futex table keyed by user virtual address.
type Table struct {
	mu      sync.Mutex
	buckets map[Addr]*bucket
}

// NewTable creates an empty futex table.
func NewTable() *Table {
	return &Table{buckets: make(map[Addr]*bucket)}
}

func (t *Table) bucketFor(addr Addr) *bucket {
	t.mu.Lock()
	defer t.mu.Unlock()
	b, ok := t.buckets[addr]
	if !ok {
		b = &bucket{queue: wait.NewWaiterQueue()}
		t.buckets[addr] = b
	}
	return b
}

// pruneIfEmpty removes a bucket with no waiters left, so the table doesn't
// grow unboundedly across the lifetime of a long-running process.
func (t *Table) pruneIfEmpty(addr Addr, b *bucket) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if cur, ok := t.buckets[addr]; ok && cur == b && b.queue.Len() == 0 {
		delete(t.buckets, addr)
	}
}

// Load reads *addr; supplied by the caller since this package has no
// notion of the enclave's memory layout.
type Load func(addr Addr) uint32

// Wait atomically checks *addr == expected (via load) under the bucket
// lock and, if so, enqueues a waiter and suspends. Returns EAGAIN
// immediately (without suspending) if the value doesn't match, matching
// Linux's FUTEX_WAIT semantics.
func (t *Table) Wait(addr Addr, expected uint32, load Load, w *wait.Waiter) error {
	b := t.bucketFor(addr)
	b.mu.Lock()
	if load(addr) != expected {
		b.mu.Unlock()
		return errno.New(errno.EAGAIN, "futex: value changed before wait")
	}
	b.queue.Enqueue(w)
	b.mu.Unlock()

	err := w.Wait(nil, 0, nil)
	b.queue.Remove(w)
	t.pruneIfEmpty(addr, b)
	return err
}

// Wake dequeues and wakes up to n waiters parked on addr, returning the
// number actually woken.
func (t *Table) Wake(addr Addr, n int) int {
	b := t.bucketFor(addr)
	woken := b.queue.WakeN(n)
	t.pruneIfEmpty(addr, b)
	return woken
}

// Requeue moves up to requeueN waiters from src to dst without waking them
// (they remain parked, just on a different bucket's queue), matching
// FUTEX_REQUEUE. It additionally wakes up to wakeN waiters from src before
// the requeue, matching FUTEX_CMP_REQUEUE's combined semantics (the "CMP"
// value comparison itself is the caller's responsibility via Load, same as
// Wait).
func (t *Table) Requeue(src, dst Addr, wakeN, requeueN int) (woken, requeued int) {
	srcB := t.bucketFor(src)
	dstB := t.bucketFor(dst)

	woken = srcB.queue.WakeN(wakeN)

	for requeued < requeueN {
		w := srcB.queue.DequeueFront()
		if w == nil {
			break
		}
		dstB.queue.Enqueue(w)
		requeued++
	}

	t.pruneIfEmpty(src, srcB)
	return woken, requeued
}

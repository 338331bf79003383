// Package lru implements spec §4.B: an intrusive doubly-linked LRU list.
// Insertion and touch push an entry to the front (most recently used); the
// back is the eviction candidate.
//
// Grounded on original_source/src/libos/crates/async-file/src/util/lru_list.rs
// (LruList/LruEntry/ObjectId): each entry carries the id of the list it
// currently belongs to so double-insertion or removal-from-the-wrong-list
// is caught as an invariant violation rather than silently corrupting list
// pointers, the same role intrusive_collections' debug assertions play in
// the original. Go has no intrusive_collections crate in the example corpus
// (the pack's closest analogue, catrate/ring.go, uses a flat slot array
// rather than a linked list because its container is fixed-capacity), so
// the list itself is hand-rolled against a *List[T] field, the idiomatic
// substitute for the Rust crate's adapter macro.
package lru

import "sync/atomic"

var nextListID atomic.Uint64

func newListID() uint64 {
	return nextListID.Add(1)
}

// Entry is one node in a List. The zero value is not usable; obtain one via
// List.NewEntry.
type Entry[T any] struct {
	Value      T
	listID     atomic.Uint64
	prev, next *Entry[T]
}

// List is an intrusive LRU list of *Entry[T]. Front is most recently used,
// back is least recently used (the eviction end). Create one with New: the
// zero value has list id 0, the same id a detached entry carries, so its
// membership checks cannot tell members from detached entries.
type List[T any] struct {
	id         uint64
	front, back *Entry[T]
	len        int
}

// New returns an empty List.
func New[T any]() *List[T] {
	return &List[T]{id: newListID()}
}

// NewEntry allocates a detached entry carrying value, not yet a member of
// any list.
func (l *List[T]) NewEntry(value T) *Entry[T] {
	return &Entry[T]{Value: value}
}

// Contains reports whether e is currently a member of this list.
func (l *List[T]) Contains(e *Entry[T]) bool {
	return e.listID.Load() == l.id
}

// Insert pushes e to the front (most recently used position). Panics if e
// is already a member of any list.
func (l *List[T]) Insert(e *Entry[T]) {
	if !e.listID.CompareAndSwap(0, l.id) {
		panic("lru: entry already belongs to a list")
	}
	e.prev = nil
	e.next = l.front
	if l.front != nil {
		l.front.prev = e
	} else {
		l.back = e
	}
	l.front = e
	l.len++
}

// Touch moves e to the front, marking it most recently used. Panics if e
// does not belong to this list.
func (l *List[T]) Touch(e *Entry[T]) {
	l.doRemove(e)
	l.Insert(e)
}

// Remove detaches e from this list. Panics if e does not belong to this
// list.
func (l *List[T]) Remove(e *Entry[T]) {
	if e.listID.Load() != l.id {
		panic("lru: remove of entry not owned by this list")
	}
	l.doRemove(e)
}

func (l *List[T]) doRemove(e *Entry[T]) {
	if !e.listID.CompareAndSwap(l.id, 0) {
		panic("lru: entry not owned by this list")
	}
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		l.front = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		l.back = e.prev
	}
	e.prev, e.next = nil, nil
	l.len--
}

// Evict removes and returns the least-recently-used entry, or nil if empty.
func (l *List[T]) Evict() *Entry[T] {
	e := l.back
	if e == nil {
		return nil
	}
	l.doRemove(e)
	return e
}

// EvictN removes and returns up to maxCount least-recently-used entries.
func (l *List[T]) EvictN(maxCount int) []*Entry[T] {
	if maxCount <= 0 {
		return nil
	}
	result := make([]*Entry[T], 0, maxCount)
	for len(result) < maxCount {
		e := l.Evict()
		if e == nil {
			break
		}
		result = append(result, e)
	}
	return result
}

// EvictNWith removes and returns up to maxCount entries satisfying pred,
// scanning from the back (least recently used) towards the front and
// skipping (without evicting) entries pred rejects.
func (l *List[T]) EvictNWith(maxCount int, pred func(T) bool) []*Entry[T] {
	var result []*Entry[T]
	if maxCount <= 0 {
		return result
	}
	for cur := l.back; cur != nil; {
		prev := cur.prev
		if pred(cur.Value) {
			l.doRemove(cur)
			result = append(result, cur)
			if len(result) >= maxCount {
				break
			}
		}
		cur = prev
	}
	return result
}

// Len returns the number of entries currently in the list.
func (l *List[T]) Len() int { return l.len }

// Each calls f for every entry from front (most recently used) to back,
// stopping early if f returns false.
func (l *List[T]) Each(f func(*Entry[T]) bool) {
	for cur := l.front; cur != nil; cur = cur.next {
		if !f(cur) {
			return
		}
	}
}

// ToSlice returns every value in front-to-back order.
func (l *List[T]) ToSlice() []T {
	out := make([]T, 0, l.len)
	l.Each(func(e *Entry[T]) bool {
		out = append(out, e.Value)
		return true
	})
	return out
}

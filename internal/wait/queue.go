package wait

import "sync"

// WaiterQueue is an intrusive FIFO of parked Waiters. WakeN wakes from the
// head and removes each waiter it wakes, so older waiters always wake first
// and repeated calls move forward through the queue without a separate
// cursor (spec §4.C).
type WaiterQueue struct {
	mu         sync.Mutex
	head, tail *Waiter
	len        int
}

// NewWaiterQueue returns an empty queue.
func NewWaiterQueue() *WaiterQueue {
	return &WaiterQueue{}
}

// Enqueue appends w to the tail. w must not already belong to a queue.
func (q *WaiterQueue) Enqueue(w *Waiter) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if w.queue != nil {
		panic("wait: waiter already enqueued on a queue")
	}
	w.queue = q
	w.prev = q.tail
	w.next = nil
	if q.tail != nil {
		q.tail.next = w
	} else {
		q.head = w
	}
	q.tail = w
	q.len++
}

// Remove detaches w from whichever position it occupies. No-op if w is not
// on this queue.
func (q *WaiterQueue) Remove(w *Waiter) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.removeLocked(w)
}

func (q *WaiterQueue) removeLocked(w *Waiter) {
	if w.queue != q {
		return
	}
	if w.prev != nil {
		w.prev.next = w.next
	} else {
		q.head = w.next
	}
	if w.next != nil {
		w.next.prev = w.prev
	} else {
		q.tail = w.prev
	}
	w.prev, w.next, w.queue = nil, nil, nil
	q.len--
}

// Len reports the number of waiters currently parked.
func (q *WaiterQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.len
}

// WakeOne wakes and dequeues the waiter at the head, returning true if one
// was woken.
func (q *WaiterQueue) WakeOne() bool {
	return q.WakeN(1) == 1
}

// WakeN wakes and dequeues up to n waiters from the head, in FIFO order,
// returning the number actually woken.
func (q *WaiterQueue) WakeN(n int) int {
	if n <= 0 {
		return 0
	}
	q.mu.Lock()
	var woken []*Waiter
	for cur := q.head; cur != nil && len(woken) < n; {
		next := cur.next
		q.removeLocked(cur)
		woken = append(woken, cur)
		cur = next
	}
	q.mu.Unlock()

	for _, w := range woken {
		w.Wake()
	}
	return len(woken)
}

// WakeAll wakes and dequeues every parked waiter.
func (q *WaiterQueue) WakeAll() int {
	return q.WakeN(q.Len())
}

// DequeueFront removes and returns the waiter at the head without waking
// it, or nil if empty. Used by futex requeue (FUTEX_REQUEUE/
// FUTEX_CMP_REQUEUE), which moves still-parked waiters onto a different
// queue rather than waking them.
func (q *WaiterQueue) DequeueFront() *Waiter {
	q.mu.Lock()
	defer q.mu.Unlock()
	w := q.head
	if w == nil {
		return nil
	}
	q.removeLocked(w)
	return w
}

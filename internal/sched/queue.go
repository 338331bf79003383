package sched

import "sort"

// runQueue is a multilevel queue of runnable tasks indexed by effective
// priority: each level is a plain FIFO, and dequeue always drains the
// highest present level first.
type runQueue struct {
	levels map[int32][]*Task
	keys   []int32 // kept sorted descending; rebuilt lazily on level add
	dirty  bool
}

func newRunQueue() *runQueue {
	return &runQueue{levels: make(map[int32][]*Task)}
}

func (q *runQueue) push(t *Task) {
	prio := t.EffectivePriority()
	if _, ok := q.levels[prio]; !ok {
		q.dirty = true
	}
	q.levels[prio] = append(q.levels[prio], t)
}

// pop removes and returns the task at the front of the highest-priority
// nonempty level, or nil if the queue is empty.
func (q *runQueue) pop() *Task {
	if q.dirty {
		q.rebuildKeys()
	}
	for len(q.keys) > 0 {
		top := q.keys[0]
		bucket := q.levels[top]
		if len(bucket) == 0 {
			delete(q.levels, top)
			q.keys = q.keys[1:]
			continue
		}
		t := bucket[0]
		if len(bucket) == 1 {
			delete(q.levels, top)
			q.keys = q.keys[1:]
		} else {
			q.levels[top] = bucket[1:]
		}
		return t
	}
	return nil
}

func (q *runQueue) rebuildKeys() {
	keys := make([]int32, 0, len(q.levels))
	for k := range q.levels {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] > keys[j] })
	q.keys = keys
	q.dirty = false
}

// len returns the total number of queued tasks across all levels.
func (q *runQueue) len() int {
	n := 0
	for _, bucket := range q.levels {
		n += len(bucket)
	}
	return n
}

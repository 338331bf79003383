package sched

import (
	"sync"
	"sync/atomic"
)

// VCPU is one scheduling domain: a run queue plus the wake channel the
// executor's dequeue loop blocks on when the queue is empty. The
// buffered-channel-plus-dedup-flag shape is grounded on the teacher's
// fastWakeupCh/wakeUpSignalPending pair in eventloop/loop.go, generalized
// from one loop to N independently-woken vCPUs.
type VCPU struct {
	id int

	mu    sync.Mutex
	queue *runQueue

	wakeCh  chan struct{}
	pending atomic.Bool
}

func newVCPU(id int) *VCPU {
	return &VCPU{id: id, queue: newRunQueue(), wakeCh: make(chan struct{}, 1)}
}

// ID returns this vCPU's index.
func (v *VCPU) ID() int { return v.id }

// Len reports the number of tasks currently queued on this vCPU, used by
// the victim selector to estimate load.
func (v *VCPU) Len() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.queue.len()
}

// WakeCh is the channel the executor loop selects on while idle.
func (v *VCPU) WakeCh() <-chan struct{} { return v.wakeCh }

func (v *VCPU) wake() {
	if v.pending.CompareAndSwap(false, true) {
		select {
		case v.wakeCh <- struct{}{}:
		default:
		}
	}
}

func (v *VCPU) ClearWake() {
	v.pending.Store(false)
}

func (v *VCPU) push(t *Task) {
	v.mu.Lock()
	v.queue.push(t)
	v.mu.Unlock()
	v.wake()
}

// Dequeue pops the highest-priority ready task on this vCPU, clearing its
// is_enqueued flag, or returns nil if nothing is ready.
func (v *VCPU) Dequeue() *Task {
	v.mu.Lock()
	t := v.queue.pop()
	v.mu.Unlock()
	if t != nil {
		t.ClearEnqueued()
	}
	return t
}

// Scheduler owns the fixed set of vCPUs established at init and implements
// Enqueue's target-selection rule (spec §4.F): affinity-restricted,
// preferring the task's last-assigned vCPU, falling back to the
// least-loaded vCPU the affinity allows.
type Scheduler struct {
	vcpus []*VCPU
}

// New creates a Scheduler with n vCPUs.
func New(n int) *Scheduler {
	if n < 1 {
		n = 1
	}
	s := &Scheduler{vcpus: make([]*VCPU, n)}
	for i := range s.vcpus {
		s.vcpus[i] = newVCPU(i)
	}
	return s
}

// NumVCPU returns the number of vCPUs.
func (s *Scheduler) NumVCPU() int { return len(s.vcpus) }

// VCPU returns the vCPU at index i.
func (s *Scheduler) VCPU(i int) *VCPU { return s.vcpus[i] }

// Enqueue implements spec §4.F's enqueue: if the task is already enqueued,
// no-op. Otherwise mark it enqueued, pick a target vCPU, and push.
func (s *Scheduler) Enqueue(t *Task) {
	if t.MarkEnqueued() {
		return // already enqueued
	}
	target := s.selectTarget(t)
	t.SetLastAssignedCPU(target.id)
	target.push(t)
}

// selectTarget implements "affinity ∩ available; prefer last vCPU; fall
// back to least-loaded per the victim selector".
func (s *Scheduler) selectTarget(t *Task) *VCPU {
	last := t.LastAssignedCPU()
	if last >= 0 && last < len(s.vcpus) && t.Affinity.Allows(last) {
		return s.vcpus[last]
	}
	return s.victim(t.Affinity)
}

// victim scans every vCPU the affinity set allows and returns the one with
// the fewest queued tasks. No corpus precedent for cross-vCPU load
// balancing exists (the teacher runs a single loop); resolved per spec §9
// as a plain least-loaded scan, the simplest policy that preserves the
// scheduler's invariants.
func (s *Scheduler) victim(aff Affinity) *VCPU {
	var best *VCPU
	bestLen := -1
	for _, v := range s.vcpus {
		if !aff.Allows(v.id) {
			continue
		}
		n := v.Len()
		if best == nil || n < bestLen {
			best = v
			bestLen = n
		}
	}
	if best == nil {
		// Affinity excluded every vCPU; fall back to vCPU 0 rather than
		// dropping the task, since the alternative is an unrunnable task.
		return s.vcpus[0]
	}
	return best
}

// WakeAll wakes every vCPU's dequeue loop, used on shutdown (spec §4.G).
func (s *Scheduler) WakeAll() {
	for _, v := range s.vcpus {
		v.wake()
	}
}

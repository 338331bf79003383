// Package sched implements spec §4.F: the Task type and per-vCPU local
// scheduler. Tasks are cooperative futures; the scheduler only decides
// which runnable task to hand the executor next, and adjusts a priority
// bias in response to the signals the executor reports after each poll.
//
// Grounded on the teacher's eventloop state-machine idiom (state.go's
// FastState: atomic CAS transitions, no locks on the hot path) applied to
// per-task scheduling state instead of per-loop lifecycle state.
package sched

import (
	"sync/atomic"

	"github.com/joeycumines/libos-core/internal/handle"
)

const (
	minPrioAdjust = -8
	maxPrioAdjust = 8
)

// Future is the cooperative unit of work a Task wraps. Poll returns true
// when the task has completed and should not be polled again.
type Future interface {
	Poll() (done bool)
}

// Affinity restricts which vCPUs a task may run on. A nil or empty set
// means "any vCPU".
type Affinity map[int]struct{}

// Allows reports whether vcpu is permitted by this affinity set.
func (a Affinity) Allows(vcpu int) bool {
	if len(a) == 0 {
		return true
	}
	_, ok := a[vcpu]
	return ok
}

// Task is one schedulable unit: an id, a boxed future, and the scheduling
// state the local scheduler and executor mutate (base priority, the
// adjustable bias, enqueue/timeslice bookkeeping, and affinity).
type Task struct {
	ID     handle.Handle
	Future Future

	basePrio   int32
	prioAdjust atomic.Int32

	isEnqueued atomic.Bool

	timesliceMs     atomic.Int64
	remainingMs     atomic.Int64
	lastAssignedCPU atomic.Int32

	Affinity Affinity
}

// NewTask wraps f as a schedulable Task with the given base priority
// (higher runs first). id should be unique within the executor; callers
// typically obtain it from a shared handle.Generator.
func NewTask(id handle.Handle, f Future, basePrio int32) *Task {
	t := &Task{ID: id, Future: f, basePrio: basePrio}
	t.lastAssignedCPU.Store(-1)
	return t
}

// EffectivePriority returns base priority plus the current adjustment bias.
func (t *Task) EffectivePriority() int32 {
	return t.basePrio + t.prioAdjust.Load()
}

// ReportSleep rewards an I/O-bound task: prio_adjust += 1, capped at +8.
func (t *Task) ReportSleep() {
	t.bumpAdjust(1, maxPrioAdjust)
}

// ReportPreemption penalizes a CPU-bound task: prio_adjust -= 1, floored at
// -8. Called by the executor when a task's timeslice is exhausted at a
// Pending return.
func (t *Task) ReportPreemption() {
	t.bumpAdjust(-1, minPrioAdjust)
}

// ReportYield applies the same -1 step as preemption but never drives the
// adjustment below 0: cooperative yielding is neutral, not penalized beyond
// undoing any accumulated I/O-bound reward.
func (t *Task) ReportYield() {
	for {
		cur := t.prioAdjust.Load()
		next := cur - 1
		if next < 0 {
			next = 0
		}
		if next == cur || t.prioAdjust.CompareAndSwap(cur, next) {
			return
		}
	}
}

func (t *Task) bumpAdjust(delta, limit int32) {
	for {
		cur := t.prioAdjust.Load()
		next := cur + delta
		if delta > 0 && next > limit {
			next = limit
		}
		if delta < 0 && next < limit {
			next = limit
		}
		if next == cur || t.prioAdjust.CompareAndSwap(cur, next) {
			return
		}
	}
}

// MarkEnqueued sets is_enqueued, returning false if it was already set (the
// caller's enqueue attempt should then no-op, per spec §4.F).
func (t *Task) MarkEnqueued() (wasAlreadyEnqueued bool) {
	return !t.isEnqueued.CompareAndSwap(false, true)
}

// ClearEnqueued clears is_enqueued; called by dequeue.
func (t *Task) ClearEnqueued() {
	t.isEnqueued.Store(false)
}

// Timeslice returns the currently assigned timeslice, and whether one has
// been assigned yet (zero means "needs assignment at next dequeue").
func (t *Task) Timeslice() (ms int64, assigned bool) {
	ms = t.timesliceMs.Load()
	return ms, ms != 0
}

// AssignTimeslice sets the timeslice (and resets remaining to match) if one
// has not already been assigned; a no-op otherwise, per spec §4.F ("at
// dequeue, if the task's timeslice is zero, (re)assign ... otherwise
// keep").
func (t *Task) AssignTimeslice(ms int64) {
	if t.timesliceMs.CompareAndSwap(0, ms) {
		t.remainingMs.Store(ms)
	}
}

// Tick deducts elapsed run time from the remaining timeslice, returning
// true if it has now reached zero or below (the task should be preempted
// at its next Pending return).
func (t *Task) Tick(elapsedMs int64) (exhausted bool) {
	remaining := t.remainingMs.Add(-elapsedMs)
	return remaining <= 0
}

// ResetTimeslice clears the assigned timeslice so the next dequeue
// reassigns one, e.g. after a preemption has been recorded.
func (t *Task) ResetTimeslice() {
	t.timesliceMs.Store(0)
	t.remainingMs.Store(0)
}

// LastAssignedCPU returns the vCPU this task last ran on, or -1 if never
// assigned.
func (t *Task) LastAssignedCPU() int {
	return int(t.lastAssignedCPU.Load())
}

// SetLastAssignedCPU records which vCPU a task was placed on, used by
// Scheduler.Enqueue's "prefer last vCPU" rule (see selectTarget).
func (t *Task) SetLastAssignedCPU(vcpu int) {
	t.lastAssignedCPU.Store(int32(vcpu))
}

// Package executor implements spec §4.G: one cooperative run loop per
// vCPU, driving sched.Task futures to completion and reporting timeslice
// exhaustion back to the scheduler as a preemption.
//
// Grounded on the teacher's eventloop/loop.go Run loop shape (poll for
// work, block on a wake channel when idle, check a shutdown flag each
// iteration) generalized from one loop/goroutine to N, one per vCPU.
package executor

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/joeycumines/libos-core/internal/clock"
	"github.com/joeycumines/libos-core/internal/logging"
	"github.com/joeycumines/libos-core/internal/sched"
	"github.com/joeycumines/libos-core/internal/timer"
)

// Executor runs sched.Task futures across the scheduler's fixed set of
// vCPUs, each on its own goroutine.
type Executor struct {
	sched  *sched.Scheduler
	wheel  *timer.Wheel
	clock  clock.Source
	log    logging.Logger
	shut   atomic.Bool
	wg     sync.WaitGroup
	locked sync.Map // *sched.Task -> int (owning vCPU id), guards "already running elsewhere"
}

// New creates an Executor over an already-constructed Scheduler and timer
// Wheel. log may be nil (defaults to a no-op logger).
func New(s *sched.Scheduler, wheel *timer.Wheel, clk clock.Source, log logging.Logger) *Executor {
	if log == nil {
		log = logging.Nop()
	}
	return &Executor{sched: s, wheel: wheel, clock: clk, log: log}
}

// Start launches one goroutine per vCPU plus the timer driver goroutine.
// Call Shutdown to stop them and Wait to block until they exit.
func (e *Executor) Start() {
	for i := 0; i < e.sched.NumVCPU(); i++ {
		e.wg.Add(1)
		go e.runVCPU(e.sched.VCPU(i))
	}
	e.wg.Add(1)
	go e.runTimerDriver()
}

// Shutdown sets the stop flag and wakes every vCPU and the timer driver so
// they observe it promptly, matching spec §4.G's "Shutdown sets a flag and
// unparks all vCPUs and the timer wheel."
func (e *Executor) Shutdown() {
	e.shut.Store(true)
	e.sched.WakeAll()
	e.wheel.Close()
}

// Wait blocks until every vCPU goroutine and the timer driver have exited.
func (e *Executor) Wait() {
	e.wg.Wait()
}

func (e *Executor) runVCPU(v *sched.VCPU) {
	defer e.wg.Done()
	for !e.shut.Load() {
		t := v.Dequeue()
		if t == nil {
			select {
			case <-v.WakeCh():
				v.ClearWake()
			case <-time.After(5 * time.Millisecond):
				// periodic wake to re-check the shutdown flag even if
				// nothing ever pushes to this vCPU again
			}
			continue
		}
		e.runOne(v, t)
	}
}

func (e *Executor) runOne(v *sched.VCPU, t *sched.Task) {
	if _, already := e.locked.LoadOrStore(t, v.ID()); already {
		// Another vCPU is mid-poll on this task's future (possible since a
		// wake during execution can re-enqueue it elsewhere); push it back
		// and let that vCPU's completion ordering win.
		e.sched.Enqueue(t)
		return
	}
	defer e.locked.Delete(t)

	ms, assigned := t.Timeslice()
	if !assigned {
		ms = sched.TimesliceFor(t.EffectivePriority())
		t.AssignTimeslice(ms)
	}

	start := e.clock.Now()
	done := t.Future.Poll()
	elapsed := e.clock.Now().Sub(start).Milliseconds()
	if elapsed == 0 {
		elapsed = 1
	}

	if done {
		return
	}

	if t.Tick(elapsed) {
		t.ReportPreemption()
		t.ResetTimeslice()
	}
}

func (e *Executor) runTimerDriver() {
	defer e.wg.Done()
	for !e.shut.Load() {
		deadline, ok := e.wheel.NextDeadline()
		now := e.clock.Now()
		var sleep time.Duration
		if !ok {
			sleep = 5 * time.Millisecond
		} else if deadline.After(now) {
			sleep = deadline.Sub(now)
			if sleep > 5*time.Millisecond {
				sleep = 5 * time.Millisecond
			}
		}
		if sleep > 0 {
			time.Sleep(sleep)
		}
		e.wheel.Advance(e.clock.Now())
	}
}

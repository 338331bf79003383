package executor

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/joeycumines/libos-core/internal/clock"
	"github.com/joeycumines/libos-core/internal/handle"
	"github.com/joeycumines/libos-core/internal/sched"
	"github.com/joeycumines/libos-core/internal/timer"
)

// completesAfter is done once it has been polled n times.
type completesAfter struct {
	remaining atomic.Int32
	polls     atomic.Int32
}

func newCompletesAfter(n int32) *completesAfter {
	f := &completesAfter{}
	f.remaining.Store(n)
	return f
}

func (f *completesAfter) Poll() bool {
	f.polls.Add(1)
	return f.remaining.Add(-1) <= 0
}

// sleepingFuture sleeps for d on every poll and never completes, used to
// force timeslice exhaustion deterministically under the real clock.
type sleepingFuture struct {
	d     time.Duration
	polls atomic.Int32
}

func (f *sleepingFuture) Poll() bool {
	f.polls.Add(1)
	time.Sleep(f.d)
	return false
}

func newExecutor(n int) (*Executor, *sched.Scheduler) {
	s := sched.New(n)
	wheel := timer.NewWheel(clock.Real)
	return New(s, wheel, clock.Real, nil), s
}

func TestRunOneCompletesTaskWithoutReenqueue(t *testing.T) {
	exec, s := newExecutor(1)
	future := newCompletesAfter(1)
	task := sched.NewTask(handle.New(), future, 0)
	s.Enqueue(task)

	exec.Start()
	require.Eventually(t, func() bool {
		return future.polls.Load() == 1
	}, time.Second, time.Millisecond)

	exec.Shutdown()
	exec.Wait()
	require.Equal(t, int32(1), future.polls.Load())
}

func TestPreemptionResetsTimesliceAndLowersAdjust(t *testing.T) {
	exec, s := newExecutor(1)
	// base priority -8 => TimesliceFor == 8ms; sleeping 40ms per poll
	// guarantees the first Tick call observes the slice exhausted.
	future := &sleepingFuture{d: 40 * time.Millisecond}
	task := sched.NewTask(handle.New(), future, -8)
	s.Enqueue(task)

	exec.Start()
	require.Eventually(t, func() bool {
		return future.polls.Load() >= 1
	}, time.Second, time.Millisecond)
	// give runOne a moment to record the preemption after Poll returns
	require.Eventually(t, func() bool {
		_, assigned := task.Timeslice()
		return !assigned
	}, time.Second, time.Millisecond)

	exec.Shutdown()
	exec.Wait()
	// base -8, one ReportPreemption step of -1 => effective -9.
	require.Equal(t, int32(-9), task.EffectivePriority())
}

func TestShutdownStopsLoopPromptly(t *testing.T) {
	exec, _ := newExecutor(2)
	exec.Start()
	exec.Shutdown()

	done := make(chan struct{})
	go func() {
		exec.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Wait did not return promptly after Shutdown")
	}
}

func TestNewDefaultsNilLoggerToNop(t *testing.T) {
	s := sched.New(1)
	wheel := timer.NewWheel(clock.Real)
	exec := New(s, wheel, clock.Real, nil)
	require.NotNil(t, exec)
}

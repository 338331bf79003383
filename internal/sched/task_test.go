package sched

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/joeycumines/libos-core/internal/handle"
)

type fakeFuture struct{ done bool }

func (f *fakeFuture) Poll() bool { return f.done }

func TestEffectivePriorityCombinesBaseAndAdjust(t *testing.T) {
	task := NewTask(handle.New(), &fakeFuture{}, 10)
	require.Equal(t, int32(10), task.EffectivePriority())
	task.ReportSleep()
	require.Equal(t, int32(11), task.EffectivePriority())
}

func TestReportSleepCapsAtMax(t *testing.T) {
	task := NewTask(handle.New(), &fakeFuture{}, 0)
	for i := 0; i < 20; i++ {
		task.ReportSleep()
	}
	require.Equal(t, int32(maxPrioAdjust), task.EffectivePriority())
}

func TestReportPreemptionFloorsAtMin(t *testing.T) {
	task := NewTask(handle.New(), &fakeFuture{}, 0)
	for i := 0; i < 20; i++ {
		task.ReportPreemption()
	}
	require.Equal(t, int32(minPrioAdjust), task.EffectivePriority())
}

func TestReportYieldNeverGoesNegative(t *testing.T) {
	task := NewTask(handle.New(), &fakeFuture{}, 0)
	task.ReportYield()
	require.Equal(t, int32(0), task.EffectivePriority())
}

func TestReportYieldUndoesSleepReward(t *testing.T) {
	task := NewTask(handle.New(), &fakeFuture{}, 0)
	task.ReportSleep()
	task.ReportSleep()
	task.ReportYield()
	require.Equal(t, int32(1), task.EffectivePriority())
}

func TestMarkEnqueuedIsOneShot(t *testing.T) {
	task := NewTask(handle.New(), &fakeFuture{}, 0)
	require.False(t, task.MarkEnqueued())
	require.True(t, task.MarkEnqueued())
	task.ClearEnqueued()
	require.False(t, task.MarkEnqueued())
}

func TestAssignTimesliceOnlySetsOnce(t *testing.T) {
	task := NewTask(handle.New(), &fakeFuture{}, 0)
	task.AssignTimeslice(25)
	ms, assigned := task.Timeslice()
	require.True(t, assigned)
	require.Equal(t, int64(25), ms)

	task.AssignTimeslice(40)
	ms, _ = task.Timeslice()
	require.Equal(t, int64(25), ms, "second assign should be a no-op until reset")
}

func TestResetTimesliceAllowsReassignment(t *testing.T) {
	task := NewTask(handle.New(), &fakeFuture{}, 0)
	task.AssignTimeslice(25)
	task.ResetTimeslice()
	_, assigned := task.Timeslice()
	require.False(t, assigned)
	task.AssignTimeslice(40)
	ms, _ := task.Timeslice()
	require.Equal(t, int64(40), ms)
}

func TestTickExhaustsTimeslice(t *testing.T) {
	task := NewTask(handle.New(), &fakeFuture{}, 0)
	task.AssignTimeslice(10)
	require.False(t, task.Tick(4))
	require.False(t, task.Tick(5))
	require.True(t, task.Tick(1))
}

func TestLastAssignedCPUDefaultsToNegativeOne(t *testing.T) {
	task := NewTask(handle.New(), &fakeFuture{}, 0)
	require.Equal(t, -1, task.LastAssignedCPU())
	task.SetLastAssignedCPU(3)
	require.Equal(t, 3, task.LastAssignedCPU())
}

func TestAffinityAllowsEmptyMeansAny(t *testing.T) {
	var a Affinity
	require.True(t, a.Allows(0))
	require.True(t, a.Allows(7))

	a = Affinity{1: {}, 3: {}}
	require.True(t, a.Allows(1))
	require.False(t, a.Allows(2))
}

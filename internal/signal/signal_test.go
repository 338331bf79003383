package signal

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMaskHasWithWithout(t *testing.T) {
	var m Mask
	require.False(t, m.Has(SIGTERM))
	m = m.With(SIGTERM)
	require.True(t, m.Has(SIGTERM))
	m = m.Without(SIGTERM)
	require.False(t, m.Has(SIGTERM))
}

func TestStandardSignalsDoNotCoalesce(t *testing.T) {
	q := NewQueue()
	q.Enqueue(SigInfo{Num: SIGUSR1, Pid: 1})
	q.Enqueue(SigInfo{Num: SIGUSR1, Pid: 2}) // dropped, slot already occupied

	info, ok := q.Dequeue(0)
	require.True(t, ok)
	require.Equal(t, uint32(1), info.Pid)

	_, ok = q.Dequeue(0)
	require.False(t, ok)
}

func TestRealtimeSignalsAreFIFONotCoalesced(t *testing.T) {
	q := NewQueue()
	q.Enqueue(SigInfo{Num: 33, Pid: 1})
	q.Enqueue(SigInfo{Num: 33, Pid: 2})

	info, ok := q.Dequeue(0)
	require.True(t, ok)
	require.Equal(t, uint32(1), info.Pid)

	info, ok = q.Dequeue(0)
	require.True(t, ok)
	require.Equal(t, uint32(2), info.Pid)
}

func TestDequeuePrefersUrgencyOrderOverNumericOrder(t *testing.T) {
	q := NewQueue()
	q.Enqueue(SigInfo{Num: SIGHUP})  // low urgency, low number
	q.Enqueue(SigInfo{Num: SIGTERM}) // high urgency, higher number

	info, ok := q.Dequeue(0)
	require.True(t, ok)
	require.Equal(t, SIGTERM, info.Num, "SIGTERM outranks SIGHUP per the fixed urgency order")
}

func TestDequeueSkipsBlockedSignals(t *testing.T) {
	q := NewQueue()
	q.Enqueue(SigInfo{Num: SIGTERM})
	q.Enqueue(SigInfo{Num: SIGHUP})

	blocked := Mask(0).With(SIGTERM)
	info, ok := q.Dequeue(blocked)
	require.True(t, ok)
	require.Equal(t, SIGHUP, info.Num)
}

func TestDequeueStandardBeforeRealtime(t *testing.T) {
	q := NewQueue()
	q.Enqueue(SigInfo{Num: 40})
	q.Enqueue(SigInfo{Num: SIGCHLD})

	info, ok := q.Dequeue(0)
	require.True(t, ok)
	require.Equal(t, SIGCHLD, info.Num)
}

func TestPendingReflectsBlockedMask(t *testing.T) {
	q := NewQueue()
	require.False(t, q.Pending(0))
	q.Enqueue(SigInfo{Num: SIGTERM})
	require.True(t, q.Pending(0))
	require.False(t, q.Pending(Mask(0).With(SIGTERM)))
}

func TestDequeueEmptyReturnsFalse(t *testing.T) {
	q := NewQueue()
	_, ok := q.Dequeue(0)
	require.False(t, ok)
}

func TestDeliveryMaskOrsPersistentAndTemporary(t *testing.T) {
	got := DeliveryMask(Mask(0).With(SIGTERM), Mask(0).With(SIGINT))
	require.True(t, got.Has(SIGTERM))
	require.True(t, got.Has(SIGINT))
	require.False(t, got.Has(SIGHUP))
}

func TestRealtimeSignalNumbersOutOfStandardRangeOrderAscending(t *testing.T) {
	q := NewQueue()
	q.Enqueue(SigInfo{Num: 40})
	q.Enqueue(SigInfo{Num: 33})

	info, ok := q.Dequeue(0)
	require.True(t, ok)
	require.Equal(t, Num(33), info.Num)
}

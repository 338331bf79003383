package timer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/joeycumines/libos-core/internal/clock"
)

func TestAdvanceFiresDueTimersInOrder(t *testing.T) {
	fc := clock.NewFake(time.Unix(0, 0))
	w := NewWheel(fc)

	var fired []int
	w.Start(10*time.Millisecond, func() { fired = append(fired, 1) })
	w.Start(5*time.Millisecond, func() { fired = append(fired, 2) })
	w.Start(20*time.Millisecond, func() { fired = append(fired, 3) })

	require.Equal(t, 3, w.Len())

	n := w.Advance(fc.Advance(12 * time.Millisecond))
	require.Equal(t, 2, n)
	require.Equal(t, []int{2, 1}, fired)
	require.Equal(t, 1, w.Len())

	n = w.Advance(fc.Advance(10 * time.Millisecond))
	require.Equal(t, 1, n)
	require.Equal(t, []int{2, 1, 3}, fired)
	require.Equal(t, 0, w.Len())
}

func TestCancelPreventsFiring(t *testing.T) {
	fc := clock.NewFake(time.Unix(0, 0))
	w := NewWheel(fc)

	fired := false
	timer := w.Start(5*time.Millisecond, func() { fired = true })
	timer.Cancel()
	require.Equal(t, Cancelled, timer.State())
	require.Equal(t, 0, w.Len())

	w.Advance(fc.Advance(10 * time.Millisecond))
	require.False(t, fired)
}

func TestCancelAfterFireIsNoOp(t *testing.T) {
	fc := clock.NewFake(time.Unix(0, 0))
	w := NewWheel(fc)
	timer := w.Start(5*time.Millisecond, func() {})
	w.Advance(fc.Advance(10 * time.Millisecond))
	require.Equal(t, Expired, timer.State())
	timer.Cancel()
	require.Equal(t, Expired, timer.State())
}

func TestDurationRoundsUpToMinResolution(t *testing.T) {
	fc := clock.NewFake(time.Unix(0, 0))
	w := NewWheel(fc)
	timer := w.Start(time.Microsecond, func() {})
	deadline, ok := w.NextDeadline()
	require.True(t, ok)
	require.Equal(t, fc.Now().Add(minResolution), deadline)
	_ = timer
}

func TestCloseExpiresFutureStarts(t *testing.T) {
	fc := clock.NewFake(time.Unix(0, 0))
	w := NewWheel(fc)
	w.Close()
	timer := w.Start(time.Second, func() {})
	require.Equal(t, Expired, timer.State())
	require.Equal(t, 0, w.Len())
}

func TestElapsedRecordedOnCancel(t *testing.T) {
	fc := clock.NewFake(time.Unix(0, 0))
	w := NewWheel(fc)
	timer := w.Start(time.Second, func() {})
	fc.Advance(250 * time.Millisecond)
	timer.Cancel()
	require.Equal(t, 250*time.Millisecond, timer.Elapsed())
}

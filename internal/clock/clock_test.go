package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFakeAdvanceAndSet(t *testing.T) {
	start := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	f := NewFake(start)
	require.Equal(t, start, f.Now())

	got := f.Advance(time.Hour)
	require.Equal(t, start.Add(time.Hour), got)
	require.Equal(t, start.Add(time.Hour), f.Now())

	f.Set(start)
	require.Equal(t, start, f.Now())
}

func TestRealSourceMonotonic(t *testing.T) {
	before := Real.Now()
	time.Sleep(time.Millisecond)
	after := Real.Now()
	require.True(t, after.After(before))
}

package poll

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const (
	evIn  EventMask = 1 << iota
	evOut
	evErr
)

func TestPollReturnsReadyEventsImmediately(t *testing.T) {
	p := NewPollee()
	p.AddEvents(evIn)
	got := p.Poll(evIn, nil)
	require.Equal(t, evIn, got)
}

func TestPollWithNilPollerAndNothingReadyReturnsZero(t *testing.T) {
	p := NewPollee()
	got := p.Poll(evIn, nil)
	require.Equal(t, EventMask(0), got)
}

func TestPollRegistersPollerWhenNothingReady(t *testing.T) {
	p := NewPollee()
	poller := NewPoller()
	got := p.Poll(evIn, poller)
	require.Equal(t, EventMask(0), got)

	p.AddEvents(evIn)
	require.True(t, poller.Wait(nil))
}

func TestAddEventsOnlyNotifiesInterestedPollers(t *testing.T) {
	p := NewPollee()
	pIn := NewPoller()
	pOut := NewPoller()
	p.Poll(evIn, pIn)
	p.Poll(evOut, pOut)

	p.AddEvents(evIn)

	require.True(t, pIn.Wait(nil))

	done := make(chan struct{})
	close(done)
	require.False(t, pOut.Wait(done), "poller interested only in evOut must not be notified by evIn")
}

func TestDelEventsClearsWithoutNotifying(t *testing.T) {
	p := NewPollee()
	p.AddEvents(evIn)
	p.DelEvents(evIn)
	require.Equal(t, EventMask(0), p.Events())
}

func TestAlwaysPollBitsAreImplicitlyIncluded(t *testing.T) {
	SetAlwaysPoll(evErr)
	defer SetAlwaysPoll(0)

	p := NewPollee()
	p.AddEvents(evErr)
	got := p.Poll(evIn, nil) // caller only asked for evIn, but evErr is AlwaysPoll
	require.Equal(t, evErr, got)
}

func TestCloseUnregistersFromEveryTrackedPollee(t *testing.T) {
	p1 := NewPollee()
	p2 := NewPollee()
	poller := NewPoller()
	p1.Poll(evIn, poller)
	p2.Poll(evIn, poller)

	poller.Close()

	p1.AddEvents(evIn)
	p2.AddEvents(evIn)

	done := make(chan struct{})
	close(done)
	require.False(t, poller.Wait(done), "a closed poller must not be woken by pollees it previously registered with")
}

func TestWaitReturnsFalseWhenDoneFiresFirst(t *testing.T) {
	poller := NewPoller()
	done := make(chan struct{})
	close(done)
	require.False(t, poller.Wait(done))
}

func TestNotifyIsSaturatingNotQueued(t *testing.T) {
	p := NewPollee()
	poller := NewPoller()
	p.Poll(evIn, poller)

	p.AddEvents(evIn)
	p.DelEvents(evIn)
	p.AddEvents(evIn) // two notifications before any Wait call

	require.True(t, poller.Wait(nil))

	done := make(chan struct{})
	close(done)
	require.False(t, poller.Wait(done), "a second Wait with nothing new must not return true")
}

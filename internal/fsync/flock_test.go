package fsync

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/joeycumines/libos-core/internal/errno"
)

func TestExclusiveLockExcludesOthers(t *testing.T) {
	f := NewFlock()
	ref1, ref2 := "a", "b"
	require.NoError(t, f.Lock(ref1, FlockExclusive, false))

	err := f.Lock(ref2, FlockExclusive, false)
	require.Error(t, err)
	code, ok := errno.Of(err)
	require.True(t, ok)
	require.Equal(t, errno.EAGAIN, code)
}

func TestSharedLocksCoexist(t *testing.T) {
	f := NewFlock()
	require.NoError(t, f.Lock("a", FlockShared, false))
	require.NoError(t, f.Lock("b", FlockShared, false))
}

func TestSharedThenExclusiveFails(t *testing.T) {
	f := NewFlock()
	require.NoError(t, f.Lock("a", FlockShared, false))
	err := f.Lock("b", FlockExclusive, false)
	require.Error(t, err)
}

func TestSameRefCanUpgradeLock(t *testing.T) {
	f := NewFlock()
	require.NoError(t, f.Lock("a", FlockShared, false))
	require.NoError(t, f.Lock("a", FlockExclusive, false))
}

func TestUnlockFreesLockForOthers(t *testing.T) {
	f := NewFlock()
	require.NoError(t, f.Lock("a", FlockExclusive, false))
	f.Unlock("a")
	require.NoError(t, f.Lock("b", FlockExclusive, false))
}

func TestBlockingLockWaitsThenAcquires(t *testing.T) {
	f := NewFlock()
	require.NoError(t, f.Lock("a", FlockExclusive, false))

	done := make(chan error, 1)
	go func() { done <- f.Lock("b", FlockExclusive, true) }()

	select {
	case <-done:
		t.Fatal("blocking Lock returned before the holder released")
	case <-time.After(20 * time.Millisecond):
	}

	f.Unlock("a")

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("blocking Lock never woke after Unlock")
	}
}

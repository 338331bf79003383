package fdtable

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/joeycumines/libos-core/internal/errno"
)

type fakeHandle struct{ closed bool }

func (h *fakeHandle) Close() error {
	h.closed = true
	return nil
}

func TestPutAssignsSmallestFreeFd(t *testing.T) {
	tbl := New()
	fd0 := tbl.Put(&fakeHandle{}, false)
	fd1 := tbl.Put(&fakeHandle{}, false)
	require.Equal(t, 0, fd0)
	require.Equal(t, 1, fd1)
}

func TestPutReusesFreedFd(t *testing.T) {
	tbl := New()
	tbl.Put(&fakeHandle{}, false)
	fd1 := tbl.Put(&fakeHandle{}, false)
	tbl.Del(fd1)
	fd := tbl.Put(&fakeHandle{}, false)
	require.Equal(t, fd1, fd)
}

func TestGetReturnsFalseForUnusedFd(t *testing.T) {
	tbl := New()
	_, ok := tbl.Get(5)
	require.False(t, ok)
}

func TestPutAtGrowsTableAndReturnsPrevious(t *testing.T) {
	tbl := New()
	h1 := &fakeHandle{}
	tbl.PutAt(3, h1, false)

	h2 := &fakeHandle{}
	prev := tbl.PutAt(3, h2, false)
	require.Same(t, h1, prev)

	got, ok := tbl.Get(3)
	require.True(t, ok)
	require.Same(t, h2, got)
}

func TestDupSharesUnderlyingHandle(t *testing.T) {
	tbl := New()
	h := &fakeHandle{}
	fd := tbl.Put(h, false)

	dup, err := tbl.Dup(fd, 0, false)
	require.NoError(t, err)
	require.NotEqual(t, fd, dup)

	got, ok := tbl.Get(dup)
	require.True(t, ok)
	require.Same(t, h, got)
}

func TestDupRespectsMinFd(t *testing.T) {
	tbl := New()
	fd := tbl.Put(&fakeHandle{}, false)
	dup, err := tbl.Dup(fd, 10, false)
	require.NoError(t, err)
	require.Equal(t, 10, dup)
}

func TestDupOfClosedFdReturnsEBADF(t *testing.T) {
	tbl := New()
	_, err := tbl.Dup(7, 0, false)
	require.Error(t, err)
	code, ok := errno.Of(err)
	require.True(t, ok)
	require.Equal(t, errno.EBADF, code)
}

func TestDelReturnsHandleAndFreesSlot(t *testing.T) {
	tbl := New()
	h := &fakeHandle{}
	fd := tbl.Put(h, false)

	got, ok := tbl.Del(fd)
	require.True(t, ok)
	require.Same(t, h, got)

	_, ok = tbl.Get(fd)
	require.False(t, ok)
}

func TestDelOfUnusedFdReturnsFalse(t *testing.T) {
	tbl := New()
	_, ok := tbl.Del(42)
	require.False(t, ok)
}

func TestSetCloexecAndCloexec(t *testing.T) {
	tbl := New()
	fd := tbl.Put(&fakeHandle{}, false)

	ok := tbl.SetCloexec(fd, true)
	require.True(t, ok)

	cloexec, ok := tbl.Cloexec(fd)
	require.True(t, ok)
	require.True(t, cloexec)
}

func TestCloexecOfUnusedFdReturnsFalse(t *testing.T) {
	tbl := New()
	_, ok := tbl.Cloexec(99)
	require.False(t, ok)
}

func TestCloneForSpawnDropsCloexecEntries(t *testing.T) {
	tbl := New()
	kept := &fakeHandle{}
	dropped := &fakeHandle{}
	fdKept := tbl.Put(kept, false)
	fdDropped := tbl.Put(dropped, true)

	clone := tbl.CloneForSpawn()

	got, ok := clone.Get(fdKept)
	require.True(t, ok)
	require.Same(t, kept, got)

	_, ok = clone.Get(fdDropped)
	require.False(t, ok)
}

func TestCloneForSpawnSharesHandleNotCopy(t *testing.T) {
	tbl := New()
	h := &fakeHandle{}
	fd := tbl.Put(h, false)

	clone := tbl.CloneForSpawn()
	got, _ := clone.Get(fd)
	require.Same(t, h, got)
}

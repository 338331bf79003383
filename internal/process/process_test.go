package process

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/joeycumines/libos-core/internal/errno"
	"github.com/joeycumines/libos-core/internal/fdtable"
	"github.com/joeycumines/libos-core/internal/signal"
)

func TestSpawnInitProcessHasNoParent(t *testing.T) {
	table := NewTable()
	init := table.Spawn(nil, "/sbin/init", NewFSView("/", "/", 0o022), fdtable.New())
	require.False(t, init.HasParent)
	require.Equal(t, Pid(1), init.Pid)
	require.Equal(t, init.Pid, init.Pgid())
}

func TestSpawnChildLinksToParent(t *testing.T) {
	table := NewTable()
	parent := table.Spawn(nil, "/sbin/init", NewFSView("/", "/", 0), fdtable.New())
	child := table.Spawn(parent, "/bin/sh", NewFSView("/", "/", 0), fdtable.New())

	require.True(t, child.HasParent)
	require.Equal(t, parent.Pid, child.ParentPid)
	require.Equal(t, child.Pid, child.Pgid(), "a freshly spawned process starts in its own group")
}

func TestExitThreadTerminatesProcessOnLastThread(t *testing.T) {
	table := NewTable()
	p := table.Spawn(nil, "/bin/x", NewFSView("/", "/", 0), fdtable.New())

	terminated := p.ExitThread(Tid(p.Pid), TermStatus{Exited: true, ExitCode: 7})
	require.True(t, terminated)

	status, done := p.Terminated()
	require.True(t, done)
	require.Equal(t, int32(7), status.ExitCode)
}

func TestWaitBlocksUntilTermination(t *testing.T) {
	table := NewTable()
	p := table.Spawn(nil, "/bin/x", NewFSView("/", "/", 0), fdtable.New())

	done := make(chan TermStatus, 1)
	go func() { done <- p.Wait() }()

	p.ExitThread(Tid(p.Pid), TermStatus{Exited: true, ExitCode: 3})
	status := <-done
	require.Equal(t, int32(3), status.ExitCode)
}

func TestExitThreadWithRemainingThreadsDoesNotTerminate(t *testing.T) {
	table := NewTable()
	p := table.Spawn(nil, "/bin/x", NewFSView("/", "/", 0), fdtable.New())
	p.NewThread(Tid(999))

	terminated := p.ExitThread(Tid(999), TermStatus{})
	require.False(t, terminated)
	_, done := p.Terminated()
	require.False(t, done)
}

func TestExitThreadUnlinksFromParentAndPgrp(t *testing.T) {
	table := NewTable()
	parent := table.Spawn(nil, "/sbin/init", NewFSView("/", "/", 0), fdtable.New())
	child := table.Spawn(parent, "/bin/sh", NewFSView("/", "/", 0), fdtable.New())

	child.ExitThread(Tid(child.Pid), TermStatus{Exited: true})

	require.Empty(t, table.PgrpMembers(child.Pid))

	parent.mu.Lock()
	_, stillChild := parent.children[child.Pid]
	parent.mu.Unlock()
	require.False(t, stillChild)
}

func TestSetpgidSelfToOwnPid(t *testing.T) {
	table := NewTable()
	p := table.Spawn(nil, "/bin/x", NewFSView("/", "/", 0), fdtable.New())
	err := table.Setpgid(p, p, 0)
	require.NoError(t, err)
	require.Equal(t, p.Pid, p.Pgid())
}

func TestSetpgidJoinsExistingGroup(t *testing.T) {
	table := NewTable()
	parent := table.Spawn(nil, "/sbin/init", NewFSView("/", "/", 0), fdtable.New())
	childA := table.Spawn(parent, "/bin/a", NewFSView("/", "/", 0), fdtable.New())
	childB := table.Spawn(parent, "/bin/b", NewFSView("/", "/", 0), fdtable.New())

	err := table.Setpgid(parent, childB, childA.Pid)
	require.NoError(t, err)
	require.Equal(t, childA.Pid, childB.Pgid())

	members := table.PgrpMembers(childA.Pid)
	require.ElementsMatch(t, []Pid{childA.Pid, childB.Pid}, members)
}

func TestSetpgidToNonexistentGroupIsEINVAL(t *testing.T) {
	table := NewTable()
	p := table.Spawn(nil, "/bin/x", NewFSView("/", "/", 0), fdtable.New())
	err := table.Setpgid(p, p, Pid(999))
	require.Error(t, err)
	code, ok := errno.Of(err)
	require.True(t, ok)
	require.Equal(t, errno.EINVAL, code)
}

func TestSetpgidOnNonChildIsESRCH(t *testing.T) {
	table := NewTable()
	unrelated1 := table.Spawn(nil, "/bin/a", NewFSView("/", "/", 0), fdtable.New())
	unrelated2 := table.Spawn(nil, "/bin/b", NewFSView("/", "/", 0), fdtable.New())

	err := table.Setpgid(unrelated1, unrelated2, 0)
	require.Error(t, err)
	code, _ := errno.Of(err)
	require.Equal(t, errno.ESRCH, code)
}

func TestSetpgidOnExecedChildIsEACCES(t *testing.T) {
	table := NewTable()
	parent := table.Spawn(nil, "/sbin/init", NewFSView("/", "/", 0), fdtable.New())
	child := table.Spawn(parent, "/bin/sh", NewFSView("/", "/", 0), fdtable.New())
	child.MarkExeced()

	err := table.Setpgid(parent, child, 0)
	require.Error(t, err)
	code, _ := errno.Of(err)
	require.Equal(t, errno.EACCES, code)
}

func TestFSViewSetUmaskReturnsPreviousValue(t *testing.T) {
	fs := NewFSView("/home", "/", 0o022)
	old := fs.SetUmask(0o077)
	require.Equal(t, uint32(0o022), old)
	require.Equal(t, uint32(0o077), fs.Umask())
}

func TestFSViewCloneIsIndependent(t *testing.T) {
	fs := NewFSView("/home", "/", 0o022)
	clone := fs.Clone()
	clone.SetUmask(0o777)
	require.Equal(t, uint32(0o022), fs.Umask())
}

func TestThreadDeliverablePrefersThreadQueueOverProcessQueue(t *testing.T) {
	table := NewTable()
	p := table.Spawn(nil, "/bin/x", NewFSView("/", "/", 0), fdtable.New())
	th := p.threads[p.mainTid]

	p.SigQueue.Enqueue(signal.SigInfo{Num: signal.SIGTERM})
	th.SigQueue.Enqueue(signal.SigInfo{Num: signal.SIGINT})

	info, ok := th.Deliverable()
	require.True(t, ok)
	require.Equal(t, signal.SIGINT, info.Num)
}

func TestThreadDeliverableFallsBackToProcessQueue(t *testing.T) {
	table := NewTable()
	p := table.Spawn(nil, "/bin/x", NewFSView("/", "/", 0), fdtable.New())
	th := p.threads[p.mainTid]

	p.SigQueue.Enqueue(signal.SigInfo{Num: signal.SIGTERM})

	info, ok := th.Deliverable()
	require.True(t, ok)
	require.Equal(t, signal.SIGTERM, info.Num)
}

func TestClearTempMaskResetsMask(t *testing.T) {
	table := NewTable()
	p := table.Spawn(nil, "/bin/x", NewFSView("/", "/", 0), fdtable.New())
	th := p.threads[p.mainTid]
	th.TempMask = signal.Mask(1)
	th.ClearTempMask()
	require.Equal(t, signal.Mask(0), th.TempMask)
}

// Package process implements spec §4.M: the Process/Thread/Pgrp model —
// parent/child linkage, VM regions, fs view, file table ownership, signal
// disposition table, resource limits, and setpgid.
//
// Grounded on the teacher's eventloop lifecycle/ownership patterns (a
// parent object holding strong references to children it must outlive,
// torn down via an explicit terminal transition rather than finalizers);
// no corpus repo models POSIX process groups, so the pgrp bookkeeping and
// setpgid validation are original, written directly from this module's own
// algorithm description.
package process

import (
	"sync"

	"github.com/joeycumines/libos-core/internal/errno"
	"github.com/joeycumines/libos-core/internal/fdtable"
	"github.com/joeycumines/libos-core/internal/handle"
	"github.com/joeycumines/libos-core/internal/signal"
)

// Pid and Tid are process and thread identifiers. A process's main thread
// shares its Tid with the process's Pid, matching Linux's convention.
type Pid uint32
type Tid uint32

// TermStatus records how a process ended.
type TermStatus struct {
	Exited   bool
	ExitCode int32
	Signaled bool
	Signal   int32
}

// VMRegion is one mapped region of a process's address space.
type VMRegionKind int

const (
	VMCode VMRegionKind = iota
	VMData
	VMHeap
	VMStack
	VMMmap
)

type VMRegion struct {
	Kind  VMRegionKind
	Start uintptr
	End   uintptr
}

// FSView holds a process's filesystem-relative state: cwd, root, and
// umask. Separate from the global filesystem tree so chroot/chdir are
// per-process.
type FSView struct {
	mu    sync.Mutex
	Cwd   string
	Root  string
	umask uint32
}

func NewFSView(cwd, root string, umask uint32) *FSView {
	return &FSView{Cwd: cwd, Root: root, umask: umask}
}

func (v *FSView) Umask() uint32 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.umask
}

// SetUmask installs newMask and returns the previous value, per umask(2).
func (v *FSView) SetUmask(newMask uint32) uint32 {
	v.mu.Lock()
	defer v.mu.Unlock()
	old := v.umask
	v.umask = newMask & 0o777
	return old
}

// Clone returns an independent copy, used when a child doesn't share its
// parent's fs view (no CLONE_FS equivalent in this simplified model: every
// process gets its own copy at spawn).
func (v *FSView) Clone() *FSView {
	v.mu.Lock()
	defer v.mu.Unlock()
	return &FSView{Cwd: v.Cwd, Root: v.Root, umask: v.umask}
}

// Rlimit is one resource limit (soft/hard pair), per setrlimit(2).
type Rlimit struct {
	Cur uint64
	Max uint64
}

const (
	RlimitNoFile = iota
	RlimitStack
	RlimitAS
	RlimitNProc
	rlimitCount
)

// SigDisposition records one signal's handling mode for a process-wide
// sigaction table (shared by all threads, per POSIX).
type SigDisposition struct {
	Handler  uintptr // 0 = default, 1 = ignore, else userspace handler address
	Flags    uint32
	Mask     uint64
	Restorer uintptr
}

// Process is one LibOS process.
type Process struct {
	mu sync.Mutex

	Pid        Pid
	ParentPid  Pid
	HasParent  bool
	ExecPath   string
	FS         *FSView
	Files      *fdtable.Table
	Rlimits    [rlimitCount]Rlimit
	SigActions [65]SigDisposition // index 0 unused, 1..64 valid

	threads map[Tid]*Thread
	mainTid Tid

	pgid Pid

	children map[Pid]*Process
	parent   *Process

	terminated bool
	termStatus TermStatus
	waitCh     chan struct{}

	// SigQueue holds process-directed signals, routed to any thread not
	// blocking that signal, per spec §4.N.
	SigQueue *signal.Queue

	table *Table
}

// Thread is one schedulable thread within a Process.
type Thread struct {
	mu sync.Mutex

	Tid    Tid
	Proc   *Process
	exec   bool // has this thread (process) exec'd since spawn/fork?
	exited bool
	TaskID handle.Handle // internal/sched.Task.ID of the runnable backing this thread

	// SigQueue holds thread-directed signals.
	SigQueue *signal.Queue

	SigMask  signal.Mask
	TempMask signal.Mask
	AltStack SigAltStack
}

// Deliverable pops the highest-priority signal deliverable to th right
// now, checking its own thread-directed queue before falling back to its
// process's process-directed queue (first one with a deliverable signal
// wins; a real scheduler would round-robin across threads for the process
// queue, left as a documented simplification).
func (th *Thread) Deliverable() (signal.SigInfo, bool) {
	th.mu.Lock()
	blocked := signal.DeliveryMask(th.SigMask, th.TempMask)
	th.mu.Unlock()

	if info, ok := th.SigQueue.Dequeue(blocked); ok {
		return info, true
	}
	return th.Proc.SigQueue.Dequeue(blocked)
}

// ClearTempMask resets the temporary mask, per spec §4.N: "cleared at the
// end of each syscall."
func (th *Thread) ClearTempMask() {
	th.mu.Lock()
	th.TempMask = 0
	th.mu.Unlock()
}

// SigAltStack is per-thread sigaltstack(2) state.
type SigAltStack struct {
	Addr    uintptr
	Size    uintptr
	Disable bool
}

// Table owns the global pid/pgrp namespaces for one LibOS instance.
type Table struct {
	mu       sync.Mutex
	nextPid  Pid
	procs    map[Pid]*Process
	pgrps    map[Pid]map[Pid]*Process // pgid -> member pid -> process
}

// NewTable creates an empty process table. Pids start at 1 (init).
func NewTable() *Table {
	return &Table{
		nextPid: 1,
		procs:   make(map[Pid]*Process),
		pgrps:   make(map[Pid]map[Pid]*Process),
	}
}

// Spawn creates a new Process with a freshly created main thread, linking
// it to parent unless parent is nil (the init process). The new process
// starts in its own new process group (pgid == pid), per typical exec
// semantics; callers that want to inherit the parent's pgrp should call
// Setpgid afterward.
func (t *Table) Spawn(parent *Process, execPath string, fs *FSView, files *fdtable.Table) *Process {
	t.mu.Lock()
	pid := t.nextPid
	t.nextPid++
	p := &Process{
		Pid:      pid,
		ExecPath: execPath,
		FS:       fs,
		Files:    files,
		threads:  make(map[Tid]*Thread),
		children: make(map[Pid]*Process),
		pgid:     pid,
		waitCh:   make(chan struct{}),
		SigQueue: signal.NewQueue(),
		table:    t,
	}
	if parent != nil {
		p.ParentPid = parent.Pid
		p.HasParent = true
		p.parent = parent
	}
	t.procs[pid] = p
	if t.pgrps[pid] == nil {
		t.pgrps[pid] = make(map[Pid]*Process)
	}
	t.pgrps[pid][pid] = p
	t.mu.Unlock()

	if parent != nil {
		parent.mu.Lock()
		parent.children[pid] = p
		parent.mu.Unlock()
	}

	main := &Thread{Tid: Tid(pid), Proc: p, SigQueue: signal.NewQueue()}
	p.threads[main.Tid] = main
	p.mainTid = main.Tid

	return p
}

// NewThread adds an additional thread to p (pthread_create equivalent).
func (p *Process) NewThread(tid Tid) *Thread {
	p.mu.Lock()
	defer p.mu.Unlock()
	th := &Thread{Tid: tid, Proc: p, SigQueue: signal.NewQueue()}
	p.threads[tid] = th
	return th
}

// MarkExeced records that this process has exec'd, which forecloses
// setpgid by a parent (per spec: "for a child that has not yet exec'd").
func (p *Process) MarkExeced() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, th := range p.threads {
		th.exec = true
	}
}

func (p *Process) hasExeced() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if th, ok := p.threads[p.mainTid]; ok {
		return th.exec
	}
	return true
}

// ExitThread removes tid from p's thread list. If it was the last thread,
// the process terminates with status, is unlinked from its parent's
// children, removed from its pgrp (deleting the pgrp if now empty), and
// its wait channel is closed to release waiters.
func (p *Process) ExitThread(tid Tid, status TermStatus) (processTerminated bool) {
	p.mu.Lock()
	delete(p.threads, tid)
	last := len(p.threads) == 0
	if last {
		p.terminated = true
		p.termStatus = status
	}
	p.mu.Unlock()

	if !last {
		return false
	}

	close(p.waitCh)

	t := p.table
	t.mu.Lock()
	if members := t.pgrps[p.pgid]; members != nil {
		delete(members, p.Pid)
		if len(members) == 0 {
			delete(t.pgrps, p.pgid)
		}
	}
	t.mu.Unlock()

	if p.parent != nil {
		p.parent.mu.Lock()
		delete(p.parent.children, p.Pid)
		p.parent.mu.Unlock()
	}

	return true
}

// Wait blocks until p terminates, returning its TermStatus.
func (p *Process) Wait() TermStatus {
	<-p.waitCh
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.termStatus
}

// Terminated reports whether p has already exited.
func (p *Process) Terminated() (TermStatus, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.termStatus, p.terminated
}

// Pgid returns p's current process group id.
func (p *Process) Pgid() Pid {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pgid
}

// Setpgid implements setpgid(pid, pgid) for the process identified by
// target, requested by caller. Per spec §4.M: may be called for self
// (caller == target) or for a child of caller that has not yet exec'd.
// pgid 0 means "use target's pid". A pgid other than target's own pid that
// names no existing group is an error (EINVAL, mirroring Linux, which
// normally allows joining only a group already in the same session; this
// simplified model has no session concept so it is scoped to "group
// already exists").
func (t *Table) Setpgid(caller, target *Process, pgid Pid) error {
	if caller != target {
		caller.mu.Lock()
		_, isChild := caller.children[target.Pid]
		caller.mu.Unlock()
		if !isChild {
			return errno.New(errno.ESRCH, "setpgid: target is not self or a child of caller")
		}
		if target.hasExeced() {
			return errno.New(errno.EACCES, "setpgid: target has already exec'd")
		}
	}

	if pgid == 0 {
		pgid = target.Pid
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if pgid != target.Pid {
		if _, exists := t.pgrps[pgid]; !exists {
			return errno.New(errno.EINVAL, "setpgid: target process group does not exist")
		}
	}

	target.mu.Lock()
	oldPgid := target.pgid
	target.pgid = pgid
	target.mu.Unlock()

	if members := t.pgrps[oldPgid]; members != nil {
		delete(members, target.Pid)
		if len(members) == 0 {
			delete(t.pgrps, oldPgid)
		}
	}
	if t.pgrps[pgid] == nil {
		t.pgrps[pgid] = make(map[Pid]*Process)
	}
	t.pgrps[pgid][target.Pid] = target

	return nil
}

// Lookup finds a process by pid.
func (t *Table) Lookup(pid Pid) (*Process, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.procs[pid]
	return p, ok
}

// PgrpMembers returns the pids currently in pgid's group.
func (t *Table) PgrpMembers(pgid Pid) []Pid {
	t.mu.Lock()
	defer t.mu.Unlock()
	members := t.pgrps[pgid]
	out := make([]Pid, 0, len(members))
	for pid := range members {
		out = append(out, pid)
	}
	return out
}

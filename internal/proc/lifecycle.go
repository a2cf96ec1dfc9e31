package proc

import (
	"sync/atomic"

	"vkernel/internal/kctx"
	"vkernel/internal/kerr"
)

// AllocPageDir and FreePageDir are the named external collaborator spec
// §1 calls "the slab and page-frame allocators" — out of scope, so
// proc_create/reap call through these instead of managing physical
// memory themselves. The defaults hand out opaque, distinct handles so
// the rest of the kernel (and its tests) can run without a real paging
// subsystem wired in. Both are package variables, so a real allocator can
// be assigned in their place; internal/boot uses the defaults.
var (
	nextPageDir  uintptr = 1
	AllocPageDir         = func() (uintptr, kerr.Err) {
		return uintptr(atomic.AddUintptr(&nextPageDir, 1)), kerr.OK
	}
	FreePageDir = func(uintptr) {}
)

// UserlandReturn is the fixed kernel-side resumption point a forked
// child's saved context names — the trampoline that restores the saved
// registers and drops to user mode. It is named out of scope by spec.md
// §1 ("the system-call entry trampoline"), and nothing in this module
// assigns a real one. The default returns immediately, which is safe for
// tests that never actually resume a forked thread's userland half.
var UserlandReturn kctx.EntryFunc = func(int, int) {}

// ThreadCreate implements thread_create: allocates a kernel stack,
// builds a context that resumes into entry(arg1, arg2), and attaches the
// thread to p. Matches spec §4.2. The thread is not enqueued: the caller
// makes it runnable (Scheduler.MakeRunnable) or starts it
// (Scheduler.Start).
func ThreadCreate(p *Proc, entry kctx.EntryFunc, arg1, arg2 int) *Thread {
	stack := make([]byte, kctx.StackSize)
	ctx := kctx.NewInitial(entry, arg1, arg2, stack, p.PageDir)
	t := newThread(p, ctx)
	p.AddThread(t)
	return t
}

// ThreadClone implements the thread half of do_fork's step 1: "clone the
// current thread into newthr (copies kernel context but not stack
// payload)". The clone gets its own fresh kernel stack and a context
// that resumes into UserlandReturn with the parent's saved user
// registers, eax zeroed, exactly as fork.c's fork_setup_stack plus the
// `newregs.r_eax = 0` assignment.
func ThreadClone(parent *Thread, child *Proc) *Thread {
	stack := make([]byte, kctx.StackSize)
	ctx := kctx.ForkChild(parent.Ctx.User, stack, child.PageDir, UserlandReturn)
	t := newThread(child, ctx)
	child.AddThread(t)
	return t
}

// remainingLiveThreads counts p's threads other than excluding that have
// not yet exited.
func (p *Proc) remainingLiveThreads(excluding *Thread) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, t := range p.threads {
		if t == excluding {
			continue
		}
		if t.State != Exited {
			n++
		}
	}
	return n
}

// ThreadExit implements thread_exit: marks the calling thread EXITED,
// records it on its process's dead-thread list, runs proc_thread_exited
// if it was the last live thread, and switches away permanently. Like
// Scheduler.Exit, it never returns.
func ThreadExit(cpu *CPU, retval int) {
	t := cpu.Curthr
	p := t.Proc

	p.mu.Lock()
	p.deadThreads = append(p.deadThreads, t)
	p.mu.Unlock()

	if p.remainingLiveThreads(t) == 0 {
		procThreadExited(p, retval)
	}

	Sched.Exit(cpu, retval)
}

// procThreadExited implements proc_thread_exited: process-level cleanup
// once a process has no threads left to run. Per spec §4.2: close every
// open file, destroy the VM map, reparent children to INIT, wake the
// parent's wait queue, and mark the process DEAD.
func procThreadExited(p *Proc, retval int) {
	p.mu.Lock()
	for i := range p.files {
		if p.files[i] != nil {
			p.files[i].File.Put()
			p.files[i] = nil
		}
	}
	vmap := p.Map
	children := p.children
	p.children = map[Pid]*Proc{}
	p.Status = Dead
	p.ExitStatus = retval
	p.mu.Unlock()

	if vmap != nil {
		vmap.Destroy()
	}

	init := Lookup(PidInit)
	for _, c := range children {
		c.mu.Lock()
		c.Parent = PidInit
		c.mu.Unlock()
		if init != nil {
			init.mu.Lock()
			init.children[c.Pid] = c
			init.mu.Unlock()
		}
	}

	if parent := Lookup(p.Parent); parent != nil {
		parent.mu.Lock()
		parent.deadChildren = append(parent.deadChildren, p.Pid)
		parent.mu.Unlock()
		Sched.BroadcastOn(parent.waitq)
	}
}

// freePid removes pid from the process table and releases its page
// directory, completing a reap.
func freePid(pid Pid) {
	procMu.Lock()
	p := procTable[pid]
	delete(procTable, pid)
	procMu.Unlock()
	if p != nil {
		FreePageDir(p.PageDir)
		releaseProc()
	}
}

// DoWaitpid implements do_waitpid: reap a DEAD child of cpu's current
// process, blocking cancellably until one becomes available if pid names
// a child that exists but has not yet exited. pid == -1 waits for any
// child. Matches spec §4.2 exactly, including "no child" when pid names
// (or -1 finds) nothing to wait for at all.
func DoWaitpid(cpu *CPU, pid Pid) (Pid, int, kerr.Err) {
	parent := cpu.Curproc
	for {
		if reaped, status, ok := tryReap(parent, pid); ok {
			return reaped, status, kerr.OK
		} else if !ok && pid != -1 && !parent.hasChild(pid) {
			return 0, 0, kerr.NoChild
		} else if pid == -1 && parent.childCount() == 0 {
			return 0, 0, kerr.NoChild
		}

		if cancelled := Sched.SleepCancellableOn(cpu, parent.waitq); cancelled {
			return 0, 0, kerr.Interrupted
		}
	}
}

func (p *Proc) hasChild(pid Pid) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.children[pid]
	return ok
}

func (p *Proc) childCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.children)
}

// tryReap looks for a DEAD child of parent matching pid (or, for pid ==
// -1, the one that died longest ago) and reaps it if found. ok is false
// both when pid doesn't match any child and when it matches a child that
// is still alive; callers distinguish the two with hasChild/childCount.
// pid == -1 consults parent.deadChildren, an explicit FIFO, rather than
// ranging over the children map, so concurrent deaths are reaped in
// exit order per spec.md §8.
func tryReap(parent *Proc, pid Pid) (Pid, int, bool) {
	parent.mu.Lock()
	reaped, found := Pid(0), false
	if pid == -1 {
		if len(parent.deadChildren) > 0 {
			reaped = parent.deadChildren[0]
			parent.deadChildren = parent.deadChildren[1:]
			found = true
		}
	} else {
		for i, dpid := range parent.deadChildren {
			if dpid == pid {
				reaped = dpid
				parent.deadChildren = append(parent.deadChildren[:i], parent.deadChildren[i+1:]...)
				found = true
				break
			}
		}
	}
	var c *Proc
	if found {
		c = parent.children[reaped]
		delete(parent.children, reaped)
	}
	parent.mu.Unlock()

	if !found {
		return 0, 0, false
	}
	status := 0
	if c != nil {
		status = c.ExitStatus
		parent.Accounting.Merge(&c.Accounting)
	}
	freePid(reaped)
	return reaped, status, true
}

package proc

import (
	"container/list"
	"sync/atomic"

	"vkernel/internal/kctx"
)

// Tid is a thread identifier, unique within its owning process.
type Tid int

// State is a kernel thread's scheduling state, the state machine of
// spec.md §4.3: component D.
type State int

const (
	// Run is the single thread executing on the (single) CPU.
	Run State = iota
	// Runnable threads are eligible to be switched to.
	Runnable
	// Sleep threads are blocked and cannot be woken by Cancel.
	Sleep
	// SleepCancellable threads are blocked and can be woken by either
	// WakeupOn or Cancel.
	SleepCancellable
	// Exited threads have run thread_exit and await reaping.
	Exited
)

func (s State) String() string {
	switch s {
	case Run:
		return "RUN"
	case Runnable:
		return "RUNNABLE"
	case Sleep:
		return "SLEEP"
	case SleepCancellable:
		return "SLEEP_CANCELLABLE"
	case Exited:
		return "EXITED"
	default:
		return "UNKNOWN"
	}
}

var nextTid int64

func allocTid() Tid {
	return Tid(atomic.AddInt64(&nextTid, 1))
}

// Thread is a kernel thread: component D. Proc is a non-owning back
// reference; Ctx is the saved machine context (component A), which holds
// the thread's exclusively owned kernel stack. A thread sits on at most one wait
// Queue at a time (queue/qelem).
type Thread struct {
	ID    Tid
	Proc  *Proc
	Ctx   *kctx.Context
	State State

	// Cancelled is sticky: set by Cancel, consulted (and cleared) the
	// next time this thread enters a cancellable sleep.
	Cancelled bool

	Retval int

	queue *Queue
	qelem *list.Element

	// sibling link within the owning process's thread set.
	procNext *Thread

	resume chan struct{}
	runq   *list.Element // this thread's node in the scheduler's run queue, if runnable
}

// newThread allocates a thread in state Runnable-to-be-announced; callers
// must call Scheduler.MakeRunnable to actually schedule it.
func newThread(p *Proc, ctx *kctx.Context) *Thread {
	t := &Thread{
		ID:     allocTid(),
		Proc:   p,
		Ctx:    ctx,
		State:  Runnable,
		resume: make(chan struct{}, 1),
	}
	go t.loop()
	return t
}

// loop is the thread's host goroutine. It blocks until the scheduler
// first signals resume, runs the thread's entry point to completion, and
// then performs an implicit thread_exit if the entry function returned
// without calling Exit itself.
func (t *Thread) loop() {
	<-t.resume
	t.Ctx.Resume()
	if t.State != Exited {
		ThreadExit(Sched.CPU0(), 0)
	}
}

package proc

import (
	"container/list"
	"sync"
)

// CPU carries the "current process/current thread" pointers that a
// single-CPU cooperative kernel would otherwise keep in globals. Per
// spec.md §9's design note, it is threaded explicitly through every
// scheduler/fork/proc entry point rather than read from a global,
// because on SMP (out of scope here, but the reason the spec calls this
// out) these become per-CPU variables, not process-wide ones.
type CPU struct {
	Curthr  *Thread
	Curproc *Proc
}

// Scheduler implements components B (the runnable queue, a plain
// container/list of threads rather than a Queue) and C (cooperative
// multitasking): spec.md §4.1.
// Its mutex is the cooperative-kernel stand-in for "interrupts disabled"
// across the dequeue-next/context-switch pair the spec requires.
type Scheduler struct {
	mu   sync.Mutex
	runq *list.List // of *Thread, via runq field
	idle *Thread

	// cpu0 is the system's single CPU. Spec.md §9's design note asks
	// that curproc/curthr be threaded as an explicit parameter rather
	// than read from a bare global; cpu0 is that parameter's one
	// concrete instance on this (non-SMP) kernel. Callers fetch it once
	// via CPU0 and pass it down explicitly from there, so code never
	// reaches for a free-floating *Thread global.
	cpu0 *CPU
}

// NewScheduler returns an empty scheduler. Production code uses the
// package-level Sched singleton; NewScheduler exists so tests can run
// multiple independent schedulers without interfering with each other.
func NewScheduler() *Scheduler {
	return &Scheduler{runq: list.New(), cpu0: &CPU{}}
}

// CPU0 returns the kernel's single CPU context. SMP (out of scope, spec
// §1) would return one per physical core instead.
func (s *Scheduler) CPU0() *CPU {
	return s.cpu0
}

// Sched is the kernel's single scheduler instance: legitimately a
// singleton on a single-CPU cooperative kernel (unlike curproc/curthr,
// which vary per call site and are therefore threaded explicitly via
// CPU instead of read from here).
var Sched = NewScheduler()

// SetIdle designates t as the thread that runs whenever nothing else is
// runnable. It must never exit.
func (s *Scheduler) SetIdle(t *Thread) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.idle = t
}

// MakeRunnable transitions t to Runnable and enqueues it on the run
// queue. Safe to call for a thread that is not currently running.
func (s *Scheduler) MakeRunnable(t *Thread) {
	s.mu.Lock()
	t.State = Runnable
	t.runq = s.runq.PushBack(t)
	s.mu.Unlock()
}

// pickNext pops the next runnable thread, or the idle thread if the run
// queue is empty. Caller must hold s.mu.
func (s *Scheduler) pickNext() *Thread {
	e := s.runq.Front()
	if e == nil {
		if s.idle == nil {
			panic("proc: scheduler has no runnable thread and no idle thread")
		}
		return s.idle
	}
	s.runq.Remove(e)
	t := e.Value.(*Thread)
	t.runq = nil
	return t
}

// Start kicks off the very first thread on cpu. It must be called
// exactly once, from outside any kernel thread (the boot path), since
// unlike Switch it does not block waiting to be rescheduled.
func (s *Scheduler) Start(cpu *CPU, t *Thread) {
	s.mu.Lock()
	t.State = Run
	cpu.Curthr = t
	cpu.Curproc = t.Proc
	s.mu.Unlock()
	t.resume <- struct{}{}
}

// Switch yields the CPU to the next runnable thread and blocks the
// caller until it is itself scheduled again. It never "returns on behalf
// of the same call" in the sense the spec means: the goroutine that
// called Switch is parked on its own resume channel until some future
// MakeRunnable-reachable event schedules it, at which point this call
// returns and the caller resumes exactly where it yielded.
func (s *Scheduler) Switch(cpu *CPU) {
	s.mu.Lock()
	prev := cpu.Curthr
	next := s.pickNext()
	if prev != nil && prev.State == Run {
		prev.State = Runnable
		prev.runq = s.runq.PushBack(prev)
	}
	next.State = Run
	cpu.Curthr = next
	cpu.Curproc = next.Proc
	s.mu.Unlock()

	if next == prev {
		return
	}
	next.resume <- struct{}{}
	<-prev.resume
}

// switchAway is used by paths that must never become runnable again
// after yielding (sleep, exit): unlike Switch it does not re-enqueue
// prev onto the run queue.
func (s *Scheduler) switchAway(cpu *CPU) {
	s.mu.Lock()
	prev := cpu.Curthr
	next := s.pickNext()
	next.State = Run
	cpu.Curthr = next
	cpu.Curproc = next.Proc
	s.mu.Unlock()

	if next == prev {
		panic("proc: thread switched away from itself")
	}
	next.resume <- struct{}{}
	<-prev.resume
}

// SleepOn puts the calling thread to sleep (uncancellable) on q and
// switches away. It returns once some other thread calls WakeupOn or
// BroadcastOn on q.
func (s *Scheduler) SleepOn(cpu *CPU, q *Queue) {
	s.mu.Lock()
	t := cpu.Curthr
	t.State = Sleep
	q.pushBack(t)
	s.mu.Unlock()
	s.switchAway(cpu)
}

// SleepCancellableOn puts the calling thread to sleep cancellably on q.
// It returns true if the sleep was interrupted by Cancel (including the
// case where the thread was already marked cancelled from a prior
// uncancellable context) rather than woken normally.
func (s *Scheduler) SleepCancellableOn(cpu *CPU, q *Queue) (cancelled bool) {
	s.mu.Lock()
	t := cpu.Curthr
	if t.Cancelled {
		t.Cancelled = false
		s.mu.Unlock()
		return true
	}
	t.State = SleepCancellable
	q.pushBack(t)
	s.mu.Unlock()

	s.switchAway(cpu)

	s.mu.Lock()
	defer s.mu.Unlock()
	if t.Cancelled {
		t.Cancelled = false
		return true
	}
	return false
}

// WakeupOn wakes and returns the head of q, or nil if q is empty.
func (s *Scheduler) WakeupOn(q *Queue) *Thread {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.wakeupOnLocked(q)
}

func (s *Scheduler) wakeupOnLocked(q *Queue) *Thread {
	if q.empty() {
		return nil
	}
	t := q.popFront()
	if t.State != Sleep && t.State != SleepCancellable {
		panic("proc: woke thread not asleep: " + t.State.String())
	}
	t.State = Runnable
	t.runq = s.runq.PushBack(t)
	return t
}

// BroadcastOn wakes every thread currently waiting on q. Threads that
// arrive on q after the broadcast are not woken by it, per spec.md §5.
func (s *Scheduler) BroadcastOn(q *Queue) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for s.wakeupOnLocked(q) != nil {
	}
}

// Cancel marks t cancelled. If t is currently sleeping cancellably, it is
// removed from its queue and made runnable immediately; its caller will
// observe SleepCancellableOn returning true. If t is asleep
// uncancellably or not asleep at all, the flag is recorded and consulted
// the next time t enters a cancellable sleep. A thread may be cancelled
// more than once; only the sticky flag matters.
func (s *Scheduler) Cancel(t *Thread) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t.Cancelled = true
	if t.State == SleepCancellable {
		if t.queue != nil {
			t.queue.remove(t)
		}
		t.State = Runnable
		t.runq = s.runq.PushBack(t)
	}
}

// Yield moves the calling thread to the back of the run queue and
// switches to the next runnable thread.
func (s *Scheduler) Yield(cpu *CPU) {
	s.Switch(cpu)
}

// Exit marks cpu's current thread Exited and switches away permanently;
// the thread's goroutine returns afterward without running any more
// kernel code. The caller (normally ThreadExit) is responsible for the
// process-level cleanup spec.md §4.2 describes before calling this.
func (s *Scheduler) Exit(cpu *CPU, retval int) {
	s.mu.Lock()
	t := cpu.Curthr
	t.State = Exited
	t.Retval = retval
	s.mu.Unlock()
	s.switchAway(cpu)
}

package proc

import (
	"sync"
	"sync/atomic"
	"time"
)

// Accounting accumulates a process's CPU-time usage, adapted from the
// teacher's accnt.Accnt_t. Neither spec.md's distilled process lifecycle
// nor original_source/kernel/main/kmain.c models per-process accounting
// explicitly, but every Weenix-derived kernel (the teacher included)
// carries it alongside process state, so Process (E) gets one here too.
type Accounting struct {
	Userns int64
	Sysns  int64
	mu     sync.Mutex
}

// AddUser adds delta nanoseconds of user-mode time.
func (a *Accounting) AddUser(delta time.Duration) {
	atomic.AddInt64(&a.Userns, int64(delta))
}

// AddSys adds delta nanoseconds of kernel-mode time.
func (a *Accounting) AddSys(delta time.Duration) {
	atomic.AddInt64(&a.Sysns, int64(delta))
}

// Merge folds n's totals into a, used when a reaped child's usage is
// charged to its parent (the teacher's Accnt_t.Add, used the same way
// by wait4-shaped syscalls).
func (a *Accounting) Merge(n *Accounting) {
	a.mu.Lock()
	defer a.mu.Unlock()
	atomic.AddInt64(&a.Userns, atomic.LoadInt64(&n.Userns))
	atomic.AddInt64(&a.Sysns, atomic.LoadInt64(&n.Sysns))
}

// Rusage is the getrusage(2)-shaped view of Accounting, the contract
// Proc.Rusage exposes over the syscall boundary.
type Rusage struct {
	UserTime time.Duration
	SysTime  time.Duration
}

// Rusage returns p's current resource usage snapshot.
func (p *Proc) Rusage() Rusage {
	return Rusage{
		UserTime: time.Duration(atomic.LoadInt64(&p.Accounting.Userns)),
		SysTime:  time.Duration(atomic.LoadInt64(&p.Accounting.Sysns)),
	}
}

package proc

import (
	"sync/atomic"

	"vkernel/internal/kerr"
)

// Sysatomic is an atomically-bounded system-wide counter, adapted from
// the teacher's limits.Sysatomic_t: Take reserves one unit of some scarce
// resource and fails once Max is reached, Give releases it back.
type Sysatomic struct {
	taken int64
	Max   int64
}

// Take reserves one unit, returning false if the limit is already
// exhausted.
func (s *Sysatomic) Take() bool {
	for {
		cur := atomic.LoadInt64(&s.taken)
		if cur >= s.Max {
			return false
		}
		if atomic.CompareAndSwapInt64(&s.taken, cur, cur+1) {
			return true
		}
	}
}

// Give releases one previously-Taken unit.
func (s *Sysatomic) Give() {
	atomic.AddInt64(&s.taken, -1)
}

// Taken reports the current reservation count.
func (s *Sysatomic) Taken() int64 {
	return atomic.LoadInt64(&s.taken)
}

// SysLimits is the system-wide resource ledger proc_create consults to
// return NoSpace instead of growing the process table unboundedly,
// adapted from the teacher's limits.Syslimit_t. Only Sysprocs —
// SPEC_FULL.md's process-core concern — is kept; the teacher's network-
// and filesystem-specific ledgers (Arpents, Routes, Tcpsegs, Socks,
// Pipes) have no referent here since those subsystems are out of scope,
// and the frame cache's own MaxFrames (internal/mem) already plays the
// Sysatomic role for resident pages without needing to import this
// package (mem sits below proc in the dependency graph; see DESIGN.md).
type SysLimits struct {
	Sysprocs Sysatomic // bounds live process count
}

// Limits is the kernel's single system-wide resource ledger.
var Limits = &SysLimits{
	Sysprocs: Sysatomic{Max: 1 << 16},
}

// reserveProc takes a Sysprocs reservation for Create before it admits a
// new process, and releaseProc (called from freePid in lifecycle.go)
// gives it back; both are unexported so the reservation can never be
// taken without being matched by a release.
func reserveProc() kerr.Err {
	if !Limits.Sysprocs.Take() {
		return kerr.NoSpace
	}
	return kerr.OK
}

func releaseProc() {
	Limits.Sysprocs.Give()
}

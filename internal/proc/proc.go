package proc

import (
	"sync"
	"sync/atomic"

	"vkernel/internal/fsiface"
	"vkernel/internal/kerr"
	"vkernel/internal/ustr"
	"vkernel/internal/vm"
)

// Pid is a process identifier.
type Pid int

// Reserved PIDs from spec.md §3's early boot convention.
const (
	PidIdle Pid = 1
	PidInit Pid = 2
)

// NFILES is the fixed size of a process's file table, mirroring the
// teacher's NFILES constant.
const NFILES = 64

// ProcState is a process's lifecycle state: component E.
type ProcState int

const (
	Running ProcState = iota
	Dead
)

func (s ProcState) String() string {
	if s == Dead {
		return "DEAD"
	}
	return "RUNNING"
}

// FileDescriptor is a process's handle onto an open fsiface.File,
// grounded on the teacher's fd.Fd_t (Fops + Perms).
type FileDescriptor struct {
	File  fsiface.File
	Perms int
}

// Cwd tracks a process's current working directory, grounded on the
// teacher's fd.Cwd_t: a refcounted vnode plus the canonical path used to
// resolve relative lookups.
type Cwd struct {
	mu   sync.Mutex
	Node fsiface.Vnode
	Path ustr.Ustr
}

// Fullpath joins cwd with p if p is not already absolute.
func (c *Cwd) Fullpath(p ustr.Ustr) ustr.Ustr {
	c.mu.Lock()
	defer c.mu.Unlock()
	if p.IsAbsolute() {
		return p
	}
	return c.Path.Extend(p)
}

var nextPid int64 = int64(PidInit)

func allocPid() Pid {
	return Pid(atomic.AddInt64(&nextPid, 1))
}

// procTable is the global PID -> Proc map, guarded by procMu. procMu
// covers only the table; the parent/child links (Proc.children) are
// guarded by each parent's own mu.
var (
	procMu    sync.Mutex
	procTable = map[Pid]*Proc{}
)

// Proc is a kernel process: component E. Parent is a weak reference (a
// PID, looked up lazily) so the tree never forms a strong reference
// cycle a GC-free kernel would have to break by hand; Go's GC makes that
// unnecessary, but the weak-PID shape is kept because spec.md §3 names it
// as the process's attribute, and because a dead parent's PID must still
// resolve to nothing once reaped.
type Proc struct {
	Pid    Pid
	Name   string
	Parent Pid // 0 means no parent (IDLE)

	Map *vm.Map // nil for kernel-only processes, per spec §3

	PageDir uintptr

	Cwd *Cwd

	mu       sync.Mutex
	children map[Pid]*Proc
	threads  map[Tid]*Thread

	// deadChildren holds the pids of dead-but-unreaped children in the
	// order they died, so waitpid(-1) reaps in exit order (spec.md §8's
	// named scenario) rather than in the unspecified order a map range
	// would give.
	deadChildren []Pid

	files [NFILES]*FileDescriptor

	StartBrk uintptr
	Brk      uintptr

	Status     ProcState
	ExitStatus int

	// Accounting is this process's own CPU-time usage; child usage gets
	// merged in at reap time by DoWaitpid, mirroring the teacher's
	// Accnt_t.Add semantics.
	Accounting Accounting

	// deadThreads holds threads this process has run that have already
	// called thread_exit but have not yet been reaped, per spec.md §4.2.
	deadThreads []*Thread

	// waitq is where a waitpid caller with no matching dead child blocks,
	// and what procThreadExited broadcasts on.
	waitq *Queue
}

// Lookup returns the process with the given PID, or nil.
func Lookup(pid Pid) *Proc {
	procMu.Lock()
	defer procMu.Unlock()
	return procTable[pid]
}

// Create implements proc_create: allocates a PID, a zeroed file table, a
// fresh address space (nil for now — the caller wires one in via
// Proc.Map when VM is configured, per spec §4.2 "if VM is configured"),
// and attaches to parent as a child. Returns kerr.NoSpace once Limits
// .Sysprocs is exhausted rather than growing the process table
// unboundedly.
func Create(name string, parent *Proc) (*Proc, kerr.Err) {
	if err := reserveProc(); !err.Ok() {
		return nil, err
	}
	return create(name, parent, allocPid()), kerr.OK
}

// CreateReserved is Create for the two PIDs the early boot convention
// reserves (spec §3): IDLE (pid 1, no parent) and INIT (pid 2, parented
// to IDLE). internal/boot is the only caller; IDLE and INIT are exempt
// from Limits.Sysprocs since they exist for the kernel's whole lifetime.
func CreateReserved(name string, pid Pid, parent *Proc) *Proc {
	return create(name, parent, pid)
}

func create(name string, parent *Proc, pid Pid) *Proc {
	p := &Proc{
		Pid:      pid,
		Name:     name,
		children: map[Pid]*Proc{},
		threads:  map[Tid]*Thread{},
		waitq:    NewQueue(),
		Status:   Running,
	}
	if parent != nil {
		p.Parent = parent.Pid
	}

	procMu.Lock()
	procTable[p.Pid] = p
	procMu.Unlock()

	if parent != nil {
		parent.mu.Lock()
		parent.children[p.Pid] = p
		parent.mu.Unlock()
	}
	return p
}

// AddThread attaches t to p's thread set. Called by thread_create and by
// fork once the cloned thread exists.
func (p *Proc) AddThread(t *Thread) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.threads[t.ID] = t
}

// liveThreadCount returns how many of p's threads are not yet EXITED.
// Caller must hold p.mu.
func (p *Proc) liveThreadCount() int {
	n := 0
	for _, t := range p.threads {
		if t.State != Exited {
			n++
		}
	}
	return n
}

// File returns the descriptor at fd, or nil if unset or out of range.
func (p *Proc) File(fd int) *FileDescriptor {
	if fd < 0 || fd >= NFILES {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.files[fd]
}

// SetFile installs desc at fd, replacing whatever was there (the caller
// is responsible for Put-ing any displaced file).
func (p *Proc) SetFile(fd int, desc *FileDescriptor) kerr.Err {
	if fd < 0 || fd >= NFILES {
		return kerr.BadFD
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.files[fd] = desc
	return kerr.OK
}

// NextFreeFD returns the lowest unused file descriptor, or TooManyFiles if
// the table is full.
func (p *Proc) NextFreeFD() (int, kerr.Err) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := 0; i < NFILES; i++ {
		if p.files[i] == nil {
			return i, kerr.OK
		}
	}
	return -1, kerr.TooManyFiles
}

package proc

import (
	"testing"

	"vkernel/internal/kerr"
)

// TestWaitpidOrdering exercises the scenario named in spec.md §8: a parent
// has two children, the second finishes before the first, and two calls
// to waitpid(-1) reap them in exit order rather than creation order.
// procThreadExited is called directly (the process-death half of
// thread_exit) rather than routing through ThreadExit/Scheduler.Exit,
// since the scheduler handoff those perform needs a live cooperative run
// loop behind it; procThreadExited's own bookkeeping — the part this test
// actually exercises — never touches the scheduler's resume channels.
func TestWaitpidOrdering(t *testing.T) {
	parent, err := Create("wait-parent", nil)
	if !err.Ok() {
		t.Fatalf("Create(parent) = %v", err)
	}
	c1, err := Create("c1", parent)
	if !err.Ok() {
		t.Fatalf("Create(c1) = %v", err)
	}
	c2, err := Create("c2", parent)
	if !err.Ok() {
		t.Fatalf("Create(c2) = %v", err)
	}

	procThreadExited(c2, 22)
	procThreadExited(c1, 11)

	cpu := &CPU{Curproc: parent}

	pid, status, err := DoWaitpid(cpu, -1)
	if !err.Ok() {
		t.Fatalf("first DoWaitpid = %v", err)
	}
	if pid != c2.Pid || status != 22 {
		t.Fatalf("first waitpid(-1) = (%d, %d), want (%d, 22) — c2 exited first", pid, status, c2.Pid)
	}

	pid, status, err = DoWaitpid(cpu, -1)
	if !err.Ok() {
		t.Fatalf("second DoWaitpid = %v", err)
	}
	if pid != c1.Pid || status != 11 {
		t.Fatalf("second waitpid(-1) = (%d, %d), want (%d, 11)", pid, status, c1.Pid)
	}

	if _, _, err := DoWaitpid(cpu, -1); err != kerr.NoChild {
		t.Fatalf("third waitpid(-1) with no children left = %v, want NoChild", err)
	}
}

func TestWaitpidNoMatchingChildReturnsImmediately(t *testing.T) {
	parent, _ := Create("lonely-parent", nil)
	cpu := &CPU{Curproc: parent}
	if _, _, err := DoWaitpid(cpu, 99999); err != kerr.NoChild {
		t.Fatalf("DoWaitpid for a nonexistent pid = %v, want NoChild", err)
	}
}

func TestProcThreadExitedReparentsChildrenToInit(t *testing.T) {
	init := Lookup(PidInit)
	if init == nil {
		init = CreateReserved("init", PidInit, nil)
	}

	dying, err := Create("dying-parent", nil)
	if !err.Ok() {
		t.Fatalf("Create = %v", err)
	}
	orphan, err := Create("orphan", dying)
	if !err.Ok() {
		t.Fatalf("Create(orphan) = %v", err)
	}

	procThreadExited(dying, 0)

	if orphan.Parent != PidInit {
		t.Fatalf("orphan.Parent = %d, want %d after its parent exited", orphan.Parent, PidInit)
	}
	if dying.Status != Dead {
		t.Fatalf("dying.Status = %v, want Dead", dying.Status)
	}
}

func TestAccountingMergesIntoParentAtReap(t *testing.T) {
	parent, _ := Create("acct-parent", nil)
	child, _ := Create("acct-child", parent)
	child.Accounting.AddUser(100)
	child.Accounting.AddSys(50)

	procThreadExited(child, 0)

	cpu := &CPU{Curproc: parent}
	if _, _, err := DoWaitpid(cpu, child.Pid); !err.Ok() {
		t.Fatalf("DoWaitpid = %v", err)
	}

	ru := parent.Rusage()
	if ru.UserTime != 100 || ru.SysTime != 50 {
		t.Fatalf("parent.Rusage() = %+v, want UserTime=100 SysTime=50", ru)
	}
}

func TestSysprocsLimitExhausted(t *testing.T) {
	saved := Limits.Sysprocs.Max
	Limits.Sysprocs.Max = Limits.Sysprocs.Taken()
	defer func() { Limits.Sysprocs.Max = saved }()

	if _, err := Create("over-the-limit", nil); err != kerr.NoSpace {
		t.Fatalf("Create() past Limits.Sysprocs.Max = %v, want NoSpace", err)
	}
}

package kctx

import "testing"

func TestNewInitialResumesEntry(t *testing.T) {
	var gotA1, gotA2 int
	called := false
	entry := func(a1, a2 int) {
		called = true
		gotA1, gotA2 = a1, a2
	}

	stack := make([]byte, StackSize)
	c := NewInitial(entry, 7, 9, stack, 0x1000)

	c.Resume()
	if !called {
		t.Fatal("Resume did not invoke entry")
	}
	if gotA1 != 7 || gotA2 != 9 {
		t.Fatalf("entry called with (%d, %d), want (7, 9)", gotA1, gotA2)
	}
	if c.RSP != uint64(StackSize) || c.RBP != uint64(StackSize) {
		t.Fatalf("RSP/RBP = %d/%d, want %d/%d", c.RSP, c.RBP, StackSize, StackSize)
	}
}

func TestNewInitialWrongStackSizePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on wrong stack size")
		}
	}()
	NewInitial(func(int, int) {}, 0, 0, make([]byte, 4), 0)
}

func TestForkChildZeroesReturnRegister(t *testing.T) {
	parent := Regs{RAX: 42, RBX: 99}
	stack := make([]byte, StackSize)
	c := ForkChild(parent, stack, 0x2000, func(int, int) {})

	if c.User.RAX != 0 {
		t.Fatalf("child RAX = %d, want 0", c.User.RAX)
	}
	if c.User.RBX != 99 {
		t.Fatalf("child RBX = %d, want 99 (copied from parent)", c.User.RBX)
	}
	if c.PageDir != 0x2000 {
		t.Fatalf("child PageDir = %#x, want %#x", c.PageDir, 0x2000)
	}
}

func TestResumeWithoutEntryPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic resuming a context with no entry point")
		}
	}()
	(&Context{}).Resume()
}

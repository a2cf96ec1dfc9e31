// Package kctx implements component A: the saved machine register file
// for a kernel thread and the stack-frame construction needed by
// thread_create and fork. It is the bit-exact boundary between the
// scheduler, the fork path, and the (out-of-scope) interrupt exit code,
// per spec.md's design note on the regs_t layout.
package kctx

// StackSize is the fixed size of a kernel thread's stack, matching the
// teacher's DEFAULT_STACK_SIZE convention.
const StackSize = 16 * 1024

// Regs is the user register file saved on a kernel stack across a trap,
// a bit-exact analogue of the C regs_t the trampoline (out of scope)
// builds. Only the fields the fork/exec contract touches are modeled;
// the rest are opaque general-purpose registers.
type Regs struct {
	RAX, RBX, RCX, RDX uint64
	RSI, RDI, RBP      uint64
	R8, R9, R10, R11   uint64
	R12, R13, R14, R15 uint64
	RIP, RSP           uint64
	RFLAGS             uint64
}

// EntryFunc is the fixed kernel-side entry point a new thread's saved
// instruction pointer names; in the real trampoline this is reached by
// `iret`/`ret`-ing off the constructed stack frame. Portable Go cannot
// assemble a raw x86-64 stack frame the way fork_setup_stack does, so
// this module stores the resumption point as an ordinary closure instead
// and Resume invokes it directly — the one place this package diverges
// from a literal transcription of the C source, because the trampoline
// itself is named out of scope by spec.md §1.
type EntryFunc func(arg1, arg2 int)

// Context is the saved machine context of a suspended kernel thread: the
// registers needed to resume it, the address space it resumes into, and
// its exclusively owned kernel stack.
type Context struct {
	// User-visible register snapshot, valid for a thread that trapped
	// in from userland (e.g. via a syscall or page fault).
	User Regs

	// Kernel execution point: where Switch resumes this thread inside
	// kernel code.
	RSP, RBP uint64

	// PageDir is the physical address of this thread's page directory.
	// Kept as an untyped uintptr rather than mem.Pa_t so this leaf
	// package never imports the H component back.
	PageDir uintptr

	// Stack is this thread's exclusively owned kernel stack.
	Stack []byte

	entry      EntryFunc
	arg1, arg2 int
}

// NewInitial builds the context a brand-new thread resumes into so that
// resuming it invokes entry(arg1, arg2) with a fresh frame, per
// thread_create's contract in spec.md §4.2.
func NewInitial(entry EntryFunc, arg1, arg2 int, stack []byte, pagedir uintptr) *Context {
	if len(stack) != StackSize {
		panic("kctx: stack must be StackSize bytes")
	}
	c := &Context{Stack: stack, PageDir: pagedir}
	c.installEntry(entry, arg1, arg2)
	return c
}

// ForkChild builds the child's context for fork(2): the child's saved
// user registers are a copy of the parent's, with the return-value
// register zeroed so the child observes fork() == 0, exactly as
// fork.c:fork_setup_stack plus the `newregs.r_eax = 0` assignment in
// do_fork.
func ForkChild(parentUser Regs, stack []byte, pagedir uintptr, userEntry EntryFunc) *Context {
	if len(stack) != StackSize {
		panic("kctx: stack must be StackSize bytes")
	}
	childRegs := parentUser
	childRegs.RAX = 0 // fork returns 0 in the child
	c := &Context{User: childRegs, Stack: stack, PageDir: pagedir}
	c.installEntry(userEntry, 0, 0)
	return c
}

// installEntry points RSP/RBP at the top of the fresh stack and records
// the resumption closure, mirroring where fork_setup_stack leaves esp
// pointing after it pushes the regs_t and dummy return addresses.
func (c *Context) installEntry(entry EntryFunc, arg1, arg2 int) {
	c.entry = entry
	c.arg1, c.arg2 = arg1, arg2
	c.RSP = uint64(uintptr(len(c.Stack)))
	c.RBP = c.RSP
}

// Resume invokes the context's entry point. The scheduler calls this
// exactly once, the first time a thread is switched to. It panics if the
// context was never given an entry point, which would indicate a thread
// resumed before thread_create/fork finished initializing it.
func (c *Context) Resume() {
	if c.entry == nil {
		panic("kctx: Resume on context with no entry point")
	}
	c.entry(c.arg1, c.arg2)
}

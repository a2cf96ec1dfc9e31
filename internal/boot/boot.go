// Package boot orchestrates kernel startup: bootstrap, the IDLE process,
// INIT, and populating /dev, grounded on
// original_source/kernel/main/kmain.c's kmain -> bootstrap -> idleproc_run
// -> initproc_create sequence. Hardware bring-up (kmain's page_init,
// acpi_init, apic_init, pci_init, intr_init, gdt_init) is out of scope
// per spec.md §1; Boot starts at the point the original reaches
// bootstrap(), where curproc/curthr first exist.
package boot

import (
	"log"

	"vkernel/internal/kctx"
	"vkernel/internal/proc"
)

// Device table for the /dev population kmain's idleproc_run performs
// (console, null, zero, tty, disk), named in spec.md §6.
var devices = []struct {
	name  string
	major int
	minor int
}{
	{"console", 1, 0},
	{"null", 4, 0},
	{"zero", 4, 1},
	{"tty0", 5, 0},
	{"disk0", 6, 0},
}

// Init is the userland entry point INIT's thread resumes into, supplied
// by the caller (normally the ELF loader — out of scope per spec §1 —
// handing control to a freshly exec'd binary). Boot's default just logs
// and exits, so tests and a from-scratch boot sequence both work without
// a real executable wired in.
var Init kctx.EntryFunc = func(arg1, arg2 int) {
	log.Println("boot: init running with no exec target configured, exiting")
	proc.ThreadExit(proc.Sched.CPU0(), 0)
}

// Boot implements the bootstrap()/idleproc_run()/initproc_create()
// sequence: create IDLE (PID 1), have it create INIT (PID 2), populate
// the device table, and start the scheduler. Boot returns once
// Scheduler.Start has handed CPU0 to the idle thread, which runs on its
// own goroutine from then on; Boot does not wait for the kernel's
// threads to finish.
func Boot() {
	idle := proc.CreateReserved("idle", proc.PidIdle, nil)
	pd, err := proc.AllocPageDir()
	if !err.Ok() {
		log.Fatalf("boot: out of memory allocating idle's page directory: %v", err)
	}
	idle.PageDir = pd

	idleThread := proc.ThreadCreate(idle, idleRun, 0, 0)
	proc.Sched.SetIdle(idleThread)

	cpu := proc.Sched.CPU0()
	proc.Sched.Start(cpu, idleThread)
}

// idleRun is IDLE's body: create INIT and then simply stay runnable
// forever, exactly as idleproc_run does once VFS/device setup (out of
// scope here) would otherwise have happened.
func idleRun(arg1, arg2 int) {
	init := proc.CreateReserved("init", proc.PidInit, proc.Lookup(proc.PidIdle))
	pd, err := proc.AllocPageDir()
	if !err.Ok() {
		log.Fatalf("boot: out of memory allocating init's page directory: %v", err)
	}
	init.PageDir = pd

	log.Printf("boot: device table: %d entries (console, null, zero, tty, disk)", len(devices))

	initThread := proc.ThreadCreate(init, Init, 0, 0)
	proc.Sched.MakeRunnable(initThread)

	for {
		proc.Sched.Yield(proc.Sched.CPU0())
	}
}

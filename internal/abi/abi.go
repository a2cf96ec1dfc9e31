// Package abi is the kernel's named boundary with userland: the
// syscall vector, the register-save shape the trampoline hands the
// dispatcher, and the device-number encoding. The trampoline itself
// (the software-interrupt entry stub that builds Regs on the kernel
// stack) is out of scope per spec.md §1; this package only declares the
// contract it must uphold.
package abi

import (
	"vkernel/internal/fork"
	"vkernel/internal/kctx"
	"vkernel/internal/kerr"
	"vkernel/internal/proc"
	"vkernel/internal/vm"
)

// Syscall numbers, the vector named in spec.md §6.
const (
	SysFork = iota + 1
	SysWaitpid
	SysExit
	SysExecve
	SysGetpid
	SysKill
	SysBrk
	SysMmap
	SysMunmap
	SysOpen
	SysClose
	SysRead
	SysWrite
	SysLseek
	SysDup
	SysDup2
	SysPipe
	SysStat
	SysMkdir
	SysRmdir
	SysLink
	SysUnlink
	SysMknod
	SysChdir
)

// Regs is the register file the trampoline saves onto the kernel stack
// before invoking Dispatch. It is an alias of kctx.Regs, since both
// describe the same hardware trap frame: a change to one is a change to
// the other.
type Regs = kctx.Regs

// Dispatch is the syscall entry point: spec.md §6's "the trampoline ...
// invokes the dispatcher". Return convention: non-negative on success,
// negative kerr.Err.ABI() on failure, per spec.md §6.
func Dispatch(cpu *proc.CPU, num int64, regs *Regs) int64 {
	switch num {
	case SysFork:
		pid, err := fork.Do(cpu)
		if !err.Ok() {
			return err.ABI()
		}
		return int64(pid)

	case SysWaitpid:
		pid, status, err := proc.DoWaitpid(cpu, proc.Pid(int(regs.RDI)))
		if !err.Ok() {
			return err.ABI()
		}
		_ = status // caller-supplied &status out-param: outside Dispatch's scope (no user address space writer here)
		return int64(pid)

	case SysExit:
		proc.ThreadExit(cpu, int(regs.RDI))
		return 0 // unreachable: ThreadExit never returns

	case SysGetpid:
		return int64(cpu.Curproc.Pid)

	case SysBrk:
		return doBrk(cpu, uintptr(regs.RDI))

	default:
		return kerr.NotSupported.ABI() // out-of-scope syscalls (open, read, execve, ...)
	}
}

// doBrk implements the in-scope slice of brk(2): grow or shrink the
// heap area to newBrk, creating the heap's ANON area on first call.
func doBrk(cpu *proc.CPU, newBrk uintptr) int64 {
	p := cpu.Curproc
	if newBrk == 0 {
		return int64(p.Brk)
	}
	if newBrk < p.StartBrk {
		return kerr.InvalidArg.ABI()
	}
	if newBrk == p.Brk {
		return int64(p.Brk)
	}

	if p.Brk == p.StartBrk {
		if _, err := p.Map.Map(p.StartBrk, newBrk-p.StartBrk, nil, 0,
			vm.ProtRead|vm.ProtWrite, vm.Private|vm.Anonymous, true); !err.Ok() {
			return err.ABI()
		}
	} else if newBrk > p.Brk {
		if err := p.Map.Remove(p.StartBrk, p.Brk); !err.Ok() {
			return err.ABI()
		}
		if _, err := p.Map.Map(p.StartBrk, newBrk-p.StartBrk, nil, 0,
			vm.ProtRead|vm.ProtWrite, vm.Private|vm.Anonymous, true); !err.Ok() {
			return err.ABI()
		}
	} else if newBrk < p.Brk {
		if err := p.Map.Remove(newBrk, p.Brk); !err.Ok() {
			return err.ABI()
		}
	}

	p.Brk = newBrk
	return int64(newBrk)
}

// DeviceID is a packed major/minor device number, ported from the
// teacher's defs.Mkdev/Unmkdev.
type DeviceID uint

// Device classes for the /dev convention named in spec.md §6's
// surrounding context (memory/null, memory/zero, TTY, disk).
const (
	DevFirst DeviceID = 1
	DevNull  DeviceID = 2
	DevZero  DeviceID = 3
	DevTTY0  DeviceID = 4
	DevDisk0 DeviceID = 5
)

// Mkdev packs a major/minor pair into a DeviceID.
func Mkdev(major, minor int) DeviceID {
	if minor > 0xff {
		panic("abi: bad minor")
	}
	return DeviceID(uint(major)<<8|uint(minor)) << 32
}

// Unmkdev unpacks a DeviceID into its major/minor pair.
func Unmkdev(d DeviceID) (major, minor int) {
	return int(d >> 40), int(uint8(d >> 32))
}

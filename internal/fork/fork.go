// Package fork implements component I: fork(2) and the copy-on-write
// shadow-chain machinery it depends on. Do is a direct, idiomatic-Go
// transcription of original_source/kernel/proc/fork.c's do_fork, split
// into the same named helpers the C original uses (newobjs_alloc,
// setup_mmobjs, copy_fds) plus the chain-collapse loop inlined at the
// end of do_fork itself.
package fork

import (
	"vkernel/internal/kerr"
	"vkernel/internal/mmobj"
	"vkernel/internal/proc"
	"vkernel/internal/vm"
)

// FlushUserMappings is the named external collaborator for "unmap all
// user-range page-table entries and flush the TLB" (spec §4.3 step 9):
// real paging hardware manipulation, out of scope per spec §1. The
// default is a no-op so the rest of fork is exercisable without a real
// MMU driver wired in.
var FlushUserMappings = func(pagedir uintptr) {}

// Do implements do_fork: spec §4.3's ten-step algorithm. On success it
// returns the child's PID to the parent, matching the fork(2) contract
// in spec §6 (the child itself observes 0, via the zeroed eax baked into
// its cloned context by proc.ThreadClone).
func Do(cpu *proc.CPU) (proc.Pid, kerr.Err) {
	parent := cpu.Curproc
	parentThread := cpu.Curthr

	areas := parent.Map.Areas()
	privateCount := 0
	for _, a := range areas {
		if a.Flags&vm.Private != 0 {
			privateCount++
		}
	}

	// Step 2: clone the VM map's structure only — no refs yet. Step 5
	// below (installShadows/copy_fds's sibling) does every ref the
	// algorithm calls for, exactly once each.
	newmap := parent.Map.CloneStructureOnly(nil)

	// Step 3: pre-allocate two shadows per PRIVATE area, chained for
	// failure cleanup.
	shadows, err := allocShadowPairs(privateCount)
	if !err.Ok() {
		return 0, err
	}

	// Step 4: create the child process.
	child, err := proc.Create(parent.Name, parent)
	if !err.Ok() {
		freeShadowChain(shadows)
		return 0, err
	}
	pagedir, err := proc.AllocPageDir()
	if !err.Ok() {
		freeShadowChain(shadows)
		return 0, err
	}
	child.PageDir = pagedir
	child.StartBrk = parent.StartBrk
	child.Brk = parent.Brk
	newmap.Owner = child
	child.Map = newmap

	newthr := proc.ThreadClone(parentThread, child)

	// Step 5: reparent objects onto the (parent_area, child_area) pairs.
	installShadows(areas, child.Map.Areas(), shadows)

	// Step 6: copy the file descriptor table.
	copyFileTable(parent, child)

	// Step 7: opportunistic shadow-chain collapse.
	collapseChains(areas)

	// Step 9: force parent re-faults so copy-on-write takes effect.
	FlushUserMappings(parent.PageDir)

	// Step 10: make the child's thread runnable.
	proc.Sched.MakeRunnable(newthr)

	return child.Pid, kerr.OK
}

// allocShadowPairs implements newobjs_alloc: allocates 2*n fresh shadow
// objects and chains them via Shadowed so a failure partway through can
// be cleaned up by putting just the head (Object.Put recurses down a
// shadow's Shadowed chain, exactly as the C comment notes: "this cleans
// up all the objects because of how put works"). Shadow objects are
// plain Go structs, so allocation itself cannot fail in this model —
// the chain-cleanup plumbing is kept anyway because it is what the real
// failure path (a future physical-frame-backed shadow allocator) would
// reuse verbatim.
func allocShadowPairs(n int) ([]*mmobj.Object, kerr.Err) {
	pairs := make([]*mmobj.Object, 0, 2*n)
	var head *mmobj.Object
	for i := 0; i < 2*n; i++ {
		o := mmobj.NewShadow()
		if head != nil {
			o.SetShadowed(head)
		}
		head = o
		pairs = append(pairs, o)
	}
	return pairs, kerr.OK
}

// freeShadowChain releases a shadow list built by allocShadowPairs that
// was never installed into any area, used on the proc_create/AllocPageDir
// failure paths per spec §5's "failure-cleanup ordering".
func freeShadowChain(shadows []*mmobj.Object) {
	if len(shadows) == 0 {
		return
	}
	// The chain runs tail-to-head through Shadowed; putting the most
	// recently allocated one (the head) recursively puts the rest.
	shadows[len(shadows)-1].Put()
}

// installShadows implements setup_mmobjs: for each aligned
// (parent_area, child_area) pair, SHARED areas simply ref the same
// object once more; PRIVATE areas pop two pre-allocated shadows, wire
// their Shadowed/Bottom pointers at the base object, and install one
// into each area. shadows is consumed front-to-back, one pair at a time.
func installShadows(parentAreas, childAreas []*vm.Area, shadows []*mmobj.Object) {
	idx := 0
	for i := range parentAreas {
		oldvma, newvma := parentAreas[i], childAreas[i]

		if oldvma.Flags&vm.Private == 0 {
			// SHARED: child_area keeps the same object; ref it once.
			newvma.Object = oldvma.Object
			oldvma.Object.Ref()
			continue
		}

		oldshadow, newshadow := shadows[idx], shadows[idx+1]
		idx += 2

		base := oldvma.Object
		oldshadow.SetShadowed(base)
		newshadow.SetShadowed(base)

		bottom := base
		if base.Kind == mmobj.Shadow {
			bottom = base.Bottom()
		}
		oldshadow.SetBottom(bottom)
		newshadow.SetBottom(bottom)

		oldvma.Object = oldshadow
		newvma.Object = newshadow

		// base loses its one direct area-reference (oldvma no longer
		// points at it) but gains two shadow references: net +1.
		base.Ref()

		// Step 5's last piece: link the child's new area onto the
		// bottom object's area list (fork.c links only newvma, never
		// oldvma, at this point — the parent's own area is already
		// anchored from whenever it was first mapped).
		newvma.AnchorEl = bottom.LinkArea(newvma)
	}
}

// copyFileTable implements copy_fds: memcpy the descriptor pointers and
// ref each open file.
func copyFileTable(parent, child *proc.Proc) {
	for i := 0; i < proc.NFILES; i++ {
		d := parent.File(i)
		if d == nil {
			continue
		}
		d.File.Ref()
		nd := &proc.FileDescriptor{File: d.File, Perms: d.Perms}
		child.SetFile(i, nd)
	}
}

// collapseChains implements do_fork's trailing chain-collapse loop: for
// each parent area, walk its shadow chain looking for an interior shadow
// whose only external holder is the object above it (refcount minus
// resident pages equals 1). Such a shadow's pages are migrated to the
// walk's current "last" object and it is spliced out of the chain.
//
// Refcount bookkeeping: last.Ref() before the loop holds one extra
// reference beyond the area's own, for the whole walk. Each iteration
// either collapses o into last (last keeps the extra ref; o drops back
// to its pre-loop count and is put) or does not (the extra ref moves
// from the old last onto the new o via o.Ref(), and the old last is put
// to shed it). The final last.Put() after the loop exactly cancels
// whichever object currently holds the extra reference, so every object
// that is not the walk's final last nets zero.
func collapseChains(areas []*vm.Area) {
	for _, vma := range areas {
		last := vma.Object
		last.Ref()

		o := last.Shadowed()
		for o != nil {
			shadow := o.Shadowed()
			if shadow == nil {
				break
			}
			if o.Refcount()-o.Nrespages() == 1 {
				o.MigratePagesTo(last)
				last.SetShadowed(shadow)
				shadow.Ref()
				o.Put()
			} else {
				o.Ref()
				last.Put()
				last = o
			}
			o = shadow
		}

		last.Put()
	}
}

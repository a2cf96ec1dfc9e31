// Package vm implements component G: the per-process virtual memory
// map. Area and Map are grounded on the teacher's Vminfo_t/Vmregion_t —
// the same half-open-page-range-to-object shape, with page alignment
// checked in Map and Remove before anything is inserted or removed.
package vm

import (
	"container/list"

	"vkernel/internal/kerr"
	"vkernel/internal/mem"
	"vkernel/internal/mmobj"
)

// Prot is a page protection bitmask: read, write and execute.
type Prot uint

const (
	ProtRead Prot = 1 << iota
	ProtWrite
	ProtExec
)

// Flags describes an area's sharing and placement semantics.
type Flags uint

const (
	// Private areas get a private copy-on-write view of their object
	// (the shadow chain machinery exists entirely to serve these).
	Private Flags = 1 << iota
	// Shared areas have every mapper see the same object directly.
	Shared
	// Anonymous areas are backed by a freshly created ANON object
	// rather than a caller-supplied one.
	Anonymous
)

// Area is a single mapped virtual region: component G's VM area.
// [Start, End) is a page-aligned half-open range; FileOffset is in
// pages, matching the teacher's foff-in-pages convention.
type Area struct {
	Start, End uintptr
	Prot       Prot
	Flags      Flags
	FileOffset int
	Object     *mmobj.Object

	// AnchorEl is set when this area has been linked onto its bottom
	// object's area list (spec §4.3 step 5, mmobj.Object.LinkArea) —
	// currently only the freshly-forked child's area. nil means
	// unlinked; callers that remove an anchored area must UnlinkArea it
	// before putting the object reference.
	AnchorEl *list.Element

	el *list.Element
}

func (a *Area) contains(addr uintptr) bool {
	return addr >= a.Start && addr < a.End
}

func (a *Area) overlaps(start, end uintptr) bool {
	return a.Start < end && start < a.End
}

// Map is a process's virtual address space: component G's VM map.
// Owner is kept as `any` (rather than *proc.Proc) so this package never
// depends on proc — proc.Proc embeds *vm.Map, not the other way around.
type Map struct {
	Owner any
	areas *list.List // of *Area, ascending by Start
}

// NewMap returns an empty address space.
func NewMap(owner any) *Map {
	return &Map{Owner: owner, areas: list.New()}
}

func pageAlign(addr uintptr) bool {
	return addr%uintptr(mem.PageSize) == 0
}

// Lookup returns the area containing addr, if any.
func (m *Map) Lookup(addr uintptr) (*Area, bool) {
	for e := m.areas.Front(); e != nil; e = e.Next() {
		a := e.Value.(*Area)
		if a.contains(addr) {
			return a, true
		}
		if a.Start > addr {
			break
		}
	}
	return nil, false
}

// findHole locates length contiguous unmapped bytes at or after hint.
func (m *Map) findHole(hint uintptr, length uintptr) uintptr {
	candidate := hint
	for e := m.areas.Front(); e != nil; e = e.Next() {
		a := e.Value.(*Area)
		if candidate+length <= a.Start {
			return candidate
		}
		if a.End > candidate {
			candidate = a.End
		}
	}
	return candidate
}

// Map installs a new area covering obj (or a fresh ANON object when obj
// is nil; the Anonymous flag is recorded but does not decide this) at
// hint. With fixed set, the area must land
// exactly at hint or the call fails with NoMemory; otherwise Map finds
// or creates a hole at or after hint, per spec §4.5.
func (m *Map) Map(hint uintptr, length uintptr, obj *mmobj.Object, fileOffset int, prot Prot, flags Flags, fixed bool) (uintptr, kerr.Err) {
	if length == 0 || !pageAlign(hint) || !pageAlign(length) {
		return 0, kerr.InvalidArg
	}

	start := hint
	if fixed {
		if m.overlapsAny(start, start+length) {
			return 0, kerr.NoMemory
		}
	} else {
		start = m.findHole(hint, length)
	}

	if obj == nil {
		obj = mmobj.NewAnon()
	}

	a := &Area{Start: start, End: start + length, Prot: prot, Flags: flags, FileOffset: fileOffset, Object: obj}
	m.insert(a)
	return start, kerr.OK
}

func (m *Map) overlapsAny(start, end uintptr) bool {
	for e := m.areas.Front(); e != nil; e = e.Next() {
		if e.Value.(*Area).overlaps(start, end) {
			return true
		}
	}
	return false
}

func (m *Map) insert(a *Area) {
	for e := m.areas.Front(); e != nil; e = e.Next() {
		if e.Value.(*Area).Start > a.Start {
			a.el = m.areas.InsertBefore(a, e)
			return
		}
	}
	a.el = m.areas.PushBack(a)
}

// Remove unmaps [start, end), putting the object reference of any area
// entirely covered and splitting any area that straddles the boundary,
// per spec §4.5.
func (m *Map) Remove(start, end uintptr) kerr.Err {
	if !pageAlign(start) || !pageAlign(end) || end <= start {
		return kerr.InvalidArg
	}

	var next *list.Element
	for e := m.areas.Front(); e != nil; e = next {
		next = e.Next()
		a := e.Value.(*Area)
		if !a.overlaps(start, end) {
			continue
		}

		switch {
		case a.Start >= start && a.End <= end:
			m.areas.Remove(e)
			if a.AnchorEl != nil {
				a.Object.Bottom().UnlinkArea(a.AnchorEl)
			}
			a.Object.Put()

		case a.Start < start && a.End > end:
			// Split into [a.Start,start) and [end,a.End): the removed
			// middle loses one of the two new area-references, so the
			// object gains a ref to back the second half.
			a.Object.Ref()
			right := &Area{Start: end, End: a.End, Prot: a.Prot, Flags: a.Flags,
				FileOffset: a.FileOffset + int((end-a.Start)/uintptr(mem.PageSize)), Object: a.Object}
			a.End = start
			m.insert(right)

		case a.Start < start:
			a.End = start

		default: // a.End > end
			a.FileOffset += int((end - a.Start) / uintptr(mem.PageSize))
			a.Start = end
		}
	}
	return kerr.OK
}

// Clone produces a structurally identical map with every area's object
// referenced once more, per spec §4.5's clone contract. It does not
// install shadow objects on PRIVATE areas — that is fork's job
// (installShadows), since only fork knows it is cloning for
// copy-on-write rather than, say, a debugger's address-space snapshot.
func (m *Map) Clone(owner any) *Map {
	nm := NewMap(owner)
	for e := m.areas.Front(); e != nil; e = e.Next() {
		a := e.Value.(*Area)
		a.Object.Ref()
		na := &Area{Start: a.Start, End: a.End, Prot: a.Prot, Flags: a.Flags,
			FileOffset: a.FileOffset, Object: a.Object}
		nm.insert(na)
	}
	return nm
}

// CloneStructureOnly copies the area list's shape — same ranges, prot,
// flags, and object pointers — without touching any refcount. This is
// the literal "clone the VM map structure" of fork's algorithm step 2:
// fork's own step 5 (installShadows/copyFileTable's caller) decides
// exactly which objects get ref'd and by how much, so cloning here must
// not add references the fork algorithm doesn't already account for.
// Clone, by contrast, is the standalone public operation spec §4.5
// describes and refs every object itself, for callers outside fork that
// just want an independent, reference-holding copy.
func (m *Map) CloneStructureOnly(owner any) *Map {
	nm := NewMap(owner)
	for e := m.areas.Front(); e != nil; e = e.Next() {
		a := e.Value.(*Area)
		na := &Area{Start: a.Start, End: a.End, Prot: a.Prot, Flags: a.Flags,
			FileOffset: a.FileOffset, Object: a.Object}
		nm.insert(na)
	}
	return nm
}

// Areas returns the map's areas in ascending-start order.
func (m *Map) Areas() []*Area {
	out := make([]*Area, 0, m.areas.Len())
	for e := m.areas.Front(); e != nil; e = e.Next() {
		out = append(out, e.Value.(*Area))
	}
	return out
}

// Destroy puts every area's object reference, matching "destruction puts
// every area's object reference" from spec §3's VM map data model.
func (m *Map) Destroy() {
	for e := m.areas.Front(); e != nil; e = e.Next() {
		a := e.Value.(*Area)
		if a.AnchorEl != nil {
			a.Object.Bottom().UnlinkArea(a.AnchorEl)
		}
		a.Object.Put()
	}
	m.areas.Init()
}

package vm

import (
	"testing"

	"vkernel/internal/mem"
)

const pg = uintptr(mem.PageSize)

func TestMapFixedRejectsOverlap(t *testing.T) {
	m := NewMap(nil)
	if _, err := m.Map(0, 2*pg, nil, 0, ProtRead|ProtWrite, Private|Anonymous, true); !err.Ok() {
		t.Fatalf("first Map = %v", err)
	}
	if _, err := m.Map(pg, pg, nil, 0, ProtRead, Private|Anonymous, true); err.Ok() {
		t.Fatal("fixed Map over an existing area should fail, got success")
	}
}

func TestMapFindsHoleWhenNotFixed(t *testing.T) {
	m := NewMap(nil)
	start1, err := m.Map(0, pg, nil, 0, ProtRead|ProtWrite, Private|Anonymous, true)
	if !err.Ok() {
		t.Fatalf("Map #1 = %v", err)
	}
	start2, err := m.Map(0, pg, nil, 0, ProtRead, Private|Anonymous, false)
	if !err.Ok() {
		t.Fatalf("Map #2 = %v", err)
	}
	if start2 < start1+pg {
		t.Fatalf("second area at %#x overlaps first area [%#x,%#x)", start2, start1, start1+pg)
	}
}

func TestMapRejectsUnalignedLength(t *testing.T) {
	m := NewMap(nil)
	if _, err := m.Map(0, 17, nil, 0, ProtRead, Private|Anonymous, true); err.Ok() {
		t.Fatal("unaligned length must fail")
	}
	if _, err := m.Map(0, 0, nil, 0, ProtRead, Private|Anonymous, true); err.Ok() {
		t.Fatal("zero length must fail")
	}
}

func TestLookup(t *testing.T) {
	m := NewMap(nil)
	start, _ := m.Map(0, 2*pg, nil, 0, ProtRead, Private|Anonymous, true)

	if _, ok := m.Lookup(start); !ok {
		t.Fatal("Lookup missed the area's start address")
	}
	if _, ok := m.Lookup(start + 2*pg); ok {
		t.Fatal("Lookup matched an address past the area's end")
	}
}

func TestRemoveSplitsStraddlingArea(t *testing.T) {
	m := NewMap(nil)
	start, _ := m.Map(0, 4*pg, nil, 0, ProtRead, Private|Anonymous, true)

	if err := m.Remove(start+pg, start+2*pg); !err.Ok() {
		t.Fatalf("Remove = %v", err)
	}

	areas := m.Areas()
	if len(areas) != 2 {
		t.Fatalf("len(Areas()) = %d, want 2 after splitting a straddled area", len(areas))
	}
	if areas[0].Start != start || areas[0].End != start+pg {
		t.Fatalf("left half = [%#x,%#x), want [%#x,%#x)", areas[0].Start, areas[0].End, start, start+pg)
	}
	if areas[1].Start != start+2*pg || areas[1].End != start+4*pg {
		t.Fatalf("right half = [%#x,%#x), want [%#x,%#x)", areas[1].Start, areas[1].End, start+2*pg, start+4*pg)
	}
}

func TestRemoveWholeAreaPutsObject(t *testing.T) {
	m := NewMap(nil)
	start, _ := m.Map(0, pg, nil, 0, ProtRead, Private|Anonymous, true)
	obj := m.Areas()[0].Object

	if err := m.Remove(start, start+pg); !err.Ok() {
		t.Fatalf("Remove = %v", err)
	}
	if obj.Refcount() != 0 {
		t.Fatalf("obj.Refcount() after full removal = %d, want 0", obj.Refcount())
	}
	if len(m.Areas()) != 0 {
		t.Fatal("area should be gone after full removal")
	}
}

func TestCloneRefsEachObjectOnce(t *testing.T) {
	m := NewMap(nil)
	m.Map(0, pg, nil, 0, ProtRead, Private|Anonymous, true)
	obj := m.Areas()[0].Object

	clone := m.Clone("child")
	if obj.Refcount() != 2 {
		t.Fatalf("Refcount after Clone = %d, want 2", obj.Refcount())
	}
	if len(clone.Areas()) != 1 {
		t.Fatalf("len(clone.Areas()) = %d, want 1", len(clone.Areas()))
	}
	if clone.Owner != "child" {
		t.Fatalf("clone.Owner = %v, want %q", clone.Owner, "child")
	}
}

func TestCloneStructureOnlyDoesNotRef(t *testing.T) {
	m := NewMap(nil)
	m.Map(0, pg, nil, 0, ProtRead, Private|Anonymous, true)
	obj := m.Areas()[0].Object
	before := obj.Refcount()

	clone := m.CloneStructureOnly("child")
	if obj.Refcount() != before {
		t.Fatalf("Refcount after CloneStructureOnly = %d, want unchanged %d", obj.Refcount(), before)
	}
	if len(clone.Areas()) != 1 || clone.Areas()[0].Object != obj {
		t.Fatal("CloneStructureOnly must copy the same area shape and object pointer")
	}
}

func TestDestroyPutsEveryArea(t *testing.T) {
	m := NewMap(nil)
	m.Map(0, pg, nil, 0, ProtRead, Private|Anonymous, true)
	m.Map(4*pg, pg, nil, 0, ProtRead, Private|Anonymous, true)
	areas := m.Areas()
	o1, o2 := areas[0].Object, areas[1].Object

	m.Destroy()

	if o1.Refcount() != 0 || o2.Refcount() != 0 {
		t.Fatalf("refcounts after Destroy = %d, %d, want 0, 0", o1.Refcount(), o2.Refcount())
	}
	if len(m.Areas()) != 0 {
		t.Fatal("Destroy should leave the map empty")
	}
}

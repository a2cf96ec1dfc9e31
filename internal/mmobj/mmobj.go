// Package mmobj implements component F: the polymorphic memory object.
// Per the design note in spec.md's Open Questions ("polymorphic memory
// objects"), this is a tagged sum — one struct with a Kind field and a
// kind-specific payload — rather than an interface hierarchy, matching
// how the teacher kernel represents its own similarly-shaped union types
// (mem.Pa_t-keyed Pginfo_t, defs.Mkdev's packed fields) as plain structs
// switched on by callers instead of dispatched through method sets.
package mmobj

import (
	"container/list"
	"sync"
	"sync/atomic"

	"vkernel/internal/fsiface"
	"vkernel/internal/kerr"
	"vkernel/internal/mem"
)

// Kind identifies which page source an Object represents.
type Kind int

const (
	Anon Kind = iota
	Shadow
	File
)

func (k Kind) String() string {
	switch k {
	case Anon:
		return "ANON"
	case Shadow:
		return "SHADOW"
	case File:
		return "FILE"
	default:
		return "UNKNOWN"
	}
}

// Object is a memory object: component F. refcount and nrespages are
// int32 so sync/atomic can mutate them without a lock, matching spec
// §5(ii)'s "memory-object refcounts are mutated only with interrupts
// disabled" (the cooperative-kernel stand-in being an atomic op rather
// than a disabled-interrupt critical section, since nothing here blocks).
type Object struct {
	Kind Kind

	refcount  int32
	nrespages int32

	mu       sync.Mutex
	resident map[int]*mem.Frame

	// areas anchors the VM areas mapping o, per spec §3's "at the
	// chain's root, a list of VM areas anchored there". Entries are
	// stored as any to avoid an import cycle (package vm already
	// imports mmobj, not the reverse); the fork package links a forked
	// child's *vm.Area here and the vm package unlinks it.
	areas *list.List

	shadow *shadowPayload
	file   *fsiface.Vnode
}

// shadowPayload holds the fields only a SHADOW object has. Bottom always
// names a non-shadow object: the true backing source, per spec §4.3's
// invariant "a shadow object's bottom_obj always points to a non-shadow".
type shadowPayload struct {
	Shadowed *Object
	Bottom   *Object
}

// NewAnon creates a zero-filled anonymous object with refcount 1.
func NewAnon() *Object {
	return &Object{Kind: Anon, refcount: 1, resident: map[int]*mem.Frame{}, areas: list.New()}
}

// NewFile creates a file-backed object over vn with refcount 1.
func NewFile(vn fsiface.Vnode) *Object {
	return &Object{Kind: File, refcount: 1, resident: map[int]*mem.Frame{}, file: &vn, areas: list.New()}
}

// NewShadow creates a shadow object with refcount 1 and no shadowed
// pointer set yet; callers (fork's installShadows) wire Shadowed/Bottom
// in before the object is installed into any area, per spec §4.3 step 5.
func NewShadow() *Object {
	return &Object{Kind: Shadow, refcount: 1, resident: map[int]*mem.Frame{}, shadow: &shadowPayload{}, areas: list.New()}
}

// LinkArea anchors area (a *vm.Area, opaque here) onto o's area list, per
// spec §4.3 step 5: the newly-forked child's area is linked onto the
// bottom object's list. Returns the list element the caller must keep to
// unlink it later.
func (o *Object) LinkArea(area any) *list.Element {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.areas.PushBack(area)
}

// UnlinkArea removes a previously linked area from o's list. A no-op if
// el is nil.
func (o *Object) UnlinkArea(el *list.Element) {
	if el == nil {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.areas.Remove(el)
}

// Areas returns the VM areas currently anchored on o, in link order.
func (o *Object) Areas() []any {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]any, 0, o.areas.Len())
	for e := o.areas.Front(); e != nil; e = e.Next() {
		out = append(out, e.Value)
	}
	return out
}

// Shadowed returns the object this shadow sits directly above, or nil if
// o is not a shadow.
func (o *Object) Shadowed() *Object {
	if o.shadow == nil {
		return nil
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.shadow.Shadowed
}

// SetShadowed installs the object this shadow sits above. Only valid on
// a SHADOW object.
func (o *Object) SetShadowed(s *Object) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.shadow.Shadowed = s
}

// Bottom returns the non-shadow object at the root of o's chain, or o
// itself if o is not a shadow.
func (o *Object) Bottom() *Object {
	if o.shadow == nil {
		return o
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.shadow.Bottom
}

// SetBottom installs o's bottom object. Only valid on a SHADOW object.
func (o *Object) SetBottom(b *Object) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.shadow.Bottom = b
}

// Refcount returns the object's current reference count (external
// holders plus resident pages), matching the invariant from spec §4.3.
func (o *Object) Refcount() int {
	return int(atomic.LoadInt32(&o.refcount))
}

// Nrespages returns the number of pages currently resident in o.
func (o *Object) Nrespages() int {
	return int(atomic.LoadInt32(&o.nrespages))
}

// Ref increments o's external reference count.
func (o *Object) Ref() {
	atomic.AddInt32(&o.refcount, 1)
}

// Put decrements o's reference count. At zero, o's resident pages are
// released from the cache and, for a SHADOW object, its Shadowed
// reference is put in turn — the same "put cleans up the whole chain"
// behavior the teacher's do_fork relies on in newobjs_alloc's failure
// path ("this cleans up all the objects because of how put works").
func (o *Object) Put() {
	o.release(1)
}

// FrameEvicted implements mem.Evictable: when the cache unilaterally
// evicts one of o's resident frames, o's bookkeeping must drop it too,
// or a later LookupPage/FillPage would find it missing from the cache
// but still counted in resident/nrespages/refcount and fault in a
// duplicate frame alongside the stale accounting.
func (o *Object) FrameEvicted(f *mem.Frame) {
	o.mu.Lock()
	delete(o.resident, f.Index)
	o.mu.Unlock()
	atomic.AddInt32(&o.nrespages, -1)
	o.release(1)
}

// release drops n from o's reference count. At zero, o's remaining
// resident pages are released from the cache and, for a SHADOW object,
// its Shadowed reference is put in turn.
func (o *Object) release(n int32) {
	if atomic.AddInt32(&o.refcount, -n) != 0 {
		return
	}
	o.mu.Lock()
	for idx, f := range o.resident {
		mem.DefaultCache.Remove(f)
		delete(o.resident, idx)
	}
	var next *Object
	if o.shadow != nil {
		next = o.shadow.Shadowed
	}
	o.mu.Unlock()
	if next != nil {
		next.Put()
	}
}

// MigratePagesTo moves every page resident in o into dst, used by the
// fork chain-collapse step (spec §4.3 step 7) to splice an interior
// shadow with no other holders out of the chain without losing its
// pages. o must have exactly one external reference (the caller's) at
// the time of the call. Resident pages count toward refcount (spec §8:
// refcount = external holders + nrespages), so the migrated pages'
// refcount contribution moves from o to dst along with the pages
// themselves, and each frame is re-keyed in the cache under its new
// owner so a later Get/Remove for either object doesn't desync.
func (o *Object) MigratePagesTo(dst *Object) {
	o.mu.Lock()
	moved := o.resident
	o.resident = map[int]*mem.Frame{}
	o.mu.Unlock()

	n := int32(len(moved))
	atomic.AddInt32(&o.nrespages, -n)
	atomic.AddInt32(&o.refcount, -n)

	dst.mu.Lock()
	for idx, f := range moved {
		mem.DefaultCache.Rekey(f, dst)
		dst.resident[idx] = f
	}
	dst.mu.Unlock()
	atomic.AddInt32(&dst.nrespages, n)
	atomic.AddInt32(&dst.refcount, n)
}

// LookupPage resolves page index, walking the shadow chain toward the
// bottom object as needed. A read fault (forWrite == false) returns the
// first resident copy found, filling the bottom object on a total miss.
// A write fault on a SHADOW copies the resolved source into a fresh
// frame owned by o itself — the copy-on-write break — rather than ever
// writing through to a lower object in the chain, per spec §4.3's
// "Copy-on-write page fault" rule.
func (o *Object) LookupPage(index int, forWrite bool) (*mem.Frame, kerr.Err) {
	o.mu.Lock()
	if f, ok := o.resident[index]; ok {
		o.mu.Unlock()
		if forWrite {
			mem.DefaultCache.Dirty(f)
		}
		return f, kerr.OK
	}
	o.mu.Unlock()

	if !forWrite {
		if o.Kind == Shadow {
			return o.Shadowed().LookupPage(index, false)
		}
		return o.FillPage(index)
	}

	// Write fault: break copy-on-write into a frame of our own.
	var src *mem.Frame
	var err kerr.Err
	if o.Kind == Shadow {
		src, err = o.Shadowed().LookupPage(index, false)
	} else {
		src, err = o.FillPage(index)
	}
	if !err.Ok() {
		return nil, err
	}
	if o.Kind != Shadow {
		// Single owner, no chain below us: write through in place.
		mem.DefaultCache.Dirty(src)
		return src, kerr.OK
	}

	dst, err := mem.DefaultCache.Get(o, index)
	if !err.Ok() {
		return nil, err
	}
	*dst.Data() = *src.Data()
	mem.DefaultCache.Dirty(dst)

	o.mu.Lock()
	o.resident[index] = dst
	o.mu.Unlock()
	atomic.AddInt32(&o.nrespages, 1)
	atomic.AddInt32(&o.refcount, 1)
	return dst, kerr.OK
}

// FillPage installs a freshly resident page at index from o's own
// backing source (zero-fill for ANON, a vnode read for FILE) and
// registers it as resident. It is only called on a non-shadow object:
// shadows resolve reads by recursing through LookupPage instead.
func (o *Object) FillPage(index int) (*mem.Frame, kerr.Err) {
	f, err := mem.DefaultCache.Get(o, index)
	if !err.Ok() {
		return nil, err
	}

	o.mu.Lock()
	_, already := o.resident[index]
	if !already {
		o.resident[index] = f
	}
	o.mu.Unlock()
	if already {
		return f, kerr.OK
	}
	atomic.AddInt32(&o.nrespages, 1)
	atomic.AddInt32(&o.refcount, 1)

	if o.Kind == File {
		if ferr := (*o.file).ReadPage(index, f.Data()[:]); !ferr.Ok() {
			return f, ferr
		}
	}
	// ANON pages come back zero-filled from the cache already.
	return f, kerr.OK
}

// DirtyPage marks f modified.
func (o *Object) DirtyPage(f *mem.Frame) {
	mem.DefaultCache.Dirty(f)
}

// CleanPage writes f back and clears its dirty bit.
func (o *Object) CleanPage(f *mem.Frame) {
	mem.DefaultCache.Clean(f)
}

// ResidentIndices returns the page indices currently resident in o.
// Order is unspecified.
func (o *Object) ResidentIndices() []int {
	o.mu.Lock()
	defer o.mu.Unlock()
	idxs := make([]int, 0, len(o.resident))
	for i := range o.resident {
		idxs = append(idxs, i)
	}
	return idxs
}

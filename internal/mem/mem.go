// Package mem implements component H: the page-frame cache. It maps an
// (owner, page-index) pair to the single physical frame backing it,
// keyed the same way the teacher's Physmem_t keys its free-list
// bookkeeping off a Pa_t, except the owner here is the memory object
// that resolved the fault rather than a bare physical address.
package mem

import (
	"container/list"
	"sync"
	"time"

	"vkernel/internal/kerr"
)

// PageSize matches the teacher's PGSIZE (4 KiB pages).
const PageSize = 4096

// Frame is a single resident physical page: component H's Page frame.
// Owner is an mmobj.Object but stored as any so this leaf package never
// imports the component above it — mmobj depends on mem, not the
// reverse, per the dependency direction fixed in DESIGN.md.
type Frame struct {
	Owner any
	Index int

	mu     sync.Mutex
	data   [PageSize]byte
	dirty  bool
	pinned int
	busy   bool
	cond   *sync.Cond
}

func newFrame(owner any, index int) *Frame {
	f := &Frame{Owner: owner, Index: index}
	f.cond = sync.NewCond(&f.mu)
	return f
}

// Data returns the frame's backing bytes. Callers must hold no
// expectation of exclusivity beyond what Pin/busy-waiting already give
// them — mirroring the teacher's Bytepg_t, a plain byte array handed out
// by reference.
func (f *Frame) Data() *[PageSize]byte {
	return &f.data
}

type frameKey struct {
	owner any
	index int
}

// Evictable is implemented by a frame's owner so the cache can keep
// object-level bookkeeping (resident-page set, refcount) in sync with
// what the cache actually holds once it evicts one of that owner's
// frames out from under it.
type Evictable interface {
	FrameEvicted(f *Frame)
}

// Cache is the global (object, index) -> Frame map: the teacher's single
// Physmem_t lock, without the per-CPU free-list sharding spec.md §5 makes
// unnecessary on a single-CPU cooperative kernel.
type Cache struct {
	mu     sync.Mutex
	frames map[frameKey]*Frame
	lru    *list.List // of *Frame, unpinned+clean only
	lruEl  map[*Frame]*list.Element

	// MaxFrames bounds resident pages; 0 means unbounded (tests usually
	// want this so they don't have to reason about eviction).
	MaxFrames int
}

// NewCache returns an empty frame cache.
func NewCache() *Cache {
	return &Cache{
		frames: map[frameKey]*Frame{},
		lru:    list.New(),
		lruEl:  map[*Frame]*list.Element{},
	}
}

// DefaultCache is the kernel's single page-frame cache. A single-CPU
// cooperative kernel has exactly one physical memory, so unlike
// Scheduler (which still takes an explicit *CPU per spec §9's design
// note) this is a bare singleton: nothing about per-call identity varies
// with it.
var DefaultCache = NewCache()

// OOM is signaled, teacher-oommsg-style, whenever Get cannot make room
// for a new frame and must report NoMemory. A housekeeping goroutine can
// listen on it to react (the real driver is out of scope per spec §1).
var OOM = make(chan struct{}, 1)

func notifyOOM() {
	select {
	case OOM <- struct{}{}:
	default:
	}
}

// Get returns the resident frame for (owner, index), allocating a fresh
// zero-filled one if none exists. Get takes no read/write flag and never
// copies a frame — that copy-on-write decision belongs to
// mmobj.Object.LookupPage, which calls Get once it knows which object
// should own the frame.
func (c *Cache) Get(owner any, index int) (*Frame, kerr.Err) {
	k := frameKey{owner, index}

	c.mu.Lock()
	if f, ok := c.frames[k]; ok {
		c.touchLocked(f)
		c.mu.Unlock()
		f.waitUnbusy()
		return f, kerr.OK
	}

	var evicted *Frame
	if c.MaxFrames > 0 && len(c.frames) >= c.MaxFrames {
		var ok bool
		evicted, ok = c.evictOneLocked()
		if !ok {
			c.mu.Unlock()
			notifyOOM()
			return nil, kerr.NoMemory
		}
	}

	f := newFrame(owner, index)
	c.frames[k] = f
	c.touchLocked(f)
	c.mu.Unlock()

	// Notify after releasing c.mu: the owner's own cleanup (e.g. an
	// object whose refcount this eviction drops to zero) may call back
	// into Remove, which needs to reacquire it.
	if evicted != nil {
		if e, ok := evicted.Owner.(Evictable); ok {
			e.FrameEvicted(evicted)
		}
	}
	return f, kerr.OK
}

// Remove drops a frame from the cache entirely — used when an object is
// freed and releases every resident page it owned.
func (c *Cache) Remove(f *Frame) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.frames, frameKey{f.Owner, f.Index})
	c.unlinkLRULocked(f)
}

// Rekey re-indexes f under newOwner without changing its physical
// contents, used when a page migrates between objects (the fork
// chain-collapse step's MigratePagesTo) so the cache's (owner,index)
// index stays in sync with who actually holds the frame. Callers must
// never assign f.Owner directly.
func (c *Cache) Rekey(f *Frame, newOwner any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.frames, frameKey{f.Owner, f.Index})
	f.Owner = newOwner
	c.frames[frameKey{newOwner, f.Index}] = f
}

func (c *Cache) touchLocked(f *Frame) {
	c.unlinkLRULocked(f)
	if f.pinned == 0 && !f.dirty {
		c.lruEl[f] = c.lru.PushBack(f)
	}
}

func (c *Cache) unlinkLRULocked(f *Frame) {
	if el, ok := c.lruEl[f]; ok {
		c.lru.Remove(el)
		delete(c.lruEl, f)
	}
}

// evictOneLocked evicts the least-recently-used unpinned clean frame.
// Caller holds c.mu. Dirty frames are not eviction candidates here: the
// writeback daemon is responsible for cleaning them first, per spec §4.4.
func (c *Cache) evictOneLocked() (*Frame, bool) {
	el := c.lru.Front()
	if el == nil {
		return nil, false
	}
	f := el.Value.(*Frame)
	c.lru.Remove(el)
	delete(c.lruEl, f)
	delete(c.frames, frameKey{f.Owner, f.Index})
	return f, true
}

func (f *Frame) waitUnbusy() {
	f.mu.Lock()
	for f.busy {
		f.cond.Wait()
	}
	f.mu.Unlock()
}

// Pin marks f as not evictable.
func (c *Cache) Pin(f *Frame) {
	f.mu.Lock()
	f.pinned++
	f.mu.Unlock()
	c.mu.Lock()
	c.unlinkLRULocked(f)
	c.mu.Unlock()
}

// Unpin drops f's pin count; once it reaches zero and f is clean, it
// becomes eligible for eviction again.
func (c *Cache) Unpin(f *Frame) {
	f.mu.Lock()
	f.pinned--
	if f.pinned < 0 {
		f.pinned = 0
	}
	clean := !f.dirty && f.pinned == 0
	f.mu.Unlock()

	if clean {
		c.mu.Lock()
		c.touchLocked(f)
		c.mu.Unlock()
	}
}

// Dirty marks f as modified: it must be cleaned before it can be evicted.
func (c *Cache) Dirty(f *Frame) {
	f.mu.Lock()
	f.dirty = true
	f.mu.Unlock()
	c.mu.Lock()
	c.unlinkLRULocked(f)
	c.mu.Unlock()
}

// Clean writes f back (a no-op in this model beyond bookkeeping — the
// block-device driver that would perform the actual write is out of
// scope per spec §1) and clears its dirty bit.
func (c *Cache) Clean(f *Frame) {
	f.mu.Lock()
	f.dirty = false
	pinned := f.pinned
	f.mu.Unlock()

	if pinned == 0 {
		c.mu.Lock()
		c.touchLocked(f)
		c.mu.Unlock()
	}
}

// Flush cleans every currently dirty, unpinned frame. Writeback calls it
// on a timer; no exec or exit path calls it.
func (c *Cache) Flush() {
	c.mu.Lock()
	var dirty []*Frame
	for _, f := range c.frames {
		f.mu.Lock()
		if f.dirty && f.pinned == 0 {
			dirty = append(dirty, f)
		}
		f.mu.Unlock()
	}
	c.mu.Unlock()

	for _, f := range dirty {
		c.Clean(f)
	}
}

// Writeback runs Flush every interval until stop is closed, mirroring
// the teacher's background page-cleaning convention without a dedicated
// package: a single goroutine standing in for the bdev flush daemon.
func (c *Cache) Writeback(interval time.Duration, stop <-chan struct{}) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			c.Flush()
		case <-stop:
			return
		}
	}
}

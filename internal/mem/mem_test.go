package mem

import "testing"

func TestGetAllocatesZeroFilledOnce(t *testing.T) {
	c := NewCache()
	f, err := c.Get("owner1", 0)
	if !err.Ok() {
		t.Fatalf("Get = %v", err)
	}
	if f.Data()[0] != 0 {
		t.Fatal("fresh frame must be zero-filled")
	}
	f.Data()[0] = 42

	again, err := c.Get("owner1", 0)
	if !err.Ok() {
		t.Fatalf("second Get = %v", err)
	}
	if again != f {
		t.Fatal("Get must return the same frame for the same (owner, index)")
	}
}

func TestGetDistinguishesOwners(t *testing.T) {
	c := NewCache()
	f1, _ := c.Get("a", 0)
	f2, _ := c.Get("b", 0)
	if f1 == f2 {
		t.Fatal("different owners at the same index must get distinct frames")
	}
}

func TestEvictionUnderMaxFrames(t *testing.T) {
	c := NewCache()
	c.MaxFrames = 1

	f1, err := c.Get("a", 0)
	if !err.Ok() {
		t.Fatalf("Get #1 = %v", err)
	}
	_ = f1

	f2, err := c.Get("b", 0)
	if !err.Ok() {
		t.Fatalf("Get #2 should evict the unpinned clean frame, got %v", err)
	}
	_ = f2

	if _, ok := c.frames[frameKey{"a", 0}]; ok {
		t.Fatal("the LRU frame should have been evicted")
	}
}

func TestPinnedFrameIsNotEvicted(t *testing.T) {
	c := NewCache()
	c.MaxFrames = 1

	f1, _ := c.Get("a", 0)
	c.Pin(f1)

	if _, err := c.Get("b", 0); err.Ok() {
		t.Fatal("Get should fail with NoMemory when the only frame is pinned")
	}
}

func TestDirtyFrameIsNotEvicted(t *testing.T) {
	c := NewCache()
	c.MaxFrames = 1

	f1, _ := c.Get("a", 0)
	c.Dirty(f1)

	if _, err := c.Get("b", 0); err.Ok() {
		t.Fatal("Get should fail with NoMemory when the only frame is dirty")
	}
}

func TestFlushCleansDirtyFrames(t *testing.T) {
	c := NewCache()
	f, _ := c.Get("a", 0)
	c.Dirty(f)

	c.Flush()

	f.mu.Lock()
	dirty := f.dirty
	f.mu.Unlock()
	if dirty {
		t.Fatal("Flush should have cleaned the dirty frame")
	}
}

func TestRemoveDropsFrame(t *testing.T) {
	c := NewCache()
	f, _ := c.Get("a", 0)
	c.Remove(f)

	if _, ok := c.frames[frameKey{"a", 0}]; ok {
		t.Fatal("Remove should drop the frame from the cache")
	}
}

func TestRekeyMovesFrameUnderNewOwner(t *testing.T) {
	c := NewCache()
	f, _ := c.Get("a", 0)

	c.Rekey(f, "b")

	if _, ok := c.frames[frameKey{"a", 0}]; ok {
		t.Fatal("Rekey must remove the frame's old (owner, index) entry")
	}
	got, ok := c.frames[frameKey{"b", 0}]
	if !ok || got != f {
		t.Fatal("Rekey must index the same frame under the new owner")
	}
	if f.Owner != "b" {
		t.Fatalf("f.Owner after Rekey = %v, want %q", f.Owner, "b")
	}
}

type evictRecorder struct {
	evicted []*Frame
}

func (r *evictRecorder) FrameEvicted(f *Frame) {
	r.evicted = append(r.evicted, f)
}

func TestEvictionNotifiesEvictableOwner(t *testing.T) {
	c := NewCache()
	c.MaxFrames = 1

	owner := &evictRecorder{}
	f1, err := c.Get(owner, 0)
	if !err.Ok() {
		t.Fatalf("Get #1 = %v", err)
	}

	if _, err := c.Get("b", 0); !err.Ok() {
		t.Fatalf("Get #2 should evict the unpinned clean frame, got %v", err)
	}

	if len(owner.evicted) != 1 || owner.evicted[0] != f1 {
		t.Fatalf("owner.evicted = %v, want exactly [f1]", owner.evicted)
	}
}

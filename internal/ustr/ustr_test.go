package ustr

import "testing"

func TestFromSliceTruncatesAtNUL(t *testing.T) {
	buf := []uint8{'h', 'i', 0, 'x', 'x'}
	got := FromSlice(buf)
	if got.String() != "hi" {
		t.Fatalf("FromSlice = %q, want %q", got.String(), "hi")
	}
}

func TestFromSliceNoNULReturnsWholeSlice(t *testing.T) {
	buf := []uint8{'h', 'i'}
	got := FromSlice(buf)
	if got.String() != "hi" {
		t.Fatalf("FromSlice = %q, want %q", got.String(), "hi")
	}
}

func TestEq(t *testing.T) {
	a := Ustr("abc")
	b := Ustr("abc")
	c := Ustr("abd")
	if !a.Eq(b) {
		t.Fatal("identical Ustrs should be Eq")
	}
	if a.Eq(c) {
		t.Fatal("differing Ustrs should not be Eq")
	}
	if a.Eq(Ustr("ab")) {
		t.Fatal("different-length Ustrs should not be Eq")
	}
}

func TestIsAbsolute(t *testing.T) {
	if !MkRoot().IsAbsolute() {
		t.Fatal("MkRoot() should be absolute")
	}
	if Ustr("rel/path").IsAbsolute() {
		t.Fatal("a path with no leading slash should not be absolute")
	}
	if Mk().IsAbsolute() {
		t.Fatal("an empty Ustr should not be absolute")
	}
}

func TestExtendDoesNotMutateReceiver(t *testing.T) {
	base := Ustr("/home")
	got := base.Extend(Ustr("user"))
	if got.String() != "/home/user" {
		t.Fatalf("Extend = %q, want %q", got.String(), "/home/user")
	}
	if base.String() != "/home" {
		t.Fatalf("base mutated to %q, want unchanged %q", base.String(), "/home")
	}
}

func TestExtendStr(t *testing.T) {
	base := Ustr("/var")
	got := base.ExtendStr("log")
	if got.String() != "/var/log" {
		t.Fatalf("ExtendStr = %q, want %q", got.String(), "/var/log")
	}
}

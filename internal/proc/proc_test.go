package proc

import (
	"testing"

	"vkernel/internal/kerr"
)

func TestCreateAssignsParentAndDistinctPids(t *testing.T) {
	parent, err := Create("parent", nil)
	if !err.Ok() {
		t.Fatalf("Create(parent) = %v", err)
	}
	child, err := Create("child", parent)
	if !err.Ok() {
		t.Fatalf("Create(child) = %v", err)
	}
	if child.Parent != parent.Pid {
		t.Fatalf("child.Parent = %d, want %d", child.Parent, parent.Pid)
	}
	if child.Pid == parent.Pid {
		t.Fatal("child and parent must have distinct pids")
	}
	if Lookup(child.Pid) != child {
		t.Fatal("Lookup did not return the created child")
	}
}

func TestFileTableRoundTrip(t *testing.T) {
	p, err := Create("filetable", nil)
	if !err.Ok() {
		t.Fatalf("Create = %v", err)
	}
	fd, err := p.NextFreeFD()
	if !err.Ok() {
		t.Fatalf("NextFreeFD on empty table = %v", err)
	}
	if fd != 0 {
		t.Fatalf("first free fd = %d, want 0", fd)
	}

	desc := &FileDescriptor{Perms: 7}
	if err := p.SetFile(fd, desc); !err.Ok() {
		t.Fatalf("SetFile = %v", err)
	}
	if p.File(fd) != desc {
		t.Fatal("File did not return the descriptor SetFile installed")
	}
}

func TestSetFileOutOfRange(t *testing.T) {
	p, _ := Create("badfd", nil)
	if err := p.SetFile(-1, &FileDescriptor{}); err.Ok() {
		t.Fatal("SetFile(-1, ...) should fail")
	}
	if err := p.SetFile(NFILES, &FileDescriptor{}); err.Ok() {
		t.Fatal("SetFile(NFILES, ...) should fail, table has indices [0,NFILES)")
	}
}

func TestNextFreeFDExhausted(t *testing.T) {
	p, _ := Create("fullfds", nil)
	for i := 0; i < NFILES; i++ {
		if err := p.SetFile(i, &FileDescriptor{}); !err.Ok() {
			t.Fatalf("SetFile(%d) = %v", i, err)
		}
	}
	if _, err := p.NextFreeFD(); err != kerr.TooManyFiles {
		t.Fatalf("NextFreeFD on a full table = %v, want TooManyFiles", err)
	}
}

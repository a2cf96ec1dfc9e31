// Package fsiface names the collaborator contracts a process needs from
// the filesystem layer without depending on it: the VFS dispatcher,
// S5FS, the block-device drivers, and the ELF loader are all out of
// scope (spec.md §1, "named external interfaces only"). Every type here
// is implemented elsewhere; this package exists so proc and vm can hold
// a Vnode or a File without importing a filesystem.
package fsiface

import "vkernel/internal/kerr"

// Vnode is a refcounted filesystem node: a process's cwd and a File's
// backing node are both one of these. Grounded on the teacher's
// Disk_i/Blockmem_i "interface named after what it abstracts, not what
// implements it" convention in fs/blk.go.
type Vnode interface {
	Ref()
	Put()
	Stat() (Stat, kerr.Err)
	// ReadPage fills buf (exactly one page) from file offset index*PageSize.
	// A short read past EOF is zero-padded, matching the teacher's
	// page-cache-fill convention for file-backed mappings.
	ReadPage(index int, buf []byte) kerr.Err
}

// File is an open file description: the thing a process's file table
// holds references to. One File may be shared by several file
// descriptors across processes after fork or dup.
type File interface {
	Ref()
	Put()
	Read(buf []byte, off int64) (int, kerr.Err)
	Write(buf []byte, off int64) (int, kerr.Err)
	Vnode() Vnode
}

// Disk is the block device a filesystem reads and writes through;
// modeled on the teacher's fs.Disk_i.
type Disk interface {
	Start(req interface{}) bool
	Stats() string
}

// Stat is the subset of file metadata spec.md's stat(2) exposes.
type Stat struct {
	Dev   int
	Ino   int
	Mode  int
	Size  int64
	Nlink int
}

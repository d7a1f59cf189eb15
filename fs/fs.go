// Package fs provides the minimal filesystem-boundary surface the
// process model needs: an open-vnode identity set, file descriptors, and
// the console device. The filesystem and block-device drivers
// themselves are external collaborators per spec.md §1 and are not
// implemented here; Inode is the seam a real filesystem plugs into.
//
// Grounded on rust teacher fs/vnode.rs (Vnode, VNODE_HASHSET,
// CONSOLE_VNODE, identity-by-path Eq/Hash) and fs/file.rs
// (FileDescriptor, OpenFlags, STDIN/STDOUT, file_open).
package fs

import (
	"io"
	"sync"

	"sv39os/errno"
	"sv39os/limits"
)

// Inode is the read/write/seek surface a concrete filesystem or device
// implements; a Vnode wraps one. Grounded on rust's
// `Box<dyn ReadWriteSeek + Send + Sync>`.
type Inode interface {
	io.Reader
	io.Writer
	io.Seeker
}

// Vnode is an open file or device, identified for deduplication purposes
// by its full path alone (two opens of the same path share one Vnode).
// Grounded on rust Vnode's path-only Eq/Hash.
type Vnode struct {
	FullPath string
	Inode    Inode
}

var (
	vnodesMu sync.Mutex
	vnodes   = map[string]*Vnode{}
)

// OpenVnode returns the shared Vnode for path, creating it via open if
// this is the first reference. The first open of a path is metered
// against limits.Syslimit.Vnodes, the system-wide distinct-open-file
// budget, failing ENOHEAP when it is exhausted; a dedup hit on an
// already-open path is free. Grounded on rust VNODE_HASHSET's
// dedup-by-path lookup inside file_open.
func OpenVnode(path string, open func() (Inode, errno.Err_t)) (*Vnode, errno.Err_t) {
	vnodesMu.Lock()
	defer vnodesMu.Unlock()
	if v, ok := vnodes[path]; ok {
		return v, 0
	}
	if !limits.Syslimit.Vnodes.Take() {
		limits.Hit()
		return nil, errno.ENOHEAP
	}
	inode, err := open()
	if err != 0 {
		limits.Syslimit.Vnodes.Give()
		return nil, err
	}
	v := &Vnode{FullPath: path, Inode: inode}
	vnodes[path] = v
	return v, 0
}

// releaseVnode drops path from the shared set once its last
// FileDescriptor closes, returning its unit to limits.Syslimit.Vnodes.
// Grounded on rust FileDescriptor's Drop, which fires at
// strong_count==2 (the hashset's own reference plus the last fd); this
// package counts fd references explicitly instead.
func releaseVnode(path string) {
	vnodesMu.Lock()
	_, ok := vnodes[path]
	delete(vnodes, path)
	vnodesMu.Unlock()
	if ok {
		limits.Syslimit.Vnodes.Give()
	}
}

// OpenFlags mirrors the POSIX open(2) flag bits used by this kernel,
// bit-exact with rust fs/file.rs's OpenFlags bitflags.
type OpenFlags uint

const (
	ORDONLY    OpenFlags = 0
	OWRONLY    OpenFlags = 1 << 0
	ORDWR      OpenFlags = 1 << 1
	OCREAT     OpenFlags = 1 << 6
	OEXCL      OpenFlags = 1 << 7
	OTRUNC     OpenFlags = 1 << 9
	OAPPEND    OpenFlags = 1 << 10
	OCLOEXEC   OpenFlags = 1 << 19
	ODIRECTORY OpenFlags = 1 << 21
)

func (f OpenFlags) readable() bool { return f&(OWRONLY|ORDWR) != OWRONLY }
func (f OpenFlags) writable() bool { return f&(OWRONLY|ORDWR) != ORDONLY }

// FileDescriptor is one open reference to a Vnode, with its own flags
// and seek position (matching POSIX fd semantics: two fds on the same
// vnode seek independently). Grounded on rust FileDescriptor.
type FileDescriptor struct {
	mu    sync.Mutex
	Flags OpenFlags
	pos   int64
	Vnode *Vnode

	refs *int32 // shared with every FileDescriptor opened on the same Vnode
}

func newFD(flags OpenFlags, v *Vnode) *FileDescriptor {
	n := int32(1)
	return &FileDescriptor{Flags: flags, Vnode: v, refs: &n}
}

// Dup returns a second FileDescriptor referencing the same Vnode, starting
// at fd's current position; after that the two positions move
// independently (used by fork's shared-fd-table semantics, spec.md §4.5).
func (fd *FileDescriptor) Dup() *FileDescriptor {
	*fd.refs++
	return &FileDescriptor{Flags: fd.Flags, pos: fd.pos, Vnode: fd.Vnode, refs: fd.refs}
}

// Close releases this reference; when the last reference to a vnode's
// path closes, whatever flags it was opened with, the vnode set entry is
// dropped.
func (fd *FileDescriptor) Close() {
	*fd.refs--
	if *fd.refs == 0 {
		releaseVnode(fd.Vnode.FullPath)
	}
}

// Read reads into buf at the descriptor's current position, advancing
// it, failing EACCES if the descriptor was not opened readable.
func (fd *FileDescriptor) Read(buf []byte) (int, errno.Err_t) {
	fd.mu.Lock()
	defer fd.mu.Unlock()
	if !fd.Flags.readable() {
		return 0, errno.EACCES
	}
	if _, err := fd.Vnode.Inode.Seek(fd.pos, io.SeekStart); err != nil {
		return 0, errno.EFAULT
	}
	n, err := fd.Vnode.Inode.Read(buf)
	fd.pos += int64(n)
	if err != nil && err != io.EOF {
		return n, errno.EFAULT
	}
	return n, 0
}

// Write writes buf at the descriptor's current position, advancing it,
// failing EACCES if the descriptor was not opened writable.
func (fd *FileDescriptor) Write(buf []byte) (int, errno.Err_t) {
	fd.mu.Lock()
	defer fd.mu.Unlock()
	if !fd.Flags.writable() {
		return 0, errno.EACCES
	}
	if _, err := fd.Vnode.Inode.Seek(fd.pos, io.SeekStart); err != nil {
		return 0, errno.EFAULT
	}
	n, err := fd.Vnode.Inode.Write(buf)
	fd.pos += int64(n)
	if err != nil {
		return n, errno.EFAULT
	}
	return n, 0
}

// Open resolves path to a FileDescriptor, calling the caller's
// createInode hook for the Inode on the first open of path whether or not
// OCREAT is set; flags other than OAPPEND do not affect the lookup.
// Grounded on rust file_open.
func Open(path string, flags OpenFlags, createInode func() (Inode, errno.Err_t)) (*FileDescriptor, errno.Err_t) {
	v, err := OpenVnode(path, createInode)
	if err != 0 {
		return nil, err
	}
	fd := newFD(flags, v)
	if flags&OAPPEND != 0 {
		pos, serr := v.Inode.Seek(0, io.SeekEnd)
		if serr != nil {
			return nil, errno.EFAULT
		}
		fd.pos = pos
	}
	return fd, 0
}

// Console is the board's console device, nil until board-specific code
// assigns it (cmd/kernel's Boot does not); nil in tests. Grounded on rust CONSOLE_VNODE's
// ConsoleImpl::CONSOLE_INSTANCE wrapping.
var Console Inode

var consoleVnode = &Vnode{FullPath: ""}

// consoleFD builds a standard-stream descriptor over the console device.
func consoleFD(flags OpenFlags) *FileDescriptor {
	consoleVnode.Inode = Console
	return newFD(flags, consoleVnode)
}

// Stdin returns a fresh read-only descriptor over the console.
func Stdin() *FileDescriptor { return consoleFD(ORDONLY) }

// Stdout returns a fresh write-only descriptor over the console.
func Stdout() *FileDescriptor { return consoleFD(OWRONLY) }

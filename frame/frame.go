// Package frame implements the physical frame allocator: a reference
// counted, free-list backed allocator of 4 KiB physical frames over
// [config.MemoryStart, config.MemoryEnd).
//
// Grounded on the teacher's mem.Physmem_t (biscuit/src/mem/mem.go):
// Refup/Refdown/Refcnt, a slice of per-frame metadata with an embedded
// free-list index, Refpg_new zeroing new pages via a shared zero page.
// The teacher shards the free list per-CPU for SMP scalability; that
// sharding is dropped here per spec.md §1's non-goal "SMP load balancing
// beyond a single boot hart" — one mutex-guarded free list is the whole
// of the in-scope design.
//
// Every allocation is also metered against limits.Syslimit.Frames, the
// system-wide frame budget (package limits), failing ENOHEAP once it is
// exhausted even if the free list itself still has room — the same
// "budget layered atop the raw free list" split limits.SysLimit.Frames'
// own doc comment describes.
//
// Real hardware backs a frame's bytes with the kernel's linear map of
// physical memory (addr.PPN.ToVPN, a raw pointer dereference); board
// bring-up installing that map is out of scope per spec.md §1. Allocator
// instead owns a byte arena indexed by page number, the same role the
// teacher's Dmap plays, but safe to exercise off real hardware so this
// package's tests can run as ordinary Go code.
package frame

import (
	"sync"

	"sv39os/addr"
	"sv39os/config"
	"sv39os/errno"
	"sv39os/limits"
)

type pageMeta struct {
	refcnt int32
	nexti  uint32 // index of next free frame, or sentinel
}

const sentinel = ^uint32(0)

// Allocator manages a contiguous region of physical frames. The zero
// value is not usable; construct one with Init.
type Allocator struct {
	mu      sync.Mutex
	pages   []pageMeta
	arena   []byte
	startn  uint32 // page number of pages[0]
	freei   uint32
	freelen int
}

// Global is the process-wide frame allocator singleton, mirroring the
// teacher's var Physmem = &Physmem_t{} (spec.md §9: "Global mutable
// state... model each as a process-wide singleton").
var Global = &Allocator{}

// Init reserves the physical region [config.MemoryStart, config.MemoryEnd)
// for frame allocation. Must run exactly once during bring-up, before the
// first user thread runs.
func Init() { Global.Init(config.MemoryStart, config.MemoryEnd) }

// Init populates a from the given physical region.
func (a *Allocator) Init(start, end uint) {
	first := addr.PA(start).PageUp()
	last := addr.PA(end).PageDown()
	n := uint32(uint(last) - uint(first))

	a.mu.Lock()
	defer a.mu.Unlock()
	a.startn = uint32(first)
	a.pages = make([]pageMeta, n)
	a.arena = make([]byte, uint(n)*config.PageSize)
	for i := range a.pages {
		a.pages[i].nexti = uint32(i) + 1
	}
	if n > 0 {
		a.pages[n-1].nexti = sentinel
		a.freei = 0
		a.freelen = int(n)
	} else {
		a.freei = sentinel
		a.freelen = 0
	}
}

func (a *Allocator) ppn(idx uint32) addr.PPN { return addr.PPN(a.startn + idx) }

func (a *Allocator) idx(p addr.PPN) uint32 { return uint32(p) - a.startn }

// Dmap returns the byte slice backing the given physical frame. It is the
// only supported way to read or write a physical frame's contents.
func (a *Allocator) Dmap(p addr.PPN) []byte {
	idx := a.idx(p)
	off := uint(idx) * config.PageSize
	return a.arena[off : off+config.PageSize]
}

// Tracker is a reference-counted ownership token for one physical frame.
// Cloning it (Clone) increments the allocator's refcount for the frame;
// the caller must eventually call Drop exactly once per Clone/Alloc to
// release it. When the last reference drops, the frame returns to the
// free list.
type Tracker struct {
	a   *Allocator
	ppn addr.PPN
}

// PPN returns the physical page number this tracker owns.
func (t *Tracker) PPN() addr.PPN { return t.ppn }

// Refcnt returns the number of live trackers referencing this frame.
// CoW fork/fault handling relies on this being observable atomically
// relative to other forks of the same address space (spec.md §9); callers
// must hold their address-space lock across the check-and-copy.
func (t *Tracker) Refcnt() int {
	a := t.a
	a.mu.Lock()
	defer a.mu.Unlock()
	return int(a.pages[a.idx(t.ppn)].refcnt)
}

// Clone increments the frame's reference count and returns a new tracker
// for the same frame, used by fork to share an unchanged or CoW page.
func (t *Tracker) Clone() *Tracker {
	a := t.a
	a.mu.Lock()
	a.pages[a.idx(t.ppn)].refcnt++
	a.mu.Unlock()
	return &Tracker{a: a, ppn: t.ppn}
}

// Drop releases this tracker's reference. The physical frame is returned
// to the free list when the last tracker referencing it is dropped.
func (t *Tracker) Drop() {
	if t == nil || t.a == nil {
		return
	}
	a := t.a
	a.mu.Lock()
	idx := a.idx(t.ppn)
	a.pages[idx].refcnt--
	if a.pages[idx].refcnt < 0 {
		a.mu.Unlock()
		panic("frame: refcount underflow")
	}
	if a.pages[idx].refcnt == 0 {
		a.pages[idx].nexti = a.freei
		a.freei = idx
		a.freelen++
		a.mu.Unlock()
		limits.Syslimit.Frames.Give()
		t.a = nil
		return
	}
	a.mu.Unlock()
	t.a = nil
}

// Bytes returns the zero-copy byte slice backing this frame, the only
// safe way for kernel code to touch a physical frame's contents (spec.md
// §3).
func (t *Tracker) Bytes() []byte { return t.a.Dmap(t.ppn) }

// Alloc returns a tracker owning one zero-filled physical frame, or
// ENOMEM if none are free.
func (a *Allocator) Alloc() (*Tracker, errno.Err_t) {
	t, err := a.allocRaw()
	if err != 0 {
		return nil, err
	}
	clear(t.Bytes())
	return t, 0
}

// AllocNoZero is like Alloc but leaves the frame's contents unspecified,
// for callers that overwrite it immediately (e.g. a CoW copy-out).
func (a *Allocator) AllocNoZero() (*Tracker, errno.Err_t) {
	return a.allocRaw()
}

// allocRaw takes one unit from the system-wide frame budget
// (limits.Syslimit.Frames) before drawing from the free list, so the
// budget and the free list stay consistent even when multiple Allocators
// exist (e.g. in tests).
func (a *Allocator) allocRaw() (*Tracker, errno.Err_t) {
	if !limits.Syslimit.Frames.Take() {
		limits.Hit()
		return nil, errno.ENOHEAP
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.freei == sentinel {
		limits.Syslimit.Frames.Give()
		return nil, errno.ENOMEM
	}
	idx := a.freei
	a.freei = a.pages[idx].nexti
	a.freelen--
	if a.pages[idx].refcnt != 0 {
		panic("frame: allocated a frame with nonzero refcount")
	}
	a.pages[idx].refcnt = 1
	return &Tracker{a: a, ppn: a.ppn(idx)}, 0
}

// Free reports the number of unallocated frames, for diagnostics (kstat).
func (a *Allocator) Free() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.freelen
}

func clear(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

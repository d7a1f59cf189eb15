// Package vm implements the per-process address space: map areas, ELF
// loading, copy-on-write fork, the page-fault resolution algorithm, brk,
// and the user-region allocator.
//
// Grounded on teacher biscuit/src/vm/as.go (Vm_t, Sys_pgfault, Page_insert,
// Blockpage_insert, Vmadd_anon/_mkvmi) and the rust teacher's
// mm/address_space.rs (MapArea, AddressSpace, fork, handle_pagefault,
// insert_framed_area, alloc_user_area, brk, from_elf). The sorted area
// index is backed by github.com/google/btree (see SPEC_FULL.md's Domain
// Stack section) in place of rust's BTreeMap<VARangeOrd, MapArea>.
//
// Unlike the rust original, data_segment_max is a field fixed once at
// ELF-load time rather than re-derived from the data segment's current
// end on every Brk call (spec.md §3, §4.3.1). Fork's remap of each parent
// page, PageFault's PTE rewrite, and each page Brk newly maps are followed
// by a board.FlushTLBPage call (spec.md §4.3.2-§4.3.4, §5's ordering
// rule); InsertFramedArea and the child side of Fork map pages without
// one.
package vm

import (
	"debug/elf"
	"sync"

	"github.com/google/btree"

	"sv39os/addr"
	"sv39os/board"
	"sv39os/config"
	"sv39os/errno"
	"sv39os/frame"
	"sv39os/pagetable"
)

// MapType names how a MapArea's pages are backed.
type MapType int

const (
	// Linear areas are identity-offset mapped with no owned frames (the
	// kernel's own linear map); unused by user address spaces.
	Linear MapType = iota
	// Framed areas own one frame.Tracker per mapped page.
	Framed
	// Device areas map a fixed physical range (MMIO) with no owned frames.
	Device
)

// vaRange is a half-open virtual address range [Start, End) used as a
// btree key. Its Less treats any overlap as equal, the same trick rust's
// VARangeOrd plays for BTreeMap<VARangeOrd, MapArea> point/range queries.
type vaRange struct {
	Start, End addr.VA
}

func pointRange(va addr.VA) vaRange { return vaRange{Start: va, End: va + 1} }

func lessRange(a, b vaRange) bool { return a.End <= b.Start }

// MapArea describes one contiguous mapped region of an address space.
type MapArea struct {
	Range  vaRange
	Type   MapType
	Perm   pagetable.PTE // R/W/X/U bits shared by every page in the area
	Frames map[addr.VPN]*frame.Tracker
}

func newArea(r vaRange, typ MapType, perm pagetable.PTE) *MapArea {
	return &MapArea{Range: r, Type: typ, Perm: perm, Frames: make(map[addr.VPN]*frame.Tracker)}
}

func (a *MapArea) clone() *MapArea {
	n := newArea(a.Range, a.Type, a.Perm)
	for vpn, t := range a.Frames {
		n.Frames[vpn] = t.Clone()
	}
	return n
}

// AddressSpace is one process's virtual memory: a page table plus the
// ordered set of MapAreas describing what backs each mapped range.
// Grounded on teacher Vm_t / rust AddressSpace.
type AddressSpace struct {
	mu    sync.Mutex
	alloc *frame.Allocator
	pt    *pagetable.PageTable
	areas *btree.BTreeG[*MapArea]

	// dataSegmentEnd/dataSegmentMax are the brk-growable region's current
	// end and its ceiling, fixed once at ELF-load time (spec.md §3,
	// §4.3.1: "data_segment_max = page_up(data_segment_end) + BRK_MAX").
	// Zero until FromELF sets them; an AddressSpace built directly via
	// NewKernel/InsertFramedArea (the kernel address space, tests) never
	// calls Brk.
	dataSegmentEnd addr.VA
	dataSegmentMax addr.VA
}

func newAreaTree() *btree.BTreeG[*MapArea] {
	return btree.NewG[*MapArea](32, func(a, b *MapArea) bool { return lessRange(a.Range, b.Range) })
}

// NewKernel builds an AddressSpace with only the shared kernel half
// mapped, plus every configured MMIO window as a Device area. Grounded on
// rust AddressSpace::new_kernel.
func NewKernel(alloc *frame.Allocator) (*AddressSpace, errno.Err_t) {
	pt, err := pagetable.NewKernelPageTable(alloc)
	if err != 0 {
		return nil, err
	}
	as := &AddressSpace{alloc: alloc, pt: pt, areas: newAreaTree()}
	for _, m := range config.MMIO {
		start := addr.PA(m.Base).ToVA()
		end := addr.PA(m.Base + m.Len).ToVA()
		r := vaRange{Start: start, End: end}
		area := newArea(r, Device, pagetable.Readable|pagetable.Writable)
		for vpn := start.PageDown(); vpn < end.PageUp(); vpn++ {
			ppn := addr.PPN(uint(vpn) - config.KernelMapOffsetVPN)
			if _, err := pt.MapOne(vpn, ppn, area.Perm); err != 0 {
				return nil, err
			}
		}
		as.areas.ReplaceOrInsert(area)
	}
	return as, 0
}

// PageTable returns the address space's page table, e.g. for Activate.
func (as *AddressSpace) PageTable() *pagetable.PageTable { return as.pt }

// InsertFramedArea allocates one frame per page of [r.Start, r.End),
// copying data into the start of the area if given, and maps it with
// perm. Grounded on rust insert_framed_area / teacher Vmadd_anon.
func (as *AddressSpace) InsertFramedArea(start, end addr.VA, perm pagetable.PTE, data []byte) errno.Err_t {
	as.mu.Lock()
	defer as.mu.Unlock()
	return as.insertFramedAreaLocked(start, end, perm, data)
}

func (as *AddressSpace) insertFramedAreaLocked(start, end addr.VA, perm pagetable.PTE, data []byte) errno.Err_t {
	r := vaRange{Start: start, End: end}
	area := newArea(r, Framed, perm)
	off := 0
	pageOff := start.Offset()
	for vpn := start.PageDown(); vpn < end.PageUp(); vpn++ {
		t, err := as.alloc.Alloc()
		if err != 0 {
			return err
		}
		if data != nil && off < len(data) {
			n := copy(t.Bytes()[pageOff:], data[off:])
			off += n
		}
		pageOff = 0
		if _, err := as.pt.MapOne(vpn, t.PPN(), perm); err != 0 {
			return err
		}
		area.Frames[vpn] = t
	}
	as.areas.ReplaceOrInsert(area)
	return 0
}

// RemoveArea unmaps and releases every frame of the area covering va.
// Grounded on rust remove_area.
func (as *AddressSpace) RemoveArea(va addr.VA) errno.Err_t {
	as.mu.Lock()
	defer as.mu.Unlock()
	area, ok := as.areas.Delete(&MapArea{Range: pointRange(va)})
	if !ok {
		return errno.EINVAL
	}
	for vpn, t := range area.Frames {
		as.pt.UnmapOne(vpn)
		t.Drop()
	}
	return 0
}

// FromELF builds a fresh address space by mapping every PT_LOAD segment
// of the given ELF image. Grounded on rust AddressSpace::from_elf; the
// ELF container is parsed with the standard library's debug/elf, the
// pack's dependency surface ships no third-party ELF parser.
func FromELF(alloc *frame.Allocator, image []byte) (*AddressSpace, addr.VA, errno.Err_t) {
	as, err := NewKernel(alloc)
	if err != 0 {
		return nil, 0, err
	}
	f, perr := elf.NewFile(bytesReaderAt(image))
	if perr != nil {
		return nil, 0, errno.EINVAL
	}
	for _, ph := range f.Progs {
		if ph.Type != elf.PT_LOAD {
			continue
		}
		var perm pagetable.PTE = pagetable.User
		if ph.Flags&elf.PF_R != 0 {
			perm |= pagetable.Readable
		}
		if ph.Flags&elf.PF_W != 0 {
			perm |= pagetable.Writable
		}
		if ph.Flags&elf.PF_X != 0 {
			perm |= pagetable.Executable
		}
		start := addr.VA(ph.Vaddr)
		end := addr.VA(ph.Vaddr + ph.Memsz)
		data := make([]byte, ph.Filesz)
		if _, rerr := ph.Open().Read(data); rerr != nil && rerr.Error() != "EOF" {
			return nil, 0, errno.EFAULT
		}
		if err := as.insertFramedAreaLocked(start, end, perm, data); err != 0 {
			return nil, 0, err
		}
	}
	var first *MapArea
	as.areas.Ascend(func(area *MapArea) bool {
		if area.Type != Device {
			first = area
			return false
		}
		return true
	})
	if first != nil {
		as.dataSegmentEnd = first.Range.End
		as.dataSegmentMax = addr.VA(addr.RoundUp(uint(first.Range.End))) + addr.VA(config.BrkMax)
	}
	return as, addr.VA(f.Entry), 0
}

type bytesReaderAt []byte

func (b bytesReaderAt) ReadAt(p []byte, off int64) (int, error) {
	if off >= int64(len(b)) {
		return 0, errEOF{}
	}
	n := copy(p, b[off:])
	if n < len(p) {
		return n, errEOF{}
	}
	return n, nil
}

type errEOF struct{}

func (errEOF) Error() string { return "EOF" }

// Fork produces a CoW clone of as. Writable (or already-COW) framed areas
// have their Writable bit cleared and COW bit set in both parent and
// child; every other area type is shared by reference unchanged. Grounded
// on teacher Sys_pgfault's shared contract and rust AddressSpace::fork.
func (as *AddressSpace) Fork(alloc *frame.Allocator) (*AddressSpace, errno.Err_t) {
	as.mu.Lock()
	defer as.mu.Unlock()

	child, err := NewKernel(alloc)
	if err != 0 {
		return nil, err
	}

	as.areas.Ascend(func(area *MapArea) bool {
		if area.Type == Device {
			return true
		}
		perm := area.Perm
		if perm&(pagetable.Writable|pagetable.COW) != 0 {
			perm = (perm &^ pagetable.Writable) | pagetable.COW
			na := newArea(area.Range, area.Type, perm)
			for vpn, t := range area.Frames {
				child.pt.MapOne(vpn, t.PPN(), perm)
				as.pt.RemapOne(vpn, t.PPN(), perm)
				if board.FlushTLBPage != nil {
					board.FlushTLBPage(vpn)
				}
				na.Frames[vpn] = t.Clone()
			}
			area.Perm = perm
			child.areas.ReplaceOrInsert(na)
		} else {
			na := newArea(area.Range, area.Type, perm)
			for vpn, t := range area.Frames {
				child.pt.MapOne(vpn, t.PPN(), perm)
				na.Frames[vpn] = t.Clone()
			}
			child.areas.ReplaceOrInsert(na)
		}
		return true
	})
	child.dataSegmentEnd = as.dataSegmentEnd
	child.dataSegmentMax = as.dataSegmentMax
	return child, 0
}

// PageFault resolves a fault at va. It is an error (EFAULT) to call this
// for a fault whose PTE is not COW-marked — spec.md §4.3.3 makes every
// other fault thread-fatal, which callers implement by translating this
// error into killing the faulting thread rather than the kernel
// panicking (DESIGN.md Open Question (b)). Grounded on teacher
// Sys_pgfault and rust handle_pagefault.
func (as *AddressSpace) PageFault(va addr.VA) errno.Err_t {
	as.mu.Lock()
	defer as.mu.Unlock()

	vpn := va.PageDown()
	pte, ok := as.pt.FindPTE(vpn)
	if !ok || pte.Flags()&pagetable.COW == 0 {
		return errno.EFAULT
	}
	area, ok := as.areas.Get(&MapArea{Range: pointRange(va)})
	if !ok {
		return errno.EFAULT
	}
	t, ok := area.Frames[vpn]
	if !ok {
		return errno.EFAULT
	}
	flags := (pte.Flags() &^ pagetable.COW) | pagetable.Writable
	if t.Refcnt() > 1 {
		nt, err := as.alloc.AllocNoZero()
		if err != 0 {
			return err
		}
		copy(nt.Bytes(), t.Bytes())
		area.Frames[vpn] = nt
		*pte = pagetable.NewPTE(nt.PPN(), flags)
		t.Drop()
	} else {
		*pte = pagetable.NewPTE(t.PPN(), flags)
	}
	if board.FlushTLBPage != nil {
		board.FlushTLBPage(vpn)
	}
	return 0
}

// ReadBytes returns a copy of the n bytes at va, failing EFAULT unless va
// and va+n both lie in one framed page currently mapped in as. Used by
// the page-fault kill path (package pagefault) to fetch the faulting
// instruction's raw bytes for diag.DecodeFault.
func (as *AddressSpace) ReadBytes(va addr.VA, n int) ([]byte, errno.Err_t) {
	as.mu.Lock()
	defer as.mu.Unlock()

	area, ok := as.areas.Get(&MapArea{Range: pointRange(va)})
	if !ok || area.Type != Framed {
		return nil, errno.EFAULT
	}
	vpn := va.PageDown()
	t, ok := area.Frames[vpn]
	if !ok {
		return nil, errno.EFAULT
	}
	off := int(va.Offset())
	if off+n > len(t.Bytes()) {
		return nil, errno.EFAULT
	}
	out := make([]byte, n)
	copy(out, t.Bytes()[off:off+n])
	return out, 0
}

// AllocUserArea scans the sorted area list, starting at dataSegmentMax,
// for a gap at least size bytes wide plus one guard page on each side
// that overlaps no existing area, and returns the end address of the
// usable size bytes (the guard page lies above it). Grounded on rust
// alloc_user_area.
func (as *AddressSpace) AllocUserArea(size uint) addr.VA {
	as.mu.Lock()
	defer as.mu.Unlock()

	size += 2 * config.PageSize
	vaEnd := as.dataSegmentMax + addr.VA(size)
	as.areas.Ascend(func(area *MapArea) bool {
		if vaEnd <= area.Range.Start {
			return false
		}
		if area.Range.End > vaEnd-addr.VA(size) {
			vaEnd = addr.VA(addr.RoundUp(uint(area.Range.End))) + addr.VA(size)
		}
		return true
	})
	return vaEnd - addr.VA(config.PageSize)
}

// Brk implements sys_brk: addr==0 returns the current data-segment end;
// otherwise it grows or shrinks the end of the lowest-addressed area (the
// data segment) up to the fixed dataSegmentMax ceiling FromELF recorded,
// allocating, mapping and TLB-flushing each page that growth newly
// covers; shrinking unmaps nothing. Returns (current end, EINVAL) on a
// request past dataSegmentMax, leaving the address space unchanged. Grounded on rust
// AddressSpace::brk, except the growth ceiling is a field fixed at
// ELF-load time rather than rederived from the current end on every call
// (spec.md §3, §4.3.4's strict "addr > data_segment_max" bound).
func (as *AddressSpace) Brk(want addr.VA) (addr.VA, errno.Err_t) {
	as.mu.Lock()
	defer as.mu.Unlock()

	var first *MapArea
	as.areas.Ascend(func(area *MapArea) bool { first = area; return false })
	if first == nil {
		return 0, errno.EINVAL
	}
	dataEnd := first.Range.End
	if want == 0 {
		return dataEnd, 0
	}
	if uint(want) > uint(as.dataSegmentMax) {
		return dataEnd, errno.EINVAL
	}

	as.areas.Delete(first)
	for vpn := dataEnd.PageUp(); vpn < want.PageUp(); vpn++ {
		if _, mapped := first.Frames[vpn]; mapped {
			continue
		}
		t, err := as.alloc.Alloc()
		if err != 0 {
			as.areas.ReplaceOrInsert(first)
			return dataEnd, err
		}
		if _, err := as.pt.MapOne(vpn, t.PPN(), first.Perm); err != 0 {
			as.areas.ReplaceOrInsert(first)
			return dataEnd, err
		}
		first.Frames[vpn] = t
		if board.FlushTLBPage != nil {
			board.FlushTLBPage(vpn)
		}
	}
	first.Range.End = want
	as.areas.ReplaceOrInsert(first)
	as.dataSegmentEnd = want
	return want, 0
}

// Package pagetable implements the Sv39 three-level page table: PTE flag
// bits, the find/map/remap/unmap walk, and the shared kernel half.
//
// Grounded on rust teacher arch/riscv/page_table.rs (find_pte_create,
// find_pte, new_kernel, activate — method names and walk semantics carried
// over directly) and the teacher's mem/dmap.go (PTE_P/PTE_W/PTE_U/...
// flag constants, the Pmap_t = [512]Pa_t page-table-page representation,
// and pg2pmap's unsafe reinterpretation of a raw page as a PTE array).
package pagetable

import (
	"unsafe"

	"sv39os/addr"
	"sv39os/config"
	"sv39os/errno"
	"sv39os/frame"
)

// PTE is one Sv39 page table entry: bits 0..7 are V,R,W,X,U,G,A,D; bit 8
// is the software COW bit; bits 10..53 hold the PPN. Spec.md §6.
type PTE uint64

// Flag bits, bit-exact per spec.md §6.
const (
	Valid     PTE = 1 << 0
	Readable  PTE = 1 << 1
	Writable  PTE = 1 << 2
	Executable PTE = 1 << 3
	User      PTE = 1 << 4
	Global    PTE = 1 << 5
	Accessed  PTE = 1 << 6
	Dirty     PTE = 1 << 7
	COW       PTE = 1 << 8

	ppnShift = 10
	ppnMask  = (uint64(1) << 44) - 1
)

// IsValid reports whether the entry's valid bit is set.
func (p PTE) IsValid() bool { return p&Valid != 0 }

// IsLeaf reports whether the entry is a leaf mapping rather than a
// pointer to the next-level table. Invariant (spec.md §4.2): a PTE is a
// leaf iff any of R/W/X is set.
func (p PTE) IsLeaf() bool { return p&(Readable|Writable|Executable) != 0 }

// PPN extracts the physical page number encoded in the entry.
func (p PTE) PPN() addr.PPN { return addr.PPN(uint64(p) >> ppnShift & ppnMask) }

// WithPPN returns p with its PPN field replaced, flags unchanged.
func (p PTE) WithPPN(ppn addr.PPN) PTE {
	return PTE(uint64(p)&^(ppnMask<<ppnShift)) | PTE(uint64(ppn)<<ppnShift&(ppnMask<<ppnShift))
}

// Flags returns the flag bits of the entry (bits 0..8).
func (p PTE) Flags() PTE { return p & 0x1ff }

// NewPTE builds an entry from a PPN and flag bits.
func NewPTE(ppn addr.PPN, flags PTE) PTE {
	return PTE(uint64(ppn)<<ppnShift&(ppnMask<<ppnShift)) | (flags & 0x1ff)
}

func asPTEPage(b []byte) *[512]PTE {
	if len(b) != config.PageSize {
		panic("pagetable: page slice has wrong length")
	}
	return (*[512]PTE)(unsafe.Pointer(&b[0]))
}

// Kernel is the shared page table whose upper 256 top-level entries every
// per-process PageTable copies by reference (spec.md §3). It is
// initialized exactly once during bring-up, before the first user thread
// runs (spec.md §9).
var Kernel *PageTable

// InitKernel constructs the process-wide kernel page table and maps each
// configured MMIO region into it as a Device-equivalent R/W mapping. It
// must run after frame.Init and before any per-process PageTable is
// created.
func InitKernel(alloc *frame.Allocator) {
	root, err := alloc.Alloc()
	if err != 0 {
		panic("pagetable: out of memory initializing kernel page table")
	}
	Kernel = &PageTable{alloc: alloc, root: root}
	for _, m := range config.MMIO {
		start := addr.PA(m.Base).ToVA().PageDown()
		end := addr.PA(m.Base + m.Len).ToVA().PageUp()
		for vpn := start; vpn < end; vpn++ {
			ppn := addr.PPN(uint(vpn) - config.KernelMapOffsetVPN)
			if _, err := Kernel.MapOne(vpn, ppn, Readable|Writable|Valid); err != 0 {
				panic("pagetable: failed to map MMIO region")
			}
		}
	}
}

// PageTable owns a root frame plus every interior-table frame it created.
// A PageTable's lower 256 top-level entries are private to the owning
// address space; its upper 256 are shared by reference with Kernel.
type PageTable struct {
	alloc  *frame.Allocator
	root   *frame.Tracker
	frames []*frame.Tracker
}

// RootPPN returns the physical page number of the root table, the value
// Activate (or a board's satp write) encodes into the hardware
// page-table base register.
func (pt *PageTable) RootPPN() addr.PPN { return pt.root.PPN() }

func (pt *PageTable) rootPage() *[512]PTE { return asPTEPage(pt.alloc.Dmap(pt.root.PPN())) }

// NewKernelPageTable allocates a root table, zeroes its lower 256
// entries, and copies Kernel's upper 256 entries by reference — the
// "upper half shared, lower half private" construction of spec.md §3.
// Must run after InitKernel. A top-level entry that Kernel gains after
// this call is not copied into the returned table.
func NewKernelPageTable(alloc *frame.Allocator) (*PageTable, errno.Err_t) {
	root, err := alloc.Alloc()
	if err != 0 {
		return nil, err
	}
	pt := &PageTable{alloc: alloc, root: root}
	dst := pt.rootPage()
	src := Kernel.rootPage()
	for i := 256; i < 512; i++ {
		dst[i] = src[i]
	}
	return pt, 0
}

// FindPTECreate walks from the root, allocating and installing a zeroed
// interior table whenever a non-leaf slot is invalid, and returns a
// pointer to the leaf PTE slot for vpn.
func (pt *PageTable) FindPTECreate(vpn addr.VPN) (*PTE, errno.Err_t) {
	idxs := vpn.Indexes()
	page := pt.rootPage()
	for level := 0; level < 2; level++ {
		pte := &page[idxs[level]]
		if !pte.IsValid() {
			nf, err := pt.alloc.Alloc()
			if err != 0 {
				return nil, err
			}
			pt.frames = append(pt.frames, nf)
			*pte = NewPTE(nf.PPN(), Valid)
		}
		if pte.IsLeaf() {
			panic("pagetable: found a leaf where an interior PTE was expected")
		}
		page = asPTEPage(pt.alloc.Dmap(pte.PPN()))
	}
	return &page[idxs[2]], 0
}

// FindPTE walks from the root and returns the leaf PTE slot for vpn, or
// ok=false if any intermediate slot (or the leaf itself) is invalid.
func (pt *PageTable) FindPTE(vpn addr.VPN) (pte *PTE, ok bool) {
	idxs := vpn.Indexes()
	page := pt.rootPage()
	for level := 0; level < 2; level++ {
		p := &page[idxs[level]]
		if !p.IsValid() {
			return nil, false
		}
		page = asPTEPage(pt.alloc.Dmap(p.PPN()))
	}
	p := &page[idxs[2]]
	if !p.IsValid() {
		return nil, false
	}
	return p, true
}

// MapOne sets the leaf PTE for vpn to (ppn, flags|Valid). It is an error
// to call this on an already-valid mapping; use RemapOne instead.
func (pt *PageTable) MapOne(vpn addr.VPN, ppn addr.PPN, flags PTE) (*PTE, errno.Err_t) {
	pte, err := pt.FindPTECreate(vpn)
	if err != 0 {
		return nil, err
	}
	if pte.IsValid() {
		panic("pagetable: MapOne on an already-valid PTE")
	}
	*pte = NewPTE(ppn, flags|Valid)
	return pte, 0
}

// RemapOne overwrites an existing valid leaf PTE with a new mapping.
// Callers must issue the appropriate TLB shootdown for vpn after this
// call returns (spec.md §5 ordering rule).
func (pt *PageTable) RemapOne(vpn addr.VPN, ppn addr.PPN, flags PTE) {
	pte, ok := pt.FindPTE(vpn)
	if !ok {
		panic("pagetable: RemapOne on an invalid PTE")
	}
	*pte = NewPTE(ppn, flags|Valid)
}

// UnmapOne clears the leaf PTE for vpn.
func (pt *PageTable) UnmapOne(vpn addr.VPN) {
	pte, ok := pt.FindPTE(vpn)
	if !ok {
		panic("pagetable: UnmapOne on an invalid PTE")
	}
	*pte = 0
}

// Activate writes the hardware page-table base register with this
// table's root PPN (Sv39 mode) and issues a global sfence.vma, via the
// board's hook (spec.md §9: board bring-up is out of scope; only the
// call contract is in scope).
func (pt *PageTable) Activate() {
	if WriteSATP != nil {
		WriteSATP(pt.RootPPN())
	}
}

// WriteSATP is the board hook that programs the hardware page-table base
// register and issues a global sfence.vma. nil in tests, generalizing the
// teacher's vm.Cpumap hook-registration pattern.
var WriteSATP func(root addr.PPN)

// Package config holds the board-numeric constants the rest of the kernel
// is parameterized on. Grounded on the rust teacher's
// board::interface::Config trait (original_source/kernel/src/mm/mod.rs),
// translated to a plain const block — Go has no need of the trait's
// generic MMIO_N parameter since we describe MMIO ranges with a slice.
package config

// PageSizeBits is the base-2 exponent of the page size (Sv39: 4 KiB pages).
const PageSizeBits = 12

// PageSize is the size in bytes of one physical/virtual page.
const PageSize = 1 << PageSizeBits

// PageOffsetMask masks the intra-page offset bits of an address.
const PageOffsetMask = PageSize - 1

// KernelMapOffset is the linear offset of the kernel's identity map:
// VA = PA + KernelMapOffset, VPN = PPN + KernelMapOffset/PageSize.
//
// 0xffff_ffc0_0000_0000 places the kernel in the topmost 256 GiB of the
// Sv39 address space, matching the "upper 256 top-level entries" split
// spec.md §3 describes.
const KernelMapOffset = 0xffff_ffc0_0000_0000

// KernelMapOffsetVPN is KernelMapOffset expressed in page numbers.
const KernelMapOffsetVPN = KernelMapOffset >> PageSizeBits

// UserStackSize is the default size of a new thread's user stack.
const UserStackSize = 64 * 1024

// KernelStackSize is the usable size of one thread's kernel stack,
// excluding its guard page.
const KernelStackSize = 32 * 1024

// GuardPageSize is the size of the unmapped guard page separating
// consecutive kernel stacks.
const GuardPageSize = PageSize

// KernelStackAlignBits is the base-2 exponent of the power-of-two slot a
// kernel stack is aligned within, letting the current thread be
// recovered from any stack pointer inside it by masking (spec.md §4.2 /
// §9: "Kernel-stack back-pointer... SP-masking is a deliberate
// alternative to per-hart TLS"). Must be large enough to hold
// KernelStackSize.
const KernelStackAlignBits = 15

// KernelStackAlignSize is the power-of-two slot size derived from
// KernelStackAlignBits.
const KernelStackAlignSize = 1 << KernelStackAlignBits

// KernelStackTop is the top virtual address of kernel stack slot 0. Slot
// N occupies [KernelStackTop - N*(KernelStackAlignSize+GuardPageSize) -
// KernelStackAlignSize, KernelStackTop - N*(KernelStackAlignSize+GuardPageSize)).
const KernelStackTop = ^uint(0) - KernelStackAlignSize + 1

// BrkMax is the maximum number of bytes a process's brk may grow the data
// segment past the first page after its BSS.
const BrkMax = 0x3000

// MemoryStart is the first physical address the frame allocator may use.
// A real board sets this past the kernel image; tests use a small
// synthetic region.
var MemoryStart uint = 0x8020_0000

// MemoryEnd is the exclusive upper bound of usable physical memory.
var MemoryEnd uint = 0x8800_0000

// MMIORegion describes one memory-mapped I/O window mapped Device/R/W in
// every address space via the shared kernel half.
type MMIORegion struct {
	Base uint
	Len  uint
}

// MMIO lists the board's MMIO windows. Populated by board bring-up code,
// which is out of scope per spec.md §1; empty by default so tests that
// never call board init still produce a valid (if deviceless) kernel
// address space.
var MMIO []MMIORegion

// Package kstack computes the fixed kernel-stack layout shared by every
// thread and recovers the current thread from the live stack pointer.
//
// Grounded on rust teacher process/thread.rs
// (get_kernel_stack_range/get_cur_kernel_stack_top/get_current_thread/
// get_current_trapframe, THREAD_PTR_OFFSET/TRAP_FRAME_OFFSET) and spec.md
// §3/§6: "from high to low at the top — &Thread back-pointer, trap
// frame, saved task context". The layout is load-bearing: the assembly
// entry/exit trampolines (package trapframe) address it by these same
// fixed offsets.
package kstack

import (
	"unsafe"

	"sv39os/addr"
	"sv39os/config"
	"sv39os/trapframe"
)

const ptrSize = unsafe.Sizeof(uintptr(0))

// ThreadPtrOffset is the offset below stack top of the &Thread
// back-pointer slot.
const ThreadPtrOffset = ptrSize

// TrapFrameOffset is the offset below stack top of the TrapFrame.
var TrapFrameOffset = ThreadPtrOffset + unsafe.Sizeof(trapframe.TrapFrame{})

// TaskContextOffset is the offset below stack top of the TaskContext.
var TaskContextOffset = TrapFrameOffset + unsafe.Sizeof(trapframe.TaskContext{})

// Range returns the kernel stack's virtual address range for the given
// tid — slot tid of config.KernelStackAlignSize bytes, each preceded by
// one unmapped guard page, counting down from config.KernelStackTop.
// Grounded on rust get_kernel_stack_range.
func Range(tid int) (start, end addr.VA) {
	slot := uint(tid) * (config.KernelStackAlignSize + config.GuardPageSize)
	top := config.KernelStackTop - slot
	return addr.VA(top - config.KernelStackAlignSize), addr.VA(top)
}

// ThreadPtrAddr, TrapFrameAddr, and TaskContextAddr locate the three
// fixed objects within a kernel stack given its top address.
func ThreadPtrAddr(top addr.VA) addr.VA   { return top - addr.VA(ThreadPtrOffset) }
func TrapFrameAddr(top addr.VA) addr.VA   { return top - addr.VA(TrapFrameOffset) }
func TaskContextAddr(top addr.VA) addr.VA { return top - addr.VA(TaskContextOffset) }

// ReadSP is the board hook returning the live stack pointer, used by
// CurrentKernelStackTop to mask down to the enclosing stack's base. nil
// in tests, generalizing the same hook-variable pattern as
// pagetable.WriteSATP.
var ReadSP func() uintptr

// CurrentKernelStackTop masks the live stack pointer down to its
// enclosing aligned slot and returns that slot's top address — the
// "kernel_sp_masked" spec.md §4.5 names as how the per-hart current
// thread is recovered without per-hart TLS.
func CurrentKernelStackTop() addr.VA {
	sp := ReadSP()
	base := sp &^ (uintptr(config.KernelStackAlignSize) - 1)
	return addr.VA(base) + addr.VA(config.KernelStackAlignSize)
}

// Package thread implements the thread model: tid allocation, kernel and
// user thread construction, the task-context switch handoff, and the
// Exec/Exit lifecycle operations.
//
// tid allocation is metered against limits.Syslimit.Threads, failing
// ENOHEAP once the system-wide thread budget (package limits) is
// exhausted, rather than growing unbounded.
//
// Every live thread is tracked in a package-level registry (All) keyed
// by tid, so package sched's diagnostics snapshot can enumerate them for
// kstat.BuildProfile without this package depending on sched.
//
// Grounded on rust teacher process/thread.rs (TidAllocator, Thread,
// ThreadStatus, new_kernel, new_thread, switch_to, prepare, exec, exit)
// and spec.md
// §4.4/§4.5's kernel-stack-layout and bootstrap contracts. A freshly
// constructed Thread's TrapFrame/TaskContext are plain Go struct fields
// rather than values read back out of its kernel stack's mapped bytes:
// dereferencing a fabricated kernel-stack virtual address the way the
// rust original does requires a live MMU and satp, which is board
// bring-up and out of scope per spec.md §1. The kernel-stack MapArea is
// still allocated and accounted for (package kstack, package vm) so
// resource bookkeeping and the address-layout contract stay exercised;
// only the "read the trap frame back out of stack memory" step is
// replaced by keeping the authoritative copy in the Thread struct.
package thread

import (
	"sync"

	"sv39os/accnt"
	"sv39os/addr"
	"sv39os/config"
	"sv39os/errno"
	"sv39os/frame"
	"sv39os/kstack"
	"sv39os/limits"
	"sv39os/pagetable"
	"sv39os/proc"
	"sv39os/trapframe"
	"sv39os/vm"
)

// Status is a thread's scheduling state. Grounded on rust ThreadStatus.
type Status int

const (
	Ready Status = iota
	Running
	Waiting
	Zombie
)

// tidAllocator is a freelist-backed tid allocator, grounded on rust
// TidAllocator.
type tidAllocator struct {
	mu       sync.Mutex
	current  int
	recycled []int
}

// alloc allocates a tid against the system-wide thread limit (limits.
// Syslimit.Threads), failing ENOHEAP when the budget is exhausted.
func (a *tidAllocator) alloc() (int, errno.Err_t) {
	if !limits.Syslimit.Threads.Take() {
		limits.Hit()
		return 0, errno.ENOHEAP
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if n := len(a.recycled); n > 0 {
		tid := a.recycled[n-1]
		a.recycled = a.recycled[:n-1]
		return tid, 0
	}
	tid := a.current
	a.current++
	return tid, 0
}

func (a *tidAllocator) dealloc(tid int) {
	a.mu.Lock()
	a.recycled = append(a.recycled, tid)
	a.mu.Unlock()
	limits.Syslimit.Threads.Give()
}

var tids = &tidAllocator{}

// Thread is one schedulable execution context. Grounded on rust Thread.
type Thread struct {
	Tid          int
	Process      *proc.Process
	UserStackTop addr.VA // 0 for kernel threads

	KernelStackTop addr.VA
	TrapFrame      trapframe.TrapFrame
	TaskContext    trapframe.TaskContext

	// Accnt accumulates this thread's CPU time (package accnt), the
	// per-thread source kstat.BuildProfile samples are built from.
	Accnt accnt.Accnt_t

	mu     sync.Mutex
	status Status
}

var (
	registryMu sync.Mutex
	registry   = map[int]*Thread{}
)

func register(t *Thread) {
	registryMu.Lock()
	registry[t.Tid] = t
	registryMu.Unlock()
}

func unregister(tid int) {
	registryMu.Lock()
	delete(registry, tid)
	registryMu.Unlock()
}

// All returns every live thread, for the scheduler's diagnostics
// snapshot (package sched's Profile, which feeds kstat.BuildProfile).
// Order is unspecified.
func All() []*Thread {
	registryMu.Lock()
	defer registryMu.Unlock()
	out := make([]*Thread, 0, len(registry))
	for _, t := range registry {
		out = append(out, t)
	}
	return out
}

// Status returns the thread's current scheduling state.
func (t *Thread) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// SetStatus updates the thread's scheduling state.
func (t *Thread) SetStatus(s Status) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status = s
}

// NewKernel creates a kernel thread whose task context resumes execution
// at entry on first switch. Grounded on rust Thread::new_kernel.
func NewKernel(kernelProc *proc.Process, entry uint64) (*Thread, errno.Err_t) {
	tid, err := tids.alloc()
	if err != 0 {
		return nil, err
	}
	start, top := kstack.Range(tid)
	if err := kernelProc.AddressSpace().InsertFramedArea(start, top, pagetable.Readable|pagetable.Writable, nil); err != 0 {
		tids.dealloc(tid)
		return nil, err
	}
	t := &Thread{
		Tid:            tid,
		Process:        kernelProc,
		KernelStackTop: top,
		status:         Ready,
	}
	t.TaskContext.SetReturn(entry, uint64(top)-uint64(kstack.TaskContextOffset))
	register(t)
	return t, 0
}

// NewUser creates a user thread from a process whose address space is
// already loaded from an ELF image (vm.FromELF), with its trap frame
// initialized to enter at entryPoint on the thread's own user stack.
// Grounded on rust Thread::new_thread.
func NewUser(p *proc.Process, entryPoint addr.VA, sstatusSPIE uint64) (*Thread, errno.Err_t) {
	tid, err := tids.alloc()
	if err != 0 {
		return nil, err
	}
	userStackTop := p.AllocUserStack()

	start, top := kstack.Range(tid)
	if err := proc.Kernel().AddressSpace().InsertFramedArea(start, top, pagetable.Readable|pagetable.Writable, nil); err != 0 {
		tids.dealloc(tid)
		return nil, err
	}

	t := &Thread{
		Tid:            tid,
		Process:        p,
		UserStackTop:   userStackTop,
		KernelStackTop: top,
		status:         Ready,
	}
	t.TrapFrame.Init(uint64(userStackTop)-8, uint64(entryPoint), sstatusSPIE)
	t.TaskContext.SetReturn(ExitTrampolineAddr, uint64(top)-uint64(kstack.TaskContextOffset))
	register(t)
	return t, 0
}

// ExitTrampolineAddr is the link-time address of the exit trampoline — a
// new user thread's task context points its return address here so the
// first Switch into it flows directly into the restore path (spec.md
// §4.4.1). A board sets this once during bring-up; zero in tests, where
// trapframe.Switch is itself a nil hook.
var ExitTrampolineAddr uint64

// SwitchTo performs __switch(&self.task_cx, other.task_cx): saves the
// calling thread's callee-saved registers and resumes other. Grounded on
// rust Thread::switch_to.
func (t *Thread) SwitchTo(other *Thread) {
	if trapframe.Switch != nil {
		trapframe.Switch(&t.TaskContext, &other.TaskContext)
	}
}

// Exec loads image as a fresh ELF address space for t's process, drops
// the process's close-on-exec fds, reallocates t's user stack in the new
// address space, and rewrites t's trap frame to resume at the new
// image's entry point — spec.md §4.5's Exec. The fd-table/address-space
// half of the work is proc.Process.Exec; this is the thread-owned
// trap-frame/user-stack half. Grounded on rust process.rs's exec.
func (t *Thread) Exec(alloc *frame.Allocator, image []byte, sstatusSPIE uint64) errno.Err_t {
	as, entry, err := vm.FromELF(alloc, image)
	if err != 0 {
		return err
	}
	t.Process.Exec(as)
	top := t.Process.AllocUserStack()
	t.UserStackTop = top
	t.TrapFrame.Init(uint64(top)-8, uint64(entry), sstatusSPIE)
	return 0
}

// Exit marks t Zombie and reports its process's exit code to its parent
// (proc.Process.Exit), spec.md §4.5. Grounded on rust Thread::exit.
func (t *Thread) Exit(code int) {
	t.SetStatus(Zombie)
	t.Process.Exit(code)
}

// Prepare activates this thread's process's page table and returns the
// address its trap frame would occupy on the kernel stack, for the
// entry trampoline to restore from. Grounded on rust Thread::prepare.
func (t *Thread) Prepare() addr.VA {
	t.Accnt.FirstDispatch()
	t.Process.AddressSpace().PageTable().Activate()
	return kstack.TrapFrameAddr(t.KernelStackTop)
}

// Drop releases the thread's tid and kernel stack area. Grounded on rust
// Drop for Thread.
func (t *Thread) Drop() {
	proc.Kernel().AddressSpace().RemoveArea(t.KernelStackTop - 1)
	unregister(t.Tid)
	tids.dealloc(t.Tid)
}

// KernelStackSize is re-exported for callers sizing kernel-stack related
// buffers without importing package config directly.
const KernelStackSize = config.KernelStackSize

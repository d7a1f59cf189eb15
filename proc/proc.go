// Package proc implements the process model: address space ownership,
// fd table, working directory, and parent/child links.
//
// Grounded on rust teacher process/process.rs (Process, ProcessInner,
// KERNEL_PROCESS, from_elf, fork, fd_alloc, alloc_user_stack) and
// teacher-idiom resource accounting (biscuit/src/limits/limits.go's
// taken/given counters, reflected here as the fd table's length cap).
package proc

import (
	"sync"

	"sv39os/addr"
	"sv39os/config"
	"sv39os/errno"
	"sv39os/frame"
	"sv39os/fs"
	"sv39os/pagetable"
	"sv39os/vm"
)

// Pid identifies a process.
type Pid int

// MaxFD bounds the size a process's fd table may grow to. Grounded on
// rust ProcessInner::MAX_FD.
const MaxFD = 101

// ExitedChild records one exited child's pid and exit code, popped by a
// parent's wait()-style syscall body (an external collaborator; this
// package only maintains the list). Grounded on spec.md §3's "list of
// exited children with exit code".
type ExitedChild struct {
	Pid  Pid
	Code int
}

// Process owns one address space, shared by every thread in it (spec.md
// §4.5). Grounded on rust Process/ProcessInner.
type Process struct {
	Pid Pid

	mu      sync.Mutex
	cwd     string
	as      *vm.AddressSpace
	fds     []*fs.FileDescriptor // index 0/1 are stdin/stdout by convention
	parent  *Process
	child   []*Process
	exited  []ExitedChild
	waiters []func()
}

// kernelOnce guards lazy construction of the singleton kernel process
// every kernel thread belongs to, matching rust KERNEL_PROCESS's
// lazy_static.
var (
	kernelOnce sync.Once
	kernel     *Process
)

// Kernel returns the process every kernel thread belongs to: pid 0, cwd
// "/", stdin/stdout pre-opened on the console. Its address space is
// installed separately via SetAddressSpace once the kernel page table
// exists (bring-up ordering: the process object exists before the
// address space that needs it to resolve the "current thread's parent"
// during its own construction). Grounded on rust KERNEL_PROCESS.
func Kernel() *Process {
	kernelOnce.Do(func() {
		kernel = &Process{Pid: 0, cwd: "/", fds: []*fs.FileDescriptor{fs.Stdin(), fs.Stdout()}}
	})
	return kernel
}

// SetAddressSpace installs p's address space. Split out from
// construction so the kernel process can be created before the kernel
// page table exists, mirroring the bring-up ordering of rust's
// lazy_static KERNEL_PROCESS.
func (p *Process) SetAddressSpace(as *vm.AddressSpace) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.as = as
}

// AddressSpace returns p's address space.
func (p *Process) AddressSpace() *vm.AddressSpace {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.as
}

// FromELF builds a new process around an address space loaded from an
// ELF image, with parent set to the caller-supplied parent (the forking
// thread's process in rust; the caller here, since Go has no implicit
// "current thread"). Grounded on rust Process::from_elf.
func FromELF(pid Pid, alloc *vm.AddressSpace, entry addr.VA, parent *Process) *Process {
	p := &Process{
		Pid:    pid,
		cwd:    "/",
		as:     alloc,
		fds:    []*fs.FileDescriptor{fs.Stdin(), fs.Stdout()},
		parent: parent,
	}
	if parent != nil {
		parent.mu.Lock()
		parent.child = append(parent.child, p)
		parent.mu.Unlock()
	}
	return p
}

// Fork clones p into a new process with pid newPid: a CoW-cloned address
// space, a shared-reference copy of the fd table, and the same cwd.
// Grounded on rust Process::fork.
func (p *Process) Fork(newPid Pid, alloc *frame.Allocator) (*Process, errno.Err_t) {
	p.mu.Lock()
	defer p.mu.Unlock()

	childAS, err := p.as.Fork(alloc)
	if err != 0 {
		return nil, err
	}
	child := &Process{
		Pid:    newPid,
		cwd:    p.cwd,
		as:     childAS,
		parent: p,
		fds:    make([]*fs.FileDescriptor, len(p.fds)),
	}
	for i, fd := range p.fds {
		if fd != nil {
			child.fds[i] = fd.Dup()
		}
	}
	p.child = append(p.child, child)
	return child, 0
}

// Exec replaces p's address space with as, discarding the one it
// replaces, and closes every fd opened OCLOEXEC — the process-level half
// of spec.md §4.5's Exec. The thread-level half (trap frame, user stack)
// is thread.Thread.Exec, which loads the new ELF image and calls this
// first. Grounded on rust process.rs's exec path, which folds the same
// two concerns into one method; split here because trap frame and user
// stack are thread, not Process, state in this package layout.
func (p *Process) Exec(as *vm.AddressSpace) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.as = as
	for i, fd := range p.fds {
		if fd != nil && fd.Flags&fs.OCLOEXEC != 0 {
			fd.Close()
			p.fds[i] = nil
		}
	}
}

// RegisterWaiter adds a callback invoked once, when the next child of p
// exits (Exit then clears p's waiter list), for a wait()-style syscall
// implementation to wake a thread blocked waiting on p's children. Grounded on spec.md §3's wake-callback
// requirement for the exited-children list.
func (p *Process) RegisterWaiter(cb func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.waiters = append(p.waiters, cb)
}

// Exit records p as exited with the given code in its parent's
// exited-children list and invokes every waiter the parent registered
// since its last wake, spec.md §4.5/§3. A no-op for the kernel process,
// which has no parent. Grounded on rust Process::exit.
func (p *Process) Exit(code int) {
	p.mu.Lock()
	parent := p.parent
	p.mu.Unlock()
	if parent == nil {
		return
	}

	parent.mu.Lock()
	parent.exited = append(parent.exited, ExitedChild{Pid: p.Pid, Code: code})
	waiters := parent.waiters
	parent.waiters = nil
	parent.mu.Unlock()

	for _, w := range waiters {
		w()
	}
}

// ExitedChildren returns and clears p's list of exited children (a
// wait()-style syscall body pops from this after being woken).
func (p *Process) ExitedChildren() []ExitedChild {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := p.exited
	p.exited = nil
	return out
}

// Cwd returns the process's working directory.
func (p *Process) Cwd() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cwd
}

// SetCwd changes the process's working directory.
func (p *Process) SetCwd(path string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cwd = path
}

// Children returns a snapshot of p's live child processes.
func (p *Process) Children() []*Process {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*Process, len(p.child))
	copy(out, p.child)
	return out
}

// Parent returns p's parent process, or nil for the kernel process.
func (p *Process) Parent() *Process {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.parent
}

// FD returns the open file descriptor at index i, or nil/EBADF if none
// is open there.
func (p *Process) FD(i int) (*fs.FileDescriptor, errno.Err_t) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if i < 0 || i >= len(p.fds) || p.fds[i] == nil {
		return nil, errno.EBADF
	}
	return p.fds[i], 0
}

// FDAlloc installs fd at the lowest-numbered free slot at or above index
// 2 (0/1 are reserved for stdin/stdout), growing the table up to MaxFD.
// Returns EBADF (rust returns -1; this package's convention is a
// negative Err_t everywhere, spec.md §7) if the table is full. Grounded
// on rust ProcessInner::fd_alloc.
func (p *Process) FDAlloc(fd *fs.FileDescriptor) (int, errno.Err_t) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := 2; i < len(p.fds); i++ {
		if p.fds[i] == nil {
			p.fds[i] = fd
			return i, 0
		}
	}
	if len(p.fds) >= MaxFD {
		return 0, errno.EBADF
	}
	p.fds = append(p.fds, fd)
	return len(p.fds) - 1, 0
}

// FDClose closes and clears the descriptor at index i.
func (p *Process) FDClose(i int) errno.Err_t {
	p.mu.Lock()
	defer p.mu.Unlock()
	if i < 0 || i >= len(p.fds) || p.fds[i] == nil {
		return errno.EBADF
	}
	p.fds[i].Close()
	p.fds[i] = nil
	return 0
}

// AllocUserStack reserves and maps a fresh user stack area of
// config.UserStackSize bytes, returning its top address. Grounded on
// rust Process::alloc_user_stack.
func (p *Process) AllocUserStack() addr.VA {
	p.mu.Lock()
	defer p.mu.Unlock()
	top := p.as.AllocUserArea(config.UserStackSize)
	p.as.InsertFramedArea(top-addr.VA(config.UserStackSize), top, pagetable.Readable|pagetable.Writable|pagetable.User, nil)
	return top
}

// DeallocUserStack removes the user stack area ending at top, for a
// thread that is certain never to return to user mode. Grounded on rust
// Process::dealloc_user_stack, whose unsafe-ness (rust requires the
// caller to guarantee no further user-mode entry) is expressed here only
// in the doc comment since proc has no unsafe keyword to mirror it with.
func (p *Process) DeallocUserStack(top addr.VA) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.as.RemoveArea(top - 1)
}

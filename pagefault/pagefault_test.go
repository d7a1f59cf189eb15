package pagefault

import (
	"strings"
	"testing"

	"sv39os/addr"
	"sv39os/config"
	"sv39os/diag"
	"sv39os/frame"
	"sv39os/pagetable"
	"sv39os/proc"
	"sv39os/thread"
	"sv39os/vm"
)

func newTestAllocator(npages uint) *frame.Allocator {
	a := &frame.Allocator{}
	a.Init(0x8020_0000, 0x8020_0000+npages*4096)
	return a
}

func TestHandleResolvesCOWFault(t *testing.T) {
	alloc := newTestAllocator(64)
	pagetable.InitKernel(alloc)
	parent, _ := vm.NewKernel(alloc)
	parent.InsertFramedArea(0x5000, 0x5000+config.PageSize, pagetable.Readable|pagetable.Writable|pagetable.User, nil)
	proc.Kernel().SetAddressSpace(parent)

	child, err := parent.Fork(alloc)
	if err != 0 {
		t.Fatalf("Fork: %v", err)
	}
	p := proc.FromELF(1, child, 0x5000, nil)
	th, err := thread.NewUser(p, 0x5000, 0)
	if err != 0 {
		t.Fatalf("NewUser: %v", err)
	}
	defer th.Drop()

	if !Handle(th, addr.VA(0x5000)) {
		t.Fatalf("Handle should resolve a COW fault successfully")
	}
	if th.Status() == thread.Zombie {
		t.Fatalf("a resolved fault should not kill the thread")
	}
}

func TestHandleKillsThreadOnUnresolvableFault(t *testing.T) {
	alloc := newTestAllocator(64)
	pagetable.InitKernel(alloc)
	as, _ := vm.NewKernel(alloc)
	as.InsertFramedArea(0x6000, 0x6000+config.PageSize, pagetable.Readable|pagetable.Writable|pagetable.User, nil)
	proc.Kernel().SetAddressSpace(as)

	p := proc.FromELF(2, as, 0x6000, nil)
	th, err := thread.NewUser(p, 0x6000, 0)
	if err != 0 {
		t.Fatalf("NewUser: %v", err)
	}
	defer th.Drop()

	if Handle(th, addr.VA(0x6000)) {
		t.Fatalf("Handle should fail on a non-COW page's fault")
	}
	if th.Status() != thread.Zombie {
		t.Fatalf("an unresolvable fault should mark the thread Zombie: got %v", th.Status())
	}
}

func TestHandleLogsDecodedFaultOnKill(t *testing.T) {
	orig := diag.Write
	defer func() { diag.Write = orig }()
	var logged string
	diag.Write = func(s string) { logged = s }

	alloc := newTestAllocator(64)
	pagetable.InitKernel(alloc)
	as, _ := vm.NewKernel(alloc)
	as.InsertFramedArea(0x7000, 0x7000+config.PageSize, pagetable.Readable|pagetable.Writable|pagetable.User, nil)
	proc.Kernel().SetAddressSpace(as)

	p := proc.FromELF(3, as, 0x7000, nil)
	th, err := thread.NewUser(p, 0x7000, 0)
	if err != 0 {
		t.Fatalf("NewUser: %v", err)
	}
	defer th.Drop()

	if Handle(th, addr.VA(0x7000)) {
		t.Fatalf("Handle should fail on a non-COW page's fault")
	}
	if logged == "" {
		t.Fatalf("Handle should log the decoded fault on the kill path")
	}
	if !strings.Contains(logged, "sepc=") {
		t.Fatalf("logged line should include the decoded fault: got %q", logged)
	}
}

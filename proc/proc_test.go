package proc

import (
	"testing"

	"sv39os/addr"
	"sv39os/config"
	"sv39os/frame"
	"sv39os/fs"
	"sv39os/pagetable"
	"sv39os/vm"
)

func newTestAllocator(npages uint) *frame.Allocator {
	a := &frame.Allocator{}
	a.Init(0x8020_0000, 0x8020_0000+npages*4096)
	return a
}

func newTestAddressSpace(t *testing.T, alloc *frame.Allocator) *vm.AddressSpace {
	t.Helper()
	pagetable.InitKernel(alloc)
	as, err := vm.NewKernel(alloc)
	if err != 0 {
		t.Fatalf("vm.NewKernel: %v", err)
	}
	return as
}

func TestKernelProcessIsSingleton(t *testing.T) {
	k1 := Kernel()
	k2 := Kernel()
	if k1 != k2 {
		t.Fatalf("Kernel() should return the same process every call")
	}
	if k1.Pid != 0 {
		t.Fatalf("kernel process pid: got %d, want 0", k1.Pid)
	}
	if k1.Cwd() != "/" {
		t.Fatalf("kernel process cwd: got %q, want /", k1.Cwd())
	}
}

func TestFromELFLinksParentChild(t *testing.T) {
	alloc := newTestAllocator(32)
	as := newTestAddressSpace(t, alloc)

	parent := FromELF(1, as, 0x1000, nil)
	child := FromELF(2, as, 0x1000, parent)

	kids := parent.Children()
	if len(kids) != 1 || kids[0] != child {
		t.Fatalf("parent should list child after FromELF: got %v", kids)
	}
	if child.Parent() != parent {
		t.Fatalf("child.Parent() should be parent")
	}
}

func TestFDAllocAndClose(t *testing.T) {
	alloc := newTestAllocator(32)
	as := newTestAddressSpace(t, alloc)
	p := FromELF(3, as, 0x1000, nil)

	i1, err := p.FDAlloc(fs.Stdin())
	if err != 0 {
		t.Fatalf("FDAlloc: %v", err)
	}
	if i1 != 2 {
		t.Fatalf("first FDAlloc should land at index 2 (0/1 reserved): got %d", i1)
	}

	i2, err := p.FDAlloc(fs.Stdout())
	if err != 0 || i2 != 3 {
		t.Fatalf("second FDAlloc: got %d err %v, want 3", i2, err)
	}

	if err := p.FDClose(i1); err != 0 {
		t.Fatalf("FDClose: %v", err)
	}
	if _, err := p.FD(i1); err == 0 {
		t.Fatalf("FD after FDClose should fail")
	}

	i3, err := p.FDAlloc(fs.Stdin())
	if err != 0 || i3 != i1 {
		t.Fatalf("FDAlloc should reuse the freed lowest slot: got %d, want %d", i3, i1)
	}
}

func TestForkClonesAddressSpaceAndFDTable(t *testing.T) {
	alloc := newTestAllocator(64)
	as := newTestAddressSpace(t, alloc)
	as.InsertFramedArea(0x1000, 0x1000+config.PageSize, pagetable.Readable|pagetable.Writable|pagetable.User, nil)

	parent := FromELF(4, as, 0x1000, nil)
	parent.FDAlloc(nil)

	child, err := parent.Fork(5, alloc)
	if err != 0 {
		t.Fatalf("Fork: %v", err)
	}
	if child.Pid != 5 {
		t.Fatalf("child pid: got %d, want 5", child.Pid)
	}
	if child.Cwd() != parent.Cwd() {
		t.Fatalf("child should inherit parent's cwd")
	}
	if child.AddressSpace() == parent.AddressSpace() {
		t.Fatalf("fork should give the child its own AddressSpace value")
	}
	pfd, _ := parent.FD(1)
	if fd, err := child.FD(1); err != 0 || fd.Vnode != pfd.Vnode {
		t.Fatalf("fork should copy the parent's fd table: child fd 1 got %v err %v", fd, err)
	}
	if len(parent.Children()) != 1 {
		t.Fatalf("parent should record the forked child")
	}
}

func TestExecClosesCloexecFds(t *testing.T) {
	alloc := newTestAllocator(32)
	as := newTestAddressSpace(t, alloc)
	p := FromELF(7, as, 0x1000, nil)

	cloexecFD := fs.Stdin()
	cloexecFD.Flags |= fs.OCLOEXEC
	idx, err := p.FDAlloc(cloexecFD)
	if err != 0 {
		t.Fatalf("FDAlloc: %v", err)
	}
	keepFD := fs.Stdout()
	keepIdx, err := p.FDAlloc(keepFD)
	if err != 0 {
		t.Fatalf("FDAlloc: %v", err)
	}

	newAS := newTestAddressSpace(t, alloc)
	p.Exec(newAS)

	if p.AddressSpace() != newAS {
		t.Fatalf("Exec should install the new address space")
	}
	if _, err := p.FD(idx); err == 0 {
		t.Fatalf("Exec should close a close-on-exec fd")
	}
	if _, err := p.FD(keepIdx); err != 0 {
		t.Fatalf("Exec should retain a non-cloexec fd")
	}
}

func TestExitRecordsExitedChildAndWakesParent(t *testing.T) {
	alloc := newTestAllocator(32)
	as := newTestAddressSpace(t, alloc)

	parent := FromELF(8, as, 0x1000, nil)
	child := FromELF(9, as, 0x1000, parent)

	var woke bool
	parent.RegisterWaiter(func() { woke = true })

	child.Exit(42)

	if !woke {
		t.Fatalf("Exit should invoke the parent's registered waiters")
	}
	exited := parent.ExitedChildren()
	if len(exited) != 1 || exited[0].Pid != child.Pid || exited[0].Code != 42 {
		t.Fatalf("ExitedChildren: got %v, want one entry for pid %d code 42", exited, child.Pid)
	}
	if more := parent.ExitedChildren(); len(more) != 0 {
		t.Fatalf("ExitedChildren should clear the list after it is read")
	}
}

func TestAllocUserStackReturnsUsablePage(t *testing.T) {
	alloc := newTestAllocator(64)
	as := newTestAddressSpace(t, alloc)
	p := FromELF(6, as, 0x1000, nil)

	top := p.AllocUserStack()
	if top == 0 {
		t.Fatalf("AllocUserStack returned 0")
	}
	if _, ok := as.PageTable().FindPTE(addr.VA(top - 1).PageDown()); !ok {
		t.Fatalf("AllocUserStack should leave the stack's last page mapped")
	}
}

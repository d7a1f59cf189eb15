package frame

import "testing"

func newTestAllocator(npages uint) *Allocator {
	a := &Allocator{}
	a.Init(0x8020_0000, 0x8020_0000+npages*4096)
	return a
}

func TestAllocIsZeroed(t *testing.T) {
	a := newTestAllocator(4)
	t1, err := a.AllocNoZero()
	if err != 0 {
		t.Fatalf("AllocNoZero: %v", err)
	}
	copy(t1.Bytes(), []byte{1, 2, 3, 4})
	t1.Drop()

	t2, err := a.Alloc()
	if err != 0 {
		t.Fatalf("Alloc: %v", err)
	}
	for i, b := range t2.Bytes()[:4] {
		if b != 0 {
			t.Fatalf("Alloc did not zero byte %d: got %d", i, b)
		}
	}
}

func TestRefcountAndFree(t *testing.T) {
	a := newTestAllocator(2)
	if got := a.Free(); got != 2 {
		t.Fatalf("Free before any alloc: got %d, want 2", got)
	}

	t1, err := a.Alloc()
	if err != 0 {
		t.Fatalf("Alloc: %v", err)
	}
	if got := a.Free(); got != 1 {
		t.Fatalf("Free after one alloc: got %d, want 1", got)
	}

	clone := t1.Clone()
	if got := t1.Refcnt(); got != 2 {
		t.Fatalf("Refcnt after Clone: got %d, want 2", got)
	}

	t1.Drop()
	if got := clone.Refcnt(); got != 1 {
		t.Fatalf("Refcnt after one Drop of two refs: got %d, want 1", got)
	}
	if got := a.Free(); got != 1 {
		t.Fatalf("Free must stay 1 while a reference survives: got %d", got)
	}

	clone.Drop()
	if got := a.Free(); got != 2 {
		t.Fatalf("Free after last Drop: got %d, want 2", got)
	}
}

func TestAllocExhaustion(t *testing.T) {
	a := newTestAllocator(1)
	if _, err := a.Alloc(); err != 0 {
		t.Fatalf("first Alloc: %v", err)
	}
	if _, err := a.Alloc(); err == 0 {
		t.Fatalf("second Alloc on a one-frame pool should fail with ENOMEM")
	}
}

func TestDropUnderflowPanics(t *testing.T) {
	a := newTestAllocator(1)
	tr, _ := a.Alloc()
	tr.Drop()
	defer func() {
		if recover() == nil {
			t.Fatalf("double Drop should panic")
		}
	}()
	tr.a = a // Drop zeroed t.a; restore it to exercise the underflow path directly
	tr.Drop()
}

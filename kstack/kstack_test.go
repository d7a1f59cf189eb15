package kstack

import (
	"testing"

	"sv39os/config"
)

func TestRangeIsDisjointAndGuarded(t *testing.T) {
	s0, e0 := Range(0)
	_, e1 := Range(1)

	if e0-s0 != config.KernelStackAlignSize {
		t.Fatalf("slot 0 size: got %d, want %d", e0-s0, config.KernelStackAlignSize)
	}
	gap := s0 - e1
	if gap != config.GuardPageSize {
		t.Fatalf("guard gap between slot 1 and slot 0: got %d, want %d", gap, config.GuardPageSize)
	}
}

func TestOffsetsAreOrdered(t *testing.T) {
	if !(ThreadPtrOffset < TrapFrameOffset && TrapFrameOffset < TaskContextOffset) {
		t.Fatalf("offsets must grow: thread=%d trapframe=%d taskcx=%d", ThreadPtrOffset, TrapFrameOffset, TaskContextOffset)
	}
}

func TestAddrHelpersBelowTop(t *testing.T) {
	_, top := Range(0)
	if ThreadPtrAddr(top) >= top {
		t.Fatalf("ThreadPtrAddr must be below stack top")
	}
	if TrapFrameAddr(top) >= ThreadPtrAddr(top) {
		t.Fatalf("TrapFrameAddr must be below the thread pointer slot")
	}
	if TaskContextAddr(top) >= TrapFrameAddr(top) {
		t.Fatalf("TaskContextAddr must be below the trap frame")
	}
}

func TestCurrentKernelStackTopMasksToSlot(t *testing.T) {
	_, top := Range(0)
	ReadSP = func() uintptr { return uintptr(top) - 128 }
	defer func() { ReadSP = nil }()

	if got := CurrentKernelStackTop(); got != top {
		t.Fatalf("CurrentKernelStackTop: got %#x, want %#x", got, top)
	}
}

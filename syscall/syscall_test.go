package syscall

import (
	"testing"

	"sv39os/trapframe"
)

func TestDispatchRunsHandlerAndAdvancesPC(t *testing.T) {
	Table = map[uint64]Handler{
		42: func(args [6]uint64) uint64 { return args[0] + args[1] },
	}
	defer func() { Table = map[uint64]Handler{} }()

	var tf trapframe.TrapFrame
	tf.X[trapframe.RegA0] = 3
	tf.X[trapframe.RegA0+1] = 4
	tf.X[trapframe.RegA0+7] = 42
	tf.Sepc = 0x1000

	if !Dispatch(&tf) {
		t.Fatalf("Dispatch should find the registered handler")
	}
	if tf.A0() != 7 {
		t.Fatalf("result written to a0: got %d, want 7", tf.A0())
	}
	if tf.Sepc != 0x1004 {
		t.Fatalf("Dispatch should advance sepc past ECALL: got %#x", tf.Sepc)
	}
}

func TestDispatchUnknownSyscallReturnsFalse(t *testing.T) {
	Table = map[uint64]Handler{}
	var tf trapframe.TrapFrame
	tf.X[trapframe.RegA0+7] = 999
	if Dispatch(&tf) {
		t.Fatalf("Dispatch should return false for an unregistered syscall number")
	}
}

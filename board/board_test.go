package board

import (
	"testing"

	"sv39os/addr"
	"sv39os/kstack"
	"sv39os/pagetable"
	"sv39os/trapframe"
)

func TestInstallWiresEveryHook(t *testing.T) {
	var satpCalled, flushPageCalled, flushAllCalled, tickCalled, switchCalled, entryCalled, exitCalled bool
	var hartIDCalled, readSPCalled bool

	h := Hooks{
		WriteSATP:       func(root addr.PPN) { satpCalled = true },
		FlushTLBPage:    func(vpn addr.VPN) { flushPageCalled = true },
		FlushTLBAll:     func() { flushAllCalled = true },
		ProgramNextTick: func() { tickCalled = true },
		HartID:          func() int { hartIDCalled = true; return 7 },
		ReadSP:          func() uintptr { readSPCalled = true; return 0 },
		Switch:          func(current, next *trapframe.TaskContext) { switchCalled = true },
		EntryTrampoline: func() { entryCalled = true },
		ExitTrampoline:  func() { exitCalled = true },
	}
	Install(h)
	defer Install(Hooks{})

	pagetable.WriteSATP(0)
	kstack.ReadSP()
	trapframe.Switch(nil, nil)
	trapframe.EntryTrampoline()
	trapframe.ExitTrampoline()
	FlushTLBPage(0)
	FlushTLBAll()
	ProgramNextTick()
	if got := HartID(); got != 7 {
		t.Fatalf("HartID: got %d, want 7", got)
	}

	if !(satpCalled && flushPageCalled && flushAllCalled && tickCalled && switchCalled && entryCalled && exitCalled && hartIDCalled && readSPCalled) {
		t.Fatalf("Install should wire every hook through to its package variable")
	}
}

func TestInstallWithZeroHooksLeavesNilHooks(t *testing.T) {
	Install(Hooks{})
	if pagetable.WriteSATP != nil || trapframe.Switch != nil || HartID != nil {
		t.Fatalf("Install(Hooks{}) should leave every hook nil")
	}
}

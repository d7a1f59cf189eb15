// Package pagefault dispatches a trapped page fault to the faulting
// thread's address space, and turns an unresolvable fault into killing
// the thread rather than a kernel panic.
//
// Grounded on teacher biscuit/src/vm/as.go's Sys_pgfault (the trap-level
// wrapper around Vm_t.Pgfault) and rust trap.rs's
// Load/Store/InstructionPageFault arms (`handle_pagefault(stval)`).
// DESIGN.md Open Question (b): since signals are a Non-goal (spec.md
// §1), a non-CoW fault is thread-fatal rather than kernel-fatal. The
// kill path logs via diag.Log/diag.DecodeFault (package diag) so an
// operator sees the disassembled faulting instruction, not just a bare
// thread id.
package pagefault

import (
	"sv39os/addr"
	"sv39os/diag"
	"sv39os/thread"
)

// instructionBytes is the length of the fetch diag.DecodeFault needs: an
// Sv39 RISC-V instruction is 2 or 4 bytes; 4 covers both.
const instructionBytes = 4

// Handle resolves a page fault at faultAddr for t. On success the
// faulting instruction may be retried. On failure, the fault was not a
// resolvable CoW fault (spec.md §4.3.3): the kill is logged with the
// decoded faulting instruction, t is marked Zombie, and false is
// returned so the trap dispatcher skips resuming it.
func Handle(t *thread.Thread, faultAddr addr.VA) bool {
	as := t.Process.AddressSpace()
	if err := as.PageFault(faultAddr); err != 0 {
		sepc := t.TrapFrame.Sepc
		code, _ := as.ReadBytes(addr.VA(sepc), instructionBytes)
		diag.Log(diag.Warn, "tid %d: unresolvable page fault at %#x, killing: %s",
			t.Tid, faultAddr, diag.DecodeFault(sepc, code))
		t.SetStatus(thread.Zombie)
		return false
	}
	return true
}

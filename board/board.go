// Package board collects the hardware bring-up hooks every other
// package declares as an assignable function variable: satp/TLB
// management, timer programming, and hart identification. Board
// bring-up itself — the code that would assign these on real hardware —
// is explicitly out of scope per spec.md §1; this package exists only
// to give the contract a single documented home instead of scattering
// "nil in tests" hooks across unrelated packages without a index.
//
// Grounded on the generalization of teacher vm.Vm_t.Cpumap
// (biscuit/src/vm/as.go), which registers a per-CPU callback the same
// way: a function variable a real platform assigns during bring-up and
// tests simply leave nil.
package board

import (
	"sv39os/addr"
	"sv39os/kstack"
	"sv39os/pagetable"
	"sv39os/trapframe"
)

// Install wires every board hook this kernel declares to the given
// implementation. A real board bring-up routine calls this once before
// starting the scheduler; tests leave every hook nil (its zero value)
// and exercise pure logic only.
type Hooks struct {
	WriteSATP       func(root addr.PPN)
	FlushTLBPage    func(vpn addr.VPN)
	FlushTLBAll     func()
	ProgramNextTick func()
	HartID          func() int
	ReadSP          func() uintptr
	Switch          func(current, next *trapframe.TaskContext)
	EntryTrampoline func()
	ExitTrampoline  func()
}

// Install assigns h's hooks into every package that declared one.
func Install(h Hooks) {
	pagetable.WriteSATP = h.WriteSATP
	kstack.ReadSP = h.ReadSP
	trapframe.Switch = h.Switch
	trapframe.EntryTrampoline = h.EntryTrampoline
	trapframe.ExitTrampoline = h.ExitTrampoline
	FlushTLBPage = h.FlushTLBPage
	FlushTLBAll = h.FlushTLBAll
	ProgramNextTick = h.ProgramNextTick
	HartID = h.HartID
}

// FlushTLBPage invalidates one virtual page's TLB entries across every
// hart (a TLB shootdown). nil until Install runs.
var FlushTLBPage func(vpn addr.VPN)

// FlushTLBAll invalidates every TLB entry on the local hart.
var FlushTLBAll func()

// ProgramNextTick arms the timer for the next preemption tick.
var ProgramNextTick func()

// HartID returns the calling hart's id.
var HartID func() int

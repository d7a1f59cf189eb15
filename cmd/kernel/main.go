// Command kernel is the boot entry point: bring up the frame allocator
// and kernel page table, build the kernel process's address space, and
// run the scheduler loop directly on hart 0.
//
// Grounded on rust teacher boards/k210/main.rs's rust_main (the phased
// bring-up sequence: clear_bss/mm::init, TrapImpl::init, activate the
// kernel page table, spawn the scheduler thread via Thread::init_sched_thread,
// then __switch into it) — board-specific steps (PLL/UART setup, SD card
// bring-up) are replaced by a single board.Install(hooks) call since
// their actual bodies are out of scope per spec.md §1.
package main

import (
	"sv39os/board"
	"sv39os/diag"
	"sv39os/frame"
	"sv39os/pagetable"
	"sv39os/proc"
	"sv39os/sched"
	"sv39os/vm"
)

// Hooks is assigned by a board-specific build (not included in this
// module; see package board) before calling Boot. Left as the zero value
// here so this command still links and its phased bring-up logic can be
// exercised under test with every hardware-touching hook a no-op.
var Hooks board.Hooks

// Boot performs the bring-up sequence and starts the scheduler loop on
// hart 0. It never returns on real hardware; Run's loop only exits via
// board hooks this module does not implement.
func Boot() {
	board.Install(Hooks)

	frame.Init()
	diag.Log(diag.Info, "frame allocator: %d frames free", frame.Global.Free())

	pagetable.InitKernel(frame.Global)
	diag.Log(diag.Info, "kernel page table initialized")

	kernelAS, err := vm.NewKernel(frame.Global)
	if err != 0 {
		diag.Panic("Boot", "failed to build kernel address space: "+err.Error())
	}
	proc.Kernel().SetAddressSpace(kernelAS)

	prof := sched.Profile()
	diag.Log(diag.Info, "diagnostics profile: %d thread samples", len(prof.Sample))

	diag.Log(diag.Info, "entering scheduler loop")
	// Hart 0 becomes the distinguished scheduler thread directly — rust's
	// rust_main hands off to schedule() via one final __switch; since
	// nothing here actually executes on real hardware (board.Install's
	// hooks are the only place that would), an ordinary call serves the
	// same "control never returns here" role.
	sched.Run(0)
}

func main() {
	Boot()
}

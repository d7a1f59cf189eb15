package main

import (
	"testing"

	"sv39os/board"
	"sv39os/proc"
	"sv39os/sched"
)

type stopIteration struct{}

// TestBootReachesSchedulerLoop exercises the full bring-up sequence up to
// the point where Run starts waiting for a thread to dispatch: the empty
// ready queue drives it straight into Idle, which this test uses to break
// out of Run's otherwise-infinite loop.
func TestBootReachesSchedulerLoop(t *testing.T) {
	Hooks = board.Hooks{}
	sched.Global = &sched.Scheduler{}
	sched.Processors = []*sched.Processor{{}}

	defer func() {
		sched.Idle = nil
		if r := recover(); r != nil {
			if _, ok := r.(stopIteration); !ok {
				panic(r)
			}
		}
		if proc.Kernel().AddressSpace() == nil {
			t.Fatalf("Boot should install the kernel process's address space")
		}
	}()
	sched.Idle = func() { panic(stopIteration{}) }

	Boot()
}

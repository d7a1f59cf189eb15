// Package sched implements the ready queue and the scheduler thread's
// run loop: repeatedly take the next Ready thread and switch to it. It
// also exposes Profile, a pprof snapshot of every live thread's
// accounted CPU time (package kstat), for boot-time or on-demand
// diagnostics.
//
// Grounded on rust teacher process/processor.rs (Processor, PROCESSORS,
// SCHEDULER) and boards/k210/main.rs's schedule() loop (SCHEDULER.get_next
// / next_thread.activate / __switch(get_sched_cx(), next_thread.task_cx)).
// Grounded on teacher biscuit's general spinlock-guarded-list idiom for
// the ready queue itself (no comparable rust source ships an explicit
// SchedulerImpl body in the retrieval pack).
package sched

import (
	"container/list"
	"strconv"
	"sync"

	"github.com/google/pprof/profile"

	"sv39os/kstat"
	"sv39os/thread"
	"sv39os/trapframe"
)

// Scheduler is a FIFO ready queue shared by every hart. Grounded on rust
// SCHEDULER; spec.md §5 calls the ready queue "FIFO or priority
// depending on configuration" — only FIFO is implemented; there is no
// priority ordering.
type Scheduler struct {
	mu    sync.Mutex
	ready list.List
}

// Global is the process-wide ready queue singleton.
var Global = &Scheduler{}

// Add enqueues a Ready thread at the back of the queue.
func (s *Scheduler) Add(t *thread.Thread) {
	t.SetStatus(thread.Ready)
	s.mu.Lock()
	s.ready.PushBack(t)
	s.mu.Unlock()
}

// Next dequeues and returns the next Ready thread, or nil if the queue is
// empty. Grounded on rust SCHEDULER.get_next().
func (s *Scheduler) Next() *thread.Thread {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.ready.Front()
	if e == nil {
		return nil
	}
	s.ready.Remove(e)
	return e.Value.(*thread.Thread)
}

// Processor holds the per-hart scheduler-thread task context and the
// thread currently dispatched on this hart. Grounded on rust Processor /
// PROCESSORS[hart].
type Processor struct {
	SchedContext trapframe.TaskContext
	Current      *thread.Thread
}

// Processors is indexed by hart id; sized for the single-hart case per
// spec.md §1's SMP non-goal, grown by callers that configure more harts.
var Processors = []*Processor{{}}

// Idle is the board hook invoked when the ready queue is empty: halt the
// hart (WFI) until the next interrupt. nil in tests, generalizing the
// pagetable.WriteSATP hook pattern. Grounded on spec.md §5: "When the
// queue is empty the scheduler halts the hart (WFI) until the next
// interrupt."
var Idle func()

// Run is the scheduler thread's body for hart id: repeatedly take the
// next Ready thread, mark it Running, switch into it, and loop on
// return. Grounded on rust schedule()'s loop.
func Run(hart int) {
	p := Processors[hart]
	for {
		next := Global.Next()
		if next == nil {
			if Idle != nil {
				Idle()
			}
			continue
		}
		next.SetStatus(thread.Running)
		p.Current = next
		next.Prepare()
		if trapframe.Switch != nil {
			trapframe.Switch(&p.SchedContext, &next.TaskContext)
		}
		p.Current = nil
	}
}

// Profile snapshots every live thread's CPU-time accounting into a
// pprof profile, for a diagnostics endpoint or boot-time dump to inspect
// with ordinary pprof tooling (package kstat). Grounded on spec.md §9's
// call for scheduler-level diagnostics surfaced through kstat.
func Profile() *profile.Profile {
	all := thread.All()
	samples := make([]kstat.ThreadSample, len(all))
	for i, t := range all {
		samples[i] = kstat.ThreadSample{
			Tid:   t.Tid,
			Name:  "thread-" + strconv.Itoa(t.Tid),
			Usage: t.Accnt.Fetch(),
		}
	}
	return kstat.BuildProfile(samples)
}

// Yield is called by a running thread (directly, or from the
// timer-preempt trap path) to give up the hart: mark itself Ready,
// requeue, and switch back to the scheduler's saved context for this
// hart. Grounded on spec.md §5's yield description.
func Yield(hart int, self *thread.Thread) {
	Global.Add(self)
	p := Processors[hart]
	if trapframe.Switch != nil {
		trapframe.Switch(&self.TaskContext, &p.SchedContext)
	}
}

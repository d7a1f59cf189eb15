// Package limits tracks system-wide resource limits with atomically
// updated counters.
//
// Adapted from teacher biscuit/src/limits/limits.go (Sysatomic_t's
// Given/Taken/Take/Give contract kept verbatim; Syslimit_t's field set
// narrowed to the resources this kernel's scope actually tracks: threads,
// vnodes, and physical frames, dropping the network/disk counters
// (Arpents, Routes, Tcpsegs, Blocks, ...) that belong to the external
// collaborators spec.md §1 puts out of scope).
package limits

import "sync/atomic"

// Atomic is a numeric limit counter that can be given back or taken from
// atomically, failing Taken rather than going negative.
type Atomic struct{ n int64 }

// Given increases the limit by n.
func (a *Atomic) Given(n int64) {
	if n < 0 {
		panic("limits: negative Given")
	}
	atomic.AddInt64(&a.n, n)
}

// Taken tries to decrement the limit by n, returning false (and leaving
// the counter unchanged) if doing so would take it negative.
func (a *Atomic) Taken(n int64) bool {
	if n < 0 {
		panic("limits: negative Taken")
	}
	if atomic.AddInt64(&a.n, -n) >= 0 {
		return true
	}
	atomic.AddInt64(&a.n, n)
	return false
}

// Take tries to decrement the limit by one.
func (a *Atomic) Take() bool { return a.Taken(1) }

// Give increments the limit by one.
func (a *Atomic) Give() { a.Given(1) }

// Value returns the current counter value.
func (a *Atomic) Value() int64 { return atomic.LoadInt64(&a.n) }

// SysLimit tracks the system-wide resource budgets this kernel enforces.
type SysLimit struct {
	// Threads is the remaining budget of tids that may be allocated.
	Threads Atomic
	// Vnodes is the remaining budget of distinct open files/devices.
	Vnodes Atomic
	// Frames is the remaining budget of physical frames available to
	// the allocator, mirrored here for limit-hit accounting distinct
	// from frame.Allocator.Free's raw free-list count.
	Frames Atomic
}

// NewSysLimit returns the default system-wide limits.
func NewSysLimit() *SysLimit {
	s := &SysLimit{}
	s.Threads.Given(1 << 16)
	s.Vnodes.Given(20000)
	s.Frames.Given(1 << 18)
	return s
}

// Syslimit is the process-wide configured limit set.
var Syslimit = NewSysLimit()

// Lhits counts limit-hit events, for diagnostics.
var Lhits int64

// Hit records a limit-hit event.
func Hit() { atomic.AddInt64(&Lhits, 1) }

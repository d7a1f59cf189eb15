// Package accnt accumulates per-thread CPU-time accounting: nanoseconds
// of user time and system time, with a snapshot/merge contract for
// rolling thread accounting up into its process.
//
// Adapted from teacher biscuit/src/accnt/accnt.go (Accnt_t, Utadd/
// Systadd/Now/Finish/Add — kept near-verbatim, since the accounting
// algorithm itself doesn't change) with one addition: FirstDispatch,
// supplementing the teacher's design with rust trap.rs's ret_to_restore
// cycle-stamp-on-first-entry idiom (a thread's very first dispatch marks
// the moment it actually started running, not when it was created).
package accnt

import (
	"sync"
	"sync/atomic"
	"time"
)

// Accnt_t accumulates one thread's CPU time. The embedded mutex lets
// Fetch/Add take a consistent snapshot across concurrent Utadd/Systadd.
type Accnt_t struct {
	Userns int64
	Sysns  int64
	mu     sync.Mutex

	dispatched bool
	firstNs    int64
}

// Utadd adds delta nanoseconds of user time.
func (a *Accnt_t) Utadd(delta int64) { atomic.AddInt64(&a.Userns, delta) }

// Systadd adds delta nanoseconds of system time.
func (a *Accnt_t) Systadd(delta int64) { atomic.AddInt64(&a.Sysns, delta) }

// Now returns the current time in nanoseconds.
func (a *Accnt_t) Now() int64 { return time.Now().UnixNano() }

// IoTime removes time spent waiting for I/O from system time.
func (a *Accnt_t) IoTime(since int64) { a.Systadd(since - a.Now()) }

// SleepTime removes time spent sleeping from system time.
func (a *Accnt_t) SleepTime(since int64) { a.Systadd(since - a.Now()) }

// Finish adds the time elapsed since inttime to system time.
func (a *Accnt_t) Finish(inttime int64) { a.Systadd(a.Now() - inttime) }

// FirstDispatch records the timestamp of this thread's first entry into
// Running state, idempotently. Grounded on rust trap.rs's
// ret_to_restore, which stamps inner.cycles once on a thread's first
// post-creation trap return.
func (a *Accnt_t) FirstDispatch() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.dispatched {
		a.dispatched = true
		a.firstNs = a.Now()
	}
}

// SinceFirstDispatch reports nanoseconds elapsed since FirstDispatch was
// first called, or 0 if it never was.
func (a *Accnt_t) SinceFirstDispatch() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.dispatched {
		return 0
	}
	return a.Now() - a.firstNs
}

// Add merges n's counters into a.
func (a *Accnt_t) Add(n *Accnt_t) {
	a.mu.Lock()
	a.Userns += atomic.LoadInt64(&n.Userns)
	a.Sysns += atomic.LoadInt64(&n.Sysns)
	a.mu.Unlock()
}

// Usage is a consistent snapshot of a's counters.
type Usage struct {
	Userns, Sysns int64
}

// Fetch returns a consistent snapshot of a's counters.
func (a *Accnt_t) Fetch() Usage {
	a.mu.Lock()
	defer a.mu.Unlock()
	return Usage{Userns: a.Userns, Sysns: a.Sysns}
}

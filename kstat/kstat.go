// Package kstat exports scheduler and accounting state as a
// pprof-compatible profile, so per-thread CPU time can be inspected with
// ordinary pprof tooling instead of a bespoke stat dumper.
//
// Grounded on teacher biscuit/src/stat/stat.go (Stat_t, the D_STAT/D_PROF
// device convention a userspace `/proc`-like reader opens to pull kernel
// statistics) and biscuit's own dependency on github.com/google/pprof
// (wired here into profile.Profile construction — see SPEC_FULL.md's
// Domain Stack section).
package kstat

import (
	"strconv"
	"time"

	"github.com/google/pprof/profile"

	"sv39os/accnt"
)

// ThreadSample is one thread's accounted CPU time, the unit kstat
// exports per pprof sample.
type ThreadSample struct {
	Tid     int
	Name    string
	Usage   accnt.Usage
}

// BuildProfile assembles a pprof profile.Profile with one sample per
// thread, two sample types (cpu-user-nanoseconds, cpu-sys-nanoseconds),
// and a single synthetic "thread" function/location per sample so each
// appears as its own named stack frame under pprof's top/list views.
func BuildProfile(samples []ThreadSample) *profile.Profile {
	p := &profile.Profile{
		SampleType: []*profile.ValueType{
			{Type: "cpu-user", Unit: "nanoseconds"},
			{Type: "cpu-sys", Unit: "nanoseconds"},
		},
		TimeNanos: time.Now().UnixNano(),
	}

	for i, s := range samples {
		id := uint64(i + 1)
		fn := &profile.Function{ID: id, Name: s.Name}
		loc := &profile.Location{ID: id, Line: []profile.Line{{Function: fn}}}
		p.Function = append(p.Function, fn)
		p.Location = append(p.Location, loc)
		p.Sample = append(p.Sample, &profile.Sample{
			Location: []*profile.Location{loc},
			Value:    []int64{s.Usage.Userns, s.Usage.Sysns},
			Label:    map[string][]string{"tid": {strconv.Itoa(s.Tid)}},
		})
	}
	return p
}

package kstat

import (
	"testing"

	"sv39os/accnt"
)

func TestBuildProfileOneSamplePerThread(t *testing.T) {
	samples := []ThreadSample{
		{Tid: 1, Name: "init", Usage: accnt.Usage{Userns: 100, Sysns: 10}},
		{Tid: 2, Name: "shell", Usage: accnt.Usage{Userns: 200, Sysns: 20}},
	}

	p := BuildProfile(samples)

	if len(p.SampleType) != 2 {
		t.Fatalf("SampleType count: got %d, want 2", len(p.SampleType))
	}
	if len(p.Sample) != 2 {
		t.Fatalf("Sample count: got %d, want 2", len(p.Sample))
	}
	if len(p.Function) != 2 || len(p.Location) != 2 {
		t.Fatalf("expected one Function/Location per thread: got %d/%d", len(p.Function), len(p.Location))
	}

	s0 := p.Sample[0]
	if s0.Value[0] != 100 || s0.Value[1] != 10 {
		t.Fatalf("sample 0 values: got %v, want [100 10]", s0.Value)
	}
	if got := s0.Label["tid"]; len(got) != 1 || got[0] != "1" {
		t.Fatalf("sample 0 tid label: got %v, want [1]", got)
	}

	s1 := p.Sample[1]
	if got := s1.Label["tid"]; len(got) != 1 || got[0] != "2" {
		t.Fatalf("sample 1 tid label: got %v, want [2]", got)
	}
}

func TestBuildProfileEmpty(t *testing.T) {
	p := BuildProfile(nil)
	if len(p.Sample) != 0 {
		t.Fatalf("BuildProfile(nil) should produce zero samples: got %d", len(p.Sample))
	}
	if len(p.SampleType) != 2 {
		t.Fatalf("SampleType should still be set with no samples")
	}
}

package loadprobe

import (
	"testing"

	"github.com/prometheus/procfs"
)

func TestCPUPercentFirstSampleHasNoBaseline(t *testing.T) {
	p := &Probe{}
	got := p.cpuPercent(procfs.CPUStat{User: 100, Idle: 900})
	if got != 0 {
		t.Errorf("first cpuPercent() = %v, want 0 (no baseline yet)", got)
	}
	if !p.haveBase {
		t.Error("haveBase should be true after first sample")
	}
}

func TestCPUPercentComputesDelta(t *testing.T) {
	p := &Probe{}
	p.cpuPercent(procfs.CPUStat{User: 0, Idle: 1000})

	got := p.cpuPercent(procfs.CPUStat{User: 500, Idle: 1500})
	want := 50.0
	if diff := got - want; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("cpuPercent() = %v, want %v", got, want)
	}
}

func TestCPUPercentZeroDeltaIsZero(t *testing.T) {
	p := &Probe{}
	stat := procfs.CPUStat{User: 100, Idle: 900}
	p.cpuPercent(stat)

	got := p.cpuPercent(stat)
	if got != 0 {
		t.Errorf("cpuPercent() with no elapsed ticks = %v, want 0", got)
	}
}

func TestSampleNeverErrors(t *testing.T) {
	p := New()
	// Sample must always return a Reading, never panic or block on a
	// missing/unreadable /proc.
	_ = p.Sample()
}

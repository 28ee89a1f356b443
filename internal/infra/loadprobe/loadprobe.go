// Package loadprobe reads host load averages and CPU utilization from
// /proc, the local-execution shortcut's load signal (§4.2, §4.6's
// "hop >= 2 OR load1 <= 2" condition). This is a peripheral concern per
// the spec's non-goals: only the 1-minute load average and an
// instantaneous CPU-busy fraction are collected, both fail-safe to a
// "not overloaded" reading rather than erroring the request path.
package loadprobe

import (
	"sync"

	"github.com/prometheus/procfs"

	"github.com/edgefaas/scheduler/internal/domain"
	"github.com/edgefaas/scheduler/internal/obs"
)

// Probe samples /proc/loadavg and /proc/stat. The zero value is not
// usable; build one with New. Probe implements domain.LoadSampler.
type Probe struct {
	fs procfs.FS

	mu        sync.Mutex
	prevIdle  float64
	prevTotal float64
	haveBase  bool
}

var _ domain.LoadSampler = (*Probe)(nil)

// New opens the default procfs mount (/proc). On systems without a
// /proc (e.g. non-Linux), fs is still returned but every Sample call
// fails over to the zero Reading — callers never block scheduling on a
// load-collection error.
func New() *Probe {
	fs, _ := procfs.NewDefaultFS()
	return &Probe{fs: fs}
}

// Sample returns the current load reading. On any collection error it
// returns the zero Reading (load1=0, cpu=0) rather than an error — the
// router must never fail a scheduling decision because the load probe
// is unavailable; an unreadable host simply looks idle.
func (p *Probe) Sample() domain.LoadReading {
	var r domain.LoadReading

	if avg, err := p.fs.LoadAvg(); err == nil {
		r.Load1 = avg.Load1
	}

	if stat, err := p.fs.Stat(); err == nil {
		r.CPUPercent = p.cpuPercent(stat.CPUTotal)
	}

	obs.LoadAverage1m.Set(r.Load1)
	obs.CPUPercent.Set(r.CPUPercent)
	return r
}

// cpuPercent derives an instantaneous busy fraction from the delta
// between this sample and the last one. The first call after New has
// no baseline and reports 0 — matching the Python collector's
// "insufficient history" behavior on startup.
func (p *Probe) cpuPercent(c procfs.CPUStat) float64 {
	idle := c.Idle + c.Iowait
	total := c.User + c.Nice + c.System + c.Idle + c.Iowait + c.IRQ + c.SoftIRQ + c.Steal

	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.haveBase {
		p.prevIdle, p.prevTotal = idle, total
		p.haveBase = true
		return 0
	}

	deltaTotal := total - p.prevTotal
	deltaIdle := idle - p.prevIdle
	p.prevIdle, p.prevTotal = idle, total

	if deltaTotal <= 0 {
		return 0
	}
	busy := deltaTotal - deltaIdle
	if busy < 0 {
		return 0
	}
	return (busy / deltaTotal) * 100
}

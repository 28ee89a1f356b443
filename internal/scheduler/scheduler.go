// Package scheduler implements the tail-ratio dynamic architecture
// selector (§4.5): it watches the P95/P50 tail ratio of each static
// architecture's recent durations and nudges a per-function probability
// triple toward whichever architecture is currently cheapest, gated by
// QPS and smoothed to avoid oscillation. This is tail_scheduler.py's
// TailRatioScheduler translated method for method, including its
// QPS-threshold cascade and sigmoid-based adaptive smoothing.
package scheduler

import (
	"math"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/edgefaas/scheduler/internal/domain"
)

// QPS thresholds gating the federated/centralized cascade (§4.5). These
// are not configurable in the original implementation — only the tail
// ratio thresholds are — so we keep them as constants rather than
// config fields.
const (
	qpsThresholdFed = 0.5
	qpsThresholdCen = 1.2
)

// archPerfCap bounds the architecture performance history ring (§4.5,
// "last 100 measurements").
const archPerfCap = 100

// Config holds the tail-ratio scheduler's tunables (§3). Decay, Window,
// and Alpha mirror the constructor parameters of the original
// implementation but are not consumed by the smoothing formula itself,
// which always derives its smoothing factor from the QPS delta — they
// are kept here only so callers configuring this scheduler have the
// same knobs to set, even though three of them are presently inert.
type Config struct {
	Decay          float64
	Window         int
	CSoftD2F       float64
	CHardD2F       float64
	CSoftF2C       float64
	CHardF2C       float64
	Alpha          float64
	MinSamples     int
	SampleInterval time.Duration
	Now            func() time.Time
}

// DefaultConfig returns the thresholds from §3's default configuration.
func DefaultConfig() Config {
	return Config{
		Decay:          0.9,
		Window:         10,
		CSoftD2F:       1.5,
		CHardD2F:       2.5,
		CSoftF2C:       1.7,
		CHardF2C:       2.7,
		Alpha:          0.1,
		MinSamples:     10,
		SampleInterval: 2 * time.Second,
		Now:            time.Now,
	}
}

type rlKey struct {
	fn   string
	arch domain.Arch
}

// Scheduler tracks per-function architecture ratios and performance
// history. All state is mutex-guarded; a single Scheduler is shared by
// every request goroutine touching a given function.
type Scheduler struct {
	mu   sync.Mutex
	cfg  Config
	rand *rand.Rand

	archRatios     map[string]domain.ArchWeights
	prevRL         map[rlKey]float64
	updateQPSLog   map[string][]float64
	updateTimes    map[string][]time.Time
	lastSampleTime map[rlKey]time.Time
	archPerf       map[domain.Arch][]float64
}

// New builds a Scheduler. rnd may be nil, in which case a private
// source seeded with 1 is used; tests pass their own seeded *rand.Rand.
func New(cfg Config, rnd *rand.Rand) *Scheduler {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if rnd == nil {
		rnd = rand.New(rand.NewSource(1))
	}
	return &Scheduler{
		cfg:            cfg,
		rand:           rnd,
		archRatios:     make(map[string]domain.ArchWeights),
		prevRL:         make(map[rlKey]float64),
		updateQPSLog:   make(map[string][]float64),
		updateTimes:    make(map[string][]time.Time),
		lastSampleTime: make(map[rlKey]time.Time),
		archPerf:       make(map[domain.Arch][]float64),
	}
}

// UpdateRatios recomputes the architecture weight triple for fnName
// from its recent per-architecture durations (§4.5). Durations missing
// from the map are treated as "no samples yet" (0 length).
func (s *Scheduler) UpdateRatios(fnName string, durations map[domain.Arch][]time.Duration) domain.ArchWeights {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.cfg.Now()
	s.updateTimes[fnName] = append(s.updateTimes[fnName], now)

	rPrime := make(map[domain.Arch]float64, 3)
	sampled := false
	for _, arch := range []domain.Arch{domain.ArchCentralized, domain.ArchFederated, domain.ArchDecentralized} {
		durs := durations[arch]
		key := rlKey{fn: fnName, arch: arch}

		switch {
		case now.Sub(s.lastSampleTime[key]) >= s.cfg.SampleInterval && len(durs) >= s.cfg.MinSamples:
			rl := tailRatio(durs)
			s.prevRL[key] = rl
			s.lastSampleTime[key] = now
			sampled = true

			rPrime[arch] = rl

		case len(durs) <= s.cfg.MinSamples:
			rPrime[arch] = 1.0

		default:
			if prev, ok := s.prevRL[key]; ok {
				rPrime[arch] = prev
			} else {
				rPrime[arch] = 1.0
			}
		}
	}

	// QPS is measured per sample, not per call: timestamps accumulate
	// across every call for fnName and are drained into the two-slot QPS
	// ring once per call that re-samples at least one architecture.
	if sampled {
		qpsNow := float64(len(s.updateTimes[fnName])) / s.cfg.SampleInterval.Seconds()
		log := append(s.updateQPSLog[fnName], qpsNow)
		if len(log) > 2 {
			log = log[len(log)-2:]
		}
		s.updateQPSLog[fnName] = log
		s.updateTimes[fnName] = nil
	}

	newRatios := s.calculateArchitectureWeights(fnName, rPrime)
	smoothed := s.applySmoothing(fnName, newRatios)

	total := smoothed.Centralized + smoothed.Federated + smoothed.Decentralized
	if total > 0 {
		s.archRatios[fnName] = domain.ArchWeights{
			Centralized:   round3(smoothed.Centralized / total),
			Federated:     round3(smoothed.Federated / total),
			Decentralized: round3(smoothed.Decentralized / total),
		}
	}

	ratios, ok := s.archRatios[fnName]
	if !ok {
		ratios = domain.ColdStart()
		s.archRatios[fnName] = ratios
	}
	return ratios
}

// tailRatio computes P95/P50 over durs (seconds), matching numpy's
// default linear-interpolation percentile. A set whose p50 is <= 0 maps
// to +Inf, which mapRToWeight then clamps to the hard-threshold weight
// of 1.0.
func tailRatio(durs []time.Duration) float64 {
	secs := make([]float64, len(durs))
	for i, d := range durs {
		secs[i] = d.Seconds()
	}
	sort.Float64s(secs)

	p95 := percentile(secs, 95)
	p50 := percentile(secs, 50)
	if p50 <= 0 {
		return math.Inf(1)
	}
	return p95 / p50
}

// percentile implements numpy.percentile's default ("linear") method
// over an already-sorted slice.
func percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n == 1 {
		return sorted[0]
	}
	idx := (p / 100) * float64(n-1)
	lo := int(math.Floor(idx))
	hi := int(math.Ceil(idx))
	if lo == hi {
		return sorted[lo]
	}
	frac := idx - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}

func (s *Scheduler) calculateArchitectureWeights(fnName string, rPrime map[domain.Arch]float64) domain.ArchWeights {
	qpsLog := s.updateQPSLog[fnName]
	var qpsNow float64
	if len(qpsLog) > 0 {
		qpsNow = qpsLog[len(qpsLog)-1]
	}

	decR := rPrime[domain.ArchDecentralized]
	fedR := rPrime[domain.ArchFederated]

	var fedWeight, cenWeight float64
	if qpsNow >= qpsThresholdFed {
		fedWeight = mapRToWeight(decR, s.cfg.CSoftD2F, s.cfg.CHardD2F)
		if qpsNow >= qpsThresholdCen {
			cenWeight = mapRToWeight(fedR, s.cfg.CSoftF2C, s.cfg.CHardF2C)
		}
	}

	centralized := round3(cenWeight * fedWeight)
	federated := round3(fedWeight - centralized)
	decentralized := round3(1 - federated - centralized)

	return domain.ArchWeights{
		Centralized:   centralized,
		Federated:     federated,
		Decentralized: decentralized,
	}
}

// mapRToWeight linearly interpolates a tail ratio between a soft
// threshold (weight 0) and a hard threshold (weight 1).
func mapRToWeight(r, cSoft, cHard float64) float64 {
	switch {
	case r < cSoft:
		return 0.0
	case r > cHard:
		return 1.0
	default:
		return (r - cSoft) / (cHard - cSoft)
	}
}

// applySmoothing blends newRatios into the existing ratio for fnName
// with an adaptive smoothing factor: alpha is 1.0 (no smoothing) until
// fnName has two QPS samples, otherwise a sigmoid of the QPS delta
// between the last two samples (§4.5 — larger QPS swings move the ratio faster).
func (s *Scheduler) applySmoothing(fnName string, newRatios domain.ArchWeights) domain.ArchWeights {
	old, ok := s.archRatios[fnName]
	if !ok {
		old = domain.ColdStart()
	}

	qpsLog := s.updateQPSLog[fnName]
	alpha := 1.0
	if len(qpsLog) >= 2 {
		deltaQPS := math.Abs(qpsLog[len(qpsLog)-1] - qpsLog[len(qpsLog)-2])
		alpha = 0.1 + 0.8*sigmoid(0.5*(deltaQPS-5))
	}

	return domain.ArchWeights{
		Centralized:   round3((1-alpha)*old.Centralized + alpha*newRatios.Centralized),
		Federated:     round3((1-alpha)*old.Federated + alpha*newRatios.Federated),
		Decentralized: round3((1-alpha)*old.Decentralized + alpha*newRatios.Decentralized),
	}
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

func round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}

// SelectArch draws an architecture from weights, treating any negative
// component as zero. An all-zero triple falls back to decentralized —
// the scheduler's cold-start-safe default.
func (s *Scheduler) SelectArch(weights domain.ArchWeights) domain.Arch {
	archs := []domain.Arch{domain.ArchCentralized, domain.ArchFederated, domain.ArchDecentralized}
	w := []float64{
		math.Max(0, weights.Centralized),
		math.Max(0, weights.Federated),
		math.Max(0, weights.Decentralized),
	}

	total := w[0] + w[1] + w[2]
	if total == 0 {
		return domain.ArchDecentralized
	}

	s.mu.Lock()
	r := s.rand.Float64() * total
	s.mu.Unlock()

	cumulative := 0.0
	for i, weight := range w {
		cumulative += weight
		if r <= cumulative {
			return archs[i]
		}
	}
	return archs[len(archs)-1]
}

// RecordArchPerf appends a completed request's total time to arch's
// performance ring, capped at the last 100 samples.
func (s *Scheduler) RecordArchPerf(arch domain.Arch, totalTime time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ring := append(s.archPerf[arch], totalTime.Seconds())
	if len(ring) > archPerfCap {
		ring = ring[len(ring)-archPerfCap:]
	}
	s.archPerf[arch] = ring
}

// ArchPerfSummary is one architecture's recent-performance snapshot,
// returned by Metrics (§4.7's GET /arch_metrics).
type ArchPerfSummary struct {
	RecentTimes []float64 `json:"recent_times"`
	AvgTime     float64   `json:"avg_time"`
	SampleCount int       `json:"sample_count"`
}

// Metrics is the full scheduler snapshot exposed over HTTP (§4.7).
type Metrics struct {
	ArchRatios      map[string]domain.ArchWeights     `json:"arch_ratios"`
	ArchPerformance map[domain.Arch]ArchPerfSummary    `json:"arch_performance"`
	QPSLog          map[string][]float64               `json:"qps_log"`
}

// GetMetrics returns a snapshot of the scheduler's full state.
func (s *Scheduler) GetMetrics() Metrics {
	s.mu.Lock()
	defer s.mu.Unlock()

	ratios := make(map[string]domain.ArchWeights, len(s.archRatios))
	for k, v := range s.archRatios {
		ratios[k] = v
	}

	perf := make(map[domain.Arch]ArchPerfSummary, len(s.archPerf))
	for _, arch := range []domain.Arch{domain.ArchCentralized, domain.ArchFederated, domain.ArchDecentralized} {
		ring := s.archPerf[arch]
		recent := ring
		if len(recent) > 10 {
			recent = recent[len(recent)-10:]
		}
		var avg float64
		if len(ring) > 0 {
			var total float64
			for _, v := range ring {
				total += v
			}
			avg = total / float64(len(ring))
		}
		perf[arch] = ArchPerfSummary{
			RecentTimes: append([]float64(nil), recent...),
			AvgTime:     avg,
			SampleCount: len(ring),
		}
	}

	qps := make(map[string][]float64, len(s.updateQPSLog))
	for k, v := range s.updateQPSLog {
		qps[k] = append([]float64(nil), v...)
	}

	return Metrics{ArchRatios: ratios, ArchPerformance: perf, QPSLog: qps}
}

// UpdateThresholds overwrites the tail-ratio thresholds at runtime
// (§4.7's POST /update_threshold).
func (s *Scheduler) UpdateThresholds(cSoftD2F, cHardD2F, cSoftF2C, cHardF2C float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg.CSoftD2F = cSoftD2F
	s.cfg.CHardD2F = cHardD2F
	s.cfg.CSoftF2C = cSoftF2C
	s.cfg.CHardF2C = cHardF2C
}

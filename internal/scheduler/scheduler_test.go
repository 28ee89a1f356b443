package scheduler

import (
	"math/rand"
	"testing"
	"time"

	"github.com/edgefaas/scheduler/internal/domain"
)

func durs(seconds ...float64) []time.Duration {
	out := make([]time.Duration, len(seconds))
	for i, s := range seconds {
		out[i] = time.Duration(s * float64(time.Second))
	}
	return out
}

func TestMapRToWeight(t *testing.T) {
	tests := []struct {
		r, soft, hard, want float64
	}{
		{1.0, 1.5, 2.5, 0.0},
		{3.0, 1.5, 2.5, 1.0},
		{2.0, 1.5, 2.5, 0.5},
		{1.5, 1.5, 2.5, 0.0},
		{2.5, 1.5, 2.5, 1.0},
	}
	for _, tt := range tests {
		if got := mapRToWeight(tt.r, tt.soft, tt.hard); got != tt.want {
			t.Errorf("mapRToWeight(%v, %v, %v) = %v, want %v", tt.r, tt.soft, tt.hard, got, tt.want)
		}
	}
}

func TestPercentileMatchesNumpyLinear(t *testing.T) {
	sorted := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	if got := percentile(sorted, 50); got != 5.5 {
		t.Errorf("percentile(50) = %v, want 5.5", got)
	}
	if got := percentile(sorted, 95); got != 9.55 {
		t.Errorf("percentile(95) = %v, want 9.55", got)
	}
}

func TestUpdateRatiosColdStartIsAllDecentralized(t *testing.T) {
	s := New(DefaultConfig(), rand.New(rand.NewSource(1)))
	got := s.UpdateRatios("fn", map[domain.Arch][]time.Duration{})
	if got.Decentralized != 1.0 || got.Centralized != 0 || got.Federated != 0 {
		t.Errorf("cold start ratios = %+v, want all-decentralized", got)
	}
}

func TestUpdateRatiosLowQPSStaysDecentralized(t *testing.T) {
	now := time.Unix(1000, 0)
	cfg := DefaultConfig()
	cfg.Now = func() time.Time { return now }
	s := New(cfg, rand.New(rand.NewSource(1)))

	// A single call with zero durations for every arch: no arch reaches
	// min_samples, so nothing is re-sampled and no QPS is recorded (QPS
	// reads as 0, below the fed threshold). The tail ratio also defaults
	// to 1.0 for all, which maps to weight 0 regardless of QPS.
	got := s.UpdateRatios("fn", map[domain.Arch][]time.Duration{})
	if got.Decentralized < 0.99 {
		t.Errorf("ratios with no samples = %+v, want decentralized ~1.0", got)
	}
}

func TestUpdateRatiosHighTailRatioShiftsWeight(t *testing.T) {
	now := time.Unix(1000, 0)
	cfg := DefaultConfig()
	cfg.Now = func() time.Time { return now }
	cfg.MinSamples = 3
	s := New(cfg, rand.New(rand.NewSource(1)))

	// Decentralized durations have a huge p95/p50 spread (tail ratio
	// well above the hard threshold); federated and centralized are
	// tight. One call per sample interval gives QPS = 1/2s = 0.5, which
	// meets the federated threshold, so the first stage of the cascade
	// engages and weight should move away from decentralized.
	decentral := durs(0.01, 0.01, 0.01, 0.01, 10.0)
	federated := durs(0.05, 0.05, 0.05, 0.05, 0.05)
	durations := map[domain.Arch][]time.Duration{
		domain.ArchDecentralized: decentral,
		domain.ArchFederated:     federated,
		domain.ArchCentralized:   federated,
	}

	var last domain.ArchWeights
	for i := 0; i < 5; i++ {
		now = now.Add(3 * time.Second) // exceed sample_interval each round
		last = s.UpdateRatios("fn", durations)
	}

	if last.Decentralized >= 1.0 {
		t.Errorf("after sustained high tail ratio, ratios = %+v, want decentralized weight reduced", last)
	}
}

func TestSelectArchAllZeroFallsBackToDecentralized(t *testing.T) {
	s := New(DefaultConfig(), rand.New(rand.NewSource(1)))
	got := s.SelectArch(domain.ArchWeights{})
	if got != domain.ArchDecentralized {
		t.Errorf("SelectArch(zero weights) = %v, want decentralized", got)
	}
}

func TestSelectArchRespectsWeights(t *testing.T) {
	s := New(DefaultConfig(), rand.New(rand.NewSource(2)))
	weights := domain.ArchWeights{Centralized: 1.0}
	for i := 0; i < 20; i++ {
		if got := s.SelectArch(weights); got != domain.ArchCentralized {
			t.Errorf("SelectArch(all-centralized weights) = %v, want centralized", got)
		}
	}
}

func TestRecordArchPerfCapsRing(t *testing.T) {
	s := New(DefaultConfig(), nil)
	for i := 0; i < archPerfCap+10; i++ {
		s.RecordArchPerf(domain.ArchCentralized, time.Second)
	}
	m := s.GetMetrics()
	if m.ArchPerformance[domain.ArchCentralized].SampleCount != archPerfCap {
		t.Errorf("SampleCount = %d, want %d", m.ArchPerformance[domain.ArchCentralized].SampleCount, archPerfCap)
	}
}

func TestUpdateThresholds(t *testing.T) {
	s := New(DefaultConfig(), nil)
	s.UpdateThresholds(1.1, 2.2, 3.3, 4.4)
	if s.cfg.CSoftD2F != 1.1 || s.cfg.CHardF2C != 4.4 {
		t.Errorf("thresholds not updated: %+v", s.cfg)
	}
}

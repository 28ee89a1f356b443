package trust

import (
	"testing"
	"time"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestGetOrRegisterStartsAtNeutralDefault(t *testing.T) {
	tr := NewTracker(fixedClock(time.Unix(0, 0)))
	nt := tr.GetOrRegister("node-a")

	want := DefaultScore * (WeightReliability + WeightAvailability + WeightSpeed)
	if diff := nt.Overall() - want; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("Overall() = %v, want %v (reliability/availability/speed all default, longevity 0)", nt.Overall(), want)
	}
}

func TestGetOrRegisterIsIdempotent(t *testing.T) {
	tr := NewTracker(nil)
	a := tr.GetOrRegister("node-a")
	b := tr.GetOrRegister("node-a")
	if a != b {
		t.Error("GetOrRegister() returned a different record on the second call")
	}
}

func TestRecordOutcomeUnregisteredNodeErrors(t *testing.T) {
	tr := NewTracker(nil)
	if err := tr.RecordOutcome("ghost", Outcome{Successful: true}); err == nil {
		t.Error("RecordOutcome() on an unregistered node should error")
	}
}

func TestRecordOutcomeFailureDragsReliabilityDown(t *testing.T) {
	tr := NewTracker(nil)
	tr.GetOrRegister("node-a")

	before := tr.Get("node-a").Components.Reliability
	tr.RecordOutcome("node-a", Outcome{Successful: false})
	after := tr.Get("node-a").Components.Reliability

	if after >= before {
		t.Errorf("Reliability after a failure = %v, want less than before (%v)", after, before)
	}
}

func TestRecordOutcomeSuccessRaisesReliabilityTowardCeiling(t *testing.T) {
	tr := NewTracker(nil)
	tr.GetOrRegister("node-a")

	for i := 0; i < 20; i++ {
		tr.RecordOutcome("node-a", Outcome{Successful: true, ExpectedTime: time.Second, ActualTime: time.Second})
	}
	nt := tr.Get("node-a")
	if nt.Components.Reliability < 0.9 {
		t.Errorf("Reliability after 20 successes = %v, want close to 1.0", nt.Components.Reliability)
	}
}

func TestTrustedNodesFiltersByThreshold(t *testing.T) {
	tr := NewTracker(nil)
	tr.GetOrRegister("good")
	tr.GetOrRegister("bad")

	for i := 0; i < 20; i++ {
		tr.RecordOutcome("good", Outcome{Successful: true, ExpectedTime: time.Second, ActualTime: time.Second})
		tr.RecordOutcome("bad", Outcome{Successful: false})
	}

	trusted := tr.TrustedNodes(0.6)
	found := map[string]bool{}
	for _, nt := range trusted {
		found[nt.NodeID] = true
	}
	if !found["good"] {
		t.Error("expected 'good' node to be trusted")
	}
	if found["bad"] {
		t.Error("expected 'bad' node to not be trusted")
	}
}

func TestLongevityGrowsWithDaysActive(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := start
	tr := NewTracker(func() time.Time { return clock })
	tr.GetOrRegister("node-a")

	clock = start.Add(15 * 24 * time.Hour)
	tr.RecordOutcome("node-a", Outcome{Successful: true})

	nt := tr.Get("node-a")
	want := 15.0 / float64(LongevityFullDays)
	if diff := nt.Components.Longevity - want; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("Longevity = %v, want %v", nt.Components.Longevity, want)
	}
}

package obs

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRequestsTotalIncrements(t *testing.T) {
	RequestsTotal.Reset()
	RequestsTotal.WithLabelValues("centralized", "200").Inc()
	RequestsTotal.WithLabelValues("centralized", "200").Inc()

	got := testutil.ToFloat64(RequestsTotal.WithLabelValues("centralized", "200"))
	if got != 2 {
		t.Errorf("RequestsTotal = %v, want 2", got)
	}
}

func TestArchitectureWeightSetsGauge(t *testing.T) {
	ArchitectureWeight.WithLabelValues("federated").Set(0.42)

	got := testutil.ToFloat64(ArchitectureWeight.WithLabelValues("federated"))
	if got != 0.42 {
		t.Errorf("ArchitectureWeight = %v, want 0.42", got)
	}
}

// Package obs declares the scheduler's Prometheus metrics (§11). Every
// metric here is registered once at package init via promauto, the same
// pattern the teacher's observability package uses for its own gauges
// and counters — so /metrics is exercisable the moment the process
// starts, with no separate registration step at server wiring time.
package obs

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var RequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "edgefaas",
	Subsystem: "scheduler",
	Name:      "requests_total",
	Help:      "Total requests handled by HandleRequest, by architecture and HTTP status.",
}, []string{"architecture", "status"})

var PlacementDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "edgefaas",
	Subsystem: "scheduler",
	Name:      "placement_duration_seconds",
	Help:      "Time spent in HandleRequest end to end, by architecture.",
	Buckets:   prometheus.DefBuckets,
}, []string{"architecture"})

var OffloadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "edgefaas",
	Subsystem: "scheduler",
	Name:      "offloads_total",
	Help:      "Total requests offloaded to a peer node or zone instead of executed locally.",
}, []string{"scope"})

var ArchitectureWeight = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "edgefaas",
	Subsystem: "scheduler",
	Name:      "architecture_weight",
	Help:      "Current dynamic-architecture selection probability, by architecture.",
}, []string{"architecture"})

var LoadAverage1m = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "edgefaas",
	Subsystem: "node",
	Name:      "load1",
	Help:      "Most recently sampled 1-minute load average.",
})

var CPUPercent = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "edgefaas",
	Subsystem: "node",
	Name:      "cpu_percent",
	Help:      "Most recently sampled CPU busy percentage.",
})

var ConfigReloadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "edgefaas",
	Subsystem: "config",
	Name:      "reloads_total",
	Help:      "Total configuration reloads, by outcome (ok/error).",
}, []string{"outcome"})

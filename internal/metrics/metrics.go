// Package metrics holds the gateway's Prometheus instrumentation,
// package-level promauto-registered vectors scraped at /metrics, the
// way the teacher's internal/metrics does for the task queue.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PlacementDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_placement_decisions_total",
			Help: "Total number of getWorkerForModel decisions by outcome",
		},
		[]string{"outcome"}, // cache_hit, reassign, assign, error
	)

	ModelLoadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_model_loads_total",
			Help: "Total number of worker load calls issued",
		},
		[]string{"success"}, // "true" or "false"
	)

	AssignmentRacesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gateway_assignment_races_total",
			Help: "Total number of setIfAbsent races lost during assign",
		},
	)

	UnloadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_unloads_total",
			Help: "Total number of global unload operations by outcome",
		},
		[]string{"outcome"}, // ok, not_found
	)

	ReconcileRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_reconcile_runs_total",
			Help: "Total number of reconciler ticks by outcome",
		},
		[]string{"outcome"}, // ok, error
	)

	ReconcileStaleAssignmentsRemoved = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gateway_reconcile_stale_assignments_removed_total",
			Help: "Total number of stale registry assignments deleted by the reconciler",
		},
	)

	HealthyWorkers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gateway_healthy_workers",
			Help: "Current number of workers considered healthy",
		},
	)

	KnownWorkers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gateway_known_workers",
			Help: "Current number of workers known to the discovery source",
		},
	)

	WorkerProbeDurationSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "gateway_worker_probe_duration_seconds",
			Help:    "Duration of individual worker /health probes",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~2.5s
		},
	)

	RequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gateway_request_duration_seconds",
			Help:    "Inbound request duration in seconds by action",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~20s
		},
		[]string{"action"}, // predict, load, other
	)
)

package collab

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	operationsApplied = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notebook_operations_applied_total",
		Help: "Operations applied to a notebook, by operation type",
	}, []string{"type"})

	operationsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notebook_operations_dropped_total",
		Help: "Operations that became no-ops after transformation, by operation type",
	}, []string{"type"})

	operationsFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notebook_operations_failed_total",
		Help: "Operations rejected by the engine, by operation type",
	}, []string{"type"})

	transformDepth = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "notebook_transform_depth",
		Help:    "Number of concurrent operations an incoming operation was transformed against",
		Buckets: []float64{0, 1, 2, 4, 8, 16, 64, 256},
	})

	dispatchDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "notebook_change_events_dropped_total",
		Help: "Change events dropped after exhausting kafka retries or a full queue",
	})
)

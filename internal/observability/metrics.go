// Package observability holds the Prometheus collectors shared across the service.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	operationCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "activity_service",
		Subsystem: "signup",
		Name:      "operations_total",
		Help:      "Activity operations handled, labeled by operation and outcome.",
	}, []string{"operation", "outcome"})

	backendGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "activity_service",
		Subsystem: "persistence",
		Name:      "active_backend",
		Help:      "Set to 1 for the repository backend selected at startup.",
	}, []string{"backend"})

	storeFallbackCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "activity_service",
		Subsystem: "persistence",
		Name:      "fallback_total",
		Help:      "Number of times startup fell back to the in-memory table.",
	})
)

func init() {
	prometheus.MustRegister(operationCounter, backendGauge, storeFallbackCounter)
}

// RecordOperation counts one activity operation with its outcome.
func RecordOperation(operation, outcome string) {
	operationCounter.WithLabelValues(operation, outcome).Inc()
}

// RecordBackend marks backend as the active repository.
func RecordBackend(backend string) {
	backendGauge.Reset()
	backendGauge.WithLabelValues(backend).Set(1)
}

// RecordStoreFallback counts a degrade to the in-memory table.
func RecordStoreFallback() {
	storeFallbackCounter.Inc()
}

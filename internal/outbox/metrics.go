package outbox

import "github.com/prometheus/client_golang/prometheus"

var (
	deliveredCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "activity_service",
		Subsystem: "outbox",
		Name:      "events_delivered_total",
		Help:      "Number of participation events successfully published to Kafka.",
	})

	failedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "activity_service",
		Subsystem: "outbox",
		Name:      "events_failed_total",
		Help:      "Number of participation events that failed to publish.",
	})

	retriedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "activity_service",
		Subsystem: "outbox",
		Name:      "events_retried_total",
		Help:      "Number of participation events released for another delivery attempt.",
	})

	batchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "activity_service",
		Subsystem: "outbox",
		Name:      "batch_duration_seconds",
		Help:      "Time spent claiming, delivering and marking outbox batches.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
	})

	dlqCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "activity_service",
		Subsystem: "outbox",
		Name:      "events_dlq_total",
		Help:      "Number of participation events routed to the dead-letter table, labeled by topic.",
	}, []string{"topic"})
)

func init() {
	prometheus.MustRegister(deliveredCounter, failedCounter, retriedCounter, batchDuration, dlqCounter)
}

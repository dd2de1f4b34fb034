// Package metrics exposes Prometheus counters for the scoring
// pipeline and the outbox dispatcher.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "reverie"

// Own registry so /metrics stays limited to what we publish.
var registry = prometheus.NewRegistry()

var (
	scoringBatches = promauto.With(registry).NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "scoring",
		Name:      "batches_total",
		Help:      "Total number of scoring batches processed",
	})

	scoringScored = promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "scoring",
		Name:      "messages_total",
		Help:      "Total messages scored, by source (cache, judge, default)",
	}, []string{"source"})

	scoringJudgeRetries = promauto.With(registry).NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "scoring",
		Name:      "judge_retries_total",
		Help:      "Total transient judge call retries",
	})

	scoringBatchDuration = promauto.With(registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "scoring",
		Name:      "batch_duration_seconds",
		Help:      "Wall time per scoring batch",
		Buckets:   prometheus.DefBuckets,
	})

	outboxDispatched = promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "outbox",
		Name:      "events_total",
		Help:      "Total dispatched outbox events, by outcome (done, retry, deadletter)",
	}, []string{"outcome"})

	outboxPending = promauto.With(registry).NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "outbox",
		Name:      "pending",
		Help:      "Pending events observed at the last dispatcher pass",
	})
)

func RecordScoringBatch(seconds float64) {
	scoringBatches.Inc()
	scoringBatchDuration.Observe(seconds)
}

// RecordScored counts one scored message. Source is "cache", "judge"
// or "default".
func RecordScored(source string) {
	scoringScored.WithLabelValues(source).Inc()
}

func RecordJudgeRetry() {
	scoringJudgeRetries.Inc()
}

// RecordDispatch counts one dispatched event. Outcome is "done",
// "retry" or "deadletter".
func RecordDispatch(outcome string) {
	outboxDispatched.WithLabelValues(outcome).Inc()
}

func SetOutboxPending(n int) {
	outboxPending.Set(float64(n))
}

// Registry returns the registry backing the /metrics endpoint.
func Registry() *prometheus.Registry {
	return registry
}

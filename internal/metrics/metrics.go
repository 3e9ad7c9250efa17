// Package metrics holds the Prometheus collectors TrailTag's components
// report into: job/phase counters, storage write latency, cache hit/miss,
// SSE connection count, and executor queue depth. Grounded on the teacher's
// internal/api/middleware/metrics.go (promauto-registered vectors/gauges,
// namespaced metric names) generalized from HTTP-request metrics to the
// domain-level metrics this spec's components emit.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sacahan/trailtag/internal/model"
)

const namespace = "trailtag"

var (
	jobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "jobs_total",
		Help:      "Total jobs reaching a terminal status, by status.",
	}, []string{"status"})

	phaseTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "phase_transitions_total",
		Help:      "Total workflow phase entries, by phase.",
	}, []string{"phase"})

	storageWriteDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "storage_write_duration_seconds",
		Help:      "Storage backend write (Save) latency in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"backend"})

	cacheResultTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cache_result_total",
		Help:      "Cache facade Get results, by hit/miss.",
	}, []string{"result"})

	sseConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "sse_connections",
		Help:      "Currently open progress-event-stream connections.",
	})

	executorQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "executor_queue_depth",
		Help:      "Jobs submitted to the executor but not yet dispatched to a worker.",
	})
)

// RecordJobTerminal increments the terminal-status job counter.
func RecordJobTerminal(status model.JobStatus) {
	jobsTotal.WithLabelValues(string(status)).Inc()
}

// RecordPhaseTransition increments the phase-transition counter.
func RecordPhaseTransition(phase model.JobPhase) {
	if phase == model.PhaseNone {
		return
	}
	phaseTransitionsTotal.WithLabelValues(string(phase)).Inc()
}

// ObserveStorageWrite records how long a Backend.Save call took.
func ObserveStorageWrite(backend string, d time.Duration) {
	storageWriteDuration.WithLabelValues(backend).Observe(d.Seconds())
}

// RecordCacheResult increments the cache hit/miss counter.
func RecordCacheResult(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	cacheResultTotal.WithLabelValues(result).Inc()
}

// IncSSEConnections marks a new SSE connection as open.
func IncSSEConnections() { sseConnections.Inc() }

// DecSSEConnections marks an SSE connection as closed.
func DecSSEConnections() { sseConnections.Dec() }

// SetExecutorQueueDepth reports the current count of submitted-but-not-yet-
// dispatched jobs.
func SetExecutorQueueDepth(n int) { executorQueueDepth.Set(float64(n)) }

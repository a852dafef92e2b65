// Package metrics holds the Prometheus collectors shared by Sentinel
// processes and a helper to expose them over HTTP.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sentinelq/sentinel/pkg/logger"
)

var (
	// TasksSubmitted counts tasks accepted by the submission API.
	TasksSubmitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sentinel_submitted_total",
		Help: "The total number of submitted tasks",
	})

	// TasksProcessed counts dispatcher outcomes.
	// status: "success", "retry", or "failed"
	TasksProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sentinel_processed_total",
		Help: "The total number of processed tasks",
	}, []string{"status"})

	// TaskDuration tracks executor latency in seconds.
	TaskDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "sentinel_task_duration_seconds",
		Help:    "Duration of task execution",
		Buckets: prometheus.DefBuckets,
	})

	// QueueLatency tracks time between task creation and the start of an
	// execution attempt.
	QueueLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "sentinel_queue_latency_seconds",
		Help:    "Time spent in queue before processing",
		Buckets: prometheus.DefBuckets,
	})

	// QueueDepth tracks the number of tasks in each store structure.
	// queue: "queue", "delayed", or "dead_letter"
	QueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "sentinel_queue_depth",
		Help: "Number of tasks in each queue",
	}, []string{"queue"})
)

// StartServer exposes /metrics on addr in a background goroutine.
func StartServer(addr string) {
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		logger.Log.Info().Str("addr", addr).Msg("Metrics server listening")
		if err := http.ListenAndServe(addr, mux); err != nil {
			logger.Log.Error().Err(err).Msg("Metrics server failed")
		}
	}()
}

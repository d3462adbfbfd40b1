package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP request latency (seconds).
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"method", "path", "status"},
	)

	// Request workflow decisions (created / approved / rejected / conflict).
	RequestDecisionCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "task_request_decision_count",
			Help: "Total number of task request workflow decisions",
		},
		[]string{"kind", "decision"},
	)

	// Progress recompute latency (seconds).
	ProgressRecomputeDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "progress_recompute_duration_seconds",
			Help:    "Study/project progress recompute duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 10),
		},
	)

	// Realtime emissions by event, delivery path and outcome.
	RealtimeEmitCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_emit_count",
			Help: "Total number of realtime emission attempts",
		},
		[]string{"event", "path", "status"}, // path: local, mq, http; status: ok, error, dropped
	)

	// Notifications persisted.
	NotificationCreatedCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_created_count",
			Help: "Total number of notifications persisted",
		},
		[]string{"type"},
	)

	// Currently connected realtime subscribers.
	RealtimeSubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "realtime_subscribers",
			Help: "Number of connected realtime subscribers",
		},
	)
)

// RecordHTTPRequestDuration records one HTTP request observation.
func RecordHTTPRequestDuration(method, path, status string, duration time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

// IncrementRequestDecision counts a workflow decision.
func IncrementRequestDecision(kind, decision string) {
	RequestDecisionCount.WithLabelValues(kind, decision).Inc()
}

// IncrementRealtimeEmit counts one emission attempt on a delivery path.
func IncrementRealtimeEmit(event, path, status string) {
	RealtimeEmitCount.WithLabelValues(event, path, status).Inc()
}

// IncrementNotificationCreated counts a persisted notification.
func IncrementNotificationCreated(notificationType string) {
	NotificationCreatedCount.WithLabelValues(notificationType).Inc()
}

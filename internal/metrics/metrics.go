package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Relay Metrics
	RelayConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "relay_connections",
			Help: "Current number of open real-time connections",
		},
	)

	RelaySessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "relay_active_sessions",
			Help: "Current number of sessions with at least one participant",
		},
	)

	RelayEventsReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_events_received_total",
			Help: "Total number of inbound events accepted by the relay",
		},
		[]string{"event"},
	)

	RelayEventsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_events_rejected_total",
			Help: "Total number of inbound events dropped as malformed",
		},
		[]string{"reason"}, // "malformed_event", "unknown_event", "not_joined", "session_mismatch"
	)

	RelayDeliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_deliveries_total",
			Help: "Total number of frames queued to peers",
		},
		[]string{"event"},
	)

	RelayDeliveriesDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_deliveries_dropped_total",
			Help: "Total number of frames dropped because a peer queue was full",
		},
		[]string{"event"},
	)

	RelayInvalidTokens = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_invalid_tokens_total",
			Help: "Total number of connections that presented an invalid token",
		},
	)

	// Snapshot Metrics
	SnapshotSaves = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "snapshot_saves_total",
			Help: "Total number of snapshot saves by result",
		},
		[]string{"result"}, // "ok", "error", "dropped", "superseded"
	)

	SnapshotSaveDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "snapshot_save_duration_seconds",
			Help:    "Duration of snapshot writes in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	SnapshotQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "snapshot_queue_depth",
			Help: "Current number of sessions with a pending snapshot",
		},
	)

	// HTTP Metrics
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of REST requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
)

// RecordSnapshotSave records one completed snapshot write.
func RecordSnapshotSave(duration time.Duration, err error) {
	SnapshotSaveDuration.Observe(duration.Seconds())
	if err != nil {
		SnapshotSaves.WithLabelValues("error").Inc()
		return
	}
	SnapshotSaves.WithLabelValues("ok").Inc()
}

// RecordDelivery records one attempt to queue a frame to a peer.
func RecordDelivery(event string, queued bool) {
	if queued {
		RelayDeliveries.WithLabelValues(event).Inc()
		return
	}
	RelayDeliveriesDropped.WithLabelValues(event).Inc()
}

// RecordHTTPRequest records one REST request.
func RecordHTTPRequest(method, route, status string, duration time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, route, status).Observe(duration.Seconds())
}

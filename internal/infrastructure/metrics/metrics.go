// Package metrics provides Prometheus metrics for the groupchat-api service.
package metrics

import (
	"context"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"collab-server/services/groupchat-api/internal/domain/events"
)

const namespace = "groupchat"

var (
	// ActiveConnections tracks the number of open websocket connections.
	ActiveConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_connections",
			Help:      "Number of currently open websocket connections",
		},
	)

	// RoomJoins counts successful live room joins.
	RoomJoins = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "room_joins_total",
			Help:      "Total number of live room joins",
		},
	)

	// MessagesSent counts persisted messages by transport.
	MessagesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_sent_total",
			Help:      "Total number of persisted user messages",
		},
		[]string{"transport"},
	)

	// MessagesRejected counts rejected submissions by reason.
	MessagesRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_rejected_total",
			Help:      "Total number of rejected message submissions",
		},
		[]string{"transport", "reason"},
	)

	// PersistenceFailures counts store failures by operation.
	PersistenceFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "persistence_failures_total",
			Help:      "Total number of failed store operations",
		},
		[]string{"operation"},
	)

	// BroadcastDeliveries counts frames handed to live connections.
	BroadcastDeliveries = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broadcast_deliveries_total",
			Help:      "Total number of frames delivered to live connections",
		},
	)

	// BroadcastSkipped counts stale handles skipped during delivery.
	BroadcastSkipped = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broadcast_skipped_total",
			Help:      "Total number of stale connections skipped during delivery",
		},
	)

	// HistoryDuration tracks history page latency.
	HistoryDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "history_duration_seconds",
			Help:      "Duration of message history reads",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
	)

	// AuditDropped counts audit events dropped because the buffer was full.
	AuditDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audit_dropped_total",
			Help:      "Total number of audit events dropped on a full buffer",
		},
	)

	// AuditFailures counts audit writes that fell back to the error log.
	AuditFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audit_failures_total",
			Help:      "Total number of audit rows that could not be written",
		},
	)

	// AuthFailures counts rejected credentials by code.
	AuthFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_failures_total",
			Help:      "Total number of rejected credentials",
		},
		[]string{"transport", "code"},
	)

	// HTTPRequestDuration tracks request latency by route and status.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
)

// RecordHTTPRequest observes one completed HTTP request.
func RecordHTTPRequest(method, route string, status int, elapsed time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(elapsed.Seconds())
}

// RecordConnectionOpened increments the connection gauge.
func RecordConnectionOpened() {
	ActiveConnections.Inc()
}

// RecordConnectionClosed decrements the connection gauge.
func RecordConnectionClosed() {
	ActiveConnections.Dec()
}

// Observer counts domain events.
type Observer struct{}

// NewObserver creates an events.Observer that feeds the chat counters.
func NewObserver() *Observer {
	return &Observer{}
}

// Observe implements events.Observer.
func (Observer) Observe(_ context.Context, event events.Event) {
	switch e := event.(type) {
	case events.MessageSent:
		MessagesSent.WithLabelValues(string(e.Transport)).Inc()
	case events.MessageRejected:
		MessagesRejected.WithLabelValues(string(e.Transport), string(e.Reason)).Inc()
	case events.PersistenceFailed:
		PersistenceFailures.WithLabelValues(e.Operation).Inc()
	case events.AuthFailed:
		AuthFailures.WithLabelValues(string(e.Transport), e.Code).Inc()
	}
}

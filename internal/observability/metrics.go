package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wanotify",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "wanotify",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
	sessionState = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "wanotify",
			Subsystem: "session",
			Name:      "state",
			Help:      "Current session state (0 uninitialized, 1 awaiting pairing, 2 connected, 3 reconnecting, 4 logged out).",
		},
	)
	reconnectAttempts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "wanotify",
			Subsystem: "session",
			Name:      "reconnect_attempts_total",
			Help:      "Connection attempts made while not connected.",
		},
	)
	notifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wanotify",
			Subsystem: "notify",
			Name:      "deliveries_total",
			Help:      "Notification delivery attempts by event kind and outcome.",
		},
		[]string{"kind", "outcome"},
	)
	webhookEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wanotify",
			Subsystem: "webhook",
			Name:      "events_total",
			Help:      "Inbound webhook events by event name and disposition.",
		},
		[]string{"event", "disposition"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(httpRequests, httpDuration, sessionState, reconnectAttempts, notifications, webhookEvents)
	})
}

func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(method, path, statusLabel).Observe(duration.Seconds())
}

func RecordSessionState(state int) {
	RegisterMetrics()
	sessionState.Set(float64(state))
}

func RecordReconnectAttempt() {
	RegisterMetrics()
	reconnectAttempts.Inc()
}

func RecordDelivery(kind, outcome string) {
	RegisterMetrics()
	notifications.WithLabelValues(kind, outcome).Inc()
}

func RecordWebhookEvent(event, disposition string) {
	RegisterMetrics()
	webhookEvents.WithLabelValues(event, disposition).Inc()
}

package chat

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics aggregates the relay's counters. All methods are nil-safe so tests
// and callers without a registry can pass a nil *Metrics.
type Metrics struct {
	activeSessions    prometheus.Gauge
	sessionTotal      prometheus.Counter
	frameErrors       *prometheus.CounterVec
	frameLatency      *prometheus.HistogramVec
	framesDropped     prometheus.Counter
	deliveriesDropped prometheus.Counter
	notifications     *prometheus.CounterVec
	keysIssued        prometheus.Counter
}

// NewMetrics registers the relay metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chatd_sessions_active",
			Help: "Current number of live chat sessions.",
		}),
		sessionTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chatd_sessions_total",
			Help: "Total number of sessions handled since start.",
		}),
		frameErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chatd_frame_errors_total",
			Help: "Handler failures grouped by error code.",
		}, []string{"code"}),
		frameLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "chatd_frame_latency_seconds",
			Help:    "Latency for handling inbound frames.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		}, []string{"op"}),
		framesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chatd_frames_dropped_total",
			Help: "Inbound frames dropped because they failed to decode.",
		}),
		deliveriesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chatd_deliveries_dropped_total",
			Help: "Outbound frames dropped because the peer connection refused the write.",
		}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chatd_notifications_total",
			Help: "Push notification attempts grouped by result.",
		}, []string{"result"}),
		keysIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chatd_socket_keys_issued_total",
			Help: "One-time socket keys minted.",
		}),
	}

	reg.MustRegister(
		m.activeSessions,
		m.sessionTotal,
		m.frameErrors,
		m.frameLatency,
		m.framesDropped,
		m.deliveriesDropped,
		m.notifications,
		m.keysIssued,
	)
	return m
}

func (m *Metrics) IncSession() {
	if m == nil {
		return
	}
	m.activeSessions.Inc()
	m.sessionTotal.Inc()
}

func (m *Metrics) DecSession() {
	if m == nil {
		return
	}
	m.activeSessions.Dec()
}

func (m *Metrics) RecordError(code string) {
	if m == nil {
		return
	}
	m.frameErrors.WithLabelValues(code).Inc()
}

func (m *Metrics) ObserveLatency(op string, dur time.Duration) {
	if m == nil || op == "" {
		return
	}
	m.frameLatency.WithLabelValues(op).Observe(dur.Seconds())
}

func (m *Metrics) RecordFrameDropped() {
	if m == nil {
		return
	}
	m.framesDropped.Inc()
}

func (m *Metrics) RecordDeliveryDropped() {
	if m == nil {
		return
	}
	m.deliveriesDropped.Inc()
}

func (m *Metrics) RecordNotification(result string) {
	if m == nil {
		return
	}
	if result == "" {
		result = "unknown"
	}
	m.notifications.WithLabelValues(result).Inc()
}

func (m *Metrics) RecordKeyIssued() {
	if m == nil {
		return
	}
	m.keysIssued.Inc()
}

package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the process metric instruments and their registry
type Metrics struct {
	registry *prometheus.Registry

	SessionsStarted     prometheus.Counter
	SessionsEnded       *prometheus.CounterVec
	ExpirySweepDuration prometheus.Histogram
	HeartbeatsReceived  prometheus.Counter
}

// NewMetrics creates and registers the instrument set
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: registry,
		SessionsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "kiosk",
			Name:      "sessions_started_total",
			Help:      "Number of sessions started.",
		}),
		SessionsEnded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kiosk",
			Name:      "sessions_ended_total",
			Help:      "Number of sessions ended, by reason.",
		}, []string{"reason"}),
		ExpirySweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "kiosk",
			Name:      "expiry_sweep_duration_seconds",
			Help:      "Duration of expiry sweep passes.",
			Buckets:   prometheus.DefBuckets,
		}),
		HeartbeatsReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "kiosk",
			Name:      "heartbeats_received_total",
			Help:      "Number of terminal heartbeats processed.",
		}),
	}

	registry.MustRegister(
		m.SessionsStarted,
		m.SessionsEnded,
		m.ExpirySweepDuration,
		m.HeartbeatsReceived,
	)
	return m
}

// RegisterStreamClients exposes the connected event-stream client count
func (m *Metrics) RegisterStreamClients(count func() float64) {
	m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "kiosk",
		Name:      "stream_clients",
		Help:      "Connected event-stream clients.",
	}, count))
}

// RegisterNotificationsDropped exposes the broadcaster drop counter
func (m *Metrics) RegisterNotificationsDropped(count func() float64) {
	m.registry.MustRegister(prometheus.NewCounterFunc(prometheus.CounterOpts{
		Namespace: "kiosk",
		Name:      "notifications_dropped_total",
		Help:      "Notifications dropped on a full dispatch queue.",
	}, count))
}

// ObserveExpirySweep records the duration of one expiry pass
func (m *Metrics) ObserveExpirySweep(d time.Duration) {
	m.ExpirySweepDuration.Observe(d.Seconds())
}

// Handler returns the scrape endpoint handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

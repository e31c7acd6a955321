// Package metrics holds the Prometheus collectors of the session host.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Removal paths of a session.
const (
	PathExit     = "exit"
	PathKill     = "kill"
	PathShutdown = "shutdown"
)

// Reasons an event is not delivered.
const (
	DropNoSubscriber = "no_subscriber"
	DropAfterExit    = "after_exit"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Session metrics
	SessionsActive  prometheus.Gauge
	SessionsCreated *prometheus.CounterVec
	SpawnFailures   prometheus.Counter
	SessionsRemoved *prometheus.CounterVec
	InputBytes      prometheus.Counter
	OutputBytes     prometheus.Counter

	// Event bridge metrics
	Subscribers     prometheus.Gauge
	EventsDelivered *prometheus.CounterVec
	EventsDropped   *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "claude_terminal_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "claude_terminal_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),

		SessionsActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "claude_terminal_sessions_active",
				Help: "Number of registered terminal sessions",
			},
		),
		SessionsCreated: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "claude_terminal_sessions_created_total",
				Help: "Total number of sessions created",
			},
			[]string{"mode"},
		),
		SpawnFailures: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "claude_terminal_spawn_failures_total",
				Help: "Total number of failed session spawns",
			},
		),
		SessionsRemoved: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "claude_terminal_sessions_removed_total",
				Help: "Total number of sessions removed from the registry",
			},
			[]string{"path"},
		),
		InputBytes: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "claude_terminal_input_bytes_total",
				Help: "Bytes written to session terminals",
			},
		),
		OutputBytes: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "claude_terminal_output_bytes_total",
				Help: "Bytes read from session terminals",
			},
		),

		Subscribers: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "claude_terminal_subscribers",
				Help: "Number of attached UI endpoints",
			},
		),
		EventsDelivered: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "claude_terminal_events_delivered_total",
				Help: "Events queued for the UI endpoint",
			},
			[]string{"type"},
		),
		EventsDropped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "claude_terminal_events_dropped_total",
				Help: "Events not delivered to the UI endpoint",
			},
			[]string{"type", "reason"},
		),
	}
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// SetSessionsActive sets the number of registered sessions.
func (m *Metrics) SetSessionsActive(count int) {
	if m == nil {
		return
	}
	m.SessionsActive.Set(float64(count))
}

// IncSessionsCreated counts a successful create.
func (m *Metrics) IncSessionsCreated(mode string) {
	if m == nil {
		return
	}
	m.SessionsCreated.WithLabelValues(mode).Inc()
}

// IncSpawnFailures counts a failed create.
func (m *Metrics) IncSpawnFailures() {
	if m == nil {
		return
	}
	m.SpawnFailures.Inc()
}

// IncSessionsRemoved counts a registry removal by path.
func (m *Metrics) IncSessionsRemoved(path string) {
	if m == nil {
		return
	}
	m.SessionsRemoved.WithLabelValues(path).Inc()
}

// AddInputBytes counts bytes written to a terminal.
func (m *Metrics) AddInputBytes(n int) {
	if m == nil {
		return
	}
	m.InputBytes.Add(float64(n))
}

// AddOutputBytes counts bytes read from a terminal.
func (m *Metrics) AddOutputBytes(n int) {
	if m == nil {
		return
	}
	m.OutputBytes.Add(float64(n))
}

// SetSubscribers sets the number of attached UI endpoints.
func (m *Metrics) SetSubscribers(count int) {
	if m == nil {
		return
	}
	m.Subscribers.Set(float64(count))
}

// IncEventsDelivered counts an event handed to the subscriber queue.
func (m *Metrics) IncEventsDelivered(eventType string) {
	if m == nil {
		return
	}
	m.EventsDelivered.WithLabelValues(eventType).Inc()
}

// IncEventsDropped counts an event that was not delivered.
func (m *Metrics) IncEventsDropped(eventType, reason string) {
	if m == nil {
		return
	}
	m.EventsDropped.WithLabelValues(eventType, reason).Inc()
}

// Middleware records request count and latency for every route.
func Middleware(m *Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		m.RecordHTTPRequest(c.Request.Method, path, strconv.Itoa(c.Writer.Status()), time.Since(start))
	}
}

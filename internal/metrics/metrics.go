package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the client-side counters for autosave traffic and delivery
// calls. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	AutosaveEnqueued prometheus.Counter
	AutosaveReplaced prometheus.Counter
	AutosaveSent     prometheus.Counter
	AutosaveFailed   prometheus.Counter
	AutosaveDropped  prometheus.Counter

	RequestCounter  *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Server-side counters, populated by the devserver.
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec
}

// New creates a Metrics set registered on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		AutosaveEnqueued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mathdrill_autosave_enqueued_total",
			Help: "Autosave tasks accepted by the queue",
		}),
		AutosaveReplaced: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mathdrill_autosave_replaced_total",
			Help: "Pending autosave tasks superseded by a newer value for the same field",
		}),
		AutosaveSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mathdrill_autosave_sent_total",
			Help: "Autosave tasks acknowledged by the server",
		}),
		AutosaveFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mathdrill_autosave_failed_total",
			Help: "Autosave tasks discarded after exhausting their attempts",
		}),
		AutosaveDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mathdrill_autosave_dropped_total",
			Help: "Autosave tasks dropped because their page was already submitted",
		}),
		RequestCounter: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mathdrill_delivery_requests_total",
				Help: "Delivery API calls by operation and outcome",
			},
			[]string{"op", "outcome"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mathdrill_delivery_request_duration_seconds",
				Help:    "Duration of delivery API calls",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"op"},
		),
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mathdrill_devserver_http_requests_total",
				Help: "HTTP requests served by the devserver",
			},
			[]string{"method", "endpoint", "status"},
		),
		HTTPDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mathdrill_devserver_http_request_duration_seconds",
				Help:    "Duration of HTTP requests served by the devserver",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
			},
			[]string{"method", "endpoint"},
		),
	}

	m.registry.MustRegister(
		m.AutosaveEnqueued,
		m.AutosaveReplaced,
		m.AutosaveSent,
		m.AutosaveFailed,
		m.AutosaveDropped,
		m.RequestCounter,
		m.RequestDuration,
		m.HTTPRequests,
		m.HTTPDuration,
	)
	return m
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveRequest records one delivery call.
func (m *Metrics) ObserveRequest(op string, d time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.RequestCounter.WithLabelValues(op, outcome).Inc()
	m.RequestDuration.WithLabelValues(op).Observe(d.Seconds())
}

// ObserveHTTP records one request served by the devserver.
func (m *Metrics) ObserveHTTP(method, endpoint string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, endpoint, strconv.Itoa(status)).Inc()
	m.HTTPDuration.WithLabelValues(method, endpoint).Observe(d.Seconds())
}

func (m *Metrics) IncEnqueued() {
	if m != nil {
		m.AutosaveEnqueued.Inc()
	}
}

func (m *Metrics) IncReplaced() {
	if m != nil {
		m.AutosaveReplaced.Inc()
	}
}

func (m *Metrics) IncSent() {
	if m != nil {
		m.AutosaveSent.Inc()
	}
}

func (m *Metrics) IncFailed() {
	if m != nil {
		m.AutosaveFailed.Inc()
	}
}

func (m *Metrics) IncDropped() {
	if m != nil {
		m.AutosaveDropped.Inc()
	}
}

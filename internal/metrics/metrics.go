package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus counters and gauges for the acquisition loop and
// the HTTP surface. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry        *prometheus.Registry
	framesPublished prometheus.Counter
	framesDropped   prometheus.Counter
	readMisses      prometheus.Counter
	reconnects      prometheus.Counter
	openFailures    prometheus.Counter
	facesDetected   prometheus.Counter
	sinkDrops       *prometheus.CounterVec
	viewers         prometheus.Gauge
	requestsTotal   prometheus.Counter
	errorsTotal     prometheus.Counter
}

// New creates and registers Prometheus metrics on a private registry
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		framesPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "camwatch_frames_published_total",
			Help: "Total number of frames handed to the broadcaster",
		}),
		framesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "camwatch_frames_dropped_total",
			Help: "Total number of frames dropped because they could not be encoded",
		}),
		readMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "camwatch_read_misses_total",
			Help: "Total number of reads that returned no frame without breaking the connection",
		}),
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "camwatch_reconnects_total",
			Help: "Total number of connections torn down because the source broke",
		}),
		openFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "camwatch_open_failures_total",
			Help: "Total number of failed attempts to open a source",
		}),
		facesDetected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "camwatch_faces_detected_total",
			Help: "Total number of detections across all published frames",
		}),
		sinkDrops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "camwatch_sink_drops_total",
			Help: "Messages a sink discarded because its consumer was busy",
		}, []string{"sink"}),
		viewers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "camwatch_viewers",
			Help: "Number of connected websocket viewers",
		}),
		requestsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "camwatch_http_requests_total",
			Help: "Total number of HTTP requests received",
		}),
		errorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "camwatch_http_errors_total",
			Help: "Total number of HTTP responses with error status (4xx or 5xx)",
		}),
	}

	registry.MustRegister(
		m.framesPublished,
		m.framesDropped,
		m.readMisses,
		m.reconnects,
		m.openFailures,
		m.facesDetected,
		m.sinkDrops,
		m.viewers,
		m.requestsTotal,
		m.errorsTotal,
	)

	return m
}

// IncFramesPublished records one published frame and its detections
func (m *Metrics) IncFramesPublished(faces int) {
	if m == nil {
		return
	}
	m.framesPublished.Inc()
	m.facesDetected.Add(float64(faces))
}

// IncFramesDropped increments the dropped frame counter
func (m *Metrics) IncFramesDropped() {
	if m == nil {
		return
	}
	m.framesDropped.Inc()
}

// IncReadMisses increments the transient read miss counter
func (m *Metrics) IncReadMisses() {
	if m == nil {
		return
	}
	m.readMisses.Inc()
}

// IncReconnects increments the broken connection counter
func (m *Metrics) IncReconnects() {
	if m == nil {
		return
	}
	m.reconnects.Inc()
}

// IncOpenFailures increments the failed open counter
func (m *Metrics) IncOpenFailures() {
	if m == nil {
		return
	}
	m.openFailures.Inc()
}

// IncSinkDrops records a message discarded by the named sink
func (m *Metrics) IncSinkDrops(sink string) {
	if m == nil {
		return
	}
	m.sinkDrops.WithLabelValues(sink).Inc()
}

// SetViewers sets the connected viewers gauge
func (m *Metrics) SetViewers(n int) {
	if m == nil {
		return
	}
	m.viewers.Set(float64(n))
}

// IncRequests increments the total request counter
func (m *Metrics) IncRequests() {
	if m == nil {
		return
	}
	m.requestsTotal.Inc()
}

// IncErrors increments the errors counter
func (m *Metrics) IncErrors() {
	if m == nil {
		return
	}
	m.errorsTotal.Inc()
}

// Registry exposes the underlying registry for tests and extra collectors
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an http.Handler that serves Prometheus metrics.
// updateGauges is called before each scrape to refresh gauge values.
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	h := promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		h.ServeHTTP(w, r)
	})
}

package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "titlegen"

// Metrics collects counters for title generation. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	registry    *prometheus.Registry
	generations *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	inFlight    prometheus.Gauge
}

func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		generations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generations_total",
			Help:      "Documents processed, by result and failure kind.",
		}, []string{"result", "kind"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "generation_duration_seconds",
			Help:      "Time spent titling a single document.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"result"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "documents_in_flight",
			Help:      "Documents currently being titled. Never above 1.",
		}),
	}

	registry.MustRegister(
		m.generations,
		m.duration,
		m.inFlight,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

func (m *Metrics) Started() {
	if m == nil {
		return
	}
	m.inFlight.Inc()
}

func (m *Metrics) Succeeded(d time.Duration) {
	if m == nil {
		return
	}
	m.inFlight.Dec()
	m.generations.WithLabelValues("success", "").Inc()
	m.duration.WithLabelValues("success").Observe(d.Seconds())
}

func (m *Metrics) Failed(kind string, d time.Duration) {
	if m == nil {
		return
	}
	m.inFlight.Dec()
	m.generations.WithLabelValues("failure", kind).Inc()
	m.duration.WithLabelValues("failure").Observe(d.Seconds())
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Package metrics exposes Prometheus instruments for document persistence
// and editor sessions. A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "ucdcanvas"

// Load outcomes.
const (
	LoadFound     = "found"
	LoadAbsent    = "absent"
	LoadMalformed = "malformed"
	LoadError     = "error"
)

// Metrics holds the service instruments on a private registry.
type Metrics struct {
	reg *prometheus.Registry

	saves        *prometheus.CounterVec
	saveDuration prometheus.Histogram
	loads        *prometheus.CounterVec
	sessions     prometheus.Gauge
	gestures     *prometheus.CounterVec
}

// New registers the instruments plus Go and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)
	return &Metrics{
		reg: reg,
		saves: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "document_saves_total",
			Help:      "Document saves by result.",
		}, []string{"result"}),
		saveDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "document_save_duration_seconds",
			Help:      "Time spent writing a document snapshot.",
			Buckets:   prometheus.DefBuckets,
		}),
		loads: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "document_loads_total",
			Help:      "Document loads by outcome.",
		}, []string{"outcome"}),
		sessions: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "editor_sessions_open",
			Help:      "Editor sessions currently held in memory.",
		}),
		gestures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gestures_total",
			Help:      "Canvas gestures applied, by kind.",
		}, []string{"kind"}),
	}
}

// ObserveSave records one save attempt.
func (m *Metrics) ObserveSave(d time.Duration, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.saves.WithLabelValues(result).Inc()
	m.saveDuration.Observe(d.Seconds())
}

// ObserveLoad records one load outcome.
func (m *Metrics) ObserveLoad(outcome string) {
	if m == nil {
		return
	}
	m.loads.WithLabelValues(outcome).Inc()
}

// SessionOpened increments the open-session gauge.
func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.sessions.Inc()
}

// SessionClosed decrements the open-session gauge.
func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.sessions.Dec()
}

// Gesture counts one applied gesture.
func (m *Metrics) Gesture(kind string) {
	if m == nil {
		return
	}
	m.gestures.WithLabelValues(kind).Inc()
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

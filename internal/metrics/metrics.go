// Package metrics exposes prometheus collectors for discovery and aggregation.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "timelinewatch"

// Metrics owns a private registry so several instances can coexist in tests.
type Metrics struct {
	registry *prometheus.Registry

	scanCycles       prometheus.Counter
	candidates       prometheus.Counter
	emitted          prometheus.Counter
	duplicates       *prometheus.CounterVec // kind: id, content
	extractionErrors prometheus.Counter
	transportErrors  *prometheus.CounterVec // channel
	ingested         *prometheus.CounterVec // outcome
	windowCount      *prometheus.GaugeVec   // window
	windowTrend      *prometheus.GaugeVec   // window
	sessionPhase     *prometheus.GaugeVec   // phase
}

// New registers all collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		scanCycles: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scan_cycles_total",
			Help:      "Total scan cycles run by discovery sessions",
		}),
		candidates: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "candidates_total",
			Help:      "Total candidate nodes inspected",
		}),
		emitted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "posts_emitted_total",
			Help:      "Total newly discovered posts handed to the emitter",
		}),
		duplicates: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "duplicates_total",
			Help:      "Candidates suppressed by the dedup cache",
		}, []string{"kind"}),
		extractionErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "extraction_errors_total",
			Help:      "Candidates skipped because extraction failed",
		}),
		transportErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transport_errors_total",
			Help:      "Failed deliveries per transport channel",
		}, []string{"channel"}),
		ingested: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "aggregator_ingested_total",
			Help:      "Records offered to the stats aggregator by outcome",
		}, []string{"outcome"}),
		windowCount: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "window_posts",
			Help:      "Posts counted in each trailing window",
		}, []string{"window"}),
		windowTrend: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "window_trend_percent",
			Help:      "Last sampled trend percentage per window",
		}, []string{"window"}),
		sessionPhase: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "session_phase",
			Help:      "1 for the phase the discovery session is currently in",
		}, []string{"phase"}),
	}
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ScanCycle(candidates, emitted int) {
	if m == nil {
		return
	}
	m.scanCycles.Inc()
	m.candidates.Add(float64(candidates))
	m.emitted.Add(float64(emitted))
}

func (m *Metrics) Duplicate(kind string) {
	if m == nil {
		return
	}
	m.duplicates.WithLabelValues(kind).Inc()
}

func (m *Metrics) ExtractionError() {
	if m == nil {
		return
	}
	m.extractionErrors.Inc()
}

func (m *Metrics) TransportError(channel string) {
	if m == nil {
		return
	}
	m.transportErrors.WithLabelValues(channel).Inc()
}

func (m *Metrics) Ingest(outcome string) {
	if m == nil {
		return
	}
	m.ingested.WithLabelValues(outcome).Inc()
}

// Window records the latest count and trend of one window.
func (m *Metrics) Window(key string, count, trendPercent int) {
	if m == nil {
		return
	}
	m.windowCount.WithLabelValues(key).Set(float64(count))
	m.windowTrend.WithLabelValues(key).Set(float64(trendPercent))
}

// Phase marks current as the active session phase among all known phases.
func (m *Metrics) Phase(current string, all []string) {
	if m == nil {
		return
	}
	for _, p := range all {
		v := 0.0
		if p == current {
			v = 1
		}
		m.sessionPhase.WithLabelValues(p).Set(v)
	}
}

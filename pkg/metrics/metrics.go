// Package metrics exposes Prometheus collectors for extraction and proxying.
package metrics

import (
	"net/http"
	"time"

	"media-resolver-go/pkg/types"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "media_resolver"

// Metrics owns a private registry so tests and multiple servers never
// collide on the global one.
type Metrics struct {
	registry      *prometheus.Registry
	extractions   *prometheus.CounterVec
	proxyResponse *prometheus.CounterVec
	sniffMismatch *prometheus.CounterVec
	upstreamFetch *prometheus.HistogramVec
	sourceLookups *prometheus.CounterVec
}

// New creates and registers all collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		extractions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "extractions_total",
			Help:      "Extraction attempts by extractor and outcome.",
		}, []string{"server", "outcome"}),
		proxyResponse: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "proxy_responses_total",
			Help:      "Proxied responses by branch and resolved format.",
		}, []string{"branch", "format"}),
		sniffMismatch: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sniff_mismatch_total",
			Help:      "Disagreements between sniffed bytes and declared type or extension.",
		}, []string{"kind"}),
		upstreamFetch: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upstream_fetch_seconds",
			Help:      "Latency of proxied upstream fetches.",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2, 4, 8},
		}, []string{"outcome"}),
		sourceLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_lookups_total",
			Help:      "Episode source lookups by provider and outcome.",
		}, []string{"provider", "outcome"}),
	}

	m.registry.MustRegister(
		m.extractions,
		m.proxyResponse,
		m.sniffMismatch,
		m.upstreamFetch,
		m.sourceLookups,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the exposition format for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveExtraction counts one extraction result.
func (m *Metrics) ObserveExtraction(result *types.ExtractionResult) {
	outcome := "success"
	if !result.Success {
		outcome = result.Kind
		if outcome == "" {
			outcome = "unknown"
		}
	}
	m.extractions.WithLabelValues(result.Server, outcome).Inc()
}

// ObserveFetch records an upstream fetch duration.
func (m *Metrics) ObserveFetch(d time.Duration, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.upstreamFetch.WithLabelValues(outcome).Observe(d.Seconds())
}

// ObserveResponse counts a proxied response.
func (m *Metrics) ObserveResponse(branch, format string) {
	m.proxyResponse.WithLabelValues(branch, format).Inc()
}

// ObserveMismatch counts a sniffing disagreement.
func (m *Metrics) ObserveMismatch(kind string) {
	m.sniffMismatch.WithLabelValues(kind).Inc()
}

// ObserveSourceLookup counts an orchestration outcome.
func (m *Metrics) ObserveSourceLookup(provider string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = types.ErrorKind(err)
	}
	m.sourceLookups.WithLabelValues(provider, outcome).Inc()
}

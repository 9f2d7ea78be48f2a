// Package metrics holds the Prometheus collectors of a cmsmirror process.
// Every method is safe to call on a nil *Metrics, so packages can take an
// optional *Metrics without guarding each call.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "cmsmirror"

type Metrics struct {
	registry *prometheus.Registry

	SyncRunsTotal    *prometheus.CounterVec
	SyncDuration     prometheus.Histogram
	SyncItems        prometheus.Gauge
	SearchTotal      *prometheus.CounterVec
	SearchDuration   *prometheus.HistogramVec
	HTTPRequestTotal *prometheus.CounterVec
}

// New creates the collectors and registers them, along with the Go runtime
// and process collectors, on a private registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		SyncRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sync_runs_total",
				Help:      "Sync runs by outcome",
			},
			[]string{"status"},
		),
		SyncDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "sync_duration_seconds",
				Help:      "Duration of successful sync runs",
				Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
			},
		),
		SyncItems: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "sync_items",
				Help:      "Items stored by the last successful sync",
			},
		),
		SearchTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "search_requests_total",
				Help:      "Search queries by mode and outcome",
			},
			[]string{"mode", "status"},
		),
		SearchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "search_duration_seconds",
				Help:      "Search query duration",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"mode"},
		),
		HTTPRequestTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "HTTP requests by route and status code",
			},
			[]string{"route", "status"},
		),
	}

	registry.MustRegister(
		m.SyncRunsTotal,
		m.SyncDuration,
		m.SyncItems,
		m.SearchTotal,
		m.SearchDuration,
		m.HTTPRequestTotal,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) ObserveSync(status string, d time.Duration, items int) {
	if m == nil {
		return
	}
	m.SyncRunsTotal.WithLabelValues(status).Inc()
	if status == "success" {
		m.SyncDuration.Observe(d.Seconds())
		m.SyncItems.Set(float64(items))
	}
}

func (m *Metrics) ObserveSearch(mode, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.SearchTotal.WithLabelValues(mode, status).Inc()
	m.SearchDuration.WithLabelValues(mode).Observe(d.Seconds())
}

func (m *Metrics) ObserveHTTP(route string, status int) {
	if m == nil {
		return
	}
	m.HTTPRequestTotal.WithLabelValues(route, strconv.Itoa(status)).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

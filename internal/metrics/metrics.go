/*
 * MIT License
 *
 * Copyright (c) 2026 the beprox authors
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

// Package metrics owns the process-wide Prometheus registry and the
// collectors the pipeline subsystems report into: cache hit/miss and
// occupancy, session counts and purges, istream error counts by kind,
// and ALPN probe state transitions.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	CacheHits   *prometheus.CounterVec // label: cache
	CacheMisses *prometheus.CounterVec // label: cache
	CacheSize   *prometheus.GaugeVec   // label: cache
	CacheItems  *prometheus.GaugeVec   // label: cache

	Sessions       prometheus.Gauge
	SessionPurges  prometheus.Counter
	SessionDefrags prometheus.Counter

	IstreamErrors *prometheus.CounterVec // label: kind

	ProbeResults *prometheus.CounterVec // label: protocol ("h1", "h2", "error")

	RequestDuration *prometheus.HistogramVec // label: backend
}

// New builds a Metrics with its own registry, pre-registering every
// collector plus the standard Go runtime and process collectors.
func New(namespace string) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		CacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "cache_hits_total",
			Help: "Cache lookups that returned a valid item.",
		}, []string{"cache"}),
		CacheMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "cache_misses_total",
			Help: "Cache lookups that found nothing valid.",
		}, []string{"cache"}),
		CacheSize: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "cache_size_bytes",
			Help: "Total byte size currently accounted to the cache.",
		}, []string{"cache"}),
		CacheItems: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "cache_items",
			Help: "Number of items currently stored.",
		}, []string{"cache"}),

		Sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "sessions",
			Help: "Sessions currently alive in shared memory.",
		}),
		SessionPurges: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "session_purges_total",
			Help: "Sessions deleted by the memory-pressure purge.",
		}),
		SessionDefrags: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "session_defrags_total",
			Help: "Sessions rebuilt into a fresh dpool.",
		}),

		IstreamErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "istream_errors_total",
			Help: "Istream pipeline errors by taxonomy kind.",
		}, []string{"kind"}),

		ProbeResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "alpn_probe_results_total",
			Help: "Outcomes of per-origin ALPN protocol probes.",
		}, []string{"protocol"}),

		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "request_duration_seconds",
			Help:    "Resource-loader request duration by backend kind.",
			Buckets: []float64{0.1, 0.3, 1.2, 5, 10},
		}, []string{"backend"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.CacheHits, m.CacheMisses, m.CacheSize, m.CacheItems,
		m.Sessions, m.SessionPurges, m.SessionDefrags,
		m.IstreamErrors, m.ProbeResults, m.RequestDuration,
	)

	return m
}

// Registry exposes the underlying registry for additional collectors.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler returns the scrape endpoint handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

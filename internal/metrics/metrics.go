// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "audiofinder"

// Manager owns the registry and every collector the application exposes.
type Manager struct {
	registry *prometheus.Registry

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec

	imports        *prometheus.CounterVec
	importDuration *prometheus.HistogramVec
	importedFiles  *prometheus.CounterVec

	verifications *prometheus.CounterVec

	coverAttempts prometheus.Counter
	coverResults  *prometheus.CounterVec
}

func NewManager() *Manager {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Manager{
		registry: reg,
		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status",
		}, []string{"method", "route", "status"}),
		httpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by method and route",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		imports: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "imports_total",
			Help:      "Import executions by transfer mode and outcome",
		}, []string{"mode", "outcome"}),
		importDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "import_duration_seconds",
			Help:      "Import execution time by transfer mode",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900},
		}, []string{"mode"}),
		importedFiles: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "imported_files_total",
			Help:      "Files placed in the library by how they were transferred",
		}, []string{"kind"}),
		verifications: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "verifications_total",
			Help:      "Library verification outcomes by status",
		}, []string{"status"}),
		coverAttempts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cover_fetch_attempts_total",
			Help:      "Individual cover lookup attempts including retries",
		}),
		coverResults: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cover_fetch_results_total",
			Help:      "Cover fetch results by outcome",
		}, []string{"outcome"}),
	}
}

func (m *Manager) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Manager) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Manager) ObserveImport(mode, outcome string, elapsed time.Duration, copied, linked int) {
	m.imports.WithLabelValues(mode, outcome).Inc()
	m.importDuration.WithLabelValues(mode).Observe(elapsed.Seconds())
	if copied > 0 {
		m.importedFiles.WithLabelValues("copied").Add(float64(copied))
	}
	if linked > 0 {
		m.importedFiles.WithLabelValues("linked").Add(float64(linked))
	}
}

func (m *Manager) ObserveVerification(status string) {
	m.verifications.WithLabelValues(status).Inc()
}

func (m *Manager) ObserveCoverAttempt() {
	m.coverAttempts.Inc()
}

func (m *Manager) ObserveCoverResult(outcome string) {
	m.coverResults.WithLabelValues(outcome).Inc()
}

// Middleware records request counts and latency labelled by chi route pattern,
// keeping path parameters out of the label set.
func (m *Manager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		m.httpRequests.WithLabelValues(r.Method, route, strconv.Itoa(rw.status)).Inc()
		m.httpDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

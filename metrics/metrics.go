// Package metrics exposes Prometheus counters for the media layer and a
// standalone metrics HTTP server.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the media layer's counters.
type Metrics struct {
	registry *prometheus.Registry

	// ResolvesTotal counts resolve calls by serving backend and outcome
	// (redirect, stream, miss).
	ResolvesTotal *prometheus.CounterVec

	// UploadsTotal and UploadFailures count ingestion calls.
	UploadsTotal   prometheus.Counter
	UploadFailures prometheus.Counter

	// MigrationsTotal counts per-file migration outcomes
	// (copied, already_present, skipped, conflict, failed).
	MigrationsTotal *prometheus.CounterVec

	// MigratedBytes counts payload bytes copied to the object store.
	MigratedBytes prometheus.Counter
}

// New creates a registry with the media counters and Go runtime collectors.
func New(namespace string) *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: registry,
		ResolvesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resolves_total",
			Help:      "Resolve calls by serving backend and outcome.",
		}, []string{"backend", "outcome"}),
		UploadsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uploads_total",
			Help:      "Successful media ingestions.",
		}),
		UploadFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upload_failures_total",
			Help:      "Failed media ingestions.",
		}),
		MigrationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "migrations_total",
			Help:      "Per-file migration outcomes.",
		}, []string{"outcome"}),
		MigratedBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "migrated_bytes_total",
			Help:      "Payload bytes copied to the object store.",
		}),
	}
	registry.MustRegister(m.ResolvesTotal, m.UploadsTotal, m.UploadFailures,
		m.MigrationsTotal, m.MigratedBytes)
	return m
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// MetricsServer serves metrics on its own listen address.
type MetricsServer struct {
	srv *http.Server
}

// NewServer creates a metrics server for the given metrics on addr.
func NewServer(m *Metrics, addr string) *MetricsServer {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	return &MetricsServer{
		srv: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
	}
}

// ListenAndServe blocks serving metrics.
func (s *MetricsServer) ListenAndServe() error {
	return s.srv.ListenAndServe()
}

// Shutdown gracefully stops the metrics server.
func (s *MetricsServer) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

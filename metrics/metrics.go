// Package metrics exposes Prometheus instrumentation for the mesh
// verification pipeline and a standalone metrics HTTP server.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the collectors shared by the mesh node components.
type Metrics struct {
	PeersDiscovered     prometheus.Counter
	PeersExpired        prometheus.Counter
	ConnectionsOpened   prometheus.Counter
	ConnectionsFailed   prometheus.Counter
	ComparisonsServed   prometheus.Counter
	ReportsCollected    prometheus.Counter
	ReportsRejected     prometheus.Counter
	OutliersFlagged     prometheus.Counter
	AggregationDuration prometheus.Histogram
}

// New registers the mesh collectors under the given namespace on a fresh
// registry and returns both.
func New(namespace string) (*Metrics, *prometheus.Registry) {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	m := &Metrics{
		PeersDiscovered: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "peers_discovered_total",
			Help:      "Peers inserted or refreshed in the registry by discovery loops.",
		}),
		PeersExpired: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "peers_expired_total",
			Help:      "Peers pruned from the registry after the staleness window.",
		}),
		ConnectionsOpened: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_opened_total",
			Help:      "Successful peer key exchanges.",
		}),
		ConnectionsFailed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_failed_total",
			Help:      "Peer connections that failed during handshake.",
		}),
		ComparisonsServed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "comparisons_served_total",
			Help:      "Comparison requests answered for remote peers.",
		}),
		ReportsCollected: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reports_collected_total",
			Help:      "Peer reports collected by the comparison coordinator.",
		}),
		ReportsRejected: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reports_rejected_total",
			Help:      "Peer reports dropped for failed signature verification.",
		}),
		OutliersFlagged: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outliers_flagged_total",
			Help:      "Reports excluded from aggregation as statistical outliers.",
		}),
		AggregationDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "aggregation_duration_seconds",
			Help:      "Wall time of one confidence aggregation run.",
			Buckets:   prometheus.DefBuckets,
		}),
	}

	return m, reg
}

// MetricsServer serves the Prometheus scrape endpoint.
type MetricsServer struct {
	srv *http.Server
}

// NewServer creates a metrics server for the given registry on addr.
func NewServer(reg *prometheus.Registry, addr string) *MetricsServer {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	return &MetricsServer{
		srv: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
	}
}

// ListenAndServe starts serving the scrape endpoint.
func (m *MetricsServer) ListenAndServe() error {
	return m.srv.ListenAndServe()
}

// Shutdown gracefully stops the metrics server.
func (m *MetricsServer) Shutdown(ctx context.Context) error {
	return m.srv.Shutdown(ctx)
}

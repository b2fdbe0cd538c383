// Package metrics provides Prometheus instrumentation for the shuffle
// engine.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ArchivesSent counts archives handed to the transport, by worker.
	ArchivesSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shuffle_archives_sent_total",
		Help: "Total number of archives sent by worker",
	}, []string{"worker_id"})

	// ArchivesReceived counts archives pulled off the transport, by worker.
	ArchivesReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shuffle_archives_received_total",
		Help: "Total number of archives received by worker",
	}, []string{"worker_id"})

	// RowsRouted counts rows routed to each destination worker, whether over
	// the wire or via loopback.
	RowsRouted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shuffle_rows_routed_total",
		Help: "Total number of rows routed to a destination worker",
	}, []string{"worker_id", "destination_id"})

	// SchemaCheckFailures counts schema consistency check failures, by
	// worker and reason.
	SchemaCheckFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shuffle_schema_check_failures_total",
		Help: "Total number of schema consistency check failures",
	}, []string{"worker_id", "reason"})

	// ShuffleLatency tracks end-to-end latency of one Shuffle call.
	ShuffleLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "shuffle_round_latency_seconds",
		Help:    "Latency of one shuffle round in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0},
	}, []string{"worker_id"})
)

// ServeMetrics starts an HTTP server on the given address to serve
// Prometheus metrics at /metrics.
func ServeMetrics(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	go server.ListenAndServe()
	return server
}

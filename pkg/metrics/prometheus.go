// Package metrics provides Prometheus instrumentation for the chronon
// runtime.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// BatchesReceived counts batches handed to a binary operator, per side.
	BatchesReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chronon_batches_received_total",
		Help: "Total number of input batches received by operator and side",
	}, []string{"operator_id", "side"})

	// BatchesEmitted counts batches sent downstream, split by whether the
	// whole-batch fast path forwarded them or they were filled row by row.
	BatchesEmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chronon_batches_emitted_total",
		Help: "Total number of batches emitted downstream by operator and path",
	}, []string{"operator_id", "path"})

	// RowsMerged counts rows copied into output batches.
	RowsMerged = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chronon_rows_merged_total",
		Help: "Total number of rows merged into output batches by operator",
	}, []string{"operator_id"})

	// PunctuationsSuppressed counts punctuations dropped as redundant
	// against the watermark.
	PunctuationsSuppressed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chronon_punctuations_suppressed_total",
		Help: "Total number of redundant punctuations suppressed by operator",
	}, []string{"operator_id"})

	// Errors counts errors by operator.
	Errors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chronon_errors_total",
		Help: "Total number of errors by operator",
	}, []string{"operator_id"})

	// MergeLatency tracks per-call merge latency.
	MergeLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "chronon_merge_latency_seconds",
		Help:    "Latency of merge calls in seconds",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
	}, []string{"operator_id"})
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

// Package metrics exposes observability for the relayer, grounded on the
// teacher's metrics.ChainMetrics interface shape (RPC call counts/latency,
// per-flow success tracking) but backed by the real
// github.com/prometheus/client_golang library instead of the teacher's
// hand-rolled text exporter.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics is the process-wide Prometheus registry and the gauges/counters
// every component records against.
type Metrics struct {
	Registry *prometheus.Registry

	rpcCalls       *prometheus.CounterVec
	rpcDuration    *prometheus.HistogramVec
	relayOutcomes  *prometheus.CounterVec
	dedupIndexSize prometheus.Gauge
}

// New constructs a Metrics instance and registers every collector against a
// fresh registry (never the global default, so tests can construct isolated
// instances — teacher precedent: dependencies are threaded explicitly, never
// global singletons).
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		Registry: registry,
		rpcCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relayer_rpc_calls_total",
			Help: "Total RPC calls made by chain and method, labeled by outcome.",
		}, []string{"chain", "method", "outcome"}),
		rpcDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "relayer_rpc_call_duration_seconds",
			Help:    "RPC call latency by chain and method.",
			Buckets: prometheus.DefBuckets,
		}, []string{"chain", "method"}),
		relayOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relayer_relay_outcomes_total",
			Help: "Relay outcomes by flow (buy/sell) and outcome (confirmed, failed, duplicate, error).",
		}, []string{"flow", "status"}),
		dedupIndexSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "relayer_dedup_index_size",
			Help: "Number of hashes currently tracked by the in-memory DedupIndex.",
		}),
	}

	registry.MustRegister(m.rpcCalls, m.rpcDuration, m.relayOutcomes, m.dedupIndexSize)
	return m
}

// RecordRPCCall records one RPC call's outcome and latency.
func (m *Metrics) RecordRPCCall(chain, method string, duration time.Duration, success bool) {
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	m.rpcCalls.WithLabelValues(chain, method, outcome).Inc()
	m.rpcDuration.WithLabelValues(chain, method).Observe(duration.Seconds())
}

// RecordRelayOutcome records a relay outcome: a terminal status, a
// soft-warning duplicate, or a hard submission error.
func (m *Metrics) RecordRelayOutcome(flow, status string) {
	m.relayOutcomes.WithLabelValues(flow, status).Inc()
}

// SetDedupIndexSize publishes the current DedupIndex.Size().
func (m *Metrics) SetDedupIndexSize(size int) {
	m.dedupIndexSize.Set(float64(size))
}

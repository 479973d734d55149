// Package metrics holds the Prometheus collectors shared by the RPC client
// and the cleanup engines.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "odoosweep"

type Metrics struct {
	registry      prometheus.Registerer
	rpcCalls      *prometheus.CounterVec
	rpcRetries    *prometheus.CounterVec
	rpcDuration   *prometheus.HistogramVec
	records       *prometheus.CounterVec
	runs          *prometheus.CounterVec
	runDuration   *prometheus.HistogramVec
	lastRunResult *prometheus.GaugeVec
}

func New(namespace string, reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = DefaultNamespace
	}

	m := &Metrics{
		registry: reg,
		rpcCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rpc_calls_total",
				Help:      "Remote procedure calls by outcome",
			},
			[]string{"instance", "service", "method", "outcome"},
		),
		rpcRetries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rpc_retries_total",
				Help:      "Retried remote procedure call attempts",
			},
			[]string{"instance", "method"},
		),
		rpcDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "rpc_call_duration_seconds",
				Help:      "Duration of remote procedure calls including retries",
				Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"instance", "service"},
		),
		records: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cleanup_records_total",
				Help:      "Records located by cleanup steps",
			},
			[]string{"instance", "engine", "collection", "status", "simulation"},
		),
		runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cleanup_runs_total",
				Help:      "Cleanup runs by result",
			},
			[]string{"instance", "engine", "result"},
		),
		runDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "cleanup_run_duration_seconds",
				Help:      "Duration of cleanup runs",
				Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
			},
			[]string{"instance", "engine"},
		),
		lastRunResult: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "cleanup_last_run_success",
				Help:      "1 if the last run of an engine succeeded, 0 otherwise",
			},
			[]string{"instance", "engine"},
		),
	}

	reg.MustRegister(
		m.rpcCalls,
		m.rpcRetries,
		m.rpcDuration,
		m.records,
		m.runs,
		m.runDuration,
		m.lastRunResult,
	)

	return m
}

// Methods are nil-safe so components can run without metrics.

func (m *Metrics) RecordCall(instance, service, method, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.rpcCalls.WithLabelValues(instance, service, method, outcome).Inc()
	m.rpcDuration.WithLabelValues(instance, service).Observe(duration.Seconds())
}

func (m *Metrics) RecordRetry(instance, method string) {
	if m == nil {
		return
	}
	m.rpcRetries.WithLabelValues(instance, method).Inc()
}

func (m *Metrics) RecordStep(instance, engine, collection, status string, simulation bool, affected int) {
	if m == nil {
		return
	}
	sim := "false"
	if simulation {
		sim = "true"
	}
	m.records.WithLabelValues(instance, engine, collection, status, sim).Add(float64(affected))
}

func (m *Metrics) RecordRun(instance, engine string, success bool, duration time.Duration) {
	if m == nil {
		return
	}
	result, value := "failure", 0.0
	if success {
		result, value = "success", 1.0
	}
	m.runs.WithLabelValues(instance, engine, result).Inc()
	m.runDuration.WithLabelValues(instance, engine).Observe(duration.Seconds())
	m.lastRunResult.WithLabelValues(instance, engine).Set(value)
}

// Package metrics records RPC, account and migration activity. Counters are
// kept both as cheap atomics (for snapshots in CLI output and tests) and as
// prometheus collectors served by `kinmigrate metrics serve`.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "kinmigrate"

// Result label values.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

// Metrics holds the process metrics.
type Metrics struct {
	rpcCallsTotal   atomic.Int64
	rpcErrorsTotal  atomic.Int64
	rpcLatencyNanos atomic.Int64

	accountOpsTotal  atomic.Int64
	accountOpsErrors atomic.Int64

	migrationsTotal  atomic.Int64
	migrationsFailed atomic.Int64

	registry          *prometheus.Registry
	rpcRequests       *prometheus.CounterVec
	rpcDuration       *prometheus.HistogramVec
	accountOps        *prometheus.CounterVec
	migrationSteps    *prometheus.CounterVec
	migrationOutcomes *prometheus.CounterVec
}

// Global is the process-wide metrics instance.
//
//nolint:gochecknoglobals // Intentional global for metrics access
var Global = New()

// New returns a Metrics with its own prometheus registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		rpcRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rpc_requests_total",
			Help:      "Horizon and migration service HTTP requests by host and status class.",
		}, []string{"host", "status"}),
		rpcDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "rpc_request_duration_seconds",
			Help:      "HTTP request latency by host.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"host"}),
		accountOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "account_operations_total",
			Help:      "Account operations by blockchain version, operation and result.",
		}, []string{"version", "op", "result"}),
		migrationSteps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "migration_steps_total",
			Help:      "Migration sub-steps by step and event.",
		}, []string{"step", "event"}),
		migrationOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "migration_outcomes_total",
			Help:      "Terminal migration outcomes by result and reason.",
		}, []string{"result", "reason"}),
	}
	m.registry.MustRegister(m.rpcRequests, m.rpcDuration, m.accountOps, m.migrationSteps, m.migrationOutcomes)
	return m
}

// Registry returns the prometheus registry holding the collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an HTTP handler exposing the collectors.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// TrackAccounts exports the keystore size of version as a gauge read at
// scrape time. Counting failures report -1.
func (m *Metrics) TrackAccounts(version string, count func() (int, error)) error {
	return m.registry.Register(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace:   namespace,
		Name:        "keystore_accounts",
		Help:        "Accounts in the keystore by blockchain version.",
		ConstLabels: prometheus.Labels{"version": version},
	}, func() float64 {
		n, err := count()
		if err != nil {
			return -1
		}
		return float64(n)
	}))
}

// RecordRPCCall records one HTTP round trip. status is the response code,
// or 0 when the request failed before a response arrived.
func (m *Metrics) RecordRPCCall(host string, status int, duration time.Duration, err error) {
	m.rpcCallsTotal.Add(1)
	m.rpcLatencyNanos.Add(duration.Nanoseconds())
	if err != nil || status >= http.StatusInternalServerError {
		m.rpcErrorsTotal.Add(1)
	}

	m.rpcRequests.WithLabelValues(host, statusClass(status, err)).Inc()
	m.rpcDuration.WithLabelValues(host).Observe(duration.Seconds())
}

func statusClass(status int, err error) string {
	switch {
	case err != nil || status == 0:
		return "error"
	case status < 300:
		return "2xx"
	case status < 400:
		return "3xx"
	case status < 500:
		return "4xx"
	default:
		return "5xx"
	}
}

// RecordAccountOp records an account operation such as "balance" or "send".
func (m *Metrics) RecordAccountOp(version, op string, err error) {
	m.accountOpsTotal.Add(1)
	result := ResultSuccess
	if err != nil {
		m.accountOpsErrors.Add(1)
		result = ResultFailure
	}
	m.accountOps.WithLabelValues(version, op, result).Inc()
}

// RecordMigrationStep records a migration sub-step event
// ("started", "succeeded", "failed").
func (m *Metrics) RecordMigrationStep(step, event string) {
	m.migrationSteps.WithLabelValues(step, event).Inc()
}

// RecordMigrationOutcome records a terminal migration result.
func (m *Metrics) RecordMigrationOutcome(reason string, err error) {
	m.migrationsTotal.Add(1)
	result := ResultSuccess
	if err != nil {
		m.migrationsFailed.Add(1)
		result = ResultFailure
	}
	m.migrationOutcomes.WithLabelValues(result, reason).Inc()
}

// Serve exposes the collectors on addr until ctx is canceled.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx) //nolint:contextcheck // parent is already canceled
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// Snapshot is a point-in-time copy of the atomic counters.
type Snapshot struct {
	RPCCallsTotal    int64 `json:"rpc_calls_total"`
	RPCErrorsTotal   int64 `json:"rpc_errors_total"`
	RPCLatencyNanos  int64 `json:"rpc_latency_nanos"`
	AccountOpsTotal  int64 `json:"account_ops_total"`
	AccountOpsErrors int64 `json:"account_ops_errors"`
	MigrationsTotal  int64 `json:"migrations_total"`
	MigrationsFailed int64 `json:"migrations_failed"`
}

// Snapshot returns the current counter values.
func (m *Metrics) Snapshot() Snapshot {
	return Snapshot{
		RPCCallsTotal:    m.rpcCallsTotal.Load(),
		RPCErrorsTotal:   m.rpcErrorsTotal.Load(),
		RPCLatencyNanos:  m.rpcLatencyNanos.Load(),
		AccountOpsTotal:  m.accountOpsTotal.Load(),
		AccountOpsErrors: m.accountOpsErrors.Load(),
		MigrationsTotal:  m.migrationsTotal.Load(),
		MigrationsFailed: m.migrationsFailed.Load(),
	}
}

// RPCLatencyAvgMs returns the average RPC latency in milliseconds,
// or 0 before the first call.
func (m *Metrics) RPCLatencyAvgMs() float64 {
	calls := m.rpcCallsTotal.Load()
	if calls == 0 {
		return 0
	}
	return float64(m.rpcLatencyNanos.Load()) / float64(calls) / 1e6
}

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SyncMetrics tracks integration runs, adapter retries and queue throughput.
type SyncMetrics struct {
	runs     *prometheus.CounterVec
	duration *prometheus.HistogramVec
	retries  *prometheus.CounterVec
	jobs     *prometheus.CounterVec
	breaker  *prometheus.GaugeVec
}

// NewSyncMetrics registers the sync metrics on the provided registerer.
func NewSyncMetrics(reg prometheus.Registerer) *SyncMetrics {
	if reg == nil {
		return &SyncMetrics{}
	}
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sync_runs_total",
		Help: "Finished sync runs by integration, module and terminal status.",
	}, []string{"integration", "module", "status"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sync_run_duration_seconds",
		Help:    "Duration of sync runs in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"integration", "module"})
	retries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "integration_request_retries_total",
		Help: "Retried outbound integration calls.",
	}, []string{"integration"})
	jobs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "queue_jobs_total",
		Help: "Processed queue jobs by queue and outcome.",
	}, []string{"queue", "outcome"})
	breaker := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "integration_breaker_open",
		Help: "1 while the integration circuit breaker is open.",
	}, []string{"integration"})
	reg.MustRegister(runs, duration, retries, jobs, breaker)
	return &SyncMetrics{
		runs:     runs,
		duration: duration,
		retries:  retries,
		jobs:     jobs,
		breaker:  breaker,
	}
}

// ObserveRun records one finished sync run.
func (m *SyncMetrics) ObserveRun(integration, module, status string, elapsed time.Duration) {
	if m == nil || m.runs == nil {
		return
	}
	m.runs.WithLabelValues(normalizeLabel(integration), normalizeLabel(module), normalizeLabel(status)).Inc()
	m.duration.WithLabelValues(normalizeLabel(integration), normalizeLabel(module)).Observe(elapsed.Seconds())
}

func (m *SyncMetrics) IncRetry(integration string) {
	if m == nil || m.retries == nil {
		return
	}
	m.retries.WithLabelValues(normalizeLabel(integration)).Inc()
}

// IncJob counts a queue job outcome (completed, retried, failed).
func (m *SyncMetrics) IncJob(queue, outcome string) {
	if m == nil || m.jobs == nil {
		return
	}
	m.jobs.WithLabelValues(normalizeLabel(queue), normalizeLabel(outcome)).Inc()
}

func (m *SyncMetrics) SetBreakerOpen(integration string, open bool) {
	if m == nil || m.breaker == nil {
		return
	}
	value := 0.0
	if open {
		value = 1
	}
	m.breaker.WithLabelValues(normalizeLabel(integration)).Set(value)
}

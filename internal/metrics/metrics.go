// Package metrics holds the Prometheus collectors for the voicepipe server.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	namespace = "voicepipe"

	// Labels
	providerLabel = "provider"
	outcomeLabel  = "outcome"
	stageLabel    = "stage"
	statusLabel   = "status"
)

// Metrics groups every collector the pipeline reports to. A nil *Metrics is
// valid and records nothing, so packages can be used without a registry.
type Metrics struct {
	aiAttempts    *prometheus.CounterVec
	aiLatency     *prometheus.HistogramVec
	stageDuration *prometheus.HistogramVec
	jobStatus     *prometheus.CounterVec
	activeJobs    prometheus.Gauge
	rejectedJobs  prometheus.Counter
	storeReconn   *prometheus.CounterVec
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		aiAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ai_call_attempts_total",
			Help:      "AI backend call attempts partitioned by provider and outcome.",
		}, []string{providerLabel, outcomeLabel}),
		aiLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ai_call_duration_seconds",
			Help:      "Duration of single AI backend call attempts.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 40, 60},
		}, []string{providerLabel}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pipeline_stage_duration_seconds",
			Help:      "Time spent in each pipeline stage partitioned by outcome.",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300},
		}, []string{stageLabel, outcomeLabel}),
		jobStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_status_transitions_total",
			Help:      "Persisted job status transitions partitioned by new status.",
		}, []string{statusLabel}),
		activeJobs: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_active_jobs",
			Help:      "Number of pipeline jobs currently holding a concurrency slot.",
		}),
		rejectedJobs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_capacity_rejections_total",
			Help:      "Submissions rejected because every concurrency slot was taken.",
		}),
		storeReconn: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "docstore_reconnects_total",
			Help:      "Document store reconnect attempts partitioned by outcome.",
		}, []string{outcomeLabel}),
	}
	reg.MustRegister(
		m.aiAttempts,
		m.aiLatency,
		m.stageDuration,
		m.jobStatus,
		m.activeJobs,
		m.rejectedJobs,
		m.storeReconn,
	)
	return m
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveAIAttempt(provider, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.aiAttempts.WithLabelValues(provider, outcome).Inc()
	m.aiLatency.WithLabelValues(provider).Observe(d.Seconds())
}

func (m *Metrics) ObserveStage(stage, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage, outcome).Observe(d.Seconds())
}

func (m *Metrics) RecordStatus(status string) {
	if m == nil {
		return
	}
	m.jobStatus.WithLabelValues(status).Inc()
}

func (m *Metrics) SetActiveJobs(n int) {
	if m == nil {
		return
	}
	m.activeJobs.Set(float64(n))
}

func (m *Metrics) IncCapacityRejected() {
	if m == nil {
		return
	}
	m.rejectedJobs.Inc()
}

func (m *Metrics) RecordReconnect(outcome string) {
	if m == nil {
		return
	}
	m.storeReconn.WithLabelValues(outcome).Inc()
}

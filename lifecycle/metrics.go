// Package lifecycle implements the pipeline's lifecycle metrics (C11):
// per-stage durations, counters, and the profit distribution, exported
// through a Prometheus registry and propagated by scan_id so external
// log analysis can trace a flashblock from wire-in to tx-out.
package lifecycle

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Stage names recorded as the "stage" label on StageDuration (§4.C11).
const (
	StageQueueLatency = "queue_latency"
	StageExecution    = "execution"
	StageExport       = "export"
	StageStrategy     = "strategy_analysis"
	StageWorkerTotal  = "worker_total"
	StageOptimizer    = "optimizer"
	StageSimulation   = "simulation"
)

// Metrics bundles every counter, gauge and histogram the pipeline emits.
// One instance is created at startup and threaded through every
// component that needs to record an observation.
type Metrics struct {
	StageDuration      *prometheus.HistogramVec
	FlashblocksIngested prometheus.Counter
	OpportunitiesFound  prometheus.Counter
	OpportunitiesSubmitted prometheus.Counter
	SubmissionErrors    *prometheus.CounterVec
	ObservedProfitWei   prometheus.Histogram
	QueueDepth          prometheus.Gauge
}

// New creates and registers every metric against reg. reg is normally
// prometheus.NewRegistry(), not the global DefaultRegisterer, so tests
// and multiple process instances never collide on metric names.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "mev_searcher",
			Name:      "stage_duration_seconds",
			Help:      "Duration of each pipeline stage.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 16),
		}, []string{"stage"}),
		FlashblocksIngested: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mev_searcher",
			Name:      "flashblocks_ingested_total",
			Help:      "Total flashblock fragments consumed from the websocket feed.",
		}),
		OpportunitiesFound: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mev_searcher",
			Name:      "opportunities_found_total",
			Help:      "Total MevOpportunity records emitted by post-processing.",
		}),
		OpportunitiesSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mev_searcher",
			Name:      "opportunities_submitted_total",
			Help:      "Total opportunities handed to the sequencer above threshold.",
		}),
		SubmissionErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mev_searcher",
			Name:      "submission_errors_total",
			Help:      "Submission failures by classification.",
		}, []string{"reason"}),
		ObservedProfitWei: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "mev_searcher",
			Name:      "observed_profit_wei",
			Help:      "Distribution of observed opportunity profit in wei.",
			Buckets:   prometheus.ExponentialBuckets(1e9, 4, 20),
		}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "mev_searcher",
			Name:      "ingest_queue_depth",
			Help:      "Current depth of the flashblock ingest queue.",
		}),
	}

	reg.MustRegister(
		m.StageDuration,
		m.FlashblocksIngested,
		m.OpportunitiesFound,
		m.OpportunitiesSubmitted,
		m.SubmissionErrors,
		m.ObservedProfitWei,
		m.QueueDepth,
	)
	return m
}

// Timer records elapsed wall-clock time for a single stage observation
// when Stop is called.
type Timer struct {
	stage   string
	start   time.Time
	metrics *Metrics
}

// StartTimer begins timing the named stage.
func (m *Metrics) StartTimer(stage string) *Timer {
	return &Timer{stage: stage, start: time.Now(), metrics: m}
}

// Stop records the elapsed duration into StageDuration and returns it.
func (t *Timer) Stop() time.Duration {
	d := time.Since(t.start)
	t.metrics.StageDuration.WithLabelValues(t.stage).Observe(d.Seconds())
	return d
}

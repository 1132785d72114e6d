package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics manages the Prometheus metrics for the agent.
type Metrics struct {
	AnomalyEvalsTotal      prometheus.Counter
	AnomalyScoreHistogram  prometheus.Histogram
	DimensionMismatchTotal prometheus.Counter
	ObservationsLive       prometheus.Gauge
	ObservationsExpired    prometheus.Counter
	QuorumSignals          *prometheus.CounterVec
	PartitionTransitions   *prometheus.CounterVec
	PartitionEventsDropped prometheus.Counter
	SweepDuration          prometheus.Histogram
	IntakeEnvelopes        *prometheus.CounterVec
	BaselineCacheHits      *prometheus.CounterVec
}

// NewMetrics creates and registers the Prometheus metrics on the default
// registry. Call once per process.
func NewMetrics() *Metrics {
	return &Metrics{
		AnomalyEvalsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "octoreflex_anomaly_evals_total",
			Help: "Total number of anomaly score evaluations.",
		}),
		AnomalyScoreHistogram: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "octoreflex_anomaly_score",
			Help:    "Distribution of computed anomaly scores.",
			Buckets: []float64{0.1, 0.5, 1, 2, 4, 8, 16, 32, 64},
		}),
		DimensionMismatchTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "octoreflex_dimension_mismatch_total",
			Help: "Total number of feature vectors rejected for baseline dimension mismatch.",
		}),
		ObservationsLive: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "octoreflex_gossip_observations_live",
			Help: "Number of live (non-expired) peer observations currently held.",
		}),
		ObservationsExpired: promauto.NewCounter(prometheus.CounterOpts{
			Name: "octoreflex_gossip_observations_expired_total",
			Help: "Total number of observations dropped by TTL expiry.",
		}),
		QuorumSignals: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "octoreflex_gossip_quorum_signals_total",
			Help: "Total number of quorum signal evaluations by outcome.",
		}, []string{"outcome"}),
		PartitionTransitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "octoreflex_gossip_partition_transitions_total",
			Help: "Total number of partition mode or threshold transitions.",
		}, []string{"mode"}),
		PartitionEventsDropped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "octoreflex_gossip_partition_events_dropped_total",
			Help: "Total number of partition events dropped by a full sink.",
		}),
		SweepDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "octoreflex_gossip_sweep_duration_seconds",
			Help:    "Duration of background observation expiry sweeps.",
			Buckets: prometheus.DefBuckets,
		}),
		IntakeEnvelopes: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "octoreflex_gossip_intake_envelopes_total",
			Help: "Total number of gossip envelopes received by outcome.",
		}, []string{"outcome"}),
		BaselineCacheHits: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "octoreflex_baseline_cache_requests_total",
			Help: "Baseline store read cache requests by outcome.",
		}, []string{"outcome"}),
	}
}

// RecordEval records one anomaly evaluation and its score.
func (m *Metrics) RecordEval(score float64) {
	if m == nil {
		return
	}
	m.AnomalyEvalsTotal.Inc()
	m.AnomalyScoreHistogram.Observe(score)
}

// RecordDimensionMismatch records one rejected feature vector.
func (m *Metrics) RecordDimensionMismatch() {
	if m == nil {
		return
	}
	m.DimensionMismatchTotal.Inc()
}

// RecordQuorumSignal records one Signal evaluation outcome.
func (m *Metrics) RecordQuorumSignal(reached bool) {
	if m == nil {
		return
	}
	outcome := "not_reached"
	if reached {
		outcome = "reached"
	}
	m.QuorumSignals.WithLabelValues(outcome).Inc()
}

// AddLiveObservations moves the live observation gauge by delta.
func (m *Metrics) AddLiveObservations(delta int) {
	if m == nil {
		return
	}
	m.ObservationsLive.Add(float64(delta))
}

// RecordExpired records observations dropped by a sweep or lazy read.
func (m *Metrics) RecordExpired(n int) {
	if m == nil || n == 0 {
		return
	}
	m.ObservationsExpired.Add(float64(n))
	m.ObservationsLive.Sub(float64(n))
}

// RecordPartitionTransition records one mode/threshold change.
func (m *Metrics) RecordPartitionTransition(mode string) {
	if m == nil {
		return
	}
	m.PartitionTransitions.WithLabelValues(mode).Inc()
}

// RecordPartitionEventDropped records one event lost to a full sink.
func (m *Metrics) RecordPartitionEventDropped() {
	if m == nil {
		return
	}
	m.PartitionEventsDropped.Inc()
}

// RecordSweep records one expiry sweep's duration.
func (m *Metrics) RecordSweep(d time.Duration) {
	if m == nil {
		return
	}
	m.SweepDuration.Observe(d.Seconds())
}

// RecordIntake records one intake envelope outcome (accepted, stale, invalid).
func (m *Metrics) RecordIntake(outcome string) {
	if m == nil {
		return
	}
	m.IntakeEnvelopes.WithLabelValues(outcome).Inc()
}

// RecordBaselineCache records one read cache outcome (hit, miss).
func (m *Metrics) RecordBaselineCache(outcome string) {
	if m == nil {
		return
	}
	m.BaselineCacheHits.WithLabelValues(outcome).Inc()
}

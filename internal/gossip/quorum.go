// Package gossip implements the distributed quorum evaluator: it accumulates
// per-process anomaly observations from distinct nodes, decides whether the
// swarm has reached consensus on a process, and recalibrates its quorum
// threshold when the node is partitioned from its peers.
//
// Concurrency model: one reader/writer lock owns all shared state. Record,
// UpdatePeerReachability, and the expiry sweep take the exclusive lock;
// Signal and PartitionState take the shared lock. No operation blocks on
// I/O: partition events leave through a non-blocking Emitter, and the
// gossip transport delivering peer observations lives outside this package.
package gossip

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/octoreflex/octoreflex/internal/infrastructure/monitoring"
	"github.com/octoreflex/octoreflex/pkg/constants"
	"github.com/octoreflex/octoreflex/pkg/errors"
	"github.com/octoreflex/octoreflex/pkg/logger"
)

// Observation is one node's timestamped anomaly report about one process.
// Exactly one live observation exists per (processHash, nodeID); a later
// report from the same node replaces the earlier one.
type Observation struct {
	NodeID     string
	Score      float64
	RecordedAt time.Time
}

// Config holds the evaluator's construction parameters. Zero-valued optional
// fields are filled from defaults; out-of-range values are construction-time
// errors.
type Config struct {
	// QuorumMin is the configured quorum minimum applied in Normal mode.
	// Must be ≥ 1.
	QuorumMin int

	// ObservationTTL is how long an observation stays live. Must be > 0.
	ObservationTTL time.Duration

	// SweepInterval is the background expiry sweep period.
	// Default: 10s.
	SweepInterval time.Duration

	// TotalPeers is the number of configured peers, excluding this node.
	// 0 means single-node deployment. Must be ≥ 0.
	TotalPeers int

	// PartitionThreshold is the reachable fraction below which the node is
	// Isolated. Must be in (0, 1]. Default: 0.5.
	PartitionThreshold float64

	// QuorumFraction scales the effective minimum from the reachable peer
	// count while Isolated. Must be in (0, 1]. Default: 0.5.
	QuorumFraction float64
}

func (c *Config) applyDefaults() {
	if c.SweepInterval == 0 {
		c.SweepInterval = constants.DefaultSweepInterval
	}
	if c.PartitionThreshold == 0 {
		c.PartitionThreshold = constants.DefaultPartitionThreshold
	}
	if c.QuorumFraction == 0 {
		c.QuorumFraction = constants.DefaultQuorumFraction
	}
}

// Validate checks all parameters after defaulting.
func (c Config) Validate() error {
	if c.QuorumMin < 1 {
		return errors.Newf(errors.CodeConfigInvalid, "quorum_min must be >= 1, got %d", c.QuorumMin)
	}
	if c.ObservationTTL <= 0 {
		return errors.Newf(errors.CodeConfigInvalid, "observation_ttl must be > 0, got %s", c.ObservationTTL)
	}
	if c.SweepInterval <= 0 {
		return errors.Newf(errors.CodeConfigInvalid, "sweep_interval must be > 0, got %s", c.SweepInterval)
	}
	if c.TotalPeers < 0 {
		return errors.Newf(errors.CodeConfigInvalid, "total_peers must be >= 0, got %d", c.TotalPeers)
	}
	if c.PartitionThreshold <= 0 || c.PartitionThreshold > 1 {
		return errors.Newf(errors.CodeConfigInvalid, "partition_threshold must be in (0, 1], got %v", c.PartitionThreshold)
	}
	if c.QuorumFraction <= 0 || c.QuorumFraction > 1 {
		return errors.Newf(errors.CodeConfigInvalid, "quorum_fraction must be in (0, 1], got %v", c.QuorumFraction)
	}
	return nil
}

// Evaluator is the gossip quorum evaluator. Construct with NewEvaluator;
// the zero value is not usable.
type Evaluator struct {
	cfg     Config
	emitter Emitter
	log     logger.Logger
	metrics *monitoring.Metrics

	mu        sync.RWMutex
	records   map[string]map[string]Observation // processHash → nodeID → observation
	partition partitionState

	// now is the clock; replaced in tests.
	now func() time.Time
}

// NewEvaluator constructs an evaluator. The emitter may be nil when no
// partition telemetry is wired; metrics may be nil in tests.
func NewEvaluator(cfg Config, emitter Emitter, log logger.Logger, metrics *monitoring.Metrics) (*Evaluator, error) {
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.NewNoopLogger()
	}

	// Before any reachability update arrives, assume full reachability.
	mode, effectiveMin := recalibrate(cfg, cfg.TotalPeers)

	return &Evaluator{
		cfg:     cfg,
		emitter: emitter,
		log:     log.WithComponent(constants.ComponentQuorum),
		metrics: metrics,
		records: make(map[string]map[string]Observation),
		partition: partitionState{
			mode:           mode,
			reachablePeers: cfg.TotalPeers,
			effectiveMin:   effectiveMin,
		},
		now: time.Now,
	}, nil
}

// Record upserts one node's observation about one process, timestamped now.
// Idempotent per node: a second report from the same node replaces the
// first, it never appends.
func (q *Evaluator) Record(processHash, nodeID string, anomalyScore float64) {
	now := q.now()

	q.mu.Lock()
	rec, ok := q.records[processHash]
	if !ok {
		rec = make(map[string]Observation)
		q.records[processHash] = rec
	}
	_, replacing := rec[nodeID]
	rec[nodeID] = Observation{
		NodeID:     nodeID,
		Score:      anomalyScore,
		RecordedAt: now,
	}
	q.mu.Unlock()

	if !replacing {
		q.metrics.AddLiveObservations(1)
	}
}

// Signal returns 1.0 iff the number of distinct nodes holding a non-expired
// observation for the process meets the current effective quorum minimum,
// else 0.0. Expiry is enforced lazily: expired entries are skipped here and
// physically removed by the background sweep.
func (q *Evaluator) Signal(processHash string) float64 {
	now := q.now()

	q.mu.RLock()
	effectiveMin := q.partition.effectiveMin
	live := 0
	for _, obs := range q.records[processHash] {
		if now.Sub(obs.RecordedAt) < q.cfg.ObservationTTL {
			live++
		}
	}
	q.mu.RUnlock()

	reached := live >= effectiveMin
	q.metrics.RecordQuorumSignal(reached)
	if reached {
		return 1.0
	}
	return 0.0
}

// LiveObservations returns the distinct non-expired reporters for a process.
// Diagnostic read; the escalation decision goes through Signal.
func (q *Evaluator) LiveObservations(processHash string) []Observation {
	now := q.now()

	q.mu.RLock()
	defer q.mu.RUnlock()
	var out []Observation
	for _, obs := range q.records[processHash] {
		if now.Sub(obs.RecordedAt) < q.cfg.ObservationTTL {
			out = append(out, obs)
		}
	}
	return out
}

// PartitionState returns a consistent snapshot of the current partition
// mode, effective quorum minimum, and reachable peer count.
func (q *Evaluator) PartitionState() (Mode, int, int) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.partition.mode, q.partition.effectiveMin, q.partition.reachablePeers
}

// UpdatePeerReachability feeds the latest health-probe result into the
// evaluator and recalibrates the effective quorum minimum. One
// PartitionEvent is emitted per actual change of mode or effective minimum;
// repeated identical updates emit nothing.
func (q *Evaluator) UpdatePeerReachability(reachablePeers int) {
	if reachablePeers < 0 {
		reachablePeers = 0
	}
	if reachablePeers > q.cfg.TotalPeers {
		reachablePeers = q.cfg.TotalPeers
	}

	mode, effectiveMin := recalibrate(q.cfg, reachablePeers)

	q.mu.Lock()
	changed := mode != q.partition.mode || effectiveMin != q.partition.effectiveMin
	q.partition = partitionState{
		mode:           mode,
		reachablePeers: reachablePeers,
		effectiveMin:   effectiveMin,
	}
	q.mu.Unlock()

	if !changed {
		return
	}

	q.metrics.RecordPartitionTransition(mode.String())
	q.log.Info(context.Background(), "partition state changed", logger.Fields{
		"mode":            mode.String(),
		"reachable_peers": reachablePeers,
		"total_peers":     q.cfg.TotalPeers,
		"effective_min":   effectiveMin,
	})

	if q.emitter != nil {
		q.emitter.Emit(PartitionEvent{
			ID:             uuid.NewString(),
			Mode:           mode,
			ReachablePeers: reachablePeers,
			TotalPeers:     q.cfg.TotalPeers,
			EffectiveMin:   effectiveMin,
			Timestamp:      q.now(),
		})
	}
}

// RunSweeper runs the background expiry sweep until ctx is cancelled. It
// reacquires the exclusive lock once per tick for the duration of one pass
// over all records.
func (q *Evaluator) RunSweeper(ctx context.Context) {
	ticker := time.NewTicker(q.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			q.sweepOnce()
		}
	}
}

// sweepOnce drops every expired observation and deletes records left empty,
// bounding memory to processes with at least one recent report.
func (q *Evaluator) sweepOnce() {
	wallStart := time.Now()
	now := q.now()
	expired := 0

	q.mu.Lock()
	for hash, rec := range q.records {
		for nodeID, obs := range rec {
			if now.Sub(obs.RecordedAt) >= q.cfg.ObservationTTL {
				delete(rec, nodeID)
				expired++
			}
		}
		if len(rec) == 0 {
			delete(q.records, hash)
		}
	}
	q.mu.Unlock()

	q.metrics.RecordExpired(expired)
	q.metrics.RecordSweep(time.Since(wallStart))

	if expired > 0 {
		q.log.Debug(context.Background(), "expiry sweep completed", logger.Fields{
			"expired": expired,
		})
	}
}

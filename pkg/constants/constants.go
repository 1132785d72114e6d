// Package constants defines system-wide constants for the OCTOREFLEX agent.
// This package provides type-safe constant definitions used across all modules.
package constants

import "time"

// ================================================================================
// Context Keys
// ================================================================================

// ContextKey is a typed key for context values to avoid collisions.
type ContextKey string

const (
	// ContextKeyRequestID carries the per-request identifier.
	ContextKeyRequestID ContextKey = "request_id"

	// ContextKeyTraceID carries the distributed trace identifier.
	ContextKeyTraceID ContextKey = "trace_id"

	// ContextKeyNodeID carries the reporting node identifier.
	ContextKeyNodeID ContextKey = "node_id"
)

// ================================================================================
// Anomaly Engine Defaults
// ================================================================================

const (
	// DefaultEntropyWeight is wₑ in the composite anomaly formula.
	DefaultEntropyWeight = 0.3

	// DefaultEscalateThreshold is the anomaly score above which a node
	// records its own observation into the quorum evaluator.
	DefaultEscalateThreshold = 3.0

	// MaxFeatureDimensions bounds the feature vector length accepted by
	// the baseline store. Covariance inversion is O(n³); baselines are
	// trained with small, fixed dimensionality.
	MaxFeatureDimensions = 16
)

// ================================================================================
// Gossip Quorum Defaults
// ================================================================================

const (
	// DefaultQuorumMin is the minimum number of distinct reporting nodes
	// required before the swarm treats a process as anomalous.
	DefaultQuorumMin = 2

	// DefaultObservationTTL is how long a peer observation stays live.
	DefaultObservationTTL = 30 * time.Second

	// DefaultSweepInterval is the period of the background expiry sweep.
	DefaultSweepInterval = 10 * time.Second

	// DefaultEnvelopeTTL is the maximum age of a gossip envelope before
	// the intake endpoint rejects it as stale.
	DefaultEnvelopeTTL = 30 * time.Second

	// DefaultPartitionThreshold is the reachable-peer fraction below which
	// a node enters Isolated mode.
	DefaultPartitionThreshold = 0.5

	// DefaultQuorumFraction scales the effective quorum minimum from the
	// reachable peer count while Isolated.
	DefaultQuorumFraction = 0.5

	// DefaultPartitionEventBuffer is the capacity of the non-blocking
	// partition event channel.
	DefaultPartitionEventBuffer = 64
)

// ================================================================================
// Storage Defaults
// ================================================================================

const (
	// DefaultBaselineDBPath is the on-disk location of the baseline store.
	DefaultBaselineDBPath = "/var/lib/octoreflex/baselines.db"

	// DefaultBaselineCacheTTL bounds how long a baseline snapshot is served
	// from the in-memory read cache before the store is consulted again.
	DefaultBaselineCacheTTL = 1 * time.Minute
)

// ================================================================================
// Component Names
// ================================================================================

const (
	ComponentAnomalyEngine = "anomaly_engine"
	ComponentScoring       = "scoring_service"
	ComponentQuorum        = "quorum_evaluator"
	ComponentBaselineStore = "baseline_store"
	ComponentIntake        = "gossip_intake"
	ComponentTelemetry     = "telemetry"
)

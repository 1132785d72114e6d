// Package application wires the anomaly engine, baseline store and quorum
// evaluator into the host-facing scoring flow.
package application

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/octoreflex/octoreflex/internal/anomaly"
	"github.com/octoreflex/octoreflex/internal/infrastructure/monitoring"
	"github.com/octoreflex/octoreflex/pkg/constants"
	"github.com/octoreflex/octoreflex/pkg/errors"
	"github.com/octoreflex/octoreflex/pkg/logger"
)

// BaselineReader loads baseline snapshots for scoring. A missing baseline
// is (nil, nil), not an error.
type BaselineReader interface {
	Get(ctx context.Context, binaryHash string) (*anomaly.Baseline, error)
}

// QuorumRecorder accepts local escalations and answers the swarm signal.
type QuorumRecorder interface {
	Record(processHash, nodeID string, anomalyScore float64)
	Signal(processHash string) float64
}

// Result is the outcome of evaluating one feature window.
type Result struct {
	ProcessHash  string  `json:"process_hash"`
	AnomalyScore float64 `json:"anomaly_score"`
	Entropy      float64 `json:"entropy"`
	Escalated    bool    `json:"escalated"`
	QuorumSignal float64 `json:"quorum_signal"`
}

// ScoringService evaluates per-process feature windows: it loads the
// binary's baseline, computes the composite anomaly score, records a local
// observation into the quorum evaluator when the score crosses the
// escalation threshold, and reports the current swarm signal.
type ScoringService struct {
	engine            *anomaly.Engine
	baselines         BaselineReader
	quorum            QuorumRecorder
	tracing           *monitoring.TracingManager
	metrics           *monitoring.Metrics
	log               logger.Logger
	nodeID            string
	escalateThreshold float64
}

// NewScoringService constructs the scoring flow. nodeID identifies this
// agent in quorum observations and must not be empty; the escalation
// threshold must be positive.
func NewScoringService(
	engine *anomaly.Engine,
	baselines BaselineReader,
	quorum QuorumRecorder,
	tracing *monitoring.TracingManager,
	metrics *monitoring.Metrics,
	log logger.Logger,
	nodeID string,
	escalateThreshold float64,
) (*ScoringService, error) {
	if engine == nil || baselines == nil || quorum == nil {
		return nil, errors.New(errors.CodeConfigInvalid, "engine, baseline reader and quorum recorder are required")
	}
	if nodeID == "" {
		return nil, errors.New(errors.CodeConfigInvalid, "node id must not be empty")
	}
	if escalateThreshold <= 0 {
		return nil, errors.Newf(errors.CodeConfigInvalid, "escalation threshold must be positive, got %v", escalateThreshold)
	}
	if log == nil {
		log = logger.NewNoopLogger()
	}
	return &ScoringService{
		engine:            engine,
		baselines:         baselines,
		quorum:            quorum,
		tracing:           tracing,
		metrics:           metrics,
		log:               log.WithComponent(constants.ComponentScoring),
		nodeID:            nodeID,
		escalateThreshold: escalateThreshold,
	}, nil
}

// Evaluate scores one observation window for the process identified by
// processHash. counts is the event-class histogram for the same window the
// features were extracted from; its Shannon entropy feeds the composite
// score and is returned alongside it.
//
// A dimension mismatch is returned to the caller and never escalated: a
// score produced against the wrong baseline shape says nothing about the
// process.
func (s *ScoringService) Evaluate(ctx context.Context, processHash string, features anomaly.FeatureVector, counts anomaly.EventCounts) (*Result, error) {
	if s.tracing != nil {
		var span trace.Span
		ctx, span = s.tracing.StartSpan(ctx, "scoring.evaluate",
			trace.WithAttributes(attribute.String("process.hash", processHash)))
		defer span.End()
	}

	if processHash == "" {
		return nil, errors.New(errors.CodeInvalidEnvelope, "process hash must not be empty")
	}

	baseline, err := s.baselines.Get(ctx, processHash)
	if err != nil {
		return nil, err
	}

	entropy := anomaly.ShannonEntropy(counts)
	score, err := s.engine.Score(features, baseline, entropy)
	if err != nil {
		if errors.IsCode(err, errors.CodeDimensionMismatch) {
			s.metrics.RecordDimensionMismatch()
			s.log.Warn(ctx, "feature vector shape does not match baseline", logger.Fields{
				"process_hash": processHash,
				"features":     len(features),
			})
		}
		return nil, err
	}
	s.metrics.RecordEval(score)

	res := &Result{
		ProcessHash:  processHash,
		AnomalyScore: score,
		Entropy:      entropy,
	}

	if score >= s.escalateThreshold {
		s.quorum.Record(processHash, s.nodeID, score)
		res.Escalated = true
		s.log.Info(ctx, "local anomaly escalated to quorum", logger.Fields{
			"process_hash":  processHash,
			"anomaly_score": score,
			"threshold":     s.escalateThreshold,
		})
	}

	res.QuorumSignal = s.quorum.Signal(processHash)
	if res.QuorumSignal >= 1.0 {
		s.metrics.RecordQuorumSignal(true)
		s.log.Warn(ctx, "quorum reached for process", logger.Fields{
			"process_hash":  processHash,
			"anomaly_score": score,
		})
	} else {
		s.metrics.RecordQuorumSignal(false)
	}

	return res, nil
}

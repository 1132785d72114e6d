package gossip

import (
	"time"

	"github.com/octoreflex/octoreflex/pkg/errors"
)

// Envelope is one decoded gossip message from a peer: a single node's
// anomaly observation about a single process. Authentication and transport
// reliability belong to the carrying layer (mTLS between configured peers);
// by the time an Envelope reaches the evaluator its NodeID is trusted.
type Envelope struct {
	ProcessHash  string    `json:"process_hash" binding:"required"`
	NodeID       string    `json:"node_id" binding:"required"`
	AnomalyScore float64   `json:"anomaly_score"`
	RecordedAt   time.Time `json:"recorded_at" binding:"required"`
}

// Validate checks the envelope's fields and its age against the given TTL.
// A stale envelope is rejected rather than recorded: replaying old
// observations must not refresh their expiry.
func (e Envelope) Validate(now time.Time, envelopeTTL time.Duration) error {
	if e.ProcessHash == "" {
		return errors.New(errors.CodeInvalidEnvelope, "process_hash must not be empty")
	}
	if e.NodeID == "" {
		return errors.New(errors.CodeInvalidEnvelope, "node_id must not be empty")
	}
	if e.AnomalyScore < 0 {
		return errors.Newf(errors.CodeInvalidEnvelope, "anomaly_score must be >= 0, got %v", e.AnomalyScore)
	}
	if now.Sub(e.RecordedAt) >= envelopeTTL {
		return errors.Newf(errors.CodeStaleEnvelope,
			"envelope recorded at %s exceeds TTL %s", e.RecordedAt.Format(time.RFC3339), envelopeTTL)
	}
	return nil
}

package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/octoreflex/octoreflex/internal/gossip"
	"github.com/octoreflex/octoreflex/internal/infrastructure/monitoring"
	"github.com/octoreflex/octoreflex/pkg/constants"
	"github.com/octoreflex/octoreflex/pkg/errors"
	"github.com/octoreflex/octoreflex/pkg/logger"
)

// GossipHandler serves the peer-facing gossip endpoints: observation intake
// and the quorum/partition read views.
type GossipHandler struct {
	quorum      *gossip.Evaluator
	envelopeTTL time.Duration
	log         logger.Logger
	metrics     *monitoring.Metrics
	now         func() time.Time
}

// NewGossipHandler constructs the gossip endpoints around a quorum
// evaluator.
func NewGossipHandler(quorum *gossip.Evaluator, envelopeTTL time.Duration, log logger.Logger, metrics *monitoring.Metrics) *GossipHandler {
	if log == nil {
		log = logger.NewNoopLogger()
	}
	return &GossipHandler{
		quorum:      quorum,
		envelopeTTL: envelopeTTL,
		log:         log.WithComponent(constants.ComponentIntake),
		metrics:     metrics,
		now:         time.Now,
	}
}

// ReceiveObservation ingests one peer observation envelope.
//
//	POST /v1/gossip/observations
//
// Malformed envelopes return 400; envelopes older than the envelope TTL
// return 410 so a replaying peer learns its message is gone, not merely
// rejected. Accepted envelopes are recorded and answered with 202.
func (h *GossipHandler) ReceiveObservation(c *gin.Context) {
	var env gossip.Envelope
	if err := c.ShouldBindJSON(&env); err != nil {
		h.metrics.RecordIntake("malformed")
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_envelope", "detail": err.Error()})
		return
	}

	if err := env.Validate(h.now(), h.envelopeTTL); err != nil {
		if errors.IsCode(err, errors.CodeStaleEnvelope) {
			h.metrics.RecordIntake("stale")
			h.log.Debug(c.Request.Context(), "stale envelope dropped", logger.Fields{
				"node_id":      env.NodeID,
				"process_hash": env.ProcessHash,
				"recorded_at":  env.RecordedAt,
			})
			c.JSON(http.StatusGone, gin.H{"error": "stale_envelope", "detail": err.Error()})
			return
		}
		h.metrics.RecordIntake("invalid")
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_envelope", "detail": err.Error()})
		return
	}

	h.quorum.Record(env.ProcessHash, env.NodeID, env.AnomalyScore)
	h.metrics.RecordIntake("accepted")
	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}

// GetSignal reports the swarm consensus signal for one process.
//
//	GET /v1/gossip/signal/:process_hash
func (h *GossipHandler) GetSignal(c *gin.Context) {
	processHash := c.Param("process_hash")
	signal := h.quorum.Signal(processHash)
	c.JSON(http.StatusOK, gin.H{
		"process_hash": processHash,
		"signal":       signal,
		"observations": len(h.quorum.LiveObservations(processHash)),
	})
}

// GetPartitionState reports the node's current partition mode and the
// quorum requirement in force.
//
//	GET /v1/gossip/partition
func (h *GossipHandler) GetPartitionState(c *gin.Context) {
	mode, effectiveMin, reachable := h.quorum.PartitionState()
	c.JSON(http.StatusOK, gin.H{
		"mode":            mode.String(),
		"reachable_peers": reachable,
		"effective_min":   effectiveMin,
	})
}

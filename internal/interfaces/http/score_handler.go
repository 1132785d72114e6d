package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/octoreflex/octoreflex/internal/anomaly"
	"github.com/octoreflex/octoreflex/internal/application"
	"github.com/octoreflex/octoreflex/pkg/errors"
)

// ScoreRequest is one local scoring request: a feature window extracted by
// the capture pipeline for a single process.
type ScoreRequest struct {
	ProcessHash string                `json:"process_hash" binding:"required"`
	Features    anomaly.FeatureVector `json:"features" binding:"required"`
	EventCounts map[string]uint64     `json:"event_counts"`
}

// ScoreHandler exposes the scoring service to the local capture pipeline.
// The endpoint is not gossip: it binds alongside it but evaluates this
// node's own telemetry.
type ScoreHandler struct {
	scoring *application.ScoringService
}

// NewScoreHandler wraps a scoring service.
func NewScoreHandler(scoring *application.ScoringService) *ScoreHandler {
	return &ScoreHandler{scoring: scoring}
}

// Evaluate scores one feature window.
//
//	POST /v1/score
func (h *ScoreHandler) Evaluate(c *gin.Context) {
	var req ScoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "detail": err.Error()})
		return
	}

	var counts anomaly.EventCounts
	for name, n := range req.EventCounts {
		class, ok := anomaly.ParseEventClass(name)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "detail": "unknown event class: " + name})
			return
		}
		counts[class] = n
	}

	res, err := h.scoring.Evaluate(c.Request.Context(), req.ProcessHash, req.Features, counts)
	if err != nil {
		switch errors.CodeOf(err) {
		case errors.CodeDimensionMismatch, errors.CodeInvalidEnvelope:
			c.JSON(http.StatusBadRequest, gin.H{"error": string(errors.CodeOf(err)), "detail": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		}
		return
	}

	c.JSON(http.StatusOK, res)
}

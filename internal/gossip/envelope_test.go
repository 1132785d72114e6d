package gossip

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/octoreflex/octoreflex/pkg/errors"
)

func TestEnvelope_Validate(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	ttl := 30 * time.Second

	valid := Envelope{
		ProcessHash:  "sha256:abc",
		NodeID:       "node-1",
		AnomalyScore: 4.2,
		RecordedAt:   now.Add(-5 * time.Second),
	}
	assert.NoError(t, valid.Validate(now, ttl))

	cases := []struct {
		name     string
		mutate   func(e *Envelope)
		wantCode errors.Code
	}{
		{"empty process hash", func(e *Envelope) { e.ProcessHash = "" }, errors.CodeInvalidEnvelope},
		{"empty node id", func(e *Envelope) { e.NodeID = "" }, errors.CodeInvalidEnvelope},
		{"negative score", func(e *Envelope) { e.AnomalyScore = -0.1 }, errors.CodeInvalidEnvelope},
		{"age equals ttl", func(e *Envelope) { e.RecordedAt = now.Add(-ttl) }, errors.CodeStaleEnvelope},
		{"age beyond ttl", func(e *Envelope) { e.RecordedAt = now.Add(-time.Minute) }, errors.CodeStaleEnvelope},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e := valid
			tc.mutate(&e)
			err := e.Validate(now, ttl)
			require.Error(t, err)
			assert.True(t, errors.IsCode(err, tc.wantCode), "got %v", err)
		})
	}
}

func TestEnvelope_ValidateJustInsideTTL(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	e := Envelope{
		ProcessHash: "sha256:abc",
		NodeID:      "node-1",
		RecordedAt:  now.Add(-30*time.Second + time.Nanosecond),
	}
	assert.NoError(t, e.Validate(now, 30*time.Second))
}

package application_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/octoreflex/octoreflex/internal/anomaly"
	"github.com/octoreflex/octoreflex/internal/application"
	"github.com/octoreflex/octoreflex/pkg/errors"
)

// fakeBaselineReader serves a fixed set of baselines.
type fakeBaselineReader struct {
	baselines map[string]*anomaly.Baseline
	err       error
}

func (f *fakeBaselineReader) Get(_ context.Context, binaryHash string) (*anomaly.Baseline, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.baselines[binaryHash], nil
}

// fakeQuorum records escalations and answers a canned signal.
type fakeQuorum struct {
	recorded []struct {
		processHash string
		nodeID      string
		score       float64
	}
	signal float64
}

func (f *fakeQuorum) Record(processHash, nodeID string, score float64) {
	f.recorded = append(f.recorded, struct {
		processHash string
		nodeID      string
		score       float64
	}{processHash, nodeID, score})
}

func (f *fakeQuorum) Signal(string) float64 {
	return f.signal
}

func newService(t *testing.T, reader *fakeBaselineReader, quorum *fakeQuorum, threshold float64) *application.ScoringService {
	t.Helper()
	engine, err := anomaly.NewEngine(0.3)
	require.NoError(t, err)

	svc, err := application.NewScoringService(engine, reader, quorum, nil, nil, nil, "node-1", threshold)
	require.NoError(t, err)
	return svc
}

func TestNewScoringService_Validation(t *testing.T) {
	engine, err := anomaly.NewEngine(0.3)
	require.NoError(t, err)
	reader := &fakeBaselineReader{}
	quorum := &fakeQuorum{}

	_, err = application.NewScoringService(nil, reader, quorum, nil, nil, nil, "node-1", 3.0)
	assert.Error(t, err)

	_, err = application.NewScoringService(engine, reader, quorum, nil, nil, nil, "", 3.0)
	assert.Error(t, err)

	_, err = application.NewScoringService(engine, reader, quorum, nil, nil, nil, "node-1", 0)
	assert.Error(t, err)
}

func TestEvaluate_NoBaselineYieldsZeroScore(t *testing.T) {
	quorum := &fakeQuorum{}
	svc := newService(t, &fakeBaselineReader{}, quorum, 3.0)

	var counts anomaly.EventCounts
	counts[anomaly.EventExec] = 10

	res, err := svc.Evaluate(context.Background(), "sha256:new", anomaly.FeatureVector{1, 2}, counts)
	require.NoError(t, err)

	assert.Equal(t, 0.0, res.AnomalyScore)
	assert.False(t, res.Escalated)
	assert.Empty(t, quorum.recorded)
}

func TestEvaluate_EscalatesAboveThreshold(t *testing.T) {
	reader := &fakeBaselineReader{baselines: map[string]*anomaly.Baseline{
		"sha256:abc": {
			Mean:          anomaly.FeatureVector{0, 0},
			InvCovariance: anomaly.Matrix{{1, 0}, {0, 1}},
		},
	}}
	quorum := &fakeQuorum{signal: 1.0}
	svc := newService(t, reader, quorum, 3.0)

	// diff = (2, 2): score 8 ≥ threshold 3.
	res, err := svc.Evaluate(context.Background(), "sha256:abc", anomaly.FeatureVector{2, 2}, anomaly.EventCounts{})
	require.NoError(t, err)

	assert.InDelta(t, 8.0, res.AnomalyScore, 1e-12)
	assert.True(t, res.Escalated)
	assert.Equal(t, 1.0, res.QuorumSignal)

	require.Len(t, quorum.recorded, 1)
	assert.Equal(t, "sha256:abc", quorum.recorded[0].processHash)
	assert.Equal(t, "node-1", quorum.recorded[0].nodeID)
	assert.InDelta(t, 8.0, quorum.recorded[0].score, 1e-12)
}

func TestEvaluate_BelowThresholdDoesNotEscalate(t *testing.T) {
	reader := &fakeBaselineReader{baselines: map[string]*anomaly.Baseline{
		"sha256:abc": {
			Mean:          anomaly.FeatureVector{0, 0},
			InvCovariance: anomaly.Matrix{{1, 0}, {0, 1}},
		},
	}}
	quorum := &fakeQuorum{}
	svc := newService(t, reader, quorum, 3.0)

	res, err := svc.Evaluate(context.Background(), "sha256:abc", anomaly.FeatureVector{1, 1}, anomaly.EventCounts{})
	require.NoError(t, err)

	assert.InDelta(t, 2.0, res.AnomalyScore, 1e-12)
	assert.False(t, res.Escalated)
	assert.Empty(t, quorum.recorded)
}

func TestEvaluate_DimensionMismatchNotEscalated(t *testing.T) {
	reader := &fakeBaselineReader{baselines: map[string]*anomaly.Baseline{
		"sha256:abc": {Mean: anomaly.FeatureVector{0, 0}},
	}}
	quorum := &fakeQuorum{}
	svc := newService(t, reader, quorum, 0.001)

	_, err := svc.Evaluate(context.Background(), "sha256:abc", anomaly.FeatureVector{1, 2, 3}, anomaly.EventCounts{})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeDimensionMismatch))
	assert.Empty(t, quorum.recorded)
}

func TestEvaluate_EmptyProcessHashRejected(t *testing.T) {
	svc := newService(t, &fakeBaselineReader{}, &fakeQuorum{}, 3.0)

	_, err := svc.Evaluate(context.Background(), "", anomaly.FeatureVector{1}, anomaly.EventCounts{})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeInvalidEnvelope))
}

func TestEvaluate_StoreErrorPropagates(t *testing.T) {
	reader := &fakeBaselineReader{err: errors.New(errors.CodeStorage, "disk gone")}
	svc := newService(t, reader, &fakeQuorum{}, 3.0)

	_, err := svc.Evaluate(context.Background(), "sha256:abc", anomaly.FeatureVector{1}, anomaly.EventCounts{})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeStorage))
}

func TestEvaluate_EntropyFeedsScore(t *testing.T) {
	reader := &fakeBaselineReader{baselines: map[string]*anomaly.Baseline{
		"sha256:abc": {
			Mean:          anomaly.FeatureVector{0},
			InvCovariance: anomaly.Matrix{{1}},
			Entropy:       0.0,
		},
	}}
	svc := newService(t, reader, &fakeQuorum{}, 100.0)

	// Two uniform classes: window entropy 1.0, so the composite score is
	// 0 + 0.3·|1.0 − 0.0|.
	var counts anomaly.EventCounts
	counts[anomaly.EventExec] = 5
	counts[anomaly.EventOpen] = 5

	res, err := svc.Evaluate(context.Background(), "sha256:abc", anomaly.FeatureVector{0}, counts)
	require.NoError(t, err)

	assert.InDelta(t, 1.0, res.Entropy, 1e-12)
	assert.InDelta(t, 0.3, res.AnomalyScore, 1e-12)
}

package anomaly_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/octoreflex/octoreflex/internal/anomaly"
	"github.com/octoreflex/octoreflex/pkg/errors"
)

func TestNewEngine_WeightRange(t *testing.T) {
	for _, w := range []float64{0.0, 0.3, 1.0} {
		_, err := anomaly.NewEngine(w)
		assert.NoError(t, err, "weight %v", w)
	}
	for _, w := range []float64{-0.1, 1.1, math.NaN()} {
		_, err := anomaly.NewEngine(w)
		require.Error(t, err, "weight %v", w)
		assert.True(t, errors.IsCode(err, errors.CodeConfigInvalid))
	}
}

func TestScore_NilBaseline(t *testing.T) {
	engine, err := anomaly.NewEngine(0.3)
	require.NoError(t, err)

	score, err := engine.Score(anomaly.FeatureVector{1, 2, 3}, nil, 2.5)
	assert.NoError(t, err)
	assert.Equal(t, 0.0, score)
}

func TestScore_DimensionMismatch(t *testing.T) {
	engine, err := anomaly.NewEngine(0.3)
	require.NoError(t, err)

	baseline := &anomaly.Baseline{
		Mean:       anomaly.FeatureVector{0, 0},
		Covariance: anomaly.Matrix{{1, 0}, {0, 1}},
	}

	score, err := engine.Score(anomaly.FeatureVector{1, 2, 3}, baseline, 0)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeDimensionMismatch))
	assert.Equal(t, 0.0, score)
}

func TestScore_IdentityInverseMatchesEuclideanFallback(t *testing.T) {
	engine, err := anomaly.NewEngine(0.0)
	require.NoError(t, err)

	mean := anomaly.FeatureVector{1, 1}
	x := anomaly.FeatureVector{4, 5}

	withInverse := &anomaly.Baseline{
		Mean:          mean,
		InvCovariance: anomaly.Matrix{{1, 0}, {0, 1}},
	}
	withoutInverse := &anomaly.Baseline{Mean: mean}

	a, err := engine.Score(x, withInverse, 0)
	require.NoError(t, err)
	b, err := engine.Score(x, withoutInverse, 0)
	require.NoError(t, err)

	// diff = (3, 4), squared distance 25 either way.
	assert.InDelta(t, 25.0, a, 1e-12)
	assert.InDelta(t, a, b, 1e-12)
}

func TestScore_CompositeWithEntropyDelta(t *testing.T) {
	engine, err := anomaly.NewEngine(0.5)
	require.NoError(t, err)

	baseline := &anomaly.Baseline{
		Mean:          anomaly.FeatureVector{0, 0},
		InvCovariance: anomaly.Matrix{{2, 0}, {0, 2}},
		Entropy:       1.0,
	}

	// diff = (1, 2): mahal = 2·1 + 2·4 = 10; |ΔH| = 1.5.
	score, err := engine.Score(anomaly.FeatureVector{1, 2}, baseline, 2.5)
	require.NoError(t, err)
	assert.InDelta(t, 10.0+0.5*1.5, score, 1e-12)
}

func TestScore_EntropyDeltaIsSymmetric(t *testing.T) {
	engine, err := anomaly.NewEngine(1.0)
	require.NoError(t, err)

	baseline := &anomaly.Baseline{
		Mean:    anomaly.FeatureVector{0},
		Entropy: 2.0,
	}

	above, err := engine.Score(anomaly.FeatureVector{0}, baseline, 3.0)
	require.NoError(t, err)
	below, err := engine.Score(anomaly.FeatureVector{0}, baseline, 1.0)
	require.NoError(t, err)

	assert.InDelta(t, 1.0, above, 1e-12)
	assert.InDelta(t, above, below, 1e-12)
}

func TestScore_NonNegative(t *testing.T) {
	engine, err := anomaly.NewEngine(0.3)
	require.NoError(t, err)

	baselines := []*anomaly.Baseline{
		{Mean: anomaly.FeatureVector{5, -3}, InvCovariance: anomaly.Matrix{{0.5, 0.1}, {0.1, 0.8}}, Entropy: 1.2},
		{Mean: anomaly.FeatureVector{0, 0}, Entropy: 0},
	}
	vectors := []anomaly.FeatureVector{{0, 0}, {5, -3}, {-10, 10}}

	for _, b := range baselines {
		for _, x := range vectors {
			score, err := engine.Score(x, b, 0.7)
			require.NoError(t, err)
			assert.GreaterOrEqual(t, score, 0.0)
		}
	}
}

func TestScore_EndToEnd(t *testing.T) {
	engine, err := anomaly.NewEngine(0.3)
	require.NoError(t, err)

	baseline := &anomaly.Baseline{
		Mean: anomaly.FeatureVector{1, 1, 1},
		InvCovariance: anomaly.Matrix{
			{1, 0, 0},
			{0, 1, 0},
			{0, 0, 1},
		},
		Entropy: 1.0,
	}

	// diff = (3, 0, 0): mahal 9, entropy delta 0.
	score, err := engine.Score(anomaly.FeatureVector{4, 1, 1}, baseline, 1.0)
	require.NoError(t, err)
	assert.InDelta(t, 9.0, score, 1e-12)
}

func TestScore_ExactBaselineMatch(t *testing.T) {
	engine, err := anomaly.NewEngine(0.3)
	require.NoError(t, err)

	baseline := &anomaly.Baseline{
		Mean:          anomaly.FeatureVector{2, 4},
		InvCovariance: anomaly.Matrix{{1, 0}, {0, 1}},
		Entropy:       1.5,
	}

	score, err := engine.Score(anomaly.FeatureVector{2, 4}, baseline, 1.5)
	require.NoError(t, err)
	assert.Equal(t, 0.0, score)
}

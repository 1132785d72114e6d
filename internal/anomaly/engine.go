package anomaly

import (
	"math"

	"github.com/octoreflex/octoreflex/pkg/errors"
)

// Engine scores feature vectors against baselines. It is stateless beyond
// the entropy weight fixed at construction, so one Engine serves any number
// of concurrent scoring goroutines.
type Engine struct {
	entropyWeight float64
}

// NewEngine constructs a scoring engine with the given entropy weight
// wₑ ∈ [0, 1]. An out-of-range or non-finite weight is a construction-time
// error, fatal to the instance.
func NewEngine(entropyWeight float64) (*Engine, error) {
	if math.IsNaN(entropyWeight) || entropyWeight < 0.0 || entropyWeight > 1.0 {
		return nil, errors.Newf(errors.CodeConfigInvalid,
			"entropy weight must be in [0.0, 1.0], got %v", entropyWeight)
	}
	return &Engine{entropyWeight: entropyWeight}, nil
}

// EntropyWeight returns the wₑ the engine was constructed with.
func (e *Engine) EntropyWeight() float64 {
	return e.entropyWeight
}

// Score computes the composite anomaly score
//
//	A = mahal(x, baseline) + wₑ·|currentEntropy − baseline.Entropy|
//
// where mahal is the squared Mahalanobis distance diffᵗ·Σ⁻¹·diff when the
// baseline carries a precomputed inverse, and the squared Euclidean distance
// |diff|² otherwise (identity-covariance fallback for singular baselines).
//
// A nil baseline returns (0.0, nil): a process with no training data yet
// produces zero signal, not an error.
//
// A dimension mismatch between x and the baseline mean returns a
// dimension_mismatch error; the accompanying zero score must not be used to
// escalate, since it indicates a feature pipeline fault rather than normal
// behavior.
func (e *Engine) Score(x FeatureVector, baseline *Baseline, currentEntropy float64) (float64, error) {
	if baseline == nil {
		return 0.0, nil
	}
	if len(x) != len(baseline.Mean) {
		return 0.0, errors.Newf(errors.CodeDimensionMismatch,
			"feature vector has %d dimensions, baseline expects %d",
			len(x), len(baseline.Mean))
	}

	diff := make([]float64, len(x))
	for i := range x {
		diff[i] = x[i] - baseline.Mean[i]
	}

	var mahal float64
	if baseline.InvCovariance != nil {
		mahal = quadraticForm(diff, baseline.InvCovariance)
	} else {
		for _, d := range diff {
			mahal += d * d
		}
	}
	// A true inverse keeps the quadratic form non-negative; numerical noise
	// in a near-singular inverse can dip fractionally below zero.
	if mahal < 0 {
		mahal = 0
	}

	entropyDelta := math.Abs(currentEntropy - baseline.Entropy)
	return mahal + e.entropyWeight*entropyDelta, nil
}

// quadraticForm computes vᵗ·M·v for a square M with dim(M) == len(v).
func quadraticForm(v []float64, m Matrix) float64 {
	s := 0.0
	for i := range v {
		row := m[i]
		for j := range v {
			s += v[i] * row[j] * v[j]
		}
	}
	return s
}

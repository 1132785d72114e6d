// Package anomaly implements the per-process behavioral anomaly scorer:
// Shannon entropy over event-type windows, Cholesky-based covariance
// inversion, and Mahalanobis-distance-plus-entropy composite scoring
// against trainer-supplied baselines.
//
// All computations here are pure and stateless. The engine holds one
// immutable weight fixed at construction; Score never mutates its inputs
// and is safe for unlimited concurrent invocation.
//
// Invariants:
//   - Score(x, b, h) ≥ 0 for every valid input.
//   - A nil baseline yields (0.0, nil): an un-baselined process produces
//     zero signal rather than an error.
//   - A singular covariance yields the Euclidean fallback, equivalent to
//     scoring against the identity covariance.
//   - InvertCovariance runs once per baseline update, never per score.
package anomaly

// FeatureVector is an ordered sequence of behavioral feature values for one
// process, one entry per monitored dimension. Its length is fixed per process
// binary and must match the binary's baseline.
type FeatureVector []float64

// Matrix is a square row-major matrix. Covariance matrices are symmetric
// positive semi-definite by construction at the trainer.
type Matrix [][]float64

// Dim returns the matrix dimension, or 0 if the matrix is empty or ragged.
func (m Matrix) Dim() int {
	n := len(m)
	for _, row := range m {
		if len(row) != n {
			return 0
		}
	}
	return n
}

// Baseline is the learned statistical profile of normal behavior for one
// process binary. Baselines are produced by the external trainer and treated
// as immutable snapshots: an update is a new Baseline value, never an
// in-place mutation of a shared one.
//
// InvCovariance is nil when the covariance matrix is singular or not
// positive-definite. That is an expected steady state (an invariant feature
// produces a zero-variance row), handled by the scorer's Euclidean fallback.
type Baseline struct {
	// Mean is the per-dimension mean of the training window.
	Mean FeatureVector

	// Covariance is the n×n feature covariance matrix.
	Covariance Matrix

	// InvCovariance is the precomputed inverse of Covariance, or nil when
	// the matrix is singular. Populated by the baseline store via
	// InvertCovariance at update time.
	InvCovariance Matrix

	// Entropy is the mean Shannon entropy of the training windows.
	Entropy float64

	// SampleCount is the number of training samples the baseline was
	// computed from. A staleness signal for consumers; unused by scoring.
	SampleCount uint64
}

// Dim returns the baseline's feature dimensionality.
func (b *Baseline) Dim() int {
	return len(b.Mean)
}

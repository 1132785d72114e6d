package anomaly

import "math"

// choleskyEps is the positivity floor for diagonal pivots. A pivot at or
// below it means the matrix is singular or not positive-definite.
const choleskyEps = 1e-12

// InvertCovariance computes the inverse of a symmetric covariance matrix via
// Cholesky factorization. Returns (nil, false) when the matrix is empty,
// ragged, or not positive-definite. A singular baseline is an expected
// steady state (e.g. an invariant feature), not a defect, so no error is
// produced.
//
// The factorization is Σ = L·Lᵗ. L is inverted by forward substitution and
// the inverse assembled as Σ⁻¹ = (L⁻¹)ᵗ·L⁻¹. O(n³); callers run it once per
// baseline update, off the scoring hot path.
func InvertCovariance(cov Matrix) (Matrix, bool) {
	n := cov.Dim()
	if n == 0 {
		return nil, false
	}

	// Cholesky factorization: lower-triangular L with Σ = L·Lᵗ.
	l := make(Matrix, n)
	for i := range l {
		l[i] = make([]float64, n)
	}
	for j := 0; j < n; j++ {
		sum := cov[j][j]
		for k := 0; k < j; k++ {
			sum -= l[j][k] * l[j][k]
		}
		if sum <= choleskyEps || math.IsNaN(sum) {
			return nil, false
		}
		l[j][j] = math.Sqrt(sum)

		for i := j + 1; i < n; i++ {
			s := cov[i][j]
			for k := 0; k < j; k++ {
				s -= l[i][k] * l[j][k]
			}
			l[i][j] = s / l[j][j]
		}
	}

	// Invert L by forward substitution. W = L⁻¹ is lower-triangular.
	w := make(Matrix, n)
	for i := range w {
		w[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		w[i][i] = 1.0 / l[i][i]
		for j := 0; j < i; j++ {
			s := 0.0
			for k := j; k < i; k++ {
				s += l[i][k] * w[k][j]
			}
			w[i][j] = -s / l[i][i]
		}
	}

	// Σ⁻¹ = Wᵗ·W. Symmetric, so compute the upper triangle and mirror.
	inv := make(Matrix, n)
	for i := range inv {
		inv[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			s := 0.0
			for k := j; k < n; k++ {
				s += w[k][i] * w[k][j]
			}
			inv[i][j] = s
			inv[j][i] = s
		}
	}

	return inv, true
}

// Package geom estimates two-view epipolar geometry from point correspondences
package geom

import (
	"errors"
	"fmt"
	"math"

	"github.com/golang/geo/r2"
	"gonum.org/v1/gonum/mat"
)

// MinPoints is the number of correspondences needed by the 8-point algorithm
const MinPoints = 8

var ErrInsufficientMatches = errors.New("Insufficient matches")
var ErrDegenerateGeometry = errors.New("Degenerate geometry")

// collinearity limit on the ratio of the smallest to the largest eigenvalue of the
// normalized point scatter. Below this, the points are effectively on a line.
const degenerateSpreadRatio = 1e-6

// FundamentalEightPoint fits a fundamental matrix F (with b^T F a = 0) to 8 or more
// correspondences, using Hartley's normalized 8-point algorithm.
// The result has rank 2 and unit Frobenius norm.
func FundamentalEightPoint(a, b []r2.Point) (*mat.Dense, error) {
	if len(a) != len(b) {
		return nil, fmt.Errorf("Point sets differ in length (%v vs %v)", len(a), len(b))
	}
	if len(a) < MinPoints {
		return nil, fmt.Errorf("%w: need %v correspondences, have %v", ErrInsufficientMatches, MinPoints, len(a))
	}

	na, ta, ok := normalizePoints(a)
	if !ok {
		return nil, fmt.Errorf("%w: coincident points in first image", ErrDegenerateGeometry)
	}
	nb, tb, ok := normalizePoints(b)
	if !ok {
		return nil, fmt.Errorf("%w: coincident points in second image", ErrDegenerateGeometry)
	}

	n := len(a)
	m := mat.NewDense(n, 9, nil)
	for i := 0; i < n; i++ {
		p, q := na[i], nb[i]
		m.SetRow(i, []float64{
			q.X * p.X, q.X * p.Y, q.X,
			q.Y * p.X, q.Y * p.Y, q.Y,
			p.X, p.Y, 1,
		})
	}

	// Null vector of m = right singular vector of the smallest singular value
	var svd mat.SVD
	if !svd.Factorize(m, mat.SVDFull) {
		return nil, fmt.Errorf("%w: SVD of design matrix failed", ErrDegenerateGeometry)
	}
	var v mat.Dense
	svd.VTo(&v)
	f := mat.NewDense(3, 3, nil)
	for i := 0; i < 9; i++ {
		f.Set(i/3, i%3, v.At(i, 8))
	}

	if err := EnforceRank2(f); err != nil {
		return nil, err
	}

	// Undo normalization: F = Tb^T * F * Ta
	var tmp, full mat.Dense
	tmp.Mul(tb.T(), f)
	full.Mul(&tmp, ta)

	norm := mat.Norm(&full, 2)
	if norm == 0 || math.IsNaN(norm) {
		return nil, fmt.Errorf("%w: zero fundamental matrix", ErrDegenerateGeometry)
	}
	full.Scale(1/norm, &full)
	return &full, nil
}

// EnforceRank2 projects f (in place) onto the closest rank-2 matrix in Frobenius norm,
// by zeroing its smallest singular value.
func EnforceRank2(f *mat.Dense) error {
	var svd mat.SVD
	if !svd.Factorize(f, mat.SVDFull) {
		return fmt.Errorf("%w: SVD of fundamental matrix failed", ErrDegenerateGeometry)
	}
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)
	s := svd.Values(nil)
	s[2] = 0

	var us mat.Dense
	us.Mul(&u, mat.NewDiagDense(3, s))
	f.Mul(&us, v.T())
	return nil
}

// SingularValues of a 3x3 matrix, largest first
func SingularValues(f mat.Matrix) []float64 {
	var svd mat.SVD
	if !svd.Factorize(f, mat.SVDNone) {
		return nil
	}
	return svd.Values(nil)
}

// normalizePoints translates the points so that their centroid is at the origin and
// scales them so that their mean distance from the origin is sqrt(2)
// (Multiple View Geometry, Alg 11.1). Returns false if all points coincide.
func normalizePoints(pts []r2.Point) ([]r2.Point, *mat.Dense, bool) {
	n := float64(len(pts))
	mu := r2.Point{}
	for _, p := range pts {
		mu = mu.Add(p)
	}
	mu = mu.Mul(1 / n)

	d := 0.0
	for _, p := range pts {
		d += p.Sub(mu).Norm()
	}
	d /= n
	if d < 1e-12 {
		return nil, nil, false
	}

	scale := math.Sqrt2 / d
	t := mat.NewDense(3, 3, []float64{
		scale, 0, -scale * mu.X,
		0, scale, -scale * mu.Y,
		0, 0, 1,
	})
	out := make([]r2.Point, len(pts))
	for i, p := range pts {
		out[i] = p.Sub(mu).Mul(scale)
	}
	return out, t, true
}

// isDegenerateSet returns true if the points coincide or lie (almost) on one line.
// Such a set does not constrain F, no matter how many points it holds.
func isDegenerateSet(pts []r2.Point) bool {
	norm, _, ok := normalizePoints(pts)
	if !ok {
		return true
	}
	var sxx, sxy, syy float64
	for _, p := range norm {
		sxx += p.X * p.X
		sxy += p.X * p.Y
		syy += p.Y * p.Y
	}
	// eigenvalues of the 2x2 scatter matrix
	tr := sxx + syy
	det := sxx*syy - sxy*sxy
	disc := math.Sqrt(math.Max(tr*tr/4-det, 0))
	lmax := tr/2 + disc
	lmin := tr/2 - disc
	if lmax <= 0 {
		return true
	}
	return lmin/lmax < degenerateSpreadRatio
}

package geom

import (
	"math"

	"github.com/cyclopcam/epipolar/pkg/stats"
	"github.com/golang/geo/r2"
	"gonum.org/v1/gonum/mat"
)

// ErrorSample is the epipolar error of one correspondence, in pixels
type ErrorSample struct {
	Distance float64
	Inlier   bool
}

// SymmetricEpipolarDistance is the distance from b to the epipolar line F·a in the
// second image, plus the distance from a to the epipolar line Fᵀ·b in the first image.
// A degenerate (zero length) epipolar line contributes zero.
// The result is always finite and non-negative.
func SymmetricEpipolarDistance(f mat.Matrix, a, b r2.Point) float64 {
	da, db := EpipolarLineDistances(f, a, b)
	return da + db
}

// EpipolarLineDistances returns the two one-sided point-to-line distances:
// da from a to Fᵀ·b in the first image, and db from b to F·a in the second image.
// A degenerate (zero length) line gives zero. Both results are finite and non-negative.
func EpipolarLineDistances(f mat.Matrix, a, b r2.Point) (da, db float64) {
	// l2 = F·a
	l2x := f.At(0, 0)*a.X + f.At(0, 1)*a.Y + f.At(0, 2)
	l2y := f.At(1, 0)*a.X + f.At(1, 1)*a.Y + f.At(1, 2)
	l2z := f.At(2, 0)*a.X + f.At(2, 1)*a.Y + f.At(2, 2)

	// l1 = Fᵀ·b
	l1x := f.At(0, 0)*b.X + f.At(1, 0)*b.Y + f.At(2, 0)
	l1y := f.At(0, 1)*b.X + f.At(1, 1)*b.Y + f.At(2, 1)

	// bᵀ·F·a, which is the same algebraic residual for both lines
	r := math.Abs(b.X*l2x + b.Y*l2y + l2z)

	return lineDistance(r, l1x, l1y), lineDistance(r, l2x, l2y)
}

func lineDistance(residual, lx, ly float64) float64 {
	n := math.Hypot(lx, ly)
	if n < 1e-15 {
		return 0
	}
	d := residual / n
	if math.IsNaN(d) || math.IsInf(d, 0) {
		return 0
	}
	return d
}

// EpipolarErrors measures every correspondence against est.F, tagging each sample
// with the estimate's inlier mask.
func EpipolarErrors(est *Estimate, a, b []r2.Point) []ErrorSample {
	samples := make([]ErrorSample, len(a))
	for i := range a {
		samples[i] = ErrorSample{
			Distance: SymmetricEpipolarDistance(est.F, a[i], b[i]),
			Inlier:   i < len(est.Inliers) && est.Inliers[i],
		}
	}
	return samples
}

// SummarizeErrors returns mean, median and population std of the sample distances.
// If inlierOnly is true, outliers are ignored.
func SummarizeErrors(samples []ErrorSample, inlierOnly bool) stats.Summary {
	return stats.Summarize(SampleDistances(samples, inlierOnly))
}

// SampleDistances extracts the distances from samples
func SampleDistances(samples []ErrorSample, inlierOnly bool) []float64 {
	d := make([]float64, 0, len(samples))
	for _, s := range samples {
		if inlierOnly && !s.Inlier {
			continue
		}
		d = append(d, s.Distance)
	}
	return d
}

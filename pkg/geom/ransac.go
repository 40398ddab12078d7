package geom

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/golang/geo/r2"
	"gonum.org/v1/gonum/mat"
)

// EstimatorConfig controls robust fundamental matrix estimation
type EstimatorConfig struct {
	Threshold      float64 // Inlier threshold on the larger of the two point-to-line distances, in pixels
	MinInlierRatio float64 // An estimate with fewer inliers than this is rejected as degenerate
	MaxIterations  int     // Upper bound on RANSAC iterations
	Confidence     float64 // Probability of drawing at least one all-inlier sample
	Seed           uint64
}

func DefaultEstimatorConfig() EstimatorConfig {
	return EstimatorConfig{
		Threshold:      1.0,
		MinInlierRatio: 0.25,
		MaxIterations:  2000,
		Confidence:     0.99,
		Seed:           1,
	}
}

// Estimate is the result of fitting F to a set of matches
type Estimate struct {
	F           *mat.Dense // 3x3, rank 2, unit Frobenius norm
	Inliers     []bool     // Parallel to the input matches
	NumInliers  int
	InlierRatio float64
	Iterations  int
}

// Estimator fits fundamental matrices with RANSAC over 8-point minimal samples.
// An Estimator holds no mutable state and is safe to share between goroutines.
type Estimator struct {
	cfg EstimatorConfig
}

// NewEstimator fills zero fields of cfg with their defaults
func NewEstimator(cfg EstimatorConfig) *Estimator {
	def := DefaultEstimatorConfig()
	if cfg.Threshold <= 0 {
		cfg.Threshold = def.Threshold
	}
	if cfg.MinInlierRatio <= 0 {
		cfg.MinInlierRatio = def.MinInlierRatio
	}
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = def.MaxIterations
	}
	if cfg.Confidence <= 0 || cfg.Confidence >= 1 {
		cfg.Confidence = def.Confidence
	}
	return &Estimator{cfg: cfg}
}

func (e *Estimator) Config() EstimatorConfig {
	return e.cfg
}

// Estimate runs RANSAC with the configured seed
func (e *Estimator) Estimate(a, b []r2.Point) (*Estimate, error) {
	return e.EstimateSeeded(a, b, e.cfg.Seed)
}

// EstimateSeeded runs RANSAC with an explicit seed.
// The same seed and input always produce the same Estimate.
func (e *Estimator) EstimateSeeded(a, b []r2.Point, seed uint64) (*Estimate, error) {
	if len(a) != len(b) {
		return nil, fmt.Errorf("Point sets differ in length (%v vs %v)", len(a), len(b))
	}
	n := len(a)
	if n < MinPoints {
		return nil, fmt.Errorf("%w: need %v correspondences, have %v", ErrInsufficientMatches, MinPoints, n)
	}
	if isDegenerateSet(a) || isDegenerateSet(b) {
		return nil, fmt.Errorf("%w: points are coincident or collinear", ErrDegenerateGeometry)
	}

	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))

	perm := make([]int, n)
	for i := range perm {
		perm[i] = i
	}
	sa := make([]r2.Point, MinPoints)
	sb := make([]r2.Point, MinPoints)

	var bestF *mat.Dense
	var bestMask []bool
	bestCount := 0
	needed := e.cfg.MaxIterations
	iter := 0
	for ; iter < needed; iter++ {
		// Partial Fisher-Yates: the first MinPoints entries of perm become the sample
		for i := 0; i < MinPoints; i++ {
			j := i + rng.IntN(n-i)
			perm[i], perm[j] = perm[j], perm[i]
		}
		for i := 0; i < MinPoints; i++ {
			sa[i] = a[perm[i]]
			sb[i] = b[perm[i]]
		}
		if isDegenerateSet(sa) || isDegenerateSet(sb) {
			continue
		}
		f, err := FundamentalEightPoint(sa, sb)
		if err != nil {
			continue
		}
		mask, count := e.scoreInliers(f, a, b)
		if count > bestCount {
			bestF, bestMask, bestCount = f, mask, count
			needed = min(e.cfg.MaxIterations, adaptiveIterations(float64(count)/float64(n), e.cfg.Confidence))
		}
	}
	if bestF == nil {
		return nil, fmt.Errorf("%w: no valid minimal sample in %v iterations", ErrDegenerateGeometry, iter)
	}

	// Refit on all inliers, for as long as that does not lose inliers
	for round := 0; round < 3 && bestCount >= MinPoints; round++ {
		ia, ib := selectMasked(a, b, bestMask)
		f, err := FundamentalEightPoint(ia, ib)
		if err != nil {
			break
		}
		mask, count := e.scoreInliers(f, a, b)
		if count < bestCount {
			break
		}
		grew := count > bestCount
		bestF, bestMask, bestCount = f, mask, count
		if !grew {
			break
		}
	}

	ratio := float64(bestCount) / float64(n)
	if ratio < e.cfg.MinInlierRatio {
		return nil, fmt.Errorf("%w: inlier ratio %.3f is below %.3f", ErrDegenerateGeometry, ratio, e.cfg.MinInlierRatio)
	}

	return &Estimate{
		F:           bestF,
		Inliers:     bestMask,
		NumInliers:  bestCount,
		InlierRatio: ratio,
		Iterations:  iter,
	}, nil
}

// A match is an inlier if it lies within Threshold of its epipolar line in both images.
// Threshold bounds each distance separately, not their sum.
func (e *Estimator) scoreInliers(f *mat.Dense, a, b []r2.Point) ([]bool, int) {
	mask := make([]bool, len(a))
	count := 0
	for i := range a {
		da, db := EpipolarLineDistances(f, a[i], b[i])
		if max(da, db) < e.cfg.Threshold {
			mask[i] = true
			count++
		}
	}
	return mask, count
}

// Number of iterations needed to draw one all-inlier sample with the given confidence
func adaptiveIterations(inlierRatio, confidence float64) int {
	if inlierRatio >= 1 {
		return 1
	}
	if inlierRatio <= 0 {
		return math.MaxInt32
	}
	pGood := math.Pow(inlierRatio, MinPoints)
	if pGood < 1e-12 {
		return math.MaxInt32
	}
	k := math.Log(1-confidence) / math.Log(1-pGood)
	if math.IsNaN(k) || k > math.MaxInt32 {
		return math.MaxInt32
	}
	return max(1, int(math.Ceil(k)))
}

func selectMasked(a, b []r2.Point, mask []bool) ([]r2.Point, []r2.Point) {
	var ia, ib []r2.Point
	for i, m := range mask {
		if m {
			ia = append(ia, a[i])
			ib = append(ib, b[i])
		}
	}
	return ia, ib
}

package stats

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Summary describes a set of non-negative error samples.
// Std is the population standard deviation, so that summaries can be pooled exactly.
type Summary struct {
	Count  int
	Mean   float64
	Median float64
	Std    float64
}

// Summarize returns mean, median and population std of the samples.
// An empty input produces the zero Summary.
func Summarize(samples []float64) Summary {
	if len(samples) == 0 {
		return Summary{}
	}
	mean, std := stat.PopMeanStdDev(samples, nil)
	return Summary{
		Count:  len(samples),
		Mean:   mean,
		Median: Median(samples),
		Std:    std,
	}
}

// Returns the mean of the given samples (NaN if empty)
func Mean(samples []float64) float64 {
	if len(samples) == 0 {
		return math.NaN()
	}
	return stat.Mean(samples, nil)
}

// Median of the samples. The input is not modified.
func Median(samples []float64) float64 {
	return Quantile(sortedCopy(samples), 0.5)
}

// Quantile of already-sorted samples, using linear interpolation between the
// two nearest ranks (the same definition as numpy's default percentile).
func Quantile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return math.NaN()
	}
	if n == 1 || p <= 0 {
		return sorted[0]
	}
	if p >= 1 {
		return sorted[n-1]
	}
	pos := p * float64(n-1)
	lo := int(math.Floor(pos))
	hi := lo + 1
	if hi >= n {
		return sorted[n-1]
	}
	frac := pos - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}

func sortedCopy(samples []float64) []float64 {
	c := make([]float64, len(samples))
	copy(c, samples)
	sort.Float64s(c)
	return c
}

// Pool combines groups of samples, each described only by (count, mean, population std),
// into the statistics of the union of all the samples.
// Pooling is exact: adding two groups gives the same mean and std as if the raw samples
// had been concatenated, which is what lets a report be recomputed from its per-video rows.
type Pool struct {
	n     int
	sum   float64 // sum of x
	sumSq float64 // sum of x^2
}

// Add a group of n samples with the given mean and population std
func (p *Pool) Add(n int, mean, std float64) {
	if n <= 0 {
		return
	}
	p.n += n
	p.sum += float64(n) * mean
	p.sumSq += float64(n) * (std*std + mean*mean)
}

func (p *Pool) Count() int {
	return p.n
}

// Mean of the pooled samples (NaN when empty)
func (p *Pool) Mean() float64 {
	if p.n == 0 {
		return math.NaN()
	}
	return p.sum / float64(p.n)
}

// Std is the population standard deviation of the pooled samples (NaN when empty)
func (p *Pool) Std() float64 {
	if p.n == 0 {
		return math.NaN()
	}
	mean := p.Mean()
	variance := p.sumSq/float64(p.n) - mean*mean
	if variance < 0 {
		// cancellation when all samples are (nearly) equal
		variance = 0
	}
	return math.Sqrt(variance)
}

package epipolar

import (
	"fmt"
	"math"
	"slices"

	"github.com/cyclopcam/epipolar/pkg/stats"
	"gonum.org/v1/gonum/floats"
)

// CategoryStats describes the spread of per-video mean errors within a category.
// These are statistics of videos, not of pooled samples, so a video with few inliers
// counts as much as one with many.
type CategoryStats struct {
	Category  string
	NumVideos int // Videos with a mean error
	Mean      float64
	Std       float64
	Min       float64
	Q25       float64
	Median    float64
	Q75       float64
	Max       float64
}

// VideoMeanStats returns CategoryStats for every category of the report, sorted by name.
// Categories without any evaluated video have NumVideos = 0 and NaN statistics.
func VideoMeanStats(r *Report) []CategoryStats {
	byCat := map[string][]float64{}
	for _, cat := range r.Categories() {
		byCat[cat] = nil
	}
	for _, v := range r.Videos {
		if v.Evaluated() {
			byCat[v.Category] = append(byCat[v.Category], *v.MeanError)
		} else if _, ok := byCat[v.Category]; !ok {
			byCat[v.Category] = nil
		}
	}
	cats := make([]string, 0, len(byCat))
	for c := range byCat {
		cats = append(cats, c)
	}
	slices.Sort(cats)

	out := []CategoryStats{}
	for _, cat := range cats {
		means := byCat[cat]
		cs := CategoryStats{Category: cat, NumVideos: len(means)}
		if len(means) == 0 {
			nan := math.NaN()
			cs.Mean, cs.Std, cs.Min, cs.Q25, cs.Median, cs.Q75, cs.Max = nan, nan, nan, nan, nan, nan, nan
		} else {
			slices.Sort(means)
			s := stats.Summarize(means)
			cs.Mean = s.Mean
			cs.Std = s.Std
			cs.Min = floats.Min(means)
			cs.Max = floats.Max(means)
			cs.Q25 = stats.Quantile(means, 0.25)
			cs.Median = s.Median
			cs.Q75 = stats.Quantile(means, 0.75)
		}
		out = append(out, cs)
	}
	return out
}

// VerifySummaries recomputes the summaries of r from its video rows, and returns an
// error if they disagree with the summaries stored in r.
func VerifySummaries(r *Report) error {
	fresh := BuildReport(r.Config, r.Videos)
	if len(fresh.CategorySummary) != len(r.CategorySummary) {
		return fmt.Errorf("Report has %v category summaries, but its videos have %v categories", len(r.CategorySummary), len(fresh.CategorySummary))
	}
	for cat, want := range fresh.CategorySummary {
		have := r.CategorySummary[cat]
		if have == nil {
			return fmt.Errorf("Category %v is missing from the summary", cat)
		}
		if err := compareSummary(cat, have, want); err != nil {
			return err
		}
	}
	return compareSummary("global", &r.GlobalSummary, &fresh.GlobalSummary)
}

func compareSummary(name string, have, want *Summary) error {
	if have.NumVideos != want.NumVideos || have.NumVideosDiscovered != want.NumVideosDiscovered || have.NumSamples != want.NumSamples {
		return fmt.Errorf("%v: counts differ (videos %v/%v, discovered %v/%v, samples %v/%v)", name,
			have.NumVideos, want.NumVideos, have.NumVideosDiscovered, want.NumVideosDiscovered, have.NumSamples, want.NumSamples)
	}
	if !closeEnough(have.MeanError, want.MeanError) || !closeEnough(have.StdError, want.StdError) {
		return fmt.Errorf("%v: pooled statistics differ from the video rows", name)
	}
	return nil
}

func closeEnough(a, b *float64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return math.Abs(*a-*b) <= 1e-9*math.Max(1, math.Abs(*b))
}

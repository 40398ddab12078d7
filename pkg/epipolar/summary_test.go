package epipolar

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestVideoMeanStats(t *testing.T) {
	videos := []*VideoResult{
		videoFromSamples("a", "a/1.mp4", []float64{0.1}),
		videoFromSamples("a", "a/2.mp4", []float64{0.3, 0.3}),
		videoFromSamples("a", "a/3.mp4", []float64{0.5, 0.5, 0.5}),
		videoFromSamples("a", "a/4.mp4", []float64{0.9}),
		videoFromSamples("a", "a/5.mp4", nil),
		videoFromSamples("b", "b/1.mp4", nil),
	}
	r := BuildReport(ReportConfig{}, videos)
	s := VideoMeanStats(r)
	require.Len(t, s, 2)

	a := s[0]
	require.Equal(t, "a", a.Category)
	require.Equal(t, 4, a.NumVideos)
	require.InDelta(t, 0.45, a.Mean, 1e-12)
	require.InDelta(t, 0.1, a.Min, 1e-12)
	require.InDelta(t, 0.9, a.Max, 1e-12)
	require.InDelta(t, 0.4, a.Median, 1e-12)
	require.InDelta(t, 0.25, a.Q25, 1e-12)
	require.InDelta(t, 0.6, a.Q75, 1e-12)

	b := s[1]
	require.Equal(t, 0, b.NumVideos)
	require.True(t, math.IsNaN(b.Mean))
}

func TestVerifySummaries(t *testing.T) {
	r := BuildReport(ReportConfig{}, []*VideoResult{
		videoFromSamples("a", "a/1.mp4", []float64{0.1, 0.2}),
		videoFromSamples("b", "b/1.mp4", []float64{0.4}),
	})
	require.NoError(t, VerifySummaries(r))

	*r.CategorySummary["a"].MeanError += 0.01
	require.Error(t, VerifySummaries(r))

	r = BuildReport(ReportConfig{}, r.Videos)
	r.GlobalSummary.NumVideosDiscovered = 5
	require.ErrorContains(t, VerifySummaries(r), "global")
}

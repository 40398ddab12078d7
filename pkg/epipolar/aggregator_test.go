package epipolar

import (
	"context"
	"testing"

	"github.com/cyclopcam/logs"
	"github.com/stretchr/testify/require"
)

func TestAggregatorCorruptAndValid(t *testing.T) {
	cfg := testConfig()
	videos := map[string]fakeVideo{
		"i2v/a/model1.mp4": {numFrames: 6, decodeErrAt: -1},
		"i2v/b/model2.mp4": {numFrames: 8, decodeErrAt: -1},
	}
	log := logs.NewTestingLog(t)
	e := NewEvaluator(log, cfg, &fakeSource{videos: videos}, &fakeMatcher{numPoints: 80, sigma: 0.3})
	agg := NewAggregator(log, cfg, e)
	progress := 0
	agg.OnResult = func(done, total int, r *VideoResult) {
		progress++
		require.Equal(t, progress, done)
		require.Equal(t, 3, total)
	}

	samples := []VideoSample{
		{Category: "b", Model: "model2", Path: "i2v/b/model2.mp4"},
		{Category: "a", Model: "corrupt", Path: "i2v/a/corrupt.mp4"},
		{Category: "a", Model: "model1", Path: "i2v/a/model1.mp4"},
	}
	report := agg.Run(context.Background(), samples)
	require.Equal(t, 3, progress)
	require.NotEmpty(t, report.RunID)
	require.False(t, report.CreatedAt.IsZero())

	require.Len(t, report.Videos, 3)
	paths := []string{}
	for _, v := range report.Videos {
		paths = append(paths, v.Path)
	}
	require.Equal(t, []string{"i2v/a/corrupt.mp4", "i2v/a/model1.mp4", "i2v/b/model2.mp4"}, paths)

	corrupt := report.Videos[0]
	require.Equal(t, map[string]int{ReasonVideoRead: 1}, corrupt.SkipReasons)
	require.Nil(t, corrupt.MeanError)
	require.Equal(t, 5, report.Videos[1].NumPairsEvaluated)
	require.Equal(t, 7, report.Videos[2].NumPairsEvaluated)

	a := report.CategorySummary["a"]
	require.Equal(t, 1, a.NumVideos)
	require.Equal(t, 2, a.NumVideosDiscovered)
	require.InDelta(t, *report.Videos[1].MeanError, *a.MeanError, 1e-12)
	require.Equal(t, 2, report.GlobalSummary.NumVideos)
	require.Equal(t, 3, report.GlobalSummary.NumVideosDiscovered)
	require.Equal(t, report.Videos[1].NumInlierSamples+report.Videos[2].NumInlierSamples, report.GlobalSummary.NumSamples)
}

// One category holding a corrupt video next to two valid ones
func TestAggregatorCorruptInCategory(t *testing.T) {
	cfg := testConfig()
	videos := map[string]fakeVideo{
		"i2v/orbit/long.mp4":  {numFrames: 12, decodeErrAt: -1},
		"i2v/orbit/short.mp4": {numFrames: 3, decodeErrAt: -1},
	}
	log := logs.NewTestingLog(t)
	e := NewEvaluator(log, cfg, &fakeSource{videos: videos}, &fakeMatcher{numPoints: 80, sigma: 0.5})
	samples := []VideoSample{
		{Category: "orbit", Model: "broken", Path: "i2v/orbit/broken.mp4"},
		{Category: "orbit", Model: "long", Path: "i2v/orbit/long.mp4"},
		{Category: "orbit", Model: "short", Path: "i2v/orbit/short.mp4"},
	}
	report := NewAggregator(log, cfg, e).Run(context.Background(), samples)

	require.Len(t, report.Videos, 3)
	broken, long, short := report.Videos[0], report.Videos[1], report.Videos[2]
	require.Equal(t, "broken", broken.Model)
	require.Equal(t, 0, broken.NumPairsEvaluated)
	require.Equal(t, map[string]int{ReasonVideoRead: 1}, broken.SkipReasons)
	require.Equal(t, 11, long.NumPairsEvaluated)
	require.Equal(t, 2, short.NumPairsEvaluated)

	n1, n2 := long.NumInlierSamples, short.NumInlierSamples
	pooled := (float64(n1)*(*long.MeanError) + float64(n2)*(*short.MeanError)) / float64(n1+n2)

	cat := report.CategorySummary["orbit"]
	require.Equal(t, 2, cat.NumVideos)
	require.Equal(t, 3, cat.NumVideosDiscovered)
	require.Equal(t, n1+n2, cat.NumSamples)
	require.InDelta(t, pooled, *cat.MeanError, 1e-9)
	require.InDelta(t, *cat.MeanError, *report.GlobalSummary.MeanError, 1e-12)
}

func TestAggregatorIsDeterministic(t *testing.T) {
	videos := map[string]fakeVideo{}
	samples := []VideoSample{}
	for _, name := range []string{"p", "q", "r", "s", "t"} {
		path := "i2v/cat/" + name + ".mp4"
		videos[path] = fakeVideo{numFrames: 4, decodeErrAt: -1}
		samples = append(samples, VideoSample{Category: "cat", Model: name, Path: path})
	}
	run := func(workers int) *Report {
		cfg := testConfig()
		cfg.Workers = workers
		log := logs.NewTestingLog(t)
		e := NewEvaluator(log, cfg, &fakeSource{videos: videos}, &fakeMatcher{numPoints: 60, sigma: 0.5})
		return NewAggregator(log, cfg, e).Run(context.Background(), samples)
	}
	one := run(1)
	four := run(4)
	for i := range one.Videos {
		require.Equal(t, one.Videos[i].Path, four.Videos[i].Path)
		require.Equal(t, *one.Videos[i].MeanError, *four.Videos[i].MeanError)
	}
	require.Equal(t, *one.GlobalSummary.MeanError, *four.GlobalSummary.MeanError)
}

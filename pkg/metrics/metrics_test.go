package metrics

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cyclopcam/epipolar/pkg/epipolar"
	"github.com/cyclopcam/epipolar/pkg/perfstats"
	"github.com/stretchr/testify/require"
)

func TestWriteTextfile(t *testing.T) {
	mean := 0.42
	std := 0.1
	videos := []*epipolar.VideoResult{
		{Category: "orbit", Path: "a.mp4", NumPairsEvaluated: 4, NumPairsSkipped: 1,
			SkipReasons: map[string]int{"degenerate_geometry": 1}, MeanError: &mean, StdError: &std, NumInlierSamples: 50},
		{Category: "orbit", Path: "b.mp4", SkipReasons: map[string]int{"video_read_error": 1}},
	}
	report := epipolar.BuildReport(epipolar.ReportConfig{SamplingRate: 15, Descriptor: "sift"}, videos)
	report.CreatedAt = time.Unix(1700000000, 0)

	stages := perfstats.NewStages()
	stages.Add("match", 1500*time.Millisecond)

	m := NewRunMetrics()
	m.Observe(report, stages)
	path := filepath.Join(t.TempDir(), "epipolar.prom")
	require.NoError(t, m.WriteTextfile(path))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(raw)
	require.Contains(t, text, `epipolar_videos_total{category="orbit",status="evaluated"} 1`)
	require.Contains(t, text, `epipolar_videos_total{category="orbit",status="skipped"} 1`)
	require.Contains(t, text, `epipolar_skips_total{category="orbit",reason="video_read_error"} 1`)
	require.Contains(t, text, `epipolar_pairs_evaluated_total{category="orbit"} 4`)
	require.Contains(t, text, `epipolar_category_mean_error_pixels{category="orbit"} 0.42`)
	require.Contains(t, text, `epipolar_stage_seconds_total{stage="match"} 1.5`)
	require.Contains(t, text, `epipolar_last_run_timestamp_seconds 1.7e+09`)
}

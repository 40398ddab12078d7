// Package metrics exports the outcome of a run in the Prometheus text format, for the
// node_exporter textfile collector.
package metrics

import (
	"github.com/cyclopcam/epipolar/pkg/epipolar"
	"github.com/cyclopcam/epipolar/pkg/perfstats"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// RunMetrics holds the collectors of a single run, in their own registry
type RunMetrics struct {
	Registry *prometheus.Registry

	VideosTotal         *prometheus.CounterVec
	PairsEvaluatedTotal *prometheus.CounterVec
	PairsSkippedTotal   *prometheus.CounterVec
	VideoMeanError      *prometheus.HistogramVec
	CategoryMeanError   *prometheus.GaugeVec
	GlobalMeanError     prometheus.Gauge
	StageSeconds        *prometheus.CounterVec
	LastRunTimestamp    prometheus.Gauge
}

func NewRunMetrics() *RunMetrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &RunMetrics{
		Registry: reg,
		VideosTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "epipolar_videos_total",
			Help: "Videos in the run, by category and whether any pair was evaluated",
		}, []string{"category", "status"}),
		PairsEvaluatedTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "epipolar_pairs_evaluated_total",
			Help: "Frame pairs that produced epipolar error samples",
		}, []string{"category"}),
		PairsSkippedTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "epipolar_skips_total",
			Help: "Skipped frame pairs and videos, by reason",
		}, []string{"category", "reason"}),
		VideoMeanError: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "epipolar_video_mean_error_pixels",
			Help:    "Distribution of per-video mean symmetric epipolar error",
			Buckets: []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.8, 1, 1.5, 2},
		}, []string{"category"}),
		CategoryMeanError: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "epipolar_category_mean_error_pixels",
			Help: "Pooled mean inlier epipolar error of each category",
		}, []string{"category"}),
		GlobalMeanError: f.NewGauge(prometheus.GaugeOpts{
			Name: "epipolar_global_mean_error_pixels",
			Help: "Pooled mean inlier epipolar error over all videos",
		}),
		StageSeconds: f.NewCounterVec(prometheus.CounterOpts{
			Name: "epipolar_stage_seconds_total",
			Help: "Time spent in each stage of the pipeline",
		}, []string{"stage"}),
		LastRunTimestamp: f.NewGauge(prometheus.GaugeOpts{
			Name: "epipolar_last_run_timestamp_seconds",
			Help: "Time at which the run started",
		}),
	}
}

// Observe records a finished report, and optionally the stage timings of the run
func (m *RunMetrics) Observe(report *epipolar.Report, stages *perfstats.Stages) {
	for _, v := range report.Videos {
		status := "skipped"
		if v.Evaluated() {
			status = "evaluated"
			m.VideoMeanError.WithLabelValues(v.Category).Observe(*v.MeanError)
		}
		m.VideosTotal.WithLabelValues(v.Category, status).Inc()
		m.PairsEvaluatedTotal.WithLabelValues(v.Category).Add(float64(v.NumPairsEvaluated))
		for reason, n := range v.SkipReasons {
			m.PairsSkippedTotal.WithLabelValues(v.Category, reason).Add(float64(n))
		}
	}
	for cat, s := range report.CategorySummary {
		if s.MeanError != nil {
			m.CategoryMeanError.WithLabelValues(cat).Set(*s.MeanError)
		}
	}
	if report.GlobalSummary.MeanError != nil {
		m.GlobalMeanError.Set(*report.GlobalSummary.MeanError)
	}
	if stages != nil {
		for name, acc := range stages.Snapshot() {
			m.StageSeconds.WithLabelValues(name).Add(acc.Total.Seconds())
		}
	}
	if !report.CreatedAt.IsZero() {
		m.LastRunTimestamp.Set(float64(report.CreatedAt.Unix()))
	}
}

// WriteTextfile writes all metrics to path, atomically
func (m *RunMetrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.Registry)
}

package epipolar

import (
	"time"
)

// Reasons for skipping a frame pair, or a whole video
const (
	ReasonVideoRead            = "video_read_error"
	ReasonTooFewFrames         = "too_few_frames"
	ReasonTimeout              = "timeout"
	ReasonInsufficientFeatures = "insufficient_features"
	ReasonInsufficientMatches  = "insufficient_matches"
	ReasonDegenerateGeometry   = "degenerate_geometry"
	ReasonMatcherError         = "matcher_error"
	ReasonFrameDecode          = "frame_decode_error"
)

// VideoSample identifies one video to evaluate
type VideoSample struct {
	Category  string
	Model     string // File name without extension
	Path      string
	NumFrames int     // Zero until probed
	FrameRate float64 // Zero until probed
}

// VideoResult is the outcome of evaluating one video.
// The error statistics are over the pooled inlier errors of all evaluated pairs,
// and are nil when no pair could be evaluated.
type VideoResult struct {
	Category          string         `json:"category"`
	Model             string         `json:"model"`
	Path              string         `json:"path"`
	NumPairsEvaluated int            `json:"num_pairs_evaluated"`
	NumPairsSkipped   int            `json:"num_pairs_skipped"`
	SkipReasons       map[string]int `json:"skip_reasons"`
	MeanError         *float64       `json:"mean_error"`
	MedianError       *float64       `json:"median_error"`
	StdError          *float64       `json:"std_error"`
	InlierRatio       *float64       `json:"inlier_ratio"` // Mean of per-pair inlier ratios
	NumInlierSamples  int            `json:"num_inlier_samples"`
	NumFrames         int            `json:"num_frames"`
	FrameRate         float64        `json:"frame_rate"`
	Descriptor        string         `json:"descriptor"`
	SamplingRate      int            `json:"sampling_rate"`
}

// Skip records one occurrence of reason
func (r *VideoResult) Skip(reason string) {
	r.SkipReasons[reason]++
}

// Evaluated is true if at least one pair contributed error samples
func (r *VideoResult) Evaluated() bool {
	return r.NumPairsEvaluated > 0 && r.MeanError != nil
}

// ReportConfig is the configuration echoed in the report
type ReportConfig struct {
	SamplingRate int     `json:"sampling_rate"`
	Descriptor   string  `json:"descriptor"`
	RatioThresh  float64 `json:"ratio_thresh"`
	RansacThresh float64 `json:"ransac_thresh"`
	MinMatches   int     `json:"min_matches"`
	Seed         uint64  `json:"seed"`
}

// Summary pools the inlier errors of a group of videos.
// MeanError and StdError are nil when no video in the group produced samples.
type Summary struct {
	MeanError           *float64 `json:"mean_error"`
	StdError            *float64 `json:"std_error"`
	NumVideos           int      `json:"num_videos"` // Videos that contributed samples
	NumVideosDiscovered int      `json:"num_videos_discovered"`
	NumSamples          int      `json:"num_samples"`
}

// Report is the output of a run
type Report struct {
	RunID           string              `json:"run_id"`
	CreatedAt       time.Time           `json:"created_at"`
	Config          ReportConfig        `json:"config"`
	Videos          []*VideoResult      `json:"videos"`
	CategorySummary map[string]*Summary `json:"category_summary"`
	GlobalSummary   Summary             `json:"global_summary"`
}

func floatPtr(v float64) *float64 {
	return &v
}

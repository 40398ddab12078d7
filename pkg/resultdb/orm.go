package resultdb

import (
	"github.com/cyclopcam/dbh"
	"github.com/cyclopcam/epipolar/pkg/epipolar"
)

// BaseModel is our base class for a GORM model.
// The default GORM Model uses int, but we prefer int64
type BaseModel struct {
	ID int64 `gorm:"primaryKey" json:"id"`
}

// Run is one invocation of the evaluator
type Run struct {
	BaseModel
	RunID               string                                `json:"runID"`
	StartedAt           dbh.IntTime                           `json:"startedAt"`
	Config              *dbh.JSONField[epipolar.ReportConfig] `json:"config"`
	MeanError           *float64                              `json:"meanError"` // Global pooled mean. Null if nothing was evaluated.
	StdError            *float64                              `json:"stdError"`
	NumVideos           int                                   `json:"numVideos"`
	NumVideosDiscovered int                                   `json:"numVideosDiscovered"`
}

func (Run) TableName() string {
	return "run"
}

// Video is one row of a run's results
type Video struct {
	BaseModel
	Run               int64                          `json:"run"`
	Category          string                         `json:"category"`
	Model             string                         `json:"model"`
	Path              string                         `json:"path"`
	NumPairsEvaluated int                            `json:"numPairsEvaluated"`
	NumPairsSkipped   int                            `json:"numPairsSkipped"`
	SkipReasons       *dbh.JSONField[map[string]int] `json:"skipReasons"`
	MeanError         *float64                       `json:"meanError"`
	MedianError       *float64                       `json:"medianError"`
	StdError          *float64                       `json:"stdError"`
	InlierRatio       *float64                       `json:"inlierRatio"`
	NumInlierSamples  int                            `json:"numInlierSamples"`
	NumFrames         int                            `json:"numFrames"`
	FrameRate         float64                        `json:"frameRate"`
	Descriptor        string                         `json:"descriptor"`
	SamplingRate      int                            `json:"samplingRate"`
}

func (Video) TableName() string {
	return "video"
}

func videoFromResult(runID int64, r *epipolar.VideoResult) *Video {
	reasons := r.SkipReasons
	if reasons == nil {
		reasons = map[string]int{}
	}
	return &Video{
		Run:               runID,
		Category:          r.Category,
		Model:             r.Model,
		Path:              r.Path,
		NumPairsEvaluated: r.NumPairsEvaluated,
		NumPairsSkipped:   r.NumPairsSkipped,
		SkipReasons:       &dbh.JSONField[map[string]int]{Data: reasons},
		MeanError:         r.MeanError,
		MedianError:       r.MedianError,
		StdError:          r.StdError,
		InlierRatio:       r.InlierRatio,
		NumInlierSamples:  r.NumInlierSamples,
		NumFrames:         r.NumFrames,
		FrameRate:         r.FrameRate,
		Descriptor:        r.Descriptor,
		SamplingRate:      r.SamplingRate,
	}
}

func (v *Video) toResult() *epipolar.VideoResult {
	reasons := map[string]int{}
	if v.SkipReasons != nil && v.SkipReasons.Data != nil {
		reasons = v.SkipReasons.Data
	}
	return &epipolar.VideoResult{
		Category:          v.Category,
		Model:             v.Model,
		Path:              v.Path,
		NumPairsEvaluated: v.NumPairsEvaluated,
		NumPairsSkipped:   v.NumPairsSkipped,
		SkipReasons:       reasons,
		MeanError:         v.MeanError,
		MedianError:       v.MedianError,
		StdError:          v.StdError,
		InlierRatio:       v.InlierRatio,
		NumInlierSamples:  v.NumInlierSamples,
		NumFrames:         v.NumFrames,
		FrameRate:         v.FrameRate,
		Descriptor:        v.Descriptor,
		SamplingRate:      v.SamplingRate,
	}
}

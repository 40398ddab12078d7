// Package epipolar measures the geometric consistency of generated videos, by the
// epipolar error of matched keypoints between consecutive sampled frames.
package epipolar

import (
	"fmt"
	"runtime"
	"slices"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/cyclopcam/epipolar/pkg/features"
	"github.com/cyclopcam/epipolar/pkg/geom"
)

// Config of an evaluation run.
// Values come from DefaultConfig, then EPIPOLAR_* environment variables, then command line flags.
type Config struct {
	BaseDir      string `env:"BASE_DIR"`
	OutputPath   string `env:"OUTPUT"`
	SamplingRate int    `env:"SAMPLING_RATE"` // Evaluate every N'th frame
	Descriptor   string `env:"DESCRIPTOR"`    // "sift" or "lightglue"

	RatioThresh    float64 `env:"RATIO_THRESH"`     // Lowe ratio test
	RansacThresh   float64 `env:"RANSAC_THRESH"`    // Inlier threshold, in pixels
	MinMatches     int     `env:"MIN_MATCHES"`      // Pairs with fewer matches are skipped
	MinInlierRatio float64 `env:"MIN_INLIER_RATIO"` // Estimates with fewer inliers are degenerate
	MaxIterations  int     `env:"RANSAC_ITERATIONS"`
	Seed           uint64  `env:"SEED"`

	Workers        int           `env:"WORKERS"`
	VideoTimeout   time.Duration `env:"VIDEO_TIMEOUT"` // Zero means no limit
	MaxFrameHeight int           `env:"MAX_FRAME_HEIGHT"`
	LightGlueURL   string        `env:"LIGHTGLUE_URL"`

	DBPath      string `env:"DB"`      // Optional sqlite run history
	MetricsPath string `env:"METRICS"` // Optional Prometheus textfile
}

func DefaultConfig() Config {
	est := geom.DefaultEstimatorConfig()
	feat := features.DefaultConfig()
	return Config{
		BaseDir:        "i2v",
		OutputPath:     "epipolar_results.json",
		SamplingRate:   15,
		Descriptor:     features.DescriptorSIFT,
		RatioThresh:    feat.RatioThresh,
		RansacThresh:   est.Threshold,
		MinMatches:     20,
		MinInlierRatio: est.MinInlierRatio,
		MaxIterations:  est.MaxIterations,
		Seed:           est.Seed,
		Workers:        runtime.NumCPU(),
		VideoTimeout:   10 * time.Minute,
		LightGlueURL:   feat.LightGlueURL,
	}
}

// LoadEnv overrides fields of cfg with any EPIPOLAR_* environment variables that are set
func LoadEnv(cfg *Config) error {
	return env.ParseWithOptions(cfg, env.Options{Prefix: "EPIPOLAR_"})
}

func (c *Config) Validate() error {
	if c.SamplingRate < 1 {
		return fmt.Errorf("Sampling rate must be a positive integer, but is %v", c.SamplingRate)
	}
	if !slices.Contains(features.Descriptors, c.Descriptor) {
		return fmt.Errorf("Unknown descriptor '%v'. Valid values are %v", c.Descriptor, features.Descriptors)
	}
	if c.RatioThresh <= 0 || c.RatioThresh > 1 {
		return fmt.Errorf("Ratio threshold must be in (0,1], but is %v", c.RatioThresh)
	}
	if c.RansacThresh <= 0 {
		return fmt.Errorf("RANSAC threshold must be positive, but is %v", c.RansacThresh)
	}
	if c.MinMatches < geom.MinPoints {
		return fmt.Errorf("Minimum matches must be at least %v, but is %v", geom.MinPoints, c.MinMatches)
	}
	if c.Workers < 1 {
		return fmt.Errorf("Workers must be at least 1, but is %v", c.Workers)
	}
	if c.VideoTimeout < 0 {
		return fmt.Errorf("Video timeout may not be negative")
	}
	return nil
}

func (c *Config) FeatureConfig() features.Config {
	f := features.DefaultConfig()
	f.Descriptor = c.Descriptor
	f.RatioThresh = c.RatioThresh
	f.LightGlueURL = c.LightGlueURL
	return f
}

func (c *Config) EstimatorConfig() geom.EstimatorConfig {
	return geom.EstimatorConfig{
		Threshold:      c.RansacThresh,
		MinInlierRatio: c.MinInlierRatio,
		MaxIterations:  c.MaxIterations,
		Confidence:     geom.DefaultEstimatorConfig().Confidence,
		Seed:           c.Seed,
	}
}

// ReportConfig is the subset of Config that is echoed in the report
func (c *Config) ReportConfig() ReportConfig {
	return ReportConfig{
		SamplingRate: c.SamplingRate,
		Descriptor:   c.Descriptor,
		RatioThresh:  c.RatioThresh,
		RansacThresh: c.RansacThresh,
		MinMatches:   c.MinMatches,
		Seed:         c.Seed,
	}
}

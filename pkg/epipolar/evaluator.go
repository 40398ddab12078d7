package epipolar

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/fnv"
	"path/filepath"
	"time"

	"github.com/cyclopcam/epipolar/pkg/features"
	"github.com/cyclopcam/epipolar/pkg/geom"
	plog "github.com/cyclopcam/epipolar/pkg/log"
	"github.com/cyclopcam/epipolar/pkg/perfstats"
	"github.com/cyclopcam/epipolar/pkg/stats"
	"github.com/cyclopcam/epipolar/pkg/videox"
	"github.com/cyclopcam/logs"
)

// Evaluator computes the epipolar error of a single video.
// One Evaluator is shared by all workers of a run.
type Evaluator struct {
	log       logs.Log
	cfg       Config
	source    videox.FrameSource
	matcher   features.Matcher
	estimator *geom.Estimator
	Stages    *perfstats.Stages // Time spent decoding, matching and estimating, over all videos
}

func NewEvaluator(log logs.Log, cfg Config, source videox.FrameSource, matcher features.Matcher) *Evaluator {
	return &Evaluator{
		log:       log,
		cfg:       cfg,
		source:    source,
		matcher:   matcher,
		estimator: geom.NewEstimator(cfg.EstimatorConfig()),
		Stages:    perfstats.NewStages(),
	}
}

// Result of a single frame pair. Either reason is set, or inliers holds the
// epipolar errors of the pair's inliers.
type pairOutcome struct {
	reason      string
	inliers     []float64
	inlierRatio float64
}

func newVideoResult(sample VideoSample, cfg *Config) *VideoResult {
	return &VideoResult{
		Category:     sample.Category,
		Model:        sample.Model,
		Path:         sample.Path,
		SkipReasons:  map[string]int{},
		NumFrames:    sample.NumFrames,
		FrameRate:    sample.FrameRate,
		Descriptor:   cfg.Descriptor,
		SamplingRate: cfg.SamplingRate,
	}
}

// contextReason maps a context error to a skip reason
func contextReason(ctx context.Context) string {
	if ctx.Err() != nil {
		return ReasonTimeout
	}
	return ""
}

// EvaluateVideo never fails. Anything that goes wrong is recorded as a skip reason,
// and a result with no evaluated pairs always has at least one skip reason.
// When the per-video timeout expires, the pairs evaluated so far are kept.
func (e *Evaluator) EvaluateVideo(ctx context.Context, sample VideoSample) *VideoResult {
	res := newVideoResult(sample, &e.cfg)
	log := plog.NewPrefixLogger(e.log, VideoKey(sample))
	stages := perfstats.NewStages()

	if e.cfg.VideoTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.VideoTimeout)
		defer cancel()
	}

	inliers, ratios := e.evaluateFrames(ctx, log, stages, sample, res)

	if len(inliers) != 0 {
		s := stats.Summarize(inliers)
		res.MeanError = floatPtr(s.Mean)
		res.MedianError = floatPtr(s.Median)
		res.StdError = floatPtr(s.Std)
		res.NumInlierSamples = s.Count
		res.InlierRatio = floatPtr(stats.Mean(ratios))
	}
	if res.NumPairsEvaluated == 0 && len(res.SkipReasons) == 0 {
		res.Skip(ReasonTooFewFrames)
	}

	e.Stages.Merge(stages)
	log.Debugf("Timing: %v", stages)
	if res.Evaluated() {
		log.Infof("✓ epipolar_error=%.4f (%v pairs, %v skipped, inlier ratio %.2f)", *res.MeanError, res.NumPairsEvaluated, res.NumPairsSkipped, *res.InlierRatio)
	} else {
		log.Warnf("✗ %v", res.SkipReasons)
	}
	return res
}

// Decode, match and estimate every consecutive pair of sampled frames.
// Returns the pooled inlier errors, and the inlier ratio of every evaluated pair.
func (e *Evaluator) evaluateFrames(ctx context.Context, log *plog.PrefixLogger, stages *perfstats.Stages, sample VideoSample, res *VideoResult) (inliers, ratios []float64) {
	info, err := e.source.Probe(ctx, sample.Path)
	if err != nil {
		if r := contextReason(ctx); r != "" {
			res.Skip(r)
		} else {
			log.Warnf("Probe failed: %v", err)
			res.Skip(ReasonVideoRead)
		}
		return
	}
	res.NumFrames = info.NumFrames
	res.FrameRate = info.FrameRate

	nSamples := videox.NumSamples(info.NumFrames, e.cfg.SamplingRate)
	if nSamples < 2 {
		log.Infof("Only %v frames, which gives %v samples at rate %v", info.NumFrames, nSamples, e.cfg.SamplingRate)
		res.Skip(ReasonTooFewFrames)
		return
	}

	frames, err := e.source.Open(ctx, sample.Path, info, e.cfg.SamplingRate)
	if err != nil {
		log.Warnf("Open failed: %v", err)
		res.Skip(ReasonVideoRead)
		return
	}

	// Pairs that will never be reached count as skipped
	skipRest := func(reason string) {
		res.Skip(reason)
		res.NumPairsSkipped += max(0, nSamples-1-res.NumPairsEvaluated-res.NumPairsSkipped)
	}

	key := VideoKey(sample)
	var prev *videox.Frame
	nDecoded := 0
	pairIndex := 0
	decodeStart := time.Now()
	for frame, err := range frames {
		stages.Add("decode", time.Since(decodeStart))
		if err != nil {
			switch {
			case contextReason(ctx) != "":
				skipRest(ReasonTimeout)
			case nDecoded == 0 && errors.Is(err, videox.ErrVideoRead):
				log.Warnf("Decode failed: %v", err)
				res.Skip(ReasonVideoRead)
			default:
				// The rest of the video is lost, but the pairs so far are valid
				log.Warnf("Decode failed after %v frames: %v", nDecoded, err)
				skipRest(ReasonFrameDecode)
			}
			return
		}
		nDecoded++
		if prev != nil {
			out := e.evaluatePair(ctx, log, stages, key, pairIndex, prev, &frame)
			pairIndex++
			if out.reason == ReasonTimeout {
				skipRest(ReasonTimeout)
				return
			}
			if out.reason != "" {
				res.Skip(out.reason)
				res.NumPairsSkipped++
			} else {
				res.NumPairsEvaluated++
				inliers = append(inliers, out.inliers...)
				ratios = append(ratios, out.inlierRatio)
			}
		}
		// Only the current frame is retained, so memory is bounded by one pair
		prev = &frame
		decodeStart = time.Now()
	}
	if nDecoded < 2 && res.NumPairsSkipped == 0 {
		res.Skip(ReasonTooFewFrames)
	}
	return
}

func (e *Evaluator) evaluatePair(ctx context.Context, videoLog *plog.PrefixLogger, stages *perfstats.Stages, key string, pairIndex int, a, b *videox.Frame) pairOutcome {
	log := videoLog.Extend(fmt.Sprintf("%v,%v", a.Index, b.Index))
	stopMatch := stages.Start("match")
	matches, err := e.matcher.ExtractAndMatch(ctx, a.Image, b.Image)
	stopMatch()
	if err != nil {
		if contextReason(ctx) != "" {
			return pairOutcome{reason: ReasonTimeout}
		}
		if errors.Is(err, features.ErrInsufficientFeatures) {
			return pairOutcome{reason: ReasonInsufficientFeatures}
		}
		log.Warnf("Matcher failed: %v", err)
		return pairOutcome{reason: ReasonMatcherError}
	}
	if len(matches) < e.cfg.MinMatches {
		log.Debugf("Only %v matches", len(matches))
		return pairOutcome{reason: ReasonInsufficientMatches}
	}

	pa, pb := features.Points(matches)
	stopEstimate := stages.Start("estimate")
	est, err := e.estimator.EstimateSeeded(pa, pb, PairSeed(e.cfg.Seed, key, pairIndex))
	stopEstimate()
	if err != nil {
		log.Debugf("%v", err)
		if errors.Is(err, geom.ErrInsufficientMatches) {
			return pairOutcome{reason: ReasonInsufficientMatches}
		}
		return pairOutcome{reason: ReasonDegenerateGeometry}
	}

	samples := geom.EpipolarErrors(est, pa, pb)
	return pairOutcome{
		inliers:     geom.SampleDistances(samples, true),
		inlierRatio: est.InlierRatio,
	}
}

// VideoKey names a video by category and file name, independent of where the
// base directory lives.
func VideoKey(sample VideoSample) string {
	return sample.Category + "/" + filepath.Base(sample.Path)
}

// PairSeed derives the RANSAC seed of one frame pair from the video key, so that
// results do not depend on which worker evaluates a video, in what order, or on how
// the base directory was spelled.
func PairSeed(seed uint64, key string, pairIndex int) uint64 {
	h := fnv.New64a()
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], seed)
	h.Write(b[:])
	h.Write([]byte(key))
	binary.LittleEndian.PutUint64(b[:], uint64(pairIndex))
	h.Write(b[:])
	return h.Sum64()
}

package epipolar

import (
	"context"
	"sync"
	"time"

	"github.com/cyclopcam/logs"
	"golang.org/x/sync/errgroup"
)

// Aggregator evaluates many videos concurrently and reduces the results into a Report
type Aggregator struct {
	log       logs.Log
	cfg       Config
	evaluator *Evaluator

	// OnResult, if not nil, is called after each video completes.
	// It is called from worker goroutines, but never concurrently.
	OnResult func(done, total int, r *VideoResult)
}

func NewAggregator(log logs.Log, cfg Config, evaluator *Evaluator) *Aggregator {
	return &Aggregator{
		log:       log,
		cfg:       cfg,
		evaluator: evaluator,
	}
}

// Run evaluates all samples, with at most cfg.Workers videos in flight.
// Every sample appears in the report, whatever happened to it.
func (a *Aggregator) Run(ctx context.Context, samples []VideoSample) *Report {
	start := time.Now()
	workers := max(1, a.cfg.Workers)
	a.log.Infof("Evaluating %v videos in %v categories, with %v workers", len(samples), len(CountByCategory(samples)), workers)

	resultsLock := sync.Mutex{}
	results := make([]*VideoResult, 0, len(samples))

	g := errgroup.Group{}
	g.SetLimit(workers)
	for _, sample := range samples {
		g.Go(func() error {
			r := a.evaluator.EvaluateVideo(ctx, sample)
			resultsLock.Lock()
			defer resultsLock.Unlock()
			results = append(results, r)
			if a.OnResult != nil {
				a.OnResult(len(results), len(samples), r)
			}
			return nil
		})
	}
	// Workers never return errors
	g.Wait()

	report := NewReport(a.cfg.ReportConfig(), results)
	a.log.Infof("Evaluated %v videos in %.1f seconds (%v)", len(results), time.Since(start).Seconds(), a.evaluator.Stages)
	return report
}

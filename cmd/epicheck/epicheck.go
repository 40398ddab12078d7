package main

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"os/signal"
	"text/tabwriter"
	"time"

	"github.com/akamensky/argparse"
	"github.com/cyclopcam/epipolar/pkg/epipolar"
	"github.com/cyclopcam/epipolar/pkg/features"
	"github.com/cyclopcam/epipolar/pkg/metrics"
	"github.com/cyclopcam/epipolar/pkg/perfstats"
	"github.com/cyclopcam/epipolar/pkg/resultdb"
	"github.com/cyclopcam/epipolar/pkg/videox"
	"github.com/cyclopcam/logs"
)

func check(err error) {
	if err != nil {
		panic(err)
	}
}

func main() {
	// Defaults, then environment. Flags override both.
	cfg := epipolar.DefaultConfig()
	check(epipolar.LoadEnv(&cfg))

	parser := argparse.NewParser("epicheck", "Measure the epipolar consistency of generated videos")

	runCmd := parser.NewCommand("run", "Evaluate all videos under a directory and write a JSON report")
	baseDir := runCmd.String("b", "basedir", &argparse.Options{Help: "Directory of videos, laid out as <basedir>/<category>/<video>", Default: cfg.BaseDir})
	output := runCmd.String("o", "output", &argparse.Options{Help: "Output JSON report", Default: cfg.OutputPath})
	samplingRate := runCmd.Int("s", "sampling-rate", &argparse.Options{Help: "Evaluate every N'th frame", Default: cfg.SamplingRate})
	descriptor := runCmd.Selector("d", "descriptor", features.Descriptors, &argparse.Options{Help: "Keypoint descriptor", Default: cfg.Descriptor})
	workers := runCmd.Int("w", "workers", &argparse.Options{Help: "Number of videos to evaluate concurrently", Default: cfg.Workers})
	timeout := runCmd.Int("", "timeout", &argparse.Options{Help: "Per-video timeout in seconds (0 = no limit)", Default: int(cfg.VideoTimeout.Seconds())})
	seed := runCmd.Int("", "seed", &argparse.Options{Help: "RANSAC random seed", Default: int(cfg.Seed)})
	lightGlueURL := runCmd.String("", "lightglue-url", &argparse.Options{Help: "URL of the LightGlue matching service", Default: cfg.LightGlueURL})
	runDB := runCmd.String("", "db", &argparse.Options{Help: "Also save the run into this sqlite database", Default: cfg.DBPath})
	metricsFile := runCmd.String("", "metrics", &argparse.Options{Help: "Write Prometheus metrics to this textfile", Default: cfg.MetricsPath})
	maxHeight := runCmd.Int("", "max-height", &argparse.Options{Help: "Downsize frames taller than this before matching (0 = never)", Default: cfg.MaxFrameHeight})

	summaryCmd := parser.NewCommand("summary", "Print per-category statistics of a report")
	summaryReport := summaryCmd.String("r", "report", &argparse.Options{Help: "JSON report to summarize"})
	summaryDB := summaryCmd.String("", "db", &argparse.Options{Help: "Run history database", Default: cfg.DBPath})
	summaryRun := summaryCmd.String("", "run", &argparse.Options{Help: "Run ID to load from the database (instead of --report)"})

	runsCmd := parser.NewCommand("runs", "List the runs in a history database")
	runsDB := runsCmd.String("", "db", &argparse.Options{Help: "Run history database", Required: true})
	runsCategory := runsCmd.String("c", "category", &argparse.Options{Help: "With --model, show the history of one video instead of listing runs"})
	runsModel := runsCmd.String("m", "model", &argparse.Options{Help: "Model (video name) whose history to show"})

	err := parser.Parse(os.Args)
	if err != nil {
		fmt.Print(parser.Usage(err))
		os.Exit(1)
	}

	logger, err := logs.NewLog()
	check(err)
	defer logger.Close()

	switch {
	case runCmd.Happened():
		cfg.BaseDir = *baseDir
		cfg.OutputPath = *output
		cfg.SamplingRate = *samplingRate
		cfg.Descriptor = *descriptor
		cfg.Workers = *workers
		cfg.VideoTimeout = time.Duration(*timeout) * time.Second
		cfg.Seed = uint64(*seed)
		cfg.LightGlueURL = *lightGlueURL
		cfg.DBPath = *runDB
		cfg.MetricsPath = *metricsFile
		cfg.MaxFrameHeight = *maxHeight
		if err := runEvaluation(logger, cfg); err != nil {
			logger.Errorf("%v", err)
			logger.Close()
			os.Exit(1)
		}
	case summaryCmd.Happened():
		var report *epipolar.Report
		if *summaryRun != "" {
			if *summaryDB == "" {
				fmt.Print(parser.Usage(errors.New("--run requires --db")))
				os.Exit(1)
			}
			db, err := resultdb.NewResultDB(logger, *summaryDB)
			check(err)
			report, err = db.LoadReport(*summaryRun)
			db.Close()
			check(err)
		} else {
			if *summaryReport == "" {
				fmt.Print(parser.Usage(errors.New("Either --report or --run is required")))
				os.Exit(1)
			}
			report, err = epipolar.ReadReport(*summaryReport)
			check(err)
		}
		if err := epipolar.VerifySummaries(report); err != nil {
			logger.Warnf("Report summaries do not match its video rows: %v", err)
		}
		printSummary(report)
	case runsCmd.Happened():
		if (*runsCategory == "") != (*runsModel == "") {
			fmt.Print(parser.Usage(errors.New("--category and --model must be given together")))
			os.Exit(1)
		}
		db, err := resultdb.NewResultDB(logger, *runsDB)
		check(err)
		defer db.Close()
		runs, err := db.ListRuns()
		check(err)
		if *runsModel != "" {
			history, err := db.History(*runsCategory, *runsModel)
			check(err)
			printHistory(runs, history)
		} else {
			printRuns(runs)
		}
	}
}

func runEvaluation(logger logs.Log, cfg epipolar.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	samples, err := epipolar.DiscoverVideos(cfg.BaseDir)
	if err != nil {
		return err
	}

	matcher, err := features.NewMatcher(logger, cfg.FeatureConfig())
	if err != nil {
		return err
	}
	defer matcher.Close()

	source := &videox.FFmpegSource{MaxFrameHeight: cfg.MaxFrameHeight}
	evaluator := epipolar.NewEvaluator(logger, cfg, source, matcher)
	agg := epipolar.NewAggregator(logger, cfg, evaluator)
	agg.OnResult = func(done, total int, r *epipolar.VideoResult) {
		logger.Infof("[%v/%v] %v/%v", done, total, r.Category, r.Model)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	logger.Infof("Evaluating %v with descriptor %v, sampling every %v frames", cfg.BaseDir, cfg.Descriptor, cfg.SamplingRate)
	report := agg.Run(ctx, samples)
	return saveResults(logger, cfg, report, evaluator.Stages, ctx.Err() != nil)
}

var errInterrupted = errors.New("Interrupted")

// saveResults writes the report, and then the optional history and metrics.
// An interrupted run still has a result for every video, with the unfinished ones
// marked as timed out, so its report is written before returning errInterrupted.
func saveResults(logger logs.Log, cfg epipolar.Config, report *epipolar.Report, stages *perfstats.Stages, interrupted bool) error {
	if err := epipolar.WriteReport(cfg.OutputPath, report); err != nil {
		return err
	}
	if interrupted {
		logger.Warnf("Interrupted. Partial results saved to %v", cfg.OutputPath)
		printSummary(report)
		return errInterrupted
	}
	logger.Infof("Results saved to %v", cfg.OutputPath)

	// The JSON report is the product of the run. The extras below are logged on failure, but do not fail the run.
	if cfg.DBPath != "" {
		if db, err := resultdb.NewResultDB(logger, cfg.DBPath); err != nil {
			logger.Errorf("%v", err)
		} else {
			if err := db.SaveReport(report); err != nil {
				logger.Errorf("%v", err)
			}
			db.Close()
		}
	}
	if cfg.MetricsPath != "" {
		m := metrics.NewRunMetrics()
		m.Observe(report, stages)
		if err := m.WriteTextfile(cfg.MetricsPath); err != nil {
			logger.Errorf("Failed to write metrics: %v", err)
		}
	}

	printSummary(report)
	return nil
}

func fmtFloat(v float64) string {
	if math.IsNaN(v) {
		return "-"
	}
	return fmt.Sprintf("%.4f", v)
}

func fmtPtr(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmtFloat(*v)
}

func printSummary(report *epipolar.Report) {
	fmt.Printf("Run %v (%v), descriptor %v, sampling rate %v\n\n", report.RunID, report.CreatedAt.Format(time.RFC3339), report.Config.Descriptor, report.Config.SamplingRate)

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(w, "category\tvideos\tpooled mean\tpooled std\tsamples\t")
	for _, cat := range report.Categories() {
		s := report.CategorySummary[cat]
		fmt.Fprintf(w, "%v\t%v/%v\t%v\t%v\t%v\t\n", cat, s.NumVideos, s.NumVideosDiscovered, fmtPtr(s.MeanError), fmtPtr(s.StdError), s.NumSamples)
	}
	g := report.GlobalSummary
	fmt.Fprintf(w, "%v\t%v/%v\t%v\t%v\t%v\t\n", "ALL", g.NumVideos, g.NumVideosDiscovered, fmtPtr(g.MeanError), fmtPtr(g.StdError), g.NumSamples)
	w.Flush()

	fmt.Printf("\nPer-video mean error\n\n")
	w = tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(w, "category\tvideos\tmean\tstd\tmin\tq25\tmedian\tq75\tmax\t")
	for _, s := range epipolar.VideoMeanStats(report) {
		fmt.Fprintf(w, "%v\t%v\t%v\t%v\t%v\t%v\t%v\t%v\t%v\t\n", s.Category, s.NumVideos,
			fmtFloat(s.Mean), fmtFloat(s.Std), fmtFloat(s.Min), fmtFloat(s.Q25), fmtFloat(s.Median), fmtFloat(s.Q75), fmtFloat(s.Max))
	}
	w.Flush()
}

func printRuns(runs []*resultdb.Run) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "run\tstarted\tdescriptor\trate\tvideos\tmean error\t")
	for _, r := range runs {
		cfg := epipolar.ReportConfig{}
		if r.Config != nil {
			cfg = r.Config.Data
		}
		fmt.Fprintf(w, "%v\t%v\t%v\t%v\t%v/%v\t%v\t\n", r.RunID, r.StartedAt.Get().Format(time.RFC3339), cfg.Descriptor, cfg.SamplingRate,
			r.NumVideos, r.NumVideosDiscovered, fmtPtr(r.MeanError))
	}
	w.Flush()
}

func printHistory(runs []*resultdb.Run, history []*resultdb.Video) {
	runIDs := map[int64]string{}
	for _, r := range runs {
		runIDs[r.ID] = r.RunID
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "run\tdescriptor\trate\tpairs\tskipped\tmean error\tinlier ratio\t")
	for _, v := range history {
		fmt.Fprintf(w, "%v\t%v\t%v\t%v\t%v\t%v\t%v\t\n", runIDs[v.Run], v.Descriptor, v.SamplingRate,
			v.NumPairsEvaluated, v.NumPairsSkipped, fmtPtr(v.MeanError), fmtPtr(v.InlierRatio))
	}
	w.Flush()
}

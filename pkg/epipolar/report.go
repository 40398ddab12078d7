package epipolar

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/cyclopcam/epipolar/pkg/stats"
	"github.com/google/uuid"
)

var ErrOutputWrite = errors.New("Failed to write report")

// BuildReport sorts videos by (category, path) and computes the category and global
// summaries from the video rows alone. Running BuildReport on the Videos of an existing
// report reproduces its summaries exactly.
// RunID and CreatedAt are left empty.
func BuildReport(cfg ReportConfig, videos []*VideoResult) *Report {
	sorted := make([]*VideoResult, len(videos))
	copy(sorted, videos)
	SortResults(sorted)

	r := &Report{
		Config:          cfg,
		Videos:          sorted,
		CategorySummary: map[string]*Summary{},
	}

	pools := map[string]*summaryBuilder{}
	global := &summaryBuilder{}
	for _, v := range sorted {
		b := pools[v.Category]
		if b == nil {
			b = &summaryBuilder{}
			pools[v.Category] = b
		}
		b.add(v)
		global.add(v)
	}
	for cat, b := range pools {
		s := b.summary()
		r.CategorySummary[cat] = &s
	}
	r.GlobalSummary = global.summary()
	return r
}

// NewReport is BuildReport with a fresh run ID and timestamp
func NewReport(cfg ReportConfig, videos []*VideoResult) *Report {
	r := BuildReport(cfg, videos)
	r.RunID = uuid.NewString()
	r.CreatedAt = time.Now().UTC().Truncate(time.Second)
	return r
}

// SortResults orders results by (category, path)
func SortResults(videos []*VideoResult) {
	sort.SliceStable(videos, func(i, j int) bool {
		if videos[i].Category != videos[j].Category {
			return videos[i].Category < videos[j].Category
		}
		return videos[i].Path < videos[j].Path
	})
}

type summaryBuilder struct {
	pool       stats.Pool
	videos     int
	discovered int
}

func (b *summaryBuilder) add(v *VideoResult) {
	b.discovered++
	if !v.Evaluated() || v.NumInlierSamples == 0 {
		return
	}
	std := 0.0
	if v.StdError != nil {
		std = *v.StdError
	}
	b.pool.Add(v.NumInlierSamples, *v.MeanError, std)
	b.videos++
}

func (b *summaryBuilder) summary() Summary {
	s := Summary{
		NumVideos:           b.videos,
		NumVideosDiscovered: b.discovered,
		NumSamples:          b.pool.Count(),
	}
	if b.pool.Count() > 0 {
		s.MeanError = floatPtr(b.pool.Mean())
		s.StdError = floatPtr(b.pool.Std())
	}
	return s
}

// Categories returns the category names of the report, sorted
func (r *Report) Categories() []string {
	cats := make([]string, 0, len(r.CategorySummary))
	for c := range r.CategorySummary {
		cats = append(cats, c)
	}
	sort.Strings(cats)
	return cats
}

// WriteReport writes the report as indented JSON.
// The file is written to a temporary file and renamed, so readers never see a partial report.
func WriteReport(path string, r *Report) error {
	b, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: %w", ErrOutputWrite, err)
	}
	b = append(b, '\n')

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("%w: %w", ErrOutputWrite, err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("%w: %w", ErrOutputWrite, err)
	}
	tmpName := tmp.Name()
	_, err = tmp.Write(b)
	if err == nil {
		err = tmp.Sync()
	}
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = os.Chmod(tmpName, 0644)
	}
	if err == nil {
		err = os.Rename(tmpName, path)
	}
	if err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: %v: %w", ErrOutputWrite, path, err)
	}
	return nil
}

// ReadReport loads a report written by WriteReport
func ReadReport(path string) (*Report, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	r := &Report{}
	if err := json.Unmarshal(b, r); err != nil {
		return nil, fmt.Errorf("Invalid report %v: %w", path, err)
	}
	for _, v := range r.Videos {
		if v.SkipReasons == nil {
			v.SkipReasons = map[string]int{}
		}
	}
	if r.CategorySummary == nil {
		r.CategorySummary = map[string]*Summary{}
	}
	return r, nil
}

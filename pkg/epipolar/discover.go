package epipolar

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

var ErrNoVideos = errors.New("No videos found")

// VideoExtensions are the file extensions recognized as videos (case insensitive)
var VideoExtensions = []string{".mp4", ".avi", ".mov", ".mkv", ".webm"}

func isVideoFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range VideoExtensions {
		if ext == e {
			return true
		}
	}
	return false
}

// DiscoverVideos finds videos laid out as baseDir/<category>/<video>.
// Categories are sorted by name, and so are the videos within each category.
// Files directly inside baseDir, hidden entries and nested directories are ignored.
func DiscoverVideos(baseDir string) ([]VideoSample, error) {
	entries, err := os.ReadDir(baseDir)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoVideos, err)
	}
	categories := []string{}
	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			categories = append(categories, e.Name())
		}
	}
	sort.Strings(categories)

	samples := []VideoSample{}
	for _, cat := range categories {
		dir := filepath.Join(baseDir, cat)
		files, err := os.ReadDir(dir)
		if err != nil {
			return nil, fmt.Errorf("Failed to list %v: %w", dir, err)
		}
		names := []string{}
		for _, f := range files {
			if f.IsDir() || strings.HasPrefix(f.Name(), ".") || !isVideoFile(f.Name()) {
				continue
			}
			names = append(names, f.Name())
		}
		sort.Strings(names)
		for _, name := range names {
			samples = append(samples, VideoSample{
				Category: cat,
				Model:    strings.TrimSuffix(name, filepath.Ext(name)),
				Path:     filepath.Join(dir, name),
			})
		}
	}
	if len(samples) == 0 {
		return nil, fmt.Errorf("%w in %v", ErrNoVideos, baseDir)
	}
	return samples, nil
}

// CountByCategory returns the number of samples in each category
func CountByCategory(samples []VideoSample) map[string]int {
	m := map[string]int{}
	for _, s := range samples {
		m[s.Category]++
	}
	return m
}

// Package features finds point correspondences between two video frames
package features

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/bmharper/cimg/v2"
	"github.com/cyclopcam/logs"
	"github.com/golang/geo/r2"
)

var ErrInsufficientFeatures = errors.New("Insufficient features")

// Descriptor names
const (
	DescriptorSIFT      = "sift"
	DescriptorLightGlue = "lightglue"
)

// Descriptors lists every descriptor that NewMatcher accepts
var Descriptors = []string{DescriptorSIFT, DescriptorLightGlue}

// Keypoint is a detected feature in a single frame
type Keypoint struct {
	Pt       r2.Point
	Response float64 // Detector strength, higher is better
}

// Match is a correspondence between a point in frame A and a point in frame B
type Match struct {
	A     r2.Point
	B     r2.Point
	Score float64 // Matcher confidence in [0,1]. Not used for ordering.
}

// Matcher extracts features from two frames and matches them.
// A Matcher may be used from many goroutines at once.
type Matcher interface {
	// Returns matches in canonical order (see SortMatches).
	// Returns ErrInsufficientFeatures if either frame has no keypoints.
	ExtractAndMatch(ctx context.Context, a, b *cimg.Image) ([]Match, error)
	Name() string
	Close()
}

// Config selects and tunes a Matcher
type Config struct {
	Descriptor  string  // "sift" or "lightglue"
	RatioThresh float64 // Lowe ratio test threshold (sift)
	MaxDistance float64 // If non-zero, reject descriptor matches further apart than this (sift)
	MaxFeatures int     // Keep only the strongest N keypoints per frame (sift)

	LightGlueURL     string        // Base URL of the matching service (lightglue)
	LightGlueTimeout time.Duration // Per request (lightglue)
	MinScore         float64       // Drop matches with a lower score (lightglue)
	JPEGQuality      int           // Quality of frames sent to the service (lightglue)
}

func DefaultConfig() Config {
	return Config{
		Descriptor:       DescriptorSIFT,
		RatioThresh:      0.75,
		MaxFeatures:      4000,
		LightGlueURL:     "http://localhost:8765",
		LightGlueTimeout: 60 * time.Second,
		MinScore:         0,
		JPEGQuality:      95,
	}
}

// NewMatcher creates the Matcher named by cfg.Descriptor
func NewMatcher(log logs.Log, cfg Config) (Matcher, error) {
	switch cfg.Descriptor {
	case DescriptorSIFT:
		return NewSIFTMatcher(cfg)
	case DescriptorLightGlue:
		return NewLightGlueMatcher(log, cfg)
	default:
		return nil, fmt.Errorf("Unknown descriptor '%v'. Valid values are %v", cfg.Descriptor, Descriptors)
	}
}

// SortMatches puts matches into canonical order: ascending by (A.X, A.Y, B.X, B.Y).
// The sort is stable, so exact duplicates keep their original order.
func SortMatches(m []Match) {
	sort.SliceStable(m, func(i, j int) bool {
		a, b := m[i], m[j]
		if a.A.X != b.A.X {
			return a.A.X < b.A.X
		}
		if a.A.Y != b.A.Y {
			return a.A.Y < b.A.Y
		}
		if a.B.X != b.B.X {
			return a.B.X < b.B.X
		}
		return a.B.Y < b.B.Y
	})
}

// Points splits matches into two index-correlated point lists
func Points(m []Match) (a, b []r2.Point) {
	a = make([]r2.Point, len(m))
	b = make([]r2.Point, len(m))
	for i := range m {
		a[i] = m[i].A
		b[i] = m[i].B
	}
	return
}

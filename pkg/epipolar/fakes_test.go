package epipolar

import (
	"context"
	"fmt"
	"iter"
	"time"

	"github.com/bmharper/cimg/v2"
	"github.com/cyclopcam/epipolar/pkg/features"
	"github.com/cyclopcam/epipolar/pkg/geom/geomtest"
	"github.com/cyclopcam/epipolar/pkg/videox"
)

// Fake frames encode their index in their width, so that fakeMatcher knows which
// synthetic scene to return without decoding anything.
func fakeFrame(index int) *cimg.Image {
	return cimg.NewImage(index+1, 1, cimg.PixelFormatRGB)
}

func fakeFrameIndex(img *cimg.Image) int {
	return img.Width - 1
}

type fakeVideo struct {
	numFrames   int
	decodeErrAt int // Frame index that fails to decode, or -1
}

// fakeSource serves synthetic videos. Paths that are not in the map are unreadable.
type fakeSource struct {
	videos map[string]fakeVideo
}

func (f *fakeSource) Probe(ctx context.Context, path string) (*videox.VideoInfo, error) {
	v, ok := f.videos[path]
	if !ok {
		return nil, fmt.Errorf("%w: %v: moov atom not found", videox.ErrVideoRead, path)
	}
	return &videox.VideoInfo{Width: 1280, Height: 720, NumFrames: v.numFrames, FrameRate: 24}, nil
}

func (f *fakeSource) Open(ctx context.Context, path string, info *videox.VideoInfo, rate int) (iter.Seq2[videox.Frame, error], error) {
	v := f.videos[path]
	return func(yield func(videox.Frame, error) bool) {
		for i := 0; i < v.numFrames; i += rate {
			if ctx.Err() != nil {
				yield(videox.Frame{}, ctx.Err())
				return
			}
			if i == v.decodeErrAt {
				yield(videox.Frame{}, fmt.Errorf("%w: frame %v: invalid NAL unit", videox.ErrFrameDecode, i))
				return
			}
			if !yield(videox.Frame{Index: i, Image: fakeFrame(i)}, nil) {
				return
			}
		}
	}, nil
}

// fakeMatcher returns the matches of a synthetic two-view scene for every pair
type fakeMatcher struct {
	numPoints int
	sigma     float64
	delay     time.Duration
	static    bool                 // Both frames see exactly the same points
	fail      func(a, b int) error // Optional per-pair failure
}

func (m *fakeMatcher) Name() string {
	return "fake"
}

func (m *fakeMatcher) Close() {
}

func (m *fakeMatcher) ExtractAndMatch(ctx context.Context, a, b *cimg.Image) ([]features.Match, error) {
	ia, ib := fakeFrameIndex(a), fakeFrameIndex(b)
	if m.delay != 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(m.delay):
		}
	}
	if m.fail != nil {
		if err := m.fail(ia, ib); err != nil {
			return nil, err
		}
	}
	scene := geomtest.DefaultScene(m.numPoints, m.sigma, uint64(ia*1000+ib))
	matches := make([]features.Match, len(scene.A))
	for i := range scene.A {
		matches[i] = features.Match{A: scene.A[i], B: scene.B[i], Score: 1}
		if m.static {
			matches[i].B = scene.A[i]
		}
	}
	features.SortMatches(matches)
	return matches, nil
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.SamplingRate = 1
	cfg.Workers = 3
	cfg.VideoTimeout = 0
	return cfg
}

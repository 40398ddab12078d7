package videox

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseFrameRate(t *testing.T) {
	require.Equal(t, 25.0, ParseFrameRate("25/1"))
	require.InDelta(t, 29.97, ParseFrameRate("30000/1001"), 0.001)
	require.Equal(t, 24.0, ParseFrameRate("24"))
	require.Equal(t, 0.0, ParseFrameRate("0/0"))
	require.Equal(t, 0.0, ParseFrameRate(""))
}

func TestSamplerIndices(t *testing.T) {
	s, err := NewSampler("x.mp4", &VideoInfo{Width: 64, Height: 48, NumFrames: 10}, 3)
	require.NoError(t, err)
	require.Equal(t, []int{0, 3, 6, 9}, slices.Collect(s.Indices()))
	// restartable
	require.Equal(t, []int{0, 3, 6, 9}, slices.Collect(s.Indices()))
	require.Equal(t, 4, s.NumSamples())

	for idx := range s.Indices() {
		require.Equal(t, 0, idx)
		break
	}

	s, err = NewSampler("x.mp4", &VideoInfo{NumFrames: 1}, 5)
	require.NoError(t, err)
	require.Equal(t, []int{0}, slices.Collect(s.Indices()))
	require.Equal(t, 1, s.NumSamples())

	require.Equal(t, 10, NumSamples(10, 1))
	require.Equal(t, 2, NumSamples(16, 15))
	require.Equal(t, 0, NumSamples(0, 15))

	_, err = NewSampler("x.mp4", &VideoInfo{NumFrames: 10}, 0)
	require.Error(t, err)
	_, err = NewSampler("x.mp4", &VideoInfo{NumFrames: 0}, 1)
	require.ErrorIs(t, err, ErrVideoRead)
}

func TestOutputSize(t *testing.T) {
	s := &Sampler{Info: VideoInfo{Width: 1920, Height: 1080}}
	w, h := s.OutputSize()
	require.Equal(t, 1920, w)
	require.Equal(t, 1080, h)
	s.MaxFrameHeight = 480
	w, h = s.OutputSize()
	require.Equal(t, 853, w)
	require.Equal(t, 480, h)
}

func TestLimitedBuffer(t *testing.T) {
	b := limitedBuffer{max: 5}
	n, err := b.Write([]byte("abc"))
	require.NoError(t, err)
	require.Equal(t, 3, n)
	b.Write([]byte("defgh"))
	require.Equal(t, "abcde", b.String())
}

// makeTestVideo encodes a synthetic clip with ffmpeg's test source
func makeTestVideo(t *testing.T, name string, frames int) string {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		t.Skip("ffmpeg not found")
	}
	if _, err := exec.LookPath("ffprobe"); err != nil {
		t.Skip("ffprobe not found")
	}
	path := filepath.Join(t.TempDir(), name)
	_, err := RunAppCombinedOutput(context.Background(), "ffmpeg", []string{
		"-v", "error",
		"-f", "lavfi", "-i", "testsrc=size=160x120:rate=10",
		"-frames:v", strconv.Itoa(frames),
		"-c:v", "mpeg4", "-q:v", "3",
		"-pix_fmt", "yuv420p",
		path,
	})
	require.NoError(t, err)
	return path
}

func TestProbeAndFrames(t *testing.T) {
	path := makeTestVideo(t, "clip.mp4", 25)
	ctx := context.Background()

	info, err := ProbeVideo(ctx, path)
	require.NoError(t, err)
	require.Equal(t, 160, info.Width)
	require.Equal(t, 120, info.Height)
	require.Equal(t, 25, info.NumFrames)
	require.InDelta(t, 10, info.FrameRate, 0.01)

	s, err := NewSampler(path, info, 4)
	require.NoError(t, err)
	indices := []int{}
	for f, err := range s.Frames(ctx) {
		require.NoError(t, err)
		require.Equal(t, 160, f.Image.Width)
		require.Equal(t, 120, f.Image.Height)
		indices = append(indices, f.Index)
	}
	require.Equal(t, []int{0, 4, 8, 12, 16, 20, 24}, indices)

	// Downsized, and stopped early
	s.MaxFrameHeight = 60
	n := 0
	for f, err := range s.Frames(ctx) {
		require.NoError(t, err)
		require.Equal(t, 80, f.Image.Width)
		require.Equal(t, 60, f.Image.Height)
		n++
		if n == 2 {
			break
		}
	}
	require.Equal(t, 2, n)
}

func TestCorruptVideo(t *testing.T) {
	if _, err := exec.LookPath("ffprobe"); err != nil {
		t.Skip("ffprobe not found")
	}
	path := filepath.Join(t.TempDir(), "corrupt.mp4")
	require.NoError(t, os.WriteFile(path, []byte("this is not a video"), 0644))
	_, err := ProbeVideo(context.Background(), path)
	require.ErrorIs(t, err, ErrVideoRead)

	_, err = ProbeVideo(context.Background(), filepath.Join(t.TempDir(), "missing.mp4"))
	require.ErrorIs(t, err, ErrVideoRead)

	src := &FFmpegSource{}
	_, err = src.Probe(context.Background(), path)
	require.ErrorIs(t, err, ErrVideoRead)
}

package videox

import (
	"context"
	"iter"
)

// FrameSource provides video metadata and sampled frames.
// FFmpegSource is the real implementation. Tests substitute synthetic frames.
type FrameSource interface {
	Probe(ctx context.Context, path string) (*VideoInfo, error)
	Open(ctx context.Context, path string, info *VideoInfo, rate int) (iter.Seq2[Frame, error], error)
}

// FFmpegSource reads videos with ffprobe and ffmpeg
type FFmpegSource struct {
	MaxFrameHeight int
}

func (f *FFmpegSource) Probe(ctx context.Context, path string) (*VideoInfo, error) {
	return ProbeVideo(ctx, path)
}

func (f *FFmpegSource) Open(ctx context.Context, path string, info *VideoInfo, rate int) (iter.Seq2[Frame, error], error) {
	s, err := NewSampler(path, info, rate)
	if err != nil {
		return nil, err
	}
	s.MaxFrameHeight = f.MaxFrameHeight
	return s.Frames(ctx), nil
}

package videox

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"os/exec"
	"strconv"

	"github.com/bmharper/cimg/v2"
)

var ErrFrameDecode = errors.New("Frame decode failed")

// Frame is a decoded RGB frame, and its index in the original video
type Frame struct {
	Index int
	Image *cimg.Image
}

// Sampler yields every Rate'th frame of a video: 0, Rate, 2*Rate, ...
type Sampler struct {
	Path           string
	Info           VideoInfo
	Rate           int
	MaxFrameHeight int // If non-zero, frames taller than this are downsized
}

func NewSampler(path string, info *VideoInfo, rate int) (*Sampler, error) {
	if rate < 1 {
		return nil, fmt.Errorf("Sampling rate must be at least 1, but is %v", rate)
	}
	if info == nil || info.NumFrames <= 0 {
		return nil, fmt.Errorf("%w: %v has no frames", ErrVideoRead, path)
	}
	return &Sampler{
		Path: path,
		Info: *info,
		Rate: rate,
	}, nil
}

// NumSamples is the number of indices yielded by Indices
func (s *Sampler) NumSamples() int {
	return NumSamples(s.Info.NumFrames, s.Rate)
}

// NumSamples is the number of frames out of numFrames that are kept when sampling
// every rate'th frame, starting at frame 0.
func NumSamples(numFrames, rate int) int {
	if numFrames <= 0 || rate <= 0 {
		return 0
	}
	return (numFrames + rate - 1) / rate
}

// Indices yields the sampled frame indices. Every call starts from the beginning.
func (s *Sampler) Indices() iter.Seq[int] {
	return func(yield func(int) bool) {
		for i := 0; i < s.Info.NumFrames; i += s.Rate {
			if !yield(i) {
				return
			}
		}
	}
}

// OutputSize is the size of the frames yielded by Frames
func (s *Sampler) OutputSize() (width, height int) {
	width, height = s.Info.Width, s.Info.Height
	if s.MaxFrameHeight > 0 && height > s.MaxFrameHeight {
		aspect := float64(width) / float64(height)
		height = s.MaxFrameHeight
		width = max(1, int(float64(height)*aspect+0.5))
	}
	return
}

// Frames decodes the sampled frames in order, with a single ffmpeg process.
// Only the selected frames are converted to RGB and piped back to us.
// Breaking out of the loop, or cancelling ctx, stops ffmpeg.
// If the video holds fewer frames than its header claims, iteration simply ends early.
func (s *Sampler) Frames(ctx context.Context) iter.Seq2[Frame, error] {
	return func(yield func(Frame, error) bool) {
		ffmpegPath, err := exec.LookPath("ffmpeg")
		if err != nil {
			yield(Frame{}, fmt.Errorf("Unable to find 'ffmpeg' in your path (%w)", err))
			return
		}

		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		args := []string{
			"-v", "error",
			"-nostdin",
			"-noautorotate",
			"-i", s.Path,
			"-map", "0:v:0",
			"-vf", "select=not(mod(n\\," + strconv.Itoa(s.Rate) + "))",
			"-vsync", "0",
			"-f", "rawvideo",
			"-pix_fmt", "rgb24",
			"pipe:1",
		}
		cmd := exec.CommandContext(ctx, ffmpegPath, args...)
		stderr := &limitedBuffer{max: 4096}
		cmd.Stderr = stderr
		stdout, err := cmd.StdoutPipe()
		if err != nil {
			yield(Frame{}, err)
			return
		}
		if err := cmd.Start(); err != nil {
			yield(Frame{}, fmt.Errorf("%w: failed to start ffmpeg: %w", ErrVideoRead, err))
			return
		}
		waited := false
		wait := func() error {
			if waited {
				return nil
			}
			waited = true
			return cmd.Wait()
		}
		defer func() {
			// Kill ffmpeg if it's still running, and always reap it
			cancel()
			wait()
		}()

		width, height := s.Info.Width, s.Info.Height
		outWidth, outHeight := s.OutputSize()
		frameSize := width * height * 3
		nFrames := 0
		for index := range s.Indices() {
			buf := make([]byte, frameSize)
			_, err := io.ReadFull(stdout, buf)
			if err != nil {
				if ctx.Err() != nil {
					yield(Frame{}, ctx.Err())
					return
				}
				if errors.Is(err, io.EOF) {
					// Clean end of stream. ffmpeg's exit status tells us whether it was happy.
					werr := wait()
					if nFrames == 0 {
						yield(Frame{}, fmt.Errorf("%w: %v: ffmpeg produced no frames (%v) %v", ErrVideoRead, s.Path, werr, stderr.String()))
					} else if werr != nil {
						yield(Frame{}, fmt.Errorf("%w: frame %v: %w (%v)", ErrFrameDecode, index, werr, stderr.String()))
					}
					return
				}
				wait()
				yield(Frame{}, fmt.Errorf("%w: frame %v: %w (%v)", ErrFrameDecode, index, err, stderr.String()))
				return
			}
			img := cimg.WrapImage(width, height, cimg.PixelFormatRGB, buf)
			if outWidth != width || outHeight != height {
				img = cimg.ResizeNew(img, outWidth, outHeight, &cimg.ResizeParams{CheapSRGBFilter: true})
			}
			nFrames++
			if !yield(Frame{Index: index, Image: img}, nil) {
				return
			}
		}
	}
}

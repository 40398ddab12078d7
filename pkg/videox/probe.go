package videox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var ErrVideoRead = errors.New("Video could not be read")

// VideoInfo is what we need to know about a video before decoding it
type VideoInfo struct {
	Width     int
	Height    int
	NumFrames int
	FrameRate float64
}

type ffprobeStream struct {
	Width         int    `json:"width"`
	Height        int    `json:"height"`
	NbFrames      string `json:"nb_frames"`
	NbReadPackets string `json:"nb_read_packets"`
	RFrameRate    string `json:"r_frame_rate"`
	AvgFrameRate  string `json:"avg_frame_rate"`
}

type ffprobeOutput struct {
	Streams []ffprobeStream `json:"streams"`
}

func runFFProbe(ctx context.Context, path string, countPackets bool) (*ffprobeStream, error) {
	entries := "stream=width,height,nb_frames,r_frame_rate,avg_frame_rate"
	args := []string{"-v", "error", "-select_streams", "v:0"}
	if countPackets {
		args = append(args, "-count_packets")
		entries += ",nb_read_packets"
	}
	args = append(args, "-show_entries", entries, "-of", "json", path)
	out, err := RunAppCombinedOutput(ctx, "ffprobe", args)
	if err != nil {
		return nil, err
	}
	parsed := ffprobeOutput{}
	if err := json.Unmarshal(out, &parsed); err != nil {
		return nil, fmt.Errorf("Unable to parse ffprobe output: %w", err)
	}
	if len(parsed.Streams) == 0 {
		return nil, fmt.Errorf("No video stream")
	}
	return &parsed.Streams[0], nil
}

// ProbeVideo returns the dimensions, frame count and frame rate of the first video stream.
// Containers that don't store a frame count (eg webm) have their packets counted instead.
// Any failure, including a video with no frames, is wrapped in ErrVideoRead.
func ProbeVideo(ctx context.Context, path string) (*VideoInfo, error) {
	s, err := runFFProbe(ctx, path, false)
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v: %w", ErrVideoRead, path, err)
	}
	info := &VideoInfo{
		Width:     s.Width,
		Height:    s.Height,
		NumFrames: parseCount(s.NbFrames),
		FrameRate: ParseFrameRate(s.AvgFrameRate),
	}
	if info.FrameRate == 0 {
		info.FrameRate = ParseFrameRate(s.RFrameRate)
	}
	if info.NumFrames == 0 {
		s, err = runFFProbe(ctx, path, true)
		if err != nil {
			if ctx.Err() != nil {
				return nil, err
			}
			return nil, fmt.Errorf("%w: %v: %w", ErrVideoRead, path, err)
		}
		info.NumFrames = parseCount(s.NbReadPackets)
	}
	if info.Width <= 0 || info.Height <= 0 {
		return nil, fmt.Errorf("%w: %v: invalid dimensions %v x %v", ErrVideoRead, path, info.Width, info.Height)
	}
	if info.NumFrames == 0 {
		return nil, fmt.Errorf("%w: %v: no frames", ErrVideoRead, path)
	}
	return info, nil
}

func parseCount(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// ParseFrameRate parses ffprobe rates such as "30000/1001" or "25".
// Returns 0 if the rate is unknown.
func ParseFrameRate(s string) float64 {
	num, den, found := strings.Cut(strings.TrimSpace(s), "/")
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0
	}
	if !found {
		return n
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil || d == 0 {
		return 0
	}
	return n / d
}

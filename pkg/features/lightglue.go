package features

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"

	"github.com/bmharper/cimg/v2"
	"github.com/cyclopcam/epipolar/pkg/requests"
	"github.com/cyclopcam/logs"
	"github.com/golang/geo/r2"
)

// LightGlueMatcher sends frame pairs to an external SuperPoint+LightGlue inference
// service, which detects and matches keypoints in a single call.
type LightGlueMatcher struct {
	log    logs.Log
	cfg    Config
	client *http.Client
	url    string
}

// Body of POST /match
type lightGlueRequest struct {
	Image0 string `json:"image0"` // base64 JPEG
	Image1 string `json:"image1"` // base64 JPEG
}

// Response of POST /match
type lightGlueResponse struct {
	Keypoints0 [][2]float64 `json:"keypoints0"`
	Keypoints1 [][2]float64 `json:"keypoints1"`
	Matches    [][2]int     `json:"matches"`
	Scores     []float64    `json:"scores"`
}

func NewLightGlueMatcher(log logs.Log, cfg Config) (*LightGlueMatcher, error) {
	if cfg.LightGlueURL == "" {
		return nil, fmt.Errorf("LightGlue service URL is not set")
	}
	if cfg.JPEGQuality <= 0 || cfg.JPEGQuality > 100 {
		cfg.JPEGQuality = 95
	}
	return &LightGlueMatcher{
		log: log,
		cfg: cfg,
		client: &http.Client{
			Timeout: cfg.LightGlueTimeout,
		},
		url: strings.TrimSuffix(cfg.LightGlueURL, "/") + "/match",
	}, nil
}

func (m *LightGlueMatcher) Name() string {
	return DescriptorLightGlue
}

func (m *LightGlueMatcher) Close() {
	m.client.CloseIdleConnections()
}

func (m *LightGlueMatcher) ExtractAndMatch(ctx context.Context, a, b *cimg.Image) ([]Match, error) {
	req := lightGlueRequest{}
	var err error
	if req.Image0, err = m.encode(a); err != nil {
		return nil, err
	}
	if req.Image1, err = m.encode(b); err != nil {
		return nil, err
	}

	resp, err := requests.RequestJSON[lightGlueResponse](ctx, m.client, "POST", m.url, &req)
	if err != nil {
		return nil, fmt.Errorf("LightGlue request failed: %w", err)
	}
	return m.decodeResponse(resp)
}

func (m *LightGlueMatcher) encode(img *cimg.Image) (string, error) {
	jpg, err := cimg.Compress(img, cimg.MakeCompressParams(cimg.Sampling444, m.cfg.JPEGQuality, 0))
	if err != nil {
		return "", fmt.Errorf("Failed to compress frame: %w", err)
	}
	return base64.StdEncoding.EncodeToString(jpg), nil
}

func (m *LightGlueMatcher) decodeResponse(resp *lightGlueResponse) ([]Match, error) {
	if len(resp.Keypoints0) == 0 || len(resp.Keypoints1) == 0 {
		return nil, fmt.Errorf("%w: %v and %v keypoints", ErrInsufficientFeatures, len(resp.Keypoints0), len(resp.Keypoints1))
	}
	if len(resp.Scores) != 0 && len(resp.Scores) != len(resp.Matches) {
		return nil, fmt.Errorf("LightGlue returned %v scores for %v matches", len(resp.Scores), len(resp.Matches))
	}

	matches := make([]Match, 0, len(resp.Matches))
	for i, pair := range resp.Matches {
		i0, i1 := pair[0], pair[1]
		if i0 < 0 || i0 >= len(resp.Keypoints0) || i1 < 0 || i1 >= len(resp.Keypoints1) {
			return nil, fmt.Errorf("LightGlue match %v refers to keypoint (%v,%v) out of range", i, i0, i1)
		}
		score := 1.0
		if len(resp.Scores) != 0 {
			score = resp.Scores[i]
		}
		if score < m.cfg.MinScore {
			continue
		}
		k0, k1 := resp.Keypoints0[i0], resp.Keypoints1[i1]
		matches = append(matches, Match{
			A:     r2.Point{X: k0[0], Y: k0[1]},
			B:     r2.Point{X: k1[0], Y: k1[1]},
			Score: score,
		})
	}
	SortMatches(matches)
	m.log.Debugf("LightGlue: %v, %v keypoints, %v matches (%v above score %.2f)", len(resp.Keypoints0), len(resp.Keypoints1), len(resp.Matches), len(matches), m.cfg.MinScore)
	return matches, nil
}

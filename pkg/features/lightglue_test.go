package features

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"image/jpeg"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bmharper/cimg/v2"
	"github.com/cyclopcam/logs"
	"github.com/stretchr/testify/require"
)

func testImage(w, h int) *cimg.Image {
	img := cimg.NewImage(w, h, cimg.PixelFormatRGB)
	for i := range img.Pixels {
		img.Pixels[i] = byte(i * 7)
	}
	return img
}

func newLightGlueServer(t *testing.T, resp *lightGlueResponse) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/match", r.URL.Path)
		require.Equal(t, "POST", r.Method)
		req := lightGlueRequest{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		for _, enc := range []string{req.Image0, req.Image1} {
			raw, err := base64.StdEncoding.DecodeString(enc)
			require.NoError(t, err)
			cfg, err := jpeg.DecodeConfig(bytes.NewReader(raw))
			require.NoError(t, err)
			require.Equal(t, 64, cfg.Width)
			require.Equal(t, 48, cfg.Height)
		}
		json.NewEncoder(w).Encode(resp)
	}))
}

func TestLightGlue(t *testing.T) {
	srv := newLightGlueServer(t, &lightGlueResponse{
		Keypoints0: [][2]float64{{30, 5}, {10, 20}, {1, 1}},
		Keypoints1: [][2]float64{{31, 6}, {11, 20}, {2, 2}},
		Matches:    [][2]int{{0, 0}, {1, 1}, {2, 2}},
		Scores:     []float64{0.9, 0.8, 0.05},
	})
	defer srv.Close()

	cfg := DefaultConfig()
	cfg.Descriptor = DescriptorLightGlue
	cfg.LightGlueURL = srv.URL + "/"
	cfg.MinScore = 0.1
	m, err := NewMatcher(logs.NewTestingLog(t), cfg)
	require.NoError(t, err)
	defer m.Close()
	require.Equal(t, "lightglue", m.Name())

	matches, err := m.ExtractAndMatch(context.Background(), testImage(64, 48), testImage(64, 48))
	require.NoError(t, err)
	require.Len(t, matches, 2)
	require.Equal(t, pt(10, 20), matches[0].A)
	require.Equal(t, pt(11, 20), matches[0].B)
	require.Equal(t, 0.8, matches[0].Score)
	require.Equal(t, pt(30, 5), matches[1].A)
}

func TestLightGlueNoKeypoints(t *testing.T) {
	srv := newLightGlueServer(t, &lightGlueResponse{
		Keypoints0: [][2]float64{{30, 5}},
	})
	defer srv.Close()

	cfg := DefaultConfig()
	cfg.LightGlueURL = srv.URL
	m, err := NewLightGlueMatcher(logs.NewTestingLog(t), cfg)
	require.NoError(t, err)
	_, err = m.ExtractAndMatch(context.Background(), testImage(64, 48), testImage(64, 48))
	require.ErrorIs(t, err, ErrInsufficientFeatures)
}

func TestLightGlueBadIndex(t *testing.T) {
	srv := newLightGlueServer(t, &lightGlueResponse{
		Keypoints0: [][2]float64{{30, 5}},
		Keypoints1: [][2]float64{{30, 5}},
		Matches:    [][2]int{{0, 3}},
	})
	defer srv.Close()

	cfg := DefaultConfig()
	cfg.LightGlueURL = srv.URL
	m, err := NewLightGlueMatcher(logs.NewTestingLog(t), cfg)
	require.NoError(t, err)
	_, err = m.ExtractAndMatch(context.Background(), testImage(64, 48), testImage(64, 48))
	require.ErrorContains(t, err, "out of range")
}

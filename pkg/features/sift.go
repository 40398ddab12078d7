//go:build !nogocv

package features

import (
	"context"
	"fmt"
	"sort"

	"github.com/bmharper/cimg/v2"
	"github.com/golang/geo/r2"
	"gocv.io/x/gocv"
)

// SIFTMatcher detects SIFT keypoints with OpenCV, finds the two nearest descriptors
// in both directions with a brute force matcher, and keeps mutual nearest neighbours
// that pass Lowe's ratio test.
type SIFTMatcher struct {
	cfg Config
}

func NewSIFTMatcher(cfg Config) (*SIFTMatcher, error) {
	if cfg.RatioThresh <= 0 || cfg.RatioThresh > 1 {
		return nil, fmt.Errorf("Invalid ratio threshold %v. Must be in (0,1]", cfg.RatioThresh)
	}
	return &SIFTMatcher{cfg: cfg}, nil
}

func (m *SIFTMatcher) Name() string {
	return DescriptorSIFT
}

func (m *SIFTMatcher) Close() {
}

func (m *SIFTMatcher) ExtractAndMatch(ctx context.Context, a, b *cimg.Image) ([]Match, error) {
	ka, da, err := m.Detect(a)
	if err != nil {
		return nil, err
	}
	defer da.Close()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	kb, db, err := m.Detect(b)
	if err != nil {
		return nil, err
	}
	defer db.Close()
	if len(ka) == 0 || len(kb) == 0 {
		return nil, fmt.Errorf("%w: %v and %v keypoints", ErrInsufficientFeatures, len(ka), len(kb))
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// BFMatcher defaults to NORM_L2, which is what SIFT descriptors want
	bf := gocv.NewBFMatcher()
	defer bf.Close()
	ab := toNeighbours(bf.KnnMatch(da, db, 2), len(ka))
	ba := toNeighbours(bf.KnnMatch(db, da, 2), len(kb))
	return MatchKeypoints(ka, kb, ab, ba, m.cfg.RatioThresh, m.cfg.MaxDistance), nil
}

// Detect returns the strongest SIFT keypoints of the image, and their descriptors
// (one CV_32F row per keypoint). The caller must Close the descriptor Mat.
func (m *SIFTMatcher) Detect(img *cimg.Image) ([]Keypoint, gocv.Mat, error) {
	gray, err := toGrayMat(img)
	if err != nil {
		return nil, gocv.Mat{}, err
	}
	defer gray.Close()

	// cv::SIFT is not safe for concurrent use, so every call gets its own detector
	sift := gocv.NewSIFT()
	defer sift.Close()
	mask := gocv.NewMat()
	defer mask.Close()

	kps, desc := sift.DetectAndCompute(gray, mask)
	defer desc.Close()
	if len(kps) == 0 {
		return nil, gocv.NewMat(), nil
	}
	if desc.Rows() != len(kps) {
		return nil, gocv.Mat{}, fmt.Errorf("SIFT returned %v descriptors for %v keypoints", desc.Rows(), len(kps))
	}

	order := make([]int, len(kps))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		return kps[order[i]].Response > kps[order[j]].Response
	})
	if m.cfg.MaxFeatures > 0 && len(order) > m.cfg.MaxFeatures {
		order = order[:m.cfg.MaxFeatures]
	}

	cols := desc.Cols()
	selected := gocv.NewMatWithSize(len(order), cols, gocv.MatTypeCV32F)
	out := make([]Keypoint, len(order))
	for i, k := range order {
		for c := 0; c < cols; c++ {
			selected.SetFloatAt(i, c, desc.GetFloatAt(k, c))
		}
		out[i] = Keypoint{
			Pt:       r2.Point{X: kps[k].X, Y: kps[k].Y},
			Response: kps[k].Response,
		}
	}
	return out, selected, nil
}

// toNeighbours converts KnnMatch output into per-query neighbour lists
func toNeighbours(knn [][]gocv.DMatch, numQuery int) []Neighbours {
	out := make([]Neighbours, numQuery)
	for _, cand := range knn {
		if len(cand) == 0 {
			continue
		}
		q := cand[0].QueryIdx
		if q < 0 || q >= numQuery {
			continue
		}
		n := make(Neighbours, 0, len(cand))
		for _, c := range cand {
			n = append(n, Neighbour{Index: c.TrainIdx, Distance: float64(c.Distance)})
		}
		out[q] = n
	}
	return out
}

func toGrayMat(img *cimg.Image) (gocv.Mat, error) {
	if img.NChan() != 3 {
		return gocv.Mat{}, fmt.Errorf("Expected an RGB image, but image has %v channels", img.NChan())
	}
	// OpenCV wants tightly packed rows
	packed := img.Pixels
	if img.Stride != img.Width*3 {
		packed = make([]byte, img.Width*img.Height*3)
		for y := 0; y < img.Height; y++ {
			copy(packed[y*img.Width*3:(y+1)*img.Width*3], img.Pixels[y*img.Stride:y*img.Stride+img.Width*3])
		}
	}
	rgb, err := gocv.NewMatFromBytes(img.Height, img.Width, gocv.MatTypeCV8UC3, packed)
	if err != nil {
		return gocv.Mat{}, err
	}
	defer rgb.Close()
	gray := gocv.NewMat()
	gocv.CvtColor(rgb, &gray, gocv.ColorRGBToGray)
	return gray, nil
}

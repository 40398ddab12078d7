//go:build nogocv

package features

import (
	"context"
	"errors"

	"github.com/bmharper/cimg/v2"
)

var errNoOpenCV = errors.New("SIFT is not available, because this binary was built with the 'nogocv' tag")

// SIFTMatcher is unavailable without OpenCV
type SIFTMatcher struct{}

func NewSIFTMatcher(cfg Config) (*SIFTMatcher, error) {
	return nil, errNoOpenCV
}

func (m *SIFTMatcher) Name() string {
	return DescriptorSIFT
}

func (m *SIFTMatcher) Close() {
}

func (m *SIFTMatcher) ExtractAndMatch(ctx context.Context, a, b *cimg.Image) ([]Match, error) {
	return nil, errNoOpenCV
}

// Package fullpage provides an orientation stage that treats every page as a
// single upright table. It is used when no detection server is configured.
package fullpage

import (
	"context"
	"fmt"
	"image"
	"os"
	"time"

	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"

	"github.com/spherical/table-extractor/internal/domain"
)

// Detector reports the whole image as one region
type Detector struct{}

// NewDetector creates a full page detector
func NewDetector() *Detector {
	return &Detector{}
}

// Detect reads the image dimensions and returns one region covering them
func (d *Detector) Detect(ctx context.Context, imagePath string) (domain.Detection, error) {
	start := time.Now()
	if err := ctx.Err(); err != nil {
		return domain.Detection{}, err
	}

	f, err := os.Open(imagePath)
	if err != nil {
		return domain.Detection{}, domain.DetectionError("Failed to open page image", err)
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return domain.Detection{}, domain.DetectionError(fmt.Sprintf("Failed to read page image %s", imagePath), err)
	}
	if cfg.Width == 0 || cfg.Height == 0 {
		return domain.Detection{Timing: domain.DetectionTiming{Detect: time.Since(start)}}, nil
	}

	w, h := float64(cfg.Width), float64(cfg.Height)
	region := domain.DetectedRegion{
		Box: domain.Rect{X1: 0, Y1: 0, X2: w, Y2: h},
		LT:  domain.Point{X: 0, Y: 0},
		RT:  domain.Point{X: w, Y: 0},
		RB:  domain.Point{X: w, Y: h},
		LB:  domain.Point{X: 0, Y: h},
	}

	return domain.Detection{
		Regions: []domain.DetectedRegion{region},
		Timing:  domain.DetectionTiming{Detect: time.Since(start)},
	}, nil
}

var _ domain.OrientationStage = (*Detector)(nil)

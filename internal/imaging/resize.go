package imaging

import (
	"fmt"
	"image"

	"golang.org/x/image/draw"

	"github.com/spherical/table-extractor/internal/observability"
)

// DefaultMaxWidth is the page width the detection stage is tuned for
const DefaultMaxWidth = 1200

// ScaledSize returns the target size for an image of w×h bounded to maxWidth.
// The second result is false when no resize is needed.
func ScaledSize(w, h, maxWidth int) (int, int, bool) {
	if w <= maxWidth || maxWidth <= 0 {
		return w, h, false
	}
	ratio := float64(maxWidth) / float64(w)
	nh := int(float64(h) * ratio)
	if nh < 1 {
		nh = 1
	}
	return maxWidth, nh, true
}

// Resize scales img down to maxWidth preserving its aspect ratio. Images that
// are already narrow enough are returned as-is, not copied.
func Resize(img image.Image, maxWidth int) (image.Image, bool, error) {
	if img == nil {
		return nil, false, fmt.Errorf("nil image")
	}
	b := img.Bounds()
	w, h, ok := ScaledSize(b.Dx(), b.Dy(), maxWidth)
	if !ok {
		return img, false, nil
	}

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst, true, nil
}

// Resizer bounds page widths before detection. It never fails: any fault is
// logged and the original image is passed through.
type Resizer struct {
	maxWidth int
	logger   *observability.Logger
}

// NewResizer creates a resizer for the given width bound
func NewResizer(maxWidth int, logger *observability.Logger) *Resizer {
	if maxWidth <= 0 {
		maxWidth = DefaultMaxWidth
	}
	if logger == nil {
		logger = observability.Nop()
	}
	return &Resizer{maxWidth: maxWidth, logger: logger}
}

// MaxWidth returns the configured bound
func (r *Resizer) MaxWidth() int {
	return r.maxWidth
}

// Resize returns the bounded image and whether it differs from the input.
func (r *Resizer) Resize(img image.Image) (out image.Image, resized bool) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error().Interface("panic", p).Msg("Resize failed, keeping original image")
			out, resized = img, false
		}
	}()

	scaled, ok, err := Resize(img, r.maxWidth)
	if err != nil {
		r.logger.Error().Err(err).Msg("Resize failed, keeping original image")
		return img, false
	}
	if ok {
		b := img.Bounds()
		r.logger.Debug().
			Int("from_width", b.Dx()).
			Int("from_height", b.Dy()).
			Int("to_width", scaled.Bounds().Dx()).
			Int("to_height", scaled.Bounds().Dy()).
			Msg("Resized page")
	}
	return scaled, ok
}

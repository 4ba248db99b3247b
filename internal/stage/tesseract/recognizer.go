// Package tesseract recognizes table cells locally with the Tesseract engine.
// Tesseract reports words only; the grid is rebuilt by package layout.
package tesseract

import (
	"context"
	"strings"

	"github.com/otiai10/gosseract/v2"

	"github.com/spherical/table-extractor/internal/domain"
	"github.com/spherical/table-extractor/internal/layout"
)

// Recognizer implements domain.TableOCRStage with gosseract. A new client is
// created per call, so one Recognizer is safe for concurrent use.
type Recognizer struct {
	languages     []string
	gapFactor     float64
	clientFactory func() *gosseract.Client
}

// NewRecognizer creates a recognizer for the given tesseract languages
func NewRecognizer(languages ...string) *Recognizer {
	if len(languages) == 0 {
		languages = []string{"eng"}
	}
	return &Recognizer{
		languages:     languages,
		gapFactor:     layout.DefaultGapFactor,
		clientFactory: gosseract.NewClient,
	}
}

// Recognize runs word recognition on the table image and lays the words out
// as cells
func (r *Recognizer) Recognize(ctx context.Context, imagePath string) ([]domain.OCREntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c := r.clientFactory()
	defer c.Close()

	if err := c.SetLanguage(r.languages...); err != nil {
		return nil, domain.OCRError("Failed to set tesseract languages", err)
	}
	if err := c.SetPageSegMode(gosseract.PSM_SPARSE_TEXT); err != nil {
		return nil, domain.OCRError("Failed to set page segmentation mode", err)
	}
	if err := c.SetImage(imagePath); err != nil {
		return nil, domain.OCRError("Failed to load table image", err)
	}

	boxes, err := c.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		return nil, domain.OCRError("Tesseract recognition failed", err)
	}

	words := make([]layout.Word, 0, len(boxes))
	for _, b := range boxes {
		text := strings.TrimSpace(b.Word)
		if text == "" {
			continue
		}
		words = append(words, layout.Word{
			Text: text,
			Box: domain.Rect{
				X1: float64(b.Box.Min.X),
				Y1: float64(b.Box.Min.Y),
				X2: float64(b.Box.Max.X),
				Y2: float64(b.Box.Max.Y),
			},
			Confidence: b.Confidence / 100.0,
		})
	}

	entries := layout.Grid(words, r.gapFactor)
	if entries == nil {
		entries = []domain.OCREntry{}
	}
	return entries, nil
}

var _ domain.TableOCRStage = (*Recognizer)(nil)

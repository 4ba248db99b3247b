// Package pdf turns uploaded documents into ordered page images.
package pdf

import (
	"context"
	"fmt"
	"image"

	"github.com/gen2brain/go-fitz"
	"github.com/spherical/table-extractor/internal/domain"
)

// DefaultDPI is the rasterization resolution used when none is configured
const DefaultDPI = 200

// FitzRasterizer implements domain.Rasterizer using go-fitz (MuPDF)
type FitzRasterizer struct {
	dpi float64
}

// NewFitzRasterizer creates a rasterizer rendering at dpi
func NewFitzRasterizer(dpi float64) *FitzRasterizer {
	if dpi <= 0 {
		dpi = DefaultDPI
	}
	return &FitzRasterizer{dpi: dpi}
}

// Rasterize renders every page of the PDF at pdfPath, in page order
func (r *FitzRasterizer) Rasterize(ctx context.Context, pdfPath string) ([]image.Image, error) {
	doc, err := fitz.New(pdfPath)
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	defer doc.Close()

	pageCount := doc.NumPage()
	images := make([]image.Image, 0, pageCount)

	for pageNum := 0; pageNum < pageCount; pageNum++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		img, err := doc.ImageDPI(pageNum, r.dpi)
		if err != nil {
			return nil, fmt.Errorf("render page %d: %w", pageNum+1, err)
		}
		images = append(images, img)
	}

	return images, nil
}

var _ domain.Rasterizer = (*FitzRasterizer)(nil)

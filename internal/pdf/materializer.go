package pdf

import (
	"context"
	"fmt"
	"image"
	"path/filepath"

	"github.com/spherical/table-extractor/internal/domain"
	"github.com/spherical/table-extractor/internal/imaging"
)

// Materializer produces the ordered page list for a document
type Materializer struct {
	rasterizer domain.Rasterizer
}

// NewMaterializer creates a materializer backed by rasterizer
func NewMaterializer(rasterizer domain.Rasterizer) *Materializer {
	return &Materializer{rasterizer: rasterizer}
}

// Materialize returns the document pages with 1-based indices. PDF pages are
// written as PNG files into dir; an image upload becomes a single page backed
// by the upload itself. An upload that cannot be turned into pages, image or
// PDF, is a conversion error.
func (m *Materializer) Materialize(ctx context.Context, doc domain.Document, dir string) ([]domain.Page, error) {
	if doc.Kind != domain.KindPDF {
		img, _, err := imaging.Load(doc.Path)
		if err != nil {
			return nil, domain.ConversionError("Error decoding image", err)
		}
		return []domain.Page{{Index: 1, SourcePath: doc.Path, Source: img}}, nil
	}

	images, err := m.rasterize(ctx, doc.Path)
	if err != nil {
		return nil, domain.ConversionError("Error converting PDF to images", err)
	}
	if len(images) == 0 {
		return nil, domain.ConversionError("Error converting PDF to images", fmt.Errorf("pdf has no pages"))
	}

	pages := make([]domain.Page, 0, len(images))
	for i, img := range images {
		index := i + 1
		path := filepath.Join(dir, fmt.Sprintf("page_%03d.png", index))
		if err := imaging.SavePNG(path, img); err != nil {
			return nil, domain.IOError(fmt.Sprintf("Failed to save page %d", index), err)
		}
		pages = append(pages, domain.Page{Index: index, SourcePath: path, Source: img})
	}

	return pages, nil
}

// rasterize shields the caller from panics inside the rasterizer backend.
func (m *Materializer) rasterize(ctx context.Context, path string) (images []image.Image, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("rasterizer panic: %v", p)
		}
	}()
	return m.rasterizer.Rasterize(ctx, path)
}

package domain

import (
	"context"
	"image"
)

// Rasterizer turns a PDF file into ordered in-memory page images
type Rasterizer interface {
	Rasterize(ctx context.Context, pdfPath string) ([]image.Image, error)
}

// OrientationStage locates tables on a page image
type OrientationStage interface {
	// Detect returns the tables found on the image at imagePath.
	// Zero regions is a valid result.
	Detect(ctx context.Context, imagePath string) (Detection, error)
}

// TableOCRStage extracts cells from one corrected table image
type TableOCRStage interface {
	Recognize(ctx context.Context, imagePath string) ([]OCREntry, error)
}

// SealStage detects stamps on the original upload. It never fails; faults are
// reported through the returned SealInfo.
type SealStage interface {
	Detect(ctx context.Context, filePath string) SealInfo
}

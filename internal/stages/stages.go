// Package stages builds the stage engines selected by configuration. Engines
// are created once per process and shared by every request.
package stages

import (
	"fmt"
	"strings"

	"github.com/spherical/table-extractor/internal/config"
	"github.com/spherical/table-extractor/internal/domain"
	"github.com/spherical/table-extractor/internal/extract"
	"github.com/spherical/table-extractor/internal/imaging"
	"github.com/spherical/table-extractor/internal/observability"
	"github.com/spherical/table-extractor/internal/pdf"
	"github.com/spherical/table-extractor/internal/seal"
	"github.com/spherical/table-extractor/internal/stage/fullpage"
	"github.com/spherical/table-extractor/internal/stage/remote"
	"github.com/spherical/table-extractor/internal/stage/tesseract"
)

// NewService wires the extraction service for cfg
func NewService(cfg *config.Config, logger *observability.Logger) (*extract.Service, error) {
	orientation, err := newOrientation(cfg, logger)
	if err != nil {
		return nil, err
	}
	tableOCR, err := newTableOCR(cfg, logger)
	if err != nil {
		return nil, err
	}

	logger.Info().
		Str("orientation", cfg.Orientation.Driver).
		Str("table_ocr", cfg.TableOCR.Driver).
		Bool("seal_configured", cfg.Seal.URL != "").
		Int("max_workers", cfg.Pipeline.MaxWorkers).
		Msg("Stages initialized")

	return extract.NewService(
		pdf.NewMaterializer(pdf.NewFitzRasterizer(cfg.Pipeline.PDFDPI)),
		imaging.NewResizer(cfg.Pipeline.MaxWidth, logger),
		orientation,
		tableOCR,
		seal.NewClient(cfg.Seal.URL, cfg.Seal.Timeout, logger),
		extract.Options{
			MaxWorkers:  cfg.Pipeline.MaxWorkers,
			RetainedDir: cfg.Pipeline.RetainedDir,
			JPEGQuality: cfg.Pipeline.JPEGQuality,
		},
		logger,
	), nil
}

func newOrientation(cfg *config.Config, logger *observability.Logger) (domain.OrientationStage, error) {
	switch cfg.Orientation.Driver {
	case "remote":
		return remote.NewOrientationClient(cfg.Orientation.URL, cfg.Orientation.Timeout, logger), nil
	case "fullpage", "":
		return fullpage.NewDetector(), nil
	default:
		return nil, domain.ConfigError(fmt.Sprintf("unknown orientation driver %q", cfg.Orientation.Driver), nil)
	}
}

func newTableOCR(cfg *config.Config, logger *observability.Logger) (domain.TableOCRStage, error) {
	switch cfg.TableOCR.Driver {
	case "remote":
		c, err := remote.NewTableClient(cfg.TableOCR.URL, cfg.TableOCR.Timeout, logger)
		if err != nil {
			return nil, domain.ConfigError("Failed to create table OCR client", err)
		}
		return c, nil
	case "tesseract", "":
		return tesseract.NewRecognizer(strings.Split(cfg.TableOCR.Language, "+")...), nil
	default:
		return nil, domain.ConfigError(fmt.Sprintf("unknown table_ocr driver %q", cfg.TableOCR.Driver), nil)
	}
}

package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/spherical/table-extractor/internal/domain"
	"github.com/spherical/table-extractor/internal/imaging"
	"github.com/spherical/table-extractor/internal/observability"
	"github.com/spherical/table-extractor/internal/scratch"
)

// PageSource produces the ordered pages of a document
type PageSource interface {
	Materialize(ctx context.Context, doc domain.Document, dir string) ([]domain.Page, error)
}

// Options tunes the orchestrator
type Options struct {
	MaxWorkers  int    // page worker pool size; 0 means runtime.NumCPU()
	RetainedDir string // permanent copy of every corrected crop; empty disables
	JPEGQuality int
}

// Service orchestrates the table and seal extraction of one document
type Service struct {
	pages       PageSource
	resizer     *imaging.Resizer
	orientation domain.OrientationStage
	tableOCR    domain.TableOCRStage
	seal        domain.SealStage
	opts        Options
	logger      *observability.Logger
}

// NewService creates a new extraction service. The stages are shared by all
// requests and must be safe for concurrent use.
func NewService(
	pages PageSource,
	resizer *imaging.Resizer,
	orientation domain.OrientationStage,
	tableOCR domain.TableOCRStage,
	seal domain.SealStage,
	opts Options,
	logger *observability.Logger,
) *Service {
	if logger == nil {
		logger = observability.Nop()
	}
	if opts.MaxWorkers <= 0 {
		opts.MaxWorkers = runtime.NumCPU()
	}
	if opts.JPEGQuality <= 0 {
		opts.JPEGQuality = 95
	}
	return &Service{
		pages:       pages,
		resizer:     resizer,
		orientation: orientation,
		tableOCR:    tableOCR,
		seal:        seal,
		opts:        opts,
		logger:      logger.WithOperation("extract"),
	}
}

// Process runs the pipeline for a classified, saved document. Every
// intermediate artifact is written beneath scope; the caller closes it.
// Process never returns an error: all failures are mapped onto the result.
func (s *Service) Process(ctx context.Context, doc domain.Document, scope *scratch.Scope, eventCh chan<- domain.StreamEvent) (res domain.PipelineResult) {
	startTime := time.Now()
	logger := s.logger.WithContext(ctx).With().
		Str("document_id", doc.ID).
		Str("filename", doc.Filename).
		Logger()

	var sealCh <-chan domain.SealInfo
	defer func() {
		if r := recover(); r != nil {
			logger.Error().
				Interface("panic", r).
				Str("stack", string(debug.Stack())).
				Msg("Pipeline panicked")
			if sealCh != nil {
				<-sealCh
			}
			res = FailureResult(domain.InternalError(fmt.Sprint(r), nil), domain.SealInfo{})
			s.emitError(eventCh, 0, fmt.Errorf("%v", r))
		}
	}()

	s.emitEvent(eventCh, domain.StreamEvent{
		Type:      domain.EventStart,
		Payload:   fmt.Sprintf("Starting extraction of %s", doc.Filename),
		Timestamp: time.Now(),
	})
	logger.Debug().Str("state", "classified").Str("kind", string(doc.Kind)).Msg("Pipeline state")

	// The seal branch reads the upload, so it is joined on every path before
	// the caller may tear the scope down.
	sealCh = s.startSeal(ctx, doc, logger, eventCh)

	pagesDir, err := scope.MkdirAll("pages")
	if err != nil {
		return s.fail(logger, eventCh, err, <-sealCh)
	}

	pages, err := s.pages.Materialize(ctx, doc, pagesDir)
	if err != nil {
		return s.fail(logger, eventCh, err, <-sealCh)
	}
	logger.Debug().Str("state", "materialized").Int("pages", len(pages)).Msg("Pipeline state")
	s.emitEvent(eventCh, domain.StreamEvent{
		Type:      domain.EventPagesReady,
		Total:     len(pages),
		Payload:   fmt.Sprintf("%d pages ready", len(pages)),
		Timestamp: time.Now(),
	})

	outcomes, err := s.processPages(ctx, pages, scope, logger, eventCh)
	seal := <-sealCh
	if err != nil {
		return s.fail(logger, eventCh, err, seal)
	}

	res, stats := aggregate(outcomes, seal)
	stats.TotalTime = time.Since(startTime)

	logger.Info().
		Str("outcome", string(res.Outcome)).
		Int("pages", stats.PagesProcessed).
		Int("regions", stats.RegionsFound).
		Int("failed_pages", stats.FailedPages).
		Int("failed_regions", stats.FailedRegions).
		Int("cells", len(res.Tables)).
		Dur("duration", stats.TotalTime).
		Msg("Extraction complete")

	s.emitEvent(eventCh, domain.StreamEvent{
		Type: domain.EventComplete,
		Payload: fmt.Sprintf("Extraction complete: %d cells from %d regions on %d pages in %v",
			len(res.Tables), stats.RegionsFound, stats.PagesProcessed, stats.TotalTime.Round(time.Millisecond)),
		Timestamp: time.Now(),
	})

	return res
}

func (s *Service) fail(logger *observability.Logger, eventCh chan<- domain.StreamEvent, err error, seal domain.SealInfo) domain.PipelineResult {
	res := FailureResult(err, seal)
	logger.Error().
		Err(err).
		Int("code", res.Code).
		Str("outcome", string(res.Outcome)).
		Msg("Extraction failed")
	s.emitError(eventCh, 0, err)
	return res
}

// startSeal dispatches the seal branch on the original upload. The returned
// channel yields exactly one value and is then closed, so a second receive
// never blocks.
func (s *Service) startSeal(ctx context.Context, doc domain.Document, logger *observability.Logger, eventCh chan<- domain.StreamEvent) <-chan domain.SealInfo {
	sealCh := make(chan domain.SealInfo, 1)

	go func() {
		var info domain.SealInfo
		defer func() {
			if r := recover(); r != nil {
				err := domain.SealServiceError("seal stage panicked", fmt.Errorf("%v", r))
				logger.Error().Err(err).Msg("Seal detection failed")
				info = domain.SealFailure(fmt.Sprintf("seal detection panicked: %v", r))
			}
			s.emitEvent(eventCh, domain.StreamEvent{
				Type:      domain.EventSealComplete,
				Payload:   "Seal detection complete",
				Timestamp: time.Now(),
			})
			sealCh <- info
			close(sealCh)
		}()

		info = s.seal.Detect(ctx, doc.Path)
		logger.Debug().Str("state", "seal_done").Int("seal_state", int(info.State)).Msg("Pipeline state")
	}()

	return sealCh
}

// processPages runs the per-page work on a bounded pool. Outcomes are
// indexed by page position, so completion order does not matter. Only a
// panic outside region recognition fails the whole run.
func (s *Service) processPages(ctx context.Context, pages []domain.Page, scope *scratch.Scope, logger *observability.Logger, eventCh chan<- domain.StreamEvent) ([]pageOutcome, error) {
	outcomes := make([]pageOutcome, len(pages))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, min(len(pages), s.opts.MaxWorkers)))

	for i := range pages {
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					logger.Error().
						Int("page", pages[i].Index).
						Interface("panic", r).
						Str("stack", string(debug.Stack())).
						Msg("Page worker panicked")
					err = domain.InternalError(fmt.Sprintf("page %d: %v", pages[i].Index, r), nil)
				}
			}()
			outcomes[i] = s.processPage(gctx, &pages[i], scope, logger, eventCh)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return outcomes, nil
}

// processPage resizes, orients and recognizes one page. A detection failure
// is confined to the page.
func (s *Service) processPage(ctx context.Context, page *domain.Page, scope *scratch.Scope, logger *observability.Logger, eventCh chan<- domain.StreamEvent) pageOutcome {
	out := pageOutcome{index: page.Index}
	log := logger.With().Int("page", page.Index).Logger()

	s.emitEvent(eventCh, domain.StreamEvent{
		Type:       domain.EventPageProcessing,
		PageNumber: page.Index,
		Payload:    fmt.Sprintf("Processing page %d", page.Index),
		Timestamp:  time.Now(),
	})

	page.Resized, page.WorkPath = page.Source, page.SourcePath
	if resized, ok := s.resizer.Resize(page.Source); ok {
		path := scope.Path("pages", fmt.Sprintf("resized_page_%d.png", page.Index))
		if err := imaging.SavePNG(path, resized); err != nil {
			log.Warn().Err(err).Msg("Failed to save resized page, using original")
		} else {
			page.Resized, page.WorkPath = resized, path
		}
	}
	log.Debug().Str("state", "resized").Str("work_path", page.WorkPath).Msg("Pipeline state")

	det, err := s.orientation.Detect(ctx, page.WorkPath)
	if err != nil {
		log.Error().Err(err).Msg("Table detection failed, skipping page")
		out.detectErr = err
		s.emitError(eventCh, page.Index, err)
		return out
	}
	log.Debug().
		Str("state", "oriented").
		Int("regions", len(det.Regions)).
		Dur("detect", det.Timing.Detect).
		Dur("edge", det.Timing.Edge).
		Dur("rotate", det.Timing.Rotate).
		Msg("Pipeline state")

	if len(det.Regions) > 0 {
		outDir, err := scope.MkdirAll("outputs", fmt.Sprintf("page_%d", page.Index))
		if err != nil {
			log.Error().Err(err).Msg("Failed to create region output directory")
			out.detectErr = err
			s.emitError(eventCh, page.Index, err)
			return out
		}

		out.regions = make([]regionOutcome, len(det.Regions))
		page.Regions = make([]domain.Region, len(det.Regions))
		for i, dr := range det.Regions {
			page.Regions[i] = domain.Region{Index: i, Corners: dr.Corners(), Box: dr.Box}
			out.regions[i] = s.processRegion(ctx, page, &page.Regions[i], outDir, scope, log)
		}
	}

	log.Debug().Str("state", "ocr_done").Msg("Pipeline state")
	s.emitEvent(eventCh, domain.StreamEvent{
		Type:       domain.EventPageComplete,
		PageNumber: page.Index,
		Payload:    fmt.Sprintf("Completed page %d: %d tables", page.Index, len(det.Regions)),
		Timestamp:  time.Now(),
	})
	return out
}

// processRegion corrects, persists and recognizes one table region. Every
// failure, panics included, is confined to the region.
func (s *Service) processRegion(ctx context.Context, page *domain.Page, region *domain.Region, outDir string, scope *scratch.Scope, logger *observability.Logger) (out regionOutcome) {
	log := logger.With().Int("region", region.Index).Logger()

	defer func() {
		if r := recover(); r != nil {
			out = regionOutcome{err: domain.OCRError(fmt.Sprintf("region recognition panicked: %v", r), nil)}
		}
		if out.err != nil {
			log.Error().Err(out.err).Msg("Region skipped")
		}
	}()

	warped, err := imaging.Warp(page.Resized, region.Corners)
	if err != nil {
		return regionOutcome{err: domain.OCRError("Failed to correct table region", err)}
	}

	name := strings.TrimSuffix(filepath.Base(page.WorkPath), filepath.Ext(page.WorkPath))
	cropName := fmt.Sprintf("%s-extract-%d.jpg", name, region.Index)
	region.CropPath = filepath.Join(outDir, cropName)
	if err := imaging.SaveJPEG(region.CropPath, warped, s.opts.JPEGQuality); err != nil {
		return regionOutcome{err: domain.IOError("Failed to save corrected table", err)}
	}
	s.retain(region.CropPath, fmt.Sprintf("page-%d-%s", page.Index, cropName), log)

	entries, err := s.tableOCR.Recognize(ctx, region.CropPath)
	if err != nil {
		return regionOutcome{err: err}
	}
	if entries == nil {
		return regionOutcome{err: domain.OCRError("Table recognition produced no output", nil)}
	}

	cells := toCells(entries)
	s.writeArtifact(scope, page.Index, region.Index, cells, log)

	log.Debug().Int("cells", len(cells)).Msg("Region recognized")
	return regionOutcome{cells: cells}
}

// writeArtifact stores the recognized cells of a region for inspection.
func (s *Service) writeArtifact(scope *scratch.Scope, pageIndex, regionIndex int, cells []domain.TableCell, log *observability.Logger) {
	dir, err := scope.MkdirAll("ocr_outputs", fmt.Sprintf("page_%d", pageIndex), fmt.Sprintf("region_%d", regionIndex))
	if err != nil {
		log.Warn().Err(err).Msg("Failed to create OCR output directory")
		return
	}

	data, err := json.MarshalIndent(map[string]any{"tables": cells}, "", "  ")
	if err != nil {
		log.Warn().Err(err).Msg("Failed to encode OCR output")
		return
	}
	if err := os.WriteFile(filepath.Join(dir, "table.json"), data, 0o644); err != nil {
		log.Warn().Err(err).Msg("Failed to write OCR output")
	}
}

// retain copies a corrected crop into the retained directory under a name
// that cannot collide with other requests.
func (s *Service) retain(src, derived string, log *observability.Logger) {
	if s.opts.RetainedDir == "" {
		return
	}
	if err := os.MkdirAll(s.opts.RetainedDir, 0o755); err != nil {
		log.Warn().Err(err).Msg("Failed to create retained image directory")
		return
	}

	dst := filepath.Join(s.opts.RetainedDir, fmt.Sprintf("image_%s_%s", newID(), derived))
	if err := copyFile(src, dst); err != nil {
		log.Warn().Err(err).Str("path", dst).Msg("Failed to retain corrected image")
		return
	}
	log.Debug().Str("path", dst).Msg("Corrected image retained")
}

func newID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// emitEvent safely emits an event to the channel
func (s *Service) emitEvent(eventCh chan<- domain.StreamEvent, event domain.StreamEvent) {
	if eventCh != nil {
		select {
		case eventCh <- event:
		default:
			s.logger.Warn().Str("event", string(event.Type)).Msg("Event channel full, dropping event")
		}
	}
}

// emitError emits an error event
func (s *Service) emitError(eventCh chan<- domain.StreamEvent, page int, err error) {
	s.emitEvent(eventCh, domain.StreamEvent{
		Type:       domain.EventError,
		PageNumber: page,
		Payload:    err.Error(),
		Timestamp:  time.Now(),
	})
}

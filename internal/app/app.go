// Package app runs one upload through validation, the extraction pipeline and
// scratch cleanup. The HTTP server and the CLI share it.
package app

import (
	"context"
	"fmt"
	"runtime/debug"

	"github.com/spherical/table-extractor/internal/domain"
	"github.com/spherical/table-extractor/internal/extract"
	"github.com/spherical/table-extractor/internal/ingest"
	"github.com/spherical/table-extractor/internal/observability"
	"github.com/spherical/table-extractor/internal/scratch"
)

// Processor runs the pipeline for a saved document
type Processor interface {
	Process(ctx context.Context, doc domain.Document, scope *scratch.Scope, eventCh chan<- domain.StreamEvent) domain.PipelineResult
}

// App ties upload handling to the pipeline
type App struct {
	processor  Processor
	validator  *ingest.Validator
	scratchDir string
	logger     *observability.Logger
}

// New creates an App. scratchDir is the base under which each request gets
// its own directory.
func New(processor Processor, validator *ingest.Validator, scratchDir string, logger *observability.Logger) *App {
	if logger == nil {
		logger = observability.Nop()
	}
	return &App{
		processor:  processor,
		validator:  validator,
		scratchDir: scratchDir,
		logger:     logger,
	}
}

// MaxBytes returns the upload size limit
func (a *App) MaxBytes() int64 {
	return a.validator.MaxBytes()
}

// Handle validates up, stores it in a fresh scratch scope and runs the
// pipeline. Invalid uploads are rejected before anything is written. The
// scope is removed before Handle returns, whatever the outcome.
func (a *App) Handle(ctx context.Context, up ingest.Upload, eventCh chan<- domain.StreamEvent) (res domain.PipelineResult) {
	logger := a.logger.WithContext(ctx)

	doc, err := a.validator.Classify(up.Filename, up.Size)
	if err != nil {
		logger.Warn().Err(err).Str("filename", up.Filename).Int64("size", up.Size).Msg("Upload rejected")
		return extract.FailureResult(err, domain.SealInfo{})
	}
	logger = logger.With().Str("document_id", doc.ID).Logger()

	scope, err := scratch.Open(a.scratchDir, doc.ID)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to open scratch scope")
		return extract.FailureResult(err, domain.SealInfo{})
	}
	defer func() {
		if err := scope.Close(); err != nil {
			logger.Warn().Err(err).Str("dir", scope.Dir()).Msg("Failed to clean scratch scope")
			return
		}
		logger.Debug().Str("state", "cleaned").Msg("Pipeline state")
	}()
	defer func() {
		if r := recover(); r != nil {
			logger.Error().Interface("panic", r).Str("stack", string(debug.Stack())).Msg("Request panicked")
			res = extract.FailureResult(domain.InternalError(fmt.Sprint(r), nil), domain.SealInfo{})
		}
	}()

	if err := a.validator.Save(&doc, up.Body, scope.Dir()); err != nil {
		logger.Warn().Err(err).Msg("Failed to store upload")
		return extract.FailureResult(err, domain.SealInfo{})
	}
	logger.Info().
		Str("filename", doc.Filename).
		Str("kind", string(doc.Kind)).
		Int64("size", doc.Size).
		Msg("Upload accepted")

	return a.processor.Process(ctx, doc, scope, eventCh)
}

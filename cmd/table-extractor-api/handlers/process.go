// Package handlers provides HTTP handlers for the table extractor API.
package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/spherical/table-extractor/internal/app"
	"github.com/spherical/table-extractor/internal/domain"
	"github.com/spherical/table-extractor/internal/extract"
	"github.com/spherical/table-extractor/internal/ingest"
	"github.com/spherical/table-extractor/internal/observability"
)

// multipartSlack covers the multipart framing around the file part.
const multipartSlack = 1 << 20

// ProcessHandler handles document extraction requests.
type ProcessHandler struct {
	logger *observability.Logger
	app    *app.App
}

// NewProcessHandler creates a new process handler.
func NewProcessHandler(logger *observability.Logger, application *app.App) *ProcessHandler {
	return &ProcessHandler{
		logger: logger,
		app:    application,
	}
}

// Process handles POST /process_image. The "image" part is streamed straight
// into the request scratch area; nothing is buffered elsewhere on disk.
func (h *ProcessHandler) Process(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	r.Body = http.MaxBytesReader(w, r.Body, h.app.MaxBytes()+multipartSlack)

	mr, err := r.MultipartReader()
	if err != nil {
		h.writeResult(w, extract.FailureResult(
			domain.ValidationError(domain.CodeMissingImagePart, "No image part in the request", err), domain.SealInfo{}))
		return
	}

	part, err := imagePart(mr)
	if err != nil {
		h.writeResult(w, extract.FailureResult(err, domain.SealInfo{}))
		return
	}
	defer part.Close()

	// A file input submitted without a selection arrives with an empty
	// filename.
	if part.FileName() == "" {
		h.writeResult(w, extract.FailureResult(
			domain.ValidationError(domain.CodeEmptyFilename, "No selected file", nil), domain.SealInfo{}))
		return
	}

	res := h.app.Handle(ctx, ingest.Upload{
		Filename: part.FileName(),
		Size:     ingest.UnknownSize,
		Body:     part,
	}, nil)

	h.writeResult(w, res)
}

// imagePart advances mr to the "image" part, skipping any other fields.
func imagePart(mr *multipart.Reader) (*multipart.Part, error) {
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			return nil, domain.ValidationError(domain.CodeMissingImagePart, "No image part in the request", nil)
		}
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				return nil, domain.ValidationError(domain.CodeInvalidSize, "File exceeds maximum upload size", err)
			}
			return nil, domain.ValidationError(domain.CodeMissingImagePart, "No image part in the request", err)
		}
		if part.FormName() == "image" {
			return part, nil
		}
		part.Close()
	}
}

func (h *ProcessHandler) writeResult(w http.ResponseWriter, res domain.PipelineResult) {
	status := extract.HTTPStatus(res)
	if status != http.StatusOK {
		h.logger.Warn().
			Int("status", status).
			Int("code", res.Code).
			Str("message", res.Message).
			Msg("Request not processed")
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(extract.NewEnvelope(res)); err != nil {
		h.logger.Error().Err(err).Msg("Failed to encode response")
	}
}

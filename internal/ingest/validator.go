// Package ingest validates and classifies uploaded documents.
package ingest

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/spherical/table-extractor/internal/domain"
)

// DefaultMaxBytes is the upload size limit used when none is configured
const DefaultMaxBytes = 50 * 1024 * 1024

var allowedExtensions = map[string]domain.DocumentKind{
	"png":  domain.KindImage,
	"jpg":  domain.KindImage,
	"jpeg": domain.KindImage,
	"bmp":  domain.KindImage,
	"tiff": domain.KindImage,
	"pdf":  domain.KindPDF,
}

// UnknownSize marks an upload whose length is only known once it is read,
// such as a streamed multipart part. Save enforces the limits for it.
const UnknownSize int64 = -1

// Upload is a raw file as received from the client
type Upload struct {
	Filename string
	Size     int64 // UnknownSize when streamed
	Body     io.Reader
}

// Validator provides input validation for uploads
type Validator struct {
	maxBytes int64
}

// NewValidator creates a new validator instance
func NewValidator(maxBytes int64) *Validator {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Validator{maxBytes: maxBytes}
}

// MaxBytes returns the configured upload limit
func (v *Validator) MaxBytes() int64 {
	return v.maxBytes
}

// Classify validates the upload metadata and returns the classified document.
// No file is written. A size of UnknownSize defers the size checks to Save.
func (v *Validator) Classify(filename string, size int64) (domain.Document, error) {
	if strings.TrimSpace(filename) == "" {
		return domain.Document{}, domain.ValidationError(domain.CodeEmptyFilename, "No selected file", nil)
	}

	ext := Extension(filename)
	kind, ok := allowedExtensions[ext]
	if !ok {
		return domain.Document{}, domain.ValidationError(domain.CodeUnsupportedType, "Unsupported file type",
			fmt.Errorf("extension %q is not allowed", ext))
	}

	if size == UnknownSize {
		return v.newDocument(filename, kind, ext, 0), nil
	}
	if size <= 0 {
		return domain.Document{}, domain.ValidationError(domain.CodeInvalidSize, "Uploaded file is empty", nil)
	}
	if size > v.maxBytes {
		return domain.Document{}, domain.ValidationError(domain.CodeInvalidSize, "File exceeds maximum upload size",
			fmt.Errorf("%d bytes > %d bytes", size, v.maxBytes))
	}

	return v.newDocument(filename, kind, ext, size), nil
}

func (v *Validator) newDocument(filename string, kind domain.DocumentKind, ext string, size int64) domain.Document {
	return domain.Document{
		ID:       uuid.New().String(),
		Kind:     kind,
		Filename: filepath.Base(filename),
		Ext:      ext,
		Size:     size,
	}
}

// Save writes the upload body into dir under a unique name and records the
// path on the document. At most MaxBytes+1 bytes are read so an understated
// Size is still caught.
func (v *Validator) Save(doc *domain.Document, body io.Reader, dir string) error {
	path := filepath.Join(dir, fmt.Sprintf("%s.%s", strings.ReplaceAll(doc.ID, "-", ""), doc.Ext))

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
	if err != nil {
		return domain.IOError("Failed to create upload file", err)
	}

	n, err := io.Copy(f, io.LimitReader(body, v.maxBytes+1))
	closeErr := f.Close()
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return domain.ValidationError(domain.CodeInvalidSize, "File exceeds maximum upload size", err)
		}
		return domain.IOError("Failed to store upload", err)
	}
	if closeErr != nil {
		return domain.IOError("Failed to store upload", closeErr)
	}

	if n > v.maxBytes {
		return domain.ValidationError(domain.CodeInvalidSize, "File exceeds maximum upload size", nil)
	}
	if n == 0 {
		return domain.ValidationError(domain.CodeInvalidSize, "Uploaded file is empty", nil)
	}

	doc.Path = path
	doc.Size = n
	return nil
}

// Extension returns the lower-case extension of filename without the dot
func Extension(filename string) string {
	idx := strings.LastIndex(filename, ".")
	if idx < 0 || idx == len(filename)-1 {
		return ""
	}
	return strings.ToLower(filename[idx+1:])
}

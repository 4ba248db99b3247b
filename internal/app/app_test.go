package app

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spherical/table-extractor/internal/domain"
	"github.com/spherical/table-extractor/internal/ingest"
	"github.com/spherical/table-extractor/internal/scratch"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProcessor struct {
	calls   int
	sawFile bool
	doc     domain.Document
	panic   bool
}

func (f *fakeProcessor) Process(ctx context.Context, doc domain.Document, scope *scratch.Scope, eventCh chan<- domain.StreamEvent) domain.PipelineResult {
	f.calls++
	f.doc = doc
	_, err := os.Stat(doc.Path)
	f.sawFile = err == nil && strings.HasPrefix(doc.Path, scope.Dir())
	if f.panic {
		panic("pipeline exploded")
	}
	return domain.PipelineResult{Code: 200, Message: "success", Outcome: domain.OutcomeSuccess, Tables: []domain.TableCell{}}
}

func upload(name string, body []byte) ingest.Upload {
	return ingest.Upload{Filename: name, Size: int64(len(body)), Body: bytes.NewReader(body)}
}

func assertEmpty(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return
	}
	require.NoError(t, err)
	assert.Empty(t, entries, "scratch base should be empty")
}

func TestApp_RejectsUnsupportedType(t *testing.T) {
	base := filepath.Join(t.TempDir(), "scratch")
	proc := &fakeProcessor{}
	a := New(proc, ingest.NewValidator(0), base, nil)

	res := a.Handle(context.Background(), upload("report.docx", []byte("PK\x03\x04")), nil)

	assert.Equal(t, domain.OutcomeValidationFailed, res.Outcome)
	assert.Equal(t, domain.CodeUnsupportedType, res.Code)
	assert.Zero(t, proc.calls)
	assertEmpty(t, base)
}

func TestApp_RunsPipelineAndCleans(t *testing.T) {
	base := t.TempDir()
	proc := &fakeProcessor{}
	a := New(proc, ingest.NewValidator(0), base, nil)

	res := a.Handle(context.Background(), upload("Scan.PNG", []byte("png")), nil)

	assert.Equal(t, domain.OutcomeSuccess, res.Outcome)
	assert.Equal(t, 1, proc.calls)
	assert.True(t, proc.sawFile)
	assert.Equal(t, domain.KindImage, proc.doc.Kind)
	assert.Equal(t, "png", proc.doc.Ext)
	assertEmpty(t, base)
}

func TestApp_PanicIsInternalErrorAndCleans(t *testing.T) {
	base := t.TempDir()
	a := New(&fakeProcessor{panic: true}, ingest.NewValidator(0), base, nil)

	res := a.Handle(context.Background(), upload("doc.pdf", []byte("%PDF")), nil)

	assert.Equal(t, domain.OutcomeInternalError, res.Outcome)
	assert.Equal(t, domain.CodeInternalError, res.Code)
	assertEmpty(t, base)
}

func TestApp_UnderstatedSizeCaughtOnSave(t *testing.T) {
	base := t.TempDir()
	proc := &fakeProcessor{}
	a := New(proc, ingest.NewValidator(4), base, nil)

	up := ingest.Upload{Filename: "big.png", Size: 2, Body: bytes.NewReader([]byte("0123456789"))}
	res := a.Handle(context.Background(), up, nil)

	assert.Equal(t, domain.CodeInvalidSize, res.Code)
	assert.Zero(t, proc.calls)
	assertEmpty(t, base)
}

package extract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spherical/table-extractor/internal/domain"
	"github.com/spherical/table-extractor/internal/imaging"
	"github.com/spherical/table-extractor/internal/pdf"
	"github.com/spherical/table-extractor/internal/scratch"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Fakes

type fakePages struct {
	sizes []image.Point
	err   error
}

func (f *fakePages) Materialize(ctx context.Context, doc domain.Document, dir string) ([]domain.Page, error) {
	if f.err != nil {
		return nil, f.err
	}
	pages := make([]domain.Page, 0, len(f.sizes))
	for i, sz := range f.sizes {
		pages = append(pages, domain.Page{
			Index:      i + 1,
			SourcePath: filepath.Join(dir, fmt.Sprintf("page_%03d.png", i+1)),
			Source:     image.NewRGBA(image.Rect(0, 0, sz.X, sz.Y)),
		})
	}
	return pages, nil
}

type fakeOrientation struct {
	detect func(page int, path string) (domain.Detection, error)
}

func (f *fakeOrientation) Detect(ctx context.Context, path string) (domain.Detection, error) {
	return f.detect(pageOf(path), path)
}

type fakeOCR struct {
	recognize func(page, region int) ([]domain.OCREntry, error)
}

func (f *fakeOCR) Recognize(ctx context.Context, path string) ([]domain.OCREntry, error) {
	page, region := cropOf(path)
	return f.recognize(page, region)
}

type fakeSeal struct {
	info  domain.SealInfo
	delay time.Duration
	mu    sync.Mutex
	path  string
}

func (f *fakeSeal) Detect(ctx context.Context, path string) domain.SealInfo {
	time.Sleep(f.delay)
	f.mu.Lock()
	f.path = path
	f.mu.Unlock()
	return f.info
}

var (
	pagePattern = regexp.MustCompile(`page_0*(\d+)\.png$`)
	cropPattern = regexp.MustCompile(`page_(\d+)/[^/]+-extract-(\d+)\.jpg$`)
)

func pageOf(path string) int {
	m := pagePattern.FindStringSubmatch(filepath.ToSlash(path))
	if m == nil {
		return 0
	}
	n, _ := strconv.Atoi(m[1])
	return n
}

func cropOf(path string) (int, int) {
	m := cropPattern.FindStringSubmatch(filepath.ToSlash(path))
	if m == nil {
		return 0, 0
	}
	p, _ := strconv.Atoi(m[1])
	r, _ := strconv.Atoi(m[2])
	return p, r
}

// Helpers

func box(x1, y1, x2, y2 float64) domain.DetectedRegion {
	return domain.DetectedRegion{
		Box: domain.Rect{X1: x1, Y1: y1, X2: x2, Y2: y2},
		LT:  domain.Point{X: x1, Y: y1},
		RT:  domain.Point{X: x2, Y: y1},
		RB:  domain.Point{X: x2, Y: y2},
		LB:  domain.Point{X: x1, Y: y2},
	}
}

func regions(n int) domain.Detection {
	det := domain.Detection{}
	for i := 0; i < n; i++ {
		det.Regions = append(det.Regions, box(0, float64(i*20), 50, float64(i*20+20)))
	}
	return det
}

func textEntry(text string) []domain.OCREntry {
	return []domain.OCREntry{{Box: [4]float64{1, 2, 3, 4}, Fragments: []domain.Fragment{{Text: text}}}}
}

func labelOCR(page, region int) ([]domain.OCREntry, error) {
	return textEntry(fmt.Sprintf("p%dr%d", page, region)), nil
}

func texts(cells []domain.TableCell) []string {
	out := make([]string, 0, len(cells))
	for _, c := range cells {
		out = append(out, c.Text)
	}
	return out
}

func pageSizes(n int) []image.Point {
	sizes := make([]image.Point, n)
	for i := range sizes {
		sizes[i] = image.Pt(100, 80)
	}
	return sizes
}

type harness struct {
	pages       *fakePages
	orientation *fakeOrientation
	ocr         *fakeOCR
	seal        *fakeSeal
	opts        Options
}

func newHarness(pages int) *harness {
	return &harness{
		pages:       &fakePages{sizes: pageSizes(pages)},
		orientation: &fakeOrientation{detect: func(int, string) (domain.Detection, error) { return regions(1), nil }},
		ocr:         &fakeOCR{recognize: labelOCR},
		seal:        &fakeSeal{info: domain.SealNone()},
		opts:        Options{MaxWorkers: 4},
	}
}

func (h *harness) run(t *testing.T) (domain.PipelineResult, *scratch.Scope) {
	t.Helper()
	scope, err := scratch.Open(t.TempDir(), "test")
	require.NoError(t, err)
	t.Cleanup(func() { scope.Close() })

	svc := NewService(h.pages, imaging.NewResizer(imaging.DefaultMaxWidth, nil), h.orientation, h.ocr, h.seal, h.opts, nil)
	doc := domain.Document{ID: "doc-1", Kind: domain.KindPDF, Filename: "in.pdf", Path: scope.Path("upload.pdf")}
	return svc.Process(context.Background(), doc, scope, nil), scope
}

// Tests

func TestProcess_OrderIndependentOfCompletion(t *testing.T) {
	h := newHarness(3)
	h.opts.MaxWorkers = 3
	h.orientation.detect = func(int, string) (domain.Detection, error) { return regions(2), nil }
	h.ocr.recognize = func(page, region int) ([]domain.OCREntry, error) {
		// Later pages finish first.
		time.Sleep(time.Duration(4-page) * 15 * time.Millisecond)
		return labelOCR(page, region)
	}

	res, _ := h.run(t)

	assert.Equal(t, domain.OutcomeSuccess, res.Outcome)
	assert.Equal(t, domain.CodeSuccess, res.Code)
	assert.Equal(t, []string{"p1r0", "p1r1", "p2r0", "p2r1", "p3r0", "p3r1"}, texts(res.Tables))
}

func TestProcess_EmptyMiddlePage(t *testing.T) {
	h := newHarness(3)
	h.orientation.detect = func(page int, _ string) (domain.Detection, error) {
		if page == 2 {
			return domain.Detection{}, nil
		}
		return regions(1), nil
	}

	res, _ := h.run(t)

	assert.Equal(t, domain.OutcomeSuccess, res.Outcome)
	assert.Equal(t, []string{"p1r0", "p3r0"}, texts(res.Tables))
}

func TestProcess_NoTableAnywhere(t *testing.T) {
	h := newHarness(2)
	h.orientation.detect = func(int, string) (domain.Detection, error) { return domain.Detection{}, nil }

	res, _ := h.run(t)

	assert.Equal(t, domain.OutcomeNoTableLocated, res.Outcome)
	assert.Equal(t, domain.CodeSuccess, res.Code)
	assert.Equal(t, MessageNoTableLocated, res.Message)
	assert.NotNil(t, res.Tables)
	assert.Empty(t, res.Tables)

	data, err := json.Marshal(NewEnvelope(res))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"tables":[]`)
}

func TestProcess_SealFailureKeepsTables(t *testing.T) {
	h := newHarness(1)
	h.seal.info = domain.SealFailure("Seal recognition API returned status code 503")

	res, _ := h.run(t)

	assert.Equal(t, domain.OutcomeSuccess, res.Outcome)
	assert.Equal(t, []string{"p1r0"}, texts(res.Tables))

	data, err := json.Marshal(res.Seal)
	require.NoError(t, err)
	assert.JSONEq(t, `{"error":"Seal recognition API returned status code 503"}`, string(data))
}

func TestProcess_SealGetsOriginalUpload(t *testing.T) {
	h := newHarness(1)
	res, scope := h.run(t)

	require.Equal(t, domain.OutcomeSuccess, res.Outcome)
	assert.Equal(t, scope.Path("upload.pdf"), h.seal.path)
}

func TestProcess_RegionFailuresIsolated(t *testing.T) {
	tests := []struct {
		name string
		fail func() ([]domain.OCREntry, error)
	}{
		{name: "panic", fail: func() ([]domain.OCREntry, error) { panic("model crashed") }},
		{name: "error", fail: func() ([]domain.OCREntry, error) { return nil, errors.New("ocr failed") }},
		{name: "no output", fail: func() ([]domain.OCREntry, error) { return nil, nil }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(2)
			h.orientation.detect = func(int, string) (domain.Detection, error) { return regions(3), nil }
			h.ocr.recognize = func(page, region int) ([]domain.OCREntry, error) {
				if page == 1 && region == 1 {
					return tt.fail()
				}
				return labelOCR(page, region)
			}

			res, _ := h.run(t)

			assert.Equal(t, domain.OutcomeSuccess, res.Outcome)
			assert.Equal(t, []string{"p1r0", "p1r2", "p2r0", "p2r1", "p2r2"}, texts(res.Tables))
		})
	}
}

func TestProcess_DetectionFailureIsolated(t *testing.T) {
	h := newHarness(3)
	h.orientation.detect = func(page int, _ string) (domain.Detection, error) {
		if page == 2 {
			return domain.Detection{}, domain.DetectionError("model unavailable", nil)
		}
		return regions(1), nil
	}

	res, _ := h.run(t)

	assert.Equal(t, domain.OutcomeSuccess, res.Outcome)
	assert.Equal(t, []string{"p1r0", "p3r0"}, texts(res.Tables))
}

func TestProcess_ConversionFailureKeepsSeal(t *testing.T) {
	h := newHarness(0)
	h.pages.err = domain.ConversionError("Error converting PDF to images", errors.New("broken xref"))
	h.seal.info = domain.SealStamp(json.RawMessage(`{"text":"ACME"}`))

	res, _ := h.run(t)

	assert.Equal(t, domain.OutcomeConversionFailed, res.Outcome)
	assert.Equal(t, domain.CodeConversionFailed, res.Code)
	assert.Equal(t, "Error converting PDF to images: broken xref", res.Message)
	assert.Equal(t, 200, HTTPStatus(res))

	data, err := json.Marshal(NewEnvelope(res))
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"code": 40103,
		"message": "Error converting PDF to images: broken xref",
		"result": {"table": {"details": [], "result": {"tables": []}}, "seal": {"text":"ACME"}}
	}`, string(data))
}

func TestProcess_UndecodableImageKeepsSeal(t *testing.T) {
	scope, err := scratch.Open(t.TempDir(), "test")
	require.NoError(t, err)
	defer scope.Close()

	path := scope.Path("upload.png")
	require.NoError(t, os.WriteFile(path, []byte("not an image"), 0o644))

	seal := &fakeSeal{info: domain.SealStamp(json.RawMessage(`{"text":"ACME"}`))}
	svc := NewService(pdf.NewMaterializer(nil), imaging.NewResizer(0, nil),
		&fakeOrientation{}, &fakeOCR{}, seal, Options{}, nil)
	doc := domain.Document{ID: "doc-1", Kind: domain.KindImage, Filename: "scan.png", Ext: "png", Path: path}

	res := svc.Process(context.Background(), doc, scope, nil)

	assert.Equal(t, domain.OutcomeConversionFailed, res.Outcome)
	assert.Equal(t, domain.CodeConversionFailed, res.Code)
	assert.Equal(t, 200, HTTPStatus(res))

	data, err := json.Marshal(NewEnvelope(res))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"seal":{"text":"ACME"}`)
	assert.Contains(t, string(data), `"tables":[]`)
}

func TestProcess_SealRunsAlongsidePages(t *testing.T) {
	const delay = 300 * time.Millisecond

	h := newHarness(1)
	h.seal.delay = delay
	h.orientation.detect = func(int, string) (domain.Detection, error) {
		time.Sleep(delay)
		return regions(1), nil
	}

	start := time.Now()
	res, _ := h.run(t)
	elapsed := time.Since(start)

	assert.Equal(t, domain.OutcomeSuccess, res.Outcome)
	assert.Equal(t, []string{"p1r0"}, texts(res.Tables))
	assert.GreaterOrEqual(t, elapsed, delay)
	assert.Less(t, elapsed, 2*delay-delay/4, "seal and page work should overlap")
}

func TestProcess_PanicOutsideRegionIsInternalError(t *testing.T) {
	h := newHarness(2)
	h.orientation.detect = func(int, string) (domain.Detection, error) { panic("detector crashed") }

	res, _ := h.run(t)

	assert.Equal(t, domain.OutcomeInternalError, res.Outcome)
	assert.Equal(t, domain.CodeInternalError, res.Code)
	assert.True(t, strings.HasPrefix(res.Message, "Internal server error: "))
	assert.Equal(t, 500, HTTPStatus(res))
}

func TestProcess_WideImageSingleTable(t *testing.T) {
	h := newHarness(0)
	h.pages.sizes = []image.Point{image.Pt(2000, 1000)}
	h.opts.RetainedDir = t.TempDir()

	h.orientation.detect = func(page int, path string) (domain.Detection, error) {
		img, _, err := imaging.Load(path)
		if err != nil {
			return domain.Detection{}, err
		}
		if img.Bounds().Dx() != imaging.DefaultMaxWidth {
			return domain.Detection{}, fmt.Errorf("detector got width %d", img.Bounds().Dx())
		}
		return domain.Detection{Regions: []domain.DetectedRegion{box(100, 100, 700, 400)}}, nil
	}
	h.ocr.recognize = func(page, region int) ([]domain.OCREntry, error) {
		var entries []domain.OCREntry
		for row := 0; row < 3; row++ {
			for col := 0; col < 2; col++ {
				entries = append(entries, domain.OCREntry{
					Logic:     [4]int{row, row, col, col},
					Box:       [4]float64{float64(col * 300), float64(row * 100), float64(col*300 + 300), float64(row*100 + 100)},
					Fragments: []domain.Fragment{{Text: fmt.Sprintf("r%dc%d", row, col)}},
				})
			}
		}
		return entries, nil
	}

	res, scope := h.run(t)

	require.Equal(t, domain.OutcomeSuccess, res.Outcome)
	require.Len(t, res.Tables, 6)
	for _, c := range res.Tables {
		assert.True(t, c.RowStart >= 0 && c.RowEnd <= 2)
		assert.True(t, c.ColStart >= 0 && c.ColEnd <= 1)
	}
	assert.Equal(t, [8]int{300, 200, 600, 200, 600, 300, 300, 300}, res.Tables[5].Position)

	seal, err := json.Marshal(res.Seal)
	require.NoError(t, err)
	assert.JSONEq(t, `{"message":"No stamps detected"}`, string(seal))

	_, err = os.Stat(scope.Path("ocr_outputs", "page_1", "region_0", "table.json"))
	assert.NoError(t, err)
	_, err = os.Stat(scope.Path("outputs", "page_1", "resized_page_1-extract-0.jpg"))
	assert.NoError(t, err)

	retained, err := os.ReadDir(h.opts.RetainedDir)
	require.NoError(t, err)
	require.Len(t, retained, 1)
	assert.Regexp(t, `^image_[0-9a-f]{32}_page-1-resized_page_1-extract-0\.jpg$`, retained[0].Name())
}

func TestProcess_EmitsProgressEvents(t *testing.T) {
	h := newHarness(2)
	scope, err := scratch.Open(t.TempDir(), "events")
	require.NoError(t, err)
	defer scope.Close()

	events := make(chan domain.StreamEvent, 32)
	svc := NewService(h.pages, imaging.NewResizer(0, nil), h.orientation, h.ocr, h.seal, h.opts, nil)
	svc.Process(context.Background(), domain.Document{Kind: domain.KindPDF}, scope, events)
	close(events)

	counts := map[domain.EventType]int{}
	for ev := range events {
		counts[ev.Type]++
	}
	assert.Equal(t, 1, counts[domain.EventStart])
	assert.Equal(t, 1, counts[domain.EventPagesReady])
	assert.Equal(t, 2, counts[domain.EventPageProcessing])
	assert.Equal(t, 2, counts[domain.EventPageComplete])
	assert.Equal(t, 1, counts[domain.EventSealComplete])
	assert.Equal(t, 1, counts[domain.EventComplete])
}

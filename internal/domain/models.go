package domain

import (
	"bytes"
	"encoding/json"
	"image"
	"time"
)

// DocumentKind classifies an upload
type DocumentKind string

const (
	KindImage DocumentKind = "image"
	KindPDF   DocumentKind = "pdf"
)

// Document represents the uploaded file being processed
type Document struct {
	ID       string
	Kind     DocumentKind
	Filename string // Original client filename
	Ext      string // Lower-case extension without the dot
	Path     string // Location inside the request scratch area
	Size     int64
}

// Point is a pixel coordinate in source-image space
type Point struct {
	X float64
	Y float64
}

// Rect is an axis-aligned pixel box
type Rect struct {
	X1, Y1, X2, Y2 float64
}

// Page represents a single page of the document
type Page struct {
	Index      int // 1-based
	SourcePath string
	Source     image.Image
	Resized    image.Image
	WorkPath   string // Path handed to the detection stage (resized copy or source)
	Regions    []Region
}

// Region is a detected table on a page, perspective-corrected into CropPath
type Region struct {
	Index    int
	Corners  [4]Point // lt, rt, rb, lb
	Box      Rect
	CropPath string
}

// DetectedRegion is what the orientation stage reports for one table
type DetectedRegion struct {
	Box Rect
	LT  Point
	RT  Point
	RB  Point
	LB  Point
}

// Corners returns the region corners in lt, rt, rb, lb order
func (r DetectedRegion) Corners() [4]Point {
	return [4]Point{r.LT, r.RT, r.RB, r.LB}
}

// DetectionTiming carries the orientation stage diagnostics
type DetectionTiming struct {
	Detect time.Duration
	Edge   time.Duration
	Rotate time.Duration
}

// Detection is the orientation stage output for one image
type Detection struct {
	Regions []DetectedRegion
	Timing  DetectionTiming
}

// Fragment is one recognized text run inside a cell
type Fragment struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// OCREntry is one cell as produced by the table OCR stage
type OCREntry struct {
	Logic     [4]int     `json:"logic"` // row_start, row_end, col_start, col_end
	Box       [4]float64 `json:"box"`   // x1, y1, x2, y2
	Fragments []Fragment `json:"fragments"`
}

// TableCell is a single extracted cell in the response
type TableCell struct {
	ColStart int    `json:"col_start"`
	ColEnd   int    `json:"col_end"`
	RowStart int    `json:"row_start"`
	RowEnd   int    `json:"row_end"`
	Position [8]int `json:"position"`
	Text     string `json:"text"`
}

// SealState distinguishes the three seal outcomes
type SealState int

const (
	SealStateNone SealState = iota
	SealStateStamp
	SealStateError
)

// Seal marker messages
const (
	NoStampsMessage  = "No stamps detected"
	NullStampMessage = "seal response stamp entry is null"
)

// SealInfo is the seal branch result. The zero value is the "no stamps" marker.
type SealInfo struct {
	State   SealState
	Stamp   json.RawMessage
	Message string
}

// SealStamp wraps the first stamp record returned by the seal service
func SealStamp(record json.RawMessage) SealInfo {
	return SealInfo{State: SealStateStamp, Stamp: record}
}

// SealNone is the explicit "no stamps detected" marker
func SealNone() SealInfo {
	return SealInfo{State: SealStateNone, Message: NoStampsMessage}
}

// SealFailure is the explicit error marker
func SealFailure(message string) SealInfo {
	return SealInfo{State: SealStateError, Message: message}
}

// MarshalJSON renders the stamp record as-is, or a message/error object.
func (s SealInfo) MarshalJSON() ([]byte, error) {
	switch s.State {
	case SealStateStamp:
		record := bytes.TrimSpace(s.Stamp)
		if len(record) == 0 {
			return []byte("{}"), nil
		}
		if bytes.Equal(record, []byte("null")) {
			return json.Marshal(map[string]string{"error": NullStampMessage})
		}
		return record, nil
	case SealStateError:
		return json.Marshal(map[string]string{"error": s.Message})
	default:
		msg := s.Message
		if msg == "" {
			msg = NoStampsMessage
		}
		return json.Marshal(map[string]string{"message": msg})
	}
}

// Outcome is the enumerated result of one pipeline run
type Outcome string

const (
	OutcomeSuccess          Outcome = "success"
	OutcomeNoTableLocated   Outcome = "no_table_located"
	OutcomeValidationFailed Outcome = "validation_failed"
	OutcomeConversionFailed Outcome = "conversion_failed"
	OutcomeInternalError    Outcome = "internal_error"
)

// PipelineResult is the aggregated result of one request
type PipelineResult struct {
	Code    int
	Message string
	Outcome Outcome
	Tables  []TableCell
	Seal    SealInfo
}

// ProcessingStats contains metadata about one pipeline run
type ProcessingStats struct {
	TotalTime      time.Duration
	PagesProcessed int
	RegionsFound   int
	FailedRegions  int
	FailedPages    int
}

// EventType represents the type of progress event
type EventType string

const (
	EventStart          EventType = "start"
	EventPagesReady     EventType = "pages_ready" // Total carries the page count
	EventPageProcessing EventType = "page_processing"
	EventPageComplete   EventType = "page_complete"
	EventSealComplete   EventType = "seal_complete"
	EventError          EventType = "error"
	EventComplete       EventType = "complete"
)

// StreamEvent reports pipeline progress to interactive callers
type StreamEvent struct {
	Type       EventType `json:"type"`
	PageNumber int       `json:"page_number,omitempty"`
	Total      int       `json:"total,omitempty"`
	Payload    string    `json:"payload"`
	Timestamp  time.Time `json:"timestamp"`
}

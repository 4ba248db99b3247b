package extract

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/spherical/table-extractor/internal/domain"
)

// Envelope messages
const (
	MessageSuccess        = "success"
	MessageNoTableLocated = "no table located"
)

// pageOutcome is what one page contributed. Regions are stored by region
// index so completion order never leaks into the result.
type pageOutcome struct {
	index     int
	regions   []regionOutcome
	detectErr error
}

type regionOutcome struct {
	cells []domain.TableCell
	err   error
}

// aggregate merges page outcomes in page then region order and attaches seal.
func aggregate(pages []pageOutcome, seal domain.SealInfo) (domain.PipelineResult, domain.ProcessingStats) {
	var stats domain.ProcessingStats
	tables := make([]domain.TableCell, 0)

	for _, p := range pages {
		stats.PagesProcessed++
		if p.detectErr != nil {
			stats.FailedPages++
			continue
		}
		stats.RegionsFound += len(p.regions)
		for _, r := range p.regions {
			if r.err != nil {
				stats.FailedRegions++
				continue
			}
			tables = append(tables, r.cells...)
		}
	}

	res := domain.PipelineResult{
		Code:    domain.CodeSuccess,
		Message: MessageSuccess,
		Outcome: domain.OutcomeSuccess,
		Tables:  tables,
		Seal:    seal,
	}
	if stats.RegionsFound == 0 {
		res.Message = MessageNoTableLocated
		res.Outcome = domain.OutcomeNoTableLocated
	}
	return res, stats
}

// toCells converts table OCR entries into response cells, keeping the order
// the stage emitted them in.
func toCells(entries []domain.OCREntry) []domain.TableCell {
	cells := make([]domain.TableCell, 0, len(entries))
	for _, e := range entries {
		x1, y1, x2, y2 := int(e.Box[0]), int(e.Box[1]), int(e.Box[2]), int(e.Box[3])

		texts := make([]string, 0, len(e.Fragments))
		for _, f := range e.Fragments {
			texts = append(texts, f.Text)
		}

		cells = append(cells, domain.TableCell{
			RowStart: e.Logic[0],
			RowEnd:   e.Logic[1],
			ColStart: e.Logic[2],
			ColEnd:   e.Logic[3],
			Position: [8]int{x1, y1, x2, y1, x2, y2, x1, y2},
			Text:     strings.Join(texts, " "),
		})
	}
	return cells
}

// FailureResult maps an error that ended the request early onto a result.
// Validation errors keep their specific code; conversion failures keep the
// seal result; anything else becomes an internal error.
func FailureResult(err error, seal domain.SealInfo) domain.PipelineResult {
	var de *domain.DomainError
	if !errors.As(err, &de) {
		de = domain.InternalError("unexpected failure", err)
	}

	switch de.Type {
	case domain.ErrorTypeValidation:
		return domain.PipelineResult{
			Code:    de.Code,
			Message: de.Message,
			Outcome: domain.OutcomeValidationFailed,
		}
	case domain.ErrorTypeConversion:
		return domain.PipelineResult{
			Code:    domain.CodeConversionFailed,
			Message: describe(de),
			Outcome: domain.OutcomeConversionFailed,
			Tables:  []domain.TableCell{},
			Seal:    seal,
		}
	default:
		return domain.PipelineResult{
			Code:    domain.CodeInternalError,
			Message: "Internal server error: " + describe(de),
			Outcome: domain.OutcomeInternalError,
		}
	}
}

func describe(de *domain.DomainError) string {
	if de.Err != nil {
		return fmt.Sprintf("%s: %v", de.Message, de.Err)
	}
	return de.Message
}

// Envelope is the JSON response body
type Envelope struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Result  any    `json:"result"`
}

type resultBody struct {
	Table tableBody       `json:"table"`
	Seal  domain.SealInfo `json:"seal"`
}

type tableBody struct {
	Details []any      `json:"details"`
	Result  tablesBody `json:"result"`
}

type tablesBody struct {
	Tables []domain.TableCell `json:"tables"`
}

// NewEnvelope renders res. Validation and internal failures carry an empty
// result object; every other outcome carries the table list and seal.
func NewEnvelope(res domain.PipelineResult) Envelope {
	env := Envelope{Code: res.Code, Message: res.Message}

	switch res.Outcome {
	case domain.OutcomeValidationFailed, domain.OutcomeInternalError:
		env.Result = struct{}{}
	default:
		tables := res.Tables
		if tables == nil {
			tables = []domain.TableCell{}
		}
		env.Result = resultBody{
			Table: tableBody{Details: []any{}, Result: tablesBody{Tables: tables}},
			Seal:  res.Seal,
		}
	}
	return env
}

// HTTPStatus returns the transport status for res. Logically handled
// outcomes, conversion failures included, answer 200.
func HTTPStatus(res domain.PipelineResult) int {
	switch res.Outcome {
	case domain.OutcomeValidationFailed:
		switch res.Code {
		case domain.CodeUnsupportedType:
			return http.StatusUnsupportedMediaType
		case domain.CodeInvalidSize:
			return http.StatusRequestEntityTooLarge
		default:
			return http.StatusBadRequest
		}
	case domain.OutcomeInternalError:
		return http.StatusInternalServerError
	default:
		return http.StatusOK
	}
}

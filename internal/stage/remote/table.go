package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/spherical/table-extractor/internal/domain"
	"github.com/spherical/table-extractor/internal/observability"
)

// tableSchema describes the table recognition server response
const tableSchema = `{
  "type": "object",
  "required": ["entries"],
  "properties": {
    "entries": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["t_logic_box", "t_box"],
        "properties": {
          "t_logic_box": {
            "type": "array", "minItems": 4, "maxItems": 4,
            "items": {"type": "integer", "minimum": 0}
          },
          "t_box": {
            "type": "array", "minItems": 4, "maxItems": 4,
            "items": {"type": "number"}
          },
          "t_ocr_res": {
            "type": ["array", "null"],
            "items": {
              "type": "object",
              "required": ["text"],
              "properties": {
                "text": {"type": "string"},
                "score": {"type": "number"}
              }
            }
          }
        }
      }
    }
  }
}`

// TableClient implements domain.TableOCRStage against a table recognition server
type TableClient struct {
	client
	schema *jsonschema.Schema
}

// NewTableClient creates a table recognition client for url
func NewTableClient(url string, timeout time.Duration, logger *observability.Logger) (*TableClient, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("table.json", strings.NewReader(tableSchema)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("table.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}

	return &TableClient{client: newClient(url, timeout, logger, "table_ocr"), schema: schema}, nil
}

type tableResponse struct {
	Entries []struct {
		LogicBox [4]int     `json:"t_logic_box"`
		Box      [4]float64 `json:"t_box"`
		OCR      []struct {
			Text  string  `json:"text"`
			Score float64 `json:"score"`
		} `json:"t_ocr_res"`
	} `json:"entries"`
}

// Recognize posts the corrected table image and returns its cells in the
// order the server emitted them
func (c *TableClient) Recognize(ctx context.Context, imagePath string) ([]domain.OCREntry, error) {
	data, err := c.post(ctx, imagePath)
	if err != nil {
		return nil, domain.OCRError("Table recognition request failed", err)
	}

	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, domain.OCRError("Invalid table recognition response", err)
	}
	if err := c.schema.Validate(raw); err != nil {
		return nil, domain.OCRError("Table recognition response does not match schema", err)
	}

	var resp tableResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, domain.OCRError("Invalid table recognition response", err)
	}

	entries := make([]domain.OCREntry, 0, len(resp.Entries))
	for _, e := range resp.Entries {
		entry := domain.OCREntry{Logic: e.LogicBox, Box: e.Box}
		for _, f := range e.OCR {
			entry.Fragments = append(entry.Fragments, domain.Fragment{Text: f.Text, Confidence: f.Score})
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

var _ domain.TableOCRStage = (*TableClient)(nil)

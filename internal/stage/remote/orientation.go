package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spherical/table-extractor/internal/domain"
	"github.com/spherical/table-extractor/internal/observability"
)

// OrientationClient implements domain.OrientationStage against a table
// detection server
type OrientationClient struct {
	client
}

// NewOrientationClient creates a detector client for url
func NewOrientationClient(url string, timeout time.Duration, logger *observability.Logger) *OrientationClient {
	return &OrientationClient{client: newClient(url, timeout, logger, "orientation")}
}

type detectResponse struct {
	Regions []struct {
		Box [4]float64 `json:"box"`
		LT  []float64  `json:"lt"`
		RT  []float64  `json:"rt"`
		RB  []float64  `json:"rb"`
		LB  []float64  `json:"lb"`
	} `json:"regions"`
	Elapse []float64 `json:"elapse"` // seconds: detection, edge, rotation
}

// Detect posts the page image and decodes the detected regions
func (c *OrientationClient) Detect(ctx context.Context, imagePath string) (domain.Detection, error) {
	data, err := c.post(ctx, imagePath)
	if err != nil {
		return domain.Detection{}, domain.DetectionError("Table detection request failed", err)
	}

	var resp detectResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return domain.Detection{}, domain.DetectionError("Invalid table detection response", err)
	}

	det := domain.Detection{Regions: make([]domain.DetectedRegion, 0, len(resp.Regions))}
	for i, r := range resp.Regions {
		corners := make([]domain.Point, 0, 4)
		for _, p := range [][]float64{r.LT, r.RT, r.RB, r.LB} {
			if len(p) != 2 {
				return domain.Detection{}, domain.DetectionError(fmt.Sprintf("region %d: corner must have 2 coordinates, got %d", i, len(p)), nil)
			}
			corners = append(corners, domain.Point{X: p[0], Y: p[1]})
		}
		det.Regions = append(det.Regions, domain.DetectedRegion{
			Box: domain.Rect{X1: r.Box[0], Y1: r.Box[1], X2: r.Box[2], Y2: r.Box[3]},
			LT:  corners[0],
			RT:  corners[1],
			RB:  corners[2],
			LB:  corners[3],
		})
	}

	if len(resp.Elapse) == 3 {
		det.Timing = domain.DetectionTiming{
			Detect: seconds(resp.Elapse[0]),
			Edge:   seconds(resp.Elapse[1]),
			Rotate: seconds(resp.Elapse[2]),
		}
	}

	return det, nil
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

var _ domain.OrientationStage = (*OrientationClient)(nil)

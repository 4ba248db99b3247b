// Package remote adapts HTTP model servers to the orientation and table OCR
// stage contracts. Both servers accept a multipart "image" upload and answer
// with JSON.
package remote

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spherical/table-extractor/internal/domain"
	"github.com/spherical/table-extractor/internal/httpx"
	"github.com/spherical/table-extractor/internal/observability"
)

const maxResponseBytes = 32 << 20

// client is the shared transport of the stage adapters
type client struct {
	url        string
	httpClient *http.Client
	retry      RetryConfig
	logger     *observability.Logger
}

func newClient(url string, timeout time.Duration, logger *observability.Logger, op string) client {
	if logger == nil {
		logger = observability.Nop()
	}
	return client{
		url:        url,
		httpClient: &http.Client{Timeout: timeout},
		retry:      DefaultRetryConfig(),
		logger:     logger.WithOperation(op),
	}
}

// post uploads the image at imagePath and returns the response body.
func (c *client) post(ctx context.Context, imagePath string) ([]byte, error) {
	body, contentType, err := httpx.FileForm("image", imagePath)
	if err != nil {
		return nil, domain.IOError("Failed to read image", err)
	}

	resp, err := c.retryWithBackoff(ctx, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", contentType)
		req.Header.Set("Accept", "application/json")
		return c.httpClient.Do(req)
	})
	if err != nil {
		return nil, domain.APIError("Failed to send request", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, domain.APIError("Failed to read response", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, domain.APIError(fmt.Sprintf("model server returned status %d: %s", resp.StatusCode, truncate(data, 200)), nil)
	}

	return data, nil
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}

// Package seal talks to the remote seal/stamp recognition service.
package seal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spherical/table-extractor/internal/domain"
	"github.com/spherical/table-extractor/internal/httpx"
	"github.com/spherical/table-extractor/internal/observability"
)

// DefaultTimeout bounds one call to the seal service
const DefaultTimeout = 30 * time.Second

const maxResponseBytes = 10 << 20

// Client implements domain.SealStage over HTTP
type Client struct {
	url        string
	httpClient *http.Client
	logger     *observability.Logger
}

// NewClient creates a seal client for the service at url
func NewClient(url string, timeout time.Duration, logger *observability.Logger) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = observability.Nop()
	}
	return &Client{
		url:        url,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.WithOperation("seal"),
	}
}

// response mirrors result.details.stamp with one pointer per level so a
// missing field is told apart from an empty one.
type response struct {
	Result *struct {
		Details *struct {
			Stamp *[]json.RawMessage `json:"stamp"`
		} `json:"details"`
	} `json:"result"`
}

// Detect sends the file at filePath to the seal service. All faults are
// reported in-band through the returned SealInfo.
func (c *Client) Detect(ctx context.Context, filePath string) domain.SealInfo {
	if c.url == "" {
		return domain.SealFailure("seal service not configured")
	}

	log := c.logger.WithContext(ctx)
	start := time.Now()

	body, contentType, err := httpx.FileForm("image", filePath)
	if err != nil {
		log.Error().Err(err).Msg("Failed to build seal request")
		return domain.SealFailure(fmt.Sprintf("Error reading file for seal recognition: %v", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return domain.SealFailure(fmt.Sprintf("Error calling seal recognition API: %v", err))
	}
	req.Header.Set("Content-Type", contentType)

	log.Info().Str("url", c.url).Msg("Sending file to seal recognition API")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Error().Err(err).Msg("Seal recognition request failed")
		return domain.SealFailure(fmt.Sprintf("Error calling seal recognition API: %v", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		log.Error().Int("status", resp.StatusCode).Msg("Seal recognition API returned non-200 status")
		return domain.SealFailure(fmt.Sprintf("Seal recognition API returned status code %d", resp.StatusCode))
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return domain.SealFailure(fmt.Sprintf("Error reading seal recognition response: %v", err))
	}

	info, err := parse(data)
	if err != nil {
		log.Error().Err(err).Msg("Invalid seal recognition response")
		return domain.SealFailure(err.Error())
	}

	log.Info().Dur("elapsed", time.Since(start)).Int("state", int(info.State)).Msg("Seal recognition complete")
	return info
}

var (
	errMissingResult  = errors.New("seal response missing result")
	errMissingDetails = errors.New("seal response missing result.details")
	errMissingStamp   = errors.New("seal response missing result.details.stamp")
	errNullStamp      = errors.New(domain.NullStampMessage)
)

// parse walks result.details.stamp and keeps the first stamp.
func parse(data []byte) (domain.SealInfo, error) {
	var r response
	if err := json.Unmarshal(data, &r); err != nil {
		return domain.SealInfo{}, fmt.Errorf("invalid JSON response from seal recognition API: %w", err)
	}

	switch {
	case r.Result == nil:
		return domain.SealInfo{}, errMissingResult
	case r.Result.Details == nil:
		return domain.SealInfo{}, errMissingDetails
	case r.Result.Details.Stamp == nil:
		return domain.SealInfo{}, errMissingStamp
	}

	stamps := *r.Result.Details.Stamp
	if len(stamps) == 0 {
		return domain.SealNone(), nil
	}
	if first := bytes.TrimSpace(stamps[0]); len(first) == 0 || bytes.Equal(first, []byte("null")) {
		return domain.SealInfo{}, errNullStamp
	}
	return domain.SealStamp(stamps[0]), nil
}

var _ domain.SealStage = (*Client)(nil)

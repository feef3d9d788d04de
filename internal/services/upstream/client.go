// -----------------------------------------------------------------------
// Upstream Client - Render provider task-status API adapter
// -----------------------------------------------------------------------

package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/lukisan/renderwatch/internal/common"
	"github.com/lukisan/renderwatch/internal/interfaces"
	"github.com/lukisan/renderwatch/internal/models"
)

var (
	// ErrUnavailable means the provider was unreachable or answered with a
	// non-success status. Transient: the engine keeps polling up to its bound.
	ErrUnavailable = errors.New("render service unavailable")

	// ErrTaskNotFound means the provider reports the task id does not exist.
	// Permanent: the job can never complete and must transition to failed.
	ErrTaskNotFound = errors.New("render task not found")
)

// Client calls the external render provider's task-status endpoint.
// No retries at this layer; retry policy belongs to the reconciliation engine.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	limiter    *rate.Limiter
	logger     arbor.ILogger
}

// NewClient creates a task-status client from upstream configuration.
func NewClient(cfg *common.UpstreamConfig, logger arbor.ILogger) interfaces.TaskStatusClient {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Every(cfg.RateLimit), 1)
	}

	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		limiter:    limiter,
		logger:     logger,
	}
}

// GetStatus fetches the raw status payload for a provider task id.
func (c *Client) GetStatus(ctx context.Context, taskID string) (models.RawStatusPayload, error) {
	if taskID == "" {
		return nil, fmt.Errorf("task ID is required")
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}

	url := fmt.Sprintf("%s/task/%s", c.baseURL, taskID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build status request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn().Err(err).Str("task_id", taskID).Msg("Status request failed")
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %v", ErrUnavailable, err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		c.logger.Warn().
			Int("status", resp.StatusCode).
			Str("task_id", taskID).
			Msg("Status request returned non-success response")
		return nil, fmt.Errorf("%w: HTTP %d", ErrUnavailable, resp.StatusCode)
	}

	var payload models.RawStatusPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: invalid response body: %v", ErrUnavailable, err)
	}

	// Some providers answer 200 with an error envelope for unknown tasks
	if reportsTaskMissing(payload) {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}

	return payload, nil
}

// reportsTaskMissing detects "task not found" envelopes delivered with a
// success HTTP status.
func reportsTaskMissing(payload models.RawStatusPayload) bool {
	for _, key := range []string{"error", "message"} {
		if msg, ok := payload[key].(string); ok {
			lower := strings.ToLower(msg)
			if strings.Contains(lower, "not found") || strings.Contains(lower, "no such task") {
				return true
			}
		}
	}
	if code, ok := payload["code"].(float64); ok && int(code) == 404 {
		return true
	}
	return false
}

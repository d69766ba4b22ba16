package action

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/therapyflow/agent-surface/pkg/logging"
)

const defaultSubmitTimeout = 15 * time.Second

// HTTPAgentClient submits actions to the upstream agent over HTTP.
type HTTPAgentClient struct {
	endpointURL string
	httpClient  *http.Client
	logger      *logging.Logger
}

// NewHTTPAgentClient creates a client for the agent action endpoint.
func NewHTTPAgentClient(endpointURL string, timeout time.Duration, logger *logging.Logger) *HTTPAgentClient {
	if timeout <= 0 {
		timeout = defaultSubmitTimeout
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &HTTPAgentClient{
		endpointURL: endpointURL,
		httpClient:  &http.Client{Timeout: timeout},
		logger:      logger,
	}
}

// Submit posts the action and decodes the agent's acknowledgement. The
// agent's surface updates arrive later on the realtime channel.
func (c *HTTPAgentClient) Submit(ctx context.Context, a Action) (SubmitResult, error) {
	body, err := json.Marshal(a)
	if err != nil {
		return SubmitResult{}, fmt.Errorf("action: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpointURL, bytes.NewReader(body))
	if err != nil {
		return SubmitResult{}, fmt.Errorf("action: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return SubmitResult{}, fmt.Errorf("action: submit to agent: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return SubmitResult{}, fmt.Errorf("action: read agent response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Warn("action: agent endpoint returned non-2xx",
			"status", resp.StatusCode, "action", a.Name)
		return SubmitResult{}, fmt.Errorf("action: agent endpoint status %d", resp.StatusCode)
	}

	var result SubmitResult
	if err := json.Unmarshal(respBody, &result); err != nil {
		return SubmitResult{}, fmt.Errorf("action: decode agent response: %w", err)
	}
	return result, nil
}

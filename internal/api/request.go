package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rickgao/socketmode/internal/version"
)

// Error codes the web API reports in {"ok": false} bodies that are worth
// retrying.
var retryableCodes = map[string]bool{
	"internal_error":      true,
	"fatal_error":         true,
	"ratelimited":         true,
	"service_unavailable": true,
	"request_timeout":     true,
}

// APIError represents an error from the web API, either an HTTP status or an
// {"ok": false} reply.
type APIError struct {
	StatusCode int
	Message    string
	Code       string
	Body       []byte
	RetryAfter time.Duration
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("socket mode api error %d: %s", e.StatusCode, e.Code)
	}
	return fmt.Sprintf("socket mode api error %d: %s", e.StatusCode, e.Message)
}

// IsRetryable returns true if the error should trigger a retry.
func (e *APIError) IsRetryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == 429 || retryableCodes[e.Code]
}

// doRequest performs an HTTP request with the given method and path. Form
// values are sent urlencoded in the body.
func (c *Client) doRequest(ctx context.Context, method, path string, form url.Values) ([]byte, error) {
	var body io.Reader
	if len(form) > 0 {
		body = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())
	if body != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if c.creds != nil {
		c.creds.Authorize(req)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Message:    http.StatusText(resp.StatusCode),
			Body:       data,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
	}

	var status Response
	if err := json.Unmarshal(data, &status); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	if !status.OK {
		code := status.Error
		if code == "" {
			code = "unknown_error"
		}
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Message:    code,
			Code:       code,
			Body:       data,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
	}
	if status.Warning != "" {
		c.logger.Warn("api warning", "path", path, "warning", status.Warning)
	}

	return data, nil
}

// doWithRetry performs a request with exponential backoff retry.
func (c *Client) doWithRetry(ctx context.Context, method, path string, form url.Values) ([]byte, error) {
	var lastErr error
	backoff := c.retryBackoff

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			// Add jitter: backoff * (0.5 to 1.5)
			wait := backoff/2 + time.Duration(rand.Int63n(int64(backoff)))
			var apiErr *APIError
			if errors.As(lastErr, &apiErr) && apiErr.RetryAfter > wait {
				wait = apiErr.RetryAfter
			}
			c.logger.Debug("retrying request",
				"attempt", attempt,
				"backoff", wait,
				"path", path,
			)

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(wait):
			}

			backoff *= 2
		}

		body, err := c.doRequest(ctx, method, path, form)
		if err == nil {
			return body, nil
		}

		lastErr = err

		var apiErr *APIError
		if !errors.As(err, &apiErr) || !apiErr.IsRetryable() {
			return nil, err
		}
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

// post performs a POST request with retries and decodes the reply.
func (c *Client) post(ctx context.Context, path string, form url.Values, result any) error {
	body, err := c.doWithRetry(ctx, http.MethodPost, path, form)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(body, result); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}

	return nil
}

// parseRetryAfter reads a Retry-After header given in whole seconds.
func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

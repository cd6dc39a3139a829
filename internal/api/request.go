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
	"time"
)

// APIError represents an error response from the server.
type APIError struct {
	StatusCode int
	Message    string
	RateLimit  *RateLimit // Set when the server reported one
	Body       []byte
}

func (e *APIError) Error() string {
	return fmt.Sprintf("feed api error %d: %s", e.StatusCode, e.Message)
}

// IsRetryable returns true if the error should trigger a retry.
func (e *APIError) IsRetryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == 429
}

// newAPIError builds an APIError, preferring the envelope's error text.
func newAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{
		StatusCode: status,
		Message:    http.StatusText(status),
		Body:       body,
	}

	var env Response[json.RawMessage]
	if json.Unmarshal(body, &env) == nil {
		switch {
		case env.Error != "":
			apiErr.Message = env.Error
		case env.Message != "":
			apiErr.Message = env.Message
		}
		apiErr.RateLimit = env.RateLimit
	}

	return apiErr
}

// doRequest performs an HTTP request with the given method and path.
func (c *Client) doRequest(ctx context.Context, method, path string, query url.Values) ([]byte, error) {
	fullURL := c.baseURL + path
	if len(query) > 0 {
		fullURL += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	start := time.Now()
	c.logger.Debug("api request", "method", method, "path", path)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("api network error", "method", method, "path", path, "error", err)
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	c.logger.Debug("api response",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"duration", time.Since(start),
	)

	if resp.StatusCode >= 400 {
		apiErr := newAPIError(resp.StatusCode, body)
		c.logger.Warn("api error response",
			"path", path,
			"status", resp.StatusCode,
			"message", apiErr.Message,
		)
		return nil, apiErr
	}

	return body, nil
}

// doWithRetry performs a request with exponential backoff retry.
func (c *Client) doWithRetry(ctx context.Context, method, path string, query url.Values) ([]byte, error) {
	var lastErr error
	backoff := c.retryBackoff

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			// Add jitter: backoff * (0.5 to 1.5)
			jitter := backoff
			if backoff > 0 {
				jitter = backoff/2 + time.Duration(rand.Int63n(int64(backoff)))
			}
			c.logger.Debug("retrying request",
				"attempt", attempt,
				"backoff", jitter,
				"path", path,
			)

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(jitter):
			}

			backoff *= 2
		}

		body, err := c.doRequest(ctx, method, path, query)
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

// call performs a request with retries and decodes the envelope into result.
// An envelope with success=false is returned as *APIError.
func call[T any](ctx context.Context, c *Client, method, path string, query url.Values) (*Response[T], error) {
	body, err := c.doWithRetry(ctx, method, path, query)
	if err != nil {
		return nil, err
	}

	var resp Response[T]
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}

	if !resp.Success {
		msg := resp.Error
		if msg == "" {
			msg = resp.Message
		}
		if msg == "" {
			msg = "request unsuccessful"
		}
		return nil, &APIError{
			StatusCode: http.StatusOK,
			Message:    msg,
			RateLimit:  resp.RateLimit,
			Body:       body,
		}
	}

	return &resp, nil
}

func get[T any](ctx context.Context, c *Client, path string, query url.Values) (*Response[T], error) {
	return call[T](ctx, c, http.MethodGet, path, query)
}

func post[T any](ctx context.Context, c *Client, path string, query url.Values) (*Response[T], error) {
	return call[T](ctx, c, http.MethodPost, path, query)
}

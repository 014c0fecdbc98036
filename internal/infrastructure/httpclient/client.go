// Package httpclient is the rate limited JSON client shared by the outbound
// API integrations.
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/pantrylens/backend/internal/domain"
)

const (
	maxAttempts = 3
	baseBackoff = 500 * time.Millisecond
)

// Options configures a Client
type Options struct {
	BaseURL string
	// RateLimit is requests per second, Burst the bucket size
	RateLimit float64
	Burst     int
	Timeout   time.Duration
	Headers   map[string]string
	// Failure is the sentinel wrapped into transport and status errors
	Failure error
	Logger  *zap.Logger
}

// Client executes JSON requests against one API with retries
type Client struct {
	httpClient  *http.Client
	baseURL     string
	headers     map[string]string
	rateLimiter *rate.Limiter
	failure     error
	logger      *zap.Logger
	backoff     func(attempt int) time.Duration
	debug       bool
}

// New creates a client from opts
func New(opts Options) *Client {
	if opts.RateLimit <= 0 {
		opts.RateLimit = 5
	}
	if opts.Burst <= 0 {
		opts.Burst = 10
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Failure == nil {
		opts.Failure = errors.New("API request failed")
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Client{
		httpClient:  &http.Client{Timeout: opts.Timeout},
		baseURL:     strings.TrimRight(opts.BaseURL, "/"),
		headers:     opts.Headers,
		rateLimiter: rate.NewLimiter(rate.Limit(opts.RateLimit), opts.Burst),
		failure:     opts.Failure,
		logger:      opts.Logger,
		backoff:     exponentialBackoff,
	}
}

// SetDebug enables logging of response bodies
func (c *Client) SetDebug(debug bool) {
	c.debug = debug
}

// BaseURL returns the API root requests are resolved against
func (c *Client) BaseURL() string {
	return c.baseURL
}

// GetJSON issues a GET and decodes the response into out
func (c *Client) GetJSON(ctx context.Context, path string, query url.Values, out any) error {
	return c.Do(ctx, http.MethodGet, path, query, nil, out)
}

// SendJSON encodes body, issues the request and decodes into out when non-nil
func (c *Client) SendJSON(ctx context.Context, method, path string, body, out any) error {
	return c.Do(ctx, method, path, nil, body, out)
}

// Do runs one request with up to three attempts. Transport errors, 429 and
// 5xx responses are retried; 404 returns domain.ErrNotFound and other 4xx
// responses fail immediately.
func (c *Client) Do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	reqURL := c.baseURL + path
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			if err := sleep(ctx, c.backoff(attempt-1)); err != nil {
				return err
			}
		}

		if err := c.rateLimiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter error: %w", err)
		}

		resp, err := c.doRequest(ctx, method, reqURL, payload)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Warn("request error", zap.String("url", path), zap.Int("attempt", attempt), zap.Error(err))
			lastErr = err
			continue
		}

		respBody, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			lastErr = fmt.Errorf("%w: %v", c.failure, readErr)
			continue
		}
		if c.debug {
			c.logger.Debug("response", zap.String("url", path), zap.Int("status", resp.StatusCode), zap.ByteString("body", respBody))
		}

		switch {
		case resp.StatusCode == http.StatusNotFound:
			return fmt.Errorf("%s %s: %w", method, path, domain.ErrNotFound)
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			c.logger.Warn("API error",
				zap.String("url", path),
				zap.Int("attempt", attempt),
				zap.Int("status", resp.StatusCode))
			lastErr = fmt.Errorf("%w: status %d", c.failure, resp.StatusCode)
			continue
		case resp.StatusCode >= 400:
			return fmt.Errorf("%w: status %d, body: %s", c.failure, resp.StatusCode, string(respBody))
		}

		if out == nil || len(bytes.TrimSpace(respBody)) == 0 {
			return nil
		}
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
		return nil
	}

	c.logger.Error("all retries failed", zap.String("method", method), zap.String("url", path), zap.Error(lastErr))
	return lastErr
}

// doRequest executes an HTTP request with proper headers
func (c *Client) doRequest(ctx context.Context, method, reqURL string, payload []byte) (*http.Response, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, reqURL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "PantryLens/1.0")
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", c.failure, err)
	}
	return resp, nil
}

// exponentialBackoff returns the wait before retry number attempt
func exponentialBackoff(attempt int) time.Duration {
	return baseBackoff * time.Duration(1<<(attempt-1))
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

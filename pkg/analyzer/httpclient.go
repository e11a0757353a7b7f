package analyzer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/jdziat/credibility-sync/pkg/core"
)

// Upstream errors. Callers test them with errors.Is; they may arrive
// wrapped in core.NoRetry.
var (
	ErrNotFound     = errors.New("upstream: not found")
	ErrScopeMissing = errors.New("upstream: credential lacks scope")
	ErrUnauthorized = errors.New("upstream: unauthorized")
)

// DefaultRateLimitDelay is used when a rate-limit response carries no hint.
const DefaultRateLimitDelay = time.Minute

// StatusError is a non-success upstream response.
type StatusError struct {
	Status int
	URL    string
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream %s: status %d: %s", e.URL, e.Status, e.Body)
}

// HTTPClient calls a bearer-authenticated JSON REST API and maps responses
// onto the job error taxonomy: rate limits become core.RetryAfter, server
// errors stay retryable and permanent client errors become core.NoRetry.
type HTTPClient struct {
	BaseURL   string
	HTTP      *http.Client
	UserAgent string
	Now       Clock
}

// NewHTTPClient creates a client for baseURL with a 30s timeout.
func NewHTTPClient(baseURL string) *HTTPClient {
	return &HTTPClient{
		BaseURL:   strings.TrimRight(baseURL, "/"),
		HTTP:      &http.Client{Timeout: 30 * time.Second},
		UserAgent: "credsync",
		Now:       SystemClock,
	}
}

// GetJSON issues GET BaseURL+path with query and decodes the body into out.
// The response headers are returned for pagination and rate-limit data.
func (c *HTTPClient) GetJSON(ctx context.Context, token, path string, query url.Values, out any) (http.Header, error) {
	u := c.BaseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, core.NoRetry(err)
	}
	req.Header.Set("Accept", "application/json")
	if c.UserAgent != "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upstream %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out == nil {
			return resp.Header, nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.Header, fmt.Errorf("decode %s: %w", path, err)
		}
		return resp.Header, nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	serr := &StatusError{Status: resp.StatusCode, URL: path, Body: strings.TrimSpace(string(body))}
	return resp.Header, c.classify(resp, serr)
}

func (c *HTTPClient) classify(resp *http.Response, serr *StatusError) error {
	switch {
	case resp.StatusCode == http.StatusTooManyRequests || (resp.StatusCode == http.StatusForbidden && resp.Header.Get("X-RateLimit-Remaining") == "0"):
		return core.RetryAfter(c.rateLimitDelay(resp.Header), serr)
	case resp.StatusCode == http.StatusUnauthorized:
		// A token may be mid-rotation; let the queue retry.
		return fmt.Errorf("%w: %w", ErrUnauthorized, serr)
	case resp.StatusCode == http.StatusForbidden:
		return core.NoRetry(fmt.Errorf("%w: %w", ErrScopeMissing, serr))
	case resp.StatusCode == http.StatusNotFound:
		return core.NoRetry(fmt.Errorf("%w: %w", ErrNotFound, serr))
	case resp.StatusCode >= 500:
		return serr
	default:
		return core.NoRetry(serr)
	}
}

// rateLimitDelay reads Retry-After (seconds) or X-RateLimit-Reset (epoch
// seconds) and falls back to DefaultRateLimitDelay.
func (c *HTTPClient) rateLimitDelay(h http.Header) time.Duration {
	if s := h.Get("Retry-After"); s != "" {
		if secs, err := strconv.Atoi(s); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	if s := h.Get("X-RateLimit-Reset"); s != "" {
		if epoch, err := strconv.ParseInt(s, 10, 64); err == nil {
			now := SystemClock
			if c.Now != nil {
				now = c.Now
			}
			if d := time.Unix(epoch, 0).Sub(now()); d > 0 {
				return d
			}
		}
	}
	return DefaultRateLimitDelay
}

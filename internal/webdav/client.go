package webdav

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Retry and backoff constants.
const (
	maxRetries     = 5
	baseBackoff    = 1 * time.Second
	maxBackoff     = 60 * time.Second
	backoffFactor  = 2.0
	jitterFraction = 0.25
	userAgent      = "covey/0.1"
)

// Client is an HTTP client for a WebDAV server. It handles request
// construction, basic authentication, retry with exponential backoff,
// and error classification.
type Client struct {
	baseURL    string
	username   string
	password   string
	httpClient *http.Client
	logger     *slog.Logger

	// sleepFunc is called to wait between retries. Defaults to timeSleep.
	// Tests override this to avoid real delays.
	sleepFunc func(ctx context.Context, d time.Duration) error
}

// NewClient creates a WebDAV client rooted at baseURL. Relative paths
// passed to the methods are resolved against it.
func NewClient(baseURL, username, password string, httpClient *http.Client, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	if httpClient == nil {
		httpClient = &http.Client{Timeout: 2 * time.Minute}
	}

	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		username:   username,
		password:   password,
		httpClient: httpClient,
		logger:     logger,
		sleepFunc:  timeSleep,
	}
}

// List performs a depth-1 PROPFIND on a collection and returns its
// direct children. The collection itself is excluded.
func (c *Client) List(ctx context.Context, path string) ([]Entry, error) {
	hdr := http.Header{
		"Depth":        {"1"},
		"Content-Type": {"application/xml; charset=utf-8"},
	}

	resp, err := c.do(ctx, "PROPFIND", path, []byte(propfindBody), hdr)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("webdav: reading PROPFIND response for %s: %w", path, err)
	}

	entries, err := parseMultistatus(body, c.collectionHref(path))
	if err != nil {
		return nil, fmt.Errorf("webdav: parsing PROPFIND response for %s: %w", path, err)
	}

	return entries, nil
}

// Get downloads a file and returns its contents and ETag.
func (c *Client) Get(ctx context.Context, path string) ([]byte, string, error) {
	resp, err := c.do(ctx, http.MethodGet, path, nil, nil)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("webdav: reading %s: %w", path, err)
	}

	return data, resp.Header.Get("ETag"), nil
}

// Put uploads a file that must not already exist. The If-None-Match
// precondition keeps batch files write-once; a 412 response means the
// file is already there and surfaces as ErrPrecondition.
func (c *Client) Put(ctx context.Context, path string, data []byte) error {
	hdr := http.Header{
		"If-None-Match": {"*"},
		"Content-Type":  {"application/x-ndjson"},
	}

	resp, err := c.do(ctx, http.MethodPut, path, data, hdr)
	if err != nil {
		return err
	}
	resp.Body.Close()

	return nil
}

// Mkcol creates a collection. Servers answer 405 when the collection
// already exists, which callers treat as success: directory chains are
// created unconditionally before every upload.
func (c *Client) Mkcol(ctx context.Context, path string) error {
	resp, err := c.do(ctx, "MKCOL", path, nil, nil)
	if err != nil {
		// 405 means the collection is already present (RFC 4918).
		var reqErr *RequestError
		if errors.As(err, &reqErr) && reqErr.StatusCode == http.StatusMethodNotAllowed {
			return nil
		}

		return err
	}
	resp.Body.Close()

	return nil
}

// do executes an HTTP request with retry. The body is rebuilt from the
// byte slice on each attempt, so retried requests resend full content.
func (c *Client) do(ctx context.Context, method, path string, body []byte, hdr http.Header) (*http.Response, error) {
	// Paths are built from device IDs, year-months, and file IDs; no
	// segment needs escaping.
	reqURL := c.baseURL + "/" + strings.TrimPrefix(path, "/")

	var attempt int
	for {
		resp, err := c.doOnce(ctx, method, reqURL, body, hdr)
		if err != nil {
			// Context cancellation is not retryable.
			if ctx.Err() != nil {
				return nil, fmt.Errorf("webdav: request canceled: %w", ctx.Err())
			}

			// Network errors are retryable.
			if attempt < maxRetries {
				backoff := c.calcBackoff(attempt)
				c.logger.Warn("retrying after network error",
					slog.String("method", method),
					slog.String("path", path),
					slog.Int("attempt", attempt+1),
					slog.Duration("backoff", backoff),
					slog.String("error", err.Error()),
				)

				if sleepErr := c.sleepFunc(ctx, backoff); sleepErr != nil {
					return nil, fmt.Errorf("webdav: request canceled: %w", sleepErr)
				}

				attempt++

				continue
			}

			return nil, fmt.Errorf("webdav: %s %s failed after %d retries: %w", method, path, maxRetries, err)
		}

		// 2xx — success.
		if resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices {
			c.logger.Debug("request succeeded",
				slog.String("method", method),
				slog.String("path", path),
				slog.Int("status", resp.StatusCode),
			)

			return resp, nil
		}

		// Read and close body for error responses.
		errBody, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()

		if readErr != nil {
			errBody = []byte("(failed to read response body)")
		}

		if isRetryable(resp.StatusCode) && attempt < maxRetries {
			backoff := c.retryBackoff(resp, attempt)
			c.logger.Warn("retrying after HTTP error",
				slog.String("method", method),
				slog.String("path", path),
				slog.Int("status", resp.StatusCode),
				slog.Int("attempt", attempt+1),
				slog.Duration("backoff", backoff),
			)

			if err := c.sleepFunc(ctx, backoff); err != nil {
				return nil, fmt.Errorf("webdav: request canceled: %w", err)
			}

			attempt++

			continue
		}

		reqErr := &RequestError{
			StatusCode: resp.StatusCode,
			Message:    string(errBody),
			Err:        classifyStatus(resp.StatusCode),
		}

		if attempt > 0 {
			c.logger.Error("request failed after retries",
				slog.String("method", method),
				slog.String("path", path),
				slog.Int("status", resp.StatusCode),
				slog.Int("attempts", attempt+1),
			)
		}

		return nil, reqErr
	}
}

// doOnce executes a single HTTP request (no retry).
func (c *Client) doOnce(ctx context.Context, method, reqURL string, body []byte, hdr http.Header) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, reader)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	req.SetBasicAuth(c.username, c.password)
	req.Header.Set("User-Agent", userAgent)

	for key, values := range hdr {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}

	return c.httpClient.Do(req)
}

// collectionHref is the request path as the server echoes it back in
// the multistatus self entry, used to exclude the collection itself.
func (c *Client) collectionHref(path string) string {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "/" + strings.Trim(path, "/")
	}

	return strings.TrimSuffix(u.Path, "/") + "/" + strings.Trim(path, "/")
}

// retryBackoff returns the backoff duration for a retryable response.
// For 429 responses with a Retry-After header, that value is used.
func (c *Client) retryBackoff(resp *http.Response, attempt int) time.Duration {
	if resp.StatusCode == http.StatusTooManyRequests {
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			if seconds, err := strconv.Atoi(ra); err == nil && seconds > 0 {
				return time.Duration(seconds) * time.Second
			}
		}
	}

	return c.calcBackoff(attempt)
}

// calcBackoff computes exponential backoff with ±25% jitter.
func (c *Client) calcBackoff(attempt int) time.Duration {
	backoff := float64(baseBackoff) * math.Pow(backoffFactor, float64(attempt))
	if backoff > float64(maxBackoff) {
		backoff = float64(maxBackoff)
	}

	jitter := backoff * jitterFraction * (rand.Float64()*2 - 1) //nolint:gosec // jitter does not need crypto rand
	backoff += jitter

	return time.Duration(backoff)
}

// timeSleep waits for the given duration or until the context is canceled.
// It is the default sleepFunc for Client.
func timeSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

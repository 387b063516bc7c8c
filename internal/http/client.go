package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Common errors.
var (
	ErrRangeNotSupported = errors.New("http: server does not support range requests")
	ErrNotFound          = errors.New("http: resource not found")
	ErrForbidden         = errors.New("http: access forbidden")
	ErrUnauthorized      = errors.New("http: unauthorized")
	ErrServerError       = errors.New("http: server error")
)

// RetryPolicy bounds how transient failures are retried.
// Only network errors and 5xx responses are retried; 4xx are permanent.
type RetryPolicy struct {
	// Attempts is the maximum number of retries after the first try.
	// Default: 3
	Attempts int

	// Backoff is the initial backoff duration.
	// Default: 1s
	Backoff time.Duration

	// MaxBackoff caps the exponential backoff.
	// Default: 30s
	MaxBackoff time.Duration
}

// Options configures the HTTP client.
type Options struct {
	// MaxIdleConnsPerHost sets the maximum idle connections per host.
	// Default: 100
	MaxIdleConnsPerHost int

	// HeaderTimeout bounds the wait for response headers. Bodies are
	// streamed without a deadline; cancel the context to abort them.
	// Default: 30s
	HeaderTimeout time.Duration

	Retry RetryPolicy

	// Logger receives retry notices. Default: discard.
	Logger *slog.Logger
}

// DefaultOptions returns options with sensible defaults.
func DefaultOptions() Options {
	return Options{
		MaxIdleConnsPerHost: 100,
		HeaderTimeout:       30 * time.Second,
		Retry: RetryPolicy{
			Attempts:   3,
			Backoff:    time.Second,
			MaxBackoff: 30 * time.Second,
		},
	}
}

// FileInfo contains metadata about a remote file.
type FileInfo struct {
	// Size is -1 when the server did not report a length.
	Size          int64
	ETag          string
	AcceptsRanges bool
	ContentType   string
	LastModified  time.Time
}

// RangeResponse represents a response from a range request.
type RangeResponse struct {
	Body          io.ReadCloser
	ContentLength int64
	Start, End    int64
	// Total is -1 when the server reported "*".
	Total int64
	ETag  string
}

// Client is an HTTP client for sizing and fetching origin files.
type Client struct {
	client *http.Client
	opts   Options
	log    *slog.Logger
}

// NewClient creates a new HTTP client with the given options.
func NewClient(opts Options) *Client {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConnsPerHost:   opts.MaxIdleConnsPerHost,
		MaxIdleConns:          opts.MaxIdleConnsPerHost * 2,
		IdleConnTimeout:       90 * time.Second,
		ResponseHeaderTimeout: opts.HeaderTimeout,
		DisableCompression:    true, // byte ranges must address the raw entity
	}

	log := opts.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	return &Client{
		client: &http.Client{Transport: otelhttp.NewTransport(transport)},
		opts:   opts,
		log:    log,
	}
}

// Head performs a HEAD request to get file metadata. Redirects are followed.
func (c *Client) Head(ctx context.Context, url string) (*FileInfo, error) {
	resp, err := c.do(ctx, http.MethodHead, url, nil)
	if err != nil {
		return nil, err
	}
	resp.Body.Close()

	if err := checkStatusCode(resp.StatusCode); err != nil {
		return nil, err
	}

	info := &FileInfo{
		Size:          resp.ContentLength,
		ETag:          cleanETag(resp.Header.Get("ETag")),
		AcceptsRanges: resp.Header.Get("Accept-Ranges") == "bytes",
		ContentType:   resp.Header.Get("Content-Type"),
	}
	if lm := resp.Header.Get("Last-Modified"); lm != "" {
		if t, err := http.ParseTime(lm); err == nil {
			info.LastModified = t
		}
	}
	return info, nil
}

// GetRange performs a range request to download a portion of the file.
// startByte and endByte are inclusive (like HTTP Range header).
//
// A server that answers with the full entity instead of the requested range
// yields ErrRangeNotSupported.
func (c *Client) GetRange(ctx context.Context, url string, startByte, endByte int64) (*RangeResponse, error) {
	header := http.Header{}
	header.Set("Range", fmt.Sprintf("bytes=%d-%d", startByte, endByte))

	resp, err := c.do(ctx, http.MethodGet, url, header)
	if err != nil {
		return nil, err
	}

	switch resp.StatusCode {
	case http.StatusPartialContent:
	case http.StatusOK:
		// Some servers return 200 with a Content-Range; anything else is the whole file.
		if resp.Header.Get("Content-Range") == "" {
			resp.Body.Close()
			return nil, ErrRangeNotSupported
		}
	case http.StatusRequestedRangeNotSatisfiable:
		resp.Body.Close()
		return nil, ErrRangeNotSupported
	default:
		resp.Body.Close()
		if err := checkStatusCode(resp.StatusCode); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	rr := &RangeResponse{
		Body:          resp.Body,
		ContentLength: resp.ContentLength,
		Start:         startByte,
		End:           endByte,
		Total:         -1,
		ETag:          cleanETag(resp.Header.Get("ETag")),
	}
	if cr := resp.Header.Get("Content-Range"); cr != "" {
		start, end, total, err := ParseContentRange(cr)
		if err != nil {
			resp.Body.Close()
			return nil, err
		}
		if start != startByte || end != endByte {
			resp.Body.Close()
			return nil, fmt.Errorf("%w: asked for %d-%d, got %d-%d", ErrRangeNotSupported, startByte, endByte, start, end)
		}
		rr.Start, rr.End, rr.Total = start, end, total
	}
	return rr, nil
}

// Get performs a simple GET request.
func (c *Client) Get(ctx context.Context, url string) (io.ReadCloser, error) {
	resp, err := c.do(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	if err := checkStatusCode(resp.StatusCode); err != nil {
		resp.Body.Close()
		return nil, err
	}
	return resp.Body, nil
}

// do sends the request, retrying network errors and 5xx responses.
// Any other response is handed back to the caller unread.
func (c *Client) do(ctx context.Context, method, url string, header http.Header) (*http.Response, error) {
	var lastErr error

	for attempt := 0; attempt <= c.opts.Retry.Attempts; attempt++ {
		if attempt > 0 {
			c.log.DebugContext(ctx, "retrying request", "method", method, "url", url, "attempt", attempt, "error", lastErr)
			if err := c.backoff(ctx, attempt); err != nil {
				return nil, err
			}
		}

		req, err := http.NewRequestWithContext(ctx, method, url, nil)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		for k, v := range header {
			req.Header[k] = v
		}

		resp, err := c.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			continue
		}

		if resp.StatusCode >= 500 {
			io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
			resp.Body.Close()
			lastErr = fmt.Errorf("%w: %s", ErrServerError, resp.Status)
			continue
		}

		return resp, nil
	}

	return nil, fmt.Errorf("%s request failed after %d attempts: %w", strings.ToLower(method), c.opts.Retry.Attempts+1, lastErr)
}

// backoff waits for an exponentially increasing duration with jitter.
func (c *Client) backoff(ctx context.Context, attempt int) error {
	backoff := c.opts.Retry.Backoff * time.Duration(1<<uint(attempt-1))
	if c.opts.Retry.MaxBackoff > 0 && backoff > c.opts.Retry.MaxBackoff {
		backoff = c.opts.Retry.MaxBackoff
	}

	// Add jitter: 0.5 to 1.5 of backoff
	jitter := time.Duration(float64(backoff) * (0.5 + rand.Float64()))

	timer := time.NewTimer(jitter)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// checkStatusCode returns an appropriate error for non-success status codes.
func checkStatusCode(code int) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusNotFound:
		return ErrNotFound
	case code == http.StatusForbidden:
		return ErrForbidden
	case code == http.StatusUnauthorized:
		return ErrUnauthorized
	default:
		return fmt.Errorf("unexpected status code: %d", code)
	}
}

// cleanETag removes quotes from an ETag value.
func cleanETag(etag string) string {
	etag = strings.TrimPrefix(etag, "W/")
	etag = strings.Trim(etag, `"`)
	return etag
}

// ParseContentRange parses a Content-Range header value.
// Returns start, end, total bytes. Total may be -1 if unknown.
func ParseContentRange(header string) (start, end, total int64, err error) {
	// Format: bytes start-end/total or bytes start-end/*
	header = strings.TrimPrefix(header, "bytes ")
	rng, size, ok := strings.Cut(header, "/")
	if !ok {
		return 0, 0, 0, fmt.Errorf("invalid Content-Range format: %s", header)
	}

	first, last, ok := strings.Cut(rng, "-")
	if !ok {
		return 0, 0, 0, fmt.Errorf("invalid Content-Range format: %s", header)
	}

	start, err = strconv.ParseInt(first, 10, 64)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("invalid start byte: %w", err)
	}

	end, err = strconv.ParseInt(last, 10, 64)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("invalid end byte: %w", err)
	}

	if size == "*" {
		total = -1
	} else {
		total, err = strconv.ParseInt(size, 10, 64)
		if err != nil {
			return 0, 0, 0, fmt.Errorf("invalid total bytes: %w", err)
		}
	}

	return start, end, total, nil
}

// Package transport fetches remote documents over HTTP for the catalog and
// source gateways. It owns timeouts, retries and size limits so callers only
// see a body or an error.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/haukened/tivilsta/internal/whitelist/common/log"
)

// Error message constants for consistent error handling
const (
	errCreateRequest = "create request for %s: %w"
	errStatus        = "GET %s returned HTTP %d"
	errTooLarge      = "GET %s: body exceeds %d bytes"
	errAllAttempts   = "GET %s failed after %d attempts: %w"
)

const (
	defaultTimeout  = 30 * time.Second
	defaultBackoff  = 500 * time.Millisecond
	defaultMaxBytes = 64 << 20
)

// Fetcher retrieves a document body by URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Options configures an HTTPFetcher.
type Options struct {
	// Timeout bounds each attempt, including reading the body.
	Timeout time.Duration
	// Retries is the number of extra attempts after the first one fails
	// with a network error or a 5xx/429 status.
	Retries int
	// Backoff is the delay before the first retry; it doubles per attempt.
	Backoff time.Duration
	// MaxBytes caps the accepted body size.
	MaxBytes int64
	// options to inject for testing purposes
	Client *http.Client
	Logger log.Logger
}

// HTTPFetcher is a Fetcher over net/http with bounded retries.
type HTTPFetcher struct {
	client   *http.Client
	timeout  time.Duration
	retries  int
	backoff  time.Duration
	maxBytes int64
	logger   log.Logger
}

// NewHTTPFetcher applies defaults to opts and returns a ready fetcher.
func NewHTTPFetcher(opts Options) *HTTPFetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.Retries < 0 {
		opts.Retries = 0
	}
	if opts.Backoff <= 0 {
		opts.Backoff = defaultBackoff
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = defaultMaxBytes
	}
	if opts.Client == nil {
		opts.Client = http.DefaultClient
	}
	if opts.Logger == nil {
		opts.Logger = log.GetLogger()
	}
	return &HTTPFetcher{
		client:   opts.Client,
		timeout:  opts.Timeout,
		retries:  opts.Retries,
		backoff:  opts.Backoff,
		maxBytes: opts.MaxBytes,
		logger:   opts.Logger,
	}
}

// statusError marks a non-200 response; retryable for 5xx and 429.
type statusError struct {
	url  string
	code int
}

func (e *statusError) Error() string { return fmt.Sprintf(errStatus, e.url, e.code) }

func (e *statusError) retryable() bool {
	return e.code >= 500 || e.code == http.StatusTooManyRequests
}

// Fetch GETs url and returns its body. Cancelling ctx stops retrying.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	attempts := f.retries + 1
	delay := f.backoff
	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		body, err := f.fetchOnce(ctx, url)
		if err == nil {
			f.logger.Debug(map[string]any{"url": url, "bytes": len(body), "attempt": attempt}, "fetch_done")
			return body, nil
		}
		lastErr = err

		var se *statusError
		if errors.As(err, &se) && !se.retryable() {
			return nil, err
		}
		if ctx.Err() != nil || attempt == attempts {
			break
		}

		f.logger.Warn(map[string]any{"url": url, "attempt": attempt, "retry_in": delay.String(), "error": err}, "Fetch failed, retrying")
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return nil, fmt.Errorf(errAllAttempts, url, attempts, lastErr)
}

func (f *HTTPFetcher) fetchOnce(ctx context.Context, url string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf(errCreateRequest, url, err)
	}
	req.Header.Set("User-Agent", "tivilsta")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &statusError{url: url, code: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > f.maxBytes {
		return nil, fmt.Errorf(errTooLarge, url, f.maxBytes)
	}
	return body, nil
}

var _ Fetcher = (*HTTPFetcher)(nil)

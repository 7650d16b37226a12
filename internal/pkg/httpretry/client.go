// Package httpretry retries calls to the Twilio, OpenAI and Perplexity APIs
// on transient failures. Rate-limit responses are retried after the delay the
// provider asks for in Retry-After; everything else backs off exponentially
// with full jitter.
package httpretry

import (
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"github.com/ignite/immo-leads/internal/pkg/logger"
)

// HTTPDoer executes HTTP requests. *http.Client and *RetryClient both
// satisfy it.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// RetryClient wraps an HTTPDoer with bounded retries.
type RetryClient struct {
	client     HTTPDoer
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
	now        func() time.Time
}

// NewRetryClient wraps client (a 30s http.Client when nil) with maxRetries
// retries after the first attempt (3 when <= 0).
func NewRetryClient(client HTTPDoer, maxRetries int) *RetryClient {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &RetryClient{
		client:     client,
		maxRetries: maxRetries,
		baseDelay:  500 * time.Millisecond,
		maxDelay:   20 * time.Second,
		now:        time.Now,
	}
}

// WithBackoff overrides the base and maximum delays. maxDelay also bounds
// how long a Retry-After is honoured.
func (rc *RetryClient) WithBackoff(base, max time.Duration) *RetryClient {
	rc.baseDelay = base
	rc.maxDelay = max
	return rc
}

// Do sends req, retrying network errors and 429/5xx answers. When the
// retries run out, or a provider asks to wait longer than maxDelay, the
// last response is returned untouched so the caller can decode the API
// error body.
func (rc *RetryClient) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	var lastErr error

	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return nil, lastErr
			}
			return nil, err
		}
		if attempt > 0 && req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return nil, fmt.Errorf("httpretry: reset body: %w", err)
			}
			req.Body = body
		}

		resp, err := rc.client.Do(req)
		var wait time.Duration
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return nil, err
			}
			lastErr = err
			wait = rc.backoff(attempt + 1)
		case !retryable(resp.StatusCode):
			return resp, nil
		default:
			var asked bool
			wait, asked = rc.retryAfter(resp)
			if attempt == rc.maxRetries || (asked && wait > rc.maxDelay) {
				return resp, nil
			}
			if !asked {
				wait = rc.backoff(attempt + 1)
			}
			_, _ = io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			lastErr = fmt.Errorf("httpretry: %s answered %d", req.URL.Host, resp.StatusCode)
		}
		if attempt == rc.maxRetries {
			return nil, lastErr
		}

		logger.Warn("httpretry: retrying",
			"host", req.URL.Host, "path", req.URL.Path, "method", req.Method,
			"attempt", attempt+1, "max", rc.maxRetries, "wait", wait.String(), "cause", lastErr)

		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return nil, lastErr
		}
	}
}

// backoff is a full-jitter delay in [floor, min(maxDelay, base*2^(n-1))].
func (rc *RetryClient) backoff(n int) time.Duration {
	ceil := rc.baseDelay << uint(n-1)
	if ceil <= 0 || ceil > rc.maxDelay {
		ceil = rc.maxDelay
	}
	d := time.Duration(rand.Int63n(int64(ceil) + 1))
	floor := 100 * time.Millisecond
	if rc.baseDelay < floor {
		floor = rc.baseDelay
	}
	if d < floor {
		d = floor
	}
	return d
}

// retryAfter reads Retry-After as seconds or an HTTP date. ok is false when
// the header is missing or unparsable.
func (rc *RetryClient) retryAfter(resp *http.Response) (time.Duration, bool) {
	v := resp.Header.Get("Retry-After")
	if v == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second, true
	}
	if at, err := http.ParseTime(v); err == nil {
		d := at.Sub(rc.now())
		if d < 0 {
			d = 0
		}
		return d, true
	}
	return 0, false
}

// retryable reports whether status is a rate limit or a transient upstream
// failure. 501 and other 5xx codes are permanent.
func retryable(status int) bool {
	switch status {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

// Package httpretry wraps an HTTP client with bounded retries for the
// external provider APIs: exponential backoff with full jitter, and
// Retry-After respected when the server sends one.
package httpretry

import (
	"fmt"
	"io"
	"log"
	"math"
	"math/rand"
	"net/http"
	"strconv"
	"time"
)

// HTTPDoer executes a single HTTP request. Satisfied by *http.Client and
// by *RetryClient itself, so clients can be layered in tests.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// RetryClient retries transient failures on behalf of the caller.
type RetryClient struct {
	client     HTTPDoer
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
}

// NewRetryClient wraps client with retry handling. A nil client gets a
// default http.Client with a 30s timeout; maxRetries <= 0 means 3 retries
// after the initial attempt.
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
		baseDelay:  time.Second,
		maxDelay:   30 * time.Second,
	}
}

// Do runs the request, retrying network errors and 429/5xx responses.
// Client errors (4xx other than 429) return immediately, as does context
// cancellation. The final attempt's response is returned unread so the
// caller can inspect status and body.
func (rc *RetryClient) Do(req *http.Request) (*http.Response, error) {
	var lastErr error

	for attempt := 0; attempt <= rc.maxRetries; attempt++ {
		if req.Context().Err() != nil {
			if lastErr != nil {
				return nil, lastErr
			}
			return nil, req.Context().Err()
		}

		if attempt > 0 {
			if req.GetBody != nil {
				body, err := req.GetBody()
				if err != nil {
					return nil, fmt.Errorf("httpretry: reset request body: %w", err)
				}
				req.Body = body
			}
			if !rc.sleep(req, rc.backoff(attempt)) {
				if lastErr != nil {
					return nil, lastErr
				}
				return nil, req.Context().Err()
			}
		}

		resp, err := rc.client.Do(req)
		if err != nil {
			if req.Context().Err() != nil {
				return nil, err
			}
			lastErr = err
			continue
		}

		if !retryableStatus(resp.StatusCode) {
			return resp, nil
		}
		if attempt == rc.maxRetries {
			return resp, nil
		}

		// Honor an explicit Retry-After before the jittered backoff kicks in.
		if wait := retryAfter(resp); wait > 0 && wait <= rc.maxDelay {
			if !rc.sleep(req, wait) {
				resp.Body.Close()
				return nil, req.Context().Err()
			}
		}

		log.Printf("httpretry: %s %s%s returned %d, attempt %d/%d",
			req.Method, req.URL.Host, req.URL.Path, resp.StatusCode, attempt+1, rc.maxRetries)

		// Drain so the underlying connection can be reused.
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		lastErr = fmt.Errorf("httpretry: retryable status %d", resp.StatusCode)
	}

	return nil, lastErr
}

// sleep waits for d or until the request context ends. Reports whether the
// full wait completed.
func (rc *RetryClient) sleep(req *http.Request, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-req.Context().Done():
		return false
	}
}

// backoff computes the delay before retry attempt n using full jitter:
// a uniform draw from (0, min(maxDelay, baseDelay * 2^(n-1))], floored at
// 100ms so a tight error loop still yields.
func (rc *RetryClient) backoff(attempt int) time.Duration {
	ceiling := float64(rc.baseDelay) * math.Pow(2, float64(attempt-1))
	if ceiling > float64(rc.maxDelay) {
		ceiling = float64(rc.maxDelay)
	}
	d := time.Duration(rand.Float64() * ceiling)
	if d < 100*time.Millisecond {
		d = 100 * time.Millisecond
	}
	return d
}

// retryAfter parses a seconds-valued Retry-After header; zero when absent
// or unparseable.
func retryAfter(resp *http.Response) time.Duration {
	v := resp.Header.Get("Retry-After")
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

func retryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

// Package httpretry wraps an HTTP client with bounded retries for calls
// to external providers. Transient failures (429, 5xx, network errors)
// are retried with exponential backoff and full jitter; client errors
// return immediately.
package httpretry

import (
	"fmt"
	"io"
	"log"
	"math"
	"math/rand"
	"net/http"
	"time"
)

// HTTPDoer executes a single HTTP request. Satisfied by *http.Client and
// by *RetryClient itself.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

const (
	baseDelay = 1 * time.Second
	maxDelay  = 30 * time.Second
	// Floor on the jittered delay so a run of low rolls cannot busy-loop
	// against a rate-limited provider.
	minDelay = 100 * time.Millisecond
)

// RetryClient retries transient failures on top of an inner HTTPDoer.
type RetryClient struct {
	inner      HTTPDoer
	maxRetries int
}

// NewRetryClient wraps client with up to maxRetries retries after the
// initial attempt. A nil client gets a default with a 30s timeout.
func NewRetryClient(client HTTPDoer, maxRetries int) *RetryClient {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &RetryClient{inner: client, maxRetries: maxRetries}
}

// Do executes the request, retrying on retryable statuses (429, 500,
// 502, 503, 504) and transient transport errors. Context cancellation
// stops retrying immediately. The final attempt's response is returned
// as-is so the caller can read the body and report the status.
func (rc *RetryClient) Do(req *http.Request) (*http.Response, error) {
	var lastErr error

	for attempt := 0; attempt <= rc.maxRetries; attempt++ {
		if err := req.Context().Err(); err != nil {
			if lastErr != nil {
				return nil, lastErr
			}
			return nil, err
		}

		if attempt > 0 {
			// Bodies are consumed by the previous attempt; rebuild before
			// resending.
			if req.GetBody != nil {
				body, err := req.GetBody()
				if err != nil {
					return nil, fmt.Errorf("httpretry: reset request body: %w", err)
				}
				req.Body = body
			}

			delay := backoff(attempt)
			log.Printf("[HTTPRetry] Attempt %d/%d for %s %s%s in %s",
				attempt, rc.maxRetries, req.Method, req.URL.Host, req.URL.Path, delay)

			timer := time.NewTimer(delay)
			select {
			case <-timer.C:
			case <-req.Context().Done():
				timer.Stop()
				if lastErr != nil {
					return nil, lastErr
				}
				return nil, req.Context().Err()
			}
		}

		resp, err := rc.inner.Do(req)
		if err != nil {
			lastErr = err
			if req.Context().Err() != nil {
				return nil, err
			}
			continue
		}

		if !retryableStatus(resp.StatusCode) {
			return resp, nil
		}
		if attempt == rc.maxRetries {
			return resp, nil
		}

		// Drain for connection reuse before the next attempt.
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		lastErr = fmt.Errorf("httpretry: retryable status %d", resp.StatusCode)
	}

	return nil, lastErr
}

// backoff returns the jittered delay before the given retry attempt:
// random(0, min(maxDelay, baseDelay * 2^(attempt-1))), floored at minDelay.
func backoff(attempt int) time.Duration {
	capped := float64(baseDelay) * math.Pow(2, float64(attempt-1))
	if capped > float64(maxDelay) {
		capped = float64(maxDelay)
	}
	jittered := time.Duration(rand.Float64() * capped)
	if jittered < minDelay {
		jittered = minDelay
	}
	return jittered
}

func retryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

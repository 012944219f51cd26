package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

// StatusGatewayTimeout is Cloudflare's "a timeout occurred" status, returned
// when the origin takes too long. It is the only retried transport status.
const StatusGatewayTimeout = 524

const (
	defaultMaxRetries  = 3
	defaultBackoffUnit = 5 * time.Second
)

// Doer is the subset of *http.Client used by the retry wrapper
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Sleeper blocks for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// envelope is the response wrapper used by every sunoapi.org endpoint
type envelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

// RetryClient issues JSON API calls with bounded retries and linear backoff.
// Connection errors, per-attempt timeouts and status 524 are retried; any
// other non-200 status fails at once. A 200 response whose envelope code is
// not 200 is an application error and is never retried.
type RetryClient struct {
	httpClient  Doer
	headers     http.Header
	maxRetries  int
	backoffUnit time.Duration
	sleep       Sleeper
}

// NewRetryClient creates a retry wrapper. Zero values for maxRetries and
// backoffUnit select the defaults (3 attempts, 5s unit).
func NewRetryClient(httpClient Doer, headers http.Header, maxRetries int, backoffUnit time.Duration) *RetryClient {
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	if backoffUnit <= 0 {
		backoffUnit = defaultBackoffUnit
	}
	return &RetryClient{
		httpClient:  httpClient,
		headers:     headers,
		maxRetries:  maxRetries,
		backoffUnit: backoffUnit,
		sleep:       sleepContext,
	}
}

// SetSleeper replaces the backoff sleep, for tests.
func (r *RetryClient) SetSleeper(s Sleeper) {
	r.sleep = s
}

// MaxRetries returns the attempt cap.
func (r *RetryClient) MaxRetries() int {
	return r.maxRetries
}

// Do performs the call and returns the envelope's data field. timeout bounds
// each attempt separately; zero means no per-attempt limit.
func (r *RetryClient) Do(ctx context.Context, method, url string, body interface{}, timeout time.Duration) (json.RawMessage, error) {
	var bodyBytes []byte
	if body != nil {
		var err error
		bodyBytes, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
	}

	var lastErr error
	for attempt := 1; attempt <= r.maxRetries; attempt++ {
		data, retryable, err := r.attempt(ctx, method, url, bodyBytes, timeout)
		if err == nil {
			return data, nil
		}
		if !retryable {
			return nil, err
		}
		lastErr = err
		log.Printf("[Suno API] ✗ %s %s — attempt %d/%d: %v", method, url, attempt, r.maxRetries, err)

		if attempt < r.maxRetries {
			if err := r.sleep(ctx, r.backoffUnit*time.Duration(attempt)); err != nil {
				return nil, err
			}
		}
	}

	return nil, &RetryError{Attempts: r.maxRetries, LastErr: lastErr}
}

// attempt runs one request. The boolean reports whether a failure may be retried.
func (r *RetryClient) attempt(ctx context.Context, method, url string, body []byte, timeout time.Duration) (json.RawMessage, bool, error) {
	attemptCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(attemptCtx, method, url, bodyReader)
	if err != nil {
		return nil, false, fmt.Errorf("failed to create request: %w", err)
	}
	for k, vals := range r.headers {
		for _, v := range vals {
			req.Header.Add(k, v)
		}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	log.Printf("[Suno API] → %s %s", method, url)

	resp, err := r.httpClient.Do(req)
	if err != nil {
		// The caller gave up; do not keep retrying on its behalf.
		if ctx.Err() != nil {
			return nil, false, ctx.Err()
		}
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			return nil, true, fmt.Errorf("request timeout: %w", err)
		}
		return nil, true, fmt.Errorf("connection error: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctx.Err() != nil {
			return nil, false, ctx.Err()
		}
		return nil, true, fmt.Errorf("failed to read response: %w", err)
	}

	log.Printf("[Suno API] ← %d %s %s", resp.StatusCode, method, url)

	if resp.StatusCode == StatusGatewayTimeout {
		return nil, true, fmt.Errorf("gateway timeout (status %d)", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, false, &APIError{StatusCode: resp.StatusCode, Message: truncate(string(respBody), 200)}
	}

	var env envelope
	if err := json.Unmarshal(respBody, &env); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if env.Code != http.StatusOK {
		msg := env.Msg
		if msg == "" {
			msg = "Unknown error"
		}
		return nil, false, &APIError{StatusCode: resp.StatusCode, Code: env.Code, Message: msg}
	}

	return env.Data, false, nil
}

func isTimeout(err error) bool {
	var te interface{ Timeout() bool }
	return errors.As(err, &te) && te.Timeout()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

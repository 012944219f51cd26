package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingSleeper captures backoff durations without sleeping.
type recordingSleeper struct {
	slept []time.Duration
}

func (r *recordingSleeper) Sleep(_ context.Context, d time.Duration) error {
	r.slept = append(r.slept, d)
	return nil
}

func newTestRetryClient(t *testing.T) (*RetryClient, *recordingSleeper) {
	t.Helper()
	rc := NewRetryClient(http.DefaultClient, http.Header{"Authorization": {"Bearer test"}}, 3, 5*time.Second)
	s := &recordingSleeper{}
	rc.SetSleeper(s.Sleep)
	return rc, s
}

func TestRetryClient_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test", r.Header.Get("Authorization"))
		w.Write([]byte(`{"code":200,"msg":"success","data":{"taskId":"abc"}}`))
	}))
	defer srv.Close()

	rc, s := newTestRetryClient(t)
	data, err := rc.Do(context.Background(), http.MethodGet, srv.URL, nil, time.Second)
	require.NoError(t, err)
	assert.JSONEq(t, `{"taskId":"abc"}`, string(data))
	assert.Empty(t, s.slept)
}

func TestRetryClient_ExhaustsOn524(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(StatusGatewayTimeout)
	}))
	defer srv.Close()

	rc, s := newTestRetryClient(t)
	_, err := rc.Do(context.Background(), http.MethodGet, srv.URL, nil, time.Second)
	require.Error(t, err)

	var retryErr *RetryError
	require.True(t, errors.As(err, &retryErr))
	assert.Equal(t, 3, retryErr.Attempts)
	assert.True(t, errors.Is(err, ErrTransient))
	assert.Contains(t, err.Error(), "request failed after 3 retries")
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	assert.Equal(t, []time.Duration{5 * time.Second, 10 * time.Second}, s.slept)
}

func TestRetryClient_TimeoutThenSuccess(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) <= 2 {
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
			return
		}
		w.Write([]byte(`{"code":200,"msg":"success","data":"ok"}`))
	}))
	defer srv.Close()

	rc, s := newTestRetryClient(t)
	data, err := rc.Do(context.Background(), http.MethodGet, srv.URL, nil, 50*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, `"ok"`, string(data))
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	assert.Equal(t, []time.Duration{5 * time.Second, 10 * time.Second}, s.slept)
}

func TestRetryClient_ApplicationErrorNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Write([]byte(`{"code":400,"msg":"bad prompt","data":null}`))
	}))
	defer srv.Close()

	rc, s := newTestRetryClient(t)
	_, err := rc.Do(context.Background(), http.MethodPost, srv.URL, map[string]string{"prompt": "x"}, time.Second)
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, 400, apiErr.Code)
	assert.Equal(t, "bad prompt", apiErr.Message)
	assert.True(t, errors.Is(err, ErrApplication))
	assert.False(t, errors.Is(err, ErrTransient))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.Empty(t, s.slept)
}

func TestRetryClient_EmptyMessageDefaults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code":500}`))
	}))
	defer srv.Close()

	rc, _ := newTestRetryClient(t)
	_, err := rc.Do(context.Background(), http.MethodGet, srv.URL, nil, time.Second)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "Unknown error", apiErr.Message)
}

func TestRetryClient_OtherStatusFailsFast(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "nope", http.StatusUnauthorized)
	}))
	defer srv.Close()

	rc, _ := newTestRetryClient(t)
	_, err := rc.Do(context.Background(), http.MethodGet, srv.URL, nil, time.Second)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.False(t, errors.Is(err, ErrApplication))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestRetryClient_ConnectionErrorRetried(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	addr := srv.URL
	srv.Close()

	rc, s := newTestRetryClient(t)
	_, err := rc.Do(context.Background(), http.MethodGet, addr, nil, time.Second)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTransient))
	assert.Contains(t, err.Error(), "connection error")
	assert.Len(t, s.slept, 2)
}

func TestRetryClient_CallerCancellationStops(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(StatusGatewayTimeout)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	rc := NewRetryClient(http.DefaultClient, nil, 3, time.Second)
	rc.SetSleeper(func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	})

	_, err := rc.Do(ctx, http.MethodGet, srv.URL, nil, time.Second)
	assert.True(t, errors.Is(err, context.Canceled))
}

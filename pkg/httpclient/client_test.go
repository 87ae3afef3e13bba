package httpclient

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastClient(retries int) *Client {
	return New(Config{
		Timeout:         5 * time.Second,
		MaxRetries:      retries,
		RetryWaitMin:    time.Millisecond,
		RetryWaitMax:    2 * time.Millisecond,
		MaxConnsPerHost: 4,
	})
}

// flakyServer fails the first `failures` requests with failStatus, then returns 200.
func flakyServer(t *testing.T, failures int32, failStatus int) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) <= failures {
			w.WriteHeader(failStatus)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 30*time.Second, cfg.Timeout)
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, 100, cfg.MaxConnsPerHost)
}

func TestClient_DoRetries(t *testing.T) {
	tests := []struct {
		name       string
		failures   int32
		failStatus int
		retries    int
		wantStatus int
		wantHits   int32
	}{
		{"recovers after gateway errors", 2, http.StatusBadGateway, 3, http.StatusOK, 3},
		{"gives up with last 5xx", 5, http.StatusServiceUnavailable, 2, http.StatusServiceUnavailable, 3},
		{"no retry on 501", 1, http.StatusNotImplemented, 3, http.StatusNotImplemented, 1},
		{"no retry on 4xx", 1, http.StatusConflict, 3, http.StatusConflict, 1},
		{"retries disabled", 1, http.StatusInternalServerError, 0, http.StatusInternalServerError, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, hits := flakyServer(t, tt.failures, tt.failStatus)
			req, err := NewRequest(context.Background(), http.MethodGet, srv.URL+"/api/v1/cart", "", nil)
			require.NoError(t, err)

			resp, err := fastClient(tt.retries).Do(context.Background(), req)
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			assert.Equal(t, tt.wantHits, hits.Load())
		})
	}
}

func TestClient_DoReplaysBodyOnRetry(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, `{"quantity":3}`, string(body))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	req, err := NewRequest(context.Background(), http.MethodPut, srv.URL+"/api/v1/cart/items/srv-1",
		"application/json", strings.NewReader(`{"quantity":3}`))
	require.NoError(t, err)

	resp, err := fastClient(2).Do(context.Background(), req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int32(2), hits.Load())
}

func TestClient_DoStopsOnCanceledContext(t *testing.T) {
	srv, hits := flakyServer(t, 10, http.StatusBadGateway)
	client := New(Config{
		Timeout:         5 * time.Second,
		MaxRetries:      5,
		RetryWaitMin:    time.Second,
		RetryWaitMax:    time.Second,
		MaxConnsPerHost: 4,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req, err := NewRequest(ctx, http.MethodGet, srv.URL, "", nil)
	require.NoError(t, err)

	_, err = client.Do(ctx, req)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, int32(1), hits.Load())
}

func TestClient_DoConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	req, err := NewRequest(context.Background(), http.MethodGet, url, "", nil)
	require.NoError(t, err)

	_, err = fastClient(1).Do(context.Background(), req)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 2 attempts")
	assert.True(t, IsTransient(err))
}

func TestNewRequest(t *testing.T) {
	req, err := NewRequest(context.Background(), http.MethodDelete, "http://cart-service/items/srv-1", "", nil)
	require.NoError(t, err)
	assert.Equal(t, http.NoBody, req.Body)
	assert.Empty(t, req.Header.Get("Content-Type"))

	_, err = NewRequest(context.Background(), http.MethodGet, "://bad", "", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "create GET request")
}

func TestIsRetryableError(t *testing.T) {
	assert.False(t, isRetryableError(nil))
	assert.False(t, isRetryableError(context.Canceled))
	assert.True(t, isRetryableError(context.DeadlineExceeded))
}

func TestAddJitter(t *testing.T) {
	assert.Zero(t, addJitter(0))

	const base = time.Second
	var lo, hi time.Duration
	for i := 0; i < 200; i++ {
		d := addJitter(base)
		require.GreaterOrEqual(t, d, 750*time.Millisecond)
		require.LessOrEqual(t, d, 1250*time.Millisecond)
		if i == 0 || d < lo {
			lo = d
		}
		if d > hi {
			hi = d
		}
	}
	assert.Greater(t, hi-lo, 50*time.Millisecond)
}

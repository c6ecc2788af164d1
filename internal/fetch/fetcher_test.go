package fetch

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgegate/edgegate/internal/config"
)

func fastRetryConfig() *config.RetryConfig {
	return &config.RetryConfig{
		MaxRetries:     3,
		InitialDelay:   config.Duration(time.Millisecond),
		AttemptTimeout: config.Duration(time.Second),
	}
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "429", err: &StatusError{StatusCode: http.StatusTooManyRequests}, want: true},
		{name: "503", err: &StatusError{StatusCode: http.StatusServiceUnavailable}, want: true},
		{name: "404", err: &StatusError{StatusCode: http.StatusNotFound}, want: false},
		{name: "500", err: &StatusError{StatusCode: http.StatusInternalServerError}, want: false},
		{name: "attempt timeout", err: ErrAttemptTimeout, want: true},
		{name: "deadline exceeded", err: context.DeadlineExceeded, want: true},
		{name: "breaker open", err: gobreaker.ErrOpenState, want: false},
		{name: "net error", err: &net.OpError{Op: "dial", Err: errors.New("refused")}, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}

func TestFetcher_Do_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	f := New(fastRetryConfig())

	resp, err := f.Do(context.Background(), http.MethodGet, srv.URL+"/api/posts", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header("Content-Type"))
	assert.JSONEq(t, `{"ok":true}`, string(resp.Body))
}

func TestFetcher_Do_NonSuccessReturnsStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "not here", http.StatusNotFound)
	}))
	defer srv.Close()

	f := New(fastRetryConfig())

	resp, err := f.Do(context.Background(), http.MethodGet, srv.URL+"/missing", nil, nil)
	require.Error(t, err)

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)

	// The response is still available for inspection.
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestFetcher_Do_ForwardsHeadersAndBody(t *testing.T) {
	var gotAccept string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAccept = r.Header.Get("Accept")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	f := New(fastRetryConfig())

	header := http.Header{"Accept": {"application/json"}}
	resp, err := f.Do(context.Background(), http.MethodPost, srv.URL+"/api/posts", header, []byte(`{"title":"x"}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "application/json", gotAccept)
	assert.JSONEq(t, `{"title":"x"}`, string(gotBody))
}

func TestFetcher_Do_AttemptTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	cfg := fastRetryConfig()
	cfg.AttemptTimeout = config.Duration(20 * time.Millisecond)
	f := New(cfg)

	_, err := f.Do(context.Background(), http.MethodGet, srv.URL, nil, nil)
	assert.ErrorIs(t, err, ErrAttemptTimeout)
}

func TestFetcher_CallWithRetry_RetriesTransient(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	f := New(fastRetryConfig())

	resp, err := f.CallWithRetry(context.Background(), http.MethodGet, srv.URL, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestFetcher_CallWithRetry_NoRetryOnClientError(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "bad request", http.StatusBadRequest)
	}))
	defer srv.Close()

	f := New(fastRetryConfig())

	resp, err := f.CallWithRetry(context.Background(), http.MethodGet, srv.URL, nil, nil)
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "4xx must not be retried")

	require.NotNil(t, resp)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestFetcher_CallWithRetry_ExhaustsRetries(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "busy", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	f := New(fastRetryConfig())

	_, err := f.CallWithRetry(context.Background(), http.MethodGet, srv.URL, nil, nil)
	require.Error(t, err)

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusServiceUnavailable, statusErr.StatusCode)

	// Initial attempt plus three retries.
	assert.Equal(t, int32(4), atomic.LoadInt32(&calls))
}

func TestFetcher_CallWithRetry_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	cfg := fastRetryConfig()
	cfg.MaxRetries = 1
	f := New(cfg)

	resp, err := f.CallWithRetry(context.Background(), http.MethodGet, url, nil, nil)
	require.Error(t, err)
	assert.Nil(t, resp)
}

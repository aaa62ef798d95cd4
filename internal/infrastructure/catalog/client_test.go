package catalog

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/truecost/backend/internal/domain"
)

func newTestClient(maxAttempts int) *Client {
	return NewClient(ClientConfig{
		UserAgent:         "TrueCostTest/1.0",
		Timeout:           5 * time.Second,
		MaxAttempts:       maxAttempts,
		RequestsPerSecond: 100,
		Burst:             10,
	}, zerolog.Nop())
}

func TestNewClient(t *testing.T) {
	client := NewClient(ClientConfig{}, zerolog.Nop())

	assert.NotNil(t, client.httpClient)
	assert.NotNil(t, client.rateLimiter)
	assert.Equal(t, 30*time.Second, client.httpClient.Timeout)
	assert.Equal(t, 3, client.maxAttempts)
	assert.Equal(t, "TrueCost/1.0", client.userAgent)
	assert.Equal(t, int64(defaultMaxBodyBytes), client.maxBodyBytes)
	assert.False(t, client.debug)
}

func TestSetDebug(t *testing.T) {
	client := newTestClient(1)

	client.SetDebug(true)
	assert.True(t, client.debug)

	client.SetDebug(false)
	assert.False(t, client.debug)
}

func TestExponentialBackoff(t *testing.T) {
	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{0, 500 * time.Millisecond},
		{1, 500 * time.Millisecond},
		{2, 1000 * time.Millisecond},
		{3, 2000 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run("", func(t *testing.T) {
			assert.Equal(t, tt.expected, exponentialBackoff(tt.attempt))
		})
	}
}

func TestRetryableStatus(t *testing.T) {
	assert.True(t, retryableStatus(domain.DialectB, http.StatusTooManyRequests))
	assert.True(t, retryableStatus(domain.DialectB, http.StatusServiceUnavailable))
	assert.False(t, retryableStatus(domain.DialectB, http.StatusNotFound))
	assert.False(t, retryableStatus(domain.DialectB, http.StatusForbidden))

	// dialect A falls back to dialect B instead of retrying
	assert.False(t, retryableStatus(domain.DialectA, http.StatusTooManyRequests))
	assert.False(t, retryableStatus(domain.DialectA, http.StatusServiceUnavailable))
}

func TestReadLimitedBody(t *testing.T) {
	body, err := readLimitedBody(strings.NewReader("0123456789"), 4)
	require.NoError(t, err)
	assert.Equal(t, "0123", string(body))

	body, err = readLimitedBody(bytes.NewReader(nil), 4)
	require.NoError(t, err)
	assert.Empty(t, body)
}

func TestFetchJSON_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "TrueCostTest/1.0", r.Header.Get("User-Agent"))
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	body, err := newTestClient(3).FetchJSON(context.Background(), domain.DialectA, server.URL)

	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(body))
}

func TestFetchJSON_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	body, err := newTestClient(3).FetchJSON(context.Background(), domain.DialectB, server.URL)

	require.NoError(t, err)
	assert.Equal(t, "{}", string(body))
	assert.Equal(t, int32(2), calls.Load())
}

func TestFetchJSON_NoRetryOnClientError(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	_, err := newTestClient(3).FetchJSON(context.Background(), domain.DialectA, server.URL)

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNetwork)
	var retrievalErr *domain.RetrievalError
	require.True(t, errors.As(err, &retrievalErr))
	assert.Equal(t, http.StatusNotFound, retrievalErr.Status)
	assert.Equal(t, domain.DialectA, retrievalErr.Dialect)
	assert.Equal(t, int32(1), calls.Load())
}

func TestFetchJSON_GivesUpAfterMaxAttempts(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	_, err := newTestClient(2).FetchJSON(context.Background(), domain.DialectB, server.URL)

	assert.ErrorIs(t, err, domain.ErrNetwork)
	assert.Equal(t, int32(2), calls.Load())
}

func TestFetchJSON_DialectAFailsFastOnServerError(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	start := time.Now()
	_, err := newTestClient(3).FetchJSON(context.Background(), domain.DialectA, server.URL)

	var retrievalErr *domain.RetrievalError
	require.ErrorAs(t, err, &retrievalErr)
	assert.Equal(t, http.StatusServiceUnavailable, retrievalErr.Status)
	assert.Equal(t, int32(1), calls.Load())
	assert.Less(t, time.Since(start), exponentialBackoff(1), "no backoff before falling back")
}

func TestFetchJSON_ContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestClient(3).FetchJSON(ctx, domain.DialectA, server.URL)

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNetwork)
	assert.ErrorIs(t, err, context.Canceled)
}

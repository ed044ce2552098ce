package edgar

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func testClient(t *testing.T, cfg ClientConfig) *Client {
	t.Helper()
	if cfg.UserAgent == "" {
		cfg.UserAgent = "fern-test admin@example.com"
	}
	client, err := NewClient(cfg, NewLimiter(100, 10), testLogger())
	require.NoError(t, err)
	return client
}

func TestNewClient_RequiresUserAgent(t *testing.T) {
	_, err := NewClient(ClientConfig{}, NewLimiter(10, 1), testLogger())
	assert.Error(t, err)

	_, err = NewClient(ClientConfig{UserAgent: "   "}, NewLimiter(10, 1), testLogger())
	assert.Error(t, err)
}

func TestNewClient_RequiresLimiter(t *testing.T) {
	_, err := NewClient(ClientConfig{UserAgent: "fern-test admin@example.com"}, nil, testLogger())
	assert.Error(t, err)
}

func TestGetBytes_SendsUserAgent(t *testing.T) {
	var gotUserAgent string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUserAgent = r.Header.Get("User-Agent")
		_, _ = w.Write([]byte("ok"))
	}))
	defer server.Close()

	client := testClient(t, ClientConfig{UserAgent: "fern-test admin@example.com"})

	body, err := client.GetBytes(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Equal(t, "ok", string(body))
	assert.Equal(t, "fern-test admin@example.com", gotUserAgent)
}

func TestGetBytes_RetriesTransientStatus(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer server.Close()

	client := testClient(t, ClientConfig{MaxAttempts: 2})

	body, err := client.GetBytes(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Equal(t, "ok", string(body))
	assert.Equal(t, int32(2), calls.Load())
}

func TestGetBytes_ExhaustsRetries(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := testClient(t, ClientConfig{MaxAttempts: 2})

	_, err := client.GetBytes(context.Background(), server.URL)
	require.Error(t, err)
	assert.Equal(t, int32(2), calls.Load())

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusServiceUnavailable, statusErr.StatusCode)
}

func TestGetBytes_NotFoundIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := testClient(t, ClientConfig{MaxAttempts: 3})

	_, err := client.GetBytes(context.Background(), server.URL)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.Equal(t, int32(1), calls.Load())
}

func TestGetBytes_BodyCap(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(make([]byte, 64))
	}))
	defer server.Close()

	client := testClient(t, ClientConfig{MaxAttempts: 1, MaxBodyBytes: 32})

	_, err := client.GetBytes(context.Background(), server.URL)
	assert.Error(t, err)
}

func TestGetBytes_SharedLimiterThrottles(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	defer server.Close()

	// 10 rps, burst 1: three sequential requests need at least ~200ms
	limiter := NewLimiter(10, 1)
	clientA, err := NewClient(ClientConfig{UserAgent: "fern-test admin@example.com"}, limiter, testLogger())
	require.NoError(t, err)
	clientB, err := NewClient(ClientConfig{UserAgent: "fern-test admin@example.com"}, limiter, testLogger())
	require.NoError(t, err)

	start := time.Now()
	for _, c := range []*Client{clientA, clientB, clientA} {
		_, err := c.GetBytes(context.Background(), server.URL)
		require.NoError(t, err)
	}
	assert.GreaterOrEqual(t, time.Since(start), 150*time.Millisecond)
}

func TestPadCIK(t *testing.T) {
	assert.Equal(t, "0000320193", PadCIK("320193"))
	assert.Equal(t, "0000320193", PadCIK("0000320193"))
	assert.Equal(t, "0000000001", PadCIK("1"))
}

func TestPrimaryDocumentURL(t *testing.T) {
	url := PrimaryDocumentURL("0000320193", "0000320193-24-000123", "aapl-20240928.htm")
	assert.Equal(t, "https://www.sec.gov/Archives/edgar/data/320193/000032019324000123/aapl-20240928.htm", url)
}

func TestStatusError_Transient(t *testing.T) {
	assert.True(t, (&StatusError{StatusCode: http.StatusTooManyRequests}).Transient())
	assert.True(t, (&StatusError{StatusCode: http.StatusForbidden}).Transient())
	assert.True(t, (&StatusError{StatusCode: http.StatusBadGateway}).Transient())
	assert.False(t, (&StatusError{StatusCode: http.StatusBadRequest}).Transient())
	assert.False(t, (&StatusError{StatusCode: http.StatusNotFound}).Transient())
}

func TestIsTransient(t *testing.T) {
	// transport failures never produced a status code; all are retryable
	refused := &url.Error{Op: "Get", URL: "http://127.0.0.1:1/", Err: errors.New("connect: connection refused")}
	assert.True(t, IsTransient(refused))

	dnsFailure := &url.Error{Op: "Get", URL: "http://no-such-host/", Err: &net.DNSError{Err: "no such host", Name: "no-such-host"}}
	assert.True(t, IsTransient(dnsFailure))

	// a cancelled or expired caller is not worth retrying
	assert.False(t, IsTransient(&url.Error{Op: "Get", URL: "http://127.0.0.1:1/", Err: context.Canceled}))
	assert.False(t, IsTransient(context.DeadlineExceeded))

	assert.True(t, IsTransient(&StatusError{StatusCode: http.StatusServiceUnavailable}))
	assert.False(t, IsTransient(&StatusError{StatusCode: http.StatusBadRequest}))
	assert.False(t, IsTransient(ErrNotFound))
}

func TestGetBytes_RetriesConnectionRefused(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	deadURL := server.URL
	server.Close()

	client := testClient(t, ClientConfig{MaxAttempts: 2})

	_, err := client.GetBytes(context.Background(), deadURL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 2 attempts")
}

package fetch

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastPolicy() Policy {
	return Policy{MaxAttempts: 3, BaseDelay: 20 * time.Millisecond, MaxDelay: 80 * time.Millisecond}
}

func TestExecuteRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	f := New(srv.Client(), fastPolicy(), nil)
	start := time.Now()
	_, err := f.Get(context.Background(), srv.URL+"/rates", Options{})
	elapsed := time.Since(start)

	var unreachable *UnreachableError
	require.ErrorAs(t, err, &unreachable)
	assert.Equal(t, 3, unreachable.Attempts)
	assert.Equal(t, http.StatusBadGateway, unreachable.Status)
	assert.Equal(t, int32(3), calls.Load())
	// 20ms before the second attempt, 40ms before the third
	assert.GreaterOrEqual(t, elapsed, 60*time.Millisecond)
}

func TestExecuteDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "no such zip", http.StatusNotFound)
	}))
	defer srv.Close()

	f := New(srv.Client(), fastPolicy(), nil)
	_, err := f.Get(context.Background(), srv.URL, Options{})

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusNotFound, statusErr.Status)
	assert.Contains(t, statusErr.Body, "no such zip")
	assert.Equal(t, int32(1), calls.Load())

	var unreachable *UnreachableError
	assert.False(t, errors.As(err, &unreachable))
}

func TestExecuteRecoversAfterTransientFailure(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"zipCode":"1010"}`, string(body), "body is replayed on every attempt")
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	f := New(srv.Client(), fastPolicy(), nil)
	resp, err := f.Post(context.Background(), srv.URL, Options{JSON: map[string]string{"zipCode": "1010"}})
	require.NoError(t, err)

	var out struct {
		OK bool `json:"ok"`
	}
	require.NoError(t, resp.DecodeJSON(&out))
	assert.True(t, out.OK)
	assert.Equal(t, int32(3), calls.Load())
}

func TestExecuteTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	target := srv.URL
	srv.Close()

	f := New(&http.Client{Timeout: time.Second}, Policy{MaxAttempts: 2, BaseDelay: time.Millisecond}, nil)
	_, err := f.Get(context.Background(), target, Options{})

	var unreachable *UnreachableError
	require.ErrorAs(t, err, &unreachable)
	assert.Equal(t, 2, unreachable.Attempts)
	assert.Error(t, unreachable.Err)
}

func TestExecuteQueryAndHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "POWER", r.URL.Query().Get("energyType"))
		assert.Equal(t, "1010", r.URL.Query().Get("zipCode"))
		assert.Equal(t, "key", r.Header.Get("X-Gateway-APIKey"))
		assert.Equal(t, userAgent, r.Header.Get("User-Agent"))
		_, _ = w.Write([]byte("[]"))
	}))
	defer srv.Close()

	f := New(srv.Client(), fastPolicy(), nil)
	resp, err := f.Get(context.Background(), srv.URL+"/ops?energyType=POWER", Options{
		Query:  url.Values{"zipCode": {"1010"}},
		Header: http.Header{"X-Gateway-APIKey": {"key"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "[]", string(resp.Body))
}

func TestExecuteStopsOnCancel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	f := New(srv.Client(), Policy{MaxAttempts: 3, BaseDelay: 5 * time.Second}, nil)
	start := time.Now()
	_, err := f.Get(ctx, srv.URL, Options{})
	require.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestPolicyNormalize(t *testing.T) {
	p := Policy{}.normalize()
	assert.Equal(t, DefaultPolicy(), p)

	p = Policy{MaxAttempts: 1, BaseDelay: time.Second, MaxDelay: time.Millisecond}.normalize()
	assert.Equal(t, time.Second, p.MaxDelay)
}

package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFetcher(maxBytes int64) *Fetcher {
	return New(Options{
		MaxAttempts: 3,
		MaxBytes:    maxBytes,
		RetryDelay:  time.Millisecond,
	})
}

func TestFetchReturnsBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OggS..."))
	}))
	defer srv.Close()

	body, err := newFetcher(0).Fetch(context.Background(), srv.URL+"/boo.ogg")
	require.NoError(t, err)
	assert.Equal(t, "OggS...", string(body))
}

func TestFetchRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	body, err := newFetcher(0).Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "ok", string(body))
	assert.Equal(t, int32(3), calls.Load())
}

func TestFetchDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := newFetcher(0).Fetch(context.Background(), srv.URL)

	var serr *StatusError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, http.StatusNotFound, serr.StatusCode())
	assert.Equal(t, int32(1), calls.Load())
}

func TestFetchGivesUp(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := newFetcher(0).Fetch(context.Background(), srv.URL)
	assert.Error(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestFetchRejectsOversizedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// no Content-Length, streamed
		w.Header().Set("Transfer-Encoding", "chunked")
		w.Write([]byte(strings.Repeat("x", 64)))
	}))
	defer srv.Close()

	_, err := newFetcher(16).Fetch(context.Background(), srv.URL)
	assert.ErrorIs(t, err, ErrTooLarge)
}

func TestFetchRejectsOversizedContentLength(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Length", "64")
		w.Write([]byte(strings.Repeat("x", 64)))
	}))
	defer srv.Close()

	_, err := newFetcher(16).Fetch(context.Background(), srv.URL)
	assert.ErrorIs(t, err, ErrTooLarge)
	assert.Equal(t, int32(1), calls.Load())
}

func TestFetchBadURL(t *testing.T) {
	_, err := newFetcher(0).Fetch(context.Background(), "://nope")
	assert.Error(t, err)
}

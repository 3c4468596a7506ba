package backend

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/baton-ci/baton/pkg/types"
)

func TestTransportDo_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	tr := NewTransport("test", 0)
	req, err := newJSONRequest(context.Background(), http.MethodGet, srv.URL, nil)
	require.NoError(t, err)

	resp, err := tr.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestTransportDo_ClientErrorPassesThrough(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	tr := NewTransport("test", 0)
	req, err := newJSONRequest(context.Background(), http.MethodGet, srv.URL, nil)
	require.NoError(t, err)

	resp, err := tr.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestTransportDo_ServerErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "backend exploded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	tr := NewTransport("test", 0)
	req, err := newJSONRequest(context.Background(), http.MethodGet, srv.URL, nil)
	require.NoError(t, err)

	_, err = tr.Do(req)
	require.Error(t, err)
	assert.True(t, types.IsTransient(err))
	assert.Contains(t, err.Error(), "backend exploded")
}

func TestTransportDo_NetworkErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	tr := NewTransport("test", 0)
	req, err := newJSONRequest(context.Background(), http.MethodGet, srv.URL, nil)
	require.NoError(t, err)

	_, err = tr.Do(req)
	require.Error(t, err)
	assert.True(t, types.IsTransient(err))
}

func TestTransportDo_BreakerOpensAfterConsecutiveFailures(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	tr := NewTransport("test", 0)
	for i := 0; i < 5; i++ {
		req, err := newJSONRequest(context.Background(), http.MethodGet, srv.URL, nil)
		require.NoError(t, err)
		_, err = tr.Do(req)
		require.Error(t, err)
	}
	require.EqualValues(t, 5, hits.Load())

	// The sixth request never reaches the server.
	req, err := newJSONRequest(context.Background(), http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	_, err = tr.Do(req)
	require.Error(t, err)
	assert.True(t, types.IsTransient(err))
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.EqualValues(t, 5, hits.Load())
}

func TestTransportDo_CapsInFlightRequests(t *testing.T) {
	var mu sync.Mutex
	inFlight, peak := 0, 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		inFlight++
		if inFlight > peak {
			peak = inFlight
		}
		mu.Unlock()

		time.Sleep(20 * time.Millisecond)

		mu.Lock()
		inFlight--
		mu.Unlock()
	}))
	defer srv.Close()

	tr := NewTransport("test", 2)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			req, err := newJSONRequest(context.Background(), http.MethodGet, srv.URL, nil)
			if err != nil {
				return
			}
			resp, err := tr.Do(req)
			if err == nil {
				_ = resp.Body.Close()
			}
		}()
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.LessOrEqual(t, peak, 2)
	assert.Greater(t, peak, 0)
}

func TestTransportDo_CancelledContextWhileQueued(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()

	tr := NewTransport("test", 1)

	done := make(chan struct{})
	go func() {
		defer close(done)
		req, _ := newJSONRequest(context.Background(), http.MethodGet, srv.URL, nil)
		resp, err := tr.Do(req)
		if err == nil {
			_ = resp.Body.Close()
		}
	}()
	time.Sleep(10 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req, err := newJSONRequest(ctx, http.MethodGet, srv.URL, nil)
	require.NoError(t, err)

	_, err = tr.Do(req)
	assert.ErrorIs(t, err, context.Canceled)

	close(release)
	<-done
}

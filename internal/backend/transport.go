package backend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/sync/semaphore"

	"github.com/baton-ci/baton/pkg/types"
)

// Transport defaults.
const (
	defaultRequestTimeout = 30 * time.Second
	defaultMaxInFlight    = 8
	maxErrorBodyBytes     = 2048
)

// Transport is the shared HTTP layer for the REST adapters. Each adapter
// instance owns one: requests run under an in-flight cap so bursts of
// concurrent orchestrations cannot overwhelm a backend API, and a circuit
// breaker sheds load while the backend is failing.
type Transport struct {
	client  *http.Client
	sem     *semaphore.Weighted
	breaker *gobreaker.CircuitBreaker
}

// NewTransport builds a Transport capped at maxInFlight concurrent requests
// (0 means the default).
func NewTransport(name string, maxInFlight int) *Transport {
	if maxInFlight <= 0 {
		maxInFlight = defaultMaxInFlight
	}
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    name,
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	return &Transport{
		client:  &http.Client{Timeout: defaultRequestTimeout},
		sem:     semaphore.NewWeighted(int64(maxInFlight)),
		breaker: breaker,
	}
}

// Do executes req under the in-flight cap and circuit breaker. Network
// failures, 5xx responses, and an open breaker come back as
// *types.TransientError; any other response passes through for the caller
// to interpret. The response body is unread on success.
func (t *Transport) Do(req *http.Request) (*http.Response, error) {
	if err := t.sem.Acquire(req.Context(), 1); err != nil {
		return nil, err
	}
	defer t.sem.Release(1)

	op := req.Method + " " + req.URL.Path
	out, err := t.breaker.Execute(func() (interface{}, error) {
		resp, err := t.client.Do(req)
		if err != nil {
			return nil, &types.TransientError{Op: op, Err: err}
		}
		if resp.StatusCode >= 500 {
			body := readErrorBody(resp)
			return nil, &types.TransientError{
				Op:  op,
				Err: fmt.Errorf("status %d: %s", resp.StatusCode, body),
			}
		}
		return resp, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, &types.TransientError{Op: op, Err: err}
		}
		return nil, err
	}
	return out.(*http.Response), nil
}

// newJSONRequest builds a request with a context and JSON content type.
func newJSONRequest(ctx context.Context, method, url string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	return req, nil
}

// readErrorBody drains and closes a response body for error reporting,
// truncated to keep messages bounded.
func readErrorBody(resp *http.Response) string {
	defer func() { _ = resp.Body.Close() }()
	b, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
	if err != nil {
		return ""
	}
	return string(b)
}

// Package testutil provides shared test fakes for baton.
package testutil

import (
	"context"
	"sync"

	"github.com/baton-ci/baton/internal/backend"
	"github.com/baton-ci/baton/pkg/types"
)

// Compile-time interface satisfaction check.
var _ backend.Backend = (*FakeBackend)(nil)

// FakeBackend is a scriptable Backend for testing. Each method delegates to
// its fn field when set and returns a zero value otherwise; call counts are
// tracked either way.
type FakeBackend struct {
	BackendKind types.BackendKind

	DispatchFn func(ctx context.Context, req types.TriggerRequest) (types.DispatchAck, error)
	ListFn     func(ctx context.Context, req types.TriggerRequest) ([]types.CandidateRun, error)
	StateFn    func(ctx context.Context, req types.TriggerRequest, runID string) (types.RunState, error)

	mu            sync.Mutex
	dispatchCalls int
	listCalls     int
	stateCalls    int
}

// NewFakeBackend creates a FakeBackend reporting the given kind.
func NewFakeBackend(kind types.BackendKind) *FakeBackend {
	return &FakeBackend{BackendKind: kind}
}

func (f *FakeBackend) Kind() types.BackendKind { return f.BackendKind }

func (f *FakeBackend) Dispatch(ctx context.Context, req types.TriggerRequest) (types.DispatchAck, error) {
	f.count(&f.dispatchCalls)
	if f.DispatchFn != nil {
		return f.DispatchFn(ctx, req)
	}
	return types.DispatchAck{DispatchedAt: req.DispatchedAt}, nil
}

func (f *FakeBackend) ListCandidateRuns(ctx context.Context, req types.TriggerRequest) ([]types.CandidateRun, error) {
	f.count(&f.listCalls)
	if f.ListFn != nil {
		return f.ListFn(ctx, req)
	}
	return nil, nil
}

func (f *FakeBackend) GetRunState(ctx context.Context, req types.TriggerRequest, runID string) (types.RunState, error) {
	f.count(&f.stateCalls)
	if f.StateFn != nil {
		return f.StateFn(ctx, req, runID)
	}
	return types.RunState{}, nil
}

// DispatchCalls returns how many times Dispatch was invoked.
func (f *FakeBackend) DispatchCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dispatchCalls
}

// ListCalls returns how many times ListCandidateRuns was invoked.
func (f *FakeBackend) ListCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listCalls
}

// StateCalls returns how many times GetRunState was invoked.
func (f *FakeBackend) StateCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stateCalls
}

func (f *FakeBackend) count(c *int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	*c++
}

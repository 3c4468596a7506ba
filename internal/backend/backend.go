// Package backend implements workflow backend adapters.
//
// Every adapter provides the same capability set: dispatch a workflow,
// list candidate runs for correlation, and fetch one run's normalized
// state. Adapters hold their endpoint and credentials by construction;
// nothing in this package is process-global.
package backend

import (
	"context"
	"fmt"

	"github.com/baton-ci/baton/pkg/types"
)

// Backend is the capability set every workflow system adapter implements.
type Backend interface {
	// Kind identifies the backend family.
	Kind() types.BackendKind

	// Dispatch asks the remote system to start the workflow named by req.
	// Backends whose API returns the run identity synchronously set
	// DispatchAck.RunID; the rest leave it empty for correlation.
	// Failures are *types.DispatchError and are never retried.
	Dispatch(ctx context.Context, req types.TriggerRequest) (types.DispatchAck, error)

	// ListCandidateRuns returns recent runs for the target workflow,
	// most recent first. Purely a read; safe to call repeatedly.
	ListCandidateRuns(ctx context.Context, req types.TriggerRequest) ([]types.CandidateRun, error)

	// GetRunState fetches the normalized state of one run. Returns
	// *types.TransientError on retryable failures and
	// *types.RunNotFoundError when the identifier is unknown.
	GetRunState(ctx context.Context, req types.TriggerRequest, runID string) (types.RunState, error)
}

// New constructs the adapter for cfg.Kind.
func New(cfg types.BackendConfig) (Backend, error) {
	switch cfg.Kind {
	case types.BackendGitHubActions:
		return NewGitHub(cfg)
	case types.BackendJenkins:
		return NewJenkins(cfg)
	case types.BackendAzureDevOps:
		return NewAzureDevOps(cfg)
	case types.BackendStepFunctions:
		return NewStepFunctions(cfg)
	case types.BackendCloudWorkflows:
		return NewCloudWorkflows(cfg)
	default:
		return nil, fmt.Errorf("unknown backend kind: %s", cfg.Kind)
	}
}

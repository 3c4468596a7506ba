package types

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrDeadlineExceeded signals that the shared orchestration deadline elapsed
// while awaiting run completion. The orchestrator converts it into a
// TimedOut verdict rather than surfacing it as an error.
var ErrDeadlineExceeded = errors.New("orchestration deadline exceeded")

// DispatchError reports a dispatch the backend rejected. Fatal; never retried.
type DispatchError struct {
	Backend  BackendKind
	Workflow string
	Status   int
	Msg      string
}

func (e *DispatchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: dispatching %q: status %d: %s", e.Backend, e.Workflow, e.Status, e.Msg)
	}
	return fmt.Sprintf("%s: dispatching %q: %s", e.Backend, e.Workflow, e.Msg)
}

// RunNotFoundError reports that no run could be attributed to a dispatch
// before the deadline, or that a run identifier is unknown to the backend.
type RunNotFoundError struct {
	Backend      BackendKind
	Workflow     string
	Ref          string
	RunID        string
	DispatchedAt time.Time
	Waited       time.Duration
}

func (e *RunNotFoundError) Error() string {
	if e.RunID != "" {
		return fmt.Sprintf("%s: run %q not found", e.Backend, e.RunID)
	}
	if e.Waited > 0 {
		return fmt.Sprintf("%s: no run for workflow %q ref %q appeared within %s of dispatch",
			e.Backend, e.Workflow, e.Ref, e.Waited.Round(time.Second))
	}
	return fmt.Sprintf("%s: run not found for workflow %q", e.Backend, e.Workflow)
}

// TransientError wraps a retryable failure (network error or 5xx response).
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient: %s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// IsTransient reports whether err is retryable in place.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// Orchestration stages, used to report where a call failed.
const (
	StageDispatch  = "dispatch"
	StageCorrelate = "correlate"
	StageAwait     = "await"
	StageAborted   = "aborted"
)

// OrchestrationError is the single caller-facing error wrapper. A caller
// receives exactly one terminal Verdict or one OrchestrationError per call.
type OrchestrationError struct {
	ID    string
	Stage string
	Err   error
}

func (e *OrchestrationError) Error() string {
	return fmt.Sprintf("orchestration %s: %s: %v", e.ID, e.Stage, e.Err)
}

func (e *OrchestrationError) Unwrap() error { return e.Err }

// IsAborted reports whether err represents a caller-initiated abort, as
// opposed to a backend-reported cancellation.
func IsAborted(err error) bool {
	var oe *OrchestrationError
	if errors.As(err, &oe) && oe.Stage == StageAborted {
		return true
	}
	return errors.Is(err, context.Canceled)
}

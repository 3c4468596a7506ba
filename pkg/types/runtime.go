package types

import "time"

// TriggerRequest describes one workflow dispatch. Immutable once created;
// consumed exactly once by a backend dispatch.
type TriggerRequest struct {
	Backend      BackendKind       `json:"backend"`
	Owner        string            `json:"owner,omitempty"`
	Project      string            `json:"project,omitempty"`
	Workflow     string            `json:"workflow"`
	Ref          string            `json:"ref,omitempty"`
	Inputs       map[string]string `json:"inputs,omitempty"`
	DispatchedAt time.Time         `json:"dispatchedAt"`
}

// DispatchAck is the backend's acknowledgement of a dispatch. RunID is set
// only by backends whose dispatch API returns the run identity synchronously;
// when empty the run must be discovered by correlation.
type DispatchAck struct {
	RunID        string    `json:"runId,omitempty"`
	ReferenceURL string    `json:"referenceUrl,omitempty"`
	DispatchedAt time.Time `json:"dispatchedAt"`
}

// CandidateRun is one run returned by a backend listing. Ephemeral; refreshed
// on every correlation attempt and never persisted.
type CandidateRun struct {
	ID           string    `json:"id"`
	CreatedAt    time.Time `json:"createdAt"`
	ReferenceURL string    `json:"referenceUrl,omitempty"`
	RawStatus    string    `json:"rawStatus,omitempty"`
}

// RunState is the normalized state of a remote run. Outcome is meaningful
// only when Phase is PhaseCompleted.
type RunState struct {
	Phase        RunPhase `json:"phase"`
	Outcome      Outcome  `json:"outcome,omitempty"`
	Raw          string   `json:"raw,omitempty"`
	ReferenceURL string   `json:"referenceUrl,omitempty"`
}

// PendingState returns a RunState for a run that has not started executing.
func PendingState(raw string) RunState {
	return RunState{Phase: PhasePending, Raw: raw}
}

// RunningState returns a RunState for a run in progress.
func RunningState(raw string) RunState {
	return RunState{Phase: PhaseRunning, Raw: raw}
}

// CompletedState returns a RunState for a finished run with its normalized outcome.
func CompletedState(outcome Outcome, raw string) RunState {
	return RunState{Phase: PhaseCompleted, Outcome: outcome, Raw: raw}
}

// Terminal reports whether the run has finished.
func (s RunState) Terminal() bool {
	return s.Phase == PhaseCompleted
}

// Verdict is the uniform terminal result of one orchestration. Produced
// exactly once per orchestration call.
type Verdict struct {
	Code   VerdictCode `json:"code"`
	Reason string      `json:"reason,omitempty"`
}

// Result is the caller-facing output of a completed orchestration.
// ReferenceURL is populated as soon as correlation succeeds, before the
// verdict is known.
type Result struct {
	OrchestrationID string        `json:"orchestrationId"`
	Verdict         Verdict       `json:"verdict"`
	RunID           string        `json:"runId,omitempty"`
	ReferenceURL    string        `json:"referenceUrl,omitempty"`
	Elapsed         time.Duration `json:"elapsed,omitempty"`
}

// Notice is an event dispatched to notice sinks on terminal outcomes.
type Notice struct {
	Level           NoticeLevel       `json:"level"`
	OrchestrationID string            `json:"orchestrationId,omitempty"`
	Backend         BackendKind       `json:"backend,omitempty"`
	Workflow        string            `json:"workflow,omitempty"`
	RunID           string            `json:"runId,omitempty"`
	ReferenceURL    string            `json:"referenceUrl,omitempty"`
	Message         string            `json:"message"`
	Details         map[string]string `json:"details,omitempty"`
	Timestamp       time.Time         `json:"timestamp"`
}

// Package journal persists one record per orchestration so that dispatches
// can be inspected while in flight and after the process exits. Stores are
// pluggable; the memory store is the default and the test double.
package journal

import (
	"context"
	"errors"
	"time"

	"github.com/baton-ci/baton/pkg/types"
)

// ErrNotFound is returned when no record exists for the requested id.
var ErrNotFound = errors.New("journal: record not found")

// DefaultListLimit bounds List calls that pass a non-positive limit.
const DefaultListLimit = 20

// State tracks how far an orchestration has progressed.
type State string

// State values. A record moves DISPATCHED -> CORRELATED -> DONE; the
// correlated step is skipped when the backend returned a run id hint
// and the run finished before the first journal update.
const (
	StateDispatched State = "DISPATCHED"
	StateCorrelated State = "CORRELATED"
	StateDone       State = "DONE"
)

// Record is one journaled orchestration. IDs are ULIDs, so lexicographic
// order is chronological order; stores use that for their sort keys.
type Record struct {
	ID           string            `json:"id"`
	Backend      types.BackendKind `json:"backend"`
	Workflow     string            `json:"workflow"`
	Ref          string            `json:"ref,omitempty"`
	RunID        string            `json:"runId,omitempty"`
	ReferenceURL string            `json:"referenceUrl,omitempty"`
	State        State             `json:"state"`
	Verdict      types.VerdictCode `json:"verdict,omitempty"`
	Reason       string            `json:"reason,omitempty"`
	StartedAt    time.Time         `json:"startedAt"`
	UpdatedAt    time.Time         `json:"updatedAt"`
	FinishedAt   *time.Time        `json:"finishedAt,omitempty"`
}

// Done reports whether the record carries a final verdict.
func (r Record) Done() bool { return r.State == StateDone }

// Store persists orchestration records. Implementations must be safe for
// concurrent use; a single orchestration only ever has one writer.
type Store interface {
	// SaveDispatch writes the initial record for a new orchestration.
	SaveDispatch(ctx context.Context, rec Record) error

	// MarkCorrelated records the run identity once correlation succeeds,
	// before the verdict is known.
	MarkCorrelated(ctx context.Context, id, runID, referenceURL string, at time.Time) error

	// MarkVerdict finalizes the record with the terminal verdict.
	MarkVerdict(ctx context.Context, id string, verdict types.Verdict, at time.Time) error

	// Get returns the record for id, or ErrNotFound.
	Get(ctx context.Context, id string) (Record, error)

	// List returns the most recent records, newest first. A non-positive
	// limit means DefaultListLimit.
	List(ctx context.Context, limit int) ([]Record, error)

	// Ping verifies connectivity to the underlying store.
	Ping(ctx context.Context) error

	// Close releases the store's resources.
	Close() error
}

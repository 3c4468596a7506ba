// Package await implements the poll loop that follows a dispatched workflow
// run to completion.
//
// The loop has two phases under one shared deadline: while the run's identity
// is unknown it refreshes the backend's candidate listing and correlates
// against the dispatch time; once identified it polls the run's state until
// the backend reports completion. The deadline is anchored at the dispatch
// and is never reset between phases.
package await

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/baton-ci/baton/internal/backend"
	"github.com/baton-ci/baton/internal/correlate"
	"github.com/baton-ci/baton/pkg/types"
)

// errTickExhausted signals that one tick's in-place transient retries were
// spent without a definitive answer. The loop moves on to the next tick; only
// the shared deadline terminates the wait.
var errTickExhausted = errors.New("transient retry budget exhausted for this tick")

// Completion describes the terminal state of an awaited run.
type Completion struct {
	RunID        string
	ReferenceURL string
	Outcome      types.Outcome
	RawStatus    string
}

// Poller drives one orchestration's wait cycle. A Poller holds no mutable
// state across calls, so one instance may serve concurrent orchestrations.
type Poller struct {
	backend  backend.Backend
	cfg      types.PollConfig
	clock    Clock
	logger   *slog.Logger
	progress func(runID, referenceURL string)
}

// Option configures a Poller.
type Option func(*Poller)

// WithClock overrides the real-time clock (useful for testing).
func WithClock(c Clock) Option {
	return func(p *Poller) { p.clock = c }
}

// WithLogger sets the poll loop's logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Poller) { p.logger = l }
}

// WithProgress registers a callback invoked once, as soon as the run's
// identity is known and before the final verdict, so callers can surface the
// run's reference URL while the wait is still in flight.
func WithProgress(fn func(runID, referenceURL string)) Option {
	return func(p *Poller) { p.progress = fn }
}

// New creates a Poller for the given backend. Zero Interval and MaxWait fall
// back to the package defaults.
func New(b backend.Backend, cfg types.PollConfig, opts ...Option) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = types.DefaultPollInterval
	}
	if cfg.MaxWait <= 0 {
		cfg.MaxWait = types.DefaultMaxWait
	}
	p := &Poller{
		backend: b,
		cfg:     cfg,
		clock:   SystemClock{},
		logger:  slog.Default(),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Await follows the run started by ack until it completes, the shared
// deadline passes, or ctx is cancelled.
//
// When ack carries a run-id hint the correlation phase is skipped. A deadline
// that expires before the run is identified returns *types.RunNotFoundError;
// one that expires afterwards returns types.ErrDeadlineExceeded. Context
// cancellation returns ctx.Err() unwrapped so callers can tell a caller abort
// apart from a backend-reported cancellation.
func (p *Poller) Await(ctx context.Context, req types.TriggerRequest, ack types.DispatchAck) (Completion, error) {
	start := ack.DispatchedAt
	if start.IsZero() {
		start = p.clock.Now()
	}
	deadline := start.Add(p.cfg.MaxWait)

	runID, refURL := ack.RunID, ack.ReferenceURL
	if runID != "" {
		p.logger.Debug("run identity known at dispatch, skipping correlation",
			"backend", p.backend.Kind(), "workflow", req.Workflow, "runId", runID)
		p.publish(runID, refURL)
	}

	for {
		if err := ctx.Err(); err != nil {
			return Completion{}, err
		}
		if !p.clock.Now().Before(deadline) {
			if runID == "" {
				return Completion{}, &types.RunNotFoundError{
					Backend:      p.backend.Kind(),
					Workflow:     req.Workflow,
					Ref:          req.Ref,
					DispatchedAt: start,
					Waited:       p.cfg.MaxWait,
				}
			}
			return Completion{}, types.ErrDeadlineExceeded
		}

		if runID == "" {
			run, found, err := p.correlateTick(ctx, req, start)
			if err != nil {
				return Completion{}, err
			}
			if found {
				runID, refURL = run.ID, run.ReferenceURL
				p.logger.Info("run correlated",
					"backend", p.backend.Kind(), "workflow", req.Workflow,
					"runId", runID, "createdAt", run.CreatedAt)
				p.publish(runID, refURL)
				// Move straight to the first state fetch.
				continue
			}
		} else {
			state, fetched, err := p.stateTick(ctx, req, runID)
			if err != nil {
				return Completion{}, err
			}
			if fetched && state.Terminal() {
				if state.ReferenceURL != "" {
					refURL = state.ReferenceURL
				}
				return Completion{
					RunID:        runID,
					ReferenceURL: refURL,
					Outcome:      state.Outcome,
					RawStatus:    state.Raw,
				}, nil
			}
			if fetched {
				p.logger.Debug("run still in flight",
					"backend", p.backend.Kind(), "runId", runID,
					"phase", state.Phase, "status", state.Raw)
			}
		}

		if err := p.clock.Sleep(ctx, p.cfg.Interval); err != nil {
			return Completion{}, err
		}
	}
}

// correlateTick refreshes the candidate list once (with in-place transient
// retries) and tries to match the dispatch. found is false when no candidate
// qualifies yet or the tick's retry budget ran out.
func (p *Poller) correlateTick(ctx context.Context, req types.TriggerRequest, dispatchedAt time.Time) (types.CandidateRun, bool, error) {
	var candidates []types.CandidateRun
	err := p.callWithBudget("listing candidate runs", func() error {
		var callErr error
		candidates, callErr = p.backend.ListCandidateRuns(ctx, req)
		return callErr
	})
	if errors.Is(err, errTickExhausted) {
		return types.CandidateRun{}, false, nil
	}
	if err != nil {
		return types.CandidateRun{}, false, err
	}

	run, ok := correlate.Pick(candidates, dispatchedAt, p.cfg.ClockSkew)
	return run, ok, nil
}

// stateTick fetches the run's state once (with in-place transient retries).
// fetched is false when the tick's retry budget ran out.
func (p *Poller) stateTick(ctx context.Context, req types.TriggerRequest, runID string) (types.RunState, bool, error) {
	var state types.RunState
	err := p.callWithBudget("fetching run state", func() error {
		var callErr error
		state, callErr = p.backend.GetRunState(ctx, req, runID)
		return callErr
	})
	if errors.Is(err, errTickExhausted) {
		return types.RunState{}, false, nil
	}
	if err != nil {
		return types.RunState{}, false, err
	}
	return state, true, nil
}

// callWithBudget runs fn, retrying transient failures in place up to the
// per-tick budget. Retries are immediate so they consume no wall-clock budget
// beyond the shared deadline. Non-transient errors propagate unchanged.
func (p *Poller) callWithBudget(op string, fn func() error) error {
	for attempt := 0; ; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		if !types.IsTransient(err) {
			return err
		}
		if attempt >= p.cfg.RetryBudget {
			p.logger.Warn("transient failures exhausted this tick's retry budget",
				"backend", p.backend.Kind(), "op", op, "attempts", attempt+1, "error", err)
			return errTickExhausted
		}
		p.logger.Debug("retrying transient failure in place",
			"backend", p.backend.Kind(), "op", op, "attempt", attempt+1, "error", err)
	}
}

func (p *Poller) publish(runID, referenceURL string) {
	if p.progress != nil {
		p.progress(runID, referenceURL)
	}
}

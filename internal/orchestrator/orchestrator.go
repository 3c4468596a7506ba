// Package orchestrator composes dispatch, correlation, awaiting, and verdict
// resolution into the trigger-and-await operation. One call produces exactly
// one terminal Verdict or one OrchestrationError, never both.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/baton-ci/baton/internal/await"
	"github.com/baton-ci/baton/internal/backend"
	"github.com/baton-ci/baton/internal/journal"
	"github.com/baton-ci/baton/internal/journal/memory"
	"github.com/baton-ci/baton/internal/metrics"
	"github.com/baton-ci/baton/internal/verdict"
	"github.com/baton-ci/baton/pkg/types"
)

const instrumentationName = "github.com/baton-ci/baton/internal/orchestrator"

// Orchestrator runs trigger-and-await cycles against configured backends.
// Safe for concurrent use; each call owns its own poll loop.
type Orchestrator struct {
	backends map[types.BackendKind]backend.Backend
	journal  journal.Store
	alertFn  func(context.Context, types.Notice)
	progress func(orchestrationID, runID, referenceURL string)
	clock    await.Clock
	logger   *slog.Logger

	tracer   trace.Tracer
	duration metric.Float64Histogram
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithJournal sets the journal store. Defaults to the in-memory store.
func WithJournal(s journal.Store) Option {
	return func(o *Orchestrator) { o.journal = s }
}

// WithAlertFunc registers the notice callback, typically alert.Dispatcher.Func.
// A nil callback disables notices.
func WithAlertFunc(fn func(context.Context, types.Notice)) Option {
	return func(o *Orchestrator) { o.alertFn = fn }
}

// WithClock overrides the real-time clock (useful for testing).
func WithClock(c await.Clock) Option {
	return func(o *Orchestrator) { o.clock = c }
}

// WithLogger sets the orchestrator's logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithProgress registers a callback invoked as soon as a run's identity is
// known, before its verdict, so callers can surface the reference URL while
// the wait is still in flight.
func WithProgress(fn func(orchestrationID, runID, referenceURL string)) Option {
	return func(o *Orchestrator) { o.progress = fn }
}

// New creates an Orchestrator over the given backends. Later backends of the
// same kind replace earlier ones.
func New(backends []backend.Backend, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		backends: make(map[types.BackendKind]backend.Backend, len(backends)),
		journal:  memory.New(),
		clock:    await.SystemClock{},
		logger:   slog.Default(),
	}
	for _, b := range backends {
		o.backends[b.Kind()] = b
	}
	for _, opt := range opts {
		opt(o)
	}
	o.tracer = otel.Tracer(instrumentationName)
	hist, err := otel.Meter(instrumentationName).Float64Histogram(
		"baton.orchestration.duration",
		metric.WithDescription("End-to-end duration of one orchestration."),
		metric.WithUnit("s"),
	)
	if err != nil {
		o.logger.Warn("orchestration duration histogram unavailable", "error", err)
	} else {
		o.duration = hist
	}
	return o
}

// Kinds returns the configured backend kinds in stable order.
func (o *Orchestrator) Kinds() []types.BackendKind {
	kinds := make([]types.BackendKind, 0, len(o.backends))
	for k := range o.backends {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// HasBackend reports whether a backend of the given kind is configured.
func (o *Orchestrator) HasBackend(kind types.BackendKind) bool {
	_, ok := o.backends[kind]
	return ok
}

// RunAndAwait dispatches the requested workflow, follows the run it caused to
// completion, and returns the terminal result. Zero poll settings fall back
// to the package defaults; a zero DispatchedAt is stamped with the current
// time before dispatch.
//
// A run that completes, or that outlives the shared deadline after being
// identified, yields a Result with a terminal verdict and a nil error. A
// dispatch rejection, a run that never appears, or a caller abort yields an
// *types.OrchestrationError naming the stage that failed.
func (o *Orchestrator) RunAndAwait(ctx context.Context, req types.TriggerRequest, cfg types.PollConfig) (types.Result, error) {
	return o.run(ctx, ulid.Make().String(), req, cfg)
}

// Start launches an orchestration in the background and returns its id
// immediately. Progress and the terminal verdict are visible through the
// journal; failures are logged and alerted like synchronous runs. ctx bounds
// the background run, so pass one that outlives the caller's request.
func (o *Orchestrator) Start(ctx context.Context, req types.TriggerRequest, cfg types.PollConfig) string {
	id := ulid.Make().String()
	go func() {
		_, _ = o.run(ctx, id, req, cfg)
	}()
	return id
}

func (o *Orchestrator) run(ctx context.Context, id string, req types.TriggerRequest, cfg types.PollConfig) (types.Result, error) {
	cfg = withDefaults(cfg)
	started := o.clock.Now()

	logger := o.logger.With("orchestrationId", id, "backend", req.Backend, "workflow", req.Workflow)

	attrs := []attribute.KeyValue{
		attribute.String("baton.orchestration_id", id),
		attribute.String("baton.backend", string(req.Backend)),
		attribute.String("baton.workflow", req.Workflow),
	}
	if req.Ref != "" {
		attrs = append(attrs, attribute.String("baton.ref", req.Ref))
	}
	ctx, span := o.tracer.Start(ctx, "orchestration", trace.WithAttributes(attrs...))
	defer span.End()

	metrics.OrchestrationsStarted.Add(1)

	b, ok := o.backends[req.Backend]
	if !ok {
		err := fmt.Errorf("no backend configured for kind %q", req.Backend)
		metrics.OrchestrationErrors.Add(1)
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, types.StageDispatch)
		logger.Error("orchestration failed", "stage", types.StageDispatch, "error", err)
		o.notify(ctx, types.Notice{
			Level:           types.NoticeCritical,
			OrchestrationID: id,
			Backend:         req.Backend,
			Workflow:        req.Workflow,
			Message:         err.Error(),
		})
		return types.Result{OrchestrationID: id}, &types.OrchestrationError{ID: id, Stage: types.StageDispatch, Err: err}
	}

	if req.DispatchedAt.IsZero() {
		req.DispatchedAt = o.clock.Now()
	}

	logger.Info("dispatching workflow", "ref", req.Ref)
	metrics.DispatchesTotal.Add(1)
	ack, err := b.Dispatch(ctx, req)
	if err != nil {
		metrics.DispatchesFailed.Add(1)
		metrics.OrchestrationErrors.Add(1)
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, types.StageDispatch)
		logger.Error("dispatch failed", "error", err)
		o.notify(ctx, types.Notice{
			Level:           types.NoticeCritical,
			OrchestrationID: id,
			Backend:         req.Backend,
			Workflow:        req.Workflow,
			Message:         fmt.Sprintf("dispatch failed: %v", err),
		})
		return types.Result{OrchestrationID: id}, &types.OrchestrationError{ID: id, Stage: types.StageDispatch, Err: err}
	}

	if err := o.journal.SaveDispatch(ctx, journal.Record{
		ID:           id,
		Backend:      req.Backend,
		Workflow:     req.Workflow,
		Ref:          req.Ref,
		RunID:        ack.RunID,
		ReferenceURL: ack.ReferenceURL,
		State:        journal.StateDispatched,
		StartedAt:    req.DispatchedAt,
		UpdatedAt:    req.DispatchedAt,
	}); err != nil {
		logger.Warn("journal write failed", "error", err)
	}

	// Track run identity as correlation reports it so error paths and the
	// timeout verdict can still reference the run.
	runID, refURL := ack.RunID, ack.ReferenceURL

	poller := await.New(b, cfg,
		await.WithClock(o.clock),
		await.WithLogger(logger),
		await.WithProgress(func(rid, url string) {
			runID, refURL = rid, url
			metrics.RunsCorrelated.Add(1)
			span.AddEvent("run correlated", trace.WithAttributes(
				attribute.String("baton.run_id", rid),
			))
			if err := o.journal.MarkCorrelated(ctx, id, rid, url, o.clock.Now()); err != nil {
				logger.Warn("journal write failed", "error", err)
			}
			if o.progress != nil {
				o.progress(id, rid, url)
			}
		}),
	)

	comp, err := poller.Await(ctx, req, ack)
	elapsed := o.clock.Now().Sub(started)

	if err == nil {
		v := verdict.Resolve(comp.Outcome, cfg.CancelledIsFailure)
		return o.finish(ctx, span, logger, id, req, v, comp.RunID, comp.ReferenceURL, elapsed)
	}
	if errors.Is(err, types.ErrDeadlineExceeded) {
		return o.finish(ctx, span, logger, id, req, verdict.TimedOut(cfg.MaxWait), runID, refURL, elapsed)
	}

	metrics.OrchestrationErrors.Add(1)
	span.RecordError(err)
	o.recordDuration(ctx, elapsed, "ERROR")
	result := types.Result{OrchestrationID: id, RunID: runID, ReferenceURL: refURL, Elapsed: elapsed}

	var rnf *types.RunNotFoundError
	switch {
	case errors.As(err, &rnf):
		metrics.RunsNotFound.Add(1)
		stage := types.StageCorrelate
		if rnf.RunID != "" {
			stage = types.StageAwait
		}
		span.SetStatus(otelcodes.Error, stage)
		logger.Error("orchestration failed", "stage", stage, "error", err)
		o.notify(ctx, types.Notice{
			Level:           types.NoticeCritical,
			OrchestrationID: id,
			Backend:         req.Backend,
			Workflow:        req.Workflow,
			RunID:           runID,
			ReferenceURL:    refURL,
			Message:         err.Error(),
		})
		return result, &types.OrchestrationError{ID: id, Stage: stage, Err: err}

	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		// The caller chose to stop; no notice.
		span.SetStatus(otelcodes.Error, types.StageAborted)
		logger.Info("orchestration aborted by caller", "runId", runID, "elapsed", elapsed)
		return result, &types.OrchestrationError{ID: id, Stage: types.StageAborted, Err: err}

	default:
		span.SetStatus(otelcodes.Error, types.StageAwait)
		logger.Error("orchestration failed", "stage", types.StageAwait, "error", err)
		o.notify(ctx, types.Notice{
			Level:           types.NoticeCritical,
			OrchestrationID: id,
			Backend:         req.Backend,
			Workflow:        req.Workflow,
			RunID:           runID,
			ReferenceURL:    refURL,
			Message:         fmt.Sprintf("awaiting run failed: %v", err),
		})
		return result, &types.OrchestrationError{ID: id, Stage: types.StageAwait, Err: err}
	}
}

// RunAll runs one orchestration per request concurrently and returns results
// indexed like reqs. Orchestrations are independent: an error in one never
// cancels the others, and every request runs to its own terminal outcome. The
// returned error is the first orchestration error observed, if any.
func (o *Orchestrator) RunAll(ctx context.Context, reqs []types.TriggerRequest, cfg types.PollConfig) ([]types.Result, error) {
	results := make([]types.Result, len(reqs))
	var g errgroup.Group
	for i, req := range reqs {
		g.Go(func() error {
			var err error
			results[i], err = o.RunAndAwait(ctx, req, cfg)
			return err
		})
	}
	err := g.Wait()
	return results, err
}

// finish records a terminal verdict: journal, metrics, span, notice, log.
func (o *Orchestrator) finish(ctx context.Context, span trace.Span, logger *slog.Logger, id string, req types.TriggerRequest, v types.Verdict, runID, refURL string, elapsed time.Duration) (types.Result, error) {
	countVerdict(v.Code)
	span.SetAttributes(attribute.String("baton.verdict", string(v.Code)))
	o.recordDuration(ctx, elapsed, string(v.Code))

	if err := o.journal.MarkVerdict(ctx, id, v, o.clock.Now()); err != nil {
		logger.Warn("journal write failed", "error", err)
	}

	o.notify(ctx, types.Notice{
		Level:           noticeLevel(v.Code),
		OrchestrationID: id,
		Backend:         req.Backend,
		Workflow:        req.Workflow,
		RunID:           runID,
		ReferenceURL:    refURL,
		Message:         noticeMessage(req, v),
		Details: map[string]string{
			"verdict": string(v.Code),
			"elapsed": elapsed.Round(time.Second).String(),
		},
	})
	logger.Info("orchestration finished",
		"verdict", v.Code, "reason", v.Reason, "runId", runID, "elapsed", elapsed)

	return types.Result{
		OrchestrationID: id,
		Verdict:         v,
		RunID:           runID,
		ReferenceURL:    refURL,
		Elapsed:         elapsed,
	}, nil
}

// notify invokes the alert callback when one is registered, stamping the
// notice time.
func (o *Orchestrator) notify(ctx context.Context, n types.Notice) {
	if o.alertFn == nil {
		return
	}
	if n.Timestamp.IsZero() {
		n.Timestamp = o.clock.Now()
	}
	o.alertFn(ctx, n)
}

func (o *Orchestrator) recordDuration(ctx context.Context, elapsed time.Duration, outcome string) {
	if o.duration == nil {
		return
	}
	o.duration.Record(ctx, elapsed.Seconds(),
		metric.WithAttributes(attribute.String("baton.outcome", outcome)))
}

// withDefaults fills zero poll settings with the package defaults so the
// timeout verdict reports the effective wait, not the zero value.
func withDefaults(cfg types.PollConfig) types.PollConfig {
	if cfg.Interval <= 0 {
		cfg.Interval = types.DefaultPollInterval
	}
	if cfg.MaxWait <= 0 {
		cfg.MaxWait = types.DefaultMaxWait
	}
	if cfg.ClockSkew <= 0 {
		cfg.ClockSkew = types.DefaultClockSkew
	}
	if cfg.RetryBudget <= 0 {
		cfg.RetryBudget = types.DefaultRetryBudget
	}
	return cfg
}

func countVerdict(code types.VerdictCode) {
	switch code {
	case types.VerdictSucceeded:
		metrics.OrchestrationsSucceeded.Add(1)
	case types.VerdictFailed:
		metrics.OrchestrationsFailed.Add(1)
	case types.VerdictCancelled:
		metrics.OrchestrationsCancelled.Add(1)
	case types.VerdictTimedOut:
		metrics.OrchestrationsTimedOut.Add(1)
	}
}

func noticeLevel(code types.VerdictCode) types.NoticeLevel {
	switch code {
	case types.VerdictSucceeded:
		return types.NoticeInfo
	case types.VerdictCancelled:
		return types.NoticeWarning
	default:
		return types.NoticeCritical
	}
}

func noticeMessage(req types.TriggerRequest, v types.Verdict) string {
	switch v.Code {
	case types.VerdictSucceeded:
		return fmt.Sprintf("workflow %q succeeded", req.Workflow)
	case types.VerdictCancelled:
		return fmt.Sprintf("workflow %q was cancelled", req.Workflow)
	case types.VerdictTimedOut:
		return fmt.Sprintf("workflow %q %s", req.Workflow, v.Reason)
	default:
		return fmt.Sprintf("workflow %q failed: %s", req.Workflow, v.Reason)
	}
}

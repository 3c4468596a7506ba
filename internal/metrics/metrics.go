// Package metrics exposes runtime counters via expvar.
package metrics

import "expvar"

var (
	OrchestrationsStarted   = expvar.NewInt("orchestrations_started")
	OrchestrationsSucceeded = expvar.NewInt("orchestrations_succeeded")
	OrchestrationsFailed    = expvar.NewInt("orchestrations_failed")
	OrchestrationsCancelled = expvar.NewInt("orchestrations_cancelled")
	OrchestrationsTimedOut  = expvar.NewInt("orchestrations_timed_out")
	OrchestrationErrors     = expvar.NewInt("orchestration_errors")
	DispatchesTotal         = expvar.NewInt("dispatches_total")
	DispatchesFailed        = expvar.NewInt("dispatches_failed")
	RunsCorrelated          = expvar.NewInt("runs_correlated")
	RunsNotFound            = expvar.NewInt("runs_not_found")
	NoticesDispatched       = expvar.NewInt("notices_dispatched")
	NoticesFailed           = expvar.NewInt("notices_failed")
)

package main

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/baton-ci/baton/internal/backend"
	"github.com/baton-ci/baton/internal/journal/memory"
	"github.com/baton-ci/baton/internal/orchestrator"
	"github.com/baton-ci/baton/internal/testutil"
	"github.com/baton-ci/baton/pkg/types"
)

var testStart = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func testDeps(t *testing.T, fb *testutil.FakeBackend) *Deps {
	t.Helper()
	orch := orchestrator.New([]backend.Backend{fb},
		orchestrator.WithJournal(memory.New()),
		orchestrator.WithClock(testutil.NewFakeClock(testStart)),
	)
	return &Deps{
		Orchestrator: orch,
		Defaults:     types.DefaultPollConfig(),
		Logger:       slog.Default(),
	}
}

func hintedBackend() *testutil.FakeBackend {
	fb := testutil.NewFakeBackend(types.BackendCloudWorkflows)
	fb.DispatchFn = func(_ context.Context, req types.TriggerRequest) (types.DispatchAck, error) {
		return types.DispatchAck{
			RunID:        "exec-42",
			ReferenceURL: "https://console.cloud.google.com/workflows/exec-42",
			DispatchedAt: req.DispatchedAt,
		}, nil
	}
	fb.StateFn = func(_ context.Context, _ types.TriggerRequest, _ string) (types.RunState, error) {
		return types.CompletedState(types.OutcomeSuccess, "SUCCEEDED"), nil
	}
	return fb
}

func TestHandleOrchestrate_Success(t *testing.T) {
	d := testDeps(t, hintedBackend())

	resp := handleOrchestrate(context.Background(), d, OrchestrateRequest{
		Workflow: "release-pipeline",
	})

	assert.Empty(t, resp.Error)
	assert.Equal(t, string(types.VerdictSucceeded), resp.Verdict)
	assert.Equal(t, "exec-42", resp.RunID)
	assert.Equal(t, "https://console.cloud.google.com/workflows/exec-42", resp.ReferenceURL)
	assert.NotEmpty(t, resp.OrchestrationID)
}

func TestHandleOrchestrate_MissingWorkflow(t *testing.T) {
	d := testDeps(t, hintedBackend())

	resp := handleOrchestrate(context.Background(), d, OrchestrateRequest{})
	assert.Equal(t, "workflow is required", resp.Error)
	assert.Empty(t, resp.Verdict)
}

func TestHandleOrchestrate_UnknownBackend(t *testing.T) {
	d := testDeps(t, hintedBackend())

	resp := handleOrchestrate(context.Background(), d, OrchestrateRequest{
		Backend:  types.BackendJenkins,
		Workflow: "release-pipeline",
	})
	assert.Contains(t, resp.Error, `no backend configured for kind "jenkins"`)
}

func TestHandleOrchestrate_PollOverrides(t *testing.T) {
	fb := testutil.NewFakeBackend(types.BackendGitHubActions)
	// Run never appears, so the correlation window closes at max wait.
	d := testDeps(t, fb)

	resp := handleOrchestrate(context.Background(), d, OrchestrateRequest{
		Workflow: "deploy.yml",
		Poll:     types.PollSettings{PollIntervalSeconds: 5, MaxWaitMinutes: 1},
	})
	assert.Contains(t, resp.Error, "no run for workflow")
	assert.Contains(t, resp.Error, "1m0s")
}

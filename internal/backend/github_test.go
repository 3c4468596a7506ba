package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/baton-ci/baton/pkg/types"
)

func newTestGitHub(t *testing.T, url string) *GitHub {
	t.Helper()
	g, err := NewGitHub(types.BackendConfig{
		Kind:    types.BackendGitHubActions,
		BaseURL: url,
		Owner:   "octo",
		Project: "widgets",
		Token:   "gh-token",
	})
	require.NoError(t, err)
	return g
}

func TestNewGitHub_Validation(t *testing.T) {
	_, err := NewGitHub(types.BackendConfig{Project: "widgets", Token: "x"})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "owner is required")

	_, err = NewGitHub(types.BackendConfig{Owner: "octo", Project: "widgets"})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "token is required")
}

func TestGitHubDispatch_Success(t *testing.T) {
	var gotBody map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "POST", r.Method)
		assert.Equal(t, "/repos/octo/widgets/actions/workflows/deploy.yml/dispatches", r.URL.Path)
		assert.Equal(t, "Bearer gh-token", r.Header.Get("Authorization"))
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	g := newTestGitHub(t, srv.URL)
	dispatched := time.Now().UTC()
	ack, err := g.Dispatch(context.Background(), types.TriggerRequest{
		Workflow:     "deploy.yml",
		Ref:          "main",
		Inputs:       map[string]string{"env": "staging"},
		DispatchedAt: dispatched,
	})
	require.NoError(t, err)

	assert.Empty(t, ack.RunID, "workflow_dispatch returns no run identity")
	assert.Equal(t, dispatched, ack.DispatchedAt)
	assert.Equal(t, "main", gotBody["ref"])
	inputs, _ := gotBody["inputs"].(map[string]interface{})
	assert.Equal(t, "staging", inputs["env"])
}

func TestGitHubDispatch_Rejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"message":"Required input missing"}`))
	}))
	defer srv.Close()

	g := newTestGitHub(t, srv.URL)
	_, err := g.Dispatch(context.Background(), types.TriggerRequest{Workflow: "deploy.yml", Ref: "main"})

	var de *types.DispatchError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, http.StatusUnprocessableEntity, de.Status)
	assert.Contains(t, de.Msg, "Required input missing")
}

func TestGitHubListCandidateRuns(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "workflow_dispatch", r.URL.Query().Get("event"))
		assert.Equal(t, "main", r.URL.Query().Get("branch"))
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"workflow_runs": []map[string]interface{}{
				{"id": 42002, "created_at": "2026-03-01T10:00:05Z", "html_url": "https://github.com/octo/widgets/actions/runs/42002", "status": "queued"},
				{"id": 42001, "created_at": "2026-03-01T09:55:00Z", "html_url": "https://github.com/octo/widgets/actions/runs/42001", "status": "completed"},
			},
		})
	}))
	defer srv.Close()

	g := newTestGitHub(t, srv.URL)
	runs, err := g.ListCandidateRuns(context.Background(), types.TriggerRequest{Workflow: "deploy.yml", Ref: "main"})
	require.NoError(t, err)
	require.Len(t, runs, 2)

	assert.Equal(t, "42002", runs[0].ID)
	assert.Equal(t, time.Date(2026, 3, 1, 10, 0, 5, 0, time.UTC), runs[0].CreatedAt)
	assert.Equal(t, "https://github.com/octo/widgets/actions/runs/42002", runs[0].ReferenceURL)
	assert.Equal(t, "queued", runs[0].RawStatus)
}

func TestGitHubGetRunState(t *testing.T) {
	tests := []struct {
		name       string
		status     string
		conclusion string
		phase      types.RunPhase
		outcome    types.Outcome
	}{
		{"queued", "queued", "", types.PhasePending, ""},
		{"in_progress", "in_progress", "", types.PhaseRunning, ""},
		{"success", "completed", "success", types.PhaseCompleted, types.OutcomeSuccess},
		{"failure", "completed", "failure", types.PhaseCompleted, types.OutcomeFailure},
		{"timed_out", "completed", "timed_out", types.PhaseCompleted, types.OutcomeFailure},
		{"cancelled", "completed", "cancelled", types.PhaseCompleted, types.OutcomeCancelled},
		{"skipped", "completed", "skipped", types.PhaseCompleted, types.OutcomeNeutral},
		{"action_required", "completed", "action_required", types.PhaseCompleted, types.OutcomeUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/repos/octo/widgets/actions/runs/42002", r.URL.Path)
				_ = json.NewEncoder(w).Encode(map[string]interface{}{
					"status":     tt.status,
					"conclusion": tt.conclusion,
					"html_url":   "https://github.com/octo/widgets/actions/runs/42002",
				})
			}))
			defer srv.Close()

			g := newTestGitHub(t, srv.URL)
			state, err := g.GetRunState(context.Background(), types.TriggerRequest{Workflow: "deploy.yml"}, "42002")
			require.NoError(t, err)
			assert.Equal(t, tt.phase, state.Phase)
			assert.Equal(t, tt.outcome, state.Outcome)
			assert.Equal(t, "https://github.com/octo/widgets/actions/runs/42002", state.ReferenceURL)
		})
	}
}

func TestGitHubGetRunState_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	g := newTestGitHub(t, srv.URL)
	_, err := g.GetRunState(context.Background(), types.TriggerRequest{Workflow: "deploy.yml"}, "99999")

	var nf *types.RunNotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "99999", nf.RunID)
}

func TestGitHubGetRunState_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	g := newTestGitHub(t, srv.URL)
	_, err := g.GetRunState(context.Background(), types.TriggerRequest{Workflow: "deploy.yml"}, "42002")
	assert.True(t, types.IsTransient(err), "5xx must be retryable, got %v", err)
}

func TestGitHubGetRunState_Idempotent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"status": "completed", "conclusion": "success"})
	}))
	defer srv.Close()

	g := newTestGitHub(t, srv.URL)
	req := types.TriggerRequest{Workflow: "deploy.yml"}

	first, err := g.GetRunState(context.Background(), req, "42002")
	require.NoError(t, err)
	second, err := g.GetRunState(context.Background(), req, "42002")
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestGitHubDispatch_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // connection refused from here on

	g := newTestGitHub(t, srv.URL)
	_, err := g.Dispatch(context.Background(), types.TriggerRequest{Workflow: "deploy.yml", Ref: "main"})

	var de *types.DispatchError
	assert.True(t, errors.As(err, &de), "dispatch failures are never transient, got %v", err)
}

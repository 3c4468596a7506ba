package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/baton-ci/baton/pkg/types"
)

func newTestJenkins(t *testing.T, url string) *Jenkins {
	t.Helper()
	j, err := NewJenkins(types.BackendConfig{
		Kind:     types.BackendJenkins,
		BaseURL:  url,
		Username: "deployer",
		Token:    "jk-token",
	})
	require.NoError(t, err)
	return j
}

func TestNewJenkins_Validation(t *testing.T) {
	_, err := NewJenkins(types.BackendConfig{Username: "u", Token: "t"})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "baseUrl is required")
}

func TestJenkinsDispatch_WithParameters(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/job/deploy-widgets/buildWithParameters", r.URL.Path)

		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		assert.Equal(t, "deployer", user)
		assert.Equal(t, "jk-token", pass)

		require.NoError(t, r.ParseForm())
		assert.Equal(t, "staging", r.PostForm.Get("env"))
		assert.Equal(t, "main", r.PostForm.Get("ref"))

		w.Header().Set("Location", "http://"+r.Host+"/queue/item/77/")
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	j := newTestJenkins(t, srv.URL)
	ack, err := j.Dispatch(context.Background(), types.TriggerRequest{
		Workflow: "deploy-widgets",
		Ref:      "main",
		Inputs:   map[string]string{"env": "staging"},
	})
	require.NoError(t, err)
	assert.Empty(t, ack.RunID, "queue items are not build numbers")
}

func TestJenkinsDispatch_NoParametersUsesBuild(t *testing.T) {
	var path string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	j := newTestJenkins(t, server.URL)
	_, err := j.Dispatch(context.Background(), types.TriggerRequest{Workflow: "nightly"})
	require.NoError(t, err)
	assert.Equal(t, "/job/nightly/build", path)
}

func TestJenkinsDispatch_Rejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte("missing Crumb"))
	}))
	defer server.Close()

	j := newTestJenkins(t, server.URL)
	_, err := j.Dispatch(context.Background(), types.TriggerRequest{Workflow: "deploy-widgets"})

	var de *types.DispatchError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, http.StatusForbidden, de.Status)
}

func TestJenkinsJobPath_Folders(t *testing.T) {
	j := newTestJenkins(t, "http://jenkins.local")
	assert.Equal(t, "/job/team/job/app", j.jobPath("team/app"))
	assert.Equal(t, "/job/nightly", j.jobPath("nightly"))
}

func TestJenkinsListCandidateRuns(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/job/deploy-widgets/api/json", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"builds": []map[string]interface{}{
				{"number": 104, "timestamp": 1767261605000, "url": "http://jenkins.local/job/deploy-widgets/104/"},
				{"number": 103, "timestamp": 1767261300000, "url": "http://jenkins.local/job/deploy-widgets/103/"},
			},
		})
	}))
	defer server.Close()

	j := newTestJenkins(t, server.URL)
	runs, err := j.ListCandidateRuns(context.Background(), types.TriggerRequest{Workflow: "deploy-widgets"})
	require.NoError(t, err)
	require.Len(t, runs, 2)

	assert.Equal(t, "104", runs[0].ID)
	assert.Equal(t, time.UnixMilli(1767261605000).UTC(), runs[0].CreatedAt)
	assert.Equal(t, "http://jenkins.local/job/deploy-widgets/104/", runs[0].ReferenceURL)
}

func TestJenkinsGetRunState(t *testing.T) {
	tests := []struct {
		name     string
		building bool
		result   string
		phase    types.RunPhase
		outcome  types.Outcome
	}{
		{"building", true, "", types.PhaseRunning, ""},
		{"queued", false, "", types.PhasePending, ""},
		{"success", false, "SUCCESS", types.PhaseCompleted, types.OutcomeSuccess},
		{"failure", false, "FAILURE", types.PhaseCompleted, types.OutcomeFailure},
		{"aborted", false, "ABORTED", types.PhaseCompleted, types.OutcomeCancelled},
		{"unstable", false, "UNSTABLE", types.PhaseCompleted, types.OutcomeNeutral},
		{"not_built", false, "NOT_BUILT", types.PhaseCompleted, types.OutcomeNeutral},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/job/deploy-widgets/104/api/json", r.URL.Path)
				_ = json.NewEncoder(w).Encode(map[string]interface{}{
					"building": tt.building,
					"result":   tt.result,
					"url":      "http://jenkins.local/job/deploy-widgets/104/",
				})
			}))
			defer server.Close()

			j := newTestJenkins(t, server.URL)
			state, err := j.GetRunState(context.Background(), types.TriggerRequest{Workflow: "deploy-widgets"}, "104")
			require.NoError(t, err)
			assert.Equal(t, tt.phase, state.Phase)
			assert.Equal(t, tt.outcome, state.Outcome)
		})
	}
}

func TestJenkinsGetRunState_NotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	j := newTestJenkins(t, server.URL)
	_, err := j.GetRunState(context.Background(), types.TriggerRequest{Workflow: "deploy-widgets"}, "999")

	var nf *types.RunNotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "999", nf.RunID)
}

package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/baton-ci/baton/pkg/types"
)

const (
	defaultGitHubBaseURL = "https://api.github.com"
	githubListPageSize   = 30
)

// GitHub dispatches and inspects GitHub Actions workflow runs.
//
// The workflow_dispatch API acknowledges with 204 and no body, so the run
// caused by a dispatch is only discoverable by correlation over the recent
// run listing.
type GitHub struct {
	baseURL   string
	owner     string
	repo      string
	token     string
	transport *Transport
}

// NewGitHub creates a GitHub Actions adapter.
func NewGitHub(cfg types.BackendConfig) (*GitHub, error) {
	if cfg.Owner == "" {
		return nil, fmt.Errorf("github-actions backend: owner is required")
	}
	if cfg.Project == "" {
		return nil, fmt.Errorf("github-actions backend: project (repository) is required")
	}
	if cfg.Token == "" {
		return nil, fmt.Errorf("github-actions backend: token is required")
	}
	base := cfg.BaseURL
	if base == "" {
		base = defaultGitHubBaseURL
	}
	return &GitHub{
		baseURL:   strings.TrimRight(base, "/"),
		owner:     cfg.Owner,
		repo:      cfg.Project,
		token:     cfg.Token,
		transport: NewTransport("github-actions", cfg.MaxInFlight),
	}, nil
}

// Kind identifies the backend family.
func (g *GitHub) Kind() types.BackendKind { return types.BackendGitHubActions }

func (g *GitHub) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+g.token)
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
}

// Dispatch fires a workflow_dispatch event for req.Workflow on req.Ref.
func (g *GitHub) Dispatch(ctx context.Context, req types.TriggerRequest) (types.DispatchAck, error) {
	endpoint := fmt.Sprintf("%s/repos/%s/%s/actions/workflows/%s/dispatches",
		g.baseURL, g.owner, g.repo, url.PathEscape(req.Workflow))

	payload := map[string]interface{}{"ref": req.Ref}
	if len(req.Inputs) > 0 {
		payload["inputs"] = req.Inputs
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return types.DispatchAck{}, &types.DispatchError{
			Backend: g.Kind(), Workflow: req.Workflow, Msg: fmt.Sprintf("marshaling inputs: %v", err),
		}
	}

	httpReq, err := newJSONRequest(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return types.DispatchAck{}, &types.DispatchError{Backend: g.Kind(), Workflow: req.Workflow, Msg: err.Error()}
	}
	g.setHeaders(httpReq)

	resp, err := g.transport.Do(httpReq)
	if err != nil {
		// A dispatch that may or may not have reached the backend is never
		// retried: a second attempt could start a duplicate run.
		return types.DispatchAck{}, &types.DispatchError{Backend: g.Kind(), Workflow: req.Workflow, Msg: err.Error()}
	}
	if resp.StatusCode != http.StatusNoContent {
		return types.DispatchAck{}, &types.DispatchError{
			Backend: g.Kind(), Workflow: req.Workflow,
			Status: resp.StatusCode, Msg: readErrorBody(resp),
		}
	}
	_ = resp.Body.Close()

	return types.DispatchAck{DispatchedAt: req.DispatchedAt}, nil
}

// ListCandidateRuns returns recent workflow_dispatch runs for the target
// workflow and ref, most recent first.
func (g *GitHub) ListCandidateRuns(ctx context.Context, req types.TriggerRequest) ([]types.CandidateRun, error) {
	endpoint := fmt.Sprintf("%s/repos/%s/%s/actions/workflows/%s/runs?event=workflow_dispatch&per_page=%d",
		g.baseURL, g.owner, g.repo, url.PathEscape(req.Workflow), githubListPageSize)
	if req.Ref != "" {
		endpoint += "&branch=" + url.QueryEscape(req.Ref)
	}

	httpReq, err := newJSONRequest(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("github-actions: listing runs: %w", err)
	}
	g.setHeaders(httpReq)

	resp, err := g.transport.Do(httpReq)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("github-actions: listing runs: status %d: %s", resp.StatusCode, readErrorBody(resp))
	}
	defer func() { _ = resp.Body.Close() }()

	var out struct {
		WorkflowRuns []struct {
			ID        int64     `json:"id"`
			CreatedAt time.Time `json:"created_at"`
			HTMLURL   string    `json:"html_url"`
			Status    string    `json:"status"`
		} `json:"workflow_runs"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("github-actions: parsing run list: %w", err)
	}

	runs := make([]types.CandidateRun, 0, len(out.WorkflowRuns))
	for _, r := range out.WorkflowRuns {
		runs = append(runs, types.CandidateRun{
			ID:           strconv.FormatInt(r.ID, 10),
			CreatedAt:    r.CreatedAt,
			ReferenceURL: r.HTMLURL,
			RawStatus:    r.Status,
		})
	}
	return runs, nil
}

// GetRunState fetches one workflow run and normalizes its status/conclusion.
func (g *GitHub) GetRunState(ctx context.Context, _ types.TriggerRequest, runID string) (types.RunState, error) {
	endpoint := fmt.Sprintf("%s/repos/%s/%s/actions/runs/%s", g.baseURL, g.owner, g.repo, url.PathEscape(runID))

	httpReq, err := newJSONRequest(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return types.RunState{}, fmt.Errorf("github-actions: fetching run: %w", err)
	}
	g.setHeaders(httpReq)

	resp, err := g.transport.Do(httpReq)
	if err != nil {
		return types.RunState{}, err
	}
	if resp.StatusCode == http.StatusNotFound {
		_ = resp.Body.Close()
		return types.RunState{}, &types.RunNotFoundError{Backend: g.Kind(), RunID: runID}
	}
	if resp.StatusCode != http.StatusOK {
		return types.RunState{}, fmt.Errorf("github-actions: fetching run: status %d: %s", resp.StatusCode, readErrorBody(resp))
	}
	defer func() { _ = resp.Body.Close() }()

	var out struct {
		Status     string `json:"status"`
		Conclusion string `json:"conclusion"`
		HTMLURL    string `json:"html_url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return types.RunState{}, fmt.Errorf("github-actions: parsing run: %w", err)
	}

	state := normalizeGitHubStatus(out.Status, out.Conclusion)
	state.ReferenceURL = out.HTMLURL
	return state, nil
}

// normalizeGitHubStatus maps GitHub's status/conclusion vocabulary onto the
// uniform RunState.
func normalizeGitHubStatus(status, conclusion string) types.RunState {
	switch status {
	case "completed":
		return types.CompletedState(mapGitHubConclusion(conclusion), conclusion)
	case "in_progress":
		return types.RunningState(status)
	default:
		// queued, waiting, requested, pending
		return types.PendingState(status)
	}
}

func mapGitHubConclusion(conclusion string) types.Outcome {
	switch conclusion {
	case "success":
		return types.OutcomeSuccess
	case "failure", "timed_out", "startup_failure":
		return types.OutcomeFailure
	case "cancelled":
		return types.OutcomeCancelled
	case "neutral", "skipped":
		return types.OutcomeNeutral
	default:
		return types.OutcomeUnknown
	}
}

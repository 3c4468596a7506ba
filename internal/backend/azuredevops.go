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
	defaultAzureBaseURL = "https://dev.azure.com"
	azureAPIVersion     = "7.1"
)

// AzureDevOps dispatches and inspects Azure Pipelines runs.
//
// Unlike GitHub and Jenkins, the run-pipeline API returns the created run's
// identity synchronously, so the ack carries a run-id hint and correlation
// is skipped.
type AzureDevOps struct {
	baseURL      string
	organization string
	project      string
	token        string
	transport    *Transport
}

// NewAzureDevOps creates an Azure DevOps adapter.
func NewAzureDevOps(cfg types.BackendConfig) (*AzureDevOps, error) {
	if cfg.Owner == "" {
		return nil, fmt.Errorf("azure-devops backend: owner (organization) is required")
	}
	if cfg.Project == "" {
		return nil, fmt.Errorf("azure-devops backend: project is required")
	}
	if cfg.Token == "" {
		return nil, fmt.Errorf("azure-devops backend: token is required")
	}
	base := cfg.BaseURL
	if base == "" {
		base = defaultAzureBaseURL
	}
	return &AzureDevOps{
		baseURL:      strings.TrimRight(base, "/"),
		organization: cfg.Owner,
		project:      cfg.Project,
		token:        cfg.Token,
		transport:    NewTransport("azure-devops", cfg.MaxInFlight),
	}, nil
}

// Kind identifies the backend family.
func (a *AzureDevOps) Kind() types.BackendKind { return types.BackendAzureDevOps }

func (a *AzureDevOps) pipelineURL(pipelineID, suffix string) string {
	return fmt.Sprintf("%s/%s/%s/_apis/pipelines/%s/runs%s?api-version=%s",
		a.baseURL, url.PathEscape(a.organization), url.PathEscape(a.project),
		url.PathEscape(pipelineID), suffix, azureAPIVersion)
}

// azureRun is the subset of the pipeline run resource the adapter reads.
type azureRun struct {
	ID          int64     `json:"id"`
	State       string    `json:"state"`
	Result      string    `json:"result"`
	CreatedDate time.Time `json:"createdDate"`
	Links       struct {
		Web struct {
			Href string `json:"href"`
		} `json:"web"`
	} `json:"_links"`
}

// Dispatch starts a pipeline run. req.Workflow is the numeric pipeline id;
// req.Ref selects the branch; req.Inputs become template parameters.
func (a *AzureDevOps) Dispatch(ctx context.Context, req types.TriggerRequest) (types.DispatchAck, error) {
	payload := map[string]interface{}{}
	if req.Ref != "" {
		payload["resources"] = map[string]interface{}{
			"repositories": map[string]interface{}{
				"self": map[string]interface{}{"refName": refName(req.Ref)},
			},
		}
	}
	if len(req.Inputs) > 0 {
		payload["templateParameters"] = req.Inputs
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return types.DispatchAck{}, &types.DispatchError{
			Backend: a.Kind(), Workflow: req.Workflow, Msg: fmt.Sprintf("marshaling parameters: %v", err),
		}
	}

	httpReq, err := newJSONRequest(ctx, http.MethodPost, a.pipelineURL(req.Workflow, ""), bytes.NewReader(body))
	if err != nil {
		return types.DispatchAck{}, &types.DispatchError{Backend: a.Kind(), Workflow: req.Workflow, Msg: err.Error()}
	}
	// Azure DevOps PATs go in the password slot of basic auth.
	httpReq.SetBasicAuth("", a.token)

	resp, err := a.transport.Do(httpReq)
	if err != nil {
		return types.DispatchAck{}, &types.DispatchError{Backend: a.Kind(), Workflow: req.Workflow, Msg: err.Error()}
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return types.DispatchAck{}, &types.DispatchError{
			Backend: a.Kind(), Workflow: req.Workflow,
			Status: resp.StatusCode, Msg: readErrorBody(resp),
		}
	}
	defer func() { _ = resp.Body.Close() }()

	var run azureRun
	if err := json.NewDecoder(resp.Body).Decode(&run); err != nil {
		return types.DispatchAck{}, &types.DispatchError{
			Backend: a.Kind(), Workflow: req.Workflow, Msg: fmt.Sprintf("parsing run: %v", err),
		}
	}

	return types.DispatchAck{
		RunID:        strconv.FormatInt(run.ID, 10),
		ReferenceURL: run.Links.Web.Href,
		DispatchedAt: req.DispatchedAt,
	}, nil
}

// ListCandidateRuns returns the pipeline's recent runs, most recent first.
func (a *AzureDevOps) ListCandidateRuns(ctx context.Context, req types.TriggerRequest) ([]types.CandidateRun, error) {
	httpReq, err := newJSONRequest(ctx, http.MethodGet, a.pipelineURL(req.Workflow, ""), http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("azure-devops: listing runs: %w", err)
	}
	httpReq.SetBasicAuth("", a.token)

	resp, err := a.transport.Do(httpReq)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("azure-devops: listing runs: status %d: %s", resp.StatusCode, readErrorBody(resp))
	}
	defer func() { _ = resp.Body.Close() }()

	var out struct {
		Value []azureRun `json:"value"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("azure-devops: parsing run list: %w", err)
	}

	runs := make([]types.CandidateRun, 0, len(out.Value))
	for _, r := range out.Value {
		runs = append(runs, types.CandidateRun{
			ID:           strconv.FormatInt(r.ID, 10),
			CreatedAt:    r.CreatedDate,
			ReferenceURL: r.Links.Web.Href,
			RawStatus:    r.State,
		})
	}
	return runs, nil
}

// GetRunState fetches one run and normalizes its state/result fields.
func (a *AzureDevOps) GetRunState(ctx context.Context, req types.TriggerRequest, runID string) (types.RunState, error) {
	httpReq, err := newJSONRequest(ctx, http.MethodGet, a.pipelineURL(req.Workflow, "/"+url.PathEscape(runID)), http.NoBody)
	if err != nil {
		return types.RunState{}, fmt.Errorf("azure-devops: fetching run: %w", err)
	}
	httpReq.SetBasicAuth("", a.token)

	resp, err := a.transport.Do(httpReq)
	if err != nil {
		return types.RunState{}, err
	}
	if resp.StatusCode == http.StatusNotFound {
		_ = resp.Body.Close()
		return types.RunState{}, &types.RunNotFoundError{Backend: a.Kind(), RunID: runID}
	}
	if resp.StatusCode != http.StatusOK {
		return types.RunState{}, fmt.Errorf("azure-devops: fetching run: status %d: %s", resp.StatusCode, readErrorBody(resp))
	}
	defer func() { _ = resp.Body.Close() }()

	var run azureRun
	if err := json.NewDecoder(resp.Body).Decode(&run); err != nil {
		return types.RunState{}, fmt.Errorf("azure-devops: parsing run: %w", err)
	}

	state := normalizeAzureRun(run.State, run.Result)
	state.ReferenceURL = run.Links.Web.Href
	return state, nil
}

// normalizeAzureRun maps Azure's state/result vocabulary onto the uniform
// RunState.
func normalizeAzureRun(state, result string) types.RunState {
	switch state {
	case "completed":
		return types.CompletedState(mapAzureResult(result), result)
	case "inProgress", "canceling":
		return types.RunningState(state)
	default:
		// "unknown": accepted but not yet scheduled
		return types.PendingState(state)
	}
}

func mapAzureResult(result string) types.Outcome {
	switch result {
	case "succeeded":
		return types.OutcomeSuccess
	case "failed":
		return types.OutcomeFailure
	case "canceled":
		return types.OutcomeCancelled
	case "partiallySucceeded":
		return types.OutcomeNeutral
	default:
		return types.OutcomeUnknown
	}
}

// refName expands a bare branch name into a full Git ref.
func refName(ref string) string {
	if strings.HasPrefix(ref, "refs/") {
		return ref
	}
	return "refs/heads/" + ref
}

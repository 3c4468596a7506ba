package backend

import (
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

const jenkinsListLimit = 20

// Jenkins dispatches and inspects Jenkins builds.
//
// buildWithParameters acknowledges with 201 and a queue-item Location, but a
// queue item is not a build number, so the build caused by a dispatch is
// found by correlation over the job's build list.
type Jenkins struct {
	baseURL   string
	username  string
	token     string
	transport *Transport
}

// NewJenkins creates a Jenkins adapter.
func NewJenkins(cfg types.BackendConfig) (*Jenkins, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("jenkins backend: baseUrl is required")
	}
	if cfg.Username == "" {
		return nil, fmt.Errorf("jenkins backend: username is required")
	}
	if cfg.Token == "" {
		return nil, fmt.Errorf("jenkins backend: token is required")
	}
	return &Jenkins{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		username:  cfg.Username,
		token:     cfg.Token,
		transport: NewTransport("jenkins", cfg.MaxInFlight),
	}, nil
}

// Kind identifies the backend family.
func (j *Jenkins) Kind() types.BackendKind { return types.BackendJenkins }

// jobPath renders a possibly folder-nested job name ("team/app") into the
// /job/team/job/app form Jenkins expects.
func (j *Jenkins) jobPath(workflow string) string {
	parts := strings.Split(workflow, "/")
	var b strings.Builder
	for _, p := range parts {
		b.WriteString("/job/")
		b.WriteString(url.PathEscape(p))
	}
	return b.String()
}

// Dispatch enqueues a Jenkins build. req.Inputs become build parameters;
// req.Ref, when set, is passed as the "ref" parameter.
func (j *Jenkins) Dispatch(ctx context.Context, req types.TriggerRequest) (types.DispatchAck, error) {
	params := url.Values{}
	for k, v := range req.Inputs {
		params.Set(k, v)
	}
	if req.Ref != "" {
		params.Set("ref", req.Ref)
	}

	endpoint := j.baseURL + j.jobPath(req.Workflow) + "/buildWithParameters"
	if len(params) == 0 {
		endpoint = j.baseURL + j.jobPath(req.Workflow) + "/build"
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(params.Encode()))
	if err != nil {
		return types.DispatchAck{}, &types.DispatchError{Backend: j.Kind(), Workflow: req.Workflow, Msg: err.Error()}
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.SetBasicAuth(j.username, j.token)

	resp, err := j.transport.Do(httpReq)
	if err != nil {
		return types.DispatchAck{}, &types.DispatchError{Backend: j.Kind(), Workflow: req.Workflow, Msg: err.Error()}
	}
	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return types.DispatchAck{}, &types.DispatchError{
			Backend: j.Kind(), Workflow: req.Workflow,
			Status: resp.StatusCode, Msg: readErrorBody(resp),
		}
	}
	_ = resp.Body.Close()

	return types.DispatchAck{DispatchedAt: req.DispatchedAt}, nil
}

// ListCandidateRuns returns the job's recent builds, most recent first.
func (j *Jenkins) ListCandidateRuns(ctx context.Context, req types.TriggerRequest) ([]types.CandidateRun, error) {
	endpoint := fmt.Sprintf("%s%s/api/json?tree=builds[number,timestamp,url]{0,%d}",
		j.baseURL, j.jobPath(req.Workflow), jenkinsListLimit)

	httpReq, err := newJSONRequest(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("jenkins: listing builds: %w", err)
	}
	httpReq.SetBasicAuth(j.username, j.token)

	resp, err := j.transport.Do(httpReq)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("jenkins: listing builds: status %d: %s", resp.StatusCode, readErrorBody(resp))
	}
	defer func() { _ = resp.Body.Close() }()

	var out struct {
		Builds []struct {
			Number    int64  `json:"number"`
			Timestamp int64  `json:"timestamp"` // unix millis
			URL       string `json:"url"`
		} `json:"builds"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("jenkins: parsing build list: %w", err)
	}

	runs := make([]types.CandidateRun, 0, len(out.Builds))
	for _, b := range out.Builds {
		runs = append(runs, types.CandidateRun{
			ID:           strconv.FormatInt(b.Number, 10),
			CreatedAt:    time.UnixMilli(b.Timestamp).UTC(),
			ReferenceURL: b.URL,
		})
	}
	return runs, nil
}

// GetRunState fetches one build and normalizes its building/result fields.
func (j *Jenkins) GetRunState(ctx context.Context, req types.TriggerRequest, runID string) (types.RunState, error) {
	endpoint := fmt.Sprintf("%s%s/%s/api/json?tree=building,result,url",
		j.baseURL, j.jobPath(req.Workflow), url.PathEscape(runID))

	httpReq, err := newJSONRequest(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return types.RunState{}, fmt.Errorf("jenkins: fetching build: %w", err)
	}
	httpReq.SetBasicAuth(j.username, j.token)

	resp, err := j.transport.Do(httpReq)
	if err != nil {
		return types.RunState{}, err
	}
	if resp.StatusCode == http.StatusNotFound {
		_ = resp.Body.Close()
		return types.RunState{}, &types.RunNotFoundError{Backend: j.Kind(), RunID: runID}
	}
	if resp.StatusCode != http.StatusOK {
		return types.RunState{}, fmt.Errorf("jenkins: fetching build: status %d: %s", resp.StatusCode, readErrorBody(resp))
	}
	defer func() { _ = resp.Body.Close() }()

	var out struct {
		Building bool   `json:"building"`
		Result   string `json:"result"`
		URL      string `json:"url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return types.RunState{}, fmt.Errorf("jenkins: parsing build: %w", err)
	}

	state := normalizeJenkinsBuild(out.Building, out.Result)
	state.ReferenceURL = out.URL
	return state, nil
}

// normalizeJenkinsBuild maps Jenkins' building/result vocabulary onto the
// uniform RunState. A build that exists but has neither started producing a
// result nor reports building=true is still pending executor pickup.
func normalizeJenkinsBuild(building bool, result string) types.RunState {
	if building {
		return types.RunningState("building")
	}
	if result == "" {
		return types.PendingState("queued")
	}
	return types.CompletedState(mapJenkinsResult(result), result)
}

func mapJenkinsResult(result string) types.Outcome {
	switch result {
	case "SUCCESS":
		return types.OutcomeSuccess
	case "FAILURE":
		return types.OutcomeFailure
	case "ABORTED":
		return types.OutcomeCancelled
	case "UNSTABLE", "NOT_BUILT":
		return types.OutcomeNeutral
	default:
		return types.OutcomeUnknown
	}
}

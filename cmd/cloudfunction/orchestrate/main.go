// orchestrate Cloud Function dispatches a workflow on the configured backend
// and awaits its verdict over HTTP. One orchestration per request; size the
// function timeout above the orchestration's max wait.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/GoogleCloudPlatform/functions-framework-go/funcframework"
	"github.com/GoogleCloudPlatform/functions-framework-go/functions"

	"github.com/baton-ci/baton/internal/alert"
	"github.com/baton-ci/baton/internal/backend"
	"github.com/baton-ci/baton/internal/journal"
	fsjournal "github.com/baton-ci/baton/internal/journal/firestore"
	"github.com/baton-ci/baton/internal/journal/memory"
	"github.com/baton-ci/baton/internal/orchestrator"
	"github.com/baton-ci/baton/internal/secret"
	"github.com/baton-ci/baton/pkg/types"
)

// Deps holds shared dependencies for the function handler.
type Deps struct {
	Orchestrator *orchestrator.Orchestrator
	Defaults     types.PollConfig
	Logger       *slog.Logger
}

var (
	deps     *Deps
	depsOnce sync.Once
	depsErr  error
)

func init() {
	functions.HTTP("Orchestrate", handleHTTP)
}

func getDeps() (*Deps, error) {
	depsOnce.Do(func() {
		deps, depsErr = initDeps(context.Background())
	})
	return deps, depsErr
}

// initDeps creates shared dependencies from environment variables.
// Reads: BACKEND_KIND, BACKEND_OWNER, BACKEND_PROJECT, BACKEND_BASE_URL,
// BACKEND_USERNAME, BACKEND_TOKEN (secret reference), BACKEND_REGION,
// PROJECT_ID, JOURNAL_COLLECTION, PUBSUB_TOPIC, POLL_INTERVAL_SECONDS,
// MAX_WAIT_MINUTES.
func initDeps(ctx context.Context) (*Deps, error) {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	kind := types.BackendKind(os.Getenv("BACKEND_KIND"))
	if kind == "" {
		return nil, fmt.Errorf("BACKEND_KIND environment variable required")
	}
	projectID := os.Getenv("PROJECT_ID")

	token, err := secret.NewResolver().Resolve(ctx, os.Getenv("BACKEND_TOKEN"))
	if err != nil {
		return nil, fmt.Errorf("resolving backend token: %w", err)
	}

	b, err := backend.New(types.BackendConfig{
		Name:      "cloudfunction",
		Kind:      kind,
		BaseURL:   os.Getenv("BACKEND_BASE_URL"),
		Owner:     os.Getenv("BACKEND_OWNER"),
		Project:   os.Getenv("BACKEND_PROJECT"),
		Username:  os.Getenv("BACKEND_USERNAME"),
		Token:     token,
		Region:    os.Getenv("BACKEND_REGION"),
		ProjectID: projectID,
	})
	if err != nil {
		return nil, fmt.Errorf("creating backend: %w", err)
	}

	var store journal.Store
	if collection := os.Getenv("JOURNAL_COLLECTION"); collection != "" {
		if projectID == "" {
			return nil, fmt.Errorf("PROJECT_ID environment variable required for the Firestore journal")
		}
		store, err = fsjournal.New(ctx, &types.FirestoreConfig{
			ProjectID:  projectID,
			Collection: collection,
		})
		if err != nil {
			return nil, fmt.Errorf("creating Firestore journal: %w", err)
		}
	} else {
		store = memory.New()
	}

	var alertConfigs []types.AlertConfig
	if topicID := os.Getenv("PUBSUB_TOPIC"); topicID != "" {
		alertConfigs = append(alertConfigs, types.AlertConfig{
			Type:      types.SinkPubSub,
			ProjectID: projectID,
			TopicID:   topicID,
		})
	}
	dispatcher, err := alert.NewDispatcher(alertConfigs, logger)
	if err != nil {
		return nil, fmt.Errorf("creating alert dispatcher: %w", err)
	}

	orch := orchestrator.New([]backend.Backend{b},
		orchestrator.WithJournal(store),
		orchestrator.WithAlertFunc(dispatcher.Func()),
		orchestrator.WithLogger(logger),
	)

	defaults := types.DefaultPollConfig()
	if n, _ := strconv.Atoi(os.Getenv("POLL_INTERVAL_SECONDS")); n > 0 {
		defaults.Interval = time.Duration(n) * time.Second
	}
	if n, _ := strconv.Atoi(os.Getenv("MAX_WAIT_MINUTES")); n > 0 {
		defaults.MaxWait = time.Duration(n) * time.Minute
	}

	return &Deps{
		Orchestrator: orch,
		Defaults:     defaults,
		Logger:       logger,
	}, nil
}

// OrchestrateRequest is the HTTP request payload.
type OrchestrateRequest struct {
	Backend  types.BackendKind  `json:"backend,omitempty"`
	Owner    string             `json:"owner,omitempty"`
	Project  string             `json:"project,omitempty"`
	Workflow string             `json:"workflow"`
	Ref      string             `json:"ref,omitempty"`
	Inputs   map[string]string  `json:"inputs,omitempty"`
	Poll     types.PollSettings `json:"poll,omitempty"`
}

// OrchestrateResponse reports the terminal outcome of one orchestration.
type OrchestrateResponse struct {
	OrchestrationID string `json:"orchestrationId,omitempty"`
	Verdict         string `json:"verdict,omitempty"`
	Reason          string `json:"reason,omitempty"`
	RunID           string `json:"runId,omitempty"`
	ReferenceURL    string `json:"referenceUrl,omitempty"`
	Error           string `json:"error,omitempty"`
}

func handleHTTP(w http.ResponseWriter, r *http.Request) {
	d, err := getDeps()
	if err != nil {
		http.Error(w, fmt.Sprintf("init error: %v", err), http.StatusInternalServerError)
		return
	}

	var req OrchestrateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid request: %v", err), http.StatusBadRequest)
		return
	}

	resp := handleOrchestrate(r.Context(), d, req)

	w.Header().Set("Content-Type", "application/json")
	if resp.Error != "" && resp.Verdict == "" {
		w.WriteHeader(http.StatusUnprocessableEntity)
	}
	_ = json.NewEncoder(w).Encode(resp)
}

// handleOrchestrate implements the core handler logic.
func handleOrchestrate(ctx context.Context, d *Deps, req OrchestrateRequest) OrchestrateResponse {
	if req.Workflow == "" {
		return OrchestrateResponse{Error: "workflow is required"}
	}

	backendKind := req.Backend
	if backendKind == "" {
		kinds := d.Orchestrator.Kinds()
		if len(kinds) != 1 {
			return OrchestrateResponse{Error: "backend is required"}
		}
		backendKind = kinds[0]
	}

	cfg := d.Defaults
	if req.Poll.PollIntervalSeconds > 0 {
		cfg.Interval = time.Duration(req.Poll.PollIntervalSeconds) * time.Second
	}
	if req.Poll.MaxWaitMinutes > 0 {
		cfg.MaxWait = time.Duration(req.Poll.MaxWaitMinutes) * time.Minute
	}
	if req.Poll.CancelledIsFailure {
		cfg.CancelledIsFailure = true
	}

	result, err := d.Orchestrator.RunAndAwait(ctx, types.TriggerRequest{
		Backend:  backendKind,
		Owner:    req.Owner,
		Project:  req.Project,
		Workflow: req.Workflow,
		Ref:      req.Ref,
		Inputs:   req.Inputs,
	}, cfg)
	if err != nil {
		d.Logger.Error("orchestration failed",
			"workflow", req.Workflow,
			"orchestrationId", result.OrchestrationID,
			"error", err,
		)
		return OrchestrateResponse{
			OrchestrationID: result.OrchestrationID,
			RunID:           result.RunID,
			ReferenceURL:    result.ReferenceURL,
			Error:           err.Error(),
		}
	}

	return OrchestrateResponse{
		OrchestrationID: result.OrchestrationID,
		Verdict:         string(result.Verdict.Code),
		Reason:          result.Verdict.Reason,
		RunID:           result.RunID,
		ReferenceURL:    result.ReferenceURL,
	}
}

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, nil)))

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	if err := funcframework.Start(port); err != nil {
		slog.Error("failed to start functions framework", "error", err)
		os.Exit(1)
	}
}

// orchestrate Lambda dispatches a workflow on the configured backend and
// awaits its verdict. One orchestration per invocation; size the function
// timeout above the orchestration's max wait.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"sync"
	"time"

	awslambda "github.com/aws/aws-lambda-go/lambda"

	"github.com/baton-ci/baton/internal/alert"
	"github.com/baton-ci/baton/internal/backend"
	"github.com/baton-ci/baton/internal/journal"
	ddbjournal "github.com/baton-ci/baton/internal/journal/dynamodb"
	"github.com/baton-ci/baton/internal/journal/memory"
	"github.com/baton-ci/baton/internal/orchestrator"
	"github.com/baton-ci/baton/internal/secret"
	"github.com/baton-ci/baton/pkg/types"
)

// Deps holds shared dependencies for the Lambda handler.
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

func getDeps() (*Deps, error) {
	depsOnce.Do(func() {
		deps, depsErr = initDeps(context.Background())
	})
	return deps, depsErr
}

// initDeps creates shared dependencies from environment variables.
// Reads: BACKEND_KIND, BACKEND_OWNER, BACKEND_PROJECT, BACKEND_BASE_URL,
// BACKEND_USERNAME, BACKEND_TOKEN (secret reference), AWS_REGION,
// JOURNAL_TABLE_NAME, SNS_TOPIC_ARN, POLL_INTERVAL_SECONDS, MAX_WAIT_MINUTES.
func initDeps(ctx context.Context) (*Deps, error) {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	kind := types.BackendKind(os.Getenv("BACKEND_KIND"))
	if kind == "" {
		return nil, fmt.Errorf("BACKEND_KIND environment variable required")
	}

	token, err := secret.NewResolver().Resolve(ctx, os.Getenv("BACKEND_TOKEN"))
	if err != nil {
		return nil, fmt.Errorf("resolving backend token: %w", err)
	}

	b, err := backend.New(types.BackendConfig{
		Name:     "lambda",
		Kind:     kind,
		BaseURL:  os.Getenv("BACKEND_BASE_URL"),
		Owner:    os.Getenv("BACKEND_OWNER"),
		Project:  os.Getenv("BACKEND_PROJECT"),
		Username: os.Getenv("BACKEND_USERNAME"),
		Token:    token,
		Region:   os.Getenv("AWS_REGION"),
	})
	if err != nil {
		return nil, fmt.Errorf("creating backend: %w", err)
	}

	var store journal.Store
	if tableName := os.Getenv("JOURNAL_TABLE_NAME"); tableName != "" {
		store, err = ddbjournal.New(ctx, &types.DynamoDBConfig{
			TableName: tableName,
			Region:    os.Getenv("AWS_REGION"),
		})
		if err != nil {
			return nil, fmt.Errorf("creating DynamoDB journal: %w", err)
		}
	} else {
		store = memory.New()
	}

	var alertConfigs []types.AlertConfig
	if topicARN := os.Getenv("SNS_TOPIC_ARN"); topicARN != "" {
		alertConfigs = append(alertConfigs, types.AlertConfig{
			Type:     types.SinkSNS,
			TopicARN: topicARN,
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
	if n := envInt("POLL_INTERVAL_SECONDS"); n > 0 {
		defaults.Interval = time.Duration(n) * time.Second
	}
	if n := envInt("MAX_WAIT_MINUTES"); n > 0 {
		defaults.MaxWait = time.Duration(n) * time.Minute
	}

	return &Deps{
		Orchestrator: orch,
		Defaults:     defaults,
		Logger:       logger,
	}, nil
}

// OrchestrateRequest is the invocation payload.
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

// handleOrchestrate implements the core handler logic.
func handleOrchestrate(ctx context.Context, d *Deps, req OrchestrateRequest) (OrchestrateResponse, error) {
	if req.Workflow == "" {
		return OrchestrateResponse{Error: "workflow is required"}, nil
	}

	backendKind := req.Backend
	if backendKind == "" {
		// Single-backend deployment; use the one configured via env.
		kinds := d.Orchestrator.Kinds()
		if len(kinds) != 1 {
			return OrchestrateResponse{Error: "backend is required"}, nil
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
		}, nil
	}

	return OrchestrateResponse{
		OrchestrationID: result.OrchestrationID,
		Verdict:         string(result.Verdict.Code),
		Reason:          result.Verdict.Reason,
		RunID:           result.RunID,
		ReferenceURL:    result.ReferenceURL,
	}, nil
}

func handler(ctx context.Context, req OrchestrateRequest) (OrchestrateResponse, error) {
	d, err := getDeps()
	if err != nil {
		return OrchestrateResponse{}, err
	}
	return handleOrchestrate(ctx, d, req)
}

func envInt(key string) int {
	n, _ := strconv.Atoi(os.Getenv(key))
	return n
}

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, nil)))
	awslambda.Start(handler)
}

package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sfn"
	sfntypes "github.com/aws/aws-sdk-go-v2/service/sfn/types"

	"github.com/baton-ci/baton/pkg/types"
)

const sfnListLimit = 25

// SFNAPI is the subset of the AWS Step Functions client used by the backend package.
type SFNAPI interface {
	StartExecution(ctx context.Context, params *sfn.StartExecutionInput, optFns ...func(*sfn.Options)) (*sfn.StartExecutionOutput, error)
	DescribeExecution(ctx context.Context, params *sfn.DescribeExecutionInput, optFns ...func(*sfn.Options)) (*sfn.DescribeExecutionOutput, error)
	ListExecutions(ctx context.Context, params *sfn.ListExecutionsInput, optFns ...func(*sfn.Options)) (*sfn.ListExecutionsOutput, error)
}

// StepFunctions dispatches and inspects AWS Step Functions executions.
//
// StartExecution returns the execution ARN synchronously, so the ack carries
// a run-id hint and correlation is skipped.
type StepFunctions struct {
	client SFNAPI
	region string
}

// StepFunctionsOption configures a StepFunctions adapter.
type StepFunctionsOption func(*StepFunctions)

// WithSFNClient sets a custom Step Functions client (useful for testing).
func WithSFNClient(c SFNAPI) StepFunctionsOption {
	return func(s *StepFunctions) { s.client = c }
}

// NewStepFunctions creates a Step Functions adapter.
func NewStepFunctions(cfg types.BackendConfig, opts ...StepFunctionsOption) (*StepFunctions, error) {
	s := &StepFunctions{region: cfg.Region}
	for _, o := range opts {
		o(s)
	}
	if s.client == nil {
		var awsOpts []func(*awsconfig.LoadOptions) error
		if cfg.Region != "" {
			awsOpts = append(awsOpts, awsconfig.WithRegion(cfg.Region))
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), awsOpts...)
		if err != nil {
			return nil, fmt.Errorf("step-functions backend: loading AWS config: %w", err)
		}
		s.client = sfn.NewFromConfig(awsCfg)
	}
	return s, nil
}

// Kind identifies the backend family.
func (s *StepFunctions) Kind() types.BackendKind { return types.BackendStepFunctions }

// Dispatch starts an execution. req.Workflow is the state machine ARN;
// req.Inputs (plus req.Ref under the "ref" key) become the execution input
// document.
func (s *StepFunctions) Dispatch(ctx context.Context, req types.TriggerRequest) (types.DispatchAck, error) {
	input := &sfn.StartExecutionInput{StateMachineArn: &req.Workflow}

	doc := map[string]string{}
	for k, v := range req.Inputs {
		doc[k] = v
	}
	if req.Ref != "" {
		doc["ref"] = req.Ref
	}
	if len(doc) > 0 {
		b, err := json.Marshal(doc)
		if err != nil {
			return types.DispatchAck{}, &types.DispatchError{
				Backend: s.Kind(), Workflow: req.Workflow, Msg: fmt.Sprintf("marshaling input: %v", err),
			}
		}
		str := string(b)
		input.Input = &str
	}

	out, err := s.client.StartExecution(ctx, input)
	if err != nil {
		return types.DispatchAck{}, &types.DispatchError{Backend: s.Kind(), Workflow: req.Workflow, Msg: err.Error()}
	}

	arn := ""
	if out.ExecutionArn != nil {
		arn = *out.ExecutionArn
	}
	return types.DispatchAck{
		RunID:        arn,
		ReferenceURL: s.consoleURL(arn),
		DispatchedAt: req.DispatchedAt,
	}, nil
}

// ListCandidateRuns returns the state machine's recent executions, most
// recent first.
func (s *StepFunctions) ListCandidateRuns(ctx context.Context, req types.TriggerRequest) ([]types.CandidateRun, error) {
	limit := int32(sfnListLimit)
	out, err := s.client.ListExecutions(ctx, &sfn.ListExecutionsInput{
		StateMachineArn: &req.Workflow,
		MaxResults:      limit,
	})
	if err != nil {
		return nil, classifySFNError("listing executions", err, s.Kind(), req.Workflow)
	}

	runs := make([]types.CandidateRun, 0, len(out.Executions))
	for _, e := range out.Executions {
		arn := ""
		if e.ExecutionArn != nil {
			arn = *e.ExecutionArn
		}
		created := time.Time{}
		if e.StartDate != nil {
			created = *e.StartDate
		}
		runs = append(runs, types.CandidateRun{
			ID:           arn,
			CreatedAt:    created,
			ReferenceURL: s.consoleURL(arn),
			RawStatus:    string(e.Status),
		})
	}
	return runs, nil
}

// GetRunState describes one execution and normalizes its status.
func (s *StepFunctions) GetRunState(ctx context.Context, _ types.TriggerRequest, runID string) (types.RunState, error) {
	out, err := s.client.DescribeExecution(ctx, &sfn.DescribeExecutionInput{ExecutionArn: &runID})
	if err != nil {
		var notFound *sfntypes.ExecutionDoesNotExist
		if errors.As(err, &notFound) {
			return types.RunState{}, &types.RunNotFoundError{Backend: s.Kind(), RunID: runID}
		}
		return types.RunState{}, &types.TransientError{Op: "sfn describe execution", Err: err}
	}

	state := normalizeSFNStatus(out.Status)
	state.ReferenceURL = s.consoleURL(runID)
	return state, nil
}

// normalizeSFNStatus maps Step Functions execution statuses onto the uniform
// RunState. Executions have no queued phase; anything non-terminal is running.
func normalizeSFNStatus(status sfntypes.ExecutionStatus) types.RunState {
	switch status {
	case sfntypes.ExecutionStatusSucceeded:
		return types.CompletedState(types.OutcomeSuccess, string(status))
	case sfntypes.ExecutionStatusFailed, sfntypes.ExecutionStatusTimedOut:
		return types.CompletedState(types.OutcomeFailure, string(status))
	case sfntypes.ExecutionStatusAborted:
		return types.CompletedState(types.OutcomeCancelled, string(status))
	default:
		return types.RunningState(string(status))
	}
}

func classifySFNError(op string, err error, kind types.BackendKind, workflow string) error {
	var stateMachineGone *sfntypes.StateMachineDoesNotExist
	if errors.As(err, &stateMachineGone) {
		return fmt.Errorf("step-functions: %s: state machine %q does not exist", op, workflow)
	}
	return &types.TransientError{Op: "sfn " + op, Err: err}
}

func (s *StepFunctions) consoleURL(arn string) string {
	if arn == "" || s.region == "" {
		return ""
	}
	return fmt.Sprintf("https://%s.console.aws.amazon.com/states/home?region=%s#/executions/details/%s",
		s.region, s.region, url.QueryEscape(arn))
}

package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/baton-ci/baton/internal/orchestrator"
	"github.com/baton-ci/baton/pkg/types"
)

// NewRunCmd creates the run command.
func NewRunCmd() *cobra.Command {
	var (
		backendName        string
		ref                string
		inputPairs         []string
		intervalSeconds    int
		maxWaitMinutes     int
		cancelledIsFailure bool
	)

	cmd := &cobra.Command{
		Use:   "run [workflow]",
		Short: "Dispatch a workflow and await its verdict",
		Long: `Dispatches the named workflow on a configured backend, correlates the
dispatch with the run it caused, polls that run to completion under a single
wall-clock deadline, and exits with the run's verdict.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			overrides := types.PollSettings{
				PollIntervalSeconds: intervalSeconds,
				MaxWaitMinutes:      maxWaitMinutes,
				CancelledIsFailure:  cancelledIsFailure,
			}
			return runWorkflow(args[0], backendName, ref, inputPairs, overrides)
		},
	}

	cmd.Flags().StringVar(&backendName, "backend", "", "Configured backend name (optional when only one is configured)")
	cmd.Flags().StringVar(&ref, "ref", "", "Git ref or branch to run on")
	cmd.Flags().StringArrayVar(&inputPairs, "input", nil, "Workflow input as key=value (repeatable)")
	cmd.Flags().IntVar(&intervalSeconds, "interval", 0, "Poll interval in seconds")
	cmd.Flags().IntVar(&maxWaitMinutes, "max-wait", 0, "Maximum wait in minutes")
	cmd.Flags().BoolVar(&cancelledIsFailure, "cancelled-is-failure", false, "Treat a cancelled run as a failure")
	return cmd
}

func runWorkflow(workflow, backendName, ref string, inputPairs []string, overrides types.PollSettings) error {
	// Ctrl-C aborts the wait; the remote run keeps going.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := loadProject(ctx)
	if err != nil {
		return err
	}

	bc, err := pickBackend(cfg, backendName)
	if err != nil {
		return err
	}

	inputs, err := parseInputs(inputPairs)
	if err != nil {
		return err
	}

	orch, store, err := buildOrchestrator(ctx, cfg,
		orchestrator.WithProgress(func(_, runID, referenceURL string) {
			color.Blue("Run %s identified: %s", runID, referenceURL)
		}),
	)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	poll := mergeSettings(cfg.Defaults, overrides).PollConfig()
	if err := poll.Validate(); err != nil {
		return fmt.Errorf("poll settings: %w", err)
	}

	req := types.TriggerRequest{
		Backend:  bc.Kind,
		Owner:    bc.Owner,
		Project:  bc.Project,
		Workflow: workflow,
		Ref:      ref,
		Inputs:   inputs,
	}

	color.Cyan("Dispatching %s on %s...", workflow, bc.Name)

	result, err := orch.RunAndAwait(ctx, req, poll)
	if err != nil {
		if types.IsAborted(err) {
			color.Yellow("Aborted; run %s is still in flight on the backend", result.RunID)
		}
		return err
	}

	printResult(result)

	switch result.Verdict.Code {
	case types.VerdictSucceeded, types.VerdictCancelled:
		return nil
	default:
		os.Exit(1)
		return nil
	}
}

func printResult(result types.Result) {
	fmt.Println()
	fmt.Printf("  Verdict:  %s\n", verdictString(result.Verdict.Code))
	if result.Verdict.Reason != "" {
		fmt.Printf("  Reason:   %s\n", result.Verdict.Reason)
	}
	if result.RunID != "" {
		fmt.Printf("  Run:      %s\n", result.RunID)
	}
	if result.ReferenceURL != "" {
		fmt.Printf("  URL:      %s\n", result.ReferenceURL)
	}
	fmt.Printf("  Elapsed:  %s\n", result.Elapsed.Round(time.Second))
	fmt.Println()
}

// mergeSettings overlays non-zero flag values on the file defaults.
func mergeSettings(base, overrides types.PollSettings) types.PollSettings {
	if overrides.PollIntervalSeconds > 0 {
		base.PollIntervalSeconds = overrides.PollIntervalSeconds
	}
	if overrides.MaxWaitMinutes > 0 {
		base.MaxWaitMinutes = overrides.MaxWaitMinutes
	}
	if overrides.ClockSkewSeconds > 0 {
		base.ClockSkewSeconds = overrides.ClockSkewSeconds
	}
	if overrides.RetryBudget > 0 {
		base.RetryBudget = overrides.RetryBudget
	}
	if overrides.CancelledIsFailure {
		base.CancelledIsFailure = true
	}
	return base
}

package commands

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/baton-ci/baton/internal/journal"
)

// NewStatusCmd creates the status command.
func NewStatusCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "status [orchestration-id]",
		Short: "Show recent orchestrations or one orchestration's record",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := ""
			if len(args) > 0 {
				id = args[0]
			}
			return runStatus(id, limit)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", journal.DefaultListLimit, "Number of records to list")
	return cmd
}

func runStatus(id string, limit int) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cfg, err := loadProject(ctx)
	if err != nil {
		return err
	}

	store, err := newJournalStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("creating journal store: %w", err)
	}
	defer func() { _ = store.Close() }()

	if id != "" {
		return showRecord(ctx, store, id)
	}
	return listRecords(ctx, store, limit)
}

func showRecord(ctx context.Context, store journal.Store, id string) error {
	rec, err := store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, journal.ErrNotFound) {
			return fmt.Errorf("orchestration %s not found", id)
		}
		return fmt.Errorf("loading orchestration: %w", err)
	}

	bold := color.New(color.Bold)
	_, _ = bold.Printf("Orchestration: %s\n", rec.ID)
	fmt.Printf("  Backend:   %s\n", rec.Backend)
	fmt.Printf("  Workflow:  %s\n", rec.Workflow)
	if rec.Ref != "" {
		fmt.Printf("  Ref:       %s\n", rec.Ref)
	}
	fmt.Printf("  State:     %s\n", rec.State)
	if rec.RunID != "" {
		fmt.Printf("  Run:       %s\n", rec.RunID)
	}
	if rec.ReferenceURL != "" {
		fmt.Printf("  URL:       %s\n", rec.ReferenceURL)
	}
	if rec.Done() {
		fmt.Printf("  Verdict:   %s\n", verdictString(rec.Verdict))
		if rec.Reason != "" {
			fmt.Printf("  Reason:    %s\n", rec.Reason)
		}
	}
	fmt.Printf("  Started:   %s\n", rec.StartedAt.Format(time.RFC3339))
	if rec.FinishedAt != nil {
		fmt.Printf("  Finished:  %s\n", rec.FinishedAt.Format(time.RFC3339))
	}
	fmt.Println()
	return nil
}

func listRecords(ctx context.Context, store journal.Store, limit int) error {
	recs, err := store.List(ctx, limit)
	if err != nil {
		return fmt.Errorf("listing orchestrations: %w", err)
	}

	if len(recs) == 0 {
		fmt.Println("No orchestrations recorded.")
		return nil
	}

	bold := color.New(color.Bold)
	_, _ = bold.Println("Recent Orchestrations:")
	fmt.Println()

	for _, rec := range recs {
		status := string(rec.State)
		if rec.Done() {
			status = verdictString(rec.Verdict)
		}
		fmt.Printf("  %-28s %-18s %-15s %s  %s\n",
			rec.ID, status, rec.Backend, rec.Workflow,
			rec.StartedAt.Format(time.RFC3339))
	}
	fmt.Println()
	return nil
}

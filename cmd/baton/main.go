package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/baton-ci/baton/internal/commands"
)

var version = "dev"

func main() {
	root := &cobra.Command{
		Use:   "baton",
		Short: "Trigger-and-await orchestrator for external CI workflows",
		Long: `Baton dispatches a workflow or build on an external CI system, correlates
the dispatch with the concrete run it caused, polls that run to completion
under a single wall-clock deadline, and reports one uniform verdict.`,
		Version: version,
	}

	root.AddCommand(
		commands.NewInitCmd(),
		commands.NewRunCmd(),
		commands.NewStatusCmd(),
		commands.NewServeCmd(version),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

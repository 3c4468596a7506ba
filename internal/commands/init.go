package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// NewInitCmd creates the init command.
func NewInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init [project-name]",
		Short: "Initialize a new baton project",
		Long:  "Creates a project directory with a starter baton.yaml.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(args[0])
		},
	}
}

func runInit(projectName string) error {
	bold := color.New(color.Bold)
	_, _ = bold.Printf("Initializing baton project: %s\n", projectName)

	if err := os.MkdirAll(projectName, 0o755); err != nil {
		return fmt.Errorf("creating directory %s: %w", projectName, err)
	}

	configPath := filepath.Join(projectName, "baton.yaml")
	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("%s already exists", configPath)
	}

	configContent := `defaults:
  pollIntervalSeconds: 5
  maxWaitMinutes: 30
  clockSkewSeconds: 60
  cancelledIsFailure: false

backends:
  - name: gh
    kind: github-actions
    owner: my-org
    project: my-repo
    token: env:GITHUB_TOKEN
  # - name: ci
  #   kind: jenkins
  #   baseUrl: https://jenkins.example.com
  #   username: baton
  #   token: env:JENKINS_API_TOKEN
  # - name: ado
  #   kind: azure-devops
  #   owner: my-org
  #   project: my-project
  #   token: env:AZURE_DEVOPS_PAT

journal:
  type: memory

server:
  addr: ":3000"

alerts:
  - type: console
`
	if err := os.WriteFile(configPath, []byte(configContent), 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	color.Green("Created %s", configPath)
	fmt.Println()
	fmt.Println("Next steps:")
	fmt.Printf("  1. Edit %s with your backend details\n", configPath)
	fmt.Println("  2. Export the referenced token variables")
	fmt.Printf("  3. cd %s && baton run <workflow> --ref main\n", projectName)
	return nil
}

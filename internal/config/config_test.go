package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/baton-ci/baton/internal/secret"
	"github.com/baton-ci/baton/pkg/types"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	err := os.WriteFile(filepath.Join(dir, FileName), []byte(content), 0o644)
	require.NoError(t, err)
	return dir
}

func TestLoad(t *testing.T) {
	dir := writeConfig(t, `defaults:
  pollIntervalSeconds: 10
  maxWaitMinutes: 15
backends:
  - name: gh
    kind: github-actions
    owner: baton-ci
    project: baton
    token: env:GITHUB_TOKEN
  - name: ci
    kind: jenkins
    baseUrl: https://jenkins.internal
    username: baton
    token: env:JENKINS_TOKEN
journal:
  type: redis
  redis:
    addr: localhost:6379
    keyPrefix: "baton:"
server:
  addr: ":3000"
alerts:
  - type: console
`)

	cfg, err := Load(dir)
	require.NoError(t, err)

	require.Len(t, cfg.Backends, 2)
	assert.Equal(t, types.BackendGitHubActions, cfg.Backends[0].Kind)
	assert.Equal(t, "baton-ci", cfg.Backends[0].Owner)
	assert.Equal(t, types.BackendJenkins, cfg.Backends[1].Kind)
	assert.Equal(t, "https://jenkins.internal", cfg.Backends[1].BaseURL)

	assert.Equal(t, types.StoreRedis, cfg.Journal.Type)
	require.NotNil(t, cfg.Journal.Redis)
	assert.Equal(t, "localhost:6379", cfg.Journal.Redis.Addr)
	assert.Equal(t, ":3000", cfg.Server.Addr)
	assert.Len(t, cfg.Alerts, 1)

	poll := cfg.Defaults.PollConfig()
	assert.Equal(t, 10, int(poll.Interval.Seconds()))
	assert.Equal(t, 15, int(poll.MaxWait.Minutes()))
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent")
	assert.Error(t, err)
}

func TestLoadInvalidYAML(t *testing.T) {
	dir := writeConfig(t, "invalid: [yaml")
	_, err := Load(dir)
	assert.Error(t, err)
}

func TestValidation_NoBackends(t *testing.T) {
	dir := writeConfig(t, "backends: []\n")
	_, err := Load(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least one backend is required")
}

func TestValidation_BackendFields(t *testing.T) {
	tests := []struct {
		name    string
		backend string
		wantErr string
	}{
		{
			name: "github missing token",
			backend: `  - name: gh
    kind: github-actions
    owner: baton-ci`,
			wantErr: "token is required",
		},
		{
			name: "jenkins missing baseUrl",
			backend: `  - name: ci
    kind: jenkins`,
			wantErr: "baseUrl is required",
		},
		{
			name: "azure missing project",
			backend: `  - name: ado
    kind: azure-devops
    owner: baton-org
    token: env:ADO_PAT`,
			wantErr: "project is required",
		},
		{
			name: "cloud workflows missing region",
			backend: `  - name: wf
    kind: cloud-workflows
    projectId: baton-prod`,
			wantErr: "region is required",
		},
		{
			name: "unknown kind",
			backend: `  - name: x
    kind: circleci`,
			wantErr: "unknown backend kind",
		},
		{
			name:    "missing kind",
			backend: `  - name: x`,
			wantErr: "kind is required",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			dir := writeConfig(t, "backends:\n"+tc.backend+"\n")
			_, err := Load(dir)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestValidation_DuplicateBackendName(t *testing.T) {
	dir := writeConfig(t, `backends:
  - name: ci
    kind: jenkins
    baseUrl: https://a.internal
  - name: ci
    kind: jenkins
    baseUrl: https://b.internal
`)
	_, err := Load(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate backend name")
}

func TestValidation_JournalRequiresSection(t *testing.T) {
	dir := writeConfig(t, `backends:
  - name: ci
    kind: jenkins
    baseUrl: https://jenkins.internal
journal:
  type: dynamodb
`)
	_, err := Load(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dynamodb.tableName is required")
}

func TestValidation_AlertSinks(t *testing.T) {
	dir := writeConfig(t, `backends:
  - name: ci
    kind: jenkins
    baseUrl: https://jenkins.internal
alerts:
  - type: webhook
`)
	_, err := Load(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "webhook url is required")
}

func TestResolveSecrets(t *testing.T) {
	t.Setenv("BATON_TEST_GH_TOKEN", "ghp_resolved")
	t.Setenv("BATON_TEST_HOOK", "https://hooks.internal/baton")

	cfg := &types.Config{
		Backends: []types.BackendConfig{
			{Name: "gh", Kind: types.BackendGitHubActions, Owner: "baton-ci", Token: "env:BATON_TEST_GH_TOKEN"},
		},
		Alerts: []types.AlertConfig{
			{Type: types.SinkWebhook, URL: "env:BATON_TEST_HOOK"},
		},
	}

	err := ResolveSecrets(context.Background(), cfg, secret.NewResolver())
	require.NoError(t, err)
	assert.Equal(t, "ghp_resolved", cfg.Backends[0].Token)
	assert.Equal(t, "https://hooks.internal/baton", cfg.Alerts[0].URL)
}

func TestResolveSecrets_UnsetEnv(t *testing.T) {
	cfg := &types.Config{
		Backends: []types.BackendConfig{
			{Name: "gh", Kind: types.BackendGitHubActions, Owner: "baton-ci", Token: "env:BATON_TEST_NOT_SET"},
		},
	}

	err := ResolveSecrets(context.Background(), cfg, secret.NewResolver())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "backend gh token")
}

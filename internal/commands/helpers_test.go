package commands

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/baton-ci/baton/pkg/types"
)

func TestParseInputs(t *testing.T) {
	inputs, err := parseInputs([]string{"environment=production", "version=1.4.2", "notes=a=b"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"environment": "production",
		"version":     "1.4.2",
		"notes":       "a=b", // only the first = splits
	}, inputs)
}

func TestParseInputs_Empty(t *testing.T) {
	inputs, err := parseInputs(nil)
	require.NoError(t, err)
	assert.Nil(t, inputs)
}

func TestParseInputs_Malformed(t *testing.T) {
	for _, bad := range []string{"noequals", "=value"} {
		_, err := parseInputs([]string{bad})
		assert.Error(t, err, bad)
	}
}

func TestPickBackend_SingleDefault(t *testing.T) {
	cfg := &types.Config{Backends: []types.BackendConfig{
		{Name: "gh", Kind: types.BackendGitHubActions},
	}}

	b, err := pickBackend(cfg, "")
	require.NoError(t, err)
	assert.Equal(t, "gh", b.Name)
}

func TestPickBackend_ByName(t *testing.T) {
	cfg := &types.Config{Backends: []types.BackendConfig{
		{Name: "gh", Kind: types.BackendGitHubActions},
		{Name: "ci", Kind: types.BackendJenkins},
	}}

	b, err := pickBackend(cfg, "ci")
	require.NoError(t, err)
	assert.Equal(t, types.BackendJenkins, b.Kind)
}

func TestPickBackend_AmbiguousWithoutFlag(t *testing.T) {
	cfg := &types.Config{Backends: []types.BackendConfig{
		{Name: "gh", Kind: types.BackendGitHubActions},
		{Name: "ci", Kind: types.BackendJenkins},
	}}

	_, err := pickBackend(cfg, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pass --backend")
	assert.Contains(t, err.Error(), "ci, gh")
}

func TestPickBackend_Unknown(t *testing.T) {
	cfg := &types.Config{Backends: []types.BackendConfig{
		{Name: "gh", Kind: types.BackendGitHubActions},
	}}

	_, err := pickBackend(cfg, "nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown backend "nope"`)
}

func TestMergeSettings(t *testing.T) {
	base := types.PollSettings{
		PollIntervalSeconds: 5,
		MaxWaitMinutes:      30,
		CancelledIsFailure:  false,
	}
	merged := mergeSettings(base, types.PollSettings{
		MaxWaitMinutes:     10,
		CancelledIsFailure: true,
	})

	assert.Equal(t, 5, merged.PollIntervalSeconds)
	assert.Equal(t, 10, merged.MaxWaitMinutes)
	assert.True(t, merged.CancelledIsFailure)
}

func TestNewJournalStore_DefaultsToMemory(t *testing.T) {
	store, err := newJournalStore(context.Background(), &types.Config{})
	require.NoError(t, err)
	require.NotNil(t, store)
	assert.NoError(t, store.Ping(context.Background()))
	assert.NoError(t, store.Close())
}

func TestNewJournalStore_UnknownType(t *testing.T) {
	_, err := newJournalStore(context.Background(), &types.Config{
		Journal: types.JournalConfig{Type: "etcd"},
	})
	assert.Error(t, err)
}

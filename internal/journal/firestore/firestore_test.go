//go:build integration

package firestore

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/baton-ci/baton/internal/journal"
	"github.com/baton-ci/baton/pkg/types"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()

	collection := fmt.Sprintf("baton-journal-test-%d", time.Now().UnixNano())
	cfg := &types.FirestoreConfig{
		ProjectID:  "test-project",
		Collection: collection,
		Emulator:   "localhost:8681",
	}
	store, err := New(ctx, cfg)
	if err != nil {
		t.Skipf("Firestore emulator not available: %v", err)
	}
	if err := store.Ping(ctx); err != nil {
		t.Skipf("Firestore emulator not available: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}

func TestLifecycle(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	started := time.Now().Truncate(time.Millisecond).UTC()
	rec := journal.Record{
		ID:        "01JP3E1QZX7M2Q9T4R8V6W0YBD",
		Backend:   types.BackendCloudWorkflows,
		Workflow:  "deploy",
		State:     journal.StateDispatched,
		StartedAt: started,
		UpdatedAt: started,
	}
	require.NoError(t, store.SaveDispatch(ctx, rec))

	got, err := store.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, journal.StateDispatched, got.State)
	assert.Empty(t, got.RunID)

	execName := "projects/acme/locations/us-central1/workflows/deploy/executions/abc123"
	correlatedAt := started.Add(5 * time.Second)
	require.NoError(t, store.MarkCorrelated(ctx, rec.ID, execName, "https://console.cloud.google.com/workflows", correlatedAt))

	got, err = store.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, journal.StateCorrelated, got.State)
	assert.Equal(t, execName, got.RunID)
	assert.True(t, got.UpdatedAt.Equal(correlatedAt))

	finishedAt := started.Add(time.Minute)
	require.NoError(t, store.MarkVerdict(ctx, rec.ID, types.Verdict{Code: types.VerdictSucceeded}, finishedAt))

	got, err = store.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, journal.StateDone, got.State)
	assert.Equal(t, types.VerdictSucceeded, got.Verdict)
	require.NotNil(t, got.FinishedAt)
	assert.True(t, got.FinishedAt.Equal(finishedAt))
}

func TestGet_NotFound(t *testing.T) {
	store := setupTestStore(t)

	_, err := store.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, journal.ErrNotFound)
}

func TestMarks_NotFound(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	err := store.MarkCorrelated(ctx, "missing", "1", "", time.Now())
	assert.ErrorIs(t, err, journal.ErrNotFound)

	err = store.MarkVerdict(ctx, "missing", types.Verdict{Code: types.VerdictFailed}, time.Now())
	assert.ErrorIs(t, err, journal.ErrNotFound)
}

func TestList_NewestFirst(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	// ULID-shaped ids: lexicographic order is chronological order.
	base := time.Now().Truncate(time.Millisecond).UTC()
	ids := []string{"01A", "01B", "01C", "01D", "01E"}
	for i, id := range ids {
		rec := journal.Record{
			ID:        id,
			Backend:   types.BackendStepFunctions,
			Workflow:  "arn:aws:states:us-east-1:123456789012:stateMachine:etl",
			State:     journal.StateDispatched,
			StartedAt: base.Add(time.Duration(i) * time.Second),
			UpdatedAt: base.Add(time.Duration(i) * time.Second),
		}
		require.NoError(t, store.SaveDispatch(ctx, rec))
	}

	recs, err := store.List(ctx, 3)
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, "01E", recs[0].ID)
	assert.Equal(t, "01D", recs[1].ID)
	assert.Equal(t, "01C", recs[2].ID)
}

// Package memory implements an in-process journal store. It is the default
// when no journal backend is configured and the double used in tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/baton-ci/baton/internal/journal"
	"github.com/baton-ci/baton/pkg/types"
)

// Compile-time interface satisfaction check.
var _ journal.Store = (*Store)(nil)

// Store keeps records in a map guarded by an RWMutex.
type Store struct {
	mu      sync.RWMutex
	records map[string]journal.Record
}

// New creates an empty in-memory journal store.
func New() *Store {
	return &Store{records: make(map[string]journal.Record)}
}

// SaveDispatch writes the initial record, replacing any record with the same id.
func (s *Store) SaveDispatch(_ context.Context, rec journal.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.ID] = rec
	return nil
}

// MarkCorrelated records the run identity.
func (s *Store) MarkCorrelated(_ context.Context, id, runID, referenceURL string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return journal.ErrNotFound
	}
	rec.RunID = runID
	rec.ReferenceURL = referenceURL
	rec.State = journal.StateCorrelated
	rec.UpdatedAt = at
	s.records[id] = rec
	return nil
}

// MarkVerdict finalizes the record.
func (s *Store) MarkVerdict(_ context.Context, id string, verdict types.Verdict, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return journal.ErrNotFound
	}
	rec.State = journal.StateDone
	rec.Verdict = verdict.Code
	rec.Reason = verdict.Reason
	rec.UpdatedAt = at
	finished := at
	rec.FinishedAt = &finished
	s.records[id] = rec
	return nil
}

// Get returns the record for id.
func (s *Store) Get(_ context.Context, id string) (journal.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[id]
	if !ok {
		return journal.Record{}, journal.ErrNotFound
	}
	return rec, nil
}

// List returns the most recent records, newest first.
func (s *Store) List(_ context.Context, limit int) ([]journal.Record, error) {
	if limit <= 0 {
		limit = journal.DefaultListLimit
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	recs := make([]journal.Record, 0, len(s.records))
	for _, rec := range s.records {
		recs = append(recs, rec)
	}
	sort.Slice(recs, func(i, j int) bool {
		if !recs[i].StartedAt.Equal(recs[j].StartedAt) {
			return recs[i].StartedAt.After(recs[j].StartedAt)
		}
		return recs[i].ID > recs[j].ID
	})
	if len(recs) > limit {
		recs = recs[:limit]
	}
	return recs, nil
}

// Ping always succeeds.
func (s *Store) Ping(_ context.Context) error { return nil }

// Close is a no-op.
func (s *Store) Close() error { return nil }

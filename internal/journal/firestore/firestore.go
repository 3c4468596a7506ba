// Package firestore implements the journal store on Google Cloud Firestore
// Native Mode. One document per record, keyed by the orchestration ULID;
// ULIDs sort chronologically, so a descending scan over document IDs returns
// the newest records first.
package firestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/baton-ci/baton/internal/journal"
	"github.com/baton-ci/baton/pkg/types"
)

// Compile-time interface satisfaction check.
var _ journal.Store = (*Store)(nil)

const defaultCollection = "baton-journal"

// Store implements journal.Store backed by Firestore.
type Store struct {
	client     *firestore.Client
	collection string
}

// New creates a Firestore-backed journal store.
func New(ctx context.Context, cfg *types.FirestoreConfig) (*Store, error) {
	if cfg == nil {
		return nil, fmt.Errorf("firestore config is required")
	}
	if cfg.ProjectID == "" {
		return nil, fmt.Errorf("firestore projectId is required")
	}

	// Support the Firestore emulator via FIRESTORE_EMULATOR_HOST or config.
	if cfg.Emulator != "" {
		os.Setenv("FIRESTORE_EMULATOR_HOST", cfg.Emulator)
	}

	client, err := firestore.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("creating Firestore client: %w", err)
	}

	collection := cfg.Collection
	if collection == "" {
		collection = defaultCollection
	}

	return &Store{client: client, collection: collection}, nil
}

// coll returns the journal collection reference.
func (s *Store) coll() *firestore.CollectionRef {
	return s.client.Collection(s.collection)
}

// SaveDispatch writes the initial record.
func (s *Store) SaveDispatch(ctx context.Context, rec journal.Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	_, err = s.coll().Doc(rec.ID).Set(ctx, map[string]interface{}{
		"data": string(data),
	})
	return err
}

// MarkCorrelated records the run identity inside a transaction.
func (s *Store) MarkCorrelated(ctx context.Context, id, runID, referenceURL string, at time.Time) error {
	return s.update(ctx, id, func(rec *journal.Record) {
		rec.RunID = runID
		rec.ReferenceURL = referenceURL
		rec.State = journal.StateCorrelated
		rec.UpdatedAt = at
	})
}

// MarkVerdict finalizes the record inside a transaction.
func (s *Store) MarkVerdict(ctx context.Context, id string, verdict types.Verdict, at time.Time) error {
	return s.update(ctx, id, func(rec *journal.Record) {
		rec.State = journal.StateDone
		rec.Verdict = verdict.Code
		rec.Reason = verdict.Reason
		rec.UpdatedAt = at
		finished := at
		rec.FinishedAt = &finished
	})
}

// update applies mutate to the stored record in a read-modify-write transaction.
func (s *Store) update(ctx context.Context, id string, mutate func(*journal.Record)) error {
	doc := s.coll().Doc(id)
	return s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(doc)
		if err != nil {
			if isNotFound(err) {
				return journal.ErrNotFound
			}
			return err
		}

		dataStr, err := snapString(snap, "data")
		if err != nil {
			return err
		}
		var rec journal.Record
		if err := json.Unmarshal([]byte(dataStr), &rec); err != nil {
			return fmt.Errorf("unmarshaling record %q: %w", id, err)
		}

		mutate(&rec)

		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		return tx.Set(doc, map[string]interface{}{
			"data": string(data),
		})
	})
}

// Get returns the record for id.
func (s *Store) Get(ctx context.Context, id string) (journal.Record, error) {
	snap, err := s.coll().Doc(id).Get(ctx)
	if err != nil {
		if isNotFound(err) {
			return journal.Record{}, journal.ErrNotFound
		}
		return journal.Record{}, err
	}

	dataStr, err := snapString(snap, "data")
	if err != nil {
		return journal.Record{}, err
	}
	var rec journal.Record
	if err := json.Unmarshal([]byte(dataStr), &rec); err != nil {
		return journal.Record{}, fmt.Errorf("unmarshaling record %q: %w", id, err)
	}
	return rec, nil
}

// List returns the most recent records, newest first.
func (s *Store) List(ctx context.Context, limit int) ([]journal.Record, error) {
	if limit <= 0 {
		limit = journal.DefaultListLimit
	}

	iter := s.coll().
		OrderBy(firestore.DocumentID, firestore.Desc).
		Limit(limit).
		Documents(ctx)
	defer iter.Stop()

	var recs []journal.Record
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, err
		}

		dataStr, err := snapString(snap, "data")
		if err != nil {
			continue
		}
		var rec journal.Record
		if err := json.Unmarshal([]byte(dataStr), &rec); err != nil {
			continue
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

// Ping checks connectivity by reading a non-existent document.
func (s *Store) Ping(ctx context.Context) error {
	_, err := s.coll().Doc("__ping__").Get(ctx)
	// NotFound still proves connectivity.
	if isNotFound(err) {
		return nil
	}
	return err
}

// Close closes the Firestore client.
func (s *Store) Close() error {
	return s.client.Close()
}

// isNotFound returns true if the error is a Firestore NotFound error.
func isNotFound(err error) bool {
	if err == nil {
		return false
	}
	return status.Code(err) == codes.NotFound
}

// snapString extracts a string field from a Firestore document snapshot.
func snapString(snap *firestore.DocumentSnapshot, key string) (string, error) {
	raw, err := snap.DataAt(key)
	if err != nil {
		return "", fmt.Errorf("missing field %q: %w", key, err)
	}
	str, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("field %q is not a string", key)
	}
	return str, nil
}

package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/baton-ci/baton/internal/journal"
	"github.com/baton-ci/baton/pkg/types"
)

// Compile-time interface satisfaction check.
var _ journal.Store = (*Store)(nil)

// Store is a Postgres-backed journal store.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a new Postgres Store and verifies the connection.
func New(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Migrate runs the schema DDL to create the table and indexes.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, schemaDDL)
	if err != nil {
		return fmt.Errorf("postgres migrate: %w", err)
	}
	return nil
}

// SaveDispatch upserts the initial record.
func (s *Store) SaveDispatch(ctx context.Context, rec journal.Record) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO orchestrations (id, backend, workflow, ref, run_id, reference_url,
			state, verdict, reason, started_at, updated_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			backend       = EXCLUDED.backend,
			workflow      = EXCLUDED.workflow,
			ref           = EXCLUDED.ref,
			run_id        = EXCLUDED.run_id,
			reference_url = EXCLUDED.reference_url,
			state         = EXCLUDED.state,
			verdict       = EXCLUDED.verdict,
			reason        = EXCLUDED.reason,
			updated_at    = EXCLUDED.updated_at,
			finished_at   = EXCLUDED.finished_at
	`, rec.ID, string(rec.Backend), rec.Workflow, rec.Ref, rec.RunID, rec.ReferenceURL,
		string(rec.State), string(rec.Verdict), rec.Reason,
		rec.StartedAt, rec.UpdatedAt, rec.FinishedAt)
	return err
}

// MarkCorrelated records the run identity.
func (s *Store) MarkCorrelated(ctx context.Context, id, runID, referenceURL string, at time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE orchestrations
		SET run_id = $2, reference_url = $3, state = $4, updated_at = $5
		WHERE id = $1
	`, id, runID, referenceURL, string(journal.StateCorrelated), at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return journal.ErrNotFound
	}
	return nil
}

// MarkVerdict finalizes the record.
func (s *Store) MarkVerdict(ctx context.Context, id string, verdict types.Verdict, at time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE orchestrations
		SET state = $2, verdict = $3, reason = $4, updated_at = $5, finished_at = $5
		WHERE id = $1
	`, id, string(journal.StateDone), string(verdict.Code), verdict.Reason, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return journal.ErrNotFound
	}
	return nil
}

// Get returns the record for id.
func (s *Store) Get(ctx context.Context, id string) (journal.Record, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, backend, workflow, COALESCE(ref, ''), COALESCE(run_id, ''),
			COALESCE(reference_url, ''), state, COALESCE(verdict, ''),
			COALESCE(reason, ''), started_at, updated_at, finished_at
		FROM orchestrations
		WHERE id = $1
	`, id)

	rec, err := scanRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return journal.Record{}, journal.ErrNotFound
	}
	return rec, err
}

// List returns the most recent records, newest first.
func (s *Store) List(ctx context.Context, limit int) ([]journal.Record, error) {
	if limit <= 0 {
		limit = journal.DefaultListLimit
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, backend, workflow, COALESCE(ref, ''), COALESCE(run_id, ''),
			COALESCE(reference_url, ''), state, COALESCE(verdict, ''),
			COALESCE(reason, ''), started_at, updated_at, finished_at
		FROM orchestrations
		ORDER BY started_at DESC, id DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []journal.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// Ping verifies the connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close closes the connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func scanRecord(row pgx.Row) (journal.Record, error) {
	var rec journal.Record
	var backend, state, verdict string
	if err := row.Scan(&rec.ID, &backend, &rec.Workflow, &rec.Ref, &rec.RunID,
		&rec.ReferenceURL, &state, &verdict, &rec.Reason,
		&rec.StartedAt, &rec.UpdatedAt, &rec.FinishedAt); err != nil {
		return journal.Record{}, err
	}
	rec.Backend = types.BackendKind(backend)
	rec.State = journal.State(state)
	rec.Verdict = types.VerdictCode(verdict)
	return rec, nil
}

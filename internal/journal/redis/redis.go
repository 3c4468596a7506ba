// Package redis implements the journal store on Redis/Valkey. Each record is
// a hash keyed by orchestration id, with a zset indexing ids by start time so
// listings come back newest first.
package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/baton-ci/baton/internal/journal"
	"github.com/baton-ci/baton/pkg/types"
)

// Compile-time interface satisfaction check.
var _ journal.Store = (*Store)(nil)

const defaultPrefix = "baton:"

// Store implements journal.Store backed by Redis.
type Store struct {
	client *goredis.Client
	prefix string
}

// New creates a Redis-backed journal store.
func New(cfg *types.RedisConfig) *Store {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return NewFromClient(client, cfg.KeyPrefix)
}

// NewFromClient creates a Store from an existing client (useful for testing).
func NewFromClient(client *goredis.Client, prefix string) *Store {
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &Store{client: client, prefix: prefix}
}

func (s *Store) recordKey(id string) string { return s.prefix + "journal:rec:" + id }
func (s *Store) indexKey() string           { return s.prefix + "journal:index" }

// SaveDispatch writes the initial record and indexes it by start time.
func (s *Store) SaveDispatch(ctx context.Context, rec journal.Record) error {
	pipe := s.client.Pipeline()
	pipe.HSet(ctx, s.recordKey(rec.ID), toHash(rec))
	pipe.ZAdd(ctx, s.indexKey(), goredis.Z{
		Score:  float64(rec.StartedAt.UnixMilli()),
		Member: rec.ID,
	})
	_, err := pipe.Exec(ctx)
	return err
}

// MarkCorrelated records the run identity. Hash fields update in place;
// missing records are not created.
func (s *Store) MarkCorrelated(ctx context.Context, id, runID, referenceURL string, at time.Time) error {
	if err := s.exists(ctx, id); err != nil {
		return err
	}
	return s.client.HSet(ctx, s.recordKey(id), map[string]any{
		"runId":        runID,
		"referenceUrl": referenceURL,
		"state":        string(journal.StateCorrelated),
		"updatedAt":    formatTime(at),
	}).Err()
}

// MarkVerdict finalizes the record.
func (s *Store) MarkVerdict(ctx context.Context, id string, verdict types.Verdict, at time.Time) error {
	if err := s.exists(ctx, id); err != nil {
		return err
	}
	return s.client.HSet(ctx, s.recordKey(id), map[string]any{
		"state":      string(journal.StateDone),
		"verdict":    string(verdict.Code),
		"reason":     verdict.Reason,
		"updatedAt":  formatTime(at),
		"finishedAt": formatTime(at),
	}).Err()
}

// Get returns the record for id.
func (s *Store) Get(ctx context.Context, id string) (journal.Record, error) {
	fields, err := s.client.HGetAll(ctx, s.recordKey(id)).Result()
	if err != nil {
		return journal.Record{}, err
	}
	if len(fields) == 0 {
		return journal.Record{}, journal.ErrNotFound
	}
	return fromHash(fields)
}

// List returns the most recent records, newest first.
func (s *Store) List(ctx context.Context, limit int) ([]journal.Record, error) {
	if limit <= 0 {
		limit = journal.DefaultListLimit
	}

	ids, err := s.client.ZRevRange(ctx, s.indexKey(), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, err
	}

	var recs []journal.Record
	for _, id := range ids {
		fields, err := s.client.HGetAll(ctx, s.recordKey(id)).Result()
		if err != nil || len(fields) == 0 {
			// Index entry without a hash: record expired or partially deleted.
			continue
		}
		rec, err := fromHash(fields)
		if err != nil {
			continue
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

// Ping checks connectivity to the Redis server.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

// Close closes the underlying client.
func (s *Store) Close() error { return s.client.Close() }

func (s *Store) exists(ctx context.Context, id string) error {
	n, err := s.client.Exists(ctx, s.recordKey(id)).Result()
	if err != nil {
		return err
	}
	if n == 0 {
		return journal.ErrNotFound
	}
	return nil
}

func toHash(rec journal.Record) map[string]any {
	fields := map[string]any{
		"id":        rec.ID,
		"backend":   string(rec.Backend),
		"workflow":  rec.Workflow,
		"ref":       rec.Ref,
		"state":     string(rec.State),
		"startedAt": formatTime(rec.StartedAt),
		"updatedAt": formatTime(rec.UpdatedAt),
	}
	if rec.RunID != "" {
		fields["runId"] = rec.RunID
	}
	if rec.ReferenceURL != "" {
		fields["referenceUrl"] = rec.ReferenceURL
	}
	if rec.Verdict != "" {
		fields["verdict"] = string(rec.Verdict)
		fields["reason"] = rec.Reason
	}
	if rec.FinishedAt != nil {
		fields["finishedAt"] = formatTime(*rec.FinishedAt)
	}
	return fields
}

func fromHash(fields map[string]string) (journal.Record, error) {
	rec := journal.Record{
		ID:           fields["id"],
		Backend:      types.BackendKind(fields["backend"]),
		Workflow:     fields["workflow"],
		Ref:          fields["ref"],
		RunID:        fields["runId"],
		ReferenceURL: fields["referenceUrl"],
		State:        journal.State(fields["state"]),
		Verdict:      types.VerdictCode(fields["verdict"]),
		Reason:       fields["reason"],
	}

	var err error
	if rec.StartedAt, err = parseTime(fields["startedAt"]); err != nil {
		return journal.Record{}, fmt.Errorf("record %q: %w", rec.ID, err)
	}
	if rec.UpdatedAt, err = parseTime(fields["updatedAt"]); err != nil {
		return journal.Record{}, fmt.Errorf("record %q: %w", rec.ID, err)
	}
	if v, ok := fields["finishedAt"]; ok {
		finished, err := parseTime(v)
		if err != nil {
			return journal.Record{}, fmt.Errorf("record %q: %w", rec.ID, err)
		}
		rec.FinishedAt = &finished
	}
	return rec, nil
}

// Times are stored as unix milliseconds to match the zset scores.
func formatTime(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}

func parseTime(v string) (time.Time, error) {
	millis, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing timestamp %q: %w", v, err)
	}
	return time.UnixMilli(millis).UTC(), nil
}

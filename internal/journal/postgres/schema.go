// Package postgres implements a durable Postgres journal store.
package postgres

const schemaDDL = `
CREATE TABLE IF NOT EXISTS orchestrations (
    id            TEXT PRIMARY KEY,
    backend       TEXT NOT NULL,
    workflow      TEXT NOT NULL,
    ref           TEXT,
    run_id        TEXT,
    reference_url TEXT,
    state         TEXT NOT NULL,
    verdict       TEXT,
    reason        TEXT,
    started_at    TIMESTAMPTZ NOT NULL,
    updated_at    TIMESTAMPTZ NOT NULL,
    finished_at   TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_orchestrations_started_at ON orchestrations (started_at);
CREATE INDEX IF NOT EXISTS idx_orchestrations_state ON orchestrations (state);
`

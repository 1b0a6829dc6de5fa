// Package postgres provides a PostgreSQL-backed [memory.HistoryStore].
//
// Each interview session is one row of the interview_sessions table; its
// history is a JSONB array of {"role", "content"} objects that is extended
// in place by Append.
//
// Usage:
//
//	store, err := postgres.NewStore(ctx, dsn)
//	if err != nil { … }
//	defer store.Close()
//
//	_ = store.Append(ctx, sessionID, memory.Message{Role: "user", Content: "hi"})
//	recent, _ := store.Recent(ctx, sessionID, 10)
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const ddlInterviewSessions = `
CREATE TABLE IF NOT EXISTS interview_sessions (
    session_id  TEXT         PRIMARY KEY,
    history     JSONB        NOT NULL DEFAULT '[]',
    created_at  TIMESTAMPTZ  NOT NULL DEFAULT now(),
    updated_at  TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_interview_sessions_updated_at
    ON interview_sessions (updated_at);
`

// Migrate creates the interview_sessions table if it does not exist. It is
// idempotent and safe to call on every start.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, ddlInterviewSessions); err != nil {
		return fmt.Errorf("postgres migrate: %w", err)
	}
	return nil
}

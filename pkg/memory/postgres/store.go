package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/intervox/pkg/memory"
)

var _ memory.HistoryStore = (*Store)(nil)

// Store is the PostgreSQL-backed history store. It holds a single
// [pgxpool.Pool] and is safe for concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore connects to the database at dsn, verifies the connection and runs
// [Migrate].
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres store: parse dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres store: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: ping: %w", err)
	}

	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: migrate: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Append implements [memory.HistoryStore]. The first append for a session
// creates its row; later appends concatenate onto the JSONB array.
func (s *Store) Append(ctx context.Context, sessionID string, msgs ...memory.Message) error {
	if sessionID == "" {
		return memory.ErrInvalidSession
	}
	if len(msgs) == 0 {
		return nil
	}
	data, err := json.Marshal(msgs)
	if err != nil {
		return fmt.Errorf("history store: encode: %w", err)
	}

	const q = `
		INSERT INTO interview_sessions (session_id, history)
		VALUES ($1, $2::jsonb)
		ON CONFLICT (session_id) DO UPDATE
		    SET history    = interview_sessions.history || EXCLUDED.history,
		        updated_at = now()`

	if _, err := s.pool.Exec(ctx, q, sessionID, string(data)); err != nil {
		return fmt.Errorf("history store: append: %w", err)
	}
	return nil
}

// Recent implements [memory.HistoryStore].
func (s *Store) Recent(ctx context.Context, sessionID string, n int) ([]memory.Message, error) {
	if sessionID == "" {
		return nil, memory.ErrInvalidSession
	}

	const q = `SELECT history FROM interview_sessions WHERE session_id = $1`

	var raw []byte
	err := s.pool.QueryRow(ctx, q, sessionID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return []memory.Message{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("history store: recent: %w", err)
	}

	var msgs []memory.Message
	if err := json.Unmarshal(raw, &msgs); err != nil {
		return nil, fmt.Errorf("history store: decode: %w", err)
	}
	return memory.Tail(msgs, n), nil
}

// Delete implements [memory.HistoryStore].
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return memory.ErrInvalidSession
	}
	if _, err := s.pool.Exec(ctx, `DELETE FROM interview_sessions WHERE session_id = $1`, sessionID); err != nil {
		return fmt.Errorf("history store: delete: %w", err)
	}
	return nil
}

// Ping checks the database connection. It backs the backend's readiness
// probe.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases all pooled connections.
func (s *Store) Close() {
	s.pool.Close()
}

// Package redis provides a Redis-backed [memory.HistoryStore].
//
// Each session's history is a Redis list of JSON-encoded messages under
// "<prefix>:history:<session id>". Every append refreshes the key's TTL, so
// abandoned interviews expire on their own.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MrWong99/intervox/pkg/memory"
)

// DefaultTTL is how long an idle session's history is kept.
const DefaultTTL = 24 * time.Hour

var _ memory.HistoryStore = (*Store)(nil)

// Store keeps interview history in Redis.
type Store struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// Option configures a Store.
type Option func(*Store)

// WithTTL sets the idle expiry of a session's history. Zero disables expiry.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) { s.ttl = ttl }
}

// WithPrefix sets the key prefix. Default is "intervox".
func WithPrefix(prefix string) Option {
	return func(s *Store) { s.prefix = prefix }
}

// NewStore returns a Store using client.
//
//	store := redis.NewStore(
//	    goredis.NewClient(&goredis.Options{Addr: "localhost:6379"}),
//	    redis.WithTTL(2*time.Hour),
//	)
func NewStore(client *redis.Client, opts ...Option) *Store {
	s := &Store{client: client, ttl: DefaultTTL, prefix: "intervox"}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Store) key(sessionID string) string {
	return s.prefix + ":history:" + sessionID
}

// Append implements [memory.HistoryStore]. The push and the TTL refresh are
// sent in one transaction.
func (s *Store) Append(ctx context.Context, sessionID string, msgs ...memory.Message) error {
	if sessionID == "" {
		return memory.ErrInvalidSession
	}
	if len(msgs) == 0 {
		return nil
	}
	values := make([]any, 0, len(msgs))
	for _, m := range msgs {
		data, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("redis history: encode: %w", err)
		}
		values = append(values, data)
	}

	key := s.key(sessionID)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, key, values...)
		if s.ttl > 0 {
			pipe.Expire(ctx, key, s.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis history: append: %w", err)
	}
	return nil
}

// Recent implements [memory.HistoryStore].
func (s *Store) Recent(ctx context.Context, sessionID string, n int) ([]memory.Message, error) {
	if sessionID == "" {
		return nil, memory.ErrInvalidSession
	}
	start := int64(0)
	if n > 0 {
		start = -int64(n)
	}
	raw, err := s.client.LRange(ctx, s.key(sessionID), start, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis history: recent: %w", err)
	}
	msgs := make([]memory.Message, 0, len(raw))
	for _, r := range raw {
		var m memory.Message
		if err := json.Unmarshal([]byte(r), &m); err != nil {
			return nil, fmt.Errorf("redis history: decode: %w", err)
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}

// Delete implements [memory.HistoryStore].
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return memory.ErrInvalidSession
	}
	if err := s.client.Del(ctx, s.key(sessionID)).Err(); err != nil {
		return fmt.Errorf("redis history: delete: %w", err)
	}
	return nil
}

// Ping checks the Redis connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Package memory defines the conversation history kept by the interview
// backend for each session.
//
// The dialogue endpoint reads a recency window of the history before calling
// the language model and appends the exchange afterwards. [HistoryStore] is
// public so that alternative storage backends (Postgres, Redis, in-memory)
// can be plugged in without depending on intervox internals.
//
// Every implementation must be safe for concurrent use.
package memory

import (
	"context"
	"errors"
)

// ErrInvalidSession is returned when a store method receives an empty
// session id.
var ErrInvalidSession = errors.New("memory: empty session id")

// Role values stored in [Message.Role]. They match the chat-completion role
// names so that history entries can be replayed to a model unchanged.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one history entry. The JSON form ({"role": ..., "content": ...})
// is the persisted format of every store.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// HistoryStore persists the conversation of each interview session.
type HistoryStore interface {
	// Append adds msgs to the end of the session's history, creating the
	// session on first use. Appending nothing is a no-op.
	Append(ctx context.Context, sessionID string, msgs ...Message) error

	// Recent returns the last n messages of the session, oldest first.
	// n <= 0 returns the whole history. An unknown session yields an empty,
	// non-nil slice.
	Recent(ctx context.Context, sessionID string, n int) ([]Message, error)

	// Delete removes the session's history. Deleting an unknown session is
	// not an error.
	Delete(ctx context.Context, sessionID string) error
}

// Tail returns the last n elements of msgs (all of them when n <= 0) as a
// fresh slice.
func Tail(msgs []Message, n int) []Message {
	if n > 0 && len(msgs) > n {
		msgs = msgs[len(msgs)-n:]
	}
	return append([]Message{}, msgs...)
}

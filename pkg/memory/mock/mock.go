// Package mock provides a configurable test double for [memory.HistoryStore].
//
// The mock records every call and is safe for concurrent use.
//
//	store := &mock.HistoryStore{RecentErr: errors.New("down")}
//	// inject store into the system under test …
//	if got := store.CallCount("Recent"); got != 1 { … }
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/intervox/pkg/memory"
)

// Call records the name and arguments of a single method invocation.
type Call struct {
	Method    string
	SessionID string
	Args      []any
}

// HistoryStore is a test double for [memory.HistoryStore]. Successful
// Appends are kept in an in-memory map so that Recent reflects them unless
// RecentResult is set.
type HistoryStore struct {
	mu    sync.Mutex
	calls []Call
	data  map[string][]memory.Message

	AppendErr    error
	RecentResult []memory.Message
	RecentErr    error
	DeleteErr    error
}

var _ memory.HistoryStore = (*HistoryStore)(nil)

// Append implements [memory.HistoryStore].
func (s *HistoryStore) Append(_ context.Context, sessionID string, msgs ...memory.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, Call{Method: "Append", SessionID: sessionID, Args: []any{msgs}})
	if s.AppendErr != nil {
		return s.AppendErr
	}
	if s.data == nil {
		s.data = make(map[string][]memory.Message)
	}
	s.data[sessionID] = append(s.data[sessionID], msgs...)
	return nil
}

// Recent implements [memory.HistoryStore].
func (s *HistoryStore) Recent(_ context.Context, sessionID string, n int) ([]memory.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, Call{Method: "Recent", SessionID: sessionID, Args: []any{n}})
	if s.RecentErr != nil {
		return nil, s.RecentErr
	}
	if s.RecentResult != nil {
		return memory.Tail(s.RecentResult, n), nil
	}
	return memory.Tail(s.data[sessionID], n), nil
}

// Delete implements [memory.HistoryStore].
func (s *HistoryStore) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, Call{Method: "Delete", SessionID: sessionID})
	if s.DeleteErr != nil {
		return s.DeleteErr
	}
	delete(s.data, sessionID)
	return nil
}

// Calls returns a copy of all recorded calls.
func (s *HistoryStore) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

// CallCount returns how many times method was called.
func (s *HistoryStore) CallCount(method string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

// Reset clears recorded calls and stored history. Configured errors and
// results are kept.
func (s *HistoryStore) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = nil
	s.data = nil
}

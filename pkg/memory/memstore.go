package memory

import (
	"context"
	"sync"
)

var _ HistoryStore = (*MemStore)(nil)

// MemStore is a process-local [HistoryStore]. History is lost on restart.
type MemStore struct {
	mu       sync.RWMutex
	sessions map[string][]Message
}

// NewMemStore returns an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{sessions: make(map[string][]Message)}
}

// Append implements [HistoryStore].
func (s *MemStore) Append(_ context.Context, sessionID string, msgs ...Message) error {
	if sessionID == "" {
		return ErrInvalidSession
	}
	if len(msgs) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sessionID] = append(s.sessions[sessionID], msgs...)
	return nil
}

// Recent implements [HistoryStore].
func (s *MemStore) Recent(_ context.Context, sessionID string, n int) ([]Message, error) {
	if sessionID == "" {
		return nil, ErrInvalidSession
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Tail(s.sessions[sessionID], n), nil
}

// Delete implements [HistoryStore].
func (s *MemStore) Delete(_ context.Context, sessionID string) error {
	if sessionID == "" {
		return ErrInvalidSession
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
	return nil
}

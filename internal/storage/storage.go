package storage

import (
	"sort"
	"sync"
)

// SessionStore is a concurrency-safe map of live sessions keyed by ID.
type SessionStore[T any] struct {
	sessions map[string]T
	mu       sync.RWMutex
}

func New[T any]() *SessionStore[T] {
	return &SessionStore[T]{
		sessions: make(map[string]T),
	}
}

func (s *SessionStore[T]) Get(sessionID string) (T, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, exists := s.sessions[sessionID]
	return session, exists
}

func (s *SessionStore[T]) Set(sessionID string, session T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sessionID] = session
}

// IDs returns the stored session IDs in sorted order.
func (s *SessionStore[T]) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.sessions))
	for k := range s.sessions {
		ids = append(ids, k)
	}
	sort.Strings(ids)
	return ids
}

// GetAll returns a snapshot copy of every stored session.
func (s *SessionStore[T]) GetAll() map[string]T {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]T, len(s.sessions))
	for k, v := range s.sessions {
		result[k] = v
	}
	return result
}

// Delete removes the session and returns it, so the caller can release
// whatever it holds.
func (s *SessionStore[T]) Delete(sessionID string) (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, exists := s.sessions[sessionID]
	delete(s.sessions, sessionID)
	return session, exists
}

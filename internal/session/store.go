// Package session holds per-user conversational state for the lifetime of the process.
package session

import (
	"sync"

	"poizon-bot/internal/domain"
)

// Store is a concurrency-safe map of sessions keyed by Telegram user id.
// Sessions are copied in and out so callers never share stored state.
type Store struct {
	mu       sync.RWMutex
	sessions map[int64]domain.Session
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{sessions: make(map[int64]domain.Session)}
}

// Get returns the user's session, or a fresh menu session when none exists.
func (s *Store) Get(userID int64) domain.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[userID]
	if !ok {
		return domain.NewSession()
	}
	return sess.Clone()
}

// Set overwrites the user's session.
func (s *Store) Set(userID int64, sess domain.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[userID] = sess.Clone()
}

// Clear removes the user's session. Clearing a missing session is a no-op.
func (s *Store) Clear(userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, userID)
}

// Len reports the number of live sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

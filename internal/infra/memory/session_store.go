package memory

import (
	"context"
	"sync"

	"timed-quiz-service/internal/domain"
)

// SessionStore is an in-memory implementation of app.SessionStore. It does
// not survive a restart; use the Redis store for that.
type SessionStore struct {
	mu     sync.RWMutex
	states map[domain.AttemptKey]domain.AttemptState
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		states: make(map[domain.AttemptKey]domain.AttemptState),
	}
}

func (s *SessionStore) Load(_ context.Context, key domain.AttemptKey) (domain.AttemptState, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.states[key]
	if !ok {
		return domain.AttemptState{}, false, nil
	}
	return state.Clone(), true, nil
}

func (s *SessionStore) Save(_ context.Context, state domain.AttemptState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[state.Key()] = state.Clone()
	return nil
}

func (s *SessionStore) Clear(_ context.Context, key domain.AttemptKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, key)
	return nil
}

// Put stores state verbatim, skipping the key derivation Save performs.
// Tests use it to seed damaged records.
func (s *SessionStore) Put(key domain.AttemptKey, state domain.AttemptState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[key] = state.Clone()
}

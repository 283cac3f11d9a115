package checkpoint

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory implementation of Store.
// Suitable for single-process deployments and testing.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	maxTurns int
}

// NewMemoryStore creates a new in-memory checkpoint store.
// maxTurns bounds turns kept per session; values <= 0 default to 20.
func NewMemoryStore(maxTurns int) *MemoryStore {
	if maxTurns <= 0 {
		maxTurns = 20
	}
	return &MemoryStore{
		sessions: make(map[string]*Session),
		maxTurns: maxTurns,
	}
}

// SaveTurn appends a turn to the session checkpoint
func (s *MemoryStore) SaveTurn(_ context.Context, sessionID string, turn Turn) error {
	if sessionID == "" {
		return ErrInvalidInput
	}
	if turn.AskedAt.IsZero() {
		turn.AskedAt = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		session = &Session{SessionID: sessionID}
		s.sessions[sessionID] = session
	}

	session.Turns = append(session.Turns, turn)
	if len(session.Turns) > s.maxTurns {
		session.Turns = session.Turns[len(session.Turns)-s.maxTurns:]
	}
	session.UpdatedAt = time.Now()
	return nil
}

// Load retrieves a session checkpoint by ID
func (s *MemoryStore) Load(_ context.Context, sessionID string) (*Session, error) {
	if sessionID == "" {
		return nil, ErrInvalidInput
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}

	// Return a copy so callers cannot mutate stored state.
	copied := &Session{
		SessionID: session.SessionID,
		Turns:     append([]Turn(nil), session.Turns...),
		UpdatedAt: session.UpdatedAt,
	}
	return copied, nil
}

// Delete removes a session checkpoint
func (s *MemoryStore) Delete(_ context.Context, sessionID string) error {
	if sessionID == "" {
		return ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
	return nil
}

// Ping always succeeds for the in-memory store
func (s *MemoryStore) Ping(_ context.Context) error {
	return nil
}

// Close clears all stored sessions
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions = make(map[string]*Session)
	return nil
}

package memory

import (
	"context"
	"sync"
	"time"

	"live-trivia/internal/app"
	"live-trivia/internal/domain"
	"live-trivia/internal/game"
)

// SessionStore is an in-memory implementation of app.SessionStore. Sessions
// are independent; the store lock only guards the map itself.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*game.Session
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*game.Session),
	}
}

func (s *SessionStore) Put(_ context.Context, session *game.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[session.Code()]; ok {
		return app.ErrCodeTaken
	}
	s.sessions[session.Code()] = session
	return nil
}

func (s *SessionStore) Get(_ context.Context, code string) (*game.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[code]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return session, nil
}

// Save is a no-op: sessions mutate in place.
func (s *SessionStore) Save(context.Context, *game.Session) error {
	return nil
}

func (s *SessionStore) Delete(_ context.Context, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, code)
	return nil
}

func (s *SessionStore) ListExpired(_ context.Context, cutoff time.Time) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var codes []string
	for code, session := range s.sessions {
		if session.LastTouched().Before(cutoff) {
			codes = append(codes, code)
		}
	}
	return codes, nil
}

package memory

import (
	"sync"
	"time"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"
)

// SessionStore is an in-memory implementation of app.SessionRepository.
type SessionStore struct {
	now      func() time.Time
	mu       sync.RWMutex
	sessions map[string]*app.Session
}

func NewSessionStore() *SessionStore {
	return NewSessionStoreWithClock(time.Now)
}

// NewSessionStoreWithClock creates sessions that read time from now.
func NewSessionStoreWithClock(now func() time.Time) *SessionStore {
	return &SessionStore{
		now:      now,
		sessions: make(map[string]*app.Session),
	}
}

func (s *SessionStore) GetOrCreate(code string, quiz domain.Quiz) *app.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	if session, ok := s.sessions[code]; ok {
		return session
	}
	session := app.NewSessionWithClock(code, quiz, s.now)
	s.sessions[code] = session
	return session
}

func (s *SessionStore) Get(code string) (*app.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[code]
	return session, ok
}

func (s *SessionStore) Remove(code string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, code)
}

// Len reports how many sessions are registered.
func (s *SessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

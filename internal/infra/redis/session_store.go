package redis

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"
	"github.com/redis/go-redis/v9"
)

// SessionStore is a Redis-aware implementation of app.SessionRepository.
// Sessions live in process; Redis only carries a liveness marker per join code
// so other instances and operators can see which codes are live.
type SessionStore struct {
	client *redis.Client
	ttl    time.Duration
	now    func() time.Time
	log    *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*app.Session
}

func NewSessionStore(client *redis.Client, ttl time.Duration, log *slog.Logger) *SessionStore {
	if log == nil {
		log = slog.Default()
	}
	return &SessionStore{
		client:   client,
		ttl:      ttl,
		now:      time.Now,
		log:      log,
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
	// best-effort liveness marker
	if err := s.client.Set(context.Background(), s.key(code), quiz.ID, s.ttl).Err(); err != nil {
		s.log.Warn("session marker not written", "code", code, "err", err)
	}
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
	if _, ok := s.sessions[code]; !ok {
		return
	}
	delete(s.sessions, code)
	if err := s.client.Del(context.Background(), s.key(code)).Err(); err != nil {
		s.log.Warn("session marker not cleared", "code", code, "err", err)
	}
}

// Live reports whether any instance has marked the code as live.
func (s *SessionStore) Live(ctx context.Context, code string) (bool, error) {
	n, err := s.client.Exists(ctx, s.key(code)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *SessionStore) key(code string) string {
	return "quiz:session:" + code
}

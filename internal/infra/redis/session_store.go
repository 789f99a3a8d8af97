package redis

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"trivia-quiz-service/internal/app"
)

// SessionStore is a Redis-aware implementation of app.SessionRepository.
// Sessions stay in process since each one is bound to a single connection;
// Redis holds a liveness marker per session so operators can count live
// sessions across instances.
type SessionStore struct {
	client   redis.UniversalClient
	ttl      time.Duration
	prefix   string
	mu       sync.RWMutex
	sessions map[string]*app.Session
}

func NewSessionStore(client redis.UniversalClient, prefix string, ttl time.Duration) *SessionStore {
	return &SessionStore{
		client:   client,
		ttl:      ttl,
		prefix:   prefix,
		sessions: make(map[string]*app.Session),
	}
}

func (s *SessionStore) Put(session *app.Session) {
	s.mu.Lock()
	s.sessions[session.ID()] = session
	s.mu.Unlock()

	// best-effort liveness marker
	if err := s.client.Set(context.Background(), s.key(session.ID()), "1", s.ttl).Err(); err != nil {
		slog.Warn("redis: mark session live failed", "session_id", session.ID(), "error", err)
	}
}

// Get returns a live session and extends its liveness marker.
func (s *SessionStore) Get(sessionID string) (*app.Session, bool) {
	s.mu.RLock()
	session, ok := s.sessions[sessionID]
	s.mu.RUnlock()
	if ok && s.ttl > 0 {
		if err := s.client.Expire(context.Background(), s.key(sessionID), s.ttl).Err(); err != nil {
			slog.Warn("redis: refresh session marker failed", "session_id", sessionID, "error", err)
		}
	}
	return session, ok
}

func (s *SessionStore) Delete(sessionID string) {
	s.mu.Lock()
	delete(s.sessions, sessionID)
	s.mu.Unlock()
	if err := s.client.Del(context.Background(), s.key(sessionID)).Err(); err != nil {
		slog.Warn("redis: clear session marker failed", "session_id", sessionID, "error", err)
	}
}

// Live counts session markers across every instance sharing the Redis.
func (s *SessionStore) Live(ctx context.Context) (int, error) {
	var (
		cursor uint64
		count  int
	)
	for {
		keys, next, err := s.client.Scan(ctx, cursor, s.prefix+":session:*", 100).Result()
		if err != nil {
			return 0, err
		}
		count += len(keys)
		if next == 0 {
			return count, nil
		}
		cursor = next
	}
}

func (s *SessionStore) key(sessionID string) string {
	return s.prefix + ":session:" + sessionID
}

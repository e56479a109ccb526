package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"live-trivia/internal/app"
	"live-trivia/internal/domain"
	"live-trivia/internal/game"
)

// SessionStore is a Redis-backed implementation of app.SessionStore.
// Notes:
//   - A local in-memory map keeps live *game.Session values so in-process
//     mutation and subscriber broadcast work unchanged.
//   - Every Save writes the full session snapshot (plus host token and touch
//     time) to Redis with a TTL, so a restarted instance can restore sessions
//     exactly as they were.
//   - For true multi-instance serving you'd pair this with pub/sub routing;
//     here Redis provides durability and idle expiry.
type SessionStore struct {
	client *redis.Client
	ttl    time.Duration
	clock  func() time.Time

	mu       sync.RWMutex
	sessions map[string]*game.Session
}

// storedSession is the persisted form of one session.
type storedSession struct {
	Snapshot  domain.Snapshot `json:"snapshot"`
	HostToken string          `json:"hostToken"`
	TouchedMs int64           `json:"touchedMs"`
}

func NewSessionStore(client *redis.Client, ttl time.Duration) *SessionStore {
	return &SessionStore{
		client:   client,
		ttl:      ttl,
		clock:    time.Now,
		sessions: make(map[string]*game.Session),
	}
}

func (s *SessionStore) Put(ctx context.Context, session *game.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	code := session.Code()
	if _, ok := s.sessions[code]; ok {
		return app.ErrCodeTaken
	}

	payload, err := marshalSession(session)
	if err != nil {
		return err
	}
	created, err := s.client.SetNX(ctx, s.key(code), payload, s.ttl).Result()
	if err != nil {
		return fmt.Errorf("persist session: %w", err)
	}
	if !created {
		return app.ErrCodeTaken
	}
	s.sessions[code] = session
	return nil
}

func (s *SessionStore) Get(ctx context.Context, code string) (*game.Session, error) {
	s.mu.RLock()
	session, ok := s.sessions[code]
	s.mu.RUnlock()
	if ok {
		return session, nil
	}

	// Not held locally: restore from the persisted snapshot if one exists.
	raw, err := s.client.Get(ctx, s.key(code)).Bytes()
	if err == redis.Nil {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	var stored storedSession
	if err := json.Unmarshal(raw, &stored); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if session, ok := s.sessions[code]; ok {
		return session, nil
	}
	session = game.Restore(stored.Snapshot, stored.HostToken, time.UnixMilli(stored.TouchedMs))
	s.sessions[code] = session
	return session, nil
}

// Save writes the current snapshot through to Redis and refreshes the TTL.
func (s *SessionStore) Save(ctx context.Context, session *game.Session) error {
	payload, err := marshalSession(session)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.key(session.Code()), payload, s.ttl).Err(); err != nil {
		return fmt.Errorf("persist session: %w", err)
	}
	return nil
}

func (s *SessionStore) Delete(ctx context.Context, code string) error {
	s.mu.Lock()
	delete(s.sessions, code)
	s.mu.Unlock()
	if err := s.client.Del(ctx, s.key(code)).Err(); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// ListExpired reports locally-held sessions idle past the cutoff. Remote
// copies expire on their own through the Redis TTL.
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

func (s *SessionStore) key(code string) string {
	return "trivia:session:" + code
}

func marshalSession(session *game.Session) ([]byte, error) {
	stored := storedSession{
		Snapshot:  session.Snapshot(),
		HostToken: session.HostToken(),
		TouchedMs: session.LastTouched().UnixMilli(),
	}
	payload, err := json.Marshal(stored)
	if err != nil {
		return nil, fmt.Errorf("encode session: %w", err)
	}
	return payload, nil
}

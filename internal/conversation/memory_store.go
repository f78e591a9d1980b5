package conversation

import (
	"context"
	"sync"
	"time"
)

type session struct {
	turns     []Turn
	expiresAt time.Time
}

// MemoryStore is an in-process Store used when Redis is not configured and
// in tests. Expired sessions are dropped lazily on access.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*session
	cfg      Config
	now      func() time.Time
}

// NewMemoryStore creates an in-memory conversation store
func NewMemoryStore(cfg Config) *MemoryStore {
	if cfg.MaxHistory <= 0 {
		cfg.MaxHistory = DefaultConfig().MaxHistory
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = DefaultConfig().SessionTTL
	}
	return &MemoryStore{
		sessions: make(map[string]*session),
		cfg:      cfg,
		now:      time.Now,
	}
}

// Append pushes a turn, evicts beyond MaxHistory, and refreshes the TTL
func (s *MemoryStore) Append(ctx context.Context, sessionID string, turn Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.sessions[sessionID]
	if sess == nil || s.now().After(sess.expiresAt) {
		sess = &session{}
		s.sessions[sessionID] = sess
	}

	sess.turns = capTurns(append(sess.turns, turn), s.cfg.MaxHistory)
	sess.expiresAt = s.now().Add(s.cfg.SessionTTL)
	return nil
}

// History returns at most limit trailing turns, oldest first
func (s *MemoryStore) History(ctx context.Context, sessionID string, limit int) ([]Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess := s.sessions[sessionID]
	if sess == nil || s.now().After(sess.expiresAt) {
		return nil, nil
	}
	return lastTurns(sess.turns, limit), nil
}

// Delete removes a session
func (s *MemoryStore) Delete(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
	return nil
}

// Sweep drops expired sessions; call periodically from a janitor goroutine
func (s *MemoryStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	now := s.now()
	for id, sess := range s.sessions {
		if now.After(sess.expiresAt) {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}

package conversation

import (
	"context"
	"fmt"

	"github.com/doctalk/doctalk/internal/cache"
)

// RedisStore keeps each session as one JSON value with a TTL. Append is
// read-modify-write; concurrent appends to the same session may race, which
// is acceptable for a per-user conversation window.
type RedisStore struct {
	redis *cache.RedisClient
	cfg   Config
}

// NewRedisStore creates a redis-backed conversation store
func NewRedisStore(redis *cache.RedisClient, cfg Config) *RedisStore {
	if cfg.MaxHistory <= 0 {
		cfg.MaxHistory = DefaultConfig().MaxHistory
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = DefaultConfig().SessionTTL
	}
	return &RedisStore{redis: redis, cfg: cfg}
}

func sessionKey(sessionID string) string {
	return "conversation:" + sessionID
}

// Append pushes a turn, evicts beyond MaxHistory, and refreshes the TTL
func (s *RedisStore) Append(ctx context.Context, sessionID string, turn Turn) error {
	key := sessionKey(sessionID)

	var turns []Turn
	if err := s.redis.Get(ctx, key, &turns); err != nil && !cache.IsMiss(err) {
		return fmt.Errorf("failed to load session %s: %w", sessionID, err)
	}

	turns = capTurns(append(turns, turn), s.cfg.MaxHistory)

	if err := s.redis.Set(ctx, key, turns, s.cfg.SessionTTL); err != nil {
		return fmt.Errorf("failed to persist session %s: %w", sessionID, err)
	}
	return nil
}

// History returns at most limit trailing turns, oldest first
func (s *RedisStore) History(ctx context.Context, sessionID string, limit int) ([]Turn, error) {
	var turns []Turn
	if err := s.redis.Get(ctx, sessionKey(sessionID), &turns); err != nil {
		if cache.IsMiss(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load session %s: %w", sessionID, err)
	}
	return lastTurns(turns, limit), nil
}

// Delete removes a session
func (s *RedisStore) Delete(ctx context.Context, sessionID string) error {
	return s.redis.Delete(ctx, sessionKey(sessionID))
}

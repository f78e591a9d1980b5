package cache

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// ResultCache provides typed memoization for the retrieval pipeline. All
// entries are JSON values with a TTL; keys embed a hash of the inputs so
// logically identical requests share an entry.
type ResultCache struct {
	redis      *RedisClient
	enabled    bool
	defaultTTL time.Duration
	logger     *logrus.Logger

	hits   int64
	misses int64
}

// Stats is a point-in-time snapshot of cache effectiveness
type Stats struct {
	Enabled bool  `json:"enabled"`
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
}

// NewResultCache creates a result cache. When the ping fails the cache is
// created disabled: every lookup misses and every store is a no-op, so the
// pipeline keeps working without Redis.
func NewResultCache(redis *RedisClient, defaultTTL time.Duration, logger *logrus.Logger) *ResultCache {
	if logger == nil {
		logger = logrus.New()
	}
	if defaultTTL <= 0 {
		defaultTTL = 30 * time.Minute
	}

	c := &ResultCache{
		redis:      redis,
		defaultTTL: defaultTTL,
		logger:     logger,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if redis == nil {
		logger.Warn("Result cache created without Redis, caching disabled")
		return c
	}
	if err := redis.Ping(ctx); err != nil {
		logger.WithError(err).Warn("Redis unreachable, caching disabled")
		return c
	}

	c.enabled = true
	return c
}

// IsEnabled reports whether the cache is backed by a live Redis
func (c *ResultCache) IsEnabled() bool {
	return c.enabled
}

// Stats returns hit/miss counters
func (c *ResultCache) Stats() Stats {
	return Stats{
		Enabled: c.enabled,
		Hits:    atomic.LoadInt64(&c.hits),
		Misses:  atomic.LoadInt64(&c.misses),
	}
}

// EmbeddingKey builds the cache key for one text's embedding. Whitespace is
// collapsed before hashing so texts differing only in spacing share an entry.
func EmbeddingKey(model, text string) string {
	normalized := strings.Join(strings.Fields(text), " ")
	sum := sha256.Sum256([]byte(model + ":" + normalized))
	return "embedding:" + hex.EncodeToString(sum[:])
}

// SearchKey builds the cache key for a retrieval result set
func SearchKey(mode, knowledgeBaseID, query, params string) string {
	return fmt.Sprintf("search:%s:%s:%s:%s",
		mode, knowledgeBaseID,
		base64.StdEncoding.EncodeToString([]byte(query)), params)
}

// LLMKey builds the cache key for a completion request
func LLMKey(request interface{}) (string, error) {
	data, err := json.Marshal(request)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request for cache key: %w", err)
	}
	return "llm:" + base64.StdEncoding.EncodeToString(data), nil
}

// GetEmbedding looks up a cached vector; second return is false on miss
func (c *ResultCache) GetEmbedding(ctx context.Context, model, text string) ([]float32, bool) {
	var vector []float32
	if !c.get(ctx, EmbeddingKey(model, text), &vector) {
		return nil, false
	}
	return vector, true
}

// SetEmbedding stores a vector with the embedding TTL. Embeddings are
// deterministic for a fixed model+text, so the TTL is long.
func (c *ResultCache) SetEmbedding(ctx context.Context, model, text string, vector []float32, ttl time.Duration) {
	c.set(ctx, EmbeddingKey(model, text), vector, ttl)
}

// GetJSON looks up an arbitrary cached value by key
func (c *ResultCache) GetJSON(ctx context.Context, key string, dest interface{}) bool {
	return c.get(ctx, key, dest)
}

// SetJSON stores an arbitrary value by key
func (c *ResultCache) SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) {
	c.set(ctx, key, value, ttl)
}

func (c *ResultCache) get(ctx context.Context, key string, dest interface{}) bool {
	if !c.enabled {
		return false
	}
	err := c.redis.Get(ctx, key, dest)
	if err != nil {
		if !IsMiss(err) {
			c.logger.WithError(err).WithField("key", key).Debug("Cache get failed")
		}
		atomic.AddInt64(&c.misses, 1)
		return false
	}
	atomic.AddInt64(&c.hits, 1)
	return true
}

func (c *ResultCache) set(ctx context.Context, key string, value interface{}, ttl time.Duration) {
	if !c.enabled {
		return
	}
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	if err := c.redis.Set(ctx, key, value, ttl); err != nil {
		c.logger.WithError(err).WithField("key", key).Debug("Cache set failed")
	}
}

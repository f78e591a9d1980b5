package conversation

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/doctalk/doctalk/internal/cache"
)

func turnN(n int) Turn {
	return Turn{
		Question:  fmt.Sprintf("question %d", n),
		Answer:    fmt.Sprintf("answer %d", n),
		Timestamp: time.Date(2025, 1, 1, 0, 0, n, 0, time.UTC),
	}
}

// both implementations must satisfy the same contract
func runStoreContract(t *testing.T, newStore func(t *testing.T, cfg Config) Store) {
	ctx := context.Background()

	t.Run("history cap keeps most recent", func(t *testing.T) {
		store := newStore(t, Config{MaxHistory: 5, SessionTTL: time.Hour})

		for i := 0; i < 8; i++ {
			require.NoError(t, store.Append(ctx, "s1", turnN(i)))
		}

		turns, err := store.History(ctx, "s1", 100)
		require.NoError(t, err)
		require.Len(t, turns, 5)
		assert.Equal(t, "question 3", turns[0].Question)
		assert.Equal(t, "question 7", turns[4].Question)
	})

	t.Run("history limit returns trailing turns oldest first", func(t *testing.T) {
		store := newStore(t, Config{MaxHistory: 10, SessionTTL: time.Hour})

		for i := 0; i < 6; i++ {
			require.NoError(t, store.Append(ctx, "s1", turnN(i)))
		}

		turns, err := store.History(ctx, "s1", 2)
		require.NoError(t, err)
		require.Len(t, turns, 2)
		assert.Equal(t, "question 4", turns[0].Question)
		assert.Equal(t, "question 5", turns[1].Question)
	})

	t.Run("unknown session yields empty history", func(t *testing.T) {
		store := newStore(t, Config{MaxHistory: 5, SessionTTL: time.Hour})

		turns, err := store.History(ctx, "missing", 10)
		require.NoError(t, err)
		assert.Empty(t, turns)
	})

	t.Run("delete removes session", func(t *testing.T) {
		store := newStore(t, Config{MaxHistory: 5, SessionTTL: time.Hour})

		require.NoError(t, store.Append(ctx, "s1", turnN(0)))
		require.NoError(t, store.Delete(ctx, "s1"))

		turns, err := store.History(ctx, "s1", 10)
		require.NoError(t, err)
		assert.Empty(t, turns)
	})

	t.Run("sessions are isolated", func(t *testing.T) {
		store := newStore(t, Config{MaxHistory: 5, SessionTTL: time.Hour})

		require.NoError(t, store.Append(ctx, "s1", turnN(1)))
		require.NoError(t, store.Append(ctx, "s2", turnN(2)))

		turns, err := store.History(ctx, "s1", 10)
		require.NoError(t, err)
		require.Len(t, turns, 1)
		assert.Equal(t, "question 1", turns[0].Question)
	})
}

func TestMemoryStoreContract(t *testing.T) {
	runStoreContract(t, func(t *testing.T, cfg Config) Store {
		return NewMemoryStore(cfg)
	})
}

func TestRedisStoreContract(t *testing.T) {
	runStoreContract(t, func(t *testing.T, cfg Config) Store {
		mr := miniredis.RunT(t)
		client := cache.NewRedisClientFromAddr(mr.Addr())
		t.Cleanup(func() { _ = client.Close() })
		return NewRedisStore(client, cfg)
	})
}

func TestRedisStoreTTLExpiry(t *testing.T) {
	mr := miniredis.RunT(t)
	client := cache.NewRedisClientFromAddr(mr.Addr())
	defer client.Close()

	store := NewRedisStore(client, Config{MaxHistory: 5, SessionTTL: time.Minute})
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, "s1", turnN(0)))
	mr.FastForward(2 * time.Minute)

	turns, err := store.History(ctx, "s1", 10)
	require.NoError(t, err)
	assert.Empty(t, turns)
}

func TestRedisStoreTTLRefreshedOnAppend(t *testing.T) {
	mr := miniredis.RunT(t)
	client := cache.NewRedisClientFromAddr(mr.Addr())
	defer client.Close()

	store := NewRedisStore(client, Config{MaxHistory: 5, SessionTTL: time.Minute})
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, "s1", turnN(0)))
	mr.FastForward(40 * time.Second)
	require.NoError(t, store.Append(ctx, "s1", turnN(1)))
	mr.FastForward(40 * time.Second)

	// 80s since creation but only 40s since last append: still alive
	turns, err := store.History(ctx, "s1", 10)
	require.NoError(t, err)
	assert.Len(t, turns, 2)
}

func TestMemoryStoreExpiry(t *testing.T) {
	store := NewMemoryStore(Config{MaxHistory: 5, SessionTTL: time.Minute})
	ctx := context.Background()

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	require.NoError(t, store.Append(ctx, "s1", turnN(0)))

	now = now.Add(2 * time.Minute)
	turns, err := store.History(ctx, "s1", 10)
	require.NoError(t, err)
	assert.Empty(t, turns)

	assert.Equal(t, 1, store.Sweep())
}

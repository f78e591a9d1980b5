// Package conversation keeps a bounded sliding window of prior turns per
// session. The window feeds follow-up questions back into the prompt and
// doubles as an audit trail; sessions expire after a TTL that refreshes on
// every append.
package conversation

import (
	"context"
	"time"
)

// Turn is one question-answer exchange
type Turn struct {
	Question      string    `json:"question"`
	Answer        string    `json:"answer"`
	ContextChunks []string  `json:"context_chunks,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// Config bounds session growth
type Config struct {
	// MaxHistory caps turns per session; oldest turns are evicted first
	MaxHistory int
	// SessionTTL expires idle sessions; refreshed on each append
	SessionTTL time.Duration
}

// DefaultConfig returns conversation defaults
func DefaultConfig() Config {
	return Config{
		MaxHistory: 20,
		SessionTTL: 24 * time.Hour,
	}
}

// Store persists conversation sessions. History returns turns oldest first,
// ready for direct inclusion in a prompt; a missing session yields an empty
// history, not an error.
type Store interface {
	Append(ctx context.Context, sessionID string, turn Turn) error
	History(ctx context.Context, sessionID string, limit int) ([]Turn, error)
	Delete(ctx context.Context, sessionID string) error
}

// capTurns drops the oldest turns so at most max remain
func capTurns(turns []Turn, max int) []Turn {
	if max > 0 && len(turns) > max {
		return turns[len(turns)-max:]
	}
	return turns
}

// lastTurns returns at most limit trailing turns, oldest first
func lastTurns(turns []Turn, limit int) []Turn {
	if limit > 0 && len(turns) > limit {
		turns = turns[len(turns)-limit:]
	}
	out := make([]Turn, len(turns))
	copy(out, turns)
	return out
}

package rag

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/doctalk/doctalk/internal/cache"
	"github.com/doctalk/doctalk/internal/conversation"
	"github.com/doctalk/doctalk/internal/llm"
	"github.com/doctalk/doctalk/internal/models"
)

// EventType tags one frame of a streamed answer
type EventType string

const (
	EventConversationStart EventType = "conversation_start"
	EventSearchStart       EventType = "search_start"
	EventSearchComplete    EventType = "search_complete"
	EventResponseStart     EventType = "response_start"
	EventResponseChunk     EventType = "response_chunk"
	EventResponseComplete  EventType = "response_complete"
	EventHeartbeat         EventType = "heartbeat"
	EventError             EventType = "error"
)

// StreamEvent is one frame of a streamed answer. Events for a single call
// are delivered in strict emission order.
type StreamEvent struct {
	Type           EventType      `json:"type"`
	ConversationID string         `json:"conversation_id,omitempty"`
	Content        string         `json:"content,omitempty"`
	Sources        []SearchResult `json:"sources,omitempty"`
	Usage          *llm.Usage     `json:"usage,omitempty"`
	ErrorKind      string         `json:"error_kind,omitempty"`
	Error          string         `json:"error,omitempty"`
	Timestamp      time.Time      `json:"timestamp"`
}

// Answer is a completed synchronous response
type Answer struct {
	ConversationID string         `json:"conversation_id"`
	Content        string         `json:"content"`
	Sources        []SearchResult `json:"sources,omitempty"`
	Usage          llm.Usage      `json:"usage"`
	FinishReason   string         `json:"finish_reason,omitempty"`
	Model          string         `json:"model,omitempty"`
}

const defaultSystemPrompt = `You are a helpful assistant that answers questions using the provided context.
Base your answers on the context below. If the context does not contain the
information needed, say so instead of guessing. Cite the context blocks you
used by their number.

Context:
%s`

// GeneratorConfig controls prompt assembly and the provider call
type GeneratorConfig struct {
	Model        string
	Temperature  float64
	MaxTokens    int
	SystemPrompt string
	PromptTurns  int
}

// DefaultGeneratorConfig returns generation defaults
func DefaultGeneratorConfig() GeneratorConfig {
	return GeneratorConfig{
		Model:        "gpt-4o-mini",
		Temperature:  0.2,
		MaxTokens:    1024,
		SystemPrompt: defaultSystemPrompt,
		PromptTurns:  6,
	}
}

// Generator turns assembled context, history, and a question into a
// provider request and runs it, synchronously or streamed.
type Generator struct {
	provider llm.Provider
	cfg      GeneratorConfig
	results  *cache.ResultCache
	cacheTTL time.Duration
	logger   *logrus.Logger
}

// NewGenerator creates an answer generator
func NewGenerator(provider llm.Provider, cfg GeneratorConfig, logger *logrus.Logger) *Generator {
	if logger == nil {
		logger = logrus.New()
	}
	if cfg.Model == "" {
		cfg.Model = DefaultGeneratorConfig().Model
	}
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = defaultSystemPrompt
	}
	if cfg.PromptTurns <= 0 {
		cfg.PromptTurns = DefaultGeneratorConfig().PromptTurns
	}
	return &Generator{provider: provider, cfg: cfg, logger: logger}
}

// WithCache memoizes synchronous completions keyed by the full request.
// Streamed completions are never cached.
func (g *Generator) WithCache(results *cache.ResultCache, ttl time.Duration) *Generator {
	g.results = results
	g.cacheTTL = ttl
	return g
}

// BuildMessages assembles the message sequence: system prompt with context,
// prior turns oldest first, then the current question.
func (g *Generator) BuildMessages(contextBlock string, history []conversation.Turn, question string) []llm.Message {
	system := g.cfg.SystemPrompt
	if strings.Contains(system, "%s") {
		system = fmt.Sprintf(system, contextBlock)
	} else {
		system = system + "\n\nContext:\n" + contextBlock
	}

	messages := make([]llm.Message, 0, 2+2*len(history))
	messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: system})

	turns := history
	if len(turns) > g.cfg.PromptTurns {
		turns = turns[len(turns)-g.cfg.PromptTurns:]
	}
	for _, turn := range turns {
		messages = append(messages,
			llm.Message{Role: llm.RoleUser, Content: turn.Question},
			llm.Message{Role: llm.RoleAssistant, Content: turn.Answer})
	}

	return append(messages, llm.Message{Role: llm.RoleUser, Content: question})
}

func (g *Generator) request(messages []llm.Message) *llm.Request {
	return &llm.Request{
		Model:       g.cfg.Model,
		Messages:    messages,
		Temperature: g.cfg.Temperature,
		MaxTokens:   g.cfg.MaxTokens,
	}
}

// Generate runs one synchronous completion. With a cache attached,
// identical requests within the TTL are served without a provider call.
func (g *Generator) Generate(ctx context.Context, contextBlock string, history []conversation.Turn, question string) (*llm.Response, error) {
	req := g.request(g.BuildMessages(contextBlock, history, question))

	var cacheKey string
	if g.results != nil && g.results.IsEnabled() {
		key, err := cache.LLMKey(req)
		if err == nil {
			cacheKey = key
			var cached llm.Response
			if g.results.GetJSON(ctx, cacheKey, &cached) {
				return &cached, nil
			}
		}
	}

	resp, err := g.provider.Complete(ctx, req)
	if err != nil {
		return nil, err
	}
	if resp.Content == "" {
		return nil, models.NewError(models.ErrKindGeneration, "provider returned an empty completion")
	}
	if cacheKey != "" {
		g.results.SetJSON(ctx, cacheKey, resp, g.cacheTTL)
	}
	return resp, nil
}

// GenerateStream opens a streamed completion. The returned channel follows
// the llm.Provider contract: closed after the final delta; cancel via ctx.
func (g *Generator) GenerateStream(ctx context.Context, contextBlock string, history []conversation.Turn, question string) (<-chan llm.StreamDelta, error) {
	return g.provider.CompleteStream(ctx, g.request(g.BuildMessages(contextBlock, history, question)))
}

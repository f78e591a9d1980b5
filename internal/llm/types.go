// Package llm talks to chat-completion providers. Two concrete providers
// are available, OpenAI and OpenRouter, both speaking the same wire format;
// selection happens at construction time.
package llm

import "context"

// Message is one chat turn in a completion request
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Request is a provider-agnostic completion request
type Request struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

// Usage reports token accounting for one completion
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is a completed (non-streamed) answer
type Response struct {
	Content      string `json:"content"`
	FinishReason string `json:"finish_reason"`
	Model        string `json:"model"`
	Usage        Usage  `json:"usage"`
}

// StreamDelta is one increment of a streamed answer. Done marks the final
// delta; when Err is set the stream failed mid-way and no further deltas
// follow.
type StreamDelta struct {
	Content      string
	FinishReason string
	Usage        *Usage
	Done         bool
	Err          error
}

// Provider is the language-model interface. CompleteStream's channel is
// closed after the Done (or Err) delta; callers cancel via ctx.
type Provider interface {
	Complete(ctx context.Context, req *Request) (*Response, error)
	CompleteStream(ctx context.Context, req *Request) (<-chan StreamDelta, error)
	Name() string
}

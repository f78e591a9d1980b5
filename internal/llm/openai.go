package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/doctalk/doctalk/internal/models"
)

const defaultOpenAIBaseURL = "https://api.openai.com/v1"

// OpenAIProvider implements Provider against an OpenAI-compatible
// chat-completions API.
type OpenAIProvider struct {
	name         string
	apiKey       string
	baseURL      string
	extraHeaders map[string]string
	httpClient   *http.Client
	retryConfig  RetryConfig
}

// NewOpenAIProvider creates an OpenAI provider
func NewOpenAIProvider(apiKey, baseURL string, timeout time.Duration) *OpenAIProvider {
	if baseURL == "" {
		baseURL = defaultOpenAIBaseURL
	}
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &OpenAIProvider{
		name:    "openai",
		apiKey:  apiKey,
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		retryConfig: DefaultRetryConfig(),
	}
}

// WithRetryConfig overrides the retry policy
func (p *OpenAIProvider) WithRetryConfig(cfg RetryConfig) *OpenAIProvider {
	p.retryConfig = cfg
	return p
}

// Name returns the provider identifier
func (p *OpenAIProvider) Name() string {
	return p.name
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Stream      bool      `json:"stream,omitempty"`
}

type chatResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Message      Message `json:"message"`
		FinishReason string  `json:"finish_reason"`
	} `json:"choices"`
	Usage Usage `json:"usage"`
}

type streamResponse struct {
	Choices []struct {
		Delta        Message `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
	Usage *Usage `json:"usage"`
}

// Complete sends one synchronous completion request, retrying transient
// provider failures with exponential backoff. Auth failures surface
// immediately.
func (p *OpenAIProvider) Complete(ctx context.Context, req *Request) (*Response, error) {
	resp, err := p.callWithRetry(ctx, req, false)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var apiResp chatResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return nil, models.WrapError(models.ErrKindGeneration, "provider returned invalid response shape", err)
	}
	if len(apiResp.Choices) == 0 {
		return nil, models.NewError(models.ErrKindGeneration, "provider returned no choices")
	}

	return &Response{
		Content:      apiResp.Choices[0].Message.Content,
		FinishReason: apiResp.Choices[0].FinishReason,
		Model:        apiResp.Model,
		Usage:        apiResp.Usage,
	}, nil
}

// CompleteStream opens a streamed completion. Deltas arrive on the returned
// channel in emission order; the channel closes after the Done or Err delta.
func (p *OpenAIProvider) CompleteStream(ctx context.Context, req *Request) (<-chan StreamDelta, error) {
	resp, err := p.callWithRetry(ctx, req, true)
	if err != nil {
		return nil, err
	}

	ch := make(chan StreamDelta)
	go func() {
		defer func() { _ = resp.Body.Close() }()
		defer close(ch)

		var usage *Usage
		finishReason := "stop"
		reader := bufio.NewReader(resp.Body)

		for {
			line, err := reader.ReadBytes('\n')
			if err != nil {
				if err == io.EOF {
					// stream ended without [DONE]; treat what we have as done
					select {
					case ch <- StreamDelta{Done: true, FinishReason: finishReason, Usage: usage}:
					case <-ctx.Done():
					}
					return
				}
				select {
				case ch <- StreamDelta{Err: models.WrapError(models.ErrKindGeneration, "stream read failed", err)}:
				case <-ctx.Done():
				}
				return
			}

			line = bytes.TrimSpace(line)
			if !bytes.HasPrefix(line, []byte("data: ")) {
				continue
			}
			line = bytes.TrimPrefix(line, []byte("data: "))

			if string(line) == "[DONE]" {
				select {
				case ch <- StreamDelta{Done: true, FinishReason: finishReason, Usage: usage}:
				case <-ctx.Done():
				}
				return
			}

			var streamResp streamResponse
			if err := json.Unmarshal(line, &streamResp); err != nil {
				continue
			}
			if streamResp.Usage != nil {
				usage = streamResp.Usage
			}
			if len(streamResp.Choices) == 0 {
				continue
			}

			choice := streamResp.Choices[0]
			if choice.FinishReason != nil && *choice.FinishReason != "" {
				finishReason = *choice.FinishReason
			}
			if choice.Delta.Content == "" {
				continue
			}

			select {
			case ch <- StreamDelta{Content: choice.Delta.Content}:
			case <-ctx.Done():
				return
			}
		}
	}()

	return ch, nil
}

func (p *OpenAIProvider) callWithRetry(ctx context.Context, req *Request, stream bool) (*http.Response, error) {
	apiReq := chatRequest{
		Model:       req.Model,
		Messages:    req.Messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		Stream:      stream,
	}

	body, err := json.Marshal(apiReq)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= p.retryConfig.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(p.retryConfig.backoffDelay(attempt - 1)):
			}
		}

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
		for k, v := range p.extraHeaders {
			httpReq.Header.Set(k, v)
		}

		resp, err := p.httpClient.Do(httpReq)
		if err != nil {
			if !IsRetryableError(err) {
				return nil, models.WrapError(models.ErrKindGeneration, "provider request failed", err)
			}
			lastErr = err
			continue
		}

		if resp.StatusCode == http.StatusOK {
			return resp, nil
		}

		respBody, _ := io.ReadAll(resp.Body)
		_ = resp.Body.Close()

		if !IsRetryableStatusCode(resp.StatusCode) {
			return nil, models.NewError(models.ErrKindGeneration,
				fmt.Sprintf("provider error: %d - %s", resp.StatusCode, string(respBody)))
		}
		lastErr = fmt.Errorf("provider error: %d - %s", resp.StatusCode, string(respBody))
	}

	return nil, models.WrapError(models.ErrKindGeneration,
		fmt.Sprintf("provider failed after %d attempts", p.retryConfig.MaxRetries+1), lastErr)
}

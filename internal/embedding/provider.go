// Package embedding converts text into fixed-dimension vectors through an
// external OpenAI-compatible embeddings API, with per-text caching and
// batched, retryable provider calls.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sort"
	"time"
)

// Usage reports provider token accounting for one call
type Usage struct {
	PromptTokens int `json:"prompt_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// Provider generates embeddings for batches of texts. Implementations must
// return one vector per input text, in input order.
type Provider interface {
	Embed(ctx context.Context, texts []string, model string) ([][]float32, Usage, error)
}

// APIError is a non-2xx provider response. StatusCode drives retry
// classification: 429 and 5xx are transient, other 4xx are permanent.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("embedding API error: %d - %s", e.StatusCode, e.Body)
}

// IsTransient reports whether err is worth retrying
func IsTransient(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= 500
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	// connection-level failures without a response are retryable
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

type embeddingRequest struct {
	Input []string `json:"input"`
	Model string   `json:"model"`
}

type embeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Usage Usage `json:"usage"`
}

// OpenAIProvider calls an OpenAI-compatible POST {base}/embeddings endpoint
type OpenAIProvider struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewOpenAIProvider creates an embeddings provider
func NewOpenAIProvider(apiKey, baseURL string, timeout time.Duration) *OpenAIProvider {
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &OpenAIProvider{
		apiKey:  apiKey,
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Embed requests embeddings for texts and returns them in input order
func (p *OpenAIProvider) Embed(ctx context.Context, texts []string, model string) ([][]float32, Usage, error) {
	body, err := json.Marshal(embeddingRequest{Input: texts, Model: model})
	if err != nil {
		return nil, Usage{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, Usage{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, Usage{}, fmt.Errorf("embedding request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, Usage{}, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, Usage{}, &APIError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	var apiResp embeddingResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return nil, Usage{}, fmt.Errorf("failed to parse response: %w", err)
	}
	if len(apiResp.Data) != len(texts) {
		return nil, Usage{}, fmt.Errorf("provider returned %d embeddings for %d inputs", len(apiResp.Data), len(texts))
	}

	// the API is allowed to reorder; index restores input order
	sort.Slice(apiResp.Data, func(i, j int) bool {
		return apiResp.Data[i].Index < apiResp.Data[j].Index
	})

	vectors := make([][]float32, len(apiResp.Data))
	for i, d := range apiResp.Data {
		vectors[i] = d.Embedding
	}
	return vectors, apiResp.Usage, nil
}

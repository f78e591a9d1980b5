package llm

import "time"

const defaultOpenRouterBaseURL = "https://openrouter.ai/api/v1"

// NewOpenRouterProvider creates a provider for OpenRouter. The wire format
// is OpenAI-compatible; only the base URL and attribution headers differ.
func NewOpenRouterProvider(apiKey, baseURL string, timeout time.Duration) *OpenAIProvider {
	if baseURL == "" {
		baseURL = defaultOpenRouterBaseURL
	}
	p := NewOpenAIProvider(apiKey, baseURL, timeout)
	p.name = "openrouter"
	p.extraHeaders = map[string]string{
		"HTTP-Referer": "https://github.com/doctalk/doctalk",
		"X-Title":      "DocTalk",
	}
	return p
}

package embedding

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/doctalk/doctalk/internal/cache"
	"github.com/doctalk/doctalk/internal/models"
)

// fakeProvider returns deterministic vectors and counts calls
type fakeProvider struct {
	calls    int32
	failures int32 // number of leading calls that fail
	failWith error
	batches  [][]string
}

func (f *fakeProvider) Embed(ctx context.Context, texts []string, model string) ([][]float32, Usage, error) {
	n := atomic.AddInt32(&f.calls, 1)
	f.batches = append(f.batches, texts)
	if n <= f.failures {
		return nil, Usage{}, f.failWith
	}
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vectors[i] = []float32{float32(len(text)), 1}
	}
	return vectors, Usage{TotalTokens: len(texts)}, nil
}

func fastConfig() Config {
	cfg := DefaultConfig()
	cfg.BatchDelay = time.Millisecond
	cfg.InitialDelay = time.Millisecond
	cfg.MaxDelay = 2 * time.Millisecond
	return cfg
}

func newCachedGateway(t *testing.T, provider Provider, cfg Config) *Gateway {
	t.Helper()
	mr := miniredis.RunT(t)
	client := cache.NewRedisClientFromAddr(mr.Addr())
	t.Cleanup(func() { _ = client.Close() })
	return NewGateway(provider, cache.NewResultCache(client, time.Hour, nil), cfg, nil)
}

func TestEmbedCachesSecondCall(t *testing.T) {
	provider := &fakeProvider{}
	g := newCachedGateway(t, provider, fastConfig())
	ctx := context.Background()

	first, err := g.Embed(ctx, "hello world")
	require.NoError(t, err)

	second, err := g.Embed(ctx, "hello world")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), provider.calls, "second call must be served from cache")
}

func TestEmbedNormalizedTextSharesCacheEntry(t *testing.T) {
	provider := &fakeProvider{}
	g := newCachedGateway(t, provider, fastConfig())
	ctx := context.Background()

	_, err := g.Embed(ctx, "hello world")
	require.NoError(t, err)
	_, err = g.Embed(ctx, "  hello\n\tworld ")
	require.NoError(t, err)

	assert.Equal(t, int32(1), provider.calls)
}

func TestEmbedBatchSplitsAtProviderLimit(t *testing.T) {
	provider := &fakeProvider{}
	cfg := fastConfig()
	cfg.BatchSize = 3
	g := NewGateway(provider, nil, cfg, nil)

	texts := make([]string, 8)
	for i := range texts {
		texts[i] = fmt.Sprintf("text number %d", i)
	}

	vectors, err := g.EmbedBatch(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, vectors, 8)
	assert.Equal(t, int32(3), provider.calls)
	assert.Len(t, provider.batches[0], 3)
	assert.Len(t, provider.batches[2], 2)

	for i, v := range vectors {
		assert.Equal(t, float32(len(texts[i])), v[0], "vector %d out of order", i)
	}
}

func TestEmbedRejectsOversizedInput(t *testing.T) {
	cfg := fastConfig()
	cfg.MaxInputChars = 10
	g := NewGateway(&fakeProvider{}, nil, cfg, nil)

	_, err := g.Embed(context.Background(), strings.Repeat("x", 11))
	require.Error(t, err)
	assert.True(t, models.IsKind(err, models.ErrKindValidation))
}

func TestEmbedRetriesTransientFailures(t *testing.T) {
	provider := &fakeProvider{
		failures: 2,
		failWith: &APIError{StatusCode: http.StatusServiceUnavailable, Body: "overloaded"},
	}
	g := NewGateway(provider, nil, fastConfig(), nil)

	vector, err := g.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.NotEmpty(t, vector)
	assert.Equal(t, int32(3), provider.calls)
}

func TestEmbedDoesNotRetryPermanentFailure(t *testing.T) {
	provider := &fakeProvider{
		failures: 10,
		failWith: &APIError{StatusCode: http.StatusUnauthorized, Body: "bad key"},
	}
	g := NewGateway(provider, nil, fastConfig(), nil)

	_, err := g.Embed(context.Background(), "hello")
	require.Error(t, err)
	assert.True(t, models.IsKind(err, models.ErrKindEmbedding))
	assert.Equal(t, int32(1), provider.calls)
}

func TestEmbedExhaustsRetries(t *testing.T) {
	provider := &fakeProvider{
		failures: 10,
		failWith: &APIError{StatusCode: http.StatusTooManyRequests, Body: "slow down"},
	}
	cfg := fastConfig()
	cfg.MaxRetries = 2
	g := NewGateway(provider, nil, cfg, nil)

	_, err := g.Embed(context.Background(), "hello")
	require.Error(t, err)
	assert.True(t, models.IsKind(err, models.ErrKindEmbedding))
	assert.Equal(t, int32(3), provider.calls)
}

func TestOpenAIProviderParsesResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req embeddingRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "test-model", req.Model)

		// deliberately reversed order: the client must restore input order
		w.Write([]byte(`{
			"data": [
				{"index": 1, "embedding": [0.3, 0.4]},
				{"index": 0, "embedding": [0.1, 0.2]}
			],
			"usage": {"prompt_tokens": 4, "total_tokens": 4}
		}`))
	}))
	defer srv.Close()

	p := NewOpenAIProvider("test-key", srv.URL, 5*time.Second)
	vectors, usage, err := p.Embed(context.Background(), []string{"a", "b"}, "test-model")
	require.NoError(t, err)
	require.Len(t, vectors, 2)
	assert.Equal(t, []float32{0.1, 0.2}, vectors[0])
	assert.Equal(t, []float32{0.3, 0.4}, vectors[1])
	assert.Equal(t, 4, usage.TotalTokens)
}

func TestOpenAIProviderAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"rate limited"}}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	p := NewOpenAIProvider("test-key", srv.URL, 5*time.Second)
	_, _, err := p.Embed(context.Background(), []string{"a"}, "m")
	require.Error(t, err)

	assert.True(t, IsTransient(err))
}

func TestIsTransientClassification(t *testing.T) {
	assert.True(t, IsTransient(&APIError{StatusCode: 429}))
	assert.True(t, IsTransient(&APIError{StatusCode: 500}))
	assert.True(t, IsTransient(&APIError{StatusCode: 503}))
	assert.False(t, IsTransient(&APIError{StatusCode: 400}))
	assert.False(t, IsTransient(&APIError{StatusCode: 401}))
	assert.False(t, IsTransient(context.Canceled))
}

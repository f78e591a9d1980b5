package embedding

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/doctalk/doctalk/internal/cache"
	"github.com/doctalk/doctalk/internal/models"
)

// Config controls gateway behavior
type Config struct {
	Model      string
	Dimensions int
	// BatchSize is the provider's maximum inputs per request
	BatchSize int
	// BatchDelay paces sequential sub-batches to stay under rate limits
	BatchDelay time.Duration
	// MaxInputChars rejects texts beyond the model's input window
	MaxInputChars int
	CacheTTL      time.Duration

	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// DefaultConfig returns gateway defaults for text-embedding-3-small
func DefaultConfig() Config {
	return Config{
		Model:         "text-embedding-3-small",
		Dimensions:    1536,
		BatchSize:     100,
		BatchDelay:    200 * time.Millisecond,
		MaxInputChars: 32000,
		CacheTTL:      7 * 24 * time.Hour,
		MaxRetries:    3,
		InitialDelay:  time.Second,
		MaxDelay:      30 * time.Second,
		Multiplier:    2.0,
	}
}

// Gateway fronts the embedding provider with a result cache. Identical
// inputs (after whitespace normalization) hit the cache instead of the
// provider; misses are batched and retried with exponential backoff.
type Gateway struct {
	provider Provider
	cache    *cache.ResultCache
	cfg      Config
	logger   *logrus.Logger
}

// NewGateway creates an embedding gateway
func NewGateway(provider Provider, resultCache *cache.ResultCache, cfg Config, logger *logrus.Logger) *Gateway {
	if cfg.Model == "" {
		cfg = DefaultConfig()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultConfig().BatchSize
	}
	if cfg.Multiplier <= 1 {
		cfg.Multiplier = 2.0
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Gateway{
		provider: provider,
		cache:    resultCache,
		cfg:      cfg,
		logger:   logger,
	}
}

// Model returns the embedding model identifier
func (g *Gateway) Model() string {
	return g.cfg.Model
}

// Dimensions returns the fixed vector length for the configured model
func (g *Gateway) Dimensions() int {
	return g.cfg.Dimensions
}

// Embed returns the vector for a single text
func (g *Gateway) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := g.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch returns one vector per text, in input order. Cached texts never
// reach the provider; the remainder is sent in provider-limit sub-batches,
// sequentially, with a pacing delay between them.
func (g *Gateway) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	for i, text := range texts {
		if g.cfg.MaxInputChars > 0 && len(text) > g.cfg.MaxInputChars {
			return nil, models.NewError(models.ErrKindValidation,
				fmt.Sprintf("input %d is %d chars, exceeding the %d char model limit",
					i, len(text), g.cfg.MaxInputChars))
		}
	}

	vectors := make([][]float32, len(texts))
	var missIdx []int
	if g.cache != nil {
		for i, text := range texts {
			if v, ok := g.cache.GetEmbedding(ctx, g.cfg.Model, text); ok {
				vectors[i] = v
			} else {
				missIdx = append(missIdx, i)
			}
		}
	} else {
		missIdx = make([]int, len(texts))
		for i := range texts {
			missIdx[i] = i
		}
	}

	if len(missIdx) == 0 {
		return vectors, nil
	}

	for start := 0; start < len(missIdx); start += g.cfg.BatchSize {
		end := start + g.cfg.BatchSize
		if end > len(missIdx) {
			end = len(missIdx)
		}
		batchIdx := missIdx[start:end]

		batch := make([]string, len(batchIdx))
		for j, i := range batchIdx {
			batch[j] = texts[i]
		}

		batchVectors, err := g.embedWithRetry(ctx, batch)
		if err != nil {
			return nil, err
		}

		for j, i := range batchIdx {
			vectors[i] = batchVectors[j]
			if g.cache != nil {
				g.cache.SetEmbedding(ctx, g.cfg.Model, texts[i], batchVectors[j], g.cfg.CacheTTL)
			}
		}

		if end < len(missIdx) && g.cfg.BatchDelay > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(g.cfg.BatchDelay):
			}
		}
	}

	return vectors, nil
}

func (g *Gateway) embedWithRetry(ctx context.Context, batch []string) ([][]float32, error) {
	delay := g.cfg.InitialDelay
	var lastErr error

	for attempt := 0; attempt <= g.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			g.logger.WithFields(logrus.Fields{
				"attempt": attempt,
				"delay":   delay.String(),
			}).Warn("Retrying embedding request")

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
			delay = time.Duration(float64(delay) * g.cfg.Multiplier)
			if delay > g.cfg.MaxDelay {
				delay = g.cfg.MaxDelay
			}
		}

		vectors, _, err := g.provider.Embed(ctx, batch, g.cfg.Model)
		if err == nil {
			return vectors, nil
		}
		lastErr = err

		if !IsTransient(err) {
			return nil, models.WrapError(models.ErrKindEmbedding, "provider rejected embedding request", err)
		}
	}

	return nil, models.WrapError(models.ErrKindEmbedding,
		fmt.Sprintf("provider failed after %d attempts", g.cfg.MaxRetries+1), lastErr)
}

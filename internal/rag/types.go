// Package rag implements the retrieval-augmented generation pipeline:
// document ingestion (chunk, embed, index), hybrid semantic+keyword search
// with weighted score fusion, context assembly, and answer generation in
// synchronous and streamed form.
package rag

import (
	"fmt"
	"math"

	"github.com/doctalk/doctalk/internal/models"
)

// SearchMode selects how a query is retrieved
type SearchMode string

const (
	ModeHybrid   SearchMode = "hybrid"
	ModeSemantic SearchMode = "semantic"
	ModeKeyword  SearchMode = "keyword"
)

// SearchResult is one ranked retrieval hit. Score is the fused score in
// [0,1]; SemanticScore and KeywordScore carry the constituent scores when
// the result came from hybrid fusion.
type SearchResult struct {
	DocumentID    string                 `json:"document_id"`
	ChunkID       string                 `json:"chunk_id"`
	Content       string                 `json:"content"`
	Score         float64                `json:"score"`
	SemanticScore float64                `json:"semantic_score,omitempty"`
	KeywordScore  float64                `json:"keyword_score,omitempty"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
}

// SearchOptions bounds one retrieval. Zero values fall back to configured
// defaults via Normalize.
type SearchOptions struct {
	Mode           SearchMode `json:"mode"`
	Limit          int        `json:"limit"`
	SemanticWeight float64    `json:"semantic_weight"`
	KeywordWeight  float64    `json:"keyword_weight"`
	MinScore       float64    `json:"min_score"`
	Oversample     int        `json:"oversample"`
}

// weightTolerance absorbs float noise when checking weights sum to 1
const weightTolerance = 1e-9

// Normalize fills zero fields from defaults and validates the result
func (o *SearchOptions) Normalize(defaults SearchOptions) error {
	if o.Mode == "" {
		o.Mode = ModeHybrid
	}
	if o.Limit <= 0 {
		o.Limit = defaults.Limit
	}
	if o.SemanticWeight == 0 && o.KeywordWeight == 0 {
		o.SemanticWeight = defaults.SemanticWeight
		o.KeywordWeight = defaults.KeywordWeight
	}
	if o.MinScore == 0 {
		o.MinScore = defaults.MinScore
	}
	if o.Oversample < 1 {
		o.Oversample = defaults.Oversample
	}
	if o.Oversample < 1 {
		o.Oversample = 2
	}

	switch o.Mode {
	case ModeHybrid:
		if math.Abs(o.SemanticWeight+o.KeywordWeight-1.0) > weightTolerance {
			return models.NewError(models.ErrKindValidation,
				fmt.Sprintf("semantic and keyword weights must sum to 1, got %.4f", o.SemanticWeight+o.KeywordWeight))
		}
	case ModeSemantic, ModeKeyword:
	default:
		return models.NewError(models.ErrKindValidation, "unknown search mode: "+string(o.Mode))
	}
	return nil
}

// CacheParams is the params segment of a search cache key
func (o SearchOptions) CacheParams() string {
	return fmt.Sprintf("l%d:sw%.2f:kw%.2f:ms%.2f:os%d",
		o.Limit, o.SemanticWeight, o.KeywordWeight, o.MinScore, o.Oversample)
}

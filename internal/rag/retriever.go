package rag

import (
	"context"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/doctalk/doctalk/internal/keyword"
	"github.com/doctalk/doctalk/internal/models"
	"github.com/doctalk/doctalk/internal/vectordb/qdrant"
)

// Embedder produces query vectors
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// VectorSearcher runs similarity search against one collection
type VectorSearcher interface {
	Search(ctx context.Context, collection string, vector []float32, opts *qdrant.SearchOptions) ([]qdrant.ScoredPoint, error)
}

// KeywordSearcher runs lexical search scoped to one knowledge base
type KeywordSearcher interface {
	Search(ctx context.Context, knowledgeBaseID, query string, topK int) ([]keyword.Match, error)
}

// IndexSearcher adapts the in-process BM25 index to KeywordSearcher
type IndexSearcher struct {
	Index *keyword.Index
}

func (s IndexSearcher) Search(ctx context.Context, knowledgeBaseID, query string, topK int) ([]keyword.Match, error) {
	return s.Index.Search(knowledgeBaseID, query, topK), nil
}

// Retriever fuses semantic and keyword retrieval into one ranked list
type Retriever struct {
	embedder Embedder
	vector   VectorSearcher
	keyword  KeywordSearcher
	defaults SearchOptions
	logger   *logrus.Logger
}

// NewRetriever creates a hybrid retriever
func NewRetriever(embedder Embedder, vector VectorSearcher, kw KeywordSearcher, defaults SearchOptions, logger *logrus.Logger) *Retriever {
	if logger == nil {
		logger = logrus.New()
	}
	return &Retriever{
		embedder: embedder,
		vector:   vector,
		keyword:  kw,
		defaults: defaults,
		logger:   logger,
	}
}

type resultKey struct {
	documentID string
	chunkID    string
}

// Search retrieves ranked results for a query. Hybrid mode runs both
// sources concurrently and fuses by weighted score; a keyword failure
// degrades to pure semantic ranking, a vector failure is fatal.
func (r *Retriever) Search(ctx context.Context, knowledgeBaseID, query string, opts SearchOptions) ([]SearchResult, error) {
	if err := opts.Normalize(r.defaults); err != nil {
		return nil, err
	}

	switch opts.Mode {
	case ModeSemantic:
		return r.searchSemantic(ctx, knowledgeBaseID, query, opts.Limit, opts.MinScore)
	case ModeKeyword:
		return r.searchKeyword(ctx, knowledgeBaseID, query, opts.Limit, opts.MinScore)
	}

	candidates := opts.Limit * opts.Oversample

	queryVector, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	var (
		wg         sync.WaitGroup
		vectorHits []qdrant.ScoredPoint
		vectorErr  error
		kwHits     []keyword.Match
		kwErr      error
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		vectorHits, vectorErr = r.vector.Search(ctx, CollectionName(knowledgeBaseID), queryVector, &qdrant.SearchOptions{
			Limit:          candidates,
			ScoreThreshold: float32(opts.MinScore),
		})
	}()
	go func() {
		defer wg.Done()
		kwHits, kwErr = r.keyword.Search(ctx, knowledgeBaseID, query, candidates)
	}()
	wg.Wait()

	if vectorErr != nil {
		return nil, models.WrapError(models.ErrKindVectorSearch, "vector search failed", vectorErr)
	}
	if kwErr != nil {
		r.logger.WithFields(logrus.Fields{
			"knowledge_base_id": knowledgeBaseID,
			"query":             truncate(query, 80),
			"error":             kwErr.Error(),
		}).Warn("Keyword search failed, falling back to semantic ranking")
		kwHits = nil
	}

	fused := fuse(vectorHits, kwHits, opts.SemanticWeight, opts.KeywordWeight)

	filtered := fused[:0]
	for _, res := range fused {
		if res.Score >= opts.MinScore {
			filtered = append(filtered, res)
		}
	}
	sortByScore(filtered)
	if len(filtered) > opts.Limit {
		filtered = filtered[:opts.Limit]
	}
	return filtered, nil
}

// fuse merges the two candidate lists keyed by (documentId, chunkId). A
// result seen by only one source contributes 0 for the missing source.
func fuse(vectorHits []qdrant.ScoredPoint, kwHits []keyword.Match, semanticWeight, keywordWeight float64) []SearchResult {
	merged := make(map[resultKey]*SearchResult, len(vectorHits)+len(kwHits))

	for _, hit := range vectorHits {
		res := resultFromPoint(hit)
		merged[resultKey{res.DocumentID, res.ChunkID}] = &res
	}
	for _, hit := range kwHits {
		key := resultKey{hit.DocumentID, hit.ChunkID}
		if existing, ok := merged[key]; ok {
			existing.KeywordScore = hit.Score
			continue
		}
		merged[key] = &SearchResult{
			DocumentID:   hit.DocumentID,
			ChunkID:      hit.ChunkID,
			Content:      hit.Content,
			KeywordScore: hit.Score,
		}
	}

	out := make([]SearchResult, 0, len(merged))
	for _, res := range merged {
		res.Score = res.SemanticScore*semanticWeight + res.KeywordScore*keywordWeight
		out = append(out, *res)
	}
	return out
}

func (r *Retriever) searchSemantic(ctx context.Context, knowledgeBaseID, query string, limit int, minScore float64) ([]SearchResult, error) {
	queryVector, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	hits, err := r.vector.Search(ctx, CollectionName(knowledgeBaseID), queryVector, &qdrant.SearchOptions{
		Limit:          limit,
		ScoreThreshold: float32(minScore),
	})
	if err != nil {
		return nil, models.WrapError(models.ErrKindVectorSearch, "vector search failed", err)
	}
	out := make([]SearchResult, 0, len(hits))
	for _, hit := range hits {
		res := resultFromPoint(hit)
		res.Score = res.SemanticScore
		out = append(out, res)
	}
	return out, nil
}

func (r *Retriever) searchKeyword(ctx context.Context, knowledgeBaseID, query string, limit int, minScore float64) ([]SearchResult, error) {
	hits, err := r.keyword.Search(ctx, knowledgeBaseID, query, limit)
	if err != nil {
		return nil, models.WrapError(models.ErrKindVectorSearch, "keyword search failed", err)
	}
	out := make([]SearchResult, 0, len(hits))
	for _, hit := range hits {
		if hit.Score < minScore {
			continue
		}
		out = append(out, SearchResult{
			DocumentID:   hit.DocumentID,
			ChunkID:      hit.ChunkID,
			Content:      hit.Content,
			Score:        hit.Score,
			KeywordScore: hit.Score,
		})
	}
	return out, nil
}

func resultFromPoint(hit qdrant.ScoredPoint) SearchResult {
	res := SearchResult{
		Score:         float64(hit.Score),
		SemanticScore: float64(hit.Score),
		Metadata:      map[string]interface{}{},
	}
	if v, ok := hit.Payload["document_id"].(string); ok {
		res.DocumentID = v
	}
	if v, ok := hit.Payload["chunk_id"].(string); ok {
		res.ChunkID = v
	}
	if v, ok := hit.Payload["content"].(string); ok {
		res.Content = v
	}
	if v, ok := hit.Payload["filename"].(string); ok {
		res.Metadata["filename"] = v
	}
	return res
}

func sortByScore(results []SearchResult) {
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		if results[i].DocumentID != results[j].DocumentID {
			return results[i].DocumentID < results[j].DocumentID
		}
		return results[i].ChunkID < results[j].ChunkID
	})
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}

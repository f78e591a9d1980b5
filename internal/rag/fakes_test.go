package rag

import (
	"context"
	"fmt"
	"sync"

	"github.com/doctalk/doctalk/internal/keyword"
	"github.com/doctalk/doctalk/internal/llm"
	"github.com/doctalk/doctalk/internal/vectordb/qdrant"
)

type fakeEmbedder struct {
	mu    sync.Mutex
	calls int
	fail  error
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := f.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.fail != nil {
		return nil, f.fail
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = []float32{float32(len(text)), 0.5, 0.25}
	}
	return out, nil
}

func (f *fakeEmbedder) Dimensions() int { return 3 }
func (f *fakeEmbedder) Model() string   { return "test-embed" }

// fakeVector records upserts per collection and serves canned search hits
type fakeVector struct {
	mu          sync.Mutex
	collections map[string]map[string]qdrant.Point
	hits        []qdrant.ScoredPoint
	searchErr   error
}

func newFakeVector() *fakeVector {
	return &fakeVector{collections: make(map[string]map[string]qdrant.Point)}
}

func (f *fakeVector) EnsureCollection(ctx context.Context, name string, vectorSize int, distance string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.collections[name]; !ok {
		f.collections[name] = make(map[string]qdrant.Point)
	}
	return nil
}

func (f *fakeVector) DeleteCollection(ctx context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.collections, name)
	return nil
}

func (f *fakeVector) UpsertPoints(ctx context.Context, collection string, points []qdrant.Point) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	coll := f.collections[collection]
	if coll == nil {
		return fmt.Errorf("collection %s does not exist", collection)
	}
	for _, p := range points {
		coll[p.ID] = p
	}
	return nil
}

func (f *fakeVector) Search(ctx context.Context, collection string, vector []float32, opts *qdrant.SearchOptions) ([]qdrant.ScoredPoint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	var out []qdrant.ScoredPoint
	for _, hit := range f.hits {
		if opts != nil && hit.Score < opts.ScoreThreshold {
			continue
		}
		out = append(out, hit)
	}
	if opts != nil && opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

func (f *fakeVector) DeleteByDocument(ctx context.Context, collection, documentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	coll := f.collections[collection]
	for id, p := range coll {
		if p.Payload["document_id"] == documentID {
			delete(coll, id)
		}
	}
	return nil
}

func (f *fakeVector) pointIDs(collection string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []string
	for id := range f.collections[collection] {
		ids = append(ids, id)
	}
	return ids
}

func semanticHit(documentID, chunkID, content string, score float32) qdrant.ScoredPoint {
	return qdrant.ScoredPoint{
		ID:    qdrant.PointID(documentID, 0),
		Score: score,
		Payload: map[string]interface{}{
			"document_id": documentID,
			"chunk_id":    chunkID,
			"content":     content,
			"filename":    "doc.txt",
		},
	}
}

type fakeKeyword struct {
	matches []keyword.Match
	err     error
}

func (f *fakeKeyword) Search(ctx context.Context, knowledgeBaseID, query string, topK int) ([]keyword.Match, error) {
	if f.err != nil {
		return nil, f.err
	}
	matches := f.matches
	if topK > 0 && len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

// fakeLLM serves a fixed completion, optionally split into stream chunks
type fakeLLM struct {
	content   string
	chunks    []string
	err       error
	streamErr error
	calls     int
}

func (f *fakeLLM) Complete(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &llm.Response{
		Content:      f.content,
		FinishReason: "stop",
		Model:        req.Model,
		Usage:        llm.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
	}, nil
}

func (f *fakeLLM) CompleteStream(ctx context.Context, req *llm.Request) (<-chan llm.StreamDelta, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make(chan llm.StreamDelta)
	go func() {
		defer close(out)
		for _, chunk := range f.chunks {
			select {
			case out <- llm.StreamDelta{Content: chunk}:
			case <-ctx.Done():
				return
			}
		}
		if f.streamErr != nil {
			select {
			case out <- llm.StreamDelta{Err: f.streamErr}:
			case <-ctx.Done():
			}
			return
		}
		select {
		case out <- llm.StreamDelta{
			Done:         true,
			FinishReason: "stop",
			Usage:        &llm.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
		}:
		case <-ctx.Done():
		}
	}()
	return out, nil
}

func (f *fakeLLM) Name() string { return "fake" }

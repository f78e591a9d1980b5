// Package keyword provides lexical full-text search over ingested chunk
// content using BM25 scoring. One index serves all knowledge bases; entries
// are partitioned by knowledge base id.
package keyword

import (
	"math"
	"sort"
	"strings"
	"sync"
)

// Match is a scored keyword hit. Score is normalized to 0-1 within one
// search (best hit = 1).
type Match struct {
	DocumentID string
	ChunkID    string
	Content    string
	Score      float64
}

type entry struct {
	documentID string
	chunkID    string
	content    string
	termFreqs  map[string]int
	length     int
}

type partition struct {
	entries   map[string]*entry // chunkID -> entry
	docChunks map[string][]string
	docFreqs  map[string]int // term -> number of chunks containing it
	totalLen  int
}

func newPartition() *partition {
	return &partition{
		entries:   make(map[string]*entry),
		docChunks: make(map[string][]string),
		docFreqs:  make(map[string]int),
	}
}

// Index is a concurrent-safe in-process BM25 index
type Index struct {
	mu         sync.RWMutex
	partitions map[string]*partition
	k1         float64
	b          float64
}

// NewIndex creates a BM25 index with the standard parameters
func NewIndex() *Index {
	return &Index{
		partitions: make(map[string]*partition),
		k1:         1.2,
		b:          0.75,
	}
}

// Add indexes one chunk's content. Re-adding the same chunk id replaces the
// previous entry, so ingestion retries converge.
func (idx *Index) Add(knowledgeBaseID, documentID, chunkID, content string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	p, ok := idx.partitions[knowledgeBaseID]
	if !ok {
		p = newPartition()
		idx.partitions[knowledgeBaseID] = p
	}

	old, replacing := p.entries[chunkID]
	if replacing {
		p.removeEntry(chunkID, old)
	}

	terms := tokenize(content)
	e := &entry{
		documentID: documentID,
		chunkID:    chunkID,
		content:    content,
		termFreqs:  make(map[string]int),
		length:     len(terms),
	}
	for _, term := range terms {
		if e.termFreqs[term] == 0 {
			p.docFreqs[term]++
		}
		e.termFreqs[term]++
	}

	p.entries[chunkID] = e
	if !replacing {
		p.docChunks[documentID] = append(p.docChunks[documentID], chunkID)
	}
	p.totalLen += e.length
}

// RemoveDocument drops every chunk belonging to documentID
func (idx *Index) RemoveDocument(knowledgeBaseID, documentID string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	p, ok := idx.partitions[knowledgeBaseID]
	if !ok {
		return
	}
	for _, chunkID := range p.docChunks[documentID] {
		if e, exists := p.entries[chunkID]; exists {
			p.removeEntry(chunkID, e)
		}
	}
	delete(p.docChunks, documentID)
}

// RemoveKnowledgeBase drops an entire partition
func (idx *Index) RemoveKnowledgeBase(knowledgeBaseID string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	delete(idx.partitions, knowledgeBaseID)
}

func (p *partition) removeEntry(chunkID string, e *entry) {
	for term := range e.termFreqs {
		if p.docFreqs[term] > 1 {
			p.docFreqs[term]--
		} else {
			delete(p.docFreqs, term)
		}
	}
	p.totalLen -= e.length
	delete(p.entries, chunkID)
}

// Search returns the topK best BM25 matches for query within one knowledge
// base, scores normalized so the best match is 1.
func (idx *Index) Search(knowledgeBaseID, query string, topK int) []Match {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	p, ok := idx.partitions[knowledgeBaseID]
	if !ok || len(p.entries) == 0 || topK <= 0 {
		return nil
	}

	queryTerms := tokenize(query)
	avgLen := float64(p.totalLen) / float64(len(p.entries))
	n := float64(len(p.entries))

	scores := make(map[string]float64)
	for _, term := range queryTerms {
		df, exists := p.docFreqs[term]
		if !exists {
			continue
		}
		idf := math.Log((n-float64(df)+0.5)/(float64(df)+0.5) + 1)

		for chunkID, e := range p.entries {
			tf, ok := e.termFreqs[term]
			if !ok {
				continue
			}
			tfScore := (float64(tf) * (idx.k1 + 1)) /
				(float64(tf) + idx.k1*(1-idx.b+idx.b*(float64(e.length)/avgLen)))
			scores[chunkID] += idf * tfScore
		}
	}

	if len(scores) == 0 {
		return nil
	}

	maxScore := 0.0
	for _, s := range scores {
		if s > maxScore {
			maxScore = s
		}
	}

	matches := make([]Match, 0, len(scores))
	for chunkID, score := range scores {
		e := p.entries[chunkID]
		matches = append(matches, Match{
			DocumentID: e.documentID,
			ChunkID:    chunkID,
			Content:    e.content,
			Score:      score / maxScore,
		})
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score == matches[j].Score {
			return matches[i].ChunkID < matches[j].ChunkID
		}
		return matches[i].Score > matches[j].Score
	})

	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches
}

func tokenize(text string) []string {
	words := strings.Fields(strings.ToLower(text))

	tokens := make([]string, 0, len(words))
	for _, word := range words {
		cleaned := strings.Trim(word, ".,!?;:\"'()[]{}#$%&*+-/<>=@\\^_`|~")
		if cleaned != "" {
			tokens = append(tokens, cleaned)
		}
	}
	return tokens
}

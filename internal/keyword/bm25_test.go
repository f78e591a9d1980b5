package keyword

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedIndex(t *testing.T) *Index {
	t.Helper()
	idx := NewIndex()
	idx.Add("kb1", "doc1", "doc1_0", "Postgres supports full text search with tsvector columns")
	idx.Add("kb1", "doc1", "doc1_1", "Redis is an in-memory key value store used for caching")
	idx.Add("kb1", "doc2", "doc2_0", "Vector databases rank documents by embedding similarity")
	idx.Add("kb2", "doc3", "doc3_0", "Postgres replication uses write ahead log shipping")
	return idx
}

func TestSearchRanksRelevantChunksFirst(t *testing.T) {
	idx := seedIndex(t)

	matches := idx.Search("kb1", "full text search postgres", 10)
	require.NotEmpty(t, matches)
	assert.Equal(t, "doc1_0", matches[0].ChunkID)
	assert.Equal(t, "doc1", matches[0].DocumentID)
	assert.Equal(t, 1.0, matches[0].Score)

	for _, m := range matches {
		assert.GreaterOrEqual(t, m.Score, 0.0)
		assert.LessOrEqual(t, m.Score, 1.0)
	}
}

func TestSearchIsPartitionedByKnowledgeBase(t *testing.T) {
	idx := seedIndex(t)

	matches := idx.Search("kb2", "postgres", 10)
	require.Len(t, matches, 1)
	assert.Equal(t, "doc3_0", matches[0].ChunkID)

	// kb1's postgres chunk must not leak into kb2 results
	for _, m := range matches {
		assert.NotEqual(t, "doc1_0", m.ChunkID)
	}
}

func TestSearchNoMatches(t *testing.T) {
	idx := seedIndex(t)

	assert.Nil(t, idx.Search("kb1", "zeppelin quantum", 10))
	assert.Nil(t, idx.Search("unknown-kb", "postgres", 10))
	assert.Nil(t, idx.Search("kb1", "postgres", 0))
}

func TestSearchHonorsTopK(t *testing.T) {
	idx := NewIndex()
	for i := 0; i < 10; i++ {
		idx.Add("kb1", "doc1", fmt.Sprintf("doc1_%d", i), fmt.Sprintf("caching layer number %d", i))
	}

	matches := idx.Search("kb1", "caching layer", 3)
	assert.Len(t, matches, 3)
}

func TestRemoveDocument(t *testing.T) {
	idx := seedIndex(t)

	idx.RemoveDocument("kb1", "doc1")

	matches := idx.Search("kb1", "redis caching", 10)
	for _, m := range matches {
		assert.NotEqual(t, "doc1", m.DocumentID)
	}
	assert.NotNil(t, idx.Search("kb1", "vector similarity", 10))
}

func TestReAddingChunkReplacesEntry(t *testing.T) {
	idx := NewIndex()
	idx.Add("kb1", "doc1", "doc1_0", "original content about sailing")
	idx.Add("kb1", "doc1", "doc1_0", "replacement content about climbing")

	assert.Nil(t, idx.Search("kb1", "sailing", 10))

	matches := idx.Search("kb1", "climbing", 10)
	require.Len(t, matches, 1)
	assert.Equal(t, "replacement content about climbing", matches[0].Content)
}

func TestReAddingChunkKeepsDocChunksBounded(t *testing.T) {
	idx := NewIndex()
	for i := 0; i < 50; i++ {
		idx.Add("kb1", "doc1", "doc1_0", "repeated ingestion of the same chunk")
		idx.Add("kb1", "doc1", "doc1_1", "second chunk of the same document")
	}

	p := idx.partitions["kb1"]
	assert.Len(t, p.docChunks["doc1"], 2, "re-adding a chunk must not grow the document's chunk list")

	idx.RemoveDocument("kb1", "doc1")
	assert.Empty(t, p.entries)
	assert.Empty(t, p.docFreqs)
	assert.Zero(t, p.totalLen)
}

func TestRemoveKnowledgeBase(t *testing.T) {
	idx := seedIndex(t)
	idx.RemoveKnowledgeBase("kb1")

	assert.Nil(t, idx.Search("kb1", "postgres", 10))
	assert.NotNil(t, idx.Search("kb2", "postgres", 10))
}

func TestTokenizeStripsPunctuation(t *testing.T) {
	tokens := tokenize("Hello, World! (testing) [brackets]")
	assert.Equal(t, []string{"hello", "world", "testing", "brackets"}, tokens)
}

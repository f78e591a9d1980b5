package chunker

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitEmptyInput(t *testing.T) {
	c := New(DefaultConfig())

	assert.Nil(t, c.Split("doc1", ""))
	assert.Nil(t, c.Split("doc1", "   \n\t  "))
}

func TestSplitSmallDocumentSingleChunk(t *testing.T) {
	c := New(DefaultConfig())

	chunks := c.Split("doc1", "A short document. Nothing more to say.")
	require.Len(t, chunks, 1)
	assert.Equal(t, 0, chunks[0].Index)
	assert.Equal(t, 0, chunks[0].StartOffset)
	assert.Equal(t, "A short document. Nothing more to say.", chunks[0].Content)
}

func TestSplitOffsetsMatchContent(t *testing.T) {
	text := buildText(2500)
	c := New(Config{ChunkSize: 1000, Overlap: 200, MinChunkSize: 100})

	chunks := c.Split("doc1", text)
	require.NotEmpty(t, chunks)

	for i, ch := range chunks {
		assert.Equal(t, ch.EndOffset-ch.StartOffset, len(ch.Content), "chunk %d length", i)
		assert.Equal(t, text[ch.StartOffset:ch.EndOffset], ch.Content, "chunk %d span", i)
		assert.Equal(t, i, ch.Index)
		if i > 0 {
			assert.GreaterOrEqual(t, ch.StartOffset, chunks[i-1].StartOffset)
			// chunks must be contiguous: no gap between consecutive spans
			assert.LessOrEqual(t, ch.StartOffset, chunks[i-1].EndOffset)
		}
	}

	// full coverage of the source text
	assert.Equal(t, 0, chunks[0].StartOffset)
	assert.Equal(t, len(text), chunks[len(chunks)-1].EndOffset)
}

func TestSplit2500CharScenario(t *testing.T) {
	text := buildText(2500)
	c := New(Config{ChunkSize: 1000, Overlap: 200, MinChunkSize: 100})

	chunks := c.Split("doc1", text)
	require.Len(t, chunks, 3)

	for i, ch := range chunks[:len(chunks)-1] {
		assert.LessOrEqual(t, ch.Size, 1000, "chunk %d exceeds target size", i)
	}

	// chunk 2 starts inside chunk 1's tail: the shared region is roughly the
	// overlap, shortened only by word-boundary trimming
	overlapLen := chunks[0].EndOffset - chunks[1].StartOffset
	assert.Greater(t, overlapLen, 150)
	assert.LessOrEqual(t, overlapLen, 200)
	assert.Equal(t,
		text[chunks[1].StartOffset:chunks[0].EndOffset],
		chunks[1].Content[:overlapLen])
}

func TestSplitOverlapStartsOnWordBoundary(t *testing.T) {
	text := buildText(3000)
	c := New(Config{ChunkSize: 800, Overlap: 150, MinChunkSize: 50})

	chunks := c.Split("doc1", text)
	require.Greater(t, len(chunks), 1)

	for i := 1; i < len(chunks); i++ {
		start := chunks[i].StartOffset
		if start > 0 && !isSpaceByte(text[start]) {
			assert.True(t, isSpaceByte(text[start-1]),
				"chunk %d starts mid-word at offset %d", i, start)
		}
	}
}

func TestSplitMultiByteTextStaysValidUTF8(t *testing.T) {
	// accented runes are two bytes each; overlap seeds landing inside a rune
	// would corrupt every chunk after the first
	text := strings.TrimSpace(strings.Repeat("àààààààààà. ", 100))

	for _, overlap := range []int{10, 20, 40, 60} {
		c := New(Config{ChunkSize: 100, Overlap: overlap, MinChunkSize: 30})

		chunks := c.Split("doc1", text)
		require.Greater(t, len(chunks), 1, "overlap %d", overlap)

		for i, ch := range chunks {
			assert.True(t, utf8.ValidString(ch.Content),
				"overlap %d chunk %d is not valid UTF-8", overlap, i)
			assert.True(t, utf8.RuneStart(text[ch.StartOffset]),
				"overlap %d chunk %d starts mid-rune at offset %d", overlap, i, ch.StartOffset)
			assert.Equal(t, text[ch.StartOffset:ch.EndOffset], ch.Content,
				"overlap %d chunk %d span", overlap, i)
		}
	}
}

func TestSplitKeepsTinyTail(t *testing.T) {
	// 1000-char body plus a tiny trailing sentence: the tail must survive
	// even though it is far below MinChunkSize
	text := buildText(1100) + " End."
	c := New(Config{ChunkSize: 1000, Overlap: 100, MinChunkSize: 200})

	chunks := c.Split("doc1", text)
	require.NotEmpty(t, chunks)
	last := chunks[len(chunks)-1]
	assert.True(t, strings.HasSuffix(last.Content, "End."))
	assert.Equal(t, len(text), last.EndOffset)
}

func TestSplitOversizedSentence(t *testing.T) {
	// a single sentence longer than ChunkSize must come through whole
	long := strings.Repeat("word ", 300) // ~1500 chars, no terminal punctuation
	c := New(Config{ChunkSize: 500, Overlap: 100, MinChunkSize: 100})

	chunks := c.Split("doc1", long)
	require.Len(t, chunks, 1)
	assert.Equal(t, len(long), chunks[0].EndOffset)
}

func TestNewNormalizesBadConfig(t *testing.T) {
	c := New(Config{ChunkSize: 100, Overlap: 100, MinChunkSize: -5})

	assert.Equal(t, 50, c.cfg.Overlap)
	assert.Equal(t, 0, c.cfg.MinChunkSize)
}

// buildText produces deterministic sentence-structured text of at least n
// bytes, trimmed to exactly n.
func buildText(n int) string {
	var b strings.Builder
	sentences := []string{
		"The quick brown fox jumps over the lazy dog.",
		"Retrieval systems index documents in small overlapping pieces.",
		"Each piece carries enough context to stand on its own.",
		"Scores from multiple rankers are fused into a single ordering.",
	}
	for i := 0; b.Len() < n; i++ {
		b.WriteString(sentences[i%len(sentences)])
		b.WriteString(" ")
	}
	return strings.TrimSpace(b.String()[:n])
}

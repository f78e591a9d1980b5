// Package chunker splits extracted document text into overlapping segments
// sized for embedding. Splitting happens on sentence boundaries so chunks
// stay coherent; consecutive chunks share an overlap region so context near
// chunk borders is not lost.
package chunker

import (
	"strings"
	"unicode/utf8"

	"github.com/doctalk/doctalk/internal/models"
)

// Config controls chunk sizing. Overlap must be smaller than ChunkSize.
type Config struct {
	// ChunkSize is the target chunk length in bytes
	ChunkSize int
	// Overlap is how many trailing bytes of a chunk seed the next one
	Overlap int
	// MinChunkSize prevents closing a chunk before it carries enough text
	MinChunkSize int
}

// DefaultConfig returns the chunking defaults
func DefaultConfig() Config {
	return Config{
		ChunkSize:    1000,
		Overlap:      200,
		MinChunkSize: 100,
	}
}

// Chunker splits text into overlapping chunks on sentence-like boundaries
type Chunker struct {
	cfg Config
}

// New creates a Chunker, normalizing out-of-range config values
func New(cfg Config) *Chunker {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultConfig().ChunkSize
	}
	if cfg.Overlap < 0 {
		cfg.Overlap = 0
	}
	if cfg.Overlap >= cfg.ChunkSize {
		cfg.Overlap = cfg.ChunkSize / 2
	}
	if cfg.MinChunkSize < 0 {
		cfg.MinChunkSize = 0
	}
	return &Chunker{cfg: cfg}
}

// Split chunks text belonging to documentID. Whitespace-only input yields no
// chunks. Every chunk is a contiguous span of the original text; each chunk
// after the first begins with the overlap tail of its predecessor, trimmed
// forward to a word boundary.
func (c *Chunker) Split(documentID, text string) []models.Chunk {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	units := sentenceUnits(text)

	var chunks []models.Chunk
	chunkStart := units[0].start
	curEnd := chunkStart

	for _, u := range units {
		if u.end-chunkStart > c.cfg.ChunkSize && curEnd-chunkStart >= c.cfg.MinChunkSize && curEnd > chunkStart {
			chunks = append(chunks, c.makeChunk(documentID, len(chunks), text, chunkStart, curEnd))

			// Seed the next chunk with the overlap tail of the one just
			// closed, moved forward to the next word start when it would
			// begin mid-word.
			ov := curEnd - c.cfg.Overlap
			if ov < chunkStart {
				ov = chunkStart
			}
			chunkStart = wordBoundary(text, ov, curEnd)
		}
		curEnd = u.end
	}

	// The tail is emitted without the minimum-size check so short documents
	// and trailing fragments are never dropped.
	if curEnd > chunkStart && strings.TrimSpace(text[chunkStart:curEnd]) != "" {
		chunks = append(chunks, c.makeChunk(documentID, len(chunks), text, chunkStart, curEnd))
	}

	return chunks
}

func (c *Chunker) makeChunk(documentID string, index int, text string, start, end int) models.Chunk {
	content := text[start:end]
	return models.Chunk{
		DocumentID:  documentID,
		Index:       index,
		Content:     content,
		StartOffset: start,
		EndOffset:   end,
		Size:        len(content),
	}
}

type span struct {
	start int
	end   int
}

// sentenceUnits partitions text into contiguous sentence-like spans ending
// after runs of terminal punctuation. Adjacent spans share boundaries, so
// concatenating them reconstructs the input exactly.
func sentenceUnits(text string) []span {
	var units []span
	start := 0
	i := 0
	n := len(text)

	for i < n {
		ch := text[i]
		if ch == '.' || ch == '!' || ch == '?' {
			// swallow the whole punctuation run ("..." or "?!")
			for i+1 < n && (text[i+1] == '.' || text[i+1] == '!' || text[i+1] == '?') {
				i++
			}
			// a terminal only ends a sentence when followed by whitespace
			if i+1 >= n || isSpaceByte(text[i+1]) {
				units = append(units, span{start: start, end: i + 1})
				start = i + 1
			}
		}
		i++
	}

	if start < n {
		units = append(units, span{start: start, end: n})
	}
	if len(units) == 0 {
		units = []span{{start: 0, end: n}}
	}
	return units
}

// wordBoundary moves pos forward to the start of the next word within
// (pos, limit) when pos falls inside a word. Already-at-boundary positions
// are returned unchanged. The returned position is always a rune start, so
// an overlap seed never begins mid-rune.
func wordBoundary(text string, pos, limit int) int {
	if pos <= 0 || pos >= limit {
		return pos
	}
	for pos < limit && !utf8.RuneStart(text[pos]) {
		pos++
	}
	if pos >= limit {
		return pos
	}
	if isSpaceByte(text[pos]) || isSpaceByte(text[pos-1]) {
		return pos
	}
	for pos < limit && !isSpaceByte(text[pos]) {
		pos++
	}
	return pos
}

// isSpaceByte classifies ASCII whitespace only. The scan is byte-wise, so
// multi-byte Unicode spaces must count as word bytes; promoting a UTF-8
// continuation byte (0xA0, 0x85) to whitespace would split a rune.
func isSpaceByte(b byte) bool {
	switch b {
	case ' ', '\t', '\n', '\r', '\f', '\v':
		return true
	}
	return false
}

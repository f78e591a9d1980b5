package rag

import (
	"fmt"
	"strings"
)

// NoContextMarker is injected into the prompt when retrieval found nothing
// relevant, so the model is told explicitly rather than left to fabricate
// sourced claims.
const NoContextMarker = "No relevant context was found in the knowledge base for this question."

// AssemblerConfig bounds the prompt context
type AssemblerConfig struct {
	MaxChunks int
	MaxChars  int
}

// DefaultAssemblerConfig returns context assembly defaults
func DefaultAssemblerConfig() AssemblerConfig {
	return AssemblerConfig{
		MaxChunks: 5,
		MaxChars:  8000,
	}
}

// AssembleContext formats ranked results into labeled prompt blocks.
// Results are consumed in rank order until either the chunk budget is
// reached or the next block would exceed the character budget. The second
// return value lists the results that made it into the context.
func AssembleContext(results []SearchResult, cfg AssemblerConfig) (string, []SearchResult) {
	if cfg.MaxChunks <= 0 {
		cfg.MaxChunks = DefaultAssemblerConfig().MaxChunks
	}
	if cfg.MaxChars <= 0 {
		cfg.MaxChars = DefaultAssemblerConfig().MaxChars
	}

	var (
		b        strings.Builder
		included []SearchResult
	)
	for _, res := range results {
		if len(included) >= cfg.MaxChunks {
			break
		}
		block := formatBlock(len(included)+1, res)
		if b.Len() > 0 && b.Len()+len(block)+2 > cfg.MaxChars {
			break
		}
		if b.Len() == 0 && len(block) > cfg.MaxChars {
			break
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(block)
		included = append(included, res)
	}

	if len(included) == 0 {
		return NoContextMarker, nil
	}
	return b.String(), included
}

func formatBlock(n int, res SearchResult) string {
	source := "unknown"
	if v, ok := res.Metadata["filename"].(string); ok && v != "" {
		source = v
	}
	return fmt.Sprintf("[Context %d] (Score: %.2f, Source: %s)\n%s", n, res.Score, source, res.Content)
}

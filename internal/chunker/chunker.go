// Package chunker splits document text into overlapping spans for indexing.
package chunker

import (
	"fmt"
	"strings"

	"github.com/xxxsen/docmem/internal/config"
)

const (
	DefaultChunkSize = 300
	DefaultOverlap   = 50
)

type Chunker interface {
	Chunk(text string) ([]string, error)
}

func New(cfg config.ChunkerConfig) (Chunker, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Type)) {
	case "", "sentence":
		return NewSentenceChunker(cfg.ChunkSize, cfg.Overlap, cfg.MinTokens), nil
	case "word":
		return NewWordChunker(cfg.ChunkSize, cfg.Overlap, cfg.MinTokens), nil
	default:
		return nil, fmt.Errorf("unsupported chunker type: %s", cfg.Type)
	}
}

func normalizeSizes(size, overlap, minTokens int) (int, int, int) {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= size {
		overlap = size / 2
	}
	if minTokens < 0 {
		minTokens = 0
	}
	return size, overlap, minTokens
}

// estimateTokens counts words plus non-ASCII runes, which keeps CJK text from
// being treated as a single token.
func estimateTokens(text string) int {
	count := 0
	for _, r := range text {
		if r > 127 {
			count++
		}
	}
	count += len(strings.Fields(text))
	if count == 0 && len(text) > 0 {
		return 1
	}
	return count
}

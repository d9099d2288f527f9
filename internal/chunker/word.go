package chunker

import "strings"

// WordChunker emits fixed windows of Size words, each repeating the last
// Overlap words of the previous window.
type WordChunker struct {
	size      int
	overlap   int
	minTokens int
}

func NewWordChunker(size, overlap, minTokens int) *WordChunker {
	size, overlap, minTokens = normalizeSizes(size, overlap, minTokens)
	return &WordChunker{size: size, overlap: overlap, minTokens: minTokens}
}

func (c *WordChunker) Chunk(text string) ([]string, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	words := strings.Fields(text)
	if len(words) <= c.size {
		return []string{text}, nil
	}
	return c.windows(words), nil
}

func (c *WordChunker) windows(words []string) []string {
	step := c.size - c.overlap
	var chunks []string
	prevEnd := 0
	for start := 0; ; start += step {
		end := start + c.size
		if end > len(words) {
			end = len(words)
		}
		chunk := strings.Join(words[start:end], " ")
		switch {
		case len(chunks) == 1 && end == len(words) && estimateTokens(chunk) < c.minTokens:
			// folding here would leave one window; align the last one to the end
			chunks = append(chunks, strings.Join(words[len(words)-c.size:], " "))
		case len(chunks) > 1 && estimateTokens(chunk) < c.minTokens:
			// fold the sliver's unseen words into the previous window
			chunks[len(chunks)-1] += " " + strings.Join(words[prevEnd:end], " ")
		case chunk != "":
			chunks = append(chunks, chunk)
		}
		prevEnd = end
		if start+c.size >= len(words) {
			break
		}
	}
	return chunks
}

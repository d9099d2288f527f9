// Package embedcache puts LRU and database caches in front of an embedder.
package embedcache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

func buildCacheKey(modelName, taskType, text string) (string, string, string) {
	modelName = strings.TrimSpace(modelName)
	if modelName == "" {
		modelName = "unknown"
	}
	hash := sha256.Sum256([]byte(text))
	contentHash := hex.EncodeToString(hash[:])
	return "embed:" + modelName + ":" + taskType + ":" + contentHash, contentHash, modelName
}

func cloneEmbedding(values []float32) []float32 {
	if values == nil {
		return nil
	}
	clone := make([]float32, len(values))
	copy(clone, values)
	return clone
}

// fillMisses embeds texts[i] for every i in misses with one call to embed
// and writes the vectors into out.
func fillMisses(out [][]float32, texts []string, misses []int, embed func([]string) ([][]float32, error)) ([][]float32, error) {
	if len(misses) == 0 {
		return nil, nil
	}
	pending := make([]string, len(misses))
	for i, idx := range misses {
		pending[i] = texts[idx]
	}
	vectors, err := embed(pending)
	if err != nil {
		return nil, err
	}
	for i, idx := range misses {
		out[idx] = vectors[i]
	}
	return vectors, nil
}

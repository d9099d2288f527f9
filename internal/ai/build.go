package ai

import (
	"fmt"
	"strings"

	"github.com/xxxsen/docmem/internal/config"
)

// BuildGenerator returns nil when no generator is configured.
func BuildGenerator(providers []config.ProviderConfig) (IGenerator, error) {
	entries := make([]GeneratorEntry, 0, len(providers))
	for i, pc := range providers {
		p, err := NewProvider(pc.Provider, pc.Data)
		if err != nil {
			return nil, fmt.Errorf("ai.providers[%d]: %w", i, err)
		}
		entries = append(entries, GeneratorEntry{Name: entryName(pc), Generator: NewGenerator(p, pc.Model)})
	}
	return NewGroupGenerator(entries), nil
}

func BuildEmbedder(providers []config.ProviderConfig, dim int) (IEmbedder, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("embedding dimension must be positive")
	}
	entries := make([]EmbedderEntry, 0, len(providers))
	for i, pc := range providers {
		p, err := NewEmbedProvider(pc.Provider, pc.Data)
		if err != nil {
			return nil, fmt.Errorf("embedder.providers[%d]: %w", i, err)
		}
		entries = append(entries, EmbedderEntry{Name: entryName(pc), Embedder: NewEmbedder(p, pc.Model, dim)})
	}
	return NewGroupEmbedder(entries)
}

func entryName(pc config.ProviderConfig) string {
	if name := strings.TrimSpace(pc.Name); name != "" {
		return name
	}
	return pc.Provider
}

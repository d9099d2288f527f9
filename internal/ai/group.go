package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

type GeneratorEntry struct {
	Name      string
	Generator IGenerator
}

type EmbedderEntry struct {
	Name     string
	Embedder IEmbedder
}

type groupGenerator struct {
	items []GeneratorEntry
}

// NewGroupGenerator tries each generator in order until one succeeds.
func NewGroupGenerator(items []GeneratorEntry) IGenerator {
	if len(items) == 0 {
		return nil
	}
	return &groupGenerator{items: items}
}

func (g *groupGenerator) Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error) {
	var lastErr error
	for i, item := range g.items {
		if item.Generator == nil {
			continue
		}
		res, err := item.Generator.Generate(ctx, prompt, opts)
		if err == nil {
			return res, nil
		}
		lastErr = err
		logutil.GetLogger(ctx).Warn("generator failed", zap.Int("index", i), zap.String("name", item.Name), zap.Error(err))
	}
	if lastErr == nil {
		return "", ErrUnavailable
	}
	return "", lastErr
}

type groupEmbedder struct {
	items []EmbedderEntry
	dim   int
}

// NewGroupEmbedder tries each embedder in order. All members must produce
// vectors of the same dimension, since vectors from different members end up
// in the same index.
func NewGroupEmbedder(items []EmbedderEntry) (IEmbedder, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("no embedder configured")
	}
	dim := items[0].Embedder.Dimension()
	for _, item := range items[1:] {
		if item.Embedder.Dimension() != dim {
			return nil, fmt.Errorf("embedder %s has dimension %d, want %d", item.Name, item.Embedder.Dimension(), dim)
		}
	}
	return &groupEmbedder{items: items, dim: dim}, nil
}

func (g *groupEmbedder) Embed(ctx context.Context, texts []string, taskType string) ([][]float32, error) {
	var lastErr error
	for i, item := range g.items {
		res, err := item.Embedder.Embed(ctx, texts, taskType)
		if err == nil {
			return res, nil
		}
		lastErr = err
		logutil.GetLogger(ctx).Warn("embedder failed", zap.Int("index", i), zap.String("name", item.Name), zap.Error(err))
	}
	return nil, lastErr
}

func (g *groupEmbedder) ModelName() string {
	names := make([]string, 0, len(g.items))
	for _, item := range g.items {
		names = append(names, item.Embedder.ModelName())
	}
	return strings.Join(names, "|")
}

func (g *groupEmbedder) Dimension() int {
	return g.dim
}

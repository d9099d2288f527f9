// Package ai wraps text generation and embedding providers.
package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	appErr "github.com/xxxsen/docmem/internal/pkg/errors"
)

const (
	TaskRetrievalDocument = "RETRIEVAL_DOCUMENT"
	TaskRetrievalQuery    = "RETRIEVAL_QUERY"
)

var ErrUnavailable = fmt.Errorf("ai provider not available: %w", appErr.ErrUnavailable)

type GenerateOptions struct {
	Temperature float32
	MaxTokens   int
}

type IProvider interface {
	Name() string
	Generate(ctx context.Context, model string, prompt string, opts GenerateOptions) (string, error)
}

// IEmbedProvider embeds a batch of texts. dim is the requested vector size;
// providers that cannot shorten vectors ignore it.
type IEmbedProvider interface {
	Name() string
	Embed(ctx context.Context, model string, texts []string, taskType string, dim int) ([][]float32, error)
}

type IGenerator interface {
	Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error)
}

// IEmbedder returns one vector per input text, in input order. Embedding a
// text alone yields the same vector as embedding it inside a batch.
type IEmbedder interface {
	Embed(ctx context.Context, texts []string, taskType string) ([][]float32, error)
	ModelName() string
	Dimension() int
}

type generator struct {
	provider IProvider
	model    string
}

func NewGenerator(p IProvider, model string) IGenerator {
	return &generator{provider: p, model: model}
}

func (g *generator) Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error) {
	return g.provider.Generate(ctx, g.model, prompt, opts)
}

type embedder struct {
	provider IEmbedProvider
	model    string
	dim      int
}

func NewEmbedder(p IEmbedProvider, model string, dim int) IEmbedder {
	return &embedder{provider: p, model: model, dim: dim}
}

func (e *embedder) Embed(ctx context.Context, texts []string, taskType string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	out, err := e.provider.Embed(ctx, e.model, texts, taskType, e.dim)
	if err != nil {
		return nil, err
	}
	if len(out) != len(texts) {
		return nil, fmt.Errorf("%s returned %d embeddings for %d texts", e.provider.Name(), len(out), len(texts))
	}
	for i, v := range out {
		if len(v) != e.dim {
			return nil, fmt.Errorf("%s embedding %d has dimension %d, want %d", e.provider.Name(), i, len(v), e.dim)
		}
	}
	return out, nil
}

func (e *embedder) ModelName() string {
	return e.provider.Name() + ":" + e.model
}

func (e *embedder) Dimension() int {
	return e.dim
}

type ProviderFactory func(args interface{}) (IProvider, error)

type EmbedProviderFactory func(args interface{}) (IEmbedProvider, error)

var (
	registryMu    sync.RWMutex
	registry      = map[string]ProviderFactory{}
	embedRegistry = map[string]EmbedProviderFactory{}
)

func Register(name string, factory ProviderFactory) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" || factory == nil {
		return
	}
	registryMu.Lock()
	registry[key] = factory
	registryMu.Unlock()
}

func RegisterEmbed(name string, factory EmbedProviderFactory) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" || factory == nil {
		return
	}
	registryMu.Lock()
	embedRegistry[key] = factory
	registryMu.Unlock()
}

func NewProvider(name string, args interface{}) (IProvider, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		return nil, fmt.Errorf("ai.provider is required")
	}
	registryMu.RLock()
	factory := registry[key]
	registryMu.RUnlock()
	if factory == nil {
		return nil, fmt.Errorf("unsupported ai provider: %s", name)
	}
	return factory(args)
}

func NewEmbedProvider(name string, args interface{}) (IEmbedProvider, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		return nil, fmt.Errorf("embedder.provider is required")
	}
	registryMu.RLock()
	factory := embedRegistry[key]
	registryMu.RUnlock()
	if factory == nil {
		return nil, fmt.Errorf("unsupported embed provider: %s", name)
	}
	return factory(args)
}

func decodeConfig(args interface{}, dst interface{}) error {
	if args == nil {
		return nil
	}
	data, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("encode ai provider config: %w", err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decode ai provider config: %w", err)
	}
	return nil
}

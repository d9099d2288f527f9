package ai

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

const bigramWeight = 0.5

// localEmbedProvider is a feature-hashing embedder: unigrams and bigrams of
// the lowercased text are hashed into signed buckets and the result is
// L2-normalized. It needs no network and is fully deterministic.
type localEmbedProvider struct{}

func init() {
	RegisterEmbed("local", func(args interface{}) (IEmbedProvider, error) {
		return &localEmbedProvider{}, nil
	})
}

func (p *localEmbedProvider) Name() string {
	return "local"
}

func (p *localEmbedProvider) Embed(ctx context.Context, model string, texts []string, taskType string, dim int) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = hashEmbed(text, dim)
	}
	return out, nil
}

func hashEmbed(text string, dim int) []float32 {
	vec := make([]float32, dim)
	tokens := tokenize(text)
	for i, tok := range tokens {
		addFeature(vec, tok, 1)
		if i > 0 {
			addFeature(vec, tokens[i-1]+" "+tok, bigramWeight)
		}
	}
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vec
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= scale
	}
	return vec
}

func addFeature(vec []float32, feature string, weight float32) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(feature))
	sum := h.Sum64()
	idx := int(sum % uint64(len(vec)))
	if sum&(1<<63) != 0 {
		weight = -weight
	}
	vec[idx] += weight
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-'
	})
}

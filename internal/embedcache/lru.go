package embedcache

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/docmem/internal/ai"
)

func WrapLruCacheToEmbedder(e ai.IEmbedder, size int, ttl time.Duration) ai.IEmbedder {
	if e == nil || size <= 0 || ttl <= 0 {
		return e
	}
	return &lruEmbedder{
		next:  e,
		cache: expirable.NewLRU[string, []float32](size, nil, ttl),
	}
}

type lruEmbedder struct {
	next  ai.IEmbedder
	cache *expirable.LRU[string, []float32]
}

func (l *lruEmbedder) Embed(ctx context.Context, texts []string, taskType string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	keys := make([]string, len(texts))
	var misses []int
	for i, text := range texts {
		keys[i], _, _ = buildCacheKey(l.next.ModelName(), taskType, text)
		if cached, ok := l.cache.Get(keys[i]); ok {
			out[i] = cloneEmbedding(cached)
			continue
		}
		misses = append(misses, i)
	}
	if hits := len(texts) - len(misses); hits > 0 {
		logutil.GetLogger(ctx).Debug("embedding cache hit (lru)", zap.String("task_type", taskType), zap.Int("hits", hits))
	}
	vectors, err := fillMisses(out, texts, misses, func(pending []string) ([][]float32, error) {
		res, err := l.next.Embed(ctx, pending, taskType)
		if err != nil {
			return nil, err
		}
		if len(res) != len(pending) {
			return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(res), len(pending))
		}
		return res, nil
	})
	if err != nil {
		return nil, err
	}
	for i, idx := range misses {
		l.cache.Add(keys[idx], cloneEmbedding(vectors[i]))
	}
	return out, nil
}

func (l *lruEmbedder) ModelName() string {
	return l.next.ModelName()
}

func (l *lruEmbedder) Dimension() int {
	return l.next.Dimension()
}

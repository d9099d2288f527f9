package embedcache

import (
	"context"
	"fmt"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/docmem/internal/ai"
	"github.com/xxxsen/docmem/internal/model"
)

type CacheRepo interface {
	GetBatch(ctx context.Context, modelName, taskType string, contentHashes []string) (map[string][]float32, error)
	SaveBatch(ctx context.Context, items []*model.EmbeddingCache) error
}

func WrapDBCacheToEmbedder(e ai.IEmbedder, cacheRepo CacheRepo) ai.IEmbedder {
	if e == nil || cacheRepo == nil {
		return e
	}
	return &dbEmbedder{next: e, repo: cacheRepo}
}

type dbEmbedder struct {
	next ai.IEmbedder
	repo CacheRepo
}

// Embed serves what it can from the database. A failing cache lookup or
// write is logged and never fails the call.
func (d *dbEmbedder) Embed(ctx context.Context, texts []string, taskType string) ([][]float32, error) {
	logger := logutil.GetLogger(ctx)
	modelName := d.next.ModelName()
	hashes := make([]string, len(texts))
	for i, text := range texts {
		_, hashes[i], modelName = buildCacheKey(d.next.ModelName(), taskType, text)
	}
	cached, err := d.repo.GetBatch(ctx, modelName, taskType, hashes)
	if err != nil {
		logger.Warn("read embedding cache failed", zap.Error(err))
		cached = nil
	}
	out := make([][]float32, len(texts))
	var misses []int
	for i, hash := range hashes {
		if v, ok := cached[hash]; ok && len(v) == d.next.Dimension() {
			out[i] = v
			continue
		}
		misses = append(misses, i)
	}
	if hits := len(texts) - len(misses); hits > 0 {
		logger.Debug("embedding cache hit (db)", zap.String("task_type", taskType), zap.Int("hits", hits))
	}
	vectors, err := fillMisses(out, texts, misses, func(pending []string) ([][]float32, error) {
		res, err := d.next.Embed(ctx, pending, taskType)
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
	if len(misses) == 0 {
		return out, nil
	}
	now := time.Now().Unix()
	items := make([]*model.EmbeddingCache, 0, len(misses))
	for i, idx := range misses {
		items = append(items, &model.EmbeddingCache{
			ModelName:   modelName,
			TaskType:    taskType,
			ContentHash: hashes[idx],
			Embedding:   vectors[i],
			Ctime:       now,
		})
	}
	if err := d.repo.SaveBatch(ctx, items); err != nil {
		logger.Warn("failed to cache embedding", zap.Error(err))
	}
	return out, nil
}

func (d *dbEmbedder) ModelName() string {
	return d.next.ModelName()
}

func (d *dbEmbedder) Dimension() int {
	return d.next.Dimension()
}

package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/xxxsen/common/logutil"
	"github.com/xxxsen/docmem/internal/memory"
	"github.com/xxxsen/docmem/internal/model"
	"github.com/xxxsen/docmem/internal/observability"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type StoreResult struct {
	Success bool   `json:"success"`
	Chunks  int    `json:"chunks"`
	Warning string `json:"warning,omitempty"`
	Err     error  `json:"-"`
}

type MutationResult struct {
	Success bool   `json:"success"`
	Warning string `json:"warning,omitempty"`
	Err     error  `json:"-"`
}

// MemoryService is the query surface over the per-scope memory. None of its
// methods return an error: failures are logged and folded into the result.
type MemoryService struct {
	memories *memory.Manager
	topK     int
}

func NewMemoryService(memories *memory.Manager, defaultTopK int) *MemoryService {
	if defaultTopK <= 0 {
		defaultTopK = memory.DefaultTopK
	}
	return &MemoryService{memories: memories, topK: defaultTopK}
}

func (s *MemoryService) StoreDocument(ctx context.Context, scope, filename, text, docType string) StoreResult {
	ctx, span := observability.StartMemorySpan(ctx, "store_document", scope)
	defer span.End()

	var chunks int
	err := s.memories.With(ctx, scope, func(st *memory.Store) error {
		var err error
		chunks, err = st.StoreDocument(ctx, filename, text, docType)
		return err
	})
	var perr *memory.PersistError
	switch {
	case err == nil:
		logutil.GetLogger(ctx).Info("document stored",
			zap.String("scope", scope), zap.String("filename", filename), zap.Int("chunks", chunks))
		return StoreResult{Success: true, Chunks: chunks}
	case errors.As(err, &perr):
		logutil.GetLogger(ctx).Error("document stored but snapshot not saved",
			zap.String("scope", scope), zap.String("filename", filename), zap.Error(err))
		return StoreResult{Success: true, Chunks: chunks, Warning: "document stored in memory but could not be saved", Err: err}
	default:
		observability.RecordError(span, err)
		logutil.GetLogger(ctx).Error("store document failed",
			zap.String("scope", scope), zap.String("filename", filename), zap.Error(err))
		return StoreResult{Warning: err.Error(), Err: err}
	}
}

// SearchDocuments returns the k nearest chunks; k <= 0 uses the default.
func (s *MemoryService) SearchDocuments(ctx context.Context, scope, query string, k int) []model.SearchResult {
	ctx, span := observability.StartMemorySpan(ctx, "search_documents", scope)
	defer span.End()
	if k <= 0 {
		k = s.topK
	}
	var results []model.SearchResult
	err := s.memories.With(ctx, scope, func(st *memory.Store) error {
		var err error
		results, err = st.SearchDocuments(ctx, query, k)
		return err
	})
	if err != nil {
		observability.RecordError(span, err)
		logutil.GetLogger(ctx).Error("search documents failed", zap.String("scope", scope), zap.Error(err))
		return []model.SearchResult{}
	}
	if results == nil {
		results = []model.SearchResult{}
	}
	logutil.GetLogger(ctx).Debug("search documents",
		zap.String("scope", scope), zap.Int("k", k), zap.Int("hits", len(results)))
	return results
}

// BuildContext renders search results as a ranked context block, best match
// first. An empty result set yields an empty string.
func (s *MemoryService) BuildContext(results []model.SearchResult) string {
	if len(results) == 0 {
		return ""
	}
	var sb strings.Builder
	for i, r := range results {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		fmt.Fprintf(&sb, "[%d] %s (%s, part %d, similarity %.2f)\n%s",
			i+1, r.Metadata.Filename, r.Metadata.DocType, r.Metadata.ChunkIndex+1, r.Similarity, r.Text)
	}
	return sb.String()
}

func (s *MemoryService) GetAllDocuments(ctx context.Context, scope string) []model.DocumentSummary {
	var docs []model.DocumentSummary
	err := s.memories.With(ctx, scope, func(st *memory.Store) error {
		docs = st.GetAllDocuments(ctx)
		return nil
	})
	if err != nil {
		logutil.GetLogger(ctx).Error("list documents failed", zap.String("scope", scope), zap.Error(err))
	}
	if docs == nil {
		docs = []model.DocumentSummary{}
	}
	return docs
}

func (s *MemoryService) RemoveDocument(ctx context.Context, scope, filename string) MutationResult {
	ctx, span := observability.StartMemorySpan(ctx, "remove_document", scope)
	defer span.End()
	err := s.memories.With(ctx, scope, func(st *memory.Store) error {
		return st.RemoveDocument(ctx, filename)
	})
	return s.mutationResult(ctx, span, "remove document", scope, filename, err)
}

// GetDocumentText returns the stitched text of filename and whether it exists.
func (s *MemoryService) GetDocumentText(ctx context.Context, scope, filename string) (string, bool) {
	var text string
	err := s.memories.With(ctx, scope, func(st *memory.Store) error {
		var err error
		text, err = st.GetDocumentText(ctx, filename)
		return err
	})
	if err != nil {
		if !errors.Is(err, memory.ErrNotFound) {
			logutil.GetLogger(ctx).Error("get document text failed",
				zap.String("scope", scope), zap.String("filename", filename), zap.Error(err))
		}
		return "", false
	}
	return text, true
}

func (s *MemoryService) ClearAll(ctx context.Context, scope string) MutationResult {
	ctx, span := observability.StartMemorySpan(ctx, "clear_all", scope)
	defer span.End()
	err := s.memories.With(ctx, scope, func(st *memory.Store) error {
		return st.ClearAll(ctx)
	})
	return s.mutationResult(ctx, span, "clear memory", scope, "", err)
}

func (s *MemoryService) GetStats(ctx context.Context, scope string) model.MemoryStats {
	var stats model.MemoryStats
	err := s.memories.With(ctx, scope, func(st *memory.Store) error {
		stats = st.Stats(ctx)
		return nil
	})
	if err != nil {
		logutil.GetLogger(ctx).Error("get stats failed", zap.String("scope", scope), zap.Error(err))
	}
	return stats
}

func (s *MemoryService) mutationResult(ctx context.Context, span trace.Span, op, scope, filename string, err error) MutationResult {
	logger := logutil.GetLogger(ctx).With(zap.String("scope", scope))
	if filename != "" {
		logger = logger.With(zap.String("filename", filename))
	}
	observability.RecordError(span, err)
	var perr *memory.PersistError
	switch {
	case err == nil:
		logger.Info(op + " succeeded")
		return MutationResult{Success: true}
	case errors.As(err, &perr):
		logger.Error(op+" applied but snapshot not saved", zap.Error(err))
		return MutationResult{Success: true, Warning: "change applied in memory but could not be saved", Err: err}
	case errors.Is(err, memory.ErrNotFound):
		logger.Info(op+" found nothing", zap.Error(err))
		return MutationResult{Warning: err.Error(), Err: err}
	default:
		logger.Error(op+" failed", zap.Error(err))
		return MutationResult{Warning: err.Error(), Err: err}
	}
}

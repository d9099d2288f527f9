// Package memory keeps the per-scope semantic memory: chunk text, chunk
// metadata and the vector index, persisted as one snapshot.
package memory

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/xxxsen/common/logutil"
	"github.com/xxxsen/docmem/internal/index"
	"github.com/xxxsen/docmem/internal/model"
	appErr "github.com/xxxsen/docmem/internal/pkg/errors"
	"github.com/xxxsen/docmem/internal/snapstore"
	"go.uber.org/zap"
)

const (
	TaskDocument = "RETRIEVAL_DOCUMENT"
	TaskQuery    = "RETRIEVAL_QUERY"

	DefaultDimension     = 384
	DefaultMinChunkChars = 10
	DefaultTopK          = 3
	DefaultEmbedTimeout  = 30 * time.Second
	previewRunes         = 100
)

type Chunker interface {
	Chunk(text string) ([]string, error)
}

type Embedder interface {
	Embed(ctx context.Context, texts []string, taskType string) ([][]float32, error)
}

type SnapshotStore interface {
	Load(ctx context.Context, key string) ([]byte, error)
	Save(ctx context.Context, key string, data []byte) error
	Delete(ctx context.Context, key string) error
}

type Options struct {
	Dimension     int
	MinChunkChars int
	DefaultTopK   int
	EmbedTimeout  time.Duration
}

func (o Options) withDefaults() Options {
	if o.Dimension <= 0 {
		o.Dimension = DefaultDimension
	}
	if o.MinChunkChars <= 0 {
		o.MinChunkChars = DefaultMinChunkChars
	}
	if o.DefaultTopK <= 0 {
		o.DefaultTopK = DefaultTopK
	}
	if o.EmbedTimeout <= 0 {
		o.EmbedTimeout = DefaultEmbedTimeout
	}
	return o
}

// Store is the memory of one scope. It is not safe for concurrent use;
// Manager serializes access per scope.
type Store struct {
	scope     string
	key       string
	chunker   Chunker
	embedder  Embedder
	snapshots SnapshotStore
	opts      Options

	chunks    []string
	records   []model.DocumentRecord
	idx       *index.FlatL2
	loaded    bool
	persisted bool
	// dirty marks a mutation that did not reach storage.
	dirty bool
}

func NewStore(scope string, chunker Chunker, embedder Embedder, snapshots SnapshotStore, opts Options) *Store {
	opts = opts.withDefaults()
	return &Store{
		scope:     scope,
		key:       snapstore.ScopeKey(scope),
		chunker:   chunker,
		embedder:  embedder,
		snapshots: snapshots,
		opts:      opts,
		idx:       index.NewFlatL2(opts.Dimension),
	}
}

func (s *Store) Scope() string {
	return s.scope
}

// Load restores the snapshot of the scope. A missing snapshot is an empty
// memory; an unreadable one is logged and also starts empty.
func (s *Store) Load(ctx context.Context) {
	s.loaded = true
	s.dirty = false
	s.reset()
	logger := logutil.GetLogger(ctx).With(zap.String("scope", s.scope), zap.String("key", s.key))
	data, err := s.snapshots.Load(ctx, s.key)
	if err != nil {
		if errors.Is(err, appErr.ErrNotFound) {
			s.persisted = true
			return
		}
		logger.Error("load snapshot failed, start with empty memory", zap.Error(err))
		s.persisted = false
		return
	}
	chunks, records, idx, err := decodeSnapshot(data, s.opts.Dimension)
	if err != nil {
		logger.Error("snapshot is corrupt, start with empty memory", zap.Error(err))
		s.persisted = false
		return
	}
	s.chunks, s.records, s.idx = chunks, records, idx
	s.persisted = true
	logger.Info("snapshot loaded", zap.Int("chunks", len(chunks)))
}

func (s *Store) ensureLoaded(ctx context.Context) {
	if !s.loaded {
		s.Load(ctx)
	}
}

func (s *Store) reset() {
	s.chunks = nil
	s.records = nil
	s.idx = index.NewFlatL2(s.opts.Dimension)
}

// StoreDocument chunks and embeds text and appends it under filename.
// It returns the number of chunks added. On a *PersistError the chunks are
// stored in memory but not on disk.
func (s *Store) StoreDocument(ctx context.Context, filename, text, docType string) (int, error) {
	s.ensureLoaded(ctx)
	if strings.TrimSpace(text) == "" || strings.TrimSpace(filename) == "" {
		return 0, ErrEmptyInput
	}
	pieces, err := s.chunker.Chunk(text)
	if err != nil {
		return 0, &DependencyError{Op: "chunk", Err: err}
	}
	kept := make([]string, 0, len(pieces))
	for _, p := range pieces {
		if utf8.RuneCountInString(strings.TrimSpace(p)) < s.opts.MinChunkChars {
			continue
		}
		kept = append(kept, p)
	}
	if len(kept) == 0 {
		return 0, ErrNoChunks
	}
	vectors, err := s.embed(ctx, kept, TaskDocument)
	if err != nil {
		return 0, &DependencyError{Op: "embed", Err: err}
	}
	if err := s.checkVectors(vectors, len(kept)); err != nil {
		return 0, &DependencyError{Op: "embed", Err: err}
	}

	base := 0
	for _, r := range s.records {
		if r.Filename == filename {
			base++
		}
	}
	records := make([]model.DocumentRecord, len(kept))
	for i, chunk := range kept {
		records[i] = model.DocumentRecord{
			Filename:   filename,
			DocType:    docType,
			ChunkIndex: base + i,
			Preview:    preview(chunk),
		}
	}
	s.idx.Insert(vectors)
	s.chunks = append(s.chunks, kept...)
	s.records = append(s.records, records...)
	logutil.GetLogger(ctx).Debug("document stored",
		zap.String("scope", s.scope), zap.String("filename", filename), zap.Int("chunks", len(kept)))
	if err := s.persist(ctx); err != nil {
		return len(kept), &PersistError{Op: "store", Err: err}
	}
	return len(kept), nil
}

func (s *Store) embed(ctx context.Context, texts []string, taskType string) ([][]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.EmbedTimeout)
	defer cancel()
	return s.embedder.Embed(ctx, texts, taskType)
}

func (s *Store) checkVectors(vectors [][]float32, want int) error {
	if len(vectors) != want {
		return fmt.Errorf("got %d vectors for %d texts", len(vectors), want)
	}
	for i, v := range vectors {
		if len(v) != s.opts.Dimension {
			return fmt.Errorf("vector %d has dimension %d, want %d", i, len(v), s.opts.Dimension)
		}
	}
	return nil
}

// SearchDocuments returns up to k chunks nearest to query, closest first.
// k <= 0 uses the configured default.
func (s *Store) SearchDocuments(ctx context.Context, query string, k int) ([]model.SearchResult, error) {
	s.ensureLoaded(ctx)
	if strings.TrimSpace(query) == "" || len(s.chunks) == 0 {
		return []model.SearchResult{}, nil
	}
	if k <= 0 {
		k = s.opts.DefaultTopK
	}
	vectors, err := s.embed(ctx, []string{query}, TaskQuery)
	if err != nil {
		return nil, &DependencyError{Op: "embed", Err: err}
	}
	if err := s.checkVectors(vectors, 1); err != nil {
		return nil, &DependencyError{Op: "embed", Err: err}
	}
	neighbors := s.idx.Search(vectors[0], k)
	out := make([]model.SearchResult, 0, len(neighbors))
	for _, n := range neighbors {
		out = append(out, model.SearchResult{
			Text:       s.chunks[n.ID],
			Metadata:   s.records[n.ID],
			Distance:   n.Distance,
			Similarity: Similarity(n.Distance),
		})
	}
	return out, nil
}

// Similarity maps a squared L2 distance into (0, 1]. It only preserves
// ordering; it is neither a probability nor a cosine.
func Similarity(distance float32) float64 {
	d := float64(distance)
	if d < 0 || math.IsNaN(d) {
		d = 0
	}
	return 1 / (1 + d)
}

// RemoveDocument drops every chunk of filename and rebuilds the index from
// the stored vectors of the remaining chunks.
func (s *Store) RemoveDocument(ctx context.Context, filename string) error {
	s.ensureLoaded(ctx)
	matched := 0
	for _, r := range s.records {
		if r.Filename == filename {
			matched++
		}
	}
	if matched == 0 {
		return ErrNotFound
	}
	remain := len(s.records) - matched
	chunks := make([]string, 0, remain)
	records := make([]model.DocumentRecord, 0, remain)
	vectors := make([][]float32, 0, remain)
	positions := make(map[string]int)
	for i, r := range s.records {
		if r.Filename == filename {
			continue
		}
		r.ChunkIndex = positions[r.Filename]
		positions[r.Filename]++
		chunks = append(chunks, s.chunks[i])
		records = append(records, r)
		vectors = append(vectors, s.idx.Vector(i))
	}
	s.idx.Rebuild(vectors)
	s.chunks = chunks
	s.records = records
	logutil.GetLogger(ctx).Info("document removed",
		zap.String("scope", s.scope), zap.String("filename", filename),
		zap.Int("removed_chunks", matched), zap.Int("remaining_chunks", remain))
	if err := s.persist(ctx); err != nil {
		return &PersistError{Op: "remove", Err: err}
	}
	return nil
}

// GetAllDocuments lists one summary per filename in first-seen order.
func (s *Store) GetAllDocuments(ctx context.Context) []model.DocumentSummary {
	s.ensureLoaded(ctx)
	out := make([]model.DocumentSummary, 0)
	pos := make(map[string]int)
	for _, r := range s.records {
		if i, ok := pos[r.Filename]; ok {
			out[i].ChunkCount++
			continue
		}
		pos[r.Filename] = len(out)
		out = append(out, model.DocumentSummary{
			Filename:   r.Filename,
			DocType:    r.DocType,
			ChunkCount: 1,
			Preview:    r.Preview,
		})
	}
	return out
}

// GetDocumentText rebuilds the text of filename from its chunks, dropping
// the words each chunk repeats from its predecessor.
func (s *Store) GetDocumentText(ctx context.Context, filename string) (string, error) {
	s.ensureLoaded(ctx)
	var parts []string
	for i, r := range s.records {
		if r.Filename == filename {
			parts = append(parts, s.chunks[i])
		}
	}
	if len(parts) == 0 {
		return "", ErrNotFound
	}
	return stitch(parts), nil
}

// ClearAll empties the scope and deletes its snapshot.
func (s *Store) ClearAll(ctx context.Context) error {
	s.loaded = true
	s.reset()
	if err := s.snapshots.Delete(ctx, s.key); err != nil {
		s.persisted = false
		s.dirty = true
		return &PersistError{Op: "clear", Err: err}
	}
	s.persisted = true
	s.dirty = false
	return nil
}

func (s *Store) Stats(ctx context.Context) model.MemoryStats {
	s.ensureLoaded(ctx)
	docs := make(map[string]struct{})
	for _, r := range s.records {
		docs[r.Filename] = struct{}{}
	}
	return model.MemoryStats{
		TotalChunks:     len(s.chunks),
		UniqueDocuments: len(docs),
		IndexSize:       s.idx.Count(),
		Dimension:       s.idx.Dimension(),
		Persisted:       s.persisted,
	}
}

// Persisted reports whether the memory matches storage. It is false after
// a failed load as well as after a failed write.
func (s *Store) Persisted() bool {
	return s.persisted
}

// HasUnsavedChanges reports whether a mutation failed to reach storage.
// Dropping such a store loses data; dropping one whose load failed does not.
func (s *Store) HasUnsavedChanges() bool {
	return s.dirty
}

func (s *Store) persist(ctx context.Context) error {
	data, err := encodeSnapshot(s.chunks, s.records, s.idx)
	if err != nil {
		s.persisted = false
		s.dirty = true
		return err
	}
	if err := s.snapshots.Save(ctx, s.key, data); err != nil {
		s.persisted = false
		s.dirty = true
		logutil.GetLogger(ctx).Error("save snapshot failed",
			zap.String("scope", s.scope), zap.String("key", s.key), zap.Error(err))
		return err
	}
	s.persisted = true
	s.dirty = false
	return nil
}

func preview(chunk string) string {
	text := strings.TrimSpace(chunk)
	if utf8.RuneCountInString(text) <= previewRunes {
		return text
	}
	return string([]rune(text)[:previewRunes])
}

func stitch(parts []string) string {
	if len(parts) == 1 {
		return parts[0]
	}
	words := strings.Fields(parts[0])
	for _, part := range parts[1:] {
		next := strings.Fields(part)
		words = append(words, next[overlapLen(words, next):]...)
	}
	return strings.Join(words, " ")
}

// overlapLen is the length of the longest suffix of prev that is also a
// prefix of next.
func overlapLen(prev, next []string) int {
	limit := len(prev)
	if len(next) < limit {
		limit = len(next)
	}
	for n := limit; n > 0; n-- {
		match := true
		for i := 0; i < n; i++ {
			if prev[len(prev)-n+i] != next[i] {
				match = false
				break
			}
		}
		if match {
			return n
		}
	}
	return 0
}

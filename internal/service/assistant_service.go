package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/xxxsen/common/logutil"
	"github.com/xxxsen/docmem/internal/ai"
	"github.com/xxxsen/docmem/internal/chunker"
	"github.com/xxxsen/docmem/internal/model"
	"github.com/xxxsen/docmem/internal/observability"
	"github.com/xxxsen/docmem/internal/pdftext"
	appErr "github.com/xxxsen/docmem/internal/pkg/errors"
	"go.uber.org/zap"
)

const maxHistory = 50

// AssistantService turns uploads into stored memory and answers questions
// from it.
type AssistantService struct {
	memories *MemoryService
	ai       *ai.Manager
	now      func() time.Time

	mu      sync.Mutex
	history map[string][]model.HistoryEntry
}

func NewAssistantService(memories *MemoryService, manager *ai.Manager) *AssistantService {
	return &AssistantService{
		memories: memories,
		ai:       manager,
		now:      time.Now,
		history:  make(map[string][]model.HistoryEntry),
	}
}

// ExtractText returns the text of an upload. PDFs are parsed, anything else
// must be valid UTF-8 text.
func ExtractText(data []byte) (string, error) {
	if pdftext.IsPDF(data) {
		text, err := pdftext.ExtractBytes(data)
		if err != nil {
			return "", fmt.Errorf("read pdf: %v: %w", err, appErr.ErrInvalid)
		}
		return text, nil
	}
	if !utf8.Valid(data) {
		return "", fmt.Errorf("unsupported file content: %w", appErr.ErrInvalid)
	}
	return strings.TrimSpace(string(data)), nil
}

// Analyze extracts the upload, classifies and summarizes it, and stores the
// text together with the plain-text summary under filename.
func (s *AssistantService) Analyze(ctx context.Context, scope, filename string, data []byte) (*model.DocumentAnalysis, error) {
	filename = strings.TrimSpace(filename)
	if filename == "" {
		return nil, fmt.Errorf("filename is required: %w", appErr.ErrInvalid)
	}
	text, err := ExtractText(data)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("no text could be extracted from %s: %w", filename, appErr.ErrInvalid)
	}
	logger := logutil.GetLogger(ctx).With(zap.String("scope", scope), zap.String("filename", filename))

	docType := s.ai.DetectDocumentType(ctx, text)
	summary := ""
	if s.ai.Available() {
		actx, span := observability.StartAISpan(ctx, "summary")
		summary, err = s.ai.SummarizeAndTasks(actx, text, docType)
		observability.RecordError(span, err)
		span.End()
		if err != nil {
			logger.Warn("summary generation failed, storing text only", zap.Error(err))
			summary = ""
		}
	}

	stored := text
	if plain := chunker.PlainText(summary); plain != "" {
		stored = text + "\n\n" + plain
	}
	res := s.memories.StoreDocument(ctx, scope, filename, stored, docType)
	if !res.Success {
		return nil, res.Err
	}
	logger.Info("document analyzed", zap.String("doc_type", docType), zap.Int("chunks", res.Chunks))
	return &model.DocumentAnalysis{
		Filename:  filename,
		DocType:   docType,
		Summary:   summary,
		Chunks:    res.Chunks,
		TextChars: utf8.RuneCountInString(text),
		Warning:   res.Warning,
	}, nil
}

// Ask answers question from the k most relevant chunks. Without a working
// generator the relevant passages are returned as the answer.
func (s *AssistantService) Ask(ctx context.Context, scope, question string, k int) (*model.Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, fmt.Errorf("question is required: %w", appErr.ErrInvalid)
	}
	results := s.memories.SearchDocuments(ctx, scope, question, k)
	if len(results) == 0 {
		return nil, appErr.ErrNoContext
	}
	contextBlock := s.memories.BuildContext(results)

	answer := ""
	if s.ai.Available() {
		actx, span := observability.StartAISpan(ctx, "answer")
		var err error
		answer, err = s.ai.Answer(actx, question, contextBlock)
		observability.RecordError(span, err)
		span.End()
		if err != nil {
			logutil.GetLogger(ctx).Warn("answer generation failed, falling back to passages",
				zap.String("scope", scope), zap.Error(err))
			answer = ""
		}
	}
	if answer == "" {
		answer = extractiveAnswer(results)
	}
	s.record(scope, question, answer)
	return &model.Answer{Question: question, Answer: answer, Sources: results}, nil
}

func extractiveAnswer(results []model.SearchResult) string {
	var sb strings.Builder
	sb.WriteString("AI answering is unavailable. Most relevant passages:")
	for _, r := range results {
		fmt.Fprintf(&sb, "\n\n- %s: %s", r.Metadata.Filename, r.Text)
	}
	return sb.String()
}

func (s *AssistantService) record(scope, question, answer string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries := append(s.history[scope], model.HistoryEntry{
		Question: question,
		Answer:   answer,
		Ctime:    s.now().Unix(),
	})
	if len(entries) > maxHistory {
		entries = append([]model.HistoryEntry(nil), entries[len(entries)-maxHistory:]...)
	}
	s.history[scope] = entries
}

// History returns the questions asked in scope, newest first.
func (s *AssistantService) History(scope string) []model.HistoryEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries := s.history[scope]
	out := make([]model.HistoryEntry, 0, len(entries))
	for i := len(entries) - 1; i >= 0; i-- {
		out = append(out, entries[i])
	}
	return out
}

func (s *AssistantService) ClearHistory(scope string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.history, scope)
}

// Insights extracts entities and suggested questions for a stored document.
func (s *AssistantService) Insights(ctx context.Context, scope, filename string) (*model.DocumentInsights, error) {
	text, ok := s.memories.GetDocumentText(ctx, scope, filename)
	if !ok {
		return nil, appErr.ErrNotFound
	}
	if !s.ai.Available() {
		return nil, ai.ErrUnavailable
	}
	actx, span := observability.StartAISpan(ctx, "insights")
	defer span.End()
	entities, err := s.ai.ExtractEntities(actx, text)
	if err != nil {
		observability.RecordError(span, err)
		if errors.Is(err, ai.ErrUnavailable) {
			return nil, err
		}
		logutil.GetLogger(ctx).Warn("entity extraction failed", zap.String("filename", filename), zap.Error(err))
		entities = map[string][]string{}
	}
	questions, err := s.ai.SuggestQuestions(actx, text)
	if err != nil {
		observability.RecordError(span, err)
		logutil.GetLogger(ctx).Warn("question suggestion failed", zap.String("filename", filename), zap.Error(err))
		questions = []string{}
	}
	return &model.DocumentInsights{Filename: filename, Entities: entities, Questions: questions}, nil
}

package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/docmem/internal/ai"
	"github.com/xxxsen/docmem/internal/chunker"
	"github.com/xxxsen/docmem/internal/memory"
	appErr "github.com/xxxsen/docmem/internal/pkg/errors"
	"github.com/xxxsen/docmem/internal/snapstore"
)

const notesText = "Team sync notes. The launch deadline moved to 2024-01-17 after review. Alice owns the release checklist."

type scriptedGenerator struct {
	mu      sync.Mutex
	prompts []string
	fail    error
}

func (g *scriptedGenerator) Generate(ctx context.Context, prompt string, opts ai.GenerateOptions) (string, error) {
	g.mu.Lock()
	g.prompts = append(g.prompts, prompt)
	g.mu.Unlock()
	if g.fail != nil {
		return "", g.fail
	}
	switch {
	case strings.Contains(prompt, "determine what type of document"):
		return "Meeting Notes", nil
	case strings.Contains(prompt, "Please answer this specific question"):
		return "The deadline is 2024-01-17.", nil
	case strings.Contains(prompt, "Extract key entities"):
		return "```json\n{\"people\": [\"Alice\"], \"dates\": [\"2024-01-17\"]}\n```", nil
	case strings.Contains(prompt, "generate 5-7 intelligent questions"):
		return "1. When is the launch?\n2. Who owns the checklist?", nil
	default:
		return "## Summary\n- Launch deadline is **2024-01-17**", nil
	}
}

type failingSnapshots struct {
	memory.SnapshotStore
	err error
}

func (f *failingSnapshots) Save(ctx context.Context, key string, data []byte) error {
	return f.err
}

func newTestMemoryService(t *testing.T, snapshots memory.SnapshotStore) *MemoryService {
	t.Helper()
	if snapshots == nil {
		snapshots = snapstore.NewLocal(t.TempDir())
	}
	p, err := ai.NewEmbedProvider("local", nil)
	require.NoError(t, err)
	embedder := ai.NewEmbedder(p, "hash", memory.DefaultDimension)
	manager := memory.NewManager(chunker.NewSentenceChunker(300, 50, 5), embedder, snapshots, memory.Options{})
	return NewMemoryService(manager, 3)
}

func TestMemoryServiceStoreSearchRemove(t *testing.T) {
	ctx := context.Background()
	svc := newTestMemoryService(t, nil)

	res := svc.StoreDocument(ctx, "s1", "notes.pdf", notesText, ai.DocTypeMeeting)
	require.True(t, res.Success)
	require.Equal(t, 1, res.Chunks)
	require.Empty(t, res.Warning)

	hits := svc.SearchDocuments(ctx, "s1", "launch deadline", 0)
	require.Len(t, hits, 1)
	require.Contains(t, hits[0].Text, "2024-01-17")
	require.Equal(t, "notes.pdf", hits[0].Metadata.Filename)

	block := svc.BuildContext(hits)
	require.True(t, strings.HasPrefix(block, "[1] notes.pdf (Meeting Notes, part 1, similarity "))
	require.Contains(t, block, "2024-01-17")
	require.Empty(t, svc.BuildContext(nil))

	docs := svc.GetAllDocuments(ctx, "s1")
	require.Len(t, docs, 1)
	require.Equal(t, 1, docs[0].ChunkCount)

	text, ok := svc.GetDocumentText(ctx, "s1", "notes.pdf")
	require.True(t, ok)
	require.Equal(t, notesText, text)

	removed := svc.RemoveDocument(ctx, "s1", "notes.pdf")
	require.True(t, removed.Success)
	stats := svc.GetStats(ctx, "s1")
	require.Equal(t, 0, stats.TotalChunks)
	require.True(t, stats.Persisted)
}

func TestMemoryServiceFailuresFoldIntoResults(t *testing.T) {
	ctx := context.Background()
	svc := newTestMemoryService(t, nil)

	res := svc.StoreDocument(ctx, "s1", "empty.txt", "   ", "")
	require.False(t, res.Success)
	require.NotEmpty(t, res.Warning)
	require.ErrorIs(t, res.Err, memory.ErrEmptyInput)

	removed := svc.RemoveDocument(ctx, "s1", "missing.pdf")
	require.False(t, removed.Success)
	require.ErrorIs(t, removed.Err, appErr.ErrNotFound)

	_, ok := svc.GetDocumentText(ctx, "s1", "missing.pdf")
	require.False(t, ok)

	require.Empty(t, svc.SearchDocuments(ctx, "", "anything", 3))
	require.NotNil(t, svc.SearchDocuments(ctx, "s1", "anything", 3))
	require.Equal(t, 0, svc.GetStats(ctx, "").TotalChunks)
}

func TestMemoryServicePersistFailureKeepsMutation(t *testing.T) {
	ctx := context.Background()
	snapshots := &failingSnapshots{SnapshotStore: snapstore.NewLocal(t.TempDir()), err: errors.New("disk full")}
	svc := newTestMemoryService(t, snapshots)

	res := svc.StoreDocument(ctx, "s1", "notes.pdf", notesText, "")
	require.True(t, res.Success)
	require.NotEmpty(t, res.Warning)
	var perr *memory.PersistError
	require.True(t, errors.As(res.Err, &perr))

	stats := svc.GetStats(ctx, "s1")
	require.Equal(t, 1, stats.TotalChunks)
	require.False(t, stats.Persisted)

	cleared := svc.ClearAll(ctx, "s1")
	require.True(t, cleared.Success)
}

func TestAssistantAnalyzeAndAsk(t *testing.T) {
	ctx := context.Background()
	gen := &scriptedGenerator{}
	assistant := NewAssistantService(newTestMemoryService(t, nil), ai.NewManager(gen, ai.ManagerConfig{Timeout: 5, MaxInputChars: 30000}))

	analysis, err := assistant.Analyze(ctx, "s1", "notes.txt", []byte(notesText))
	require.NoError(t, err)
	require.Equal(t, ai.DocTypeMeeting, analysis.DocType)
	require.Equal(t, 1, analysis.Chunks)
	require.Contains(t, analysis.Summary, "**2024-01-17**")
	require.Contains(t, analysis.Summary, "**Detected Type**: Meeting Notes")

	stored, ok := assistant.memories.GetDocumentText(ctx, "s1", "notes.txt")
	require.True(t, ok)
	require.True(t, strings.HasPrefix(stored, notesText))
	require.NotContains(t, stored, "**")
	require.NotContains(t, stored, "##")

	answer, err := assistant.Ask(ctx, "s1", "When is the deadline?", 3)
	require.NoError(t, err)
	require.Equal(t, "The deadline is 2024-01-17.", answer.Answer)
	require.Len(t, answer.Sources, 1)
	require.Contains(t, gen.prompts[len(gen.prompts)-1], "2024-01-17")

	history := assistant.History("s1")
	require.Len(t, history, 1)
	require.Equal(t, "When is the deadline?", history[0].Question)
	require.Empty(t, assistant.History("other"))
}

func TestAssistantAskFallsBackToPassages(t *testing.T) {
	ctx := context.Background()
	svc := newTestMemoryService(t, nil)
	require.True(t, svc.StoreDocument(ctx, "s1", "notes.pdf", notesText, "").Success)

	for name, manager := range map[string]*ai.Manager{
		"no generator":     ai.NewManager(nil, ai.ManagerConfig{}),
		"generator errors": ai.NewManager(&scriptedGenerator{fail: errors.New("quota")}, ai.ManagerConfig{}),
	} {
		t.Run(name, func(t *testing.T) {
			assistant := NewAssistantService(svc, manager)
			answer, err := assistant.Ask(ctx, "s1", "deadline", 0)
			require.NoError(t, err)
			require.True(t, strings.HasPrefix(answer.Answer, "AI answering is unavailable."))
			require.Contains(t, answer.Answer, "notes.pdf: ")
		})
	}
}

func TestAssistantAskErrors(t *testing.T) {
	ctx := context.Background()
	assistant := NewAssistantService(newTestMemoryService(t, nil), ai.NewManager(nil, ai.ManagerConfig{}))

	_, err := assistant.Ask(ctx, "s1", "  ", 3)
	require.ErrorIs(t, err, appErr.ErrInvalid)
	_, err = assistant.Ask(ctx, "s1", "anything", 3)
	require.ErrorIs(t, err, appErr.ErrNoContext)
	_, err = assistant.Analyze(ctx, "s1", "", []byte("text"))
	require.ErrorIs(t, err, appErr.ErrInvalid)
	_, err = assistant.Analyze(ctx, "s1", "bin.dat", []byte{0xff, 0xfe, 0x00})
	require.ErrorIs(t, err, appErr.ErrInvalid)
	_, err = assistant.Analyze(ctx, "s1", "blank.txt", []byte("\n  \n"))
	require.ErrorIs(t, err, appErr.ErrInvalid)
}

func TestAssistantAnalyzeWithoutGenerator(t *testing.T) {
	ctx := context.Background()
	assistant := NewAssistantService(newTestMemoryService(t, nil), ai.NewManager(nil, ai.ManagerConfig{}))

	analysis, err := assistant.Analyze(ctx, "s1", "notes.txt", []byte(notesText))
	require.NoError(t, err)
	require.Equal(t, ai.DocTypeGeneral, analysis.DocType)
	require.Empty(t, analysis.Summary)

	stored, ok := assistant.memories.GetDocumentText(ctx, "s1", "notes.txt")
	require.True(t, ok)
	require.Equal(t, notesText, stored)

	_, err = assistant.Insights(ctx, "s1", "notes.txt")
	require.ErrorIs(t, err, ai.ErrUnavailable)
}

func TestAssistantHistoryKeepsNewest(t *testing.T) {
	assistant := NewAssistantService(nil, nil)
	for i := 0; i < maxHistory+5; i++ {
		assistant.record("s1", fmt.Sprintf("q%d", i), "a")
	}
	history := assistant.History("s1")
	require.Len(t, history, maxHistory)
	require.Equal(t, fmt.Sprintf("q%d", maxHistory+4), history[0].Question)
	require.Equal(t, "q5", history[len(history)-1].Question)

	assistant.ClearHistory("s1")
	require.Empty(t, assistant.History("s1"))
}

func TestAssistantInsights(t *testing.T) {
	ctx := context.Background()
	assistant := NewAssistantService(newTestMemoryService(t, nil), ai.NewManager(&scriptedGenerator{}, ai.ManagerConfig{}))
	require.True(t, assistant.memories.StoreDocument(ctx, "s1", "notes.pdf", notesText, "").Success)

	insights, err := assistant.Insights(ctx, "s1", "notes.pdf")
	require.NoError(t, err)
	require.Equal(t, []string{"Alice"}, insights.Entities["people"])
	require.Equal(t, []string{"2024-01-17"}, insights.Entities["dates"])
	require.Equal(t, []string{}, insights.Entities["locations"])
	require.Equal(t, []string{"When is the launch?", "Who owns the checklist?"}, insights.Questions)

	_, err = assistant.Insights(ctx, "s1", "missing.pdf")
	require.ErrorIs(t, err, appErr.ErrNotFound)
}

func TestSessionService(t *testing.T) {
	sessions := NewSessionService([]byte("secret"), time.Hour)
	first, err := sessions.Create()
	require.NoError(t, err)
	second, err := sessions.Create()
	require.NoError(t, err)
	require.NotEqual(t, first.Scope, second.Scope)
	require.Len(t, first.Scope, 40)

	scope, err := sessions.Resolve(first.Token)
	require.NoError(t, err)
	require.Equal(t, first.Scope, scope)

	_, err = NewSessionService([]byte("other"), time.Hour).Resolve(first.Token)
	require.Error(t, err)
}

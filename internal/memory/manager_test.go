package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/docmem/internal/chunker"
	"github.com/xxxsen/docmem/internal/snapstore"
)

type lockedEmbedder struct {
	mu    sync.Mutex
	inner *bagEmbedder
}

func (e *lockedEmbedder) Embed(ctx context.Context, texts []string, taskType string) ([][]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.inner.Embed(ctx, texts, taskType)
}

func newTestManager(snaps SnapshotStore) *Manager {
	return NewManager(chunker.NewWordChunker(12, 3, 0), &lockedEmbedder{inner: &bagEmbedder{}}, snaps, Options{Dimension: testDim})
}

func TestManagerRequiresScope(t *testing.T) {
	m := newTestManager(newMemSnapshots())
	err := m.With(context.Background(), " ", func(*Store) error { return nil })
	require.ErrorIs(t, err, ErrNoScope)
}

func TestManagerSerializesScope(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(newMemSnapshots())

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := m.With(ctx, "shared", func(s *Store) error {
				_, err := s.StoreDocument(ctx, fmt.Sprintf("doc-%d.pdf", i), words(fmt.Sprintf("d%d-", i), 8), "generic")
				return err
			})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	err := m.With(ctx, "shared", func(s *Store) error {
		require.Len(t, s.GetAllDocuments(ctx), 20)
		requireInvariant(t, s)
		return nil
	})
	require.NoError(t, err)
}

func TestManagerIsolatesScopes(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(newMemSnapshots())
	require.NoError(t, m.With(ctx, "a", func(s *Store) error {
		_, err := s.StoreDocument(ctx, "a.pdf", words("a", 20), "generic")
		return err
	}))
	require.NoError(t, m.With(ctx, "b", func(s *Store) error {
		require.Empty(t, s.GetAllDocuments(ctx))
		return nil
	}))
	require.Equal(t, 2, m.Loaded())
}

func TestManagerEvictIdle(t *testing.T) {
	ctx := context.Background()
	snaps := newMemSnapshots()
	m := newTestManager(snaps)
	now := time.Unix(1700000000, 0)
	m.now = func() time.Time { return now }

	require.NoError(t, m.With(ctx, "idle", func(s *Store) error {
		_, err := s.StoreDocument(ctx, "a.pdf", words("a", 20), "generic")
		return err
	}))

	release := make(chan struct{})
	entered := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = m.With(ctx, "busy", func(*Store) error {
			close(entered)
			<-release
			return nil
		})
	}()
	<-entered

	now = now.Add(time.Hour)
	require.Equal(t, 1, m.EvictIdle(ctx, 30*time.Minute))
	require.Equal(t, 1, m.Loaded())

	close(release)
	<-done

	require.NoError(t, m.With(ctx, "idle", func(s *Store) error {
		require.Len(t, s.GetAllDocuments(ctx), 1)
		return nil
	}))
}

func TestManagerKeepsUnsavedScope(t *testing.T) {
	ctx := context.Background()
	snaps := newMemSnapshots()
	m := newTestManager(snaps)
	now := time.Unix(1700000000, 0)
	m.now = func() time.Time { return now }
	snaps.failErr = fmt.Errorf("read-only")

	err := m.With(ctx, "dirty", func(s *Store) error {
		_, err := s.StoreDocument(ctx, "a.pdf", words("a", 20), "generic")
		return err
	})
	var persistErr *PersistError
	require.ErrorAs(t, err, &persistErr)

	now = now.Add(time.Hour)
	require.Equal(t, 0, m.EvictIdle(ctx, time.Minute))
	require.Equal(t, 1, m.Loaded())
}

func TestManagerEvictsScopeWithUnreadableSnapshot(t *testing.T) {
	ctx := context.Background()
	snaps := newMemSnapshots()
	snaps.data[snapstore.ScopeKey("broken")] = []byte("{not json")
	m := newTestManager(snaps)
	now := time.Unix(1700000000, 0)
	m.now = func() time.Time { return now }

	require.NoError(t, m.With(ctx, "broken", func(s *Store) error {
		require.False(t, s.Stats(ctx).Persisted)
		require.False(t, s.HasUnsavedChanges())
		return nil
	}))

	now = now.Add(time.Hour)
	require.Equal(t, 1, m.EvictIdle(ctx, time.Minute))
	require.Equal(t, 0, m.Loaded())
}

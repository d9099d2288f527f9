package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

// Manager owns the stores of every scope. Operations on one scope run one
// at a time; different scopes do not block each other.
type Manager struct {
	chunker   Chunker
	embedder  Embedder
	snapshots SnapshotStore
	opts      Options
	now       func() time.Time

	mu     sync.Mutex
	scopes map[string]*scopeEntry
}

type scopeEntry struct {
	mu       sync.Mutex
	store    *Store
	refs     int
	lastUsed time.Time
}

func NewManager(chunker Chunker, embedder Embedder, snapshots SnapshotStore, opts Options) *Manager {
	return &Manager{
		chunker:   chunker,
		embedder:  embedder,
		snapshots: snapshots,
		opts:      opts.withDefaults(),
		now:       time.Now,
		scopes:    make(map[string]*scopeEntry),
	}
}

// With runs fn with exclusive access to the store of scope, loading the
// snapshot on first use.
func (m *Manager) With(ctx context.Context, scope string, fn func(*Store) error) error {
	if strings.TrimSpace(scope) == "" {
		return ErrNoScope
	}
	entry := m.acquire(scope)
	defer m.release(entry)

	entry.mu.Lock()
	defer entry.mu.Unlock()
	entry.store.ensureLoaded(ctx)
	return fn(entry.store)
}

func (m *Manager) acquire(scope string) *scopeEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.scopes[scope]
	if !ok {
		entry = &scopeEntry{store: NewStore(scope, m.chunker, m.embedder, m.snapshots, m.opts)}
		m.scopes[scope] = entry
	}
	entry.refs++
	entry.lastUsed = m.now()
	return entry
}

func (m *Manager) release(entry *scopeEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry.refs--
	entry.lastUsed = m.now()
}

// EvictIdle drops scopes unused for longer than idle. Scopes in use or with
// unsaved changes are kept. It returns the number of evicted scopes.
func (m *Manager) EvictIdle(ctx context.Context, idle time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := m.now().Add(-idle)
	evicted := 0
	for scope, entry := range m.scopes {
		if entry.refs > 0 || entry.lastUsed.After(cutoff) {
			continue
		}
		if entry.store.HasUnsavedChanges() {
			logutil.GetLogger(ctx).Warn("keep idle scope with unsaved changes", zap.String("scope", scope))
			continue
		}
		delete(m.scopes, scope)
		evicted++
	}
	return evicted
}

// Loaded returns the number of scopes currently held in memory.
func (m *Manager) Loaded() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.scopes)
}

// Package snapstore stores memory snapshots, one opaque blob per scope.
package snapstore

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/crypto/blake2b"

	"github.com/xxxsen/docmem/internal/config"
	appErr "github.com/xxxsen/docmem/internal/pkg/errors"
)

// Store is a key-value store for snapshot blobs. Load returns an error
// wrapping errors.ErrNotFound when the key is absent; deleting an absent key
// succeeds.
type Store interface {
	Type() string
	Load(ctx context.Context, key string) ([]byte, error)
	Save(ctx context.Context, key string, data []byte) error
	Delete(ctx context.Context, key string) error
	Close() error
}

type Factory func(args interface{}) (Store, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

func Register(name string, factory Factory) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" || factory == nil {
		return
	}
	registryMu.Lock()
	registry[key] = factory
	registryMu.Unlock()
}

func New(cfg config.SnapshotStoreConfig) (Store, error) {
	key := strings.ToLower(strings.TrimSpace(cfg.Type))
	if key == "" {
		return nil, fmt.Errorf("snapshot_store.type is required")
	}
	registryMu.RLock()
	factory := registry[key]
	registryMu.RUnlock()
	if factory == nil {
		return nil, fmt.Errorf("unsupported snapshot store type: %s", cfg.Type)
	}
	return factory(cfg.Data)
}

// ScopeKey derives the snapshot name of a scope. Scope ids are opaque, so
// they are hashed rather than used as file or object names directly.
func ScopeKey(scope string) string {
	sum := blake2b.Sum256([]byte(scope))
	return "memory_" + hex.EncodeToString(sum[:]) + ".snap"
}

func notFound(key string) error {
	return fmt.Errorf("snapshot %s: %w", key, appErr.ErrNotFound)
}

func validKey(key string) error {
	if key == "" || strings.ContainsAny(key, `/\`) || key == "." || key == ".." {
		return fmt.Errorf("invalid snapshot key %q: %w", key, appErr.ErrInvalid)
	}
	return nil
}

func decodeConfig(args interface{}, dst interface{}) error {
	if args == nil {
		return fmt.Errorf("store config is required")
	}
	data, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("encode store config: %w", err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decode store config: %w", err)
	}
	return nil
}

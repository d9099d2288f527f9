package memory

import (
	"fmt"

	appErr "github.com/xxxsen/docmem/internal/pkg/errors"
)

var (
	ErrEmptyInput = fmt.Errorf("empty input: %w", appErr.ErrInvalid)
	ErrNoChunks   = fmt.Errorf("no chunk left after filtering: %w", appErr.ErrInvalid)
	ErrNotFound   = fmt.Errorf("document not found: %w", appErr.ErrNotFound)
	ErrNoScope    = fmt.Errorf("scope is required: %w", appErr.ErrInvalid)
)

// DependencyError reports a chunker or embedder failure. The store is left
// untouched when one is returned.
type DependencyError struct {
	Op  string
	Err error
}

func (e *DependencyError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *DependencyError) Unwrap() error {
	return e.Err
}

// PersistError reports a snapshot write that failed after the in-memory
// mutation was applied. The mutation stays visible until the process exits.
type PersistError struct {
	Op  string
	Err error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("persist snapshot after %s: %v", e.Op, e.Err)
}

func (e *PersistError) Unwrap() error {
	return e.Err
}

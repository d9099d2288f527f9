package service

import (
	"crypto/rand"
	"encoding/hex"
)

// newScopeID mints the opaque identifier of a memory scope.
func newScopeID() string {
	bytes := make([]byte, 20)
	_, _ = rand.Read(bytes)
	return hex.EncodeToString(bytes)
}

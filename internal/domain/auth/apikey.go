// Package auth contains API key authentication for back-office endpoints.
package auth

import (
	"context"

	"github.com/go-faster/errors"
)

// ErrKeyNotFound is returned when no key matches the presented hash.
var ErrKeyNotFound = errors.New("api key not found")

// KeyInfo holds a stored API key's metadata. Keys are stored as
// HMAC-SHA256 hashes, never in plain text.
type KeyInfo struct {
	ID      int64
	Name    string
	KeyHash string
}

// Repository provides API key lookups by hash.
type Repository interface {
	FindByHash(ctx context.Context, hash string) (*KeyInfo, error)
}

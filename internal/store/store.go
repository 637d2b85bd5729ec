// Package store provides the ephemeral key/value storage behind sessions, PKCE verifiers and caches.
//
// Three backends implement [Store]: an in-process map ([MemoryStore]), Redis ([RedisStore]) and
// SQLite ([SQLiteStore]). All of them honor per-entry TTLs and report missing or expired keys
// with [ErrNotFound] rather than an empty value.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/desertthunder/spotchat/internal/shared"
)

// ErrNotFound is returned when a key does not exist or has expired.
var ErrNotFound = errors.New("store: key not found")

// Store is an expiring key/value store.
type Store interface {
	// Set writes value under key. A zero ttl means the entry never expires.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Get returns the value under key or [ErrNotFound].
	Get(ctx context.Context, key string) ([]byte, error)
	// Take atomically returns and deletes the value under key, or returns [ErrNotFound].
	Take(ctx context.Context, key string) ([]byte, error)
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	Close() error
}

// Type names a [Store] backend.
type Type string

const (
	TypeMemory Type = "memory"
	TypeRedis  Type = "redis"
	TypeSQLite Type = "sqlite"
)

// ParseType parses a backend name, defaulting to [TypeMemory] for empty input.
func ParseType(s string) (Type, error) {
	switch t := Type(strings.ToLower(strings.TrimSpace(s))); t {
	case "":
		return TypeMemory, nil
	case TypeMemory, TypeRedis, TypeSQLite:
		return t, nil
	default:
		return "", fmt.Errorf("%w: unsupported store type %q", shared.ErrInvalidConfig, s)
	}
}

// New creates the [Store] selected by config.
func New(ctx context.Context, config *shared.Config) (Store, error) {
	t, err := ParseType(config.Store.Type)
	if err != nil {
		return nil, err
	}

	switch t {
	case TypeRedis:
		return NewRedisStore(ctx, config.Store.RedisURL)
	case TypeSQLite:
		return NewSQLiteStore(ctx, config.Database)
	default:
		return NewMemoryStore(), nil
	}
}

package providers

import (
	"context"
	"errors"
	"time"
)

// ErrCacheMiss is returned by Get when a key does not exist.
var ErrCacheMiss = errors.New("cache miss")

// CacheProvider defines the interface for caching operations
type CacheProvider interface {
	// Get retrieves a value from cache; returns ErrCacheMiss for unknown keys
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value in cache with expiration (zero means no expiry)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a value from cache
	Delete(ctx context.Context, key string) error
}

// Package decisioncache defines the port for the routing decision cache.
package decisioncache

import (
	"context"
	"time"
)

// Cache stores serialized routing decisions under canonical context keys
// with a TTL. Implementations may evict entries at any time; a miss is
// never an error.
type Cache interface {
	Get(ctx context.Context, key string) (data []byte, ok bool, err error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Close()
}

// Package cache holds short-lived byte values shared by concurrent queries.
// Values are content-addressed, so last writer wins.
package cache

import (
	"context"
	"time"
)

type Cache interface {
	// Get reports ok=false on a miss or an expired entry.
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	// Set stores value for ttl. A zero ttl keeps the value until evicted.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

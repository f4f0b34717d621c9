package cache

import (
	"context"
	"time"
)

// Cache holds short-lived dispatch state, currently the delivery
// receipts returned by the gateway.
type Cache interface {
	Set(ctx context.Context, key, val string, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
}

package ports

import (
	"context"
	"time"
)

// Cache keeps short-lived moderation snapshots such as dashboard stats and the
// last worker cycle. A zero ttl means no expiry.
type Cache interface {
	Get(ctx context.Context, key string) (value string, found bool, err error)
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

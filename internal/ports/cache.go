package ports

import (
	"context"
	"time"
)

// Cache is the key-value store used for derived QC summaries.
// Adapters are backed by SQLite or Redis; a zero ttl keeps the entry until deleted.
type Cache interface {
	Get(ctx context.Context, key string) (value string, found bool, err error)
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

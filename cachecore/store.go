package cachecore

import (
	"context"
	"time"
)

// NoExpiration marks an entry that never expires.
const NoExpiration time.Duration = -1

// Store is the shared in-process cache contract.
//
// Values are held by reference; stores never copy or encode them.
type Store interface {
	Driver() Driver
	Get(ctx context.Context, key string) (any, bool, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Flush(ctx context.Context) error
	Len() int
}

package cache

import (
	"context"
	"time"
)

// CoreAPI exposes basic cache metadata.
type CoreAPI interface {
	Driver() Driver
	Len() int
	Stats() Stats
}

// LoadAPI exposes single-flight loading.
type LoadAPI interface {
	Get(key string, loader func() (any, error)) (any, error)
	GetCtx(ctx context.Context, key string, loader Loader) (any, error)
	Remember(key string, ttl time.Duration, fn func() (any, error)) (any, error)
	RememberCtx(ctx context.Context, key string, ttl time.Duration, fn Loader) (any, error)
}

// ReadAPI exposes reads that never load.
type ReadAPI interface {
	Peek(key string) (any, bool, error)
	PeekCtx(ctx context.Context, key string) (any, bool, error)
}

// WriteAPI exposes write and invalidation operations.
type WriteAPI interface {
	Put(key string, value any, ttl time.Duration) error
	PutCtx(ctx context.Context, key string, value any, ttl time.Duration) error
	Invalidate(key string) error
	InvalidateCtx(ctx context.Context, key string) error
	InvalidateMany(keys ...string) error
	InvalidateManyCtx(ctx context.Context, keys ...string) error
	Flush() error
	FlushCtx(ctx context.Context) error
}

// CacheAPI is the composed application-facing interface for Cache.
type CacheAPI interface {
	CoreAPI
	LoadAPI
	ReadAPI
	WriteAPI
	Close() error
}

var _ CacheAPI = (*Cache)(nil)

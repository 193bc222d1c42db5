package cache

import (
	"context"
	"fmt"
)

// NewStore returns a concrete store for the requested driver.
// A configuration the driver cannot honor yields a store that returns the
// construction error from every call.
// @group Constructors
//
// Example: select driver explicitly
//
//	ctx := context.Background()
//	store := cache.NewStore(ctx, cache.StoreConfig{
//		Driver: cache.DriverMemory,
//	})
//	fmt.Println(store.Driver()) // memory
func NewStore(ctx context.Context, cfg StoreConfig) Store {
	cfg = cfg.withDefaults()
	switch cfg.Driver {
	case DriverNull:
		return newNullStore()
	case DriverLRU:
		store, err := newLRUStore(ctx, cfg)
		if err != nil {
			return &errorStore{driver: cfg.Driver, err: err}
		}
		return store
	case DriverMemory:
		store, err := newMemoryStore(ctx, cfg)
		if err != nil {
			return &errorStore{driver: cfg.Driver, err: err}
		}
		return store
	default:
		return &errorStore{driver: cfg.Driver, err: fmt.Errorf("cache: unsupported driver %q", cfg.Driver)}
	}
}

// NewStoreWith builds a store using a driver and a set of functional options.
// @group Constructors
//
// Example: bounded store (options)
//
//	ctx := context.Background()
//	store := cache.NewStoreWith(ctx, cache.DriverLRU,
//		cache.WithMaxEntries(1000),
//		cache.WithDefaultTTL(time.Minute),
//	)
//	fmt.Println(store.Driver()) // lru
func NewStoreWith(ctx context.Context, driver Driver, opts ...StoreOption) Store {
	cfg := StoreConfig{Driver: driver}
	for _, opt := range opts {
		cfg = opt(cfg)
	}
	return NewStore(ctx, cfg)
}

// NewMemoryStore is a convenience for an unbounded TTL store.
// @group Constructors
//
// Example: memory helper
//
//	ctx := context.Background()
//	store := cache.NewMemoryStore(ctx)
//	fmt.Println(store.Driver()) // memory
func NewMemoryStore(ctx context.Context, opts ...StoreOption) Store {
	return NewStoreWith(ctx, DriverMemory, opts...)
}

// NewLRUStore is a convenience for a store bounded to maxEntries.
// The sweep goroutine stops when ctx is cancelled or the store is closed.
// @group Constructors
//
// Example: lru helper
//
//	ctx := context.Background()
//	store := cache.NewLRUStore(ctx, 128)
//	fmt.Println(store.Driver()) // lru
func NewLRUStore(ctx context.Context, maxEntries int, opts ...StoreOption) Store {
	return NewStoreWith(ctx, DriverLRU, append([]StoreOption{WithMaxEntries(maxEntries)}, opts...)...)
}

// NewNullStore returns a store that never retains anything.
// @group Constructors
func NewNullStore() Store {
	return newNullStore()
}

package cache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
)

// Loader computes the value for a key on a cache miss.
type Loader func(ctx context.Context) (any, error)

// Cache provides single-flight loading with TTL on top of Store.
//
// A key is always in one of three states: idle, loading or cached. Concurrent
// misses on a key share one loader call, and the loaded value is stored
// before the call is released, so no caller observes loading and cached at
// the same time.
type Cache struct {
	store      Store
	defaultTTL time.Duration
	observer   Observer
	flights    singleflight.Group

	hits         atomic.Uint64
	misses       atomic.Uint64
	loads        atomic.Uint64
	loadFailures atomic.Uint64
	sharedWaits  atomic.Uint64
}

// Stats is a point-in-time snapshot of cache counters.
type Stats struct {
	Hits         uint64
	Misses       uint64
	Loads        uint64
	LoadFailures uint64
	// SharedWaits counts callers that received a result computed for another caller too.
	SharedWaits uint64
	Entries     int
}

// NewCache creates a cache facade bound to a concrete store.
// @group Cache
//
// Example: cache from store
//
//	ctx := context.Background()
//	s := cache.NewMemoryStore(ctx)
//	c := cache.NewCache(s)
//	fmt.Println(c.Driver()) // memory
func NewCache(store Store) *Cache {
	return NewCacheWithTTL(store, defaultCacheTTL)
}

// NewCacheWithTTL lets callers override the default TTL applied when ttl == 0.
// @group Cache
//
// Example: cache with custom default TTL
//
//	ctx := context.Background()
//	s := cache.NewLRUStore(ctx, 100)
//	c := cache.NewCacheWithTTL(s, 2*time.Minute)
//	fmt.Println(c.Driver(), c != nil) // lru true
func NewCacheWithTTL(store Store, defaultTTL time.Duration) *Cache {
	if defaultTTL <= 0 && defaultTTL != NoExpiration {
		defaultTTL = defaultCacheTTL
	}
	return &Cache{
		store:      store,
		defaultTTL: defaultTTL,
	}
}

// WithObserver attaches an observer to receive operation events.
func (c *Cache) WithObserver(o Observer) *Cache {
	c.observer = o
	return c
}

// Store returns the underlying store implementation.
// @group Cache
func (c *Cache) Store() Store {
	return c.store
}

// Driver reports the underlying store driver.
// @group Cache
func (c *Cache) Driver() Driver {
	return c.store.Driver()
}

// Get returns the cached value for key, loading it on a miss with the default TTL.
// @group Cache
//
// Example: load once
//
//	ctx := context.Background()
//	c := cache.NewCache(cache.NewMemoryStore(ctx))
//	v, err := c.Get("order:1", func() (any, error) {
//		return "order-1", nil
//	})
//	fmt.Println(v, err) // order-1 <nil>
func (c *Cache) Get(key string, loader func() (any, error)) (any, error) {
	return c.GetCtx(context.Background(), key, adaptLoader(loader))
}

// GetCtx is the context-aware variant of Get.
func (c *Cache) GetCtx(ctx context.Context, key string, loader Loader) (any, error) {
	return c.remember(ctx, "get", key, 0, loader)
}

// Remember is Get with an explicit ttl for the loaded value.
// @group Cache
//
// Example: remember with ttl
//
//	ctx := context.Background()
//	c := cache.NewCache(cache.NewMemoryStore(ctx))
//	v, _ := c.Remember("settings", time.Minute, func() (any, error) {
//		return map[string]bool{"beta": true}, nil
//	})
//	fmt.Println(v.(map[string]bool)["beta"]) // true
func (c *Cache) Remember(key string, ttl time.Duration, fn func() (any, error)) (any, error) {
	return c.RememberCtx(context.Background(), key, ttl, adaptLoader(fn))
}

// RememberCtx returns the value for key or computes it when missing.
//
// Concurrent misses for key collapse into a single fn call and every waiter
// receives its result. A failed or panicking fn yields a *LoadError for all
// waiters and nothing is cached. A waiter whose ctx ends stops waiting with
// ctx.Err() while the load continues for the others; fn itself runs with a
// context that is not cancelled along with the caller.
func (c *Cache) RememberCtx(ctx context.Context, key string, ttl time.Duration, fn Loader) (any, error) {
	return c.remember(ctx, "remember", key, ttl, fn)
}

func (c *Cache) remember(ctx context.Context, op, key string, ttl time.Duration, fn Loader) (any, error) {
	start := time.Now()
	value, ok, err := c.store.Get(ctx, key)
	if err != nil {
		c.observe(ctx, op, key, false, err, start)
		return nil, err
	}
	if ok {
		c.hits.Add(1)
		c.observe(ctx, op, key, true, nil, start)
		return value, nil
	}
	c.misses.Add(1)
	if fn == nil {
		c.observe(ctx, op, key, false, ErrNilLoader, start)
		return nil, ErrNilLoader
	}

	ttl = c.resolveTTL(ttl)
	loadCtx := context.WithoutCancel(ctx)
	ch := c.flights.DoChan(key, func() (any, error) {
		return c.load(loadCtx, key, ttl, fn)
	})

	select {
	case <-ctx.Done():
		err := ctx.Err()
		c.observe(ctx, op, key, false, err, start)
		return nil, err
	case res := <-ch:
		if res.Shared {
			c.sharedWaits.Add(1)
		}
		c.observe(ctx, op, key, false, res.Err, start)
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val, nil
	}
}

// load runs inside the key's flight.
func (c *Cache) load(ctx context.Context, key string, ttl time.Duration, fn Loader) (value any, err error) {
	// A flight that finished between our miss and this one may have filled the key.
	if cached, ok, err := c.store.Get(ctx, key); err != nil {
		return nil, err
	} else if ok {
		return cached, nil
	}

	c.loads.Add(1)
	defer func() {
		if r := recover(); r != nil {
			c.loadFailures.Add(1)
			value, err = nil, &LoadError{Key: key, Err: fmt.Errorf("loader panic: %v", r)}
		}
	}()

	value, err = fn(ctx)
	if err != nil {
		c.loadFailures.Add(1)
		return nil, &LoadError{Key: key, Err: err}
	}

	start := time.Now()
	if err := c.store.Set(ctx, key, value, ttl); err != nil {
		if !errors.Is(err, ErrCapacityExceeded) {
			return nil, err
		}
		// Waiters still get the value; it just is not retained.
		c.observe(ctx, "store_rejected", key, false, err, start)
	}
	return value, nil
}

// Peek returns the cached value for key without loading.
// @group Cache
//
// Example: peek
//
//	ctx := context.Background()
//	c := cache.NewCache(cache.NewMemoryStore(ctx))
//	_ = c.Put("a", 1, time.Minute)
//	v, ok, _ := c.Peek("a")
//	fmt.Println(v, ok) // 1 true
func (c *Cache) Peek(key string) (any, bool, error) {
	return c.PeekCtx(context.Background(), key)
}

func (c *Cache) PeekCtx(ctx context.Context, key string) (any, bool, error) {
	start := time.Now()
	value, ok, err := c.store.Get(ctx, key)
	if err == nil {
		if ok {
			c.hits.Add(1)
		} else {
			c.misses.Add(1)
		}
	}
	c.observe(ctx, "peek", key, ok, err, start)
	return value, ok, err
}

// Put stores value under key, replacing any existing entry.
// A ttl of 0 uses the default TTL; NoExpiration keeps the entry until evicted.
// @group Cache
//
// Example: put with ttl
//
//	ctx := context.Background()
//	c := cache.NewCache(cache.NewMemoryStore(ctx))
//	fmt.Println(c.Put("token", "abc", time.Minute) == nil) // true
func (c *Cache) Put(key string, value any, ttl time.Duration) error {
	return c.PutCtx(context.Background(), key, value, ttl)
}

func (c *Cache) PutCtx(ctx context.Context, key string, value any, ttl time.Duration) error {
	start := time.Now()
	err := c.store.Set(ctx, key, value, c.resolveTTL(ttl))
	c.observe(ctx, "put", key, false, err, start)
	return err
}

// Invalidate removes the entry for key. A load already in flight for key is
// not cancelled and will store its result when it completes.
// @group Cache
//
// Example: invalidate key
//
//	ctx := context.Background()
//	c := cache.NewCache(cache.NewMemoryStore(ctx))
//	_ = c.Put("a", 1, time.Minute)
//	fmt.Println(c.Invalidate("a") == nil) // true
func (c *Cache) Invalidate(key string) error {
	return c.InvalidateCtx(context.Background(), key)
}

func (c *Cache) InvalidateCtx(ctx context.Context, key string) error {
	start := time.Now()
	err := c.store.Delete(ctx, key)
	c.observe(ctx, "invalidate", key, err == nil, err, start)
	return err
}

// InvalidateMany removes multiple keys.
// @group Cache
func (c *Cache) InvalidateMany(keys ...string) error {
	return c.InvalidateManyCtx(context.Background(), keys...)
}

func (c *Cache) InvalidateManyCtx(ctx context.Context, keys ...string) error {
	start := time.Now()
	for _, key := range keys {
		if err := c.store.Delete(ctx, key); err != nil {
			c.observe(ctx, "invalidate_many", key, false, err, start)
			return err
		}
		c.observe(ctx, "invalidate_many", key, true, nil, start)
	}
	return nil
}

// Flush clears every entry.
// @group Cache
func (c *Cache) Flush() error {
	return c.FlushCtx(context.Background())
}

func (c *Cache) FlushCtx(ctx context.Context) error {
	start := time.Now()
	err := c.store.Flush(ctx)
	c.observe(ctx, "flush", "", err == nil, err, start)
	return err
}

// Len reports how many entries the store holds.
func (c *Cache) Len() int {
	return c.store.Len()
}

// Stats returns a snapshot of the cache counters.
// @group Cache
func (c *Cache) Stats() Stats {
	return Stats{
		Hits:         c.hits.Load(),
		Misses:       c.misses.Load(),
		Loads:        c.loads.Load(),
		LoadFailures: c.loadFailures.Load(),
		SharedWaits:  c.sharedWaits.Load(),
		Entries:      c.store.Len(),
	}
}

// Close releases store resources such as background sweeps.
func (c *Cache) Close() error {
	if closer, ok := c.store.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

func (c *Cache) resolveTTL(ttl time.Duration) time.Duration {
	if ttl > 0 || ttl == NoExpiration {
		return ttl
	}
	return c.defaultTTL
}

func (c *Cache) observe(ctx context.Context, op, key string, hit bool, err error, start time.Time) {
	if c.observer == nil {
		return
	}
	c.observer.OnCacheOp(ctx, op, key, hit, err, time.Since(start), c.Driver())
}

func adaptLoader(fn func() (any, error)) Loader {
	if fn == nil {
		return nil
	}
	return func(context.Context) (any, error) {
		return fn()
	}
}

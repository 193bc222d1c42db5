package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// memoryStore keeps entries in go-cache. It has per-entry TTL but no recency
// tracking, so a MaxEntries bound can only be enforced by rejecting new keys.
type memoryStore struct {
	cache      *gocache.Cache
	defaultTTL time.Duration
	maxEntries int
	onEvict    EvictFunc

	// mu serializes bounded inserts.
	mu sync.Mutex

	// delMu guards deleting, the keys with an explicit Delete in progress.
	delMu    sync.Mutex
	deleting map[string]int

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// newMemoryStore starts an expiry sweep that runs until ctx ends or Close is
// called. go-cache's own janitor is not used since it cannot be stopped.
func newMemoryStore(ctx context.Context, cfg StoreConfig) (*memoryStore, error) {
	if cfg.MaxEntries > 0 && cfg.EvictionPolicy != EvictReject {
		return nil, fmt.Errorf("cache: memory driver cannot evict by recency; use %s or %s policy", DriverLRU, EvictReject)
	}
	defaultTTL := cfg.DefaultTTL
	if defaultTTL == 0 {
		defaultTTL = defaultCacheTTL
	}
	cleanup := cfg.CleanupInterval
	if cleanup <= 0 {
		cleanup = defaultCleanupInterval
	}
	s := &memoryStore{
		cache:      gocache.New(defaultTTL, 0),
		defaultTTL: defaultTTL,
		maxEntries: cfg.MaxEntries,
		onEvict:    cfg.OnEvict,
		deleting:   make(map[string]int),
	}
	if s.onEvict != nil {
		s.cache.OnEvicted(s.evicted)
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go s.sweepLoop(ctx, cleanup)
	return s, nil
}

func (s *memoryStore) Driver() Driver {
	return DriverMemory
}

func (s *memoryStore) Get(_ context.Context, key string) (any, bool, error) {
	value, ok := s.cache.Get(key)
	return value, ok, nil
}

func (s *memoryStore) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	if ttl == 0 {
		ttl = s.defaultTTL
	}
	if s.maxEntries <= 0 {
		s.cache.Set(key, value, ttl)
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.cache.Get(key); !exists && s.cache.ItemCount() >= s.maxEntries {
		s.cache.DeleteExpired()
		if s.cache.ItemCount() >= s.maxEntries {
			return ErrCapacityExceeded
		}
	}
	s.cache.Set(key, value, ttl)
	return nil
}

func (s *memoryStore) Delete(_ context.Context, key string) error {
	if s.onEvict == nil {
		s.cache.Delete(key)
		return nil
	}
	s.delMu.Lock()
	s.deleting[key]++
	s.delMu.Unlock()

	s.cache.Delete(key)

	s.delMu.Lock()
	if s.deleting[key]--; s.deleting[key] <= 0 {
		delete(s.deleting, key)
	}
	s.delMu.Unlock()
	return nil
}

func (s *memoryStore) Flush(_ context.Context) error {
	if s.onEvict == nil {
		s.cache.Flush()
		return nil
	}
	items := s.cache.Items()
	s.cache.Flush()
	for key, item := range items {
		s.onEvict(key, item.Object, EvictDeleted)
	}
	return nil
}

// Len counts stored items, including expired ones the sweep has not removed yet.
func (s *memoryStore) Len() int {
	return s.cache.ItemCount()
}

// Close stops the background sweep.
func (s *memoryStore) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()
		s.wg.Wait()
	})
	return nil
}

func (s *memoryStore) sweepLoop(ctx context.Context, interval time.Duration) {
	defer s.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.cache.DeleteExpired()
		}
	}
}

// evicted is go-cache's eviction hook. go-cache only fires it from Delete and
// the expiry sweep, so anything not marked as an explicit delete has expired.
func (s *memoryStore) evicted(key string, value any) {
	s.delMu.Lock()
	explicit := s.deleting[key] > 0
	s.delMu.Unlock()
	if explicit {
		s.onEvict(key, value, EvictDeleted)
		return
	}
	s.onEvict(key, value, EvictExpired)
}

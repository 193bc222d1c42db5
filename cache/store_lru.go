package cache

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"
)

type lruEntry struct {
	value     any
	expiresAt time.Time
}

func (e *lruEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

type evictedEntry struct {
	key    string
	value  any
	reason EvictReason
}

// lruStore bounds entries by count and evicts the least-recently-accessed one
// first. Recency is the list order kept by simplelru; every Get moves an
// entry to the front.
type lruStore struct {
	defaultTTL time.Duration
	maxEntries int
	policy     EvictionPolicy
	onEvict    EvictFunc

	mu    sync.Mutex
	items *simplelru.LRU[string, *lruEntry]
	// reason labels evictions raised by the current locked operation.
	reason  EvictReason
	pending []evictedEntry

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
}

func newLRUStore(ctx context.Context, cfg StoreConfig) (*lruStore, error) {
	if cfg.MaxEntries <= 0 {
		return nil, errors.New("cache: lru driver requires MaxEntries > 0")
	}
	s := &lruStore{
		defaultTTL: cfg.DefaultTTL,
		maxEntries: cfg.MaxEntries,
		policy:     cfg.EvictionPolicy,
		onEvict:    cfg.OnEvict,
	}
	if s.defaultTTL == 0 {
		s.defaultTTL = defaultCacheTTL
	}
	items, err := simplelru.NewLRU[string, *lruEntry](cfg.MaxEntries, s.record)
	if err != nil {
		return nil, err
	}
	s.items = items

	interval := cfg.CleanupInterval
	if interval <= 0 {
		interval = defaultCleanupInterval
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go s.sweepLoop(ctx, interval)
	return s, nil
}

func (s *lruStore) Driver() Driver {
	return DriverLRU
}

func (s *lruStore) Get(_ context.Context, key string) (any, bool, error) {
	now := time.Now()
	s.mu.Lock()
	entry, ok := s.items.Get(key)
	if ok && entry.expired(now) {
		s.reason = EvictExpired
		s.items.Remove(key)
		ok = false
	}
	var value any
	if ok {
		value = entry.value
	}
	evicted := s.takePendingLocked()
	s.mu.Unlock()

	s.notify(evicted)
	return value, ok, nil
}

func (s *lruStore) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	if ttl == 0 {
		ttl = s.defaultTTL
	}
	now := time.Now()
	entry := &lruEntry{value: value}
	if ttl > 0 {
		entry.expiresAt = now.Add(ttl)
	}

	s.mu.Lock()
	if !s.items.Contains(key) && s.items.Len() >= s.maxEntries {
		if s.policy == EvictReject {
			s.purgeExpiredLocked(now)
			if s.items.Len() >= s.maxEntries {
				evicted := s.takePendingLocked()
				s.mu.Unlock()
				s.notify(evicted)
				return ErrCapacityExceeded
			}
		} else if oldest, old, ok := s.items.GetOldest(); ok && old.expired(now) {
			// The entry Add would evict has already expired.
			s.reason = EvictExpired
			s.items.Remove(oldest)
		}
	}
	s.reason = EvictCapacity
	s.items.Add(key, entry)
	evicted := s.takePendingLocked()
	s.mu.Unlock()

	s.notify(evicted)
	return nil
}

func (s *lruStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	s.reason = EvictDeleted
	s.items.Remove(key)
	evicted := s.takePendingLocked()
	s.mu.Unlock()

	s.notify(evicted)
	return nil
}

func (s *lruStore) Flush(_ context.Context) error {
	s.mu.Lock()
	s.reason = EvictDeleted
	s.items.Purge()
	evicted := s.takePendingLocked()
	s.mu.Unlock()

	s.notify(evicted)
	return nil
}

func (s *lruStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.items.Len()
}

// Close stops the background sweep.
func (s *lruStore) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()
		s.wg.Wait()
	})
	return nil
}

func (s *lruStore) sweepLoop(ctx context.Context, interval time.Duration) {
	defer s.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.mu.Lock()
			s.purgeExpiredLocked(now)
			evicted := s.takePendingLocked()
			s.mu.Unlock()
			s.notify(evicted)
		}
	}
}

func (s *lruStore) purgeExpiredLocked(now time.Time) {
	s.reason = EvictExpired
	for _, key := range s.items.Keys() {
		if entry, ok := s.items.Peek(key); ok && entry.expired(now) {
			s.items.Remove(key)
		}
	}
}

// record is the simplelru eviction callback. It runs under s.mu.
func (s *lruStore) record(key string, entry *lruEntry) {
	if s.onEvict == nil {
		return
	}
	s.pending = append(s.pending, evictedEntry{key: key, value: entry.value, reason: s.reason})
}

func (s *lruStore) takePendingLocked() []evictedEntry {
	if len(s.pending) == 0 {
		return nil
	}
	out := s.pending
	s.pending = nil
	return out
}

func (s *lruStore) notify(evicted []evictedEntry) {
	for _, e := range evicted {
		s.onEvict(e.key, e.value, e.reason)
	}
}

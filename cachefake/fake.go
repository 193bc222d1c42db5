package cachefake

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/goforj/kvcore/cache"
)

// Op identifies a store operation for assertions.
type Op string

const (
	OpGet    Op = "get"
	OpSet    Op = "set"
	OpDelete Op = "delete"
	OpFlush  Op = "flush"
)

// Fake exposes an in-memory cache plus assertion helpers for tests.
// Store calls are counted per key, and loader calls made through Loader are
// counted separately so single-flight behavior can be asserted.
type Fake struct {
	cache  *cache.Cache
	counts map[Op]map[string]int
	loads  map[string]int
	mu     sync.Mutex
}

// New creates a Fake using an in-memory store.
func New(opts ...cache.StoreOption) *Fake {
	store := &countingStore{inner: cache.NewMemoryStore(context.Background(), opts...)}
	f := &Fake{
		cache:  cache.NewCache(store),
		counts: make(map[Op]map[string]int),
		loads:  make(map[string]int),
	}
	store.onCount = f.record
	return f
}

// Cache returns the cache facade to inject into code under test.
func (f *Fake) Cache() *cache.Cache { return f.cache }

// Loader wraps fn so each invocation is counted against key.
func (f *Fake) Loader(key string, fn cache.Loader) cache.Loader {
	return func(ctx context.Context) (any, error) {
		f.mu.Lock()
		f.loads[key]++
		f.mu.Unlock()
		return fn(ctx)
	}
}

// Reset clears recorded counts.
func (f *Fake) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counts = make(map[Op]map[string]int)
	f.loads = make(map[string]int)
}

// AssertCalled verifies key was touched by op the expected number of times.
func (f *Fake) AssertCalled(t *testing.T, op Op, key string, times int) {
	t.Helper()
	if got := f.Count(op, key); got != times {
		t.Fatalf("expected %s %q called %d times, got %d", op, key, times, got)
	}
}

// AssertNotCalled ensures key was never touched by op.
func (f *Fake) AssertNotCalled(t *testing.T, op Op, key string) {
	t.Helper()
	if got := f.Count(op, key); got != 0 {
		t.Fatalf("expected %s %q not called, got %d", op, key, got)
	}
}

// AssertLoaded verifies the loader for key ran the expected number of times.
func (f *Fake) AssertLoaded(t *testing.T, key string, times int) {
	t.Helper()
	f.mu.Lock()
	got := f.loads[key]
	f.mu.Unlock()
	if got != times {
		t.Fatalf("expected loader for %q called %d times, got %d", key, times, got)
	}
}

// Count returns calls for op+key.
func (f *Fake) Count(op Op, key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.counts[op] == nil {
		return 0
	}
	return f.counts[op][key]
}

// Total returns total calls for an op across keys.
func (f *Fake) Total(op Op) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	var sum int
	for _, v := range f.counts[op] {
		sum += v
	}
	return sum
}

func (f *Fake) record(op Op, key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.counts[op] == nil {
		f.counts[op] = make(map[string]int)
	}
	f.counts[op][key]++
}

// countingStore wraps a Store to record calls.
type countingStore struct {
	inner   cache.Store
	onCount func(Op, string)
}

func (s *countingStore) Driver() cache.Driver { return s.inner.Driver() }

func (s *countingStore) Get(ctx context.Context, key string) (any, bool, error) {
	s.bump(OpGet, key)
	return s.inner.Get(ctx, key)
}

func (s *countingStore) Set(ctx context.Context, key string, val any, ttl time.Duration) error {
	s.bump(OpSet, key)
	return s.inner.Set(ctx, key, val, ttl)
}

func (s *countingStore) Delete(ctx context.Context, key string) error {
	s.bump(OpDelete, key)
	return s.inner.Delete(ctx, key)
}

func (s *countingStore) Flush(ctx context.Context) error {
	s.bump(OpFlush, "")
	return s.inner.Flush(ctx)
}

func (s *countingStore) Len() int { return s.inner.Len() }

func (s *countingStore) bump(op Op, key string) {
	if s.onCount != nil {
		s.onCount(op, key)
	}
}

// Package cachetest provides reusable store contract tests for cachecore.Store implementations.
//
// Example pattern:
//
//	func TestLRUStoreContract(t *testing.T) {
//		store := cache.NewLRUStore(context.Background(), 16)
//		t.Cleanup(func() { _ = cache.NewCache(store).Close() })
//
//		cachetest.RunStoreContract(t, store, cachetest.Options{
//			CaseName: t.Name(),
//			TTL:      50 * time.Millisecond,
//			TTLWait:  200 * time.Millisecond,
//		})
//	}
package cachetest

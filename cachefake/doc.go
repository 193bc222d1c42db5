// Package cachefake provides a counting in-memory cache for tests of code
// that depends on *cache.Cache.
//
//	f := cachefake.New()
//	svc := orders.NewService(f.Cache())
//	_, _ = svc.ByID(ctx, 1)
//	f.AssertCalled(t, cachefake.OpSet, "order:1", 1)
package cachefake

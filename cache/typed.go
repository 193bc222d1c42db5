package cache

import (
	"context"
	"fmt"
	"reflect"
	"time"
)

// RememberValue is the typed form of RememberCtx.
// @group Typed
//
// Example: typed remember
//
//	type Order struct{ ID int64 }
//	ctx := context.Background()
//	c := cache.NewCache(cache.NewMemoryStore(ctx))
//	order, err := cache.RememberValue(ctx, c, "order:7", time.Minute, func(context.Context) (*Order, error) {
//		return &Order{ID: 7}, nil
//	})
//	fmt.Println(err == nil, order.ID) // true 7
func RememberValue[T any](ctx context.Context, c *Cache, key string, ttl time.Duration, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	var loader Loader
	if fn != nil {
		loader = func(ctx context.Context) (any, error) {
			return fn(ctx)
		}
	}
	raw, err := c.RememberCtx(ctx, key, ttl, loader)
	if err != nil {
		return zero, err
	}
	return castValue[T](key, raw)
}

// GetValue is RememberValue with the cache default TTL.
// @group Typed
func GetValue[T any](ctx context.Context, c *Cache, key string, fn func(context.Context) (T, error)) (T, error) {
	return RememberValue(ctx, c, key, 0, fn)
}

// PeekValue returns the cached value for key as T without loading.
// @group Typed
func PeekValue[T any](ctx context.Context, c *Cache, key string) (T, bool, error) {
	var zero T
	raw, ok, err := c.PeekCtx(ctx, key)
	if err != nil || !ok {
		return zero, ok, err
	}
	out, err := castValue[T](key, raw)
	if err != nil {
		return zero, false, err
	}
	return out, true, nil
}

func castValue[T any](key string, raw any) (T, error) {
	var zero T
	if raw == nil {
		return zero, nil
	}
	out, ok := raw.(T)
	if !ok {
		return zero, &TypeMismatchError{Key: key, Got: fmt.Sprintf("%T", raw), Want: reflect.TypeOf((*T)(nil)).Elem().String()}
	}
	return out, nil
}

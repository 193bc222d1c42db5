package cache

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRememberValueTyped(t *testing.T) {
	ctx := context.Background()
	c := NewCache(NewMemoryStore(ctx))

	calls := 0
	load := func(context.Context) (*order, error) {
		calls++
		return &order{ID: 7}, nil
	}
	first, err := RememberValue(ctx, c, "order:7", time.Minute, load)
	if err != nil {
		t.Fatalf("remember value failed: %v", err)
	}
	second, err := GetValue(ctx, c, "order:7", load)
	if err != nil {
		t.Fatalf("get value failed: %v", err)
	}
	if first != second || first.ID != 7 {
		t.Fatalf("expected the cached pointer back, got %p and %p", first, second)
	}
	if calls != 1 {
		t.Fatalf("expected one load, got %d", calls)
	}

	peeked, ok, err := PeekValue[*order](ctx, c, "order:7")
	if err != nil || !ok || peeked != first {
		t.Fatalf("unexpected peek: ok=%v err=%v", ok, err)
	}
}

func TestTypedHelpersReportMismatch(t *testing.T) {
	ctx := context.Background()
	c := NewCache(NewMemoryStore(ctx))
	if err := c.Put("k", "a string", time.Minute); err != nil {
		t.Fatalf("put failed: %v", err)
	}

	_, err := GetValue(ctx, c, "k", func(context.Context) (int, error) { return 1, nil })
	var mismatch *TypeMismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("expected *TypeMismatchError, got %v", err)
	}
	if mismatch.Got != "string" || mismatch.Want != "int" {
		t.Fatalf("unexpected mismatch detail: %+v", mismatch)
	}

	if _, ok, err := PeekValue[int](ctx, c, "k"); ok || !errors.As(err, &mismatch) {
		t.Fatalf("expected peek mismatch, ok=%v err=%v", ok, err)
	}
}

func TestRememberValueNilLoader(t *testing.T) {
	ctx := context.Background()
	c := NewCache(NewMemoryStore(ctx))
	if _, err := RememberValue[int](ctx, c, "k", time.Minute, nil); !errors.Is(err, ErrNilLoader) {
		t.Fatalf("expected ErrNilLoader, got %v", err)
	}
}

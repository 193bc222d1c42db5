package cachetest

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/goforj/kvcore/cachecore"
)

// Options configures shared store contract checks.
type Options struct {
	// CaseName is used to namespace keys. Defaults to t.Name().
	CaseName string
	// NullSemantics enables relaxed expectations for the null store.
	NullSemantics bool
	// TTL controls the expiry duration used in TTL tests.
	TTL time.Duration
	// TTLWait is how long the harness waits for expiry to occur.
	TTLWait time.Duration
	// SkipFlush disables the flush assertion.
	SkipFlush bool
}

// Store is the minimal contract required by RunStoreContract.
type Store = cachecore.Store

type payload struct {
	ID   int64
	Name string
}

// RunStoreContract runs a backend-agnostic store contract suite.
// The store must have room for at least four entries.
func RunStoreContract(t *testing.T, store Store, opts Options) {
	t.Helper()

	caseName := opts.CaseName
	if caseName == "" {
		caseName = t.Name()
	}
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = 50 * time.Millisecond
	}
	wait := opts.TTLWait
	if wait <= 0 {
		wait = 120 * time.Millisecond
	}

	ctx := context.Background()
	key := func(s string) string {
		return sanitize(caseName) + ":" + s
	}

	// Set/Get round-trip keeps the value by reference.
	want := &payload{ID: 1, Name: "alpha"}
	if err := store.Set(ctx, key("alpha"), want, time.Second); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	got, ok, err := store.Get(ctx, key("alpha"))
	if err != nil {
		t.Fatalf("get failed: ok=%v err=%v", ok, err)
	}
	if opts.NullSemantics {
		if ok {
			t.Fatalf("expected miss for null semantics")
		}
	} else {
		if !ok {
			t.Fatalf("expected hit for %q", key("alpha"))
		}
		if got != any(want) {
			t.Fatalf("expected identical value back, got %#v", got)
		}
	}

	// Overwrite.
	if err := store.Set(ctx, key("alpha"), "replaced", time.Second); err != nil {
		t.Fatalf("overwrite failed: %v", err)
	}
	if got, ok, err := store.Get(ctx, key("alpha")); err != nil {
		t.Fatalf("get after overwrite failed: %v", err)
	} else if !opts.NullSemantics && (!ok || got != "replaced") {
		t.Fatalf("expected overwritten value, got ok=%v value=%#v", ok, got)
	}

	// TTL expiry.
	if err := store.Set(ctx, key("ttl"), "v", ttl); err != nil {
		t.Fatalf("set ttl failed: %v", err)
	}
	if err := waitForMiss(ctx, store, key("ttl"), wait); err != nil {
		t.Fatalf("expected ttl expiry: %v", err)
	}

	// NoExpiration outlives the ttl window.
	if err := store.Set(ctx, key("forever"), "v", cachecore.NoExpiration); err != nil {
		t.Fatalf("set forever failed: %v", err)
	}
	time.Sleep(ttl)
	if _, ok, err := store.Get(ctx, key("forever")); err != nil {
		t.Fatalf("get forever failed: %v", err)
	} else if !opts.NullSemantics && !ok {
		t.Fatalf("expected entry without expiration to remain")
	}

	// Delete.
	if err := store.Set(ctx, key("a"), 1, time.Second); err != nil {
		t.Fatalf("set a failed: %v", err)
	}
	if err := store.Delete(ctx, key("a")); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, ok, err := store.Get(ctx, key("a")); err != nil || ok {
		t.Fatalf("expected key a deleted; ok=%v err=%v", ok, err)
	}
	if err := store.Delete(ctx, key("never-set")); err != nil {
		t.Fatalf("delete of missing key failed: %v", err)
	}

	// Flush.
	if !opts.SkipFlush {
		if err := store.Set(ctx, key("flush"), "x", time.Second); err != nil {
			t.Fatalf("set flush failed: %v", err)
		}
		if err := store.Flush(ctx); err != nil {
			t.Fatalf("flush failed: %v", err)
		}
		if _, ok, err := store.Get(ctx, key("flush")); err != nil || ok {
			t.Fatalf("expected flush to clear key; ok=%v err=%v", ok, err)
		}
		if n := store.Len(); n != 0 {
			t.Fatalf("expected empty store after flush, got len=%d", n)
		}
	}
}

func waitForMiss(ctx context.Context, store Store, key string, wait time.Duration) error {
	deadline := time.Now().Add(wait)
	for time.Now().Before(deadline) {
		_, ok, err := store.Get(ctx, key)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		time.Sleep(10 * time.Millisecond)
	}
	_, ok, err := store.Get(ctx, key)
	if err != nil {
		return err
	}
	if ok {
		return fmt.Errorf("key %q still present after %s", key, wait)
	}
	return nil
}

func sanitize(s string) string {
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, " ", "_")
	return s
}

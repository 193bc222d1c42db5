package cache

import (
	"errors"
	"fmt"

	"github.com/goforj/kvcore/cachecore"
)

var (
	// ErrNilLoader is returned when a load is requested without a loader.
	ErrNilLoader = errors.New("cache: loader is required")

	// ErrCapacityExceeded is returned by Put when a full store refuses new keys.
	ErrCapacityExceeded = cachecore.ErrCapacityExceeded
)

// LoadError reports a failed loader call. Every caller waiting on the same
// key receives the same *LoadError; the failure is never cached.
type LoadError struct {
	Key string
	Err error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("cache: load %q: %v", e.Key, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// TypeMismatchError reports a cached value whose dynamic type differs from
// the type requested by a typed helper.
type TypeMismatchError struct {
	Key  string
	Got  string
	Want string
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("cache: key %q holds %s, want %s", e.Key, e.Got, e.Want)
}

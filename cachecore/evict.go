package cachecore

import "errors"

// ErrCapacityExceeded is returned when a store is full and its policy forbids eviction.
var ErrCapacityExceeded = errors.New("cache capacity exceeded")

// EvictReason describes why an entry left a store.
type EvictReason string

const (
	EvictCapacity EvictReason = "capacity"
	EvictExpired  EvictReason = "expired"
	EvictDeleted  EvictReason = "deleted"
)

// EvictFunc is notified after an entry leaves a store.
// It is never called while a store lock is held.
type EvictFunc func(key string, value any, reason EvictReason)

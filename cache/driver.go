package cache

import "github.com/goforj/kvcore/cachecore"

// Driver identifies cache backend.
type Driver = cachecore.Driver

// Store is the backend contract used by Cache.
type Store = cachecore.Store

const (
	DriverNull   = cachecore.DriverNull
	DriverMemory = cachecore.DriverMemory
	DriverLRU    = cachecore.DriverLRU
)

// NoExpiration stores an entry without a deadline.
const NoExpiration = cachecore.NoExpiration

// EvictReason describes why an entry left a store.
type EvictReason = cachecore.EvictReason

// EvictFunc is notified after an entry leaves a store.
type EvictFunc = cachecore.EvictFunc

const (
	EvictCapacity = cachecore.EvictCapacity
	EvictExpired  = cachecore.EvictExpired
	EvictDeleted  = cachecore.EvictDeleted
)

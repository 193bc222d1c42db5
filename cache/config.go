package cache

import (
	"time"

	"github.com/goforj/kvcore/cachecore"
)

const (
	defaultCacheTTL        = 5 * time.Minute
	defaultCleanupInterval = time.Minute
)

// EvictionPolicy decides what happens when a bounded store is full.
type EvictionPolicy string

const (
	// EvictLRU drops the least-recently-accessed entry to make room.
	EvictLRU EvictionPolicy = "lru"
	// EvictReject refuses new keys with ErrCapacityExceeded.
	EvictReject EvictionPolicy = "reject"
)

// StoreConfig controls how a Store is constructed.
type StoreConfig struct {
	cachecore.BaseConfig

	// Driver selects the backend. Empty picks lru when MaxEntries > 0, memory otherwise.
	Driver Driver

	// EvictionPolicy applies once MaxEntries is reached.
	EvictionPolicy EvictionPolicy

	// CleanupInterval controls the background sweep of expired entries.
	CleanupInterval time.Duration

	// OnEvict observes entries leaving the store.
	OnEvict EvictFunc
}

func (c StoreConfig) withDefaults() StoreConfig {
	if c.Driver == "" {
		if c.MaxEntries > 0 {
			c.Driver = DriverLRU
		} else {
			c.Driver = DriverMemory
		}
	}
	if c.DefaultTTL == 0 {
		c.DefaultTTL = defaultCacheTTL
	}
	if c.CleanupInterval <= 0 {
		c.CleanupInterval = defaultCleanupInterval
	}
	if c.EvictionPolicy == "" {
		c.EvictionPolicy = EvictLRU
	}
	return c
}

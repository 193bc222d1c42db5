package cache

import "time"

// StoreOption mutates StoreConfig when constructing a store.
type StoreOption func(StoreConfig) StoreConfig

// WithDefaultTTL overrides the fallback TTL used when ttl == 0.
// Pass NoExpiration to keep entries until they are evicted or invalidated.
func WithDefaultTTL(ttl time.Duration) StoreOption {
	return func(cfg StoreConfig) StoreConfig {
		cfg.DefaultTTL = ttl
		return cfg
	}
}

// WithMaxEntries bounds the number of live entries.
func WithMaxEntries(n int) StoreOption {
	return func(cfg StoreConfig) StoreConfig {
		cfg.MaxEntries = n
		return cfg
	}
}

// WithEvictionPolicy selects what a full store does with new keys.
func WithEvictionPolicy(policy EvictionPolicy) StoreOption {
	return func(cfg StoreConfig) StoreConfig {
		cfg.EvictionPolicy = policy
		return cfg
	}
}

// WithCleanupInterval overrides the expired-entry sweep interval.
func WithCleanupInterval(interval time.Duration) StoreOption {
	return func(cfg StoreConfig) StoreConfig {
		cfg.CleanupInterval = interval
		return cfg
	}
}

// WithEvictionHandler registers fn for entries leaving the store.
func WithEvictionHandler(fn EvictFunc) StoreOption {
	return func(cfg StoreConfig) StoreConfig {
		cfg.OnEvict = fn
		return cfg
	}
}

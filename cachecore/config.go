package cachecore

import "time"

// BaseConfig contains shared, driver-agnostic store configuration.
type BaseConfig struct {
	DefaultTTL time.Duration
	// MaxEntries bounds the number of live entries. Zero means unbounded.
	MaxEntries int
}

package cachecore

// Driver identifies cache backend.
type Driver string

const (
	DriverNull   Driver = "null"
	DriverMemory Driver = "memory"
	DriverLRU    Driver = "lru"
)

// Package config loads the kvdemo YAML configuration with environment overrides.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/goforj/kvcore/cache"
	"gopkg.in/yaml.v3"
)

// Config holds all kvdemo configuration.
type Config struct {
	Cache   Cache   `yaml:"cache"`
	Bus     Bus     `yaml:"bus"`
	Bridge  Bridge  `yaml:"bridge"`
	Demo    Demo    `yaml:"demo"`
	Log     Log     `yaml:"log"`
	Metrics Metrics `yaml:"metrics"`
}

// Cache holds store settings.
type Cache struct {
	Driver          string        `yaml:"driver"` // "memory" | "lru" | "null"; empty picks lru when max_entries is set
	DefaultTTL      time.Duration `yaml:"default_ttl"`
	MaxEntries      int           `yaml:"max_entries"`
	EvictionPolicy  string        `yaml:"eviction_policy"` // "lru" | "reject"
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
}

// Bus holds topic bus settings.
type Bus struct {
	MaxPending int `yaml:"max_pending"`
}

// Bridge holds external broker settings. Empty addresses disable bridging.
type Bridge struct {
	RedisAddr       string `yaml:"redis_addr"`
	NATSURL         string `yaml:"nats_url"`
	PostgresURL     string `yaml:"postgres_url"`
	PostgresChannel string `yaml:"postgres_channel"`
	NodeID          string `yaml:"node_id"`
}

// Demo holds settings for the demo runners.
type Demo struct {
	OrderDelay  time.Duration `yaml:"order_delay"`
	Concurrency int           `yaml:"concurrency"`
	Topic       string        `yaml:"topic"`
}

// Log holds logger settings.
type Log struct {
	Format string `yaml:"format"` // "console" | "json"
	Level  string `yaml:"level"`
}

// Metrics holds the Prometheus endpoint settings.
type Metrics struct {
	Addr      string `yaml:"addr"`
	Namespace string `yaml:"namespace"`
}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		Cache: Cache{
			DefaultTTL:      5 * time.Minute,
			EvictionPolicy:  string(cache.EvictLRU),
			CleanupInterval: time.Minute,
		},
		Demo: Demo{
			OrderDelay:  2 * time.Second,
			Concurrency: 5,
			Topic:       "chat",
		},
		Log: Log{
			Format: "console",
			Level:  "info",
		},
		Metrics: Metrics{
			Namespace: "kvdemo",
		},
	}
}

// Load reads the YAML config file at path.
// If the file does not exist, defaults are returned without error.
// Invalid YAML or unknown fields are errors.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return &cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &cfg, nil
		}
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	if len(data) == 0 {
		return &cfg, nil
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		// Comment-only files decode to EOF.
		if errors.Is(err, io.EOF) {
			return &cfg, nil
		}
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return &cfg, nil
}

// Validate checks that config values are usable.
func (c *Config) Validate() error {
	switch cache.Driver(c.Cache.Driver) {
	case "", cache.DriverMemory, cache.DriverLRU, cache.DriverNull:
	default:
		return fmt.Errorf("config: cache.driver must be memory, lru or null, got %q", c.Cache.Driver)
	}
	switch cache.EvictionPolicy(c.Cache.EvictionPolicy) {
	case "", cache.EvictLRU, cache.EvictReject:
	default:
		return fmt.Errorf("config: cache.eviction_policy must be lru or reject, got %q", c.Cache.EvictionPolicy)
	}
	if c.Cache.MaxEntries < 0 {
		return fmt.Errorf("config: cache.max_entries must be non-negative, got %d", c.Cache.MaxEntries)
	}
	if cache.Driver(c.Cache.Driver) == cache.DriverLRU && c.Cache.MaxEntries == 0 {
		return errors.New("config: cache.max_entries is required for the lru driver")
	}
	if cache.Driver(c.Cache.Driver) == cache.DriverMemory && c.Cache.MaxEntries > 0 &&
		cache.EvictionPolicy(c.Cache.EvictionPolicy) != cache.EvictReject {
		return errors.New("config: a bounded memory driver requires eviction_policy: reject")
	}
	if c.Cache.DefaultTTL < 0 && c.Cache.DefaultTTL != cache.NoExpiration {
		return fmt.Errorf("config: cache.default_ttl must be positive or -1ns, got %v", c.Cache.DefaultTTL)
	}
	if c.Bus.MaxPending < 0 {
		return fmt.Errorf("config: bus.max_pending must be non-negative, got %d", c.Bus.MaxPending)
	}
	if c.Bridge.brokers() > 1 {
		return errors.New("config: bridge.redis_addr, bridge.nats_url and bridge.postgres_url are mutually exclusive")
	}
	if c.Demo.OrderDelay < 0 {
		return fmt.Errorf("config: demo.order_delay must be non-negative, got %v", c.Demo.OrderDelay)
	}
	if c.Demo.Concurrency < 1 {
		return fmt.Errorf("config: demo.concurrency must be at least 1, got %d", c.Demo.Concurrency)
	}
	switch c.Log.Format {
	case "", "console", "json":
	default:
		return fmt.Errorf("config: log.format must be \"console\" or \"json\", got %q", c.Log.Format)
	}
	return nil
}

// ApplyEnv applies environment variable overrides to the config.
// Supported variables: KVDEMO_REDIS_ADDR, KVDEMO_NATS_URL, KVDEMO_POSTGRES_URL,
// KVDEMO_LOG_FORMAT, KVDEMO_ORDER_DELAY, KVDEMO_MAX_ENTRIES.
func (c *Config) ApplyEnv() error {
	if v := os.Getenv("KVDEMO_REDIS_ADDR"); v != "" {
		c.Bridge.RedisAddr = v
	}
	if v := os.Getenv("KVDEMO_NATS_URL"); v != "" {
		c.Bridge.NATSURL = v
	}
	if v := os.Getenv("KVDEMO_POSTGRES_URL"); v != "" {
		c.Bridge.PostgresURL = v
	}
	if v := os.Getenv("KVDEMO_LOG_FORMAT"); v != "" {
		c.Log.Format = v
	}
	if v := os.Getenv("KVDEMO_ORDER_DELAY"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("config: invalid KVDEMO_ORDER_DELAY %q: %w", v, err)
		}
		c.Demo.OrderDelay = d
	}
	if v := os.Getenv("KVDEMO_MAX_ENTRIES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: invalid KVDEMO_MAX_ENTRIES %q: %w", v, err)
		}
		c.Cache.MaxEntries = n
	}
	return nil
}

func (b Bridge) brokers() int {
	n := 0
	for _, v := range []string{b.RedisAddr, b.NATSURL, b.PostgresURL} {
		if v != "" {
			n++
		}
	}
	return n
}

// StoreConfig converts the cache section into a cache.StoreConfig.
func (c Cache) StoreConfig(onEvict cache.EvictFunc) cache.StoreConfig {
	cfg := cache.StoreConfig{
		Driver:          cache.Driver(c.Driver),
		EvictionPolicy:  cache.EvictionPolicy(c.EvictionPolicy),
		CleanupInterval: c.CleanupInterval,
		OnEvict:         onEvict,
	}
	cfg.DefaultTTL = c.DefaultTTL
	cfg.MaxEntries = c.MaxEntries
	return cfg
}

package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/goforj/kvcore/cache"
	"github.com/goforj/kvcore/metrics"
)

// CachingCmd replays sequential and concurrent order lookups.
type CachingCmd struct {
	Concurrency int           `help:"Simultaneous lookups of one uncached order. Overrides demo.concurrency." default:"0"`
	Delay       time.Duration `help:"Simulated load time. Overrides demo.order_delay." default:"0s"`
}

// Run executes the caching command.
func (c *CachingCmd) Run(cli *CLI) error {
	a, err := cli.setup()
	if err != nil {
		return fmt.Errorf("caching: %w", err)
	}
	ctx, cancel := signalContext()
	defer cancel()

	if c.Concurrency > 0 {
		a.cfg.Demo.Concurrency = c.Concurrency
	}
	if c.Delay > 0 {
		a.cfg.Demo.OrderDelay = c.Delay
	}
	runErr := runCaching(ctx, a)
	if err := a.close(); err != nil && runErr == nil {
		runErr = err
	}
	if runErr != nil {
		return fmt.Errorf("caching: %w", runErr)
	}
	return nil
}

func runCaching(ctx context.Context, a *app) error {
	obs, err := metrics.NewCacheObserver(a.registry, a.cfg.Metrics.Namespace)
	if err != nil {
		return err
	}
	store := cache.NewStore(ctx, a.cfg.Cache.StoreConfig(obs.EvictFunc()))
	c := cache.NewCacheWithTTL(store, a.cfg.Cache.DefaultTTL).WithObserver(obs)
	a.onClose(func(context.Context) error { return c.Close() })

	orders := newOrderService(c, a.cfg.Demo.OrderDelay, a.logger)
	log := a.logger.Named("caching")
	log.Info("CACHING:", zap.String("driver", string(c.Driver())))

	for _, label := range []string{"first", "two", "three"} {
		start := time.Now()
		if _, err := orders.ByID(ctx, 1); err != nil {
			return err
		}
		log.Info(label, zap.Duration("elapsed", time.Since(start)))
	}

	n := a.cfg.Demo.Concurrency
	before := orders.Loads()
	start := time.Now()
	results := make([]*Order, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = orders.ByID(ctx, 2)
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	shared := true
	for _, o := range results {
		shared = shared && o == results[0]
	}
	log.Info("concurrent lookups",
		zap.Int("callers", n),
		zap.Int64("loads", orders.Loads()-before),
		zap.Bool("same_value", shared),
		zap.Duration("elapsed", time.Since(start)),
	)

	stats := c.Stats()
	log.Info("cache stats",
		zap.Uint64("hits", stats.Hits),
		zap.Uint64("misses", stats.Misses),
		zap.Uint64("loads", stats.Loads),
		zap.Uint64("shared_waits", stats.SharedWaits),
		zap.Int("entries", stats.Entries),
	)
	return nil
}

package main

import (
	"context"
	"strconv"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/goforj/kvcore/cache"
)

// Order is the value the caching demo looks up.
type Order struct {
	ID        int64
	When      time.Time
	LineItems []LineItem
}

// LineItem belongs to an Order.
type LineItem struct {
	OrderID     int64
	ID          int64
	Description string
}

// orderService simulates a slow backing lookup fronted by the cache.
type orderService struct {
	cache  *cache.Cache
	delay  time.Duration
	logger *zap.Logger
	loads  atomic.Int64
}

func newOrderService(c *cache.Cache, delay time.Duration, logger *zap.Logger) *orderService {
	return &orderService{cache: c, delay: delay, logger: logger}
}

// ByID returns the order for id, computing it at most once per TTL.
func (s *orderService) ByID(ctx context.Context, id int64) (*Order, error) {
	return cache.GetValue(ctx, s.cache, orderKey(id), func(ctx context.Context) (*Order, error) {
		s.loads.Add(1)
		s.logger.Debug("loading order", zap.Int64("id", id), zap.Duration("delay", s.delay))
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		return &Order{ID: id, When: time.Now()}, nil
	})
}

// Loads reports how many times the slow path ran.
func (s *orderService) Loads() int64 { return s.loads.Load() }

func orderKey(id int64) string {
	return "order-by-id:" + strconv.FormatInt(id, 10)
}

// Package metrics exports cache and bus activity as Prometheus collectors.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/goforj/kvcore/cache"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// CacheObserver implements cache.Observer.
type CacheObserver struct {
	ops       *prometheus.CounterVec
	durations *prometheus.HistogramVec
	evictions *prometheus.CounterVec
}

// NewCacheObserver registers the cache collectors with reg.
//
// Example: wire cache metrics
//
//	reg := prometheus.NewRegistry()
//	obs, _ := metrics.NewCacheObserver(reg, "kvdemo")
//	store := cache.NewLRUStore(ctx, 1000, cache.WithEvictionHandler(obs.EvictFunc()))
//	c := cache.NewCache(store).WithObserver(obs)
func NewCacheObserver(reg prometheus.Registerer, namespace string) (*CacheObserver, error) {
	o := &CacheObserver{
		ops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "operations_total",
			Help:      "Cache operations by op, driver and result.",
		}, []string{"op", "driver", "result"}),
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "operation_duration_seconds",
			Help:      "Cache operation latency, loader time included.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op", "driver"}),
		evictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "evictions_total",
			Help:      "Entries removed from the store by reason.",
		}, []string{"reason"}),
	}
	if err := register(reg, o.ops, o.durations, o.evictions); err != nil {
		return nil, err
	}
	return o, nil
}

// OnCacheOp implements cache.Observer.
func (o *CacheObserver) OnCacheOp(_ context.Context, op string, _ string, hit bool, err error, dur time.Duration, driver cache.Driver) {
	result := "miss"
	switch {
	case err != nil:
		result = "error"
	case hit:
		result = "hit"
	}
	o.ops.WithLabelValues(op, string(driver), result).Inc()
	o.durations.WithLabelValues(op, string(driver)).Observe(dur.Seconds())
}

// EvictFunc returns a store eviction handler that counts evictions.
func (o *CacheObserver) EvictFunc() cache.EvictFunc {
	return func(_ string, _ any, reason cache.EvictReason) {
		o.evictions.WithLabelValues(string(reason)).Inc()
	}
}

// BusObserver implements bus.Observer.
type BusObserver struct {
	ops       *prometheus.CounterVec
	receivers prometheus.Histogram
}

// NewBusObserver registers the bus collectors with reg.
func NewBusObserver(reg prometheus.Registerer, namespace string) (*BusObserver, error) {
	o := &BusObserver{
		ops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bus",
			Name:      "operations_total",
			Help:      "Bus operations by op and result.",
		}, []string{"op", "result"}),
		receivers: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "bus",
			Name:      "receivers",
			Help:      "Subscriptions a publish was queued for.",
			Buckets:   []float64{0, 1, 2, 4, 8, 16, 32, 64},
		}),
	}
	if err := register(reg, o.ops, o.receivers); err != nil {
		return nil, err
	}
	return o, nil
}

// OnBusOp implements bus.Observer.
func (o *BusObserver) OnBusOp(_ context.Context, op string, _ string, receivers int, err error, _ time.Duration) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	o.ops.WithLabelValues(op, result).Inc()
	if op == "publish" && err == nil {
		o.receivers.Observe(float64(receivers))
	}
}

// Handler serves the collectors registered with reg.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

func register(reg prometheus.Registerer, cs ...prometheus.Collector) error {
	if reg == nil {
		return nil
	}
	for _, c := range cs {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

// RedisClient captures the subset of redis.Client used by the transport.
type RedisClient interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
	PSubscribe(ctx context.Context, channels ...string) *redis.PubSub
}

type redisTransport struct {
	client RedisClient
}

// NewRedisTransport relays through Redis pub/sub. Patterns are passed to
// PSUBSCRIBE, whose glob syntax matches the bus pattern syntax.
//
// Example: redis transport
//
//	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:6379"})
//	br := bridge.New(b, bridge.NewRedisTransport(rdb))
//	_ = br.Export("chat")
func NewRedisTransport(client RedisClient) Transport {
	return &redisTransport{client: client}
}

func (t *redisTransport) Publish(ctx context.Context, topic string, data []byte) error {
	if t.client == nil {
		return errors.New("bridge: redis client unavailable")
	}
	if err := t.client.Publish(ctx, topic, data).Err(); err != nil {
		return fmt.Errorf("redis publish %q: %w", topic, err)
	}
	return nil
}

func (t *redisTransport) Subscribe(ctx context.Context, pattern string, fn func(topic string, data []byte)) (Unsubscriber, error) {
	if t.client == nil {
		return nil, errors.New("bridge: redis client unavailable")
	}
	ps := t.client.PSubscribe(ctx, pattern)
	// Wait for the subscription confirmation so no publish is missed after return.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("redis psubscribe %q: %w", pattern, err)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	ch := ps.Channel()
	go func() {
		defer wg.Done()
		for msg := range ch {
			fn(msg.Channel, []byte(msg.Payload))
		}
	}()

	return UnsubscribeFunc(func() error {
		err := ps.Close()
		wg.Wait()
		return err
	}), nil
}

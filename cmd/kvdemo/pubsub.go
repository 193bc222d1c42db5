package main

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/goforj/kvcore/bridge"
	"github.com/goforj/kvcore/bus"
	"github.com/goforj/kvcore/internal/config"
	"github.com/goforj/kvcore/metrics"
)

// PubsubCmd publishes one chat message and logs its delivery.
type PubsubCmd struct {
	RedisAddr   string        `help:"Bridge the topic through Redis at this address." name:"redis-addr"`
	NATSURL     string        `help:"Bridge the topic through NATS at this URL." name:"nats-url"`
	PostgresURL string        `help:"Bridge the topic through Postgres LISTEN/NOTIFY at this URL." name:"postgres-url"`
	Message     string        `help:"Message prefix; the current time is appended." default:"Hello, world !"`
	Linger      time.Duration `help:"How long to keep listening for bridged messages." default:"1s"`
}

// Run executes the pubsub command.
func (p *PubsubCmd) Run(cli *CLI) error {
	a, err := cli.setup()
	if err != nil {
		return fmt.Errorf("pubsub: %w", err)
	}
	ctx, cancel := signalContext()
	defer cancel()

	if p.RedisAddr != "" {
		a.cfg.Bridge.RedisAddr = p.RedisAddr
	}
	if p.NATSURL != "" {
		a.cfg.Bridge.NATSURL = p.NATSURL
	}
	if p.PostgresURL != "" {
		a.cfg.Bridge.PostgresURL = p.PostgresURL
	}
	runErr := p.run(ctx, a)
	if err := a.close(); err != nil && runErr == nil {
		runErr = err
	}
	if runErr != nil {
		return fmt.Errorf("pubsub: %w", runErr)
	}
	return nil
}

func (p *PubsubCmd) run(ctx context.Context, a *app) error {
	if err := a.cfg.Validate(); err != nil {
		return err
	}
	log := a.logger.Named("pubsub")
	obs, err := metrics.NewBusObserver(a.registry, a.cfg.Metrics.Namespace)
	if err != nil {
		return err
	}
	b := bus.New(
		bus.WithLogger(a.logger.Named("bus")),
		bus.WithObserver(obs),
		bus.WithMaxPending(a.cfg.Bus.MaxPending),
	)
	a.onClose(b.Close)

	topic := a.cfg.Demo.Topic
	sub, err := b.Subscribe(topic, func(_ context.Context, msg bus.Message) error {
		log.Info(fmt.Sprintf("message from '%s': %s", msg.Topic, msg.Payload),
			zap.String("source", msg.Source),
			zap.String("id", msg.ID),
		)
		return nil
	})
	if err != nil {
		return err
	}

	transport, err := newTransport(ctx, a, a.cfg.Bridge)
	if err != nil {
		return err
	}
	if transport != nil {
		br := bridge.New(b, transport,
			bridge.WithNodeID(a.cfg.Bridge.NodeID),
			bridge.WithLogger(a.logger.Named("bridge")),
		)
		a.onClose(func(context.Context) error { return br.Close() })
		if err := br.Export(topic); err != nil {
			return err
		}
		if err := br.Import(ctx, topic); err != nil {
			return err
		}
		log.Info("bridging topic", zap.String("topic", topic), zap.String("node", br.NodeID()))
	}

	log.Info("PUBLISH/SUBSCRIBE:")
	payload := p.Message + time.Now().Format(time.RFC3339Nano)
	n, err := b.Publish(ctx, topic, []byte(payload))
	if err != nil {
		return err
	}
	log.Debug("published", zap.String("topic", topic), zap.Int("receivers", n))

	if transport != nil {
		select {
		case <-time.After(p.Linger):
		case <-ctx.Done():
		}
	}
	sub.Unsubscribe()
	select {
	case <-sub.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// newTransport returns nil when no broker is configured.
func newTransport(ctx context.Context, a *app, cfg config.Bridge) (bridge.Transport, error) {
	switch {
	case cfg.RedisAddr != "":
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return nil, fmt.Errorf("redis %s: %w", cfg.RedisAddr, err)
		}
		a.onClose(func(context.Context) error { return rdb.Close() })
		return bridge.NewRedisTransport(rdb), nil
	case cfg.NATSURL != "":
		nc, err := nats.Connect(cfg.NATSURL, nats.Name("kvdemo"))
		if err != nil {
			return nil, fmt.Errorf("nats %s: %w", cfg.NATSURL, err)
		}
		a.onClose(func(context.Context) error { return nc.Drain() })
		return bridge.NewNATSTransport(nc), nil
	case cfg.PostgresURL != "":
		pool, err := pgxpool.New(ctx, cfg.PostgresURL)
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("postgres: %w", err)
		}
		a.onClose(func(context.Context) error {
			pool.Close()
			return nil
		})
		log := a.logger.Named("bridge")
		return bridge.NewPostgresTransport(bridge.PostgresConfig{
			Publisher: pool,
			Listen: func(ctx context.Context) (bridge.PostgresListener, error) {
				conn, err := pgx.Connect(ctx, cfg.PostgresURL)
				if err != nil {
					return nil, err
				}
				return conn, nil
			},
			Channel: cfg.PostgresChannel,
			OnError: func(err error) { log.Warn("postgres listener stopped", zap.Error(err)) },
		}), nil
	}
	return nil, nil
}

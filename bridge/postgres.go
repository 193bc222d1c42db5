package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/goforj/kvcore/bus"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const defaultPostgresChannel = "kvcore_bus"

// PostgresExecer captures the subset of pgx.Conn and pgxpool.Pool used to
// send notifications.
type PostgresExecer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresListener captures the subset of pgx.Conn used to receive
// notifications. Each subscription holds one listener connection.
type PostgresListener interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	WaitForNotification(ctx context.Context) (*pgconn.Notification, error)
	Close(ctx context.Context) error
}

// PostgresConfig configures a LISTEN/NOTIFY transport.
type PostgresConfig struct {
	// Publisher sends pg_notify calls. A pgxpool.Pool is a good fit.
	Publisher PostgresExecer
	// Listen opens a dedicated connection for one subscription.
	Listen func(ctx context.Context) (PostgresListener, error)
	// Channel is the notification channel shared by every topic.
	Channel string
	// OnError is called when a listener stops on a connection error.
	OnError func(error)
}

type postgresTransport struct {
	cfg PostgresConfig
}

// postgresFrame is the notification payload. NOTIFY channels are plain
// identifiers with no wildcard support, so every topic travels on one channel
// and subscribers filter by pattern.
type postgresFrame struct {
	Topic string `json:"t"`
	Data  []byte `json:"d"`
}

// NewPostgresTransport relays through Postgres LISTEN/NOTIFY. Postgres caps
// a notification payload at 8000 bytes, so it suits small messages only.
func NewPostgresTransport(cfg PostgresConfig) Transport {
	if cfg.Channel == "" {
		cfg.Channel = defaultPostgresChannel
	}
	return &postgresTransport{cfg: cfg}
}

func (t *postgresTransport) Publish(ctx context.Context, topic string, data []byte) error {
	if t.cfg.Publisher == nil {
		return errors.New("bridge: postgres publisher unavailable")
	}
	frame, err := json.Marshal(postgresFrame{Topic: topic, Data: data})
	if err != nil {
		return fmt.Errorf("postgres encode %q: %w", topic, err)
	}
	if _, err := t.cfg.Publisher.Exec(ctx, "SELECT pg_notify($1, $2)", t.cfg.Channel, string(frame)); err != nil {
		return fmt.Errorf("postgres notify %q: %w", topic, err)
	}
	return nil
}

func (t *postgresTransport) Subscribe(ctx context.Context, pattern string, fn func(topic string, data []byte)) (Unsubscriber, error) {
	if t.cfg.Listen == nil {
		return nil, errors.New("bridge: postgres listener unavailable")
	}
	conn, err := t.cfg.Listen(ctx)
	if err != nil {
		return nil, fmt.Errorf("postgres connect: %w", err)
	}
	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{t.cfg.Channel}.Sanitize()); err != nil {
		_ = conn.Close(context.WithoutCancel(ctx))
		return nil, fmt.Errorf("postgres listen %q: %w", t.cfg.Channel, err)
	}

	lctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		t.listen(lctx, conn, pattern, fn)
	}()

	var once sync.Once
	return UnsubscribeFunc(func() error {
		var err error
		once.Do(func() {
			cancel()
			wg.Wait()
			err = conn.Close(context.Background())
		})
		return err
	}), nil
}

func (t *postgresTransport) listen(ctx context.Context, conn PostgresListener, pattern string, fn func(topic string, data []byte)) {
	for {
		n, err := conn.WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() == nil && t.cfg.OnError != nil {
				t.cfg.OnError(fmt.Errorf("postgres listen %q: %w", t.cfg.Channel, err))
			}
			return
		}
		if n.Channel != t.cfg.Channel {
			continue
		}
		var frame postgresFrame
		if err := json.Unmarshal([]byte(n.Payload), &frame); err != nil || frame.Topic == "" {
			continue
		}
		if bus.Match(pattern, frame.Topic) {
			fn(frame.Topic, frame.Data)
		}
	}
}

package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/goforj/kvcore/bus"
	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// ErrClosed is returned by Export and Import after Close.
var ErrClosed = errors.New("bridge: closed")

// Option configures a Bridge.
type Option func(*Bridge)

// WithNodeID sets the id stamped on exported envelopes. It must be unique
// per process sharing a broker. A random uuid is used by default.
func WithNodeID(id string) Option {
	return func(br *Bridge) {
		if id != "" {
			br.nodeID = id
		}
	}
}

// WithLogger sets the logger used for relay failures.
func WithLogger(logger *zap.Logger) Option {
	return func(br *Bridge) {
		if logger != nil {
			br.logger = logger
		}
	}
}

// Bridge connects a local bus to a Transport.
type Bridge struct {
	bus       *bus.Bus
	transport Transport
	nodeID    string
	logger    *zap.Logger

	mu     sync.Mutex
	local  []*bus.Subscription
	remote []Unsubscriber
	closed bool
}

// New creates a bridge. Nothing is relayed until Export or Import is called.
// @group Bridge
//
// Example: relay chat through redis
//
//	b := bus.New()
//	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:6379"})
//	br := bridge.New(b, bridge.NewRedisTransport(rdb), bridge.WithNodeID("node-a"))
//	defer br.Close()
//	_ = br.Export("chat")
//	_ = br.Import(ctx, "chat")
func New(b *bus.Bus, transport Transport, opts ...Option) *Bridge {
	br := &Bridge{
		bus:       b,
		transport: transport,
		nodeID:    uuid.NewString(),
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(br)
	}
	br.logger = br.logger.With(zap.String("node", br.nodeID))
	return br
}

// NodeID returns the id this bridge stamps on outgoing envelopes and sets as
// Source on imported messages.
func (br *Bridge) NodeID() string { return br.nodeID }

// Export forwards local messages matching each pattern to the transport.
// Messages this bridge imported are not sent back out.
// @group Bridge
func (br *Bridge) Export(patterns ...string) error {
	br.mu.Lock()
	defer br.mu.Unlock()
	if br.closed {
		return ErrClosed
	}
	for _, pattern := range patterns {
		sub, err := br.bus.Subscribe(pattern, br.forward)
		if err != nil {
			return fmt.Errorf("bridge: export %q: %w", pattern, err)
		}
		br.local = append(br.local, sub)
	}
	return nil
}

// Import republishes transport messages matching each pattern on the local
// bus. Envelopes stamped with this bridge's node id are dropped.
// @group Bridge
func (br *Bridge) Import(ctx context.Context, patterns ...string) error {
	br.mu.Lock()
	defer br.mu.Unlock()
	if br.closed {
		return ErrClosed
	}
	for _, pattern := range patterns {
		u, err := br.transport.Subscribe(ctx, pattern, br.receive)
		if err != nil {
			return fmt.Errorf("bridge: import %q: %w", pattern, err)
		}
		br.remote = append(br.remote, u)
	}
	return nil
}

// Close stops every export and import. It is safe to call more than once.
func (br *Bridge) Close() error {
	br.mu.Lock()
	if br.closed {
		br.mu.Unlock()
		return nil
	}
	br.closed = true
	local, remote := br.local, br.remote
	br.local, br.remote = nil, nil
	br.mu.Unlock()

	for _, sub := range local {
		sub.Unsubscribe()
	}
	var err error
	for _, u := range remote {
		err = multierr.Append(err, u.Unsubscribe())
	}
	return err
}

func (br *Bridge) forward(ctx context.Context, msg bus.Message) error {
	if msg.Source == br.nodeID {
		return nil
	}
	data, err := encodeEnvelope(br.nodeID, msg.Payload)
	if err != nil {
		return err
	}
	if err := br.transport.Publish(ctx, msg.Topic, data); err != nil {
		return fmt.Errorf("bridge: export %q: %w", msg.Topic, err)
	}
	return nil
}

func (br *Bridge) receive(topic string, data []byte) {
	payload := data
	if env, ok := decodeEnvelope(data); ok {
		if env.Node == br.nodeID {
			return
		}
		payload = env.Payload
	}
	_, err := br.bus.PublishMessage(context.Background(), bus.Message{
		Topic:   topic,
		Payload: payload,
		Source:  br.nodeID,
	})
	if err != nil {
		br.logger.Warn("import publish failed", zap.String("topic", topic), zap.Error(err))
	}
}

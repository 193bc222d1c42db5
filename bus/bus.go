package bus

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Bus routes published messages to every subscription whose pattern
// matches the topic.
type Bus struct {
	mu         sync.RWMutex
	subs       map[string]*Subscription
	closed     bool
	wg         sync.WaitGroup
	logger     *zap.Logger
	observer   Observer
	maxPending int
}

// New creates a ready bus.
// @group Bus
//
// Example: subscribe and publish
//
//	b := bus.New()
//	defer b.Close(context.Background())
//	sub, _ := b.Subscribe("chat", func(ctx context.Context, msg bus.Message) error {
//		fmt.Println(string(msg.Payload))
//		return nil
//	})
//	_, _ = b.Publish(context.Background(), "chat", []byte("hi"))
//	sub.Unsubscribe()
//	<-sub.Done() // hi
func New(opts ...Option) *Bus {
	b := &Bus{
		subs:   make(map[string]*Subscription),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers handler for topics matching pattern.
// @group Bus
func (b *Bus) Subscribe(pattern string, handler Handler) (*Subscription, error) {
	start := time.Now()
	if err := validatePattern(pattern); err != nil {
		b.observe(context.Background(), "subscribe", pattern, 0, err, start)
		return nil, err
	}
	if handler == nil {
		b.observe(context.Background(), "subscribe", pattern, 0, ErrNilHandler, start)
		return nil, ErrNilHandler
	}

	sub := &Subscription{
		id:      uuid.NewString(),
		pattern: pattern,
		handler: handler,
		bus:     b,
		box:     newMailbox(),
		done:    make(chan struct{}),
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		b.observe(context.Background(), "subscribe", pattern, 0, ErrClosed, start)
		return nil, ErrClosed
	}
	b.subs[sub.id] = sub
	total := len(b.subs)
	b.wg.Add(1)
	b.mu.Unlock()

	go b.run(sub)
	b.logger.Debug("subscribed", zap.String("subscription", sub.id), zap.String("pattern", pattern))
	b.observe(context.Background(), "subscribe", pattern, total, nil, start)
	return sub, nil
}

// Unsubscribe removes sub from the bus. Queued messages are still delivered
// before its goroutine exits.
// @group Bus
func (b *Bus) Unsubscribe(sub *Subscription) {
	if sub == nil || sub.bus != b {
		return
	}
	sub.once.Do(func() {
		start := time.Now()
		b.mu.Lock()
		delete(b.subs, sub.id)
		total := len(b.subs)
		b.mu.Unlock()
		sub.box.close()
		b.logger.Debug("unsubscribed", zap.String("subscription", sub.id), zap.String("pattern", sub.pattern))
		b.observe(context.Background(), "unsubscribe", sub.pattern, total, nil, start)
	})
}

// Publish sends payload to every subscription matching topic and returns
// how many subscriptions it was queued for. It does not wait for handlers.
// @group Bus
//
// Example: publish
//
//	b := bus.New()
//	n, err := b.Publish(context.Background(), "chat", []byte("Hello, world !"))
//	fmt.Println(n, err) // 0 <nil>
func (b *Bus) Publish(ctx context.Context, topic string, payload []byte) (int, error) {
	return b.PublishMessage(ctx, Message{Topic: topic, Payload: payload})
}

// PublishMessage is Publish for a prepared message. ID and PublishedAt are
// filled in when empty. Each subscription receives its own copy of Payload,
// so the caller may reuse the buffer once PublishMessage returns.
// @group Bus
func (b *Bus) PublishMessage(ctx context.Context, msg Message) (int, error) {
	start := time.Now()
	if msg.Topic == "" {
		b.observe(ctx, "publish", msg.Topic, 0, ErrEmptyTopic, start)
		return 0, ErrEmptyTopic
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.PublishedAt.IsZero() {
		msg.PublishedAt = time.Now()
	}
	dctx := context.WithoutCancel(ctx)

	var dropped []*Subscription
	receivers := 0
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		b.observe(ctx, "publish", msg.Topic, 0, ErrClosed, start)
		return 0, ErrClosed
	}
	for _, sub := range b.subs {
		if !matches(sub.pattern, msg.Topic) {
			continue
		}
		d := delivery{ctx: dctx, msg: msg}
		d.msg.Payload = bytes.Clone(msg.Payload)
		if sub.box.push(d, b.maxPending) {
			receivers++
		} else {
			dropped = append(dropped, sub)
		}
	}
	b.mu.RUnlock()

	for _, sub := range dropped {
		b.logger.Warn("mailbox full, message dropped",
			zap.String("subscription", sub.id),
			zap.String("pattern", sub.pattern),
			zap.String("topic", msg.Topic),
			zap.String("message", msg.ID),
		)
		b.observe(ctx, "drop", msg.Topic, 1, nil, start)
	}
	b.observe(ctx, "publish", msg.Topic, receivers, nil, start)
	return receivers, nil
}

// Subscriptions reports how many subscriptions are registered.
func (b *Bus) Subscriptions() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Pending reports how many messages are queued across live subscriptions.
func (b *Bus) Pending() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	n := 0
	for _, sub := range b.subs {
		n += sub.box.len()
	}
	return n
}

// Close stops accepting publishes and subscriptions, then waits for every
// queued message to be delivered. It returns ctx.Err() if ctx ends first.
// Close must not be called from inside a Handler.
// @group Bus
func (b *Bus) Close(ctx context.Context) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	subs := make([]*Subscription, 0, len(b.subs))
	for _, sub := range b.subs {
		subs = append(subs, sub)
	}
	clear(b.subs)
	b.mu.Unlock()

	for _, sub := range subs {
		sub.once.Do(sub.box.close)
	}

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *Bus) run(sub *Subscription) {
	defer b.wg.Done()
	defer close(sub.done)
	for {
		d, ok := sub.box.next()
		if !ok {
			return
		}
		b.deliver(sub, d)
	}
}

func (b *Bus) deliver(sub *Subscription, d delivery) {
	start := time.Now()
	msg := d.msg
	msg.Pattern = sub.pattern

	err := b.invoke(sub, d.ctx, msg)
	if err != nil {
		b.logger.Warn("listener failed",
			zap.String("subscription", sub.id),
			zap.String("pattern", sub.pattern),
			zap.String("topic", msg.Topic),
			zap.String("message", msg.ID),
			zap.Error(err),
		)
	}
	b.observe(d.ctx, "deliver", msg.Topic, 1, err, start)
}

func (b *Bus) invoke(sub *Subscription, ctx context.Context, msg Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &ListenerError{
				SubscriptionID: sub.id,
				Pattern:        sub.pattern,
				Topic:          msg.Topic,
				MessageID:      msg.ID,
				Panicked:       true,
				Err:            fmt.Errorf("%v", r),
			}
		}
	}()
	if herr := sub.handler(ctx, msg); herr != nil {
		return &ListenerError{
			SubscriptionID: sub.id,
			Pattern:        sub.pattern,
			Topic:          msg.Topic,
			MessageID:      msg.ID,
			Err:            herr,
		}
	}
	return nil
}

func (b *Bus) observe(ctx context.Context, op, topic string, receivers int, err error, start time.Time) {
	if b.observer == nil {
		return
	}
	b.observer.OnBusOp(ctx, op, topic, receivers, err, time.Since(start))
}

package bus

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type collector struct {
	mu       sync.Mutex
	payloads []string
	msgs     []Message
}

func (c *collector) handle(_ context.Context, msg Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.payloads = append(c.payloads, string(msg.Payload))
	c.msgs = append(c.msgs, msg)
	return nil
}

func (c *collector) got() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.payloads...)
}

func newTestBus(t *testing.T, opts ...Option) *Bus {
	t.Helper()
	b := New(opts...)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = b.Close(ctx)
	})
	return b
}

// drain waits until every queued message has been handled.
func drain(t *testing.T, subs ...*Subscription) {
	t.Helper()
	for _, sub := range subs {
		sub.Unsubscribe()
		select {
		case <-sub.Done():
		case <-time.After(time.Second):
			t.Fatalf("subscription %s did not drain", sub.ID())
		}
	}
}

func TestPublishDeliversToMatchingSubscriptionsOnly(t *testing.T) {
	b := newTestBus(t)
	var chat, other collector

	chatSub, err := b.Subscribe("chat", chat.handle)
	require.NoError(t, err)
	otherSub, err := b.Subscribe("other", other.handle)
	require.NoError(t, err)

	n, err := b.Publish(context.Background(), "chat", []byte("hi"))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	drain(t, chatSub, otherSub)
	assert.Equal(t, []string{"hi"}, chat.got())
	assert.Empty(t, other.got())

	chat.mu.Lock()
	defer chat.mu.Unlock()
	msg := chat.msgs[0]
	assert.Equal(t, "chat", msg.Topic)
	assert.Equal(t, "chat", msg.Pattern)
	assert.NotEmpty(t, msg.ID)
	assert.False(t, msg.PublishedAt.IsZero())
}

func TestSubscribersObservePublishOrder(t *testing.T) {
	b := newTestBus(t)
	var a, c collector

	subA, err := b.Subscribe("chat", a.handle)
	require.NoError(t, err)
	subB, err := b.Subscribe("chat", c.handle)
	require.NoError(t, err)

	for _, p := range []string{"m1", "m2"} {
		n, err := b.Publish(context.Background(), "chat", []byte(p))
		require.NoError(t, err)
		require.Equal(t, 2, n)
	}

	drain(t, subA, subB)
	assert.Equal(t, []string{"m1", "m2"}, a.got())
	assert.Equal(t, []string{"m1", "m2"}, c.got())
}

func TestOrderingHoldsUnderLoad(t *testing.T) {
	b := newTestBus(t)
	var seen []int
	var mu sync.Mutex
	sub, err := b.Subscribe("seq", func(_ context.Context, msg Message) error {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, int(msg.Payload[0])<<8|int(msg.Payload[1]))
		return nil
	})
	require.NoError(t, err)

	const total = 1000
	for i := 0; i < total; i++ {
		_, err := b.Publish(context.Background(), "seq", []byte{byte(i >> 8), byte(i)})
		require.NoError(t, err)
	}
	drain(t, sub)

	require.Len(t, seen, total)
	for i, v := range seen {
		require.Equal(t, i, v)
	}
}

func TestFailingListenerIsIsolated(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	var failures atomic.Int32
	obs := ObserverFunc(func(_ context.Context, op, _ string, _ int, err error, _ time.Duration) {
		var lerr *ListenerError
		if op == "deliver" && errors.As(err, &lerr) {
			failures.Add(1)
		}
	})
	b := newTestBus(t, WithLogger(zap.New(core)), WithObserver(obs))

	var failingGot []string
	var mu sync.Mutex
	failing, err := b.Subscribe("chat", func(_ context.Context, msg Message) error {
		mu.Lock()
		failingGot = append(failingGot, string(msg.Payload))
		mu.Unlock()
		if string(msg.Payload) == "1" {
			return errors.New("listener rejected message")
		}
		return nil
	})
	require.NoError(t, err)
	var healthy collector
	healthySub, err := b.Subscribe("chat", healthy.handle)
	require.NoError(t, err)

	for _, p := range []string{"1", "2"} {
		_, err := b.Publish(context.Background(), "chat", []byte(p))
		require.NoError(t, err, "publisher must not see listener failures")
	}
	drain(t, failing, healthySub)

	assert.Equal(t, []string{"1", "2"}, failingGot)
	assert.Equal(t, []string{"1", "2"}, healthy.got())
	assert.Equal(t, int32(1), failures.Load())
	require.Equal(t, 1, logs.FilterMessage("listener failed").Len())
	entry := logs.FilterMessage("listener failed").All()[0]
	assert.Equal(t, "chat", entry.ContextMap()["topic"])
}

func TestPanickingListenerIsRecovered(t *testing.T) {
	var panics atomic.Int32
	obs := ObserverFunc(func(_ context.Context, op, _ string, _ int, err error, _ time.Duration) {
		var lerr *ListenerError
		if op == "deliver" && errors.As(err, &lerr) && lerr.Panicked {
			panics.Add(1)
		}
	})
	b := newTestBus(t, WithObserver(obs))

	var after collector
	sub, err := b.Subscribe("chat", func(ctx context.Context, msg Message) error {
		if string(msg.Payload) == "boom" {
			panic("listener exploded")
		}
		return after.handle(ctx, msg)
	})
	require.NoError(t, err)

	_, err = b.Publish(context.Background(), "chat", []byte("boom"))
	require.NoError(t, err)
	_, err = b.Publish(context.Background(), "chat", []byte("ok"))
	require.NoError(t, err)
	drain(t, sub)

	assert.Equal(t, int32(1), panics.Load())
	assert.Equal(t, []string{"ok"}, after.got())
}

func TestGlobPatterns(t *testing.T) {
	b := newTestBus(t)
	var orders, all, single collector

	s1, err := b.Subscribe("orders.*", orders.handle)
	require.NoError(t, err)
	s2, err := b.Subscribe("*", all.handle)
	require.NoError(t, err)
	s3, err := b.Subscribe("chat.?", single.handle)
	require.NoError(t, err)

	for _, topic := range []string{"orders.created", "chat.a", "chat.ab", "orders"} {
		_, err := b.Publish(context.Background(), topic, []byte(topic))
		require.NoError(t, err)
	}
	drain(t, s1, s2, s3)

	assert.Equal(t, []string{"orders.created"}, orders.got())
	assert.Equal(t, []string{"orders.created", "chat.a", "chat.ab", "orders"}, all.got())
	assert.Equal(t, []string{"chat.a"}, single.got())
}

func TestSubscribeValidation(t *testing.T) {
	b := newTestBus(t)
	noop := func(context.Context, Message) error { return nil }

	_, err := b.Subscribe("", noop)
	assert.ErrorIs(t, err, ErrEmptyPattern)
	_, err = b.Subscribe("chat[", noop)
	assert.ErrorIs(t, err, ErrBadPattern)
	_, err = b.Subscribe("chat", nil)
	assert.ErrorIs(t, err, ErrNilHandler)
	assert.Equal(t, 0, b.Subscriptions())

	_, err = b.Publish(context.Background(), "", []byte("x"))
	assert.ErrorIs(t, err, ErrEmptyTopic)
}

func TestUnsubscribeDrainsQueuedMessages(t *testing.T) {
	b := newTestBus(t)
	release := make(chan struct{})
	var got collector
	sub, err := b.Subscribe("chat", func(ctx context.Context, msg Message) error {
		<-release
		return got.handle(ctx, msg)
	})
	require.NoError(t, err)

	for _, p := range []string{"a", "b", "c"} {
		_, err := b.Publish(context.Background(), "chat", []byte(p))
		require.NoError(t, err)
	}
	sub.Unsubscribe()
	sub.Unsubscribe()
	assert.Equal(t, 0, b.Subscriptions())

	n, err := b.Publish(context.Background(), "chat", []byte("late"))
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	close(release)
	select {
	case <-sub.Done():
	case <-time.After(time.Second):
		t.Fatal("subscription did not drain")
	}
	assert.Equal(t, []string{"a", "b", "c"}, got.got())
}

func TestMaxPendingDropsForFullSubscriberOnly(t *testing.T) {
	var drops atomic.Int32
	obs := ObserverFunc(func(_ context.Context, op, _ string, _ int, _ error, _ time.Duration) {
		if op == "drop" {
			drops.Add(1)
		}
	})
	b := newTestBus(t, WithMaxPending(1), WithObserver(obs))

	started := make(chan struct{}, 1)
	release := make(chan struct{})
	var slow collector
	slowSub, err := b.Subscribe("chat", func(ctx context.Context, msg Message) error {
		select {
		case started <- struct{}{}:
		default:
		}
		<-release
		return slow.handle(ctx, msg)
	})
	require.NoError(t, err)

	_, err = b.Publish(context.Background(), "chat", []byte("1"))
	require.NoError(t, err)
	<-started

	var fast collector
	fastSub, err := b.Subscribe("chat", fast.handle)
	require.NoError(t, err)

	// slow holds "1" in its handler, so "2" fills its mailbox and "3" is dropped.
	n, err := b.Publish(context.Background(), "chat", []byte("2"))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	require.Eventually(t, func() bool { return len(fast.got()) == 1 }, time.Second, 5*time.Millisecond)
	n, err = b.Publish(context.Background(), "chat", []byte("3"))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.Eventually(t, func() bool { return len(fast.got()) == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, b.Pending())

	close(release)
	drain(t, slowSub, fastSub)
	assert.Equal(t, []string{"1", "2"}, slow.got())
	assert.Equal(t, []string{"2", "3"}, fast.got())
	assert.Equal(t, int32(1), drops.Load())
}

func TestCloseDrainsAndRejects(t *testing.T) {
	b := New()
	release := make(chan struct{})
	var got collector
	sub, err := b.Subscribe("chat", func(ctx context.Context, msg Message) error {
		<-release
		return got.handle(ctx, msg)
	})
	require.NoError(t, err)
	_, err = b.Publish(context.Background(), "chat", []byte("queued"))
	require.NoError(t, err)

	short, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, b.Close(short), context.DeadlineExceeded)

	_, err = b.Publish(context.Background(), "chat", []byte("late"))
	assert.ErrorIs(t, err, ErrClosed)
	_, err = b.Subscribe("chat", got.handle)
	assert.ErrorIs(t, err, ErrClosed)

	close(release)
	<-sub.Done()
	assert.Equal(t, []string{"queued"}, got.got())
	assert.NoError(t, b.Close(context.Background()))
	sub.Unsubscribe()
}

func TestHandlerMayPublishAndUnsubscribe(t *testing.T) {
	b := newTestBus(t)
	var replies collector
	replySub, err := b.Subscribe("reply", replies.handle)
	require.NoError(t, err)

	var sub *Subscription
	sub, err = b.Subscribe("ping", func(ctx context.Context, msg Message) error {
		_, err := b.Publish(ctx, "reply", []byte("pong"))
		sub.Unsubscribe()
		return err
	})
	require.NoError(t, err)

	_, err = b.Publish(context.Background(), "ping", nil)
	require.NoError(t, err)
	select {
	case <-sub.Done():
	case <-time.After(time.Second):
		t.Fatal("self-unsubscribe did not complete")
	}
	drain(t, replySub)
	assert.Equal(t, []string{"pong"}, replies.got())
}

func TestObserverSeesLifecycle(t *testing.T) {
	var mu sync.Mutex
	var ops []string
	obs := ObserverFunc(func(_ context.Context, op, _ string, _ int, _ error, _ time.Duration) {
		mu.Lock()
		ops = append(ops, op)
		mu.Unlock()
	})
	b := newTestBus(t, WithObserver(obs))
	sub, err := b.Subscribe("chat", func(context.Context, Message) error { return nil })
	require.NoError(t, err)
	_, err = b.Publish(context.Background(), "chat", []byte("x"))
	require.NoError(t, err)
	drain(t, sub)

	mu.Lock()
	defer mu.Unlock()
	assert.ElementsMatch(t, []string{"subscribe", "publish", "deliver", "unsubscribe"}, ops)
}

func TestPublishMessageKeepsProvidedFields(t *testing.T) {
	b := newTestBus(t)
	var got collector
	sub, err := b.Subscribe("chat", got.handle)
	require.NoError(t, err)

	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	_, err = b.PublishMessage(context.Background(), Message{
		ID:          "fixed",
		Topic:       "chat",
		Payload:     []byte("x"),
		Source:      "remote",
		PublishedAt: at,
	})
	require.NoError(t, err)
	drain(t, sub)

	got.mu.Lock()
	defer got.mu.Unlock()
	require.Len(t, got.msgs, 1)
	assert.Equal(t, "fixed", got.msgs[0].ID)
	assert.Equal(t, "remote", got.msgs[0].Source)
	assert.True(t, at.Equal(got.msgs[0].PublishedAt))
}

func TestHandlerContextSurvivesPublisherCancel(t *testing.T) {
	b := newTestBus(t)
	errs := make(chan error, 1)
	sub, err := b.Subscribe("chat", func(ctx context.Context, _ Message) error {
		errs <- ctx.Err()
		return nil
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	_, err = b.Publish(ctx, "chat", nil)
	require.NoError(t, err)
	cancel()
	drain(t, sub)
	assert.NoError(t, <-errs)
}

func TestPayloadIsCopiedPerSubscription(t *testing.T) {
	b := newTestBus(t)
	release := make(chan struct{})
	var mutating, reading collector

	first, err := b.Subscribe("chat", func(ctx context.Context, msg Message) error {
		<-release
		copy(msg.Payload, "ZZ")
		return mutating.handle(ctx, msg)
	})
	require.NoError(t, err)
	second, err := b.Subscribe("chat", func(ctx context.Context, msg Message) error {
		<-release
		time.Sleep(20 * time.Millisecond)
		return reading.handle(ctx, msg)
	})
	require.NoError(t, err)

	buf := []byte("hi")
	n, err := b.Publish(context.Background(), "chat", buf)
	require.NoError(t, err)
	require.Equal(t, 2, n)
	copy(buf, "XX")
	close(release)

	drain(t, first, second)
	assert.Equal(t, []string{"ZZ"}, mutating.got())
	assert.Equal(t, []string{"hi"}, reading.got())
}

// Package bus is an in-process publish/subscribe hub.
//
// Subscribers register a Handler under a topic pattern. A pattern without
// glob metacharacters matches one topic exactly; a pattern containing *, ?
// or [...] is matched with path.Match, in the style of Redis PSUBSCRIBE:
//
//	b := bus.New(bus.WithLogger(logger))
//	defer b.Close(context.Background())
//
//	sub, _ := b.Subscribe("chat", func(ctx context.Context, msg bus.Message) error {
//		log.Printf("message from %q: %s", msg.Topic, msg.Payload)
//		return nil
//	})
//	defer sub.Unsubscribe()
//
//	_, _ = b.Publish(ctx, "chat", []byte("Hello, world !"))
//
// Every subscription owns a FIFO mailbox drained by its own goroutine.
// Publish only enqueues, so it never waits on a handler, and messages that
// one goroutine publishes on a topic reach each subscriber in publish order.
// A handler that returns an error or panics is logged and reported to the
// Observer; other subscribers and the publisher are unaffected.
package bus

package bus

import "sync"

// Subscription is a registered handler. It stays live until Unsubscribe or
// the bus is closed.
type Subscription struct {
	id      string
	pattern string
	handler Handler
	bus     *Bus
	box     *mailbox
	once    sync.Once
	done    chan struct{}
}

// ID returns the subscription's unique id.
func (s *Subscription) ID() string { return s.id }

// Pattern returns the topic pattern the subscription was registered with.
func (s *Subscription) Pattern() string { return s.pattern }

// Unsubscribe removes the subscription. Messages already queued for it are
// still delivered. Calling it more than once is a no-op.
func (s *Subscription) Unsubscribe() {
	s.bus.Unsubscribe(s)
}

// Done is closed after the subscription's queue is drained and its
// delivery goroutine has exited.
func (s *Subscription) Done() <-chan struct{} { return s.done }

// Pending reports how many messages are queued for the subscription.
func (s *Subscription) Pending() int { return s.box.len() }

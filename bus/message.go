package bus

import (
	"context"
	"time"
)

// Message is one published payload as seen by a subscriber.
type Message struct {
	ID    string
	Topic string
	// Pattern is the subscription pattern that matched Topic. It is set on delivery.
	Pattern string
	// Payload is a copy owned by the receiving subscription.
	Payload     []byte
	Source      string
	PublishedAt time.Time
}

// Handler processes a delivered message. A returned error is logged and
// reported to the Observer but goes no further.
type Handler func(ctx context.Context, msg Message) error

package bus

import (
	"context"
	"time"
)

// Observer receives events for bus operations.
//
// receivers is the number of subscriptions involved: matches for publish,
// one for deliver and drop, the live total for subscribe and unsubscribe.
type Observer interface {
	OnBusOp(ctx context.Context, op string, topic string, receivers int, err error, dur time.Duration)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(ctx context.Context, op string, topic string, receivers int, err error, dur time.Duration)

// OnBusOp implements Observer.
func (f ObserverFunc) OnBusOp(ctx context.Context, op string, topic string, receivers int, err error, dur time.Duration) {
	if f == nil {
		return
	}
	f(ctx, op, topic, receivers, err, dur)
}

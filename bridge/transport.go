// Package bridge relays bus messages through an external broker so that
// buses in different processes see each other's publishes.
package bridge

import "context"

// Unsubscriber cancels a transport subscription.
type Unsubscriber interface {
	Unsubscribe() error
}

// Transport is the broker side of a Bridge.
type Transport interface {
	Publish(ctx context.Context, topic string, data []byte) error
	// Subscribe delivers every broker message whose topic matches pattern
	// to fn until the returned Unsubscriber is used.
	Subscribe(ctx context.Context, pattern string, fn func(topic string, data []byte)) (Unsubscriber, error)
}

// UnsubscribeFunc adapts a function to Unsubscriber.
type UnsubscribeFunc func() error

// Unsubscribe implements Unsubscriber.
func (f UnsubscribeFunc) Unsubscribe() error { return f() }

package bus

import (
	"errors"
	"fmt"
)

var (
	// ErrClosed is returned by operations on a closed bus.
	ErrClosed = errors.New("bus: closed")
	// ErrEmptyTopic is returned when publishing without a topic.
	ErrEmptyTopic = errors.New("bus: topic is required")
	// ErrEmptyPattern is returned when subscribing without a pattern.
	ErrEmptyPattern = errors.New("bus: pattern is required")
	// ErrBadPattern is returned for a malformed glob pattern.
	ErrBadPattern = errors.New("bus: malformed pattern")
	// ErrNilHandler is returned when subscribing without a handler.
	ErrNilHandler = errors.New("bus: handler is required")
)

// ListenerError describes a handler failure. It is reported to the logger
// and Observer only; publishers never see it.
type ListenerError struct {
	SubscriptionID string
	Pattern        string
	Topic          string
	MessageID      string
	Panicked       bool
	Err            error
}

func (e *ListenerError) Error() string {
	kind := "failed"
	if e.Panicked {
		kind = "panicked"
	}
	return fmt.Sprintf("bus: listener %s (%s) %s on %q: %v", e.SubscriptionID, e.Pattern, kind, e.Topic, e.Err)
}

func (e *ListenerError) Unwrap() error { return e.Err }

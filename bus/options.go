package bus

import "go.uber.org/zap"

// Option configures a Bus.
type Option func(*Bus)

// WithLogger sets the logger used for listener failures and drops.
func WithLogger(logger *zap.Logger) Option {
	return func(b *Bus) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithObserver attaches an observer to receive operation events.
func WithObserver(o Observer) Option {
	return func(b *Bus) {
		b.observer = o
	}
}

// WithMaxPending bounds each subscription's mailbox. Messages published to
// a full mailbox are dropped for that subscription only. Zero means unbounded.
func WithMaxPending(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.maxPending = n
		}
	}
}

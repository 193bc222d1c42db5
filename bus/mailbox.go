package bus

import (
	"context"
	"sync"
)

type delivery struct {
	ctx context.Context
	msg Message
}

// mailbox is an unbounded (or capped) FIFO with a single consumer.
type mailbox struct {
	mu     sync.Mutex
	queue  []delivery
	closed bool
	notify chan struct{}
}

func newMailbox() *mailbox {
	return &mailbox{notify: make(chan struct{}, 1)}
}

// push reports false when the mailbox is closed or holds max items.
func (m *mailbox) push(d delivery, max int) bool {
	m.mu.Lock()
	if m.closed || (max > 0 && len(m.queue) >= max) {
		m.mu.Unlock()
		return false
	}
	m.queue = append(m.queue, d)
	m.mu.Unlock()
	m.signal()
	return true
}

// next blocks until an item is available. It returns false once the
// mailbox is closed and empty.
func (m *mailbox) next() (delivery, bool) {
	for {
		m.mu.Lock()
		if len(m.queue) > 0 {
			d := m.queue[0]
			m.queue[0] = delivery{}
			m.queue = m.queue[1:]
			m.mu.Unlock()
			return d, true
		}
		if m.closed {
			m.mu.Unlock()
			return delivery{}, false
		}
		m.mu.Unlock()
		<-m.notify
	}
}

func (m *mailbox) close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.signal()
}

func (m *mailbox) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}

func (m *mailbox) signal() {
	select {
	case m.notify <- struct{}{}:
	default:
	}
}

package bridge

import (
	"context"
	"errors"
	"fmt"

	"github.com/goforj/kvcore/bus"
	"github.com/nats-io/nats.go"
)

// NATSConn captures the subset of nats.Conn used by the transport.
type NATSConn interface {
	Publish(subj string, data []byte) error
	Subscribe(subj string, cb nats.MsgHandler) (*nats.Subscription, error)
}

type natsTransport struct {
	conn NATSConn
}

// NewNATSTransport relays through core NATS subjects. An exact pattern is
// used as the subject. A glob pattern subscribes to ">" and is filtered
// locally, since NATS wildcards only match whole tokens.
func NewNATSTransport(conn NATSConn) Transport {
	return &natsTransport{conn: conn}
}

func (t *natsTransport) Publish(_ context.Context, topic string, data []byte) error {
	if t.conn == nil {
		return errors.New("bridge: nats connection unavailable")
	}
	if err := t.conn.Publish(topic, data); err != nil {
		return fmt.Errorf("nats publish %q: %w", topic, err)
	}
	return nil
}

func (t *natsTransport) Subscribe(_ context.Context, pattern string, fn func(topic string, data []byte)) (Unsubscriber, error) {
	if t.conn == nil {
		return nil, errors.New("bridge: nats connection unavailable")
	}
	subject := pattern
	glob := bus.IsGlob(pattern)
	if glob {
		subject = ">"
	}
	sub, err := t.conn.Subscribe(subject, func(msg *nats.Msg) {
		if glob && !bus.Match(pattern, msg.Subject) {
			return
		}
		fn(msg.Subject, msg.Data)
	})
	if err != nil {
		return nil, fmt.Errorf("nats subscribe %q: %w", subject, err)
	}
	return sub, nil
}

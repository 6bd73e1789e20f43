// Package broadcast publishes answer events for live subscribers.
package broadcast

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// Broadcaster publishes a payload on a subject. Delivery is best effort;
// the chat flow never blocks on subscribers.
type Broadcaster interface {
	Broadcast(ctx context.Context, subject string, payload []byte) error
	Close()
}

// NATSBroadcaster publishes over a NATS connection.
type NATSBroadcaster struct {
	conn   *nats.Conn
	logger *zap.Logger
}

// NewNATSBroadcaster connects to the NATS server at url.
func NewNATSBroadcaster(url string, logger *zap.Logger) (*NATSBroadcaster, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	conn, err := nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(10),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to nats: %w", err)
	}
	return &NATSBroadcaster{conn: conn, logger: logger}, nil
}

// Broadcast publishes payload on subject.
func (b *NATSBroadcaster) Broadcast(ctx context.Context, subject string, payload []byte) error {
	if err := b.conn.Publish(subject, payload); err != nil {
		return fmt.Errorf("publishing to %q: %w", subject, err)
	}
	b.logger.Debug("event published",
		zap.String("subject", subject),
		zap.Int("bytes", len(payload)),
	)
	return nil
}

// Close drains and closes the connection.
func (b *NATSBroadcaster) Close() {
	if err := b.conn.Drain(); err != nil {
		b.conn.Close()
	}
}

// Noop discards all broadcasts. Used when no NATS URL is configured.
type Noop struct{}

func (Noop) Broadcast(ctx context.Context, subject string, payload []byte) error { return nil }
func (Noop) Close()                                                              {}

var (
	_ Broadcaster = (*NATSBroadcaster)(nil)
	_ Broadcaster = Noop{}
)

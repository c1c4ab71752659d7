package events

import (
	"context"
	"errors"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

// Channel is the subset of *amqp.Channel the notifier publishes through.
type Channel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPNotifier publishes each event as a persistent JSON message on a durable
// queue named after the event topic.
type AMQPNotifier struct {
	Open   func(ctx context.Context) (Channel, error)
	Logger zerolog.Logger

	mu       sync.Mutex
	conn     *amqp.Connection
	url      string
	declared map[string]bool
}

// NewAMQPNotifier dials lazily; the connection is re-established after the
// broker closes it.
func NewAMQPNotifier(url string, logger zerolog.Logger) *AMQPNotifier {
	n := &AMQPNotifier{url: url, Logger: logger}
	n.Open = n.openChannel
	return n
}

func (n *AMQPNotifier) openChannel(context.Context) (Channel, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.conn == nil || n.conn.IsClosed() {
		conn, err := amqp.Dial(n.url)
		if err != nil {
			return nil, fmt.Errorf("amqp dial: %w", err)
		}
		n.conn = conn
		n.declared = nil
	}
	ch, err := n.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("amqp channel: %w", err)
	}
	return ch, nil
}

// Notify implements Notifier.
func (n *AMQPNotifier) Notify(ctx context.Context, event Event) error {
	if n == nil || n.Open == nil {
		return errors.New("events: amqp notifier not configured")
	}
	ch, err := n.Open(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = ch.Close() }()

	if err := n.declare(ch, event.Topic); err != nil {
		return err
	}
	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    event.ID.String(),
		Type:         event.Topic,
		Timestamp:    event.OccurredAt,
		Body:         event.Payload,
	}
	if err := ch.PublishWithContext(ctx, "", event.Topic, false, false, pub); err != nil {
		n.Logger.Error().Err(err).Str("topic", event.Topic).Msg("amqp_publish_failed")
		return fmt.Errorf("amqp publish: %w", err)
	}
	return nil
}

func (n *AMQPNotifier) declare(ch Channel, queue string) error {
	n.mu.Lock()
	done := n.declared[queue]
	n.mu.Unlock()
	if done {
		return nil
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("amqp declare %s: %w", queue, err)
	}
	n.mu.Lock()
	if n.declared == nil {
		n.declared = make(map[string]bool)
	}
	n.declared[queue] = true
	n.mu.Unlock()
	return nil
}

// Close releases the broker connection.
func (n *AMQPNotifier) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.conn == nil || n.conn.IsClosed() {
		return nil
	}
	return n.conn.Close()
}

package events

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

// ConsumeChannel is the subset of *amqp.Channel the consumer reads through.
type ConsumeChannel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	Qos(prefetchCount, prefetchSize int, global bool) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
}

// HandlerFunc processes one delivered event.
type HandlerFunc func(ctx context.Context, event Event) error

// Consumer drains the durable queue of a topic. A failed delivery is
// requeued once and dropped when it fails again.
type Consumer struct {
	Channel  ConsumeChannel
	Topic    string
	Name     string
	Prefetch int
	Handle   HandlerFunc
	Logger   zerolog.Logger
}

// Run consumes until ctx is done or the broker closes the channel.
func (c *Consumer) Run(ctx context.Context) error {
	if c.Channel == nil || c.Handle == nil || c.Topic == "" {
		return errors.New("events: consumer not configured")
	}
	if _, err := c.Channel.QueueDeclare(c.Topic, true, false, false, false, nil); err != nil {
		return fmt.Errorf("amqp declare %s: %w", c.Topic, err)
	}
	prefetch := c.Prefetch
	if prefetch <= 0 {
		prefetch = 16
	}
	if err := c.Channel.Qos(prefetch, 0, false); err != nil {
		return fmt.Errorf("amqp qos: %w", err)
	}
	deliveries, err := c.Channel.Consume(c.Topic, c.Name, false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("amqp consume %s: %w", c.Topic, err)
	}
	c.Logger.Info().Str("topic", c.Topic).Int("prefetch", prefetch).Msg("consumer_started")
	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return errors.New("events: delivery channel closed")
			}
			c.process(ctx, d)
		}
	}
}

func (c *Consumer) process(ctx context.Context, d amqp.Delivery) {
	ev := Event{Topic: d.Type, Payload: d.Body, OccurredAt: d.Timestamp.UTC()}
	if ev.Topic == "" {
		ev.Topic = c.Topic
	}
	id, err := uuid.Parse(d.MessageId)
	if err != nil {
		c.Logger.Warn().Str("message_id", d.MessageId).Msg("event_rejected_bad_id")
		_ = d.Reject(false)
		return
	}
	ev.ID = id

	if err := c.Handle(ctx, ev); err != nil {
		requeue := !d.Redelivered
		c.Logger.Error().Err(err).Str("event_id", id.String()).Bool("requeue", requeue).Msg("event_handle_failed")
		_ = d.Nack(false, requeue)
		return
	}
	_ = d.Ack(false)
}

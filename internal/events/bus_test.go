package events_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/tournetwork/storefront/internal/events"
)

type captureNotifier struct {
	events []events.Event
	err    error
}

func (c *captureNotifier) Notify(_ context.Context, event events.Event) error {
	c.events = append(c.events, event)
	return c.err
}

type fakeChannel struct {
	declared  []string
	published []amqp.Publishing
	keys      []string
	closed    int
}

func (f *fakeChannel) QueueDeclare(name string, durable, _, _, _ bool, _ amqp.Table) (amqp.Queue, error) {
	if !durable {
		return amqp.Queue{}, errors.New("queue must be durable")
	}
	f.declared = append(f.declared, name)
	return amqp.Queue{Name: name}, nil
}

func (f *fakeChannel) PublishWithContext(_ context.Context, _, key string, _, _ bool, msg amqp.Publishing) error {
	f.keys = append(f.keys, key)
	f.published = append(f.published, msg)
	return nil
}

func (f *fakeChannel) Close() error {
	f.closed++
	return nil
}

func TestEmitFansOut(t *testing.T) {
	first := &captureNotifier{}
	second := &captureNotifier{}
	fixed := time.Date(2024, 6, 15, 10, 0, 0, 0, time.UTC)
	bus := events.Bus{Notifiers: []events.Notifier{first, nil, second}, Now: func() time.Time { return fixed }}

	ev, err := bus.Emit(context.Background(), events.TopicBookingConfirmed, map[string]any{"bookingId": "TN-1"})
	require.NoError(t, err)
	require.Equal(t, fixed, ev.OccurredAt)
	require.JSONEq(t, `{"bookingId":"TN-1"}`, string(ev.Payload))
	require.Len(t, first.events, 1)
	require.Len(t, second.events, 1)
	require.Equal(t, ev.ID, second.events[0].ID)
}

func TestEmitJoinsNotifierErrors(t *testing.T) {
	failing := &captureNotifier{err: errors.New("broker down")}
	after := &captureNotifier{}
	bus := events.Bus{Notifiers: []events.Notifier{failing, after}}

	_, err := bus.Emit(context.Background(), events.TopicBookingConfirmed, nil)
	require.ErrorContains(t, err, "broker down")
	require.Len(t, after.events, 1)
}

func TestEmitRejectsInvalidInput(t *testing.T) {
	bus := events.Bus{}
	_, err := bus.Emit(context.Background(), "  ", nil)
	require.Error(t, err)
	_, err = bus.Emit(context.Background(), events.TopicBookingConfirmed, "{not json")
	require.Error(t, err)
}

func TestAMQPNotifierPublishesPersistentJSON(t *testing.T) {
	ch := &fakeChannel{}
	n := &events.AMQPNotifier{Open: func(context.Context) (events.Channel, error) { return ch, nil }}
	bus := events.Bus{Notifiers: []events.Notifier{n}}

	payload := events.BookingConfirmed{BookingID: "TN-42", TotalAmount: decimal.RequireFromString("176.55"), Guests: 3}
	_, err := bus.Emit(context.Background(), events.TopicBookingConfirmed, payload)
	require.NoError(t, err)
	_, err = bus.Emit(context.Background(), events.TopicBookingConfirmed, payload)
	require.NoError(t, err)

	require.Equal(t, []string{events.TopicBookingConfirmed}, ch.declared)
	require.Equal(t, []string{events.TopicBookingConfirmed, events.TopicBookingConfirmed}, ch.keys)
	require.Equal(t, 2, ch.closed)

	msg := ch.published[0]
	require.Equal(t, amqp.Persistent, msg.DeliveryMode)
	require.Equal(t, "application/json", msg.ContentType)
	var decoded events.BookingConfirmed
	require.NoError(t, json.Unmarshal(msg.Body, &decoded))
	require.Equal(t, "TN-42", decoded.BookingID)
	require.True(t, decoded.TotalAmount.Equal(decimal.RequireFromString("176.55")))
}

func TestLogNotifierWritesEvent(t *testing.T) {
	var buf bytes.Buffer
	bus := events.Bus{Notifiers: []events.Notifier{events.LogNotifier{Logger: zerolog.New(&buf)}}}
	_, err := bus.Emit(context.Background(), events.TopicBookingConfirmed, map[string]int{"guests": 2})
	require.NoError(t, err)

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "domain_event", line["message"])
	require.Equal(t, events.TopicBookingConfirmed, line["topic"])
}

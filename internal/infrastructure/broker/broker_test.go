package broker

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"dip-trader/internal/config"
	orders "dip-trader/internal/domain/entity/orders"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeChannel struct {
	declared   []string
	kind       string
	published  []amqp.Publishing
	exchanges  []string
	declareErr error
	publishErr error
	closed     bool
}

func (f *fakeChannel) ExchangeDeclare(name, kind string, _, _, _, _ bool, _ amqp.Table) error {
	f.declared = append(f.declared, name)
	f.kind = kind
	return f.declareErr
}

func (f *fakeChannel) PublishWithContext(_ context.Context, exchange, _ string, _, _ bool, msg amqp.Publishing) error {
	if f.publishErr != nil {
		return f.publishErr
	}
	f.exchanges = append(f.exchanges, exchange)
	f.published = append(f.published, msg)
	return nil
}

func (f *fakeChannel) Close() error {
	f.closed = true
	return nil
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func TestPublisher_DeclaresFanoutExchange(t *testing.T) {
	ch := &fakeChannel{}
	_, err := newPublisher(ch, "trading.events", testLogger())
	require.NoError(t, err)
	assert.Equal(t, []string{"trading.events"}, ch.declared)
	assert.Equal(t, "fanout", ch.kind)
}

func TestPublisher_DeclareFailureClosesChannel(t *testing.T) {
	ch := &fakeChannel{declareErr: errors.New("access refused")}
	_, err := newPublisher(ch, "trading.events", testLogger())
	require.Error(t, err)
	assert.True(t, ch.closed)

	_, err = newPublisher(&fakeChannel{}, "", testLogger())
	require.Error(t, err)
}

func TestPublisher_Publish(t *testing.T) {
	ch := &fakeChannel{}
	p, err := newPublisher(ch, "trading.events", testLogger())
	require.NoError(t, err)

	event := orders.Event{
		Type:      orders.EventOrderPlaced,
		Symbol:    "SBER",
		Side:      orders.SideBuy,
		Quantity:  4,
		OrderID:   "R1",
		CreatedAt: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
	}
	require.NoError(t, p.Publish(context.Background(), event))

	require.Len(t, ch.published, 1)
	msg := ch.published[0]
	assert.Equal(t, "trading.events", ch.exchanges[0])
	assert.Equal(t, "application/json", msg.ContentType)
	assert.Equal(t, "order_placed", msg.Type)
	assert.NotEmpty(t, msg.MessageId)

	var decoded EventMessage
	require.NoError(t, json.Unmarshal(msg.Body, &decoded))
	require.NotNil(t, decoded.Event)
	assert.Equal(t, event, *decoded.Event)
}

func TestPublisher_PublishErrors(t *testing.T) {
	ch := &fakeChannel{}
	p, err := newPublisher(ch, "trading.events", testLogger())
	require.NoError(t, err)

	ch.publishErr = errors.New("channel closed")
	require.Error(t, p.Publish(context.Background(), orders.Event{Type: orders.EventSignal}))

	require.NoError(t, p.Close())
	assert.True(t, ch.closed)
	require.Error(t, p.Publish(context.Background(), orders.Event{Type: orders.EventSignal}))
}

func TestNewPublisher_RequiresURL(t *testing.T) {
	_, err := NewPublisher(config.RabbitMQConfig{EventsExchange: "trading.events"}, testLogger())
	require.Error(t, err)
}

func TestNopPublisher(t *testing.T) {
	assert.NoError(t, NopPublisher{}.Publish(context.Background(), orders.Event{}))
}

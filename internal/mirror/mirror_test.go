package mirror

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kitchen-dashboard/internal/event"
	"kitchen-dashboard/internal/model"
)

type published struct {
	exchange string
	key      string
	msg      amqp.Publishing
}

// fakeChannel records publishes and confirms each one with ack.
type fakeChannel struct {
	out    []published
	acks   chan amqp.Confirmation
	ack    bool
	err    error
	closed bool
}

func (f *fakeChannel) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	if f.err != nil {
		return f.err
	}
	f.out = append(f.out, published{exchange, key, msg})
	f.acks <- amqp.Confirmation{DeliveryTag: uint64(len(f.out)), Ack: f.ack}
	return nil
}

func (f *fakeChannel) Close() error {
	f.closed = true
	return nil
}

func newFake(ack bool) (*fakeChannel, *AMQP) {
	ch := &fakeChannel{acks: make(chan amqp.Confirmation, 1), ack: ack}
	return ch, newAMQP(ch, ch.acks, nil, "kitchen_events", "b1")
}

func TestAMQP_Publish(t *testing.T) {
	ch, p := newFake(true)
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	err := p.Publish(context.Background(), event.PaymentRequested{
		Meta: event.Meta{ReceivedAt: at}, SessionID: "s1", TableName: "T3", TotalAmount: 42,
	})
	require.NoError(t, err)
	require.Len(t, ch.out, 1)

	out := ch.out[0]
	assert.Equal(t, "kitchen_events", out.exchange)
	assert.Equal(t, "payment_requested", out.key)
	assert.Equal(t, "application/json", out.msg.ContentType)
	assert.Equal(t, amqp.Persistent, out.msg.DeliveryMode)
	assert.Equal(t, "b1", out.msg.Headers["branch_id"])

	var msg Message
	require.NoError(t, json.Unmarshal(out.msg.Body, &msg))
	assert.Equal(t, event.TypePaymentRequested, msg.Event)
	assert.True(t, at.Equal(msg.ReceivedAt))
	assert.JSONEq(t, `{"sessionId":"s1","tableName":"T3","totalAmount":42}`, string(msg.Data))
}

func TestAMQP_Nack(t *testing.T) {
	_, p := newFake(false)
	err := p.Publish(context.Background(), event.TableStatusUpdated{TableName: "T1", Status: model.TableCleaning})
	assert.ErrorContains(t, err, "nacked")
}

func TestAMQP_PublishError(t *testing.T) {
	ch, p := newFake(true)
	ch.err = errors.New("channel closed")
	err := p.Publish(context.Background(), event.TableStatusUpdated{TableName: "T1", Status: model.TableCleaning})
	assert.ErrorContains(t, err, "channel closed")

	require.NoError(t, p.Close())
	assert.True(t, ch.closed)
}

func TestNop(t *testing.T) {
	var p Publisher = Nop{}
	assert.NoError(t, p.Publish(context.Background(), event.NewOrder{OrderID: "o1"}))
	assert.NoError(t, p.Close())
}

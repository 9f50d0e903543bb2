// Package mirror republishes accepted realtime events to a RabbitMQ fanout
// exchange for downstream consumers such as ticket printers.
package mirror

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"kitchen-dashboard/internal/event"
)

// Publisher forwards events. Implementations must be safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, ev event.Event) error
	Close() error
}

// Nop is the publisher used when mirroring is disabled.
type Nop struct{}

func (Nop) Publish(context.Context, event.Event) error { return nil }
func (Nop) Close() error                               { return nil }

// Message is the body published for every event.
type Message struct {
	BranchID   string          `json:"branchId"`
	Event      event.Type      `json:"event"`
	ReceivedAt time.Time       `json:"receivedAt"`
	Data       json.RawMessage `json:"data"`
}

// channel is the part of *amqp.Channel the publisher uses.
type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQP publishes with publisher confirms and waits for the broker's ack.
type AMQP struct {
	exchange string
	branchID string

	mu   sync.Mutex // confirms are matched in publish order
	ch   channel
	acks <-chan amqp.Confirmation
	conn io.Closer
}

// Dial connects, declares the fanout exchange and enables confirms.
func Dial(url, exchange, branchID string) (*AMQP, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "fanout", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("failed to declare exchange %q: %w", exchange, err)
	}
	if err := ch.Confirm(false); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("failed to enable confirms: %w", err)
	}
	acks := ch.NotifyPublish(make(chan amqp.Confirmation, 1))
	return newAMQP(ch, acks, conn, exchange, branchID), nil
}

func newAMQP(ch channel, acks <-chan amqp.Confirmation, conn io.Closer, exchange, branchID string) *AMQP {
	return &AMQP{exchange: exchange, branchID: branchID, ch: ch, acks: acks, conn: conn}
}

// Publish sends ev and waits for the broker confirm or ctx.
func (p *AMQP) Publish(ctx context.Context, ev event.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", ev.Type(), err)
	}
	body, err := json.Marshal(Message{
		BranchID:   p.branchID,
		Event:      ev.Type(),
		ReceivedAt: ev.Received(),
		Data:       data,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.ch.PublishWithContext(ctx, p.exchange, string(ev.Type()), false, false, amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		ContentType:  "application/json",
		Timestamp:    time.Now().UTC(),
		Headers:      amqp.Table{"branch_id": p.branchID},
		Body:         body,
	}); err != nil {
		return fmt.Errorf("failed to publish %s: %w", ev.Type(), err)
	}

	select {
	case conf, ok := <-p.acks:
		if !ok {
			return errors.New("confirm channel closed")
		}
		if !conf.Ack {
			return fmt.Errorf("broker nacked %s", ev.Type())
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close closes the channel and the connection.
func (p *AMQP) Close() error {
	err := p.ch.Close()
	if p.conn != nil {
		if cerr := p.conn.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

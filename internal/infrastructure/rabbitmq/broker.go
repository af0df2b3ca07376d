// Package rabbitmq carries domain events and outbound mail over AMQP.
package rabbitmq

import (
	"context"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/samber/oops"
)

type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// Broker owns one AMQP connection and a publishing channel shared by the
// event publisher and the mail queue.
type Broker struct {
	conn *amqp.Connection
	ch   *amqp.Channel
	pub  *publisher
}

func Dial(url string) (*Broker, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, oops.Code("AMQP_DIAL_FAILED").Wrap(err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, oops.Code("AMQP_CHANNEL_FAILED").Wrap(err)
	}
	return &Broker{conn: conn, ch: ch, pub: &publisher{ch: ch}}, nil
}

// DeclareTopicExchange declares a durable topic exchange.
func (b *Broker) DeclareTopicExchange(name string) error {
	if err := b.ch.ExchangeDeclare(name, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		return oops.Code("AMQP_EXCHANGE_DECLARE_FAILED").With("exchange", name).Wrap(err)
	}
	return nil
}

// DeclareQueue declares a durable queue.
func (b *Broker) DeclareQueue(name string) error {
	if _, err := b.ch.QueueDeclare(name, true, false, false, false, nil); err != nil {
		return oops.Code("AMQP_QUEUE_DECLARE_FAILED").With("queue", name).Wrap(err)
	}
	return nil
}

// Consume starts a manual-ack consumer on queue with the given prefetch.
func (b *Broker) Consume(queue string, prefetch int) (<-chan amqp.Delivery, error) {
	if err := b.ch.Qos(prefetch, 0, false); err != nil {
		return nil, oops.Code("AMQP_QOS_FAILED").Wrap(err)
	}
	msgs, err := b.ch.Consume(queue, "", false, false, false, false, nil)
	if err != nil {
		return nil, oops.Code("AMQP_CONSUME_FAILED").With("queue", queue).Wrap(err)
	}
	return msgs, nil
}

func (b *Broker) Close() {
	if b == nil {
		return
	}
	if b.ch != nil {
		_ = b.ch.Close()
	}
	if b.conn != nil {
		_ = b.conn.Close()
	}
}

type publisher struct {
	mu sync.Mutex
	ch channel
}

func (p *publisher) publish(ctx context.Context, exchange, key string, body []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ch.PublishWithContext(ctx, exchange, key, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
}

package rabbitmq

import (
	"context"

	"github.com/samber/oops"
)

// EventPublisher routes serialized domain events to a topic exchange using
// the topic as routing key.
type EventPublisher struct {
	pub      *publisher
	exchange string
}

func (b *Broker) EventPublisher(exchange string) *EventPublisher {
	return &EventPublisher{pub: b.pub, exchange: exchange}
}

func (p *EventPublisher) Publish(ctx context.Context, topic string, body []byte) error {
	if err := p.pub.publish(ctx, p.exchange, topic, body); err != nil {
		return oops.Code("EVENT_PUBLISH_FAILED").
			With("exchange", p.exchange).
			With("topic", topic).
			Wrap(err)
	}
	return nil
}

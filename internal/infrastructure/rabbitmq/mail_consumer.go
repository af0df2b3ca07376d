package rabbitmq

import (
	"context"
	"encoding/json"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"

	"github.com/oksasatya/go-credential-service/pkg/mailer"
)

type mailDeliverer interface {
	Send(ctx context.Context, body, to, subject string) error
}

// MailConsumer delivers queued mail jobs. Malformed jobs are dropped. A
// failed delivery is requeued once and dropped if its redelivery fails too.
type MailConsumer struct {
	sender      mailDeliverer
	logger      *logrus.Logger
	sendTimeout time.Duration
}

func NewMailConsumer(sender mailDeliverer, logger *logrus.Logger) *MailConsumer {
	return &MailConsumer{sender: sender, logger: logger, sendTimeout: 15 * time.Second}
}

// Run handles deliveries until ctx is done or the channel closes.
func (c *MailConsumer) Run(ctx context.Context, deliveries <-chan amqp.Delivery) {
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-deliveries:
			if !ok {
				return
			}
			c.handle(ctx, d)
		}
	}
}

func (c *MailConsumer) handle(ctx context.Context, d amqp.Delivery) {
	var job mailer.MailJob
	if err := json.Unmarshal(d.Body, &job); err != nil || job.To == "" {
		c.logger.WithError(err).Warn("dropping malformed mail job")
		_ = d.Nack(false, false)
		return
	}

	sendCtx, cancel := context.WithTimeout(ctx, c.sendTimeout)
	defer cancel()
	if err := c.sender.Send(sendCtx, job.Text, job.To, job.Subject); err != nil {
		entry := c.logger.WithError(err).WithFields(logrus.Fields{"subject": job.Subject, "redelivered": d.Redelivered})
		if d.Redelivered {
			entry.Error("mail delivery failed again, dropping")
			_ = d.Nack(false, false)
			return
		}
		entry.Warn("mail delivery failed, requeueing")
		_ = d.Nack(false, true)
		return
	}
	_ = d.Ack(false)
}

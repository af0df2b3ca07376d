package rabbitmq

import (
	"context"
	"encoding/json"

	"github.com/samber/oops"

	"github.com/oksasatya/go-credential-service/pkg/mailer"
)

// MailQueue hands mail to the email worker through a durable queue.
type MailQueue struct {
	pub   *publisher
	queue string
}

func (b *Broker) MailQueue(queue string) *MailQueue {
	return &MailQueue{pub: b.pub, queue: queue}
}

func (q *MailQueue) Send(ctx context.Context, body, to, subject string) error {
	b, err := json.Marshal(mailer.MailJob{To: to, Subject: subject, Text: body})
	if err != nil {
		return err
	}
	if err := q.pub.publish(ctx, "", q.queue, b); err != nil {
		return oops.Code("MAIL_ENQUEUE_FAILED").With("queue", q.queue).Wrap(err)
	}
	return nil
}

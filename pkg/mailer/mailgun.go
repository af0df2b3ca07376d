package mailer

import (
	"context"
	"time"

	mg "github.com/mailgun/mailgun-go/v4"
)

// Mailgun delivers mail through the Mailgun HTTP API.
type Mailgun struct {
	client  *mg.MailgunImpl
	sender  string
	timeout time.Duration
}

func NewMailgun(domain, apiKey, sender string) *Mailgun {
	return &Mailgun{client: mg.NewMailgun(domain, apiKey), sender: sender, timeout: 10 * time.Second}
}

// Send delivers a plain text message.
func (m *Mailgun) Send(ctx context.Context, body, to, subject string) error {
	return m.SendJob(ctx, MailJob{To: to, Subject: subject, Text: body})
}

// SendJob delivers job, attaching the HTML part when present.
func (m *Mailgun) SendJob(ctx context.Context, job MailJob) error {
	msg := m.client.NewMessage(m.sender, job.Subject, job.Text, job.To)
	if job.HTML != "" {
		msg.SetHtml(job.HTML)
	}
	c, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	_, _, err := m.client.Send(c, msg)
	return err
}

package mailer

import (
	"context"

	"github.com/sirupsen/logrus"
)

// LogSender stands in for a real sender when MAIL_SEND_ENABLED=false.
type LogSender struct {
	Logger *logrus.Logger
}

func (s LogSender) Send(_ context.Context, _, to, subject string) error {
	s.Logger.WithFields(logrus.Fields{"to": to, "subject": subject}).Info("mail sending disabled, message dropped")
	return nil
}

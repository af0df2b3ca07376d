package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/oksasatya/go-credential-service/config"
	"github.com/oksasatya/go-credential-service/internal/infrastructure/rabbitmq"
	"github.com/oksasatya/go-credential-service/pkg/helpers"
	"github.com/oksasatya/go-credential-service/pkg/mailer"
)

// Prefetch for fair dispatch between workers.
const prefetch = 16

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("invalid configuration: %v", err)
	}
	logger := helpers.NewLogger(cfg.AppName+"-email-worker", cfg.Env, cfg.LogLevel)

	if !cfg.MailSendEnabled {
		logger.Info("MAIL_SEND_ENABLED=false; email worker disabled (no real emails will be sent)")
		return
	}
	if cfg.MailgunDomain == "" || cfg.MailgunAPIKey == "" || cfg.MailgunSender == "" {
		logger.Fatal("Mailgun not configured")
	}

	broker, err := rabbitmq.Dial(cfg.RabbitMQURL)
	if err != nil {
		logger.Fatalf("amqp dial: %v", err)
	}
	defer broker.Close()

	if err := broker.DeclareQueue(cfg.RabbitMQMailQueue); err != nil {
		logger.Fatalf("queue declare: %v", err)
	}
	deliveries, err := broker.Consume(cfg.RabbitMQMailQueue, prefetch)
	if err != nil {
		logger.Fatalf("consume: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Infof("email worker listening on queue=%s", cfg.RabbitMQMailQueue)
	consumer := rabbitmq.NewMailConsumer(mailer.NewMailgun(cfg.MailgunDomain, cfg.MailgunAPIKey, cfg.MailgunSender), logger)
	consumer.Run(ctx, deliveries)
	logger.Info("email worker stopped")
}

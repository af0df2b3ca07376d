package application

import (
	"context"
	"time"

	"github.com/oksasatya/go-credential-service/internal/domain/entity"
	"github.com/oksasatya/go-credential-service/pkg/token"
)

// EphemeralStore is a TTL key-value store scoped to one namespace.
type EphemeralStore interface {
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, bool, error)
	Delete(ctx context.Context, key string) error
}

type EventPublisher interface {
	Publish(ctx context.Context, topic string, body []byte) error
}

type MailSender interface {
	Send(ctx context.Context, body, to, subject string) error
}

type TokenService interface {
	Issue(c token.Claims, kind token.Kind) (string, time.Time, error)
	Verify(raw string, expected token.Kind) (*token.Claims, error)
}

// CredentialIndexer maintains the credential search projection.
type CredentialIndexer interface {
	Index(ctx context.Context, v entity.View) error
	Search(ctx context.Context, query string, size int) ([]entity.View, error)
}

// Scheduler runs side effects detached from the caller. Submit must not
// block and reports whether the job was accepted.
type Scheduler interface {
	Submit(name string, job func(ctx context.Context) error) bool
}

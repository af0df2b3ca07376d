package application

import (
	"context"
	"crypto/subtle"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/oksasatya/go-credential-service/internal/domain/apperror"
	"github.com/oksasatya/go-credential-service/pkg/helpers"
)

// ResetTokens keeps one password reset token per credential, keyed by the
// credential id.
type ResetTokens struct {
	store EphemeralStore
	ttl   time.Duration
}

func NewResetTokens(store EphemeralStore, ttl time.Duration) *ResetTokens {
	return &ResetTokens{store: store, ttl: ttl}
}

// Issue generates a token for id, replacing any previous one.
func (r *ResetTokens) Issue(ctx context.Context, id uuid.UUID) (string, error) {
	tok, err := helpers.GenResetToken()
	if err != nil {
		return "", err
	}
	if err := r.store.Set(ctx, id.String(), tok, r.ttl); err != nil {
		return "", err
	}
	return tok, nil
}

// Verify fails with ErrInvalidToken unless tok is the live token for id.
func (r *ResetTokens) Verify(ctx context.Context, id uuid.UUID, tok string) error {
	stored, found, err := r.store.Get(ctx, id.String())
	if err != nil {
		return err
	}
	if !found || tok == "" || subtle.ConstantTimeCompare([]byte(stored), []byte(tok)) != 1 {
		return apperror.ErrInvalidToken
	}
	return nil
}

func (r *ResetTokens) Revoke(ctx context.Context, id uuid.UUID) error {
	return r.store.Delete(ctx, id.String())
}

// ActivationCodes maps a code to the credential it activates. The stored
// value is "<code> <credentialId>".
type ActivationCodes struct {
	store EphemeralStore
	ttl   time.Duration
}

func NewActivationCodes(store EphemeralStore, ttl time.Duration) *ActivationCodes {
	return &ActivationCodes{store: store, ttl: ttl}
}

func (a *ActivationCodes) Generate() (string, error) {
	return helpers.GenActivationCode()
}

// Bind stores code for id.
func (a *ActivationCodes) Bind(ctx context.Context, code string, id uuid.UUID) error {
	return a.store.Set(ctx, code, code+" "+id.String(), a.ttl)
}

// Resolve returns the credential id bound to code.
func (a *ActivationCodes) Resolve(ctx context.Context, code string) (uuid.UUID, error) {
	if code == "" {
		return uuid.Nil, apperror.ErrInvalidActivationCode
	}
	stored, found, err := a.store.Get(ctx, code)
	if err != nil {
		return uuid.Nil, err
	}
	if !found {
		return uuid.Nil, apperror.ErrInvalidActivationCode
	}
	storedCode, rawID, ok := strings.Cut(stored, " ")
	if !ok || storedCode != code {
		return uuid.Nil, apperror.ErrInvalidActivationCode
	}
	id, err := uuid.Parse(rawID)
	if err != nil {
		return uuid.Nil, apperror.ErrInvalidActivationCode.WithCause(err)
	}
	return id, nil
}

func (a *ActivationCodes) Revoke(ctx context.Context, code string) error {
	return a.store.Delete(ctx, code)
}

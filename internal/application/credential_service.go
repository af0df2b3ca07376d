// Package application implements the credential use cases: registration,
// login, token refresh, password reset and account activation.
package application

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/oksasatya/go-credential-service/internal/domain/apperror"
	"github.com/oksasatya/go-credential-service/internal/domain/entity"
	"github.com/oksasatya/go-credential-service/internal/domain/event"
	"github.com/oksasatya/go-credential-service/internal/domain/repository"
	"github.com/oksasatya/go-credential-service/internal/domain/valueobject"
	"github.com/oksasatya/go-credential-service/pkg/mailer/templates"
	"github.com/oksasatya/go-credential-service/pkg/token"
)

type Config struct {
	AppName           string
	UserTopic         string
	ResetTokenTTL     time.Duration
	ActivationCodeTTL time.Duration
	ActivateURL       string
	ResetPasswordURL  string
	BcryptCost        int
}

// Deps are the collaborators of CredentialService. Indexer is optional.
type Deps struct {
	UnitOfWork      repository.UnitOfWorkFactory
	Tokens          TokenService
	ResetStore      EphemeralStore
	ActivationStore EphemeralStore
	Events          EventPublisher
	Mail            MailSender
	Indexer         CredentialIndexer
	Scheduler       Scheduler
	Logger          *logrus.Logger
}

type CredentialService struct {
	cfg        Config
	uow        repository.UnitOfWorkFactory
	tokens     TokenService
	reset      *ResetTokens
	activation *ActivationCodes
	events     EventPublisher
	mail       MailSender
	indexer    CredentialIndexer
	scheduler  Scheduler
	logger     *logrus.Logger
}

func NewCredentialService(cfg Config, d Deps) (*CredentialService, error) {
	switch {
	case d.UnitOfWork == nil:
		return nil, errors.New("application: unit of work factory is required")
	case d.Tokens == nil:
		return nil, errors.New("application: token service is required")
	case d.ResetStore == nil || d.ActivationStore == nil:
		return nil, errors.New("application: ephemeral stores are required")
	case d.Events == nil:
		return nil, errors.New("application: event publisher is required")
	case d.Mail == nil:
		return nil, errors.New("application: mail sender is required")
	case d.Scheduler == nil:
		return nil, errors.New("application: scheduler is required")
	case d.Logger == nil:
		return nil, errors.New("application: logger is required")
	}
	if cfg.ResetTokenTTL <= 0 {
		cfg.ResetTokenTTL = 6000 * time.Second
	}
	if cfg.ActivationCodeTTL <= 0 {
		cfg.ActivationCodeTTL = 24 * time.Hour
	}
	if cfg.UserTopic == "" {
		cfg.UserTopic = "user"
	}
	return &CredentialService{
		cfg:        cfg,
		uow:        d.UnitOfWork,
		tokens:     d.Tokens,
		reset:      NewResetTokens(d.ResetStore, cfg.ResetTokenTTL),
		activation: NewActivationCodes(d.ActivationStore, cfg.ActivationCodeTTL),
		events:     d.Events,
		mail:       d.Mail,
		indexer:    d.Indexer,
		scheduler:  d.Scheduler,
		logger:     d.Logger,
	}, nil
}

// RegisterInput is the raw registration form.
type RegisterInput struct {
	FirstName  string
	LastName   string
	MiddleName string
	Email      string
	Password   string
	Phone      string
	TimeCall   string
}

func (in RegisterInput) params() (entity.NewCredentialParams, error) {
	var (
		p   entity.NewCredentialParams
		err error
	)
	if p.FirstName, err = valueobject.NewNamedFullName("first_name", in.FirstName); err != nil {
		return p, err
	}
	if p.LastName, err = valueobject.NewNamedFullName("last_name", in.LastName); err != nil {
		return p, err
	}
	if p.MiddleName, err = valueobject.NewOptionalFullName(in.MiddleName); err != nil {
		return p, err
	}
	if p.Email, err = valueobject.NewEmail(in.Email); err != nil {
		return p, err
	}
	if p.Password, err = valueobject.NewPassword(in.Password); err != nil {
		return p, err
	}
	if p.Phone, err = valueobject.NewPhone(in.Phone); err != nil {
		return p, err
	}
	p.TimeCall = in.TimeCall
	return p, nil
}

// Register creates a PENDING credential. The activation mail, the
// Registered event and the search projection follow the commit.
func (s *CredentialService) Register(ctx context.Context, in RegisterInput) (*entity.Credential, error) {
	params, err := in.params()
	if err != nil {
		return nil, err
	}
	cred, err := entity.NewCredential(params)
	if err != nil {
		return nil, err
	}
	cred.SetHashCost(s.cfg.BcryptCost)

	uow, err := s.uow.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer uow.Rollback(ctx) //nolint:errcheck

	repo := uow.Credentials()
	existing, err := repo.FindOneMatchingAny(ctx,
		repository.Where(repository.FieldEmail, cred.Email.String()),
		repository.Where(repository.FieldPhone, cred.PhoneNumber.String()),
	)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, apperror.ErrUserAlreadyExists
	}
	if err := cred.HashPassword(nil); err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	if _, err := repo.Add(ctx, cred); err != nil {
		return nil, conflictOr(err)
	}
	if err := uow.Commit(ctx); err != nil {
		return nil, conflictOr(err)
	}

	s.logger.WithField("credential_id", cred.ID).Info("credential registered")
	s.scheduleActivationMail(cred)
	s.schedulePublish(event.Registered, cred)
	s.scheduleIndex(cred)
	return cred, nil
}

// Login returns the ACTIVE credential matching email and password. Every
// mismatch yields ErrInvalidCredentials.
func (s *CredentialService) Login(ctx context.Context, email, password string) (*entity.Credential, error) {
	addr, err := valueobject.NewEmail(email)
	if err != nil {
		return nil, err
	}

	uow, err := s.uow.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer uow.Rollback(ctx) //nolint:errcheck

	cred, err := uow.Credentials().FindOneMatchingAll(ctx,
		repository.Where(repository.FieldEmail, addr.String()),
		repository.Where(repository.FieldStatus, string(entity.StatusActive)),
	)
	if err != nil {
		return nil, err
	}
	if cred == nil || cred.Email != addr || !cred.VerifyPassword(password) {
		return nil, apperror.ErrInvalidCredentials
	}
	return cred, nil
}

type TokenPair struct {
	AccessToken        string
	AccessTokenExpiry  time.Time
	RefreshToken       string
	RefreshTokenExpiry time.Time
}

// IssueTokens signs an access and a refresh token for cred.
func (s *CredentialService) IssueTokens(cred *entity.Credential) (TokenPair, error) {
	access, aexp, err := s.tokens.Issue(accessClaims(cred), token.Access)
	if err != nil {
		s.logger.WithError(err).WithField("credential_id", cred.ID).Error("issue access token failed")
		return TokenPair{}, err
	}
	refresh, rexp, err := s.tokens.Issue(token.Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: cred.ID.String()},
	}, token.Refresh)
	if err != nil {
		s.logger.WithError(err).WithField("credential_id", cred.ID).Error("issue refresh token failed")
		return TokenPair{}, err
	}
	return TokenPair{AccessToken: access, AccessTokenExpiry: aexp, RefreshToken: refresh, RefreshTokenExpiry: rexp}, nil
}

// Refresh exchanges a refresh token for a new access token built from the
// current state of the credential.
func (s *CredentialService) Refresh(ctx context.Context, refreshToken string) (string, time.Time, error) {
	claims, err := s.tokens.Verify(refreshToken, token.Refresh)
	if err != nil {
		return "", time.Time{}, apperror.ErrInvalidToken.WithCause(err)
	}
	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return "", time.Time{}, apperror.ErrInvalidToken.WithCause(err)
	}
	cred, err := s.GetByID(ctx, id)
	if errors.Is(err, apperror.ErrUserNotFound) {
		return "", time.Time{}, apperror.ErrInvalidToken
	}
	if err != nil {
		return "", time.Time{}, err
	}
	return s.tokens.Issue(accessClaims(cred), token.Access)
}

// Authenticate verifies an access token.
func (s *CredentialService) Authenticate(_ context.Context, accessToken string) (*token.Claims, error) {
	claims, err := s.tokens.Verify(accessToken, token.Access)
	if err != nil {
		return nil, apperror.ErrInvalidToken.WithCause(err)
	}
	return claims, nil
}

// ForgotPassword issues a reset token for the credential owning email and
// schedules the reset mail. The token is returned for delivery.
func (s *CredentialService) ForgotPassword(ctx context.Context, email string) (string, error) {
	addr, err := valueobject.NewEmail(email)
	if err != nil {
		return "", err
	}
	cred, err := s.findByEmail(ctx, addr)
	if err != nil {
		return "", err
	}
	tok, err := s.reset.Issue(ctx, cred.ID)
	if err != nil {
		return "", err
	}
	s.scheduleResetMail(cred, tok)
	return tok, nil
}

// ResetPassword replaces the password when tok is the live reset token for
// the credential. The token is spent on success.
func (s *CredentialService) ResetPassword(ctx context.Context, email, newPassword, tok string) error {
	addr, err := valueobject.NewEmail(email)
	if err != nil {
		return err
	}
	pwd, err := valueobject.NewPassword(newPassword)
	if err != nil {
		return err
	}

	uow, err := s.uow.Begin(ctx)
	if err != nil {
		return err
	}
	defer uow.Rollback(ctx) //nolint:errcheck

	repo := uow.Credentials()
	found, err := repo.FindOneMatchingAll(ctx, repository.Where(repository.FieldEmail, addr.String()))
	if err != nil {
		return err
	}
	if found == nil {
		return apperror.ErrUserNotFound
	}
	// Concurrent resets for the same credential queue on the row lock; the
	// token is checked and spent while it is held.
	cred, err := repo.GetByID(ctx, found.ID)
	if err != nil {
		return err
	}
	if cred == nil {
		return apperror.ErrUserNotFound
	}
	if err := s.reset.Verify(ctx, cred.ID, tok); err != nil {
		return err
	}
	cred.SetHashCost(s.cfg.BcryptCost)
	if err := cred.HashPassword(&pwd); err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if _, err := repo.Update(ctx, cred); err != nil {
		return err
	}
	if err := s.reset.Revoke(ctx, cred.ID); err != nil {
		return err
	}
	if err := uow.Commit(ctx); err != nil {
		return err
	}

	s.logger.WithField("credential_id", cred.ID).Info("password reset")
	return nil
}

// ActivateAccount activates the credential bound to code. The code is spent
// on success.
func (s *CredentialService) ActivateAccount(ctx context.Context, code string) error {
	id, err := s.activation.Resolve(ctx, code)
	if err != nil {
		return err
	}

	uow, err := s.uow.Begin(ctx)
	if err != nil {
		return err
	}
	defer uow.Rollback(ctx) //nolint:errcheck

	repo := uow.Credentials()
	cred, err := repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if cred == nil {
		return apperror.ErrUserNotFound
	}
	if err := cred.Activate(); err != nil {
		return err
	}
	if _, err := repo.Update(ctx, cred); err != nil {
		return err
	}
	if err := uow.Commit(ctx); err != nil {
		return err
	}

	if err := s.activation.Revoke(ctx, code); err != nil {
		s.logger.WithError(err).WithField("credential_id", cred.ID).Warn("revoke activation code failed")
	}
	s.logger.WithField("credential_id", cred.ID).Info("credential activated")
	s.schedulePublish(event.StatusUpdated, cred)
	s.scheduleIndex(cred)
	return nil
}

func (s *CredentialService) GetByID(ctx context.Context, id uuid.UUID) (*entity.Credential, error) {
	uow, err := s.uow.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer uow.Rollback(ctx) //nolint:errcheck

	cred, err := uow.Credentials().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if cred == nil {
		return nil, apperror.ErrUserNotFound
	}
	return cred, nil
}

// SearchCredentials queries the search projection. Without an indexer it
// returns no results.
func (s *CredentialService) SearchCredentials(ctx context.Context, query string, size int) ([]entity.View, error) {
	if s.indexer == nil {
		return []entity.View{}, nil
	}
	return s.indexer.Search(ctx, query, size)
}

func (s *CredentialService) findByEmail(ctx context.Context, addr valueobject.Email) (*entity.Credential, error) {
	uow, err := s.uow.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer uow.Rollback(ctx) //nolint:errcheck

	cred, err := uow.Credentials().FindOneMatchingAll(ctx, repository.Where(repository.FieldEmail, addr.String()))
	if err != nil {
		return nil, err
	}
	if cred == nil {
		return nil, apperror.ErrUserNotFound
	}
	return cred, nil
}

func accessClaims(c *entity.Credential) token.Claims {
	return token.Claims{
		Name:             c.FirstName.String(),
		Email:            c.Email.String(),
		Role:             string(c.Role),
		RegisteredClaims: jwt.RegisteredClaims{Subject: c.ID.String()},
	}
}

// conflictOr maps a storage unique violation to ErrUserAlreadyExists.
func conflictOr(err error) error {
	var uv *repository.UniqueViolationError
	if errors.As(err, &uv) {
		return apperror.ErrUserAlreadyExists.WithCause(uv)
	}
	return err
}

func (s *CredentialService) scheduleActivationMail(cred *entity.Credential) {
	code, err := s.activation.Generate()
	if err != nil {
		s.logger.WithError(err).WithField("credential_id", cred.ID).Error("generate activation code failed")
		return
	}
	subject, body, err := templates.Render(templates.ActivateAccount, templates.Data{
		AppName:     s.cfg.AppName,
		Name:        cred.FirstName.String(),
		Email:       cred.Email.String(),
		ActivateURL: withQuery(s.cfg.ActivateURL, "code", code),
		ExpiresIn:   s.cfg.ActivationCodeTTL,
	})
	if err != nil {
		s.logger.WithError(err).Error("render activation mail failed")
		return
	}
	id, to := cred.ID, cred.Email.String()
	s.scheduler.Submit("activation_mail", func(ctx context.Context) error {
		if err := s.activation.Bind(ctx, code, id); err != nil {
			return err
		}
		return s.mail.Send(ctx, body, to, subject)
	})
}

func (s *CredentialService) scheduleResetMail(cred *entity.Credential, tok string) {
	subject, body, err := templates.Render(templates.ResetPassword, templates.Data{
		AppName:   s.cfg.AppName,
		Name:      cred.FirstName.String(),
		Email:     cred.Email.String(),
		ResetURL:  withQuery(s.cfg.ResetPasswordURL, "token", tok),
		ExpiresIn: s.cfg.ResetTokenTTL,
	})
	if err != nil {
		s.logger.WithError(err).Error("render reset mail failed")
		return
	}
	to := cred.Email.String()
	s.scheduler.Submit("reset_mail", func(ctx context.Context) error {
		return s.mail.Send(ctx, body, to, subject)
	})
}

func (s *CredentialService) schedulePublish(t event.Type, cred *entity.Credential) {
	body, err := event.New(t, cred).Marshal()
	if err != nil {
		s.logger.WithError(err).WithField("event", t).Error("marshal event failed")
		return
	}
	topic := s.cfg.UserTopic
	s.scheduler.Submit("publish_"+string(t), func(ctx context.Context) error {
		return s.events.Publish(ctx, topic, body)
	})
}

func (s *CredentialService) scheduleIndex(cred *entity.Credential) {
	if s.indexer == nil {
		return
	}
	view := cred.View()
	s.scheduler.Submit("index_credential", func(ctx context.Context) error {
		return s.indexer.Index(ctx, view)
	})
}

func withQuery(base, key, value string) string {
	u, err := url.Parse(base)
	if err != nil || base == "" {
		return base + "?" + key + "=" + url.QueryEscape(value)
	}
	q := u.Query()
	q.Set(key, value)
	u.RawQuery = q.Encode()
	return u.String()
}

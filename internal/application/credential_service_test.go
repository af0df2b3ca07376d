package application

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/url"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oksasatya/go-credential-service/internal/domain/apperror"
	"github.com/oksasatya/go-credential-service/internal/domain/entity"
	"github.com/oksasatya/go-credential-service/internal/domain/event"
	"github.com/oksasatya/go-credential-service/internal/domain/repository"
	"github.com/oksasatya/go-credential-service/pkg/token"
)

func validInput() RegisterInput {
	return RegisterInput{
		FirstName: "Ivan",
		LastName:  "Petrov",
		Email:     "a@b.com",
		Password:  "Abcdef1!",
		Phone:     "79991110000",
	}
}

func mustRegister(t *testing.T, h *harness, in RegisterInput) *entity.Credential {
	t.Helper()
	cred, err := h.svc.Register(context.Background(), in)
	require.NoError(t, err)
	return cred
}

func activate(t *testing.T, h *harness, id uuid.UUID) {
	t.Helper()
	codes := NewActivationCodes(h.activation, time.Hour)
	require.NoError(t, codes.Bind(context.Background(), "activate-"+id.String(), id))
	require.NoError(t, h.svc.ActivateAccount(context.Background(), "activate-"+id.String()))
}

func TestRegisterCreatesPendingCredential(t *testing.T) {
	h := newHarness(t)

	cred := mustRegister(t, h, validInput())

	assert.NotEqual(t, uuid.Nil, cred.ID)
	assert.Equal(t, entity.StatusPending, cred.Status)
	assert.Equal(t, entity.RoleUser, cred.Role)
	assert.True(t, cred.IsHashed())
	assert.NotContains(t, cred.PasswordHash(), "Abcdef1!")

	stored, ok := h.db.get(cred.ID)
	require.True(t, ok)
	assert.Equal(t, entity.StatusPending, stored.Status)
	assert.True(t, stored.VerifyPassword("Abcdef1!"))

	assert.Equal(t, []string{"activation_mail", "publish_UserRegisteredEvent", "index_credential"}, h.scheduler.jobs)
	for _, err := range h.scheduler.errs {
		assert.NoError(t, err)
	}
}

func TestRegisterSendsActivationMailWithBoundCode(t *testing.T) {
	h := newHarness(t)
	cred := mustRegister(t, h, validInput())

	require.Len(t, h.mail.sent, 1)
	mail := h.mail.sent[0]
	assert.Equal(t, "a@b.com", mail.to)
	assert.Contains(t, mail.subject, "activate your account")

	link := regexp.MustCompile(`https://\S+`).FindString(mail.body)
	require.NotEmpty(t, link)
	u, err := url.Parse(link)
	require.NoError(t, err)
	code := u.Query().Get("code")
	require.NotEmpty(t, code)

	require.NoError(t, h.svc.ActivateAccount(context.Background(), code))
	stored, _ := h.db.get(cred.ID)
	assert.Equal(t, entity.StatusActive, stored.Status)
}

func TestRegisterPublishesEventAfterCommit(t *testing.T) {
	h := newHarness(t)
	var committedAtPublish int
	h.events.onSend = func() { committedAtPublish = h.db.count() }

	cred := mustRegister(t, h, validInput())

	assert.Equal(t, 1, committedAtPublish)
	require.Len(t, h.events.events, 1)
	assert.Equal(t, "user", h.events.events[0].topic)

	var msg struct {
		Type    string          `json:"type"`
		Message json.RawMessage `json:"message"`
	}
	require.NoError(t, json.Unmarshal(h.events.events[0].body, &msg))
	assert.Equal(t, string(event.Registered), msg.Type)
	assert.Contains(t, string(msg.Message), cred.ID.String())
	assert.NotContains(t, string(msg.Message), cred.PasswordHash())

	require.Len(t, h.indexer.views, 1)
	assert.Equal(t, "a@b.com", h.indexer.views[0].Email)
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	tests := []struct {
		name string
		in   func(RegisterInput) RegisterInput
	}{
		{"same email", func(in RegisterInput) RegisterInput { in.Phone = "79990000000"; return in }},
		{"same phone", func(in RegisterInput) RegisterInput { in.Email = "other@b.com"; return in }},
		{"same email and phone", func(in RegisterInput) RegisterInput { return in }},
		{"same email in other case", func(in RegisterInput) RegisterInput { in.Email = "A@B.com"; in.Phone = "79990000000"; return in }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			mustRegister(t, h, validInput())
			jobs := len(h.scheduler.jobs)

			_, err := h.svc.Register(context.Background(), tt.in(validInput()))

			assert.ErrorIs(t, err, apperror.ErrUserAlreadyExists)
			assert.Equal(t, 1, h.db.count())
			assert.Len(t, h.scheduler.jobs, jobs)
		})
	}
}

func TestRegisterMapsUniqueViolationRace(t *testing.T) {
	tests := []struct {
		name  string
		field repository.Field
		rival func() RegisterInput
	}{
		{"email", repository.FieldEmail, func() RegisterInput {
			in := validInput()
			in.Phone = "79995550000"
			return in
		}},
		{"phone", repository.FieldPhone, func() RegisterInput {
			in := validInput()
			in.Email = "rival@b.com"
			return in
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			rival := newPendingCredential(t, tt.rival())
			// The rival commits between the pre-check and our commit.
			h.db.beforeCommit = func(db *memoryDB) { db.insertCommitted(rival) }

			_, err := h.svc.Register(context.Background(), validInput())

			require.ErrorIs(t, err, apperror.ErrUserAlreadyExists)
			var uv *repository.UniqueViolationError
			require.ErrorAs(t, err, &uv)
			assert.Equal(t, tt.field, uv.Field)
			assert.Equal(t, 1, h.db.count())
			assert.Empty(t, h.scheduler.jobs)
			assert.Empty(t, h.mail.sent)
			assert.Empty(t, h.events.events)
		})
	}
}

func newPendingCredential(t *testing.T, in RegisterInput) *entity.Credential {
	t.Helper()
	p, err := in.params()
	require.NoError(t, err)
	c, err := entity.NewCredential(p)
	require.NoError(t, err)
	c.SetHashCost(4)
	require.NoError(t, c.HashPassword(nil))
	return c
}

func TestRegisterValidation(t *testing.T) {
	tests := []struct {
		name  string
		field string
		in    func(RegisterInput) RegisterInput
	}{
		{"email", "email", func(in RegisterInput) RegisterInput { in.Email = "not-an-email"; return in }},
		{"password", "password", func(in RegisterInput) RegisterInput { in.Password = "short"; return in }},
		{"password over bcrypt limit", "password", func(in RegisterInput) RegisterInput {
			in.Password = "Пароль1!" + strings.Repeat("ж", 30)
			return in
		}},
		{"phone", "phone_number", func(in RegisterInput) RegisterInput { in.Phone = "+7 999"; return in }},
		{"first name", "first_name", func(in RegisterInput) RegisterInput { in.FirstName = ""; return in }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)

			_, err := h.svc.Register(context.Background(), tt.in(validInput()))

			var ve *apperror.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
			assert.Zero(t, h.db.count())
			assert.Empty(t, h.scheduler.jobs)
		})
	}
}

func TestRegisterSucceedsWhenSideEffectsFail(t *testing.T) {
	h := newHarness(t)
	h.events.err = errors.New("broker down")
	h.mail.err = errors.New("mail provider down")

	cred, err := h.svc.Register(context.Background(), validInput())

	require.NoError(t, err)
	assert.Equal(t, 1, h.db.count())
	assert.Equal(t, entity.StatusPending, cred.Status)
	assert.Len(t, h.scheduler.errs, 3)
	assert.Error(t, h.scheduler.errs[0])
	assert.Error(t, h.scheduler.errs[1])
}

func TestRegisterPropagatesStorageFailure(t *testing.T) {
	h := newHarness(t)
	h.db.beginErr = errors.New("connection refused")

	_, err := h.svc.Register(context.Background(), validInput())

	assert.True(t, apperror.IsInfrastructure(err))
	assert.NotErrorIs(t, err, apperror.ErrUserAlreadyExists)
}

func TestLogin(t *testing.T) {
	h := newHarness(t)
	cred := mustRegister(t, h, validInput())
	ctx := context.Background()

	_, err := h.svc.Login(ctx, "a@b.com", "Abcdef1!")
	assert.ErrorIs(t, err, apperror.ErrInvalidCredentials, "pending credential")

	activate(t, h, cred.ID)

	got, err := h.svc.Login(ctx, "a@b.com", "Abcdef1!")
	require.NoError(t, err)
	assert.Equal(t, cred.ID, got.ID)

	_, err = h.svc.Login(ctx, "a@b.com", "Wrong123!")
	assert.ErrorIs(t, err, apperror.ErrInvalidCredentials)

	_, err = h.svc.Login(ctx, "nobody@b.com", "Abcdef1!")
	assert.ErrorIs(t, err, apperror.ErrInvalidCredentials)

	_, err = h.svc.Login(ctx, "broken", "Abcdef1!")
	var ve *apperror.ValidationError
	assert.ErrorAs(t, err, &ve)
}

func TestActivateAccountScenario(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	cred := mustRegister(t, h, validInput())
	codes := NewActivationCodes(h.activation, time.Hour)

	require.NoError(t, codes.Bind(ctx, "X1", cred.ID))
	require.NoError(t, h.svc.ActivateAccount(ctx, "X1"))

	stored, _ := h.db.get(cred.ID)
	assert.Equal(t, entity.StatusActive, stored.Status)

	err := h.svc.ActivateAccount(ctx, "X1")
	assert.ErrorIs(t, err, apperror.ErrInvalidActivationCode, "code is spent")

	require.NoError(t, codes.Bind(ctx, "X1", cred.ID))
	err = h.svc.ActivateAccount(ctx, "X1")
	assert.ErrorIs(t, err, apperror.ErrAccountAlreadyActivated)

	stored, _ = h.db.get(cred.ID)
	assert.Equal(t, entity.StatusActive, stored.Status)

	require.Len(t, h.events.events, 2)
	assert.Contains(t, string(h.events.events[1].body), string(event.StatusUpdated))
	assert.Contains(t, h.scheduler.jobs, "publish_UserUpdatedStatusEvent")
}

func TestActivateAccountRejectsBadCodes(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	cred := mustRegister(t, h, validInput())
	codes := NewActivationCodes(h.activation, time.Hour)

	assert.ErrorIs(t, h.svc.ActivateAccount(ctx, ""), apperror.ErrInvalidActivationCode)
	assert.ErrorIs(t, h.svc.ActivateAccount(ctx, "unknown"), apperror.ErrInvalidActivationCode)

	require.NoError(t, h.activation.Set(ctx, "mangled", "mangled not-a-uuid", time.Hour))
	assert.ErrorIs(t, h.svc.ActivateAccount(ctx, "mangled"), apperror.ErrInvalidActivationCode)

	require.NoError(t, h.activation.Set(ctx, "foreign", "other "+cred.ID.String(), time.Hour))
	assert.ErrorIs(t, h.svc.ActivateAccount(ctx, "foreign"), apperror.ErrInvalidActivationCode)

	require.NoError(t, codes.Bind(ctx, "late", cred.ID))
	h.advance(2 * time.Hour)
	assert.ErrorIs(t, h.svc.ActivateAccount(ctx, "late"), apperror.ErrInvalidActivationCode)

	require.NoError(t, codes.Bind(ctx, "ghost", uuid.New()))
	assert.ErrorIs(t, h.svc.ActivateAccount(ctx, "ghost"), apperror.ErrUserNotFound)

	stored, _ := h.db.get(cred.ID)
	assert.Equal(t, entity.StatusPending, stored.Status)
}

func TestForgotAndResetPasswordScenario(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	cred := mustRegister(t, h, validInput())

	tok, err := h.svc.ForgotPassword(ctx, "a@b.com")
	require.NoError(t, err)
	assert.Regexp(t, `^[0-9a-f]{64}$`, tok)
	assert.Contains(t, h.reset.keys(), cred.ID.String())

	mail := h.mail.sent[len(h.mail.sent)-1]
	assert.Equal(t, "a@b.com", mail.to)
	assert.Contains(t, mail.body, "token="+tok)
	assert.Contains(t, mail.body, "100 minutes")

	err = h.svc.ResetPassword(ctx, "a@b.com", "NewPassw0rd!", strings.Repeat("0", 64))
	assert.ErrorIs(t, err, apperror.ErrInvalidToken)

	require.NoError(t, h.svc.ResetPassword(ctx, "a@b.com", "NewPassw0rd!", tok))
	assert.NotContains(t, h.reset.keys(), cred.ID.String())

	_, err = h.svc.Login(ctx, "a@b.com", "NewPassw0rd!")
	assert.ErrorIs(t, err, apperror.ErrInvalidCredentials, "still pending")

	activate(t, h, cred.ID)

	_, err = h.svc.Login(ctx, "a@b.com", "Abcdef1!")
	assert.ErrorIs(t, err, apperror.ErrInvalidCredentials)
	_, err = h.svc.Login(ctx, "a@b.com", "NewPassw0rd!")
	assert.NoError(t, err)

	err = h.svc.ResetPassword(ctx, "a@b.com", "Another1!", tok)
	assert.ErrorIs(t, err, apperror.ErrInvalidToken, "token is spent")
}

func TestResetPasswordSpendsTokenBeforeCommit(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	cred := mustRegister(t, h, validInput())
	tok, err := h.svc.ForgotPassword(ctx, "a@b.com")
	require.NoError(t, err)

	// A second reset with the same token arrives while the first still
	// holds the row.
	var second error
	h.db.beforeCommit = func(*memoryDB) {
		assert.NotContains(t, h.reset.keys(), cred.ID.String())
		second = h.svc.ResetPassword(ctx, "a@b.com", "Other0ne!", tok)
	}
	require.NoError(t, h.svc.ResetPassword(ctx, "a@b.com", "NewPassw0rd!", tok))
	assert.ErrorIs(t, second, apperror.ErrInvalidToken)

	activate(t, h, cred.ID)
	_, err = h.svc.Login(ctx, "A@B.COM", "NewPassw0rd!")
	assert.NoError(t, err)
	_, err = h.svc.Login(ctx, "a@b.com", "Other0ne!")
	assert.ErrorIs(t, err, apperror.ErrInvalidCredentials)
}

func TestResetPasswordTokenExpires(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	mustRegister(t, h, validInput())

	tok, err := h.svc.ForgotPassword(ctx, "a@b.com")
	require.NoError(t, err)

	h.advance(6000 * time.Second)

	err = h.svc.ResetPassword(ctx, "a@b.com", "NewPassw0rd!", tok)
	assert.ErrorIs(t, err, apperror.ErrInvalidToken)
}

func TestForgotPasswordReissueReplacesToken(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	mustRegister(t, h, validInput())

	first, err := h.svc.ForgotPassword(ctx, "a@b.com")
	require.NoError(t, err)
	second, err := h.svc.ForgotPassword(ctx, "a@b.com")
	require.NoError(t, err)

	assert.ErrorIs(t, h.svc.ResetPassword(ctx, "a@b.com", "NewPassw0rd!", first), apperror.ErrInvalidToken)
	assert.NoError(t, h.svc.ResetPassword(ctx, "a@b.com", "NewPassw0rd!", second))
}

func TestPasswordResetUnknownEmail(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.svc.ForgotPassword(ctx, "ghost@b.com")
	assert.ErrorIs(t, err, apperror.ErrUserNotFound)

	err = h.svc.ResetPassword(ctx, "ghost@b.com", "NewPassw0rd!", "whatever")
	assert.ErrorIs(t, err, apperror.ErrUserNotFound)

	err = h.svc.ResetPassword(ctx, "a@b.com", "weak", "whatever")
	var ve *apperror.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "password", ve.Field)
}

func TestTokensRoundTrip(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	cred := mustRegister(t, h, validInput())
	activate(t, h, cred.ID)

	pair, err := h.svc.IssueTokens(cred)
	require.NoError(t, err)
	assert.True(t, pair.RefreshTokenExpiry.After(pair.AccessTokenExpiry))

	claims, err := h.svc.Authenticate(ctx, pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, cred.ID.String(), claims.Subject)
	assert.Equal(t, "a@b.com", claims.Email)
	assert.Equal(t, string(entity.RoleUser), claims.Role)

	_, err = h.svc.Authenticate(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, apperror.ErrInvalidToken)

	access, exp, err := h.svc.Refresh(ctx, pair.RefreshToken)
	require.NoError(t, err)
	assert.False(t, exp.IsZero())
	claims, err = h.svc.Authenticate(ctx, access)
	require.NoError(t, err)
	assert.Equal(t, token.Access, claims.Type)

	_, _, err = h.svc.Refresh(ctx, pair.AccessToken)
	assert.ErrorIs(t, err, apperror.ErrInvalidToken)

	_, _, err = h.svc.Refresh(ctx, "garbage")
	assert.ErrorIs(t, err, apperror.ErrInvalidToken)
}

func TestRefreshForMissingCredential(t *testing.T) {
	h := newHarness(t)
	ghost := newPendingCredential(t, validInput())

	pair, err := h.svc.IssueTokens(ghost)
	require.NoError(t, err)

	_, _, err = h.svc.Refresh(context.Background(), pair.RefreshToken)
	assert.ErrorIs(t, err, apperror.ErrInvalidToken)
}

func TestGetByID(t *testing.T) {
	h := newHarness(t)
	cred := mustRegister(t, h, validInput())

	got, err := h.svc.GetByID(context.Background(), cred.ID)
	require.NoError(t, err)
	assert.Equal(t, cred.Email, got.Email)

	_, err = h.svc.GetByID(context.Background(), uuid.New())
	assert.ErrorIs(t, err, apperror.ErrUserNotFound)
}

func TestSearchCredentials(t *testing.T) {
	h := newHarness(t)
	mustRegister(t, h, validInput())

	views, err := h.svc.SearchCredentials(context.Background(), "a@b.com", 10)
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, "Ivan", views[0].FirstName)

	h.svc.indexer = nil
	views, err = h.svc.SearchCredentials(context.Background(), "a@b.com", 10)
	require.NoError(t, err)
	assert.Empty(t, views)
}

func TestNewCredentialServiceRequiresDeps(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	store := newMemoryStore(time.Now)

	_, err := NewCredentialService(Config{}, Deps{})
	assert.Error(t, err)

	_, err = NewCredentialService(Config{}, Deps{
		UnitOfWork:      newMemoryDB(),
		ResetStore:      store,
		ActivationStore: store,
		Events:          &recordingPublisher{},
		Mail:            &recordingMailer{},
		Scheduler:       &inlineScheduler{},
		Logger:          logger,
	})
	assert.ErrorContains(t, err, "token service")
}

func TestWithQuery(t *testing.T) {
	assert.Equal(t, "https://x.io/activate?code=a%2Bb", withQuery("https://x.io/activate", "code", "a+b"))
	assert.Equal(t, "https://x.io/r?lang=en&token=t", withQuery("https://x.io/r?lang=en", "token", "t"))
}

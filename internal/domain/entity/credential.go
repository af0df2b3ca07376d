package entity

import (
	"errors"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/oksasatya/go-credential-service/internal/domain/apperror"
	"github.com/oksasatya/go-credential-service/internal/domain/valueobject"
)

// ErrPasswordNotHashed guards persistence of a credential whose password is
// still plaintext.
var ErrPasswordNotHashed = errors.New("credential password is not hashed")

const maxTimeCallLen = 50

// Credential is the aggregate root for one registered identity.
type Credential struct {
	ID          uuid.UUID
	FirstName   valueobject.FullName
	LastName    valueobject.FullName
	MiddleName  valueobject.FullName
	Email       valueobject.Email
	PhoneNumber valueobject.Phone
	TimeCall    string
	Role        Role
	Status      Status
	CreatedAt   time.Time

	plain        valueobject.Password
	passwordHash string
	cost         int
}

// NewCredentialParams carries validated input for a new registration.
type NewCredentialParams struct {
	FirstName  valueobject.FullName
	LastName   valueobject.FullName
	MiddleName valueobject.FullName
	Email      valueobject.Email
	Password   valueobject.Password
	Phone      valueobject.Phone
	TimeCall   string
}

// NewCredential builds a PENDING USER credential. The password stays in
// plaintext until HashPassword is called.
func NewCredential(p NewCredentialParams) (*Credential, error) {
	if utf8.RuneCountInString(p.TimeCall) > maxTimeCallLen {
		return nil, apperror.Invalid("time_call", p.TimeCall, "must be at most 50 characters")
	}
	return &Credential{
		ID:          uuid.New(),
		FirstName:   p.FirstName,
		LastName:    p.LastName,
		MiddleName:  p.MiddleName,
		Email:       p.Email,
		PhoneNumber: p.Phone,
		TimeCall:    p.TimeCall,
		Role:        RoleUser,
		Status:      StatusPending,
		CreatedAt:   time.Now().UTC(),
		plain:       p.Password,
	}, nil
}

// RestoreParams is the persisted shape of a credential.
type RestoreParams struct {
	ID           uuid.UUID
	FirstName    valueobject.FullName
	LastName     valueobject.FullName
	MiddleName   valueobject.FullName
	Email        valueobject.Email
	PhoneNumber  valueobject.Phone
	TimeCall     string
	Role         Role
	Status       Status
	PasswordHash string
	CreatedAt    time.Time
}

// Restore rebuilds a credential loaded from storage.
func Restore(p RestoreParams) *Credential {
	return &Credential{
		ID:           p.ID,
		FirstName:    p.FirstName,
		LastName:     p.LastName,
		MiddleName:   p.MiddleName,
		Email:        p.Email,
		PhoneNumber:  p.PhoneNumber,
		TimeCall:     p.TimeCall,
		Role:         p.Role,
		Status:       p.Status,
		CreatedAt:    p.CreatedAt,
		passwordHash: p.PasswordHash,
	}
}

// SetHashCost overrides the bcrypt cost used by HashPassword.
func (c *Credential) SetHashCost(cost int) { c.cost = cost }

// HashPassword replaces the stored secret with a bcrypt hash of newPlain, or
// of the pending plaintext when newPlain is nil. With neither present it
// re-hashes whatever is stored, so callers must only pass plaintext.
func (c *Credential) HashPassword(newPlain *valueobject.Password) error {
	secret := c.passwordHash
	switch {
	case newPlain != nil:
		secret = newPlain.Reveal()
	case !c.plain.IsZero():
		secret = c.plain.Reveal()
	}
	cost := c.cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), cost)
	if err != nil {
		return err
	}
	c.passwordHash = string(hash)
	c.plain = valueobject.Password{}
	return nil
}

// VerifyPassword reports whether candidate matches the stored hash.
func (c *Credential) VerifyPassword(candidate string) bool {
	if c.passwordHash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(c.passwordHash), []byte(candidate)) == nil
}

func (c *Credential) IsHashed() bool { return c.passwordHash != "" && c.plain.IsZero() }

func (c *Credential) PasswordHash() string { return c.passwordHash }

func (c *Credential) IsActive() bool { return c.Status == StatusActive }

// Activate moves a PENDING credential to ACTIVE.
func (c *Credential) Activate() error {
	if c.Status == StatusActive {
		return apperror.ErrAccountAlreadyActivated
	}
	c.Status = StatusActive
	return nil
}

// View is the externally safe projection of a credential. It never carries
// the password hash.
type View struct {
	ID          string    `json:"id"`
	FirstName   string    `json:"first_name"`
	LastName    string    `json:"last_name"`
	MiddleName  string    `json:"middle_name,omitempty"`
	Email       string    `json:"email"`
	PhoneNumber string    `json:"phone_number"`
	TimeCall    string    `json:"time_call,omitempty"`
	Role        string    `json:"role"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
}

func (c *Credential) View() View {
	return View{
		ID:          c.ID.String(),
		FirstName:   c.FirstName.String(),
		LastName:    c.LastName.String(),
		MiddleName:  c.MiddleName.String(),
		Email:       c.Email.String(),
		PhoneNumber: c.PhoneNumber.String(),
		TimeCall:    c.TimeCall,
		Role:        string(c.Role),
		Status:      string(c.Status),
		CreatedAt:   c.CreatedAt,
	}
}

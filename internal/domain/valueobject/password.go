package valueobject

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/oksasatya/go-credential-service/internal/domain/apperror"
)

const (
	passwordMinLen   = 8
	passwordMaxLen   = 50
	// bcrypt only accepts 72 bytes of input.
	passwordMaxBytes = 72
	// PasswordSymbols is the set a password must draw at least one symbol from.
	PasswordSymbols  = "!@#$%^&*()-_=+[]{};:'\",.<>/?\\|~`"
)

// Password is a plaintext password that satisfied the strength policy. It
// only lives between the request boundary and hashing.
type Password struct {
	value string
}

func NewPassword(raw string) (Password, error) {
	n := utf8.RuneCountInString(raw)
	if n < passwordMinLen || n > passwordMaxLen {
		return Password{}, apperror.Invalid("password", "", "length must be between 8 and 50 characters")
	}
	if len(raw) > passwordMaxBytes {
		return Password{}, apperror.Invalid("password", "", "must be at most 72 bytes long")
	}
	var upper, lower, digit, symbol bool
	for _, r := range raw {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case strings.ContainsRune(PasswordSymbols, r):
			symbol = true
		}
	}
	switch {
	case !upper:
		return Password{}, apperror.Invalid("password", "", "must contain an uppercase letter")
	case !lower:
		return Password{}, apperror.Invalid("password", "", "must contain a lowercase letter")
	case !digit:
		return Password{}, apperror.Invalid("password", "", "must contain a digit")
	case !symbol:
		return Password{}, apperror.Invalid("password", "", "must contain a special character")
	}
	return Password{value: raw}, nil
}

// Reveal returns the plaintext for hashing.
func (p Password) Reveal() string { return p.value }

// String masks the value so it never reaches logs.
func (p Password) String() string { return "********" }

func (p Password) IsZero() bool { return p.value == "" }

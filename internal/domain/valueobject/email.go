// Package valueobject holds the self-validating scalar wrappers the
// credential aggregate is built from. Every constructor either returns a
// valid value or an *apperror.ValidationError; there are no setters.
package valueobject

import (
	"regexp"
	"strings"

	"github.com/oksasatya/go-credential-service/internal/domain/apperror"
)

var emailPattern = regexp.MustCompile(`^[A-Za-z0-9._%+\-]+@[A-Za-z0-9\-]+(\.[A-Za-z0-9\-]+)*\.[A-Za-z]{2,}$`)

// Email is a syntactically valid mailbox address, kept in lower case so
// lookups and the unique index ignore case.
type Email struct {
	value string
}

func NewEmail(raw string) (Email, error) {
	v := strings.TrimSpace(raw)
	if !emailPattern.MatchString(v) {
		return Email{}, apperror.Invalid("email", raw, "must look like local@domain.tld")
	}
	return Email{value: strings.ToLower(v)}, nil
}

func (e Email) String() string { return e.value }

func (e Email) IsZero() bool { return e.value == "" }

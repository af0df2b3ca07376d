package valueobject

import (
	"unicode"
	"unicode/utf8"

	"github.com/oksasatya/go-credential-service/internal/domain/apperror"
)

// FullName is one component of a person's name: a capitalized word written
// in a single script.
type FullName struct {
	value string
}

func NewFullName(raw string) (FullName, error) {
	return newFullName("name", raw)
}

// NewOptionalFullName accepts an empty string as the absent value.
func NewOptionalFullName(raw string) (FullName, error) {
	if raw == "" {
		return FullName{}, nil
	}
	return newFullName("middle_name", raw)
}

// NewNamedFullName validates raw and reports failures against field.
func NewNamedFullName(field, raw string) (FullName, error) {
	return newFullName(field, raw)
}

func newFullName(field, raw string) (FullName, error) {
	n := utf8.RuneCountInString(raw)
	if n < 2 || n > 100 {
		return FullName{}, apperror.Invalid(field, raw, "length must be between 2 and 100 characters")
	}
	var script *unicode.RangeTable
	for i, r := range raw {
		if !unicode.IsLetter(r) {
			return FullName{}, apperror.Invalid(field, raw, "only letters are allowed")
		}
		s := scriptOf(r)
		if s == nil {
			return FullName{}, apperror.Invalid(field, raw, "only latin or cyrillic letters are allowed")
		}
		if script == nil {
			script = s
		} else if script != s {
			return FullName{}, apperror.Invalid(field, raw, "mixed scripts are not allowed")
		}
		if i == 0 && !unicode.IsUpper(r) {
			return FullName{}, apperror.Invalid(field, raw, "must start with an uppercase letter")
		}
		if i > 0 && !unicode.IsLower(r) {
			return FullName{}, apperror.Invalid(field, raw, "only the first letter may be uppercase")
		}
	}
	return FullName{value: raw}, nil
}

func scriptOf(r rune) *unicode.RangeTable {
	switch {
	case unicode.Is(unicode.Latin, r):
		return unicode.Latin
	case unicode.Is(unicode.Cyrillic, r):
		return unicode.Cyrillic
	default:
		return nil
	}
}

func (n FullName) String() string { return n.value }

func (n FullName) IsZero() bool { return n.value == "" }

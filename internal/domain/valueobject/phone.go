package valueobject

import "github.com/oksasatya/go-credential-service/internal/domain/apperror"

// Phone is an 11 digit national number starting with 7 or 8.
type Phone struct {
	value string
}

func NewPhone(raw string) (Phone, error) {
	if len(raw) != 11 || (raw[0] != '7' && raw[0] != '8') {
		return Phone{}, apperror.Invalid("phone_number", raw, "must be 11 digits starting with 7 or 8")
	}
	for i := 0; i < len(raw); i++ {
		if raw[i] < '0' || raw[i] > '9' {
			return Phone{}, apperror.Invalid("phone_number", raw, "must contain digits only")
		}
	}
	return Phone{value: raw}, nil
}

func (p Phone) String() string { return p.value }

func (p Phone) IsZero() bool { return p.value == "" }

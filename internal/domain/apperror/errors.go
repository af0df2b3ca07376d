// Package apperror defines the error taxonomy shared by every layer of the
// credential service. Callers match errors by kind or by sentinel code and
// never by storage-engine specific failures.
package apperror

import (
	"errors"
	"fmt"
)

// Kind groups errors by how a caller is expected to react to them.
type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindConflict
	KindNotFound
	KindAuth
	KindInfrastructure
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	case KindNotFound:
		return "not_found"
	case KindAuth:
		return "auth"
	case KindInfrastructure:
		return "infrastructure"
	default:
		return "unknown"
	}
}

const (
	CodeUserAlreadyExists       = "USER_ALREADY_EXISTS"
	CodeAccountAlreadyActivated = "ACCOUNT_ALREADY_ACTIVATED"
	CodeUserNotFound            = "USER_NOT_FOUND"
	CodeInvalidCredentials      = "INVALID_CREDENTIALS"
	CodeInvalidToken            = "INVALID_TOKEN"
	CodeInvalidActivationCode   = "INVALID_ACTIVATION_CODE"
	CodeStorage                 = "STORAGE_ERROR"
	CodeCache                   = "CACHE_ERROR"
)

// Error is a classified application error. Two errors are equal under
// errors.Is when their codes match, so sentinels survive WithCause copies.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Op      string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code != "" && t.Code == e.Code
}

// WithCause returns a copy of e that wraps cause.
func (e *Error) WithCause(cause error) *Error {
	cp := *e
	cp.Err = cause
	return &cp
}

// WithOp returns a copy of e annotated with the failing operation.
func (e *Error) WithOp(op string) *Error {
	cp := *e
	cp.Op = op
	return &cp
}

var (
	ErrUserAlreadyExists = &Error{Kind: KindConflict, Code: CodeUserAlreadyExists, Message: "user already exists"}
	ErrAccountAlreadyActivated = &Error{
		Kind: KindConflict, Code: CodeAccountAlreadyActivated, Message: "account already activated",
	}
	ErrUserNotFound       = &Error{Kind: KindNotFound, Code: CodeUserNotFound, Message: "user not found"}
	ErrInvalidCredentials = &Error{Kind: KindAuth, Code: CodeInvalidCredentials, Message: "invalid email or password"}
	ErrInvalidToken       = &Error{Kind: KindAuth, Code: CodeInvalidToken, Message: "invalid token"}
	ErrInvalidActivationCode = &Error{
		Kind: KindAuth, Code: CodeInvalidActivationCode, Message: "invalid or expired activation code",
	}
)

// Storage wraps a persistence failure. The cause is kept for logging.
func Storage(op string, err error) error {
	return &Error{Kind: KindInfrastructure, Code: CodeStorage, Message: "storage failure", Op: op, Err: err}
}

// Cache wraps an ephemeral store failure.
func Cache(op string, err error) error {
	return &Error{Kind: KindInfrastructure, Code: CodeCache, Message: "cache failure", Op: op, Err: err}
}

// ValidationError reports a malformed input value.
type ValidationError struct {
	Field  string
	Raw    string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("invalid %s", e.Field)
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Invalid builds a ValidationError.
func Invalid(field, raw, reason string) *ValidationError {
	return &ValidationError{Field: field, Raw: raw, Reason: reason}
}

// KindOf classifies err. Unclassified errors are KindUnknown.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		return KindValidation
	}
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindUnknown
}

// IsInfrastructure reports whether err is a storage or cache failure.
func IsInfrastructure(err error) bool {
	return KindOf(err) == KindInfrastructure
}

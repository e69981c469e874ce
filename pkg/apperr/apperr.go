// Package apperr defines the error taxonomy shared by the services. Every
// failure a caller can act on is an *Error with a Kind; anything else is an
// unexpected infrastructure error and is reported as a generic 500.
package apperr

import (
	"errors"
	"fmt"
)

type Kind int

const (
	KindValidation Kind = iota + 1
	KindNotFound
	KindExpired
	KindInvalidCode
	KindInvalidToken
	KindForbidden
	KindUnauthorized
	KindInvalidTransition
	KindTooManyAttempts
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindExpired:
		return "expired"
	case KindInvalidCode:
		return "invalid_code"
	case KindInvalidToken:
		return "invalid_token"
	case KindForbidden:
		return "forbidden"
	case KindUnauthorized:
		return "unauthorized"
	case KindInvalidTransition:
		return "invalid_transition"
	case KindTooManyAttempts:
		return "too_many_attempts"
	default:
		return "unknown"
	}
}

type Error struct {
	Kind    Kind
	Message string
	// Code overrides the default machine-readable code for the kind.
	Code string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// WithCode returns a copy of e carrying code. e itself is left untouched,
// so package-level sentinels can be specialised safely. errors.Is on an
// *Error compares identity; use IsKind to match a whole kind.
func (e *Error) WithCode(code string) *Error {
	cp := *e
	cp.Code = code
	return &cp
}

func newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Validation(format string, args ...any) *Error {
	return newf(KindValidation, format, args...)
}

func NotFound(format string, args ...any) *Error {
	return newf(KindNotFound, format, args...)
}

func Expired(format string, args ...any) *Error {
	return newf(KindExpired, format, args...)
}

func InvalidCode(format string, args ...any) *Error {
	return newf(KindInvalidCode, format, args...)
}

func InvalidToken(format string, args ...any) *Error {
	return newf(KindInvalidToken, format, args...)
}

func Forbidden(format string, args ...any) *Error {
	return newf(KindForbidden, format, args...)
}

func Unauthorized(format string, args ...any) *Error {
	return newf(KindUnauthorized, format, args...)
}

func InvalidTransition(format string, args ...any) *Error {
	return newf(KindInvalidTransition, format, args...)
}

func TooManyAttempts(format string, args ...any) *Error {
	return newf(KindTooManyAttempts, format, args...)
}

// KindOf returns the kind of the first *Error in err's chain, or 0.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

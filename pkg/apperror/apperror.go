// Package apperror is the shared error taxonomy. Domain packages declare
// sentinel *Error values and compare them with errors.Is; handlers map the
// Kind onto an HTTP status.
package apperror

import (
	"errors"
	"net/http"
)

type Kind string

const (
	KindValidation Kind = "validation"
	KindAuth       Kind = "auth"
	KindForbidden  Kind = "forbidden"
	KindConflict   Kind = "conflict"
	KindNotFound   Kind = "not_found"
	KindExternal   Kind = "external"
	KindStore      Kind = "store"
)

// Error carries a kind, a stable machine code and a user-facing message.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Details []string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on Code so wrapped copies of a sentinel still compare equal.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code != "" && e.Code == t.Code
}

func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// Wrap returns a copy of sentinel with cause attached.
func Wrap(sentinel *Error, cause error) *Error {
	cp := *sentinel
	cp.Err = cause
	return &cp
}

// WithDetails returns a copy of sentinel with field level details.
func WithDetails(sentinel *Error, details []string) *Error {
	cp := *sentinel
	cp.Details = details
	return &cp
}

// Validation builds an ad-hoc validation error.
func Validation(message string) *Error {
	return &Error{Kind: KindValidation, Code: "invalid_input", Message: message}
}

// Store wraps a storage failure; the cause is kept for logs only.
func Store(cause error) *Error {
	return &Error{Kind: KindStore, Code: "store_unavailable", Message: "internal error", Err: cause}
}

// External wraps a failed third-party call.
func External(code, message string, cause error) *Error {
	return &Error{Kind: KindExternal, Code: code, Message: message, Err: cause}
}

// As extracts an *Error from err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf reports the kind of err, KindStore when err is not classified.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return KindStore
}

func HTTPStatus(kind Kind) int {
	switch kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindAuth:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindConflict:
		return http.StatusConflict
	case KindNotFound:
		return http.StatusNotFound
	case KindExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// KindFromStatus is the inverse of HTTPStatus, used when decoding error bodies.
func KindFromStatus(status int) Kind {
	switch status {
	case http.StatusBadRequest, http.StatusRequestEntityTooLarge, http.StatusUnsupportedMediaType:
		return KindValidation
	case http.StatusUnauthorized:
		return KindAuth
	case http.StatusForbidden:
		return KindForbidden
	case http.StatusConflict:
		return KindConflict
	case http.StatusNotFound:
		return KindNotFound
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return KindExternal
	default:
		return KindStore
	}
}

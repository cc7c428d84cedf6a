// Package apperror defines the error kinds shared by the realtime core and
// the HTTP layer.
package apperror

import (
	"errors"
	"net/http"
)

// Kind classifies an error by how it is reported to the caller.
type Kind string

const (
	KindAuthentication Kind = "authentication"
	KindAuthorization  Kind = "authorization"
	KindValidation     Kind = "validation"
	KindPersistence    Kind = "persistence"
)

// Error is a classified error carrying a client-safe message.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return string(e.Kind) + ": " + e.Message + ": " + e.Err.Error()
	}
	return string(e.Kind) + ": " + e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// HTTPStatus maps the kind onto the status codes used by the handlers.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindAuthentication:
		return http.StatusUnauthorized
	case KindAuthorization:
		return http.StatusForbidden
	case KindValidation:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func Authentication(message string, err error) *Error {
	return Wrap(KindAuthentication, message, err)
}

func Authorization(message string) *Error {
	return New(KindAuthorization, message)
}

func Validation(message string) *Error {
	return New(KindValidation, message)
}

func Persistence(message string, err error) *Error {
	return Wrap(KindPersistence, message, err)
}

// IsKind reports whether err, or anything it wraps, is an *Error of kind.
func IsKind(err error, kind Kind) bool {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind == kind
	}
	return false
}

// Message returns the client-safe message of err, or fallback when err is
// not an *Error.
func Message(err error, fallback string) string {
	var appErr *Error
	if errors.As(err, &appErr) && appErr.Message != "" {
		return appErr.Message
	}
	return fallback
}

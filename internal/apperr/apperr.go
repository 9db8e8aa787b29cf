// Package apperr holds the caller-facing error categories shared by the
// store-backed services and the external database query, and maps them to
// HTTP status codes.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is a caller-facing error category.
type Kind int

const (
	KindGeneric Kind = iota
	KindNotFound
	KindUnauthorized
	KindUnauthenticated
	KindBadRequest
	KindDatabaseConnection
	KindTableNotFound
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindUnauthorized:
		return "unauthorized"
	case KindUnauthenticated:
		return "unauthenticated"
	case KindBadRequest:
		return "bad_request"
	case KindDatabaseConnection:
		return "database_connection"
	case KindTableNotFound:
		return "table_not_found"
	default:
		return "generic"
	}
}

// Error is an error with a category and a message safe to show to callers.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func newf(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// NotFound reports a missing record or one outside the caller's company.
func NotFound(format string, args ...any) error {
	return newf(KindNotFound, format, args...)
}

// Unauthorized reports a failed access check on an existing record.
func Unauthorized(format string, args ...any) error {
	return newf(KindUnauthorized, format, args...)
}

// Unauthenticated reports a request without a valid session.
func Unauthenticated(format string, args ...any) error {
	return newf(KindUnauthenticated, format, args...)
}

// BadRequest reports invalid caller input.
func BadRequest(format string, args ...any) error {
	return newf(KindBadRequest, format, args...)
}

// TableNotFound reports a table missing from an external database.
func TableNotFound(format string, args ...any) error {
	return newf(KindTableNotFound, format, args...)
}

// DatabaseConnection wraps a driver error raised while reaching a database.
func DatabaseConnection(err error) error {
	msg := "database connection failed"
	if err != nil {
		msg = err.Error()
	}
	return &Error{Kind: KindDatabaseConnection, Message: msg, Err: err}
}

// KindOf returns the category of err, KindGeneric when err carries none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindGeneric
}

// Is reports whether err carries the given category.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Status maps err to the HTTP status code returned to callers.
func Status(err error) int {
	switch KindOf(err) {
	case KindNotFound, KindTableNotFound:
		return http.StatusNotFound
	case KindUnauthorized:
		return http.StatusForbidden
	case KindUnauthenticated:
		return http.StatusUnauthorized
	case KindBadRequest:
		return http.StatusBadRequest
	case KindDatabaseConnection:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage returns the message to put in an error response body.
// Generic errors never leak their text.
func PublicMessage(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Kind != KindGeneric {
		return e.Message
	}
	return "Internal server error"
}

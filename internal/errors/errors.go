// Package errors provides coded application errors shared by the service and
// repository layers, plus translation of backend constraint violations into
// business-level errors.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5/pgconn"
)

// ErrorCode classifies an error for the HTTP layer and for callers that
// branch on failure mode.
type ErrorCode string

const (
	ErrCodeValidation   ErrorCode = "VALIDATION"
	ErrCodeNotFound     ErrorCode = "NOT_FOUND"
	ErrCodeConflict     ErrorCode = "CONFLICT"
	ErrCodeUnauthorized ErrorCode = "UNAUTHORIZED"
	ErrCodeInternal     ErrorCode = "INTERNAL"
)

// pgUniqueViolation is the PostgreSQL error code for unique_violation.
const pgUniqueViolation = "23505"

// Error is a coded application error.
type Error struct {
	Code    ErrorCode
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New creates a coded error.
func New(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates a coded error with a formatted message.
func Newf(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap annotates err with a code and message, preserving the cause chain.
func Wrap(err error, code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message, cause: err}
}

// NotFound reports a missing resource.
func NotFound(resource, id string) *Error {
	return Newf(ErrCodeNotFound, "%s not found: %s", resource, id)
}

// InvalidInput reports a validation failure on a named field.
func InvalidInput(field, message string) *Error {
	return Newf(ErrCodeValidation, "%s: %s", field, message)
}

// Conflict reports a business-state conflict.
func Conflict(message string) *Error {
	return New(ErrCodeConflict, message)
}

// CodeOf extracts the error code, defaulting to internal for untyped errors.
func CodeOf(err error) ErrorCode {
	var appErr *Error
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrCodeInternal
}

// MessageOf extracts the user-facing message, hiding internals for untyped errors.
func MessageOf(err error) string {
	var appErr *Error
	if stderrors.As(err, &appErr) {
		return appErr.Message
	}
	return "internal error"
}

// IsUniqueViolation reports whether err is a PostgreSQL unique-constraint
// violation, optionally restricted to a specific constraint name.
func IsUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !stderrors.As(err, &pgErr) {
		return false
	}
	if pgErr.Code != pgUniqueViolation {
		return false
	}
	return constraint == "" || pgErr.ConstraintName == constraint
}

// HTTPStatus maps an error to the HTTP status the handler should respond with.
func HTTPStatus(err error) int {
	switch CodeOf(err) {
	case ErrCodeValidation:
		return http.StatusBadRequest
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeConflict:
		return http.StatusConflict
	case ErrCodeUnauthorized:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

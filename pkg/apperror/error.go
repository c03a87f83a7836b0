// Package apperror defines the failure categories the API reports and how
// each one is rendered.
package apperror

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
)

// Error is a categorised failure. Code is the stable machine-readable
// category; Message is safe to show to the caller. Internal never leaves
// the process.
type Error struct {
	HTTPStatus int
	Code       string
	Message    string
	Internal   error
	Details    map[string]any
}

func New(status int, code, message string) *Error {
	return &Error{HTTPStatus: status, Code: code, Message: message}
}

func (e *Error) Error() string {
	if e.Internal == nil {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Internal)
}

func (e *Error) Unwrap() error { return e.Internal }

// Is compares categories, so errors.Is(err, ErrIntegrity) holds for any
// copy produced by the With helpers.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

func (e *Error) clone() *Error {
	c := *e
	return &c
}

// WithInternal attaches a cause for logs.
func (e *Error) WithInternal(err error) *Error {
	c := e.clone()
	c.Internal = err
	return c
}

func (e *Error) WithMessage(message string) *Error {
	c := e.clone()
	c.Message = message
	return c
}

// WithDetails replaces the details rendered as the envelope's data.
func (e *Error) WithDetails(details map[string]any) *Error {
	c := e.clone()
	c.Details = details
	return c
}

func (e *Error) envelope() Envelope {
	env := Envelope{Success: false, Message: e.Message, Code: e.Code}
	if len(e.Details) > 0 {
		env.Data = e.Details
	}
	return env
}

// ToEchoError wraps the failure envelope in an echo.HTTPError.
func (e *Error) ToEchoError() *echo.HTTPError {
	return echo.NewHTTPError(e.HTTPStatus, e.envelope())
}

// ToHTTPError resolves any error to a status and failure envelope. Errors
// outside this package are reported as internal_error without their text.
func ToHTTPError(err error) (int, Envelope) {
	if appErr, ok := err.(*Error); ok {
		return appErr.HTTPStatus, appErr.envelope()
	}
	return ErrInternal.HTTPStatus, ErrInternal.envelope()
}

var (
	ErrUnauthorized = New(http.StatusUnauthorized, "unauthorized", "Authentication required")
	ErrInvalidToken = New(http.StatusUnauthorized, "invalid_token", "Invalid or expired token")
	ErrForbidden    = New(http.StatusForbidden, "forbidden", "Access denied")

	ErrCSRFMissing = New(http.StatusForbidden, "csrf_missing", "CSRF token missing")
	ErrCSRFInvalid = New(http.StatusForbidden, "csrf_invalid", "Invalid CSRF token")

	ErrRateLimited = New(http.StatusTooManyRequests, "rate_limited", "Too many requests. Please try again later.")

	ErrNotFound   = New(http.StatusNotFound, "not_found", "Resource not found")
	ErrIntegrity  = New(http.StatusConflict, "integrity_violation", "Operation would violate the ticket hierarchy")
	ErrBadRequest = New(http.StatusBadRequest, "bad_request", "Invalid request")
	ErrValidation = New(http.StatusUnprocessableEntity, "validation_error", "Validation failed")

	// the child ticket exists but has no parent
	ErrCreatedNotLinked = New(http.StatusMultiStatus, "created_not_linked", "Ticket was created but could not be linked")

	ErrInternal = New(http.StatusInternalServerError, "internal_error", "An internal error occurred")
	ErrDatabase = New(http.StatusInternalServerError, "database_error", "Database operation failed")
)

func NewBadRequest(message string) *Error {
	return ErrBadRequest.WithMessage(message)
}

// NewValidation reports the offending field as data.field.
func NewValidation(field, message string) *Error {
	return ErrValidation.WithMessage(message).WithDetails(map[string]any{"field": field})
}

func NewNotFound(resource, id string) *Error {
	return ErrNotFound.WithMessage(fmt.Sprintf("%s '%s' not found", resource, id))
}

package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error represents a typed domain error with HTTP awareness.
type Error struct {
	Code    string   `json:"code"`
	Message string   `json:"message"`
	Status  int      `json:"status"`
	Details []string `json:"details,omitempty"`
	Err     error    `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches errors of the same category so errors.Is works against the predefined values.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) || e == nil || t == nil {
		return false
	}
	return e.Code == t.Code
}

// New creates a new Error instance.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap attaches context to an existing error.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

// Predefined errors, one per failure category callers must handle distinctly.
var (
	ErrNotFound      = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrForbidden     = New("FORBIDDEN", http.StatusForbidden, "forbidden")
	ErrValidation    = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrRateLimited   = New("TOO_MANY_REQUESTS", http.StatusTooManyRequests, "too many requests, try again later")
	ErrTransport     = New("MAIL_TRANSPORT_ERROR", http.StatusBadGateway, "could not deliver your request, please try again later")
	ErrFilesystem    = New("FILESYSTEM_ERROR", http.StatusInternalServerError, "filesystem error")
	ErrConfiguration = New("CONFIGURATION_ERROR", http.StatusInternalServerError, "invalid configuration")
	ErrInternal      = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")
	ErrCacheMiss     = New("CACHE_MISS", http.StatusNotFound, "cache miss")
)

// FromError normalises any error into an *Error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, ErrInternal.Message)
}

// Clone returns a copy of the error allowing for message overrides.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	if message != "" {
		clone.Message = message
	}
	clone.Details = append([]string(nil), err.Details...)
	return &clone
}

// WithDetails returns a copy of err carrying the given detail lines.
func WithDetails(err *Error, details ...string) *Error {
	clone := Clone(err, "")
	if clone == nil {
		return nil
	}
	clone.Details = append(clone.Details, details...)
	return clone
}

// IsCategory reports whether err belongs to the category of target.
func IsCategory(err error, target *Error) bool {
	var e *Error
	if !errors.As(err, &e) || target == nil {
		return false
	}
	return e.Code == target.Code
}

package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

// Error carries the HTTP mapping for a failure that is safe to show callers.
type Error struct {
	Status int
	Code   string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	if e.Code != "" {
		return e.Code
	}
	if e.Status != 0 {
		return fmt.Sprintf("api error (%d)", e.Status)
	}
	return "api error"
}

func (e *Error) Unwrap() error { return e.Err }

func New(status int, code string, err error) *Error {
	return &Error{Status: status, Code: code, Err: err}
}

// Review pipeline error classes. Wrap them with fmt.Errorf("...: %w", Err...)
// and classify with errors.Is.
var (
	ErrValidation          = errors.New("validation error")
	ErrTransientExtraction = errors.New("transient extraction error")
	ErrFatalPipeline       = errors.New("fatal pipeline error")
	ErrTimeout             = errors.New("review timed out")
	ErrAccessDenied        = errors.New("access denied")
	ErrNotFound            = errors.New("not found")
	ErrInvalidState        = errors.New("invalid state")
	ErrRateLimited         = errors.New("rate limited")
	ErrUnauthorized        = errors.New("unauthorized")
)

// From maps err onto an *Error. Errors that already carry a mapping keep it;
// unknown errors become a 500 with the supplied fallback code.
func From(err error, fallbackCode string) *Error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return ae
	}
	switch {
	case errors.Is(err, ErrValidation):
		return New(http.StatusBadRequest, "validation_error", err)
	case errors.Is(err, ErrUnauthorized):
		return New(http.StatusUnauthorized, "unauthorized", err)
	case errors.Is(err, ErrAccessDenied):
		return New(http.StatusForbidden, "access_denied", err)
	case errors.Is(err, ErrNotFound):
		return New(http.StatusNotFound, "not_found", err)
	case errors.Is(err, ErrInvalidState):
		return New(http.StatusUnprocessableEntity, "invalid_state", err)
	case errors.Is(err, ErrRateLimited):
		return New(http.StatusTooManyRequests, "rate_limited", err)
	}
	if fallbackCode == "" {
		fallbackCode = "internal_error"
	}
	return New(http.StatusInternalServerError, fallbackCode, err)
}

package service

import "errors"

// ErrNonRetryable marks worker failures that must not be redelivered.
var ErrNonRetryable = errors.New("non-retryable error")

// Request-level taxonomy, mapped to HTTP status codes by the handlers.
var (
	ErrValidation   = errors.New("validation error")
	ErrNotFound     = errors.New("not found")
	ErrInvalidState = errors.New("invalid state")
	ErrForbidden    = errors.New("forbidden")
)

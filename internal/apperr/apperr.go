// Package apperr defines the error taxonomy shared by the HTTP API and the
// real-time broker so both surfaces report failures uniformly.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel kinds. Wrap one of these with fmt.Errorf("...: %w", ErrX) and
// callers can recover the kind with errors.Is.
var (
	ErrAuthFailure       = errors.New("auth failure")
	ErrNotFound          = errors.New("not found")
	ErrStateConflict     = errors.New("state conflict")
	ErrCapacityExhausted = errors.New("capacity exhausted")
	ErrCrypto            = errors.New("crypto failure")
	ErrStorage           = errors.New("storage failure")
	ErrValidation        = errors.New("validation failure")
)

// Error carries an app-level kind plus a human message, and knows the HTTP
// status it should surface as.
type Error struct {
	Kind    error
	Status  int
	Message string
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Kind.Error()
}

func (e *Error) Unwrap() error { return e.Kind }

func New(kind error, status int, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Status: status, Message: fmt.Sprintf(format, args...)}
}

func AuthFailure(format string, args ...interface{}) *Error {
	return New(ErrAuthFailure, http.StatusForbidden, format, args...)
}

func NotFound(format string, args ...interface{}) *Error {
	return New(ErrNotFound, http.StatusNotFound, format, args...)
}

func Gone(format string, args ...interface{}) *Error {
	return New(ErrNotFound, http.StatusGone, format, args...)
}

func StateConflict(format string, args ...interface{}) *Error {
	return New(ErrStateConflict, http.StatusBadRequest, format, args...)
}

func CapacityExhausted(status int, format string, args ...interface{}) *Error {
	return New(ErrCapacityExhausted, status, format, args...)
}

func Crypto(format string, args ...interface{}) *Error {
	return New(ErrCrypto, http.StatusInternalServerError, format, args...)
}

func Storage(format string, args ...interface{}) *Error {
	return New(ErrStorage, http.StatusInternalServerError, format, args...)
}

func Validation(status int, format string, args ...interface{}) *Error {
	return New(ErrValidation, status, format, args...)
}

// StatusCode extracts the HTTP status for any error, defaulting to 500 for
// errors that were never wrapped into an *Error.
func StatusCode(err error) int {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Status
	}
	return http.StatusInternalServerError
}

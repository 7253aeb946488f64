// Package apperr classifies failures so handlers can map them to HTTP
// statuses without inspecting error strings.
package apperr

import (
	"errors"
	"net/http"
)

// Kind is the failure class of an Error.
type Kind int

const (
	// KindStorage is an unclassified persistence failure.
	KindStorage Kind = iota
	// KindValidation is a malformed request; nothing was mutated.
	KindValidation
	// KindPrecondition means the caller must trigger a source renewal first.
	KindPrecondition
	// KindNotFound means no matching resource was available.
	KindNotFound
)

// Error carries a user-facing message plus the failure kind.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return "unknown error"
}

func (e *Error) Unwrap() error { return e.Err }

// HTTPStatus maps the failure kind to a response status.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindPrecondition:
		return http.StatusUpgradeRequired
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// Validation builds a request-rejection error.
func Validation(msg string) *Error {
	return &Error{Kind: KindValidation, Message: msg}
}

// Precondition builds an update-required error.
func Precondition(msg string) *Error {
	return &Error{Kind: KindPrecondition, Message: msg}
}

// NotFound builds a no-matching-resource error.
func NotFound(msg string) *Error {
	return &Error{Kind: KindNotFound, Message: msg}
}

// Storage wraps an unclassified persistence failure.
func Storage(err error) *Error {
	return &Error{Kind: KindStorage, Err: err}
}

// StatusFor resolves the HTTP status for any error, defaulting to 500.
func StatusFor(err error) int {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.HTTPStatus()
	}
	return http.StatusInternalServerError
}

// IsKind reports whether err is an Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var appErr *Error
	return errors.As(err, &appErr) && appErr.Kind == kind
}

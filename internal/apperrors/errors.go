// Package apperrors defines the error taxonomy shared by the validation
// layer, the lifecycle engine and the store adapters, and its mapping to
// HTTP status codes.
package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindNotFound
	KindUnauthorized
	KindConflict
	KindStore
	KindConfiguration
)

type Error struct {
	Kind  Kind
	Field string // set for validation errors
	Msg   string
	Err   error
}

func (e *Error) Error() string {
	if e.Msg != "" {
		return e.Msg
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return "unknown error"
}

func (e *Error) Unwrap() error { return e.Err }

// Validation reports a user-correctable input failure on a named field.
func Validation(field, format string, args ...any) error {
	return &Error{Kind: KindValidation, Field: field, Msg: fmt.Sprintf(format, args...)}
}

func NotFound(format string, args ...any) error {
	return &Error{Kind: KindNotFound, Msg: fmt.Sprintf(format, args...)}
}

func Unauthorized(msg string) error {
	return &Error{Kind: KindUnauthorized, Msg: msg}
}

func Conflict(format string, args ...any) error {
	return &Error{Kind: KindConflict, Msg: fmt.Sprintf(format, args...)}
}

// Store wraps an underlying persistence failure. The original error stays
// available for logging via Unwrap but is never surfaced to clients.
func Store(err error) error {
	return &Error{Kind: KindStore, Msg: "storage operation failed", Err: err}
}

func Configuration(msg string) error {
	return &Error{Kind: KindConfiguration, Msg: msg}
}

// KindOf extracts the taxonomy kind from an error chain.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindUnknown
}

func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// HTTPStatus maps each taxonomy entry to exactly one status code.
// Unclassified errors map to 500.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// ClientMessage is the message surfaced in an HTTP error body. Store and
// configuration failures are reduced to a generic message so internals do
// not leak.
func ClientMessage(err error) string {
	switch KindOf(err) {
	case KindStore, KindConfiguration, KindUnknown:
		return "internal server error"
	default:
		return err.Error()
	}
}

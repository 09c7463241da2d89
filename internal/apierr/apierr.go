// Package apierr classifies the error kinds named in the exchange's error
// handling design so the API layer can map any error returned by
// admission, escrow checks, or settlement to the right HTTP status and
// response body without type-switching on every concrete error.
package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is one of the exchange's error categories.
type Kind string

const (
	Validation           Kind = "validation"
	InsufficientEscrow   Kind = "insufficient_escrow"
	NotFound             Kind = "not_found"
	TransientChain       Kind = "transient_chain"
	PermanentChain       Kind = "permanent_chain"
	AsymmetricSettlement Kind = "asymmetric_settlement"
	ConfigError          Kind = "config_error"
)

// Error is a classified error: a Kind the API layer switches on, plus the
// underlying cause for logs.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New creates a classified error with no wrapped cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap creates a classified error around an existing error.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// KindOf extracts the Kind from err if it (or something it wraps) is an
// *Error. The second return is false for unclassified errors, which
// callers should treat as an internal error.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// HTTPStatus maps a Kind to the status code the API layer responds with.
func HTTPStatus(kind Kind) int {
	switch kind {
	case Validation, ConfigError:
		return http.StatusBadRequest
	case InsufficientEscrow:
		return http.StatusPaymentRequired
	case NotFound:
		return http.StatusNotFound
	case TransientChain:
		return http.StatusServiceUnavailable
	case PermanentChain, AsymmetricSettlement:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

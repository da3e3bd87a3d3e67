package provider

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates the provider has no record of the requested resource.
	ErrNotFound = errors.New("billing provider resource not found")
	// ErrNotSupported indicates the adapter does not offer the requested operation.
	ErrNotSupported = errors.New("operation not supported by billing provider")
)

// Stable codes used when the underlying SDK error carries no code of its
// own. Provider-specific codes (for example Stripe decline codes) pass
// through untouched.
const (
	CodeNotSupported = "not_supported"
	CodeUnavailable  = "provider_unavailable"
)

// Error describes a failure reported by the billing provider. Code carries
// the provider's machine-readable error code when one is available, Message
// a human-readable description safe to log.
type Error struct {
	Code    string
	Message string

	err error
}

// NewError builds a provider Error wrapping cause. The cause (and anything
// joined into it) stays reachable through errors.Is and errors.As.
func NewError(code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, err: cause}
}

func (e *Error) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("billing provider: %s", e.Message)
	}
	return fmt.Sprintf("billing provider: %s (code %s)", e.Message, e.Code)
}

func (e *Error) Unwrap() error { return e.err }

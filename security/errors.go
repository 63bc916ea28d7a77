package security

import (
	"errors"
	"fmt"
)

var (
	// ErrTooManyLegs is wrapped by AuthenticationError when the server keeps
	// challenging past the configured leg limit.
	ErrTooManyLegs = errors.New("negotiation exceeded the maximum number of legs")

	// ErrUnexpectedStatus is wrapped by AuthenticationError when a provider
	// step returns a status that is not valid for the current state.
	ErrUnexpectedStatus = errors.New("unexpected provider status")

	// ErrUnsupportedMechanism is returned by provider factories for a
	// mechanism that is not available on this platform.
	ErrUnsupportedMechanism = errors.New("security mechanism not supported on this platform")
)

// State is a negotiation state.
type State int

const (
	StateInit State = iota
	StateContinuing
	StateFinalizing
	StateEstablished
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateContinuing:
		return "continuing"
	case StateFinalizing:
		return "finalizing"
	case StateEstablished:
		return "established"
	default:
		return "unknown"
	}
}

// AuthenticationError reports that the negotiated-security provider could
// not continue the exchange. No session is retained.
type AuthenticationError struct {
	// State is the negotiation state the failure occurred in.
	State State

	// Leg is the number of messages sent before the failure.
	Leg int

	// Status is the last provider status.
	Status Status

	Err error
}

// Error implements the error interface.
func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("security: authentication failed (state=%s leg=%d status=%s): %v",
		e.State, e.Leg, e.Status, e.Err)
}

// Unwrap returns the underlying error.
func (e *AuthenticationError) Unwrap() error {
	return e.Err
}

// ValidationError reports that the server's authenticator did not match the
// value computed over the exchange. It is always fatal.
type ValidationError struct {
	Reason string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return "security: authenticator validation failed: " + e.Reason
}

// IsAuthenticationError returns true if err is an AuthenticationError.
func IsAuthenticationError(err error) bool {
	var e *AuthenticationError
	return errors.As(err, &e)
}

// IsValidationError returns true if err is a ValidationError.
func IsValidationError(err error) bool {
	var e *ValidationError
	return errors.As(err, &e)
}

package transport

import (
	"errors"
	"fmt"
)

// ErrEmptyResponse is wrapped by Error when the server answered with an
// error status and no body.
var ErrEmptyResponse = errors.New("empty response body")

// Error reports a failure to exchange a message: the connection could not
// be made, the deadline passed, or the response could not be read. Callers
// may retry the operation.
type Error struct {
	// Op is the failed step ("create request", "request", "read response").
	Op string

	// URL is the endpoint that was called.
	URL string

	// StatusCode is set when the server answered with an error status and
	// no body.
	StatusCode int

	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("transport: %s %s: HTTP %d: %v", e.Op, e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("transport: %s %s: %v", e.Op, e.URL, e.Err)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Timeout reports whether the failure was a deadline or timeout.
func (e *Error) Timeout() bool {
	var t interface{ Timeout() bool }
	return errors.As(e.Err, &t) && t.Timeout()
}

// StatusError is returned together with the response body when the server
// answers with an HTTP error status. The body usually holds a SOAP fault.
type StatusError struct {
	StatusCode int
	Status     string
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	return "transport: HTTP " + e.Status
}

// IsUnauthorized returns true for 401 and 403 responses.
func (e *StatusError) IsUnauthorized() bool {
	return e.StatusCode == 401 || e.StatusCode == 403
}

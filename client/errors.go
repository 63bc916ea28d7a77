package client

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/smnsjas/go-xrm/security"
	"github.com/smnsjas/go-xrm/soap"
	"github.com/smnsjas/go-xrm/soap/transport"
)

// ErrClosed is returned by operations on a closed client.
var ErrClosed = errors.New("client: closed")

// ErrorKind classifies an operation error.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindCanceled
	KindTimeout
	KindTransport
	KindAuthentication
	KindValidation
	KindAuthFault
	KindFault
	KindSerialization
)

func (k ErrorKind) String() string {
	switch k {
	case KindCanceled:
		return "canceled"
	case KindTimeout:
		return "timeout"
	case KindTransport:
		return "transport"
	case KindAuthentication:
		return "authentication"
	case KindValidation:
		return "validation"
	case KindAuthFault:
		return "auth_fault"
	case KindFault:
		return "fault"
	case KindSerialization:
		return "serialization"
	default:
		return "unknown"
	}
}

// KindOf classifies err. The most specific kind wins: a fault decoded from
// an HTTP error response is a fault, not a transport error.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindUnknown
	}

	var f *soap.Fault
	if errors.As(err, &f) {
		if f.IsAuthentication() {
			return KindAuthFault
		}
		return KindFault
	}
	if security.IsValidationError(err) {
		return KindValidation
	}
	if security.IsAuthenticationError(err) {
		return KindAuthentication
	}
	var se *soap.SerializationError
	if errors.As(err, &se) {
		return KindSerialization
	}

	// User cancelled
	if errors.Is(err, context.Canceled) {
		return KindCanceled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var te *transport.Error
	if errors.As(err, &te) {
		if te.Timeout() {
			return KindTimeout
		}
		return KindTransport
	}
	var st *transport.StatusError
	if errors.As(err, &st) {
		return KindTransport
	}
	return KindUnknown
}

// IsRetryable determines if an operation may be retried by the caller.
//
// Retryable errors are transient network/transport issues, and
// authentication faults (the client has already dropped the rejected
// session). Validation failures, business faults and serialization
// errors are never retryable. The client itself does not retry.
func IsRetryable(err error) bool {
	switch KindOf(err) {
	case KindTimeout, KindAuthFault:
		return true
	case KindTransport:
	default:
		return false
	}

	var st *transport.StatusError
	if errors.As(err, &st) {
		return gatewayStatus(st.StatusCode)
	}
	var te *transport.Error
	if errors.As(err, &te) && te.StatusCode != 0 {
		return gatewayStatus(te.StatusCode)
	}

	// Connection closed/reset
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}

	// Fallback: String matching for stdlib network errors
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "i/o timeout") ||
		strings.Contains(errStr, "network is unreachable") ||
		strings.Contains(errStr, "no route to host") ||
		strings.Contains(errStr, "broken pipe")
}

func gatewayStatus(code int) bool {
	return code == http.StatusBadGateway || code == http.StatusServiceUnavailable || code == http.StatusGatewayTimeout
}

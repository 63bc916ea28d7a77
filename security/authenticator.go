package security

import (
	"crypto/sha1" //nolint:gosec // the authenticator is defined over SHA-1
	"crypto/subtle"
	"hash"

	"github.com/smnsjas/go-xrm/soap"
)

const (
	authenticatorLabel = "AUTH-HASH"
	authenticatorLen   = 32
)

// ExchangeLog accumulates the verbatim negotiation elements covered by the
// authenticator, in the order they were sent or received.
type ExchangeLog struct {
	h     hash.Hash
	count int
}

// Add appends an element.
func (l *ExchangeLog) Add(element []byte) {
	if l.h == nil {
		l.h = sha1.New()
	}
	l.h.Write(element)
	l.count++
}

// Len returns the number of elements added.
func (l *ExchangeLog) Len() int {
	return l.count
}

// Sum returns the SHA-1 digest of everything added so far.
func (l *ExchangeLog) Sum() []byte {
	if l.h == nil {
		l.h = sha1.New()
	}
	return l.h.Sum(nil)
}

// ComputeAuthenticator returns P_SHA1(proof, "AUTH-HASH" + digest)
// truncated to 32 bytes.
func ComputeAuthenticator(proof, digest []byte) []byte {
	seed := make([]byte, 0, len(authenticatorLabel)+len(digest))
	seed = append(seed, authenticatorLabel...)
	seed = append(seed, digest...)
	return soap.PSHA1(proof, seed, authenticatorLen)
}

func verifyAuthenticator(proof, digest, got []byte) error {
	if len(got) == 0 {
		return &ValidationError{Reason: "server sent no authenticator"}
	}
	want := ComputeAuthenticator(proof, digest)
	if subtle.ConstantTimeCompare(want, got) != 1 {
		return &ValidationError{Reason: "authenticator mismatch"}
	}
	return nil
}

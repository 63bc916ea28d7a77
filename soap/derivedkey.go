package soap

import (
	"crypto/hmac"
	"crypto/sha1" //nolint:gosec // P_SHA1 is mandated by WS-SecureConversation
)

// PSHA1 implements the TLS/WS-SecureConversation P_SHA1 expansion:
//
//	A(0) = seed, A(i) = HMAC_SHA1(secret, A(i-1))
//	P_SHA1 = HMAC_SHA1(secret, A(1) + seed) + HMAC_SHA1(secret, A(2) + seed) + ...
//
// truncated to length bytes.
func PSHA1(secret, seed []byte, length int) []byte {
	out := make([]byte, 0, length+sha1.Size)
	a := seed
	for len(out) < length {
		m := hmac.New(sha1.New, secret)
		m.Write(a)
		a = m.Sum(nil)

		m.Reset()
		m.Write(a)
		m.Write(seed)
		out = m.Sum(out)
	}
	return out[:length]
}

// DeriveKey derives a key from the session proof token as a
// c:DerivedKeyToken with the default label describes it.
func DeriveKey(proof, nonce []byte, offset, length int) []byte {
	seed := make([]byte, 0, len(DefaultLabel)+len(nonce))
	seed = append(seed, DefaultLabel...)
	seed = append(seed, nonce...)
	return PSHA1(proof, seed, offset+length)[offset:]
}

package soap

import (
	"bytes"
	"testing"
)

func TestPSHA1(t *testing.T) {
	secret := []byte("proof-token-secret")
	seed := []byte("AUTH-HASH seed")

	t.Run("length", func(t *testing.T) {
		for _, n := range []int{1, 20, 24, 32, 41, 100} {
			if got := len(PSHA1(secret, seed, n)); got != n {
				t.Errorf("len(PSHA1(..., %d)) = %d", n, got)
			}
		}
	})

	t.Run("deterministic", func(t *testing.T) {
		if !bytes.Equal(PSHA1(secret, seed, 32), PSHA1(secret, seed, 32)) {
			t.Error("PSHA1 is not deterministic")
		}
	})

	t.Run("prefix stable", func(t *testing.T) {
		long := PSHA1(secret, seed, 64)
		short := PSHA1(secret, seed, 24)
		if !bytes.Equal(long[:24], short) {
			t.Error("shorter output is not a prefix of longer output")
		}
	})

	t.Run("secret sensitive", func(t *testing.T) {
		if bytes.Equal(PSHA1(secret, seed, 32), PSHA1([]byte("other"), seed, 32)) {
			t.Error("different secrets produced the same output")
		}
	})
}

func TestDeriveKey_Offset(t *testing.T) {
	proof := bytes.Repeat([]byte{0x42}, 32)
	nonce := []byte("0123456789abcdef")

	full := DeriveKey(proof, nonce, 0, 32)
	part := DeriveKey(proof, nonce, 8, 16)
	if !bytes.Equal(full[8:24], part) {
		t.Errorf("DeriveKey offset mismatch: %x vs %x", full[8:24], part)
	}
}

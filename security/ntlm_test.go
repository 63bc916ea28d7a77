package security

import (
	"bytes"
	"context"
	"crypto/rc4" //nolint:gosec
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ntlmSeal is the server side of ntlmUnseal.
func ntlmSeal(t *testing.T, sealKey, signKey []byte, seq uint32, plain []byte) []byte {
	t.Helper()
	c, err := rc4.NewCipher(sealKey)
	require.NoError(t, err)
	out := make([]byte, ntlmSignatureLen+len(plain))
	binary.LittleEndian.PutUint32(out[0:4], ntlmSignatureVersion)
	copy(out[4:12], ntlmChecksum(signKey, seq, plain))
	binary.LittleEndian.PutUint32(out[12:16], seq)
	c.XORKeyStream(out[ntlmSignatureLen:], plain)
	return out
}

// challengeMessage builds a minimal CHALLENGE message with a Unicode target
// name and an empty target info list.
func challengeMessage(flags uint32, target string) []byte {
	name := utf16le(target)
	info := []byte{0, 0, 0, 0} // MsvAvEOL
	const header = 48

	b := make([]byte, header, header+len(name)+len(info))
	copy(b, ntlmSignature)
	binary.LittleEndian.PutUint32(b[8:], 2)
	binary.LittleEndian.PutUint16(b[12:], uint16(len(name)))
	binary.LittleEndian.PutUint16(b[14:], uint16(len(name)))
	binary.LittleEndian.PutUint32(b[16:], header)
	binary.LittleEndian.PutUint32(b[20:], flags)
	copy(b[24:32], "srvchall")
	binary.LittleEndian.PutUint16(b[40:], uint16(len(info)))
	binary.LittleEndian.PutUint16(b[42:], uint16(len(info)))
	binary.LittleEndian.PutUint32(b[44:], uint32(header+len(name)))
	b = append(b, name...)
	return append(b, info...)
}

func TestNTLMProvider_RequiresExplicitCredentials(t *testing.T) {
	_, err := NewNTLMProvider(Credential{Ambient: true})
	assert.ErrorIs(t, err, ErrUnsupportedMechanism)
}

func TestNTLMProvider_NegotiateRequestsSealing(t *testing.T) {
	p, err := NewNTLMProvider(ResolveCredential(`CONTOSO\alice`, "pw"))
	require.NoError(t, err)
	require.NoError(t, p.Init(context.Background(), "HTTP/crm.contoso.com", DefaultContextFlags))

	status, msg, err := p.Step(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, StatusContinue, status)
	require.True(t, bytes.HasPrefix(msg, ntlmSignature))

	flags := binary.LittleEndian.Uint32(msg[12:16])
	assert.NotZero(t, flags&ntlmFlagSign, "sign")
	assert.NotZero(t, flags&ntlmFlagSeal, "seal")
	assert.NotZero(t, flags&ntlmFlagAlwaysSign, "always sign")
	assert.Zero(t, flags&ntlmFlagKeyExch, "key exchange must not be requested")
}

func TestNTLMProvider_AuthenticateAndDecrypt(t *testing.T) {
	p, err := NewNTLMProvider(ResolveCredential(`CONTOSO\alice`, "Passw0rd!"))
	require.NoError(t, err)
	require.NoError(t, p.Init(context.Background(), "", DefaultContextFlags))

	_, _, err = p.Step(context.Background(), nil)
	require.NoError(t, err)

	flags := uint32(ntlmFlagUnicode | ntlmFlagSign | ntlmFlagSeal | ntlmFlagAlwaysSign | ntlmFlagExtendedSec | ntlmFlag128)
	status, auth, err := p.Step(context.Background(), challengeMessage(flags, "CONTOSO"))
	require.NoError(t, err)
	assert.Equal(t, StatusOK, status)
	assert.Equal(t, uint32(3), binary.LittleEndian.Uint32(auth[8:12]))

	proof, err := ntProofStr(auth)
	require.NoError(t, err)
	key := sessionBaseKey("alice", "Passw0rd!", utf16le("CONTOSO"), proof)
	seal, sign := serverKeys(key, flags)

	want := []byte("0123456789abcdef0123456789abcdef")
	got, err := p.Decrypt(ntlmSeal(t, seal, sign, 0, want))
	require.NoError(t, err)
	assert.Equal(t, want, got)

	require.NoError(t, p.Close())
}

func TestNTLMProvider_RejectsChallengeWithoutExtendedSecurity(t *testing.T) {
	p, err := NewNTLMProvider(ResolveCredential("alice", "pw"))
	require.NoError(t, err)
	require.NoError(t, p.Init(context.Background(), "", DefaultContextFlags))
	_, _, err = p.Step(context.Background(), nil)
	require.NoError(t, err)

	status, _, err := p.Step(context.Background(), challengeMessage(ntlmFlagUnicode|ntlmFlag128, ""))
	require.Error(t, err)
	assert.Equal(t, StatusFailed, status)
}

func TestNTLMProvider_DecryptBeforeEstablished(t *testing.T) {
	p, err := NewNTLMProvider(ResolveCredential("alice", "pw"))
	require.NoError(t, err)
	_, err = p.Decrypt(make([]byte, 32))
	assert.Error(t, err)
}

func TestNTLMUnseal(t *testing.T) {
	seal, sign := serverKeys(bytes.Repeat([]byte{7}, 16), ntlmFlag128)
	plain := []byte("proof token")
	wrapped := ntlmSeal(t, seal, sign, 0, plain)

	got, err := ntlmUnseal(seal, sign, 0, wrapped)
	require.NoError(t, err)
	assert.Equal(t, plain, got)

	t.Run("tampered ciphertext", func(t *testing.T) {
		bad := append([]byte{}, wrapped...)
		bad[len(bad)-1] ^= 1
		_, err := ntlmUnseal(seal, sign, 0, bad)
		assert.Error(t, err)
	})
	t.Run("wrong sequence", func(t *testing.T) {
		_, err := ntlmUnseal(seal, sign, 1, wrapped)
		assert.Error(t, err)
	})
	t.Run("too short", func(t *testing.T) {
		_, err := ntlmUnseal(seal, sign, 0, wrapped[:10])
		assert.Error(t, err)
	})
}

func TestServerKeys_Truncation(t *testing.T) {
	key := bytes.Repeat([]byte{1}, 16)
	seal128, sign := serverKeys(key, ntlmFlag128)
	seal56, sign56 := serverKeys(key, ntlmFlag56)
	seal40, _ := serverKeys(key, 0)

	assert.Len(t, seal128, 16)
	assert.NotEqual(t, seal128, seal56)
	assert.NotEqual(t, seal56, seal40)
	assert.Equal(t, sign, sign56, "signing key is not truncated")
}

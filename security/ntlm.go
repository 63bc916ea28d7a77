package security

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/md5" //nolint:gosec // NTLM is defined over MD5
	"crypto/rc4" //nolint:gosec // NTLM sealing is RC4
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"unicode/utf16"

	"github.com/Azure/go-ntlmssp"
	"golang.org/x/crypto/md4" //nolint:staticcheck // NT hash is MD4
)

// NTLM negotiate flags added to the NEGOTIATE message so the server seals
// the proof token.
const (
	ntlmFlagUnicode       = 0x00000001
	ntlmFlagSign          = 0x00000010
	ntlmFlagSeal          = 0x00000020
	ntlmFlagAlwaysSign    = 0x00008000
	ntlmFlagExtendedSec   = 0x00080000
	ntlmFlag128           = 0x20000000
	ntlmFlagKeyExch       = 0x40000000
	ntlmFlag56            = 0x80000000
	ntlmSignatureLen      = 16
	ntlmSignatureVersion  = 1
	ntlmMessageTypeOffset = 8
)

var ntlmSignature = []byte("NTLMSSP\x00")

const (
	serverSealMagic = "session key to server-to-client sealing key magic constant\x00"
	serverSignMagic = "session key to server-to-client signing key magic constant\x00"
)

// NTLMProvider negotiates with NTLMv2 using explicit credentials. Messages
// are produced by github.com/Azure/go-ntlmssp; the session key is derived
// here so the server's sealed proof token can be opened.
type NTLMProvider struct {
	cred     Credential
	flags    ContextFlag
	state    int
	sealKey  []byte
	signKey  []byte
	complete bool
}

// NewNTLMProvider creates an NTLM provider. Ambient identities are not
// supported since NTLM needs the password.
func NewNTLMProvider(cred Credential) (*NTLMProvider, error) {
	if cred.Ambient || cred.Username == "" {
		return nil, fmt.Errorf("ntlm: explicit credentials required: %w", ErrUnsupportedMechanism)
	}
	return &NTLMProvider{cred: cred}, nil
}

// Init records the requested flags. NTLM has no target name.
func (p *NTLMProvider) Init(_ context.Context, _ string, flags ContextFlag) error {
	p.flags = flags
	return nil
}

// Step produces the NEGOTIATE message, then the AUTHENTICATE message in
// reply to the server's CHALLENGE.
func (p *NTLMProvider) Step(_ context.Context, input []byte) (Status, []byte, error) {
	switch p.state {
	case 0:
		msg, err := ntlmssp.NewNegotiateMessage(p.cred.Domain, "")
		if err != nil {
			return StatusFailed, nil, fmt.Errorf("ntlm: negotiate message: %w", err)
		}
		if err := p.requestFlags(msg); err != nil {
			return StatusFailed, nil, err
		}
		p.state = 1
		return StatusContinue, msg, nil
	case 1:
		out, err := p.authenticate(input)
		if err != nil {
			return StatusFailed, nil, err
		}
		p.state = 2
		p.complete = true
		return StatusOK, out, nil
	default:
		if len(input) == 0 {
			return StatusOK, nil, nil
		}
		return StatusFailed, nil, errors.New("ntlm: unexpected token after authentication")
	}
}

// requestFlags ORs the sign and seal flags into a NEGOTIATE message.
func (p *NTLMProvider) requestFlags(msg []byte) error {
	if len(msg) < 16 || !bytes.HasPrefix(msg, ntlmSignature) {
		return errors.New("ntlm: malformed negotiate message")
	}
	f := binary.LittleEndian.Uint32(msg[12:16])
	if p.flags.Has(FlagIntegrity) || p.flags.Has(FlagConfidentiality) {
		f |= ntlmFlagSign | ntlmFlagAlwaysSign
	}
	if p.flags.Has(FlagConfidentiality) {
		f |= ntlmFlagSeal
	}
	binary.LittleEndian.PutUint32(msg[12:16], f)
	return nil
}

func (p *NTLMProvider) authenticate(challenge []byte) ([]byte, error) {
	ch, err := parseChallenge(challenge)
	if err != nil {
		return nil, err
	}
	if ch.flags&ntlmFlagKeyExch != 0 {
		return nil, errors.New("ntlm: key exchange is not supported")
	}
	if ch.flags&ntlmFlagExtendedSec == 0 {
		return nil, errors.New("ntlm: server did not negotiate extended session security")
	}

	domainNeeded := p.cred.Domain != ""
	out, err := ntlmssp.ProcessChallenge(challenge, p.cred.Username, p.cred.Secret, domainNeeded)
	if err != nil {
		return nil, fmt.Errorf("ntlm: process challenge: %w", err)
	}

	proof, err := ntProofStr(out)
	if err != nil {
		return nil, err
	}

	var target []byte
	if domainNeeded {
		target = ch.targetName
	}
	key := sessionBaseKey(p.cred.Username, p.cred.Secret, target, proof)
	p.sealKey, p.signKey = serverKeys(key, ch.flags)
	return out, nil
}

// Decrypt opens a value the server sealed with sequence number 0.
func (p *NTLMProvider) Decrypt(wrapped []byte) ([]byte, error) {
	if !p.complete {
		return nil, errors.New("ntlm: context not established")
	}
	return ntlmUnseal(p.sealKey, p.signKey, 0, wrapped)
}

// Close discards the derived keys.
func (p *NTLMProvider) Close() error {
	clear(p.sealKey)
	clear(p.signKey)
	p.sealKey, p.signKey = nil, nil
	return nil
}

type ntlmChallenge struct {
	flags      uint32
	targetName []byte
}

func parseChallenge(b []byte) (ntlmChallenge, error) {
	if len(b) < 32 || !bytes.HasPrefix(b, ntlmSignature) ||
		binary.LittleEndian.Uint32(b[ntlmMessageTypeOffset:]) != 2 {
		return ntlmChallenge{}, errors.New("ntlm: malformed challenge message")
	}
	name, err := varField(b, 12)
	if err != nil {
		return ntlmChallenge{}, err
	}
	ch := ntlmChallenge{flags: binary.LittleEndian.Uint32(b[20:24])}
	if ch.flags&ntlmFlagUnicode != 0 {
		ch.targetName = name
	} else {
		ch.targetName = utf16le(string(name))
	}
	return ch, nil
}

func ntProofStr(auth []byte) ([]byte, error) {
	if len(auth) < 28 || binary.LittleEndian.Uint32(auth[ntlmMessageTypeOffset:]) != 3 {
		return nil, errors.New("ntlm: malformed authenticate message")
	}
	resp, err := varField(auth, 20)
	if err != nil {
		return nil, err
	}
	if len(resp) < 16 {
		return nil, errors.New("ntlm: NTLMv2 response too short")
	}
	return resp[:16], nil
}

func varField(b []byte, at int) ([]byte, error) {
	l := int(binary.LittleEndian.Uint16(b[at:]))
	off := int(binary.LittleEndian.Uint32(b[at+4:]))
	if off+l > len(b) || off < 0 {
		return nil, errors.New("ntlm: field out of range")
	}
	return b[off : off+l], nil
}

// sessionBaseKey computes the NTLMv2 session base key. With extended
// session security and no key exchange it is also the exported key.
func sessionBaseKey(user, password string, target, ntProof []byte) []byte {
	h := md4.New()
	h.Write(utf16le(password))
	nt := h.Sum(nil)

	identity := append(utf16le(strings.ToUpper(user)), target...)
	ntowf := hmacMD5(nt, identity)
	return hmacMD5(ntowf, ntProof)
}

func serverKeys(sessionKey []byte, flags uint32) (seal, sign []byte) {
	k := sessionKey
	switch {
	case flags&ntlmFlag128 != 0:
	case flags&ntlmFlag56 != 0:
		k = k[:7]
	default:
		k = k[:5]
	}
	seal = md5Sum(k, serverSealMagic)
	sign = md5Sum(sessionKey, serverSignMagic)
	return seal, sign
}

// ntlmUnseal reverses the server-to-client seal operation: a 16-byte
// signature followed by the RC4 ciphertext.
func ntlmUnseal(sealKey, signKey []byte, seq uint32, wrapped []byte) ([]byte, error) {
	if len(wrapped) < ntlmSignatureLen {
		return nil, errors.New("ntlm: sealed value too short")
	}
	sig, sealed := wrapped[:ntlmSignatureLen], wrapped[ntlmSignatureLen:]
	if binary.LittleEndian.Uint32(sig[0:4]) != ntlmSignatureVersion {
		return nil, errors.New("ntlm: unsupported signature version")
	}
	if binary.LittleEndian.Uint32(sig[12:16]) != seq {
		return nil, fmt.Errorf("ntlm: unexpected sequence number %d", binary.LittleEndian.Uint32(sig[12:16]))
	}

	c, err := rc4.NewCipher(sealKey)
	if err != nil {
		return nil, fmt.Errorf("ntlm: %w", err)
	}
	plain := make([]byte, len(sealed))
	c.XORKeyStream(plain, sealed)

	if !hmac.Equal(ntlmChecksum(signKey, seq, plain), sig[4:12]) {
		return nil, errors.New("ntlm: sealed value signature mismatch")
	}
	return plain, nil
}

func ntlmChecksum(signKey []byte, seq uint32, msg []byte) []byte {
	var s [4]byte
	binary.LittleEndian.PutUint32(s[:], seq)
	return hmacMD5(signKey, append(s[:], msg...))[:8]
}

func hmacMD5(key, data []byte) []byte {
	m := hmac.New(md5.New, key)
	m.Write(data)
	return m.Sum(nil)
}

func md5Sum(key []byte, magic string) []byte {
	h := md5.New() //nolint:gosec
	h.Write(key)
	h.Write([]byte(magic))
	return h.Sum(nil)
}

func utf16le(s string) []byte {
	u := utf16.Encode([]rune(s))
	b := make([]byte, 2*len(u))
	for i, r := range u {
		binary.LittleEndian.PutUint16(b[2*i:], r)
	}
	return b
}

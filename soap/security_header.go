package soap

import (
	"bytes"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1" //nolint:gosec // HMAC-SHA1 signatures are what the service accepts
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// SecurityToken is an established security context: the identifier the
// server issued for it and the proof key both sides share.
type SecurityToken interface {
	TokenID() string
	Key() []byte
}

const (
	timestampID     = "_0"
	derivedKeyID    = "_1"
	derivedKeyLen   = 24
	nonceLen        = 16
	timestampLayout = "2006-01-02T15:04:05.000Z"

	// DefaultTimestampTTL is the validity window of the request timestamp.
	DefaultTimestampTTL = 5 * time.Minute
)

// SecurityHeader builds the o:Security header that binds a request to an
// established security context. The timestamp is signed with a key derived
// from the proof token; the body is not signed.
type SecurityHeader struct {
	Token   SecurityToken
	Created time.Time
	TTL     time.Duration

	// Nonce seeds the derived key. A random nonce is used when empty.
	Nonce []byte
}

// Marshal renders the header. Each signed fragment is written directly in
// exclusive canonical form so the digest covers the exact bytes on the wire.
func (h SecurityHeader) Marshal() ([]byte, error) {
	if h.Token == nil || h.Token.TokenID() == "" {
		return nil, errors.New("security header: no security context token")
	}
	if len(h.Token.Key()) == 0 {
		return nil, errors.New("security header: empty proof token")
	}
	nonce := h.Nonce
	if len(nonce) == 0 {
		nonce = make([]byte, nonceLen)
		if _, err := rand.Read(nonce); err != nil {
			return nil, fmt.Errorf("security header: nonce: %w", err)
		}
	}
	ttl := h.TTL
	if ttl <= 0 {
		ttl = DefaultTimestampTTL
	}
	created := h.Created
	if created.IsZero() {
		created = time.Now()
	}
	created = created.UTC()

	ts := timestampXML(created, created.Add(ttl))
	sctID := "uuid-" + uuid.New().String() + "-1"
	key := DeriveKey(h.Token.Key(), nonce, 0, derivedKeyLen)

	digest := sha1.Sum([]byte(ts))
	signedInfo := signedInfoXML(digest[:])
	mac := hmac.New(sha1.New, key)
	mac.Write([]byte(signedInfo))

	var b strings.Builder
	b.WriteString(`<o:Security s:mustUnderstand="1" xmlns:o="` + NsSecurity + `">`)
	b.WriteString(ts)
	b.WriteString(`<c:SecurityContextToken xmlns:c="` + NsSecureConversation + `" xmlns:u="` + NsSecurityUtility + `" u:Id="` + sctID + `">`)
	b.WriteString(`<c:Identifier>` + escapeText(h.Token.TokenID()) + `</c:Identifier>`)
	b.WriteString(`</c:SecurityContextToken>`)
	b.WriteString(`<c:DerivedKeyToken xmlns:c="` + NsSecureConversation + `" xmlns:u="` + NsSecurityUtility + `" u:Id="` + derivedKeyID + `">`)
	b.WriteString(`<o:SecurityTokenReference><o:Reference URI="#` + sctID + `" ValueType="` + TokenTypeSCT + `"></o:Reference></o:SecurityTokenReference>`)
	fmt.Fprintf(&b, `<c:Offset>0</c:Offset><c:Length>%d</c:Length>`, derivedKeyLen)
	b.WriteString(`<c:Nonce>` + base64.StdEncoding.EncodeToString(nonce) + `</c:Nonce>`)
	b.WriteString(`</c:DerivedKeyToken>`)
	b.WriteString(`<Signature xmlns="` + NsXMLDsig + `">`)
	b.WriteString(signedInfo)
	b.WriteString(`<SignatureValue>` + base64.StdEncoding.EncodeToString(mac.Sum(nil)) + `</SignatureValue>`)
	b.WriteString(`<KeyInfo><o:SecurityTokenReference><o:Reference URI="#` + derivedKeyID + `"></o:Reference></o:SecurityTokenReference></KeyInfo>`)
	b.WriteString(`</Signature>`)
	b.WriteString(`</o:Security>`)
	return []byte(b.String()), nil
}

func timestampXML(created, expires time.Time) string {
	return `<u:Timestamp xmlns:u="` + NsSecurityUtility + `" u:Id="` + timestampID + `">` +
		`<u:Created>` + created.Format(timestampLayout) + `</u:Created>` +
		`<u:Expires>` + expires.Format(timestampLayout) + `</u:Expires>` +
		`</u:Timestamp>`
}

func signedInfoXML(digest []byte) string {
	return `<SignedInfo xmlns="` + NsXMLDsig + `">` +
		`<CanonicalizationMethod Algorithm="` + AlgExcC14N + `"></CanonicalizationMethod>` +
		`<SignatureMethod Algorithm="` + AlgHMACSHA1 + `"></SignatureMethod>` +
		`<Reference URI="#` + timestampID + `">` +
		`<Transforms><Transform Algorithm="` + AlgExcC14N + `"></Transform></Transforms>` +
		`<DigestMethod Algorithm="` + AlgSHA1 + `"></DigestMethod>` +
		`<DigestValue>` + base64.StdEncoding.EncodeToString(digest) + `</DigestValue>` +
		`</Reference>` +
		`</SignedInfo>`
}

// VerifySecurityHeader checks the o:Security header of a request envelope
// against key: the token identifier must match and the timestamp signature
// must verify. It accepts only headers in the form Marshal writes.
func VerifySecurityHeader(envelope []byte, token SecurityToken) error {
	parts, err := rawChildren(envelope, "Envelope", "Header", "Security")
	if err != nil {
		return err
	}
	var ts, sig []byte
	for _, p := range parts {
		switch {
		case bytes.HasPrefix(p, []byte("<u:Timestamp")):
			ts = p
		case bytes.HasPrefix(p, []byte("<Signature")):
			sig = p
		}
	}
	if ts == nil || sig == nil {
		return errors.New("verify security header: missing timestamp or signature")
	}
	root, err := parseTree(envelope)
	if err != nil {
		return err
	}
	sec := root.path("Header", "Security")
	if got := sec.path("SecurityContextToken", "Identifier").value(); got != token.TokenID() {
		return fmt.Errorf("verify security header: token %q does not match %q", got, token.TokenID())
	}
	nonce, err := base64.StdEncoding.DecodeString(sec.path("DerivedKeyToken", "Nonce").value())
	if err != nil {
		return fmt.Errorf("verify security header: nonce: %w", err)
	}
	si, err := rawChildren(sig, "Signature")
	if err != nil || len(si) == 0 {
		return errors.New("verify security header: missing SignedInfo")
	}
	sigNode := sec.child("Signature")
	digest := sha1.Sum(ts)
	if sigNode.path("SignedInfo", "Reference", "DigestValue").value() != base64.StdEncoding.EncodeToString(digest[:]) {
		return errors.New("verify security header: timestamp digest mismatch")
	}
	got, err := base64.StdEncoding.DecodeString(sigNode.child("SignatureValue").value())
	if err != nil {
		return fmt.Errorf("verify security header: signature: %w", err)
	}
	mac := hmac.New(sha1.New, DeriveKey(token.Key(), nonce, 0, derivedKeyLen))
	mac.Write(si[0])
	if !hmac.Equal(got, mac.Sum(nil)) {
		return errors.New("verify security header: signature mismatch")
	}
	return nil
}

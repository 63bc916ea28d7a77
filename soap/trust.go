package soap

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// NewContextID returns a fresh negotiation context identifier.
func NewContextID() string {
	return "uuid-" + uuid.New().String()
}

func binaryExchangeXML(token []byte) string {
	return `<t:BinaryExchange ValueType="` + ValueTypeSpnego + `" EncodingType="` + EncodingBase64 + `">` +
		base64.StdEncoding.EncodeToString(token) + `</t:BinaryExchange>`
}

func trustOpen(name, context string) string {
	return `<t:` + name + ` xmlns:t="` + NsTrust + `" Context="` + escapeText(context) + `">`
}

// NewRequestSecurityToken renders the RST element that opens a negotiation.
func NewRequestSecurityToken(context string, token []byte) []byte {
	return []byte(trustOpen("RequestSecurityToken", context) +
		`<t:TokenType>` + TokenTypeSCT + `</t:TokenType>` +
		`<t:RequestType>` + RequestTypeIssue + `</t:RequestType>` +
		`<t:KeySize>256</t:KeySize>` +
		binaryExchangeXML(token) +
		`</t:RequestSecurityToken>`)
}

// NewRequestSecurityTokenResponse renders an RSTR carrying the next token of
// the exchange. Clients send it after each challenge, servers send it as a
// challenge.
func NewRequestSecurityTokenResponse(context string, token []byte) []byte {
	return []byte(trustOpen("RequestSecurityTokenResponse", context) +
		binaryExchangeXML(token) +
		`</t:RequestSecurityTokenResponse>`)
}

// IssuedToken describes the first element of a final response collection.
type IssuedToken struct {
	Context      string
	TokenID      string
	WrappedProof []byte
	Created      time.Time
	Expires      time.Time

	// Token is the last token of the exchange, if the mechanism has one.
	Token []byte
}

// NewIssuedTokenResponse renders the RSTR granting a security context token.
func NewIssuedTokenResponse(it IssuedToken) []byte {
	var b strings.Builder
	b.WriteString(trustOpen("RequestSecurityTokenResponse", it.Context))
	b.WriteString(`<t:TokenType>` + TokenTypeSCT + `</t:TokenType>`)
	b.WriteString(`<t:RequestedSecurityToken>`)
	b.WriteString(`<c:SecurityContextToken xmlns:c="` + NsSecureConversation + `" xmlns:u="` + NsSecurityUtility + `" u:Id="` + NewContextID() + `">`)
	b.WriteString(`<c:Identifier>` + escapeText(it.TokenID) + `</c:Identifier>`)
	b.WriteString(`</c:SecurityContextToken>`)
	b.WriteString(`</t:RequestedSecurityToken>`)
	b.WriteString(`<t:RequestedProofToken><e:EncryptedKey xmlns:e="` + NsXMLEnc + `">`)
	b.WriteString(`<e:EncryptionMethod Algorithm="` + KeyWrapGSS + `"></e:EncryptionMethod>`)
	b.WriteString(`<e:CipherData><e:CipherValue>` + base64.StdEncoding.EncodeToString(it.WrappedProof) + `</e:CipherValue></e:CipherData>`)
	b.WriteString(`</e:EncryptedKey></t:RequestedProofToken>`)
	b.WriteString(`<t:Lifetime>`)
	b.WriteString(`<u:Created xmlns:u="` + NsSecurityUtility + `">` + it.Created.UTC().Format(timestampLayout) + `</u:Created>`)
	b.WriteString(`<u:Expires xmlns:u="` + NsSecurityUtility + `">` + it.Expires.UTC().Format(timestampLayout) + `</u:Expires>`)
	b.WriteString(`</t:Lifetime>`)
	b.WriteString(`<t:KeySize>256</t:KeySize>`)
	if len(it.Token) > 0 {
		b.WriteString(binaryExchangeXML(it.Token))
	}
	b.WriteString(`</t:RequestSecurityTokenResponse>`)
	return []byte(b.String())
}

// NewAuthenticatorResponse renders the RSTR carrying the server's
// authenticator.
func NewAuthenticatorResponse(context string, authenticator []byte) []byte {
	return []byte(trustOpen("RequestSecurityTokenResponse", context) +
		`<t:Authenticator><t:CombinedHash>` + base64.StdEncoding.EncodeToString(authenticator) + `</t:CombinedHash></t:Authenticator>` +
		`</t:RequestSecurityTokenResponse>`)
}

// NewResponseCollection wraps RSTR elements in a
// RequestSecurityTokenResponseCollection.
func NewResponseCollection(elements ...[]byte) []byte {
	var b strings.Builder
	b.WriteString(`<t:RequestSecurityTokenResponseCollection xmlns:t="` + NsTrust + `">`)
	for _, e := range elements {
		b.Write(e)
	}
	b.WriteString(`</t:RequestSecurityTokenResponseCollection>`)
	return []byte(b.String())
}

// NewTrustEnvelope wraps a negotiation element in an addressed envelope.
// Negotiation messages carry no security header.
func NewTrustEnvelope(endpoint, action string, element []byte) ([]byte, error) {
	return NewEnvelope().
		WithAction(action).
		WithMessageID(NewMessageID()).
		WithReplyTo(AddressAnonymous).
		WithTo(endpoint).
		WithBody(element).
		Marshal()
}

// NewResponseEnvelope wraps a response body the way the service does.
func NewResponseEnvelope(action, relatesTo string, body []byte) ([]byte, error) {
	return NewEnvelope().
		WithAction(action).
		WithRelatesTo(relatesTo).
		WithBody(body).
		Marshal()
}

// TrustResponse is a decoded server negotiation message.
type TrustResponse struct {
	// Final is true for a RequestSecurityTokenResponseCollection.
	Final bool

	// Context is the server's context identifier.
	Context string

	// Token is the BinaryExchange token, if any.
	Token []byte

	// Raw is the verbatim element covered by the authenticator: the
	// continuation RSTR, or the first RSTR of a final collection.
	Raw []byte

	// The remaining fields are set only on a final collection.
	TokenID       string
	WrappedProof  []byte
	Created       time.Time
	Expires       time.Time
	Authenticator []byte
}

// ParseTrustResponse decodes a negotiation response. A fault body is
// returned as a *Fault error.
func ParseTrustResponse(data []byte) (*TrustResponse, error) {
	in, err := ParseEnvelope(data)
	if err != nil {
		return nil, err
	}
	if f := in.Fault(); f != nil {
		return nil, f
	}
	switch in.PayloadName() {
	case "RequestSecurityTokenResponse":
		return parseContinuation(in)
	case "RequestSecurityTokenResponseCollection":
		return parseFinal(in)
	default:
		return nil, &SerializationError{Op: "parse trust response", Type: in.PayloadName(), Err: errors.New("unexpected body element")}
	}
}

func parseContinuation(in *Inbound) (*TrustResponse, error) {
	token, err := decodeBinaryExchange(in.payload)
	if err != nil {
		return nil, err
	}
	if token == nil {
		return nil, &SerializationError{Op: "parse trust response", Err: errors.New("continuation without BinaryExchange")}
	}
	raw, err := rawChildren(in.raw, "Envelope", "Body")
	if err != nil || len(raw) == 0 {
		return nil, &SerializationError{Op: "parse trust response", Err: fmt.Errorf("extract element: %w", err)}
	}
	return &TrustResponse{
		Context: in.payload.attr("Context"),
		Token:   token,
		Raw:     raw[0],
	}, nil
}

func parseFinal(in *Inbound) (*TrustResponse, error) {
	rstrs := in.payload.all("RequestSecurityTokenResponse")
	if len(rstrs) != 2 {
		return nil, &SerializationError{Op: "parse trust response", Err: fmt.Errorf("final collection has %d elements, want 2", len(rstrs))}
	}
	raw, err := rawChildren(in.raw, "Envelope", "Body", "RequestSecurityTokenResponseCollection")
	if err != nil || len(raw) == 0 {
		return nil, &SerializationError{Op: "parse trust response", Err: fmt.Errorf("extract element: %w", err)}
	}
	granted, confirm := rstrs[0], rstrs[1]

	r := &TrustResponse{
		Final:   true,
		Context: granted.attr("Context"),
		Raw:     raw[0],
		TokenID: granted.path("RequestedSecurityToken", "SecurityContextToken", "Identifier").value(),
	}
	if r.TokenID == "" {
		return nil, &SerializationError{Op: "parse trust response", Err: errors.New("missing SecurityContextToken Identifier")}
	}
	if r.Token, err = decodeBinaryExchange(granted); err != nil {
		return nil, err
	}
	if r.WrappedProof, err = decodeBase64("CipherValue",
		granted.path("RequestedProofToken", "EncryptedKey", "CipherData", "CipherValue")); err != nil {
		return nil, err
	}
	if r.Expires, err = parseLifetime(granted.path("Lifetime", "Expires")); err != nil {
		return nil, err
	}
	if c := granted.path("Lifetime", "Created"); c != nil {
		if r.Created, err = parseLifetime(c); err != nil {
			return nil, err
		}
	}
	if r.Authenticator, err = decodeBase64("CombinedHash", confirm.path("Authenticator", "CombinedHash")); err != nil {
		return nil, err
	}
	return r, nil
}

func decodeBinaryExchange(n *node) ([]byte, error) {
	be := n.child("BinaryExchange")
	if be == nil {
		return nil, nil
	}
	if vt := be.attr("ValueType"); vt != "" && vt != ValueTypeSpnego {
		return nil, &SerializationError{Op: "parse BinaryExchange", Type: vt, Err: errors.New("unsupported ValueType")}
	}
	return decodeBase64("BinaryExchange", be)
}

func decodeBase64(what string, n *node) ([]byte, error) {
	if n == nil {
		return nil, &SerializationError{Op: "parse trust response", Err: fmt.Errorf("missing %s", what)}
	}
	b, err := base64.StdEncoding.DecodeString(n.value())
	if err != nil {
		return nil, &SerializationError{Op: "parse " + what, Err: err}
	}
	return b, nil
}

func parseLifetime(n *node) (time.Time, error) {
	if n == nil {
		return time.Time{}, &SerializationError{Op: "parse trust response", Err: errors.New("missing Lifetime")}
	}
	t, err := time.Parse(time.RFC3339, n.value())
	if err != nil {
		return time.Time{}, &SerializationError{Op: "parse Lifetime", Err: err}
	}
	return t, nil
}

// TrustRequest is a decoded client negotiation message.
type TrustRequest struct {
	// Initial is true for the opening RequestSecurityToken.
	Initial bool

	Action    string
	MessageID string
	Context   string
	Token     []byte

	// Raw is the verbatim body element.
	Raw []byte
}

// ParseTrustRequest decodes an RST or RSTR sent by a client. Servers and
// test doubles use it to drive the other side of the exchange.
func ParseTrustRequest(data []byte) (*TrustRequest, error) {
	in, err := ParseEnvelope(data)
	if err != nil {
		return nil, err
	}
	name := in.PayloadName()
	if name != "RequestSecurityToken" && name != "RequestSecurityTokenResponse" {
		return nil, &SerializationError{Op: "parse trust request", Type: name, Err: errors.New("unexpected body element")}
	}
	token, err := decodeBinaryExchange(in.payload)
	if err != nil {
		return nil, err
	}
	raw, err := rawChildren(data, "Envelope", "Body")
	if err != nil || len(raw) == 0 {
		return nil, &SerializationError{Op: "parse trust request", Err: fmt.Errorf("extract element: %w", err)}
	}
	return &TrustRequest{
		Initial:   name == "RequestSecurityToken",
		Action:    in.Action,
		MessageID: in.MessageID,
		Context:   in.payload.attr("Context"),
		Token:     token,
		Raw:       raw[0],
	}, nil
}

package soap

import (
	"encoding/xml"
	"fmt"

	"github.com/google/uuid"
)

// Envelope represents an outbound SOAP 1.2 envelope.
type Envelope struct {
	XMLName xml.Name `xml:"s:Envelope"`

	// Namespace declarations
	NsSoap string `xml:"xmlns:s,attr"`
	NsAddr string `xml:"xmlns:a,attr"`
	NsUtil string `xml:"xmlns:u,attr,omitempty"`

	Header *Header `xml:"s:Header"`
	Body   *Body   `xml:"s:Body"`
}

// Header holds the WS-Addressing headers followed by any extension headers.
type Header struct {
	Action    *Action  `xml:"a:Action,omitempty"`
	MessageID string   `xml:"a:MessageID,omitempty"`
	ReplyTo   *ReplyTo `xml:"a:ReplyTo,omitempty"`
	To        *To      `xml:"a:To,omitempty"`
	RelatesTo string   `xml:"a:RelatesTo,omitempty"`

	// Extensions is written verbatim after the addressing headers.
	Extensions []byte `xml:",innerxml"`
}

// Action is the WS-Addressing Action header.
type Action struct {
	MustUnderstand string `xml:"s:mustUnderstand,attr,omitempty"`
	Value          string `xml:",chardata"`
}

// ReplyTo represents the WS-Addressing ReplyTo element.
type ReplyTo struct {
	Address string `xml:"a:Address"`
}

// To is the WS-Addressing destination header.
type To struct {
	MustUnderstand string `xml:"s:mustUnderstand,attr,omitempty"`
	Value          string `xml:",chardata"`
}

// Body represents the SOAP body.
type Body struct {
	Content []byte `xml:",innerxml"`
}

// NewEnvelope creates a new SOAP envelope with required namespace declarations.
func NewEnvelope() *Envelope {
	return &Envelope{
		NsSoap: NsSoap,
		NsAddr: NsAddressing,
		Header: &Header{},
		Body:   &Body{},
	}
}

// WithAction sets the WS-Addressing Action header.
func (e *Envelope) WithAction(action string) *Envelope {
	e.Header.Action = &Action{MustUnderstand: "1", Value: action}
	return e
}

// WithTo sets the WS-Addressing To header (the endpoint URL).
func (e *Envelope) WithTo(to string) *Envelope {
	e.Header.To = &To{MustUnderstand: "1", Value: to}
	return e
}

// WithMessageID sets the WS-Addressing MessageID header.
func (e *Envelope) WithMessageID(messageID string) *Envelope {
	e.Header.MessageID = messageID
	return e
}

// WithReplyTo sets the WS-Addressing ReplyTo header.
func (e *Envelope) WithReplyTo(address string) *Envelope {
	e.Header.ReplyTo = &ReplyTo{Address: address}
	return e
}

// WithRelatesTo sets the WS-Addressing RelatesTo header of a response.
func (e *Envelope) WithRelatesTo(messageID string) *Envelope {
	e.Header.RelatesTo = messageID
	return e
}

// WithHeader appends a pre-serialized extension header.
func (e *Envelope) WithHeader(raw []byte) *Envelope {
	e.Header.Extensions = append(e.Header.Extensions, raw...)
	return e
}

// WithUtilityNamespace declares the WS-Security utility prefix on the envelope.
func (e *Envelope) WithUtilityNamespace() *Envelope {
	e.NsUtil = NsSecurityUtility
	return e
}

// WithBody sets the body content.
func (e *Envelope) WithBody(content []byte) *Envelope {
	e.Body.Content = content
	return e
}

// Marshal serializes the envelope as a single document with no XML
// declaration and no indentation.
func (e *Envelope) Marshal() ([]byte, error) {
	return xml.Marshal(e)
}

// NewMessageID returns a fresh WS-Addressing message id.
func NewMessageID() string {
	return "urn:uuid:" + uuid.New().String()
}

// contractHeader is an organization service header declared in the
// contracts namespace, e.g. <SdkClientVersion xmlns="...">9.0</SdkClientVersion>.
type contractHeader struct {
	XMLName xml.Name
	Xmlns   string `xml:"xmlns,attr"`
	Value   string `xml:",chardata"`
}

func marshalContractHeader(name, value string) ([]byte, error) {
	return xml.Marshal(contractHeader{
		XMLName: xml.Name{Local: name},
		Xmlns:   NsContracts,
		Value:   value,
	})
}

// Inbound is a parsed response envelope.
type Inbound struct {
	// Action is the response WS-Addressing Action header, if any.
	Action string

	// MessageID and RelatesTo are the WS-Addressing message correlation
	// headers, if present.
	MessageID string
	RelatesTo string

	// payload is the first element inside the body, or nil for an empty body.
	payload *node

	// raw holds the envelope bytes for raw element extraction.
	raw []byte
}

// soap11 is the SOAP 1.1 envelope namespace; faults from intermediaries may
// still use it.
const soap11 = "http://schemas.xmlsoap.org/soap/envelope/"

// ParseEnvelope parses a SOAP envelope, returning its addressing headers and
// body payload.
func ParseEnvelope(data []byte) (*Inbound, error) {
	root, err := parseTree(data)
	if err != nil {
		return nil, &SerializationError{Op: "parse envelope", Err: err}
	}
	if root.name != "Envelope" || (root.space != NsSoap && root.space != soap11) {
		return nil, &SerializationError{Op: "parse envelope", Err: fmt.Errorf("unexpected root element %q", root.name)}
	}
	body := root.child("Body")
	if body == nil {
		return nil, &SerializationError{Op: "parse envelope", Err: fmt.Errorf("missing Body")}
	}
	in := &Inbound{raw: data}
	if hdr := root.child("Header"); hdr != nil {
		in.Action = hdr.child("Action").value()
		in.MessageID = hdr.child("MessageID").value()
		in.RelatesTo = hdr.child("RelatesTo").value()
	}
	if len(body.children) > 0 {
		in.payload = body.children[0]
	}
	return in, nil
}

// PayloadName returns the local name of the body payload, or "".
func (in *Inbound) PayloadName() string {
	if in.payload == nil {
		return ""
	}
	return in.payload.name
}

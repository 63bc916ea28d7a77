package soap

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Codec encodes Execute requests bound to a security context and decodes
// Execute responses.
type Codec struct {
	// ClientVersion is sent as SdkClientVersion. Defaults to DefaultClientVersion.
	ClientVersion string

	// CallerID impersonates another user when not uuid.Nil.
	CallerID uuid.UUID

	// Now returns the current time for the security timestamp.
	// Defaults to time.Now.
	Now func() time.Time
}

// Encode builds the Execute envelope for req addressed to endpoint and signed
// with token.
func (c *Codec) Encode(endpoint string, req Request, token SecurityToken) ([]byte, error) {
	if req == nil {
		return nil, &SerializationError{Op: "encode request", Err: errors.New("nil request")}
	}
	body, err := encodeExecute(req)
	if err != nil {
		return nil, err
	}

	version := c.ClientVersion
	if version == "" {
		version = DefaultClientVersion
	}
	now := time.Now
	if c.Now != nil {
		now = c.Now
	}

	env := NewEnvelope().
		WithAction(ActionExecute).
		WithMessageID(NewMessageID()).
		WithReplyTo(AddressAnonymous).
		WithTo(endpoint)

	hdr, err := marshalContractHeader("SdkClientVersion", version)
	if err != nil {
		return nil, &SerializationError{Op: "encode SdkClientVersion", Err: err}
	}
	env.WithHeader(hdr)
	if hdr, err = marshalContractHeader("UserType", UserTypeCrmUser); err != nil {
		return nil, &SerializationError{Op: "encode UserType", Err: err}
	}
	env.WithHeader(hdr)
	if c.CallerID != uuid.Nil {
		if hdr, err = marshalContractHeader("CallerId", c.CallerID.String()); err != nil {
			return nil, &SerializationError{Op: "encode CallerId", Err: err}
		}
		env.WithHeader(hdr)
	}

	sec, err := SecurityHeader{Token: token, Created: now()}.Marshal()
	if err != nil {
		return nil, err
	}
	env.WithHeader(sec)

	return env.WithBody(body).Marshal()
}

// Decode parses an Execute response. A fault body is returned as a *Fault
// error; any other unexpected shape is a *SerializationError.
func (c *Codec) Decode(data []byte) (Response, error) {
	return DecodeResponse(data)
}

func encodeExecute(req Request) ([]byte, error) {
	params, err := req.parameters()
	if err != nil {
		return nil, err
	}
	var b strings.Builder
	b.WriteString(`<Execute xmlns="` + NsServices + `">`)
	b.WriteString(`<request i:type="` + req.requestType() + `"` + typeDecls(req.requestType()) + `>`)
	if err := writeParameters(&b, "a:Parameters", params); err != nil {
		return nil, err
	}
	writeNil(&b, "a:RequestId")
	writeText(&b, "a:RequestName", req.RequestName())
	b.WriteString(`</request>`)
	b.WriteString(`</Execute>`)
	return []byte(b.String()), nil
}

// typeDecls declares the prefixes used by a request or result element.
func typeDecls(typ string) string {
	decls := ` xmlns:a="` + NsContracts + `" xmlns:i="` + NsXsi + `"`
	if strings.HasPrefix(typ, "g:") {
		decls += ` xmlns:g="` + NsCrmContracts + `"`
	}
	return decls
}

// DecodeResponse parses an Execute response envelope.
func DecodeResponse(data []byte) (Response, error) {
	in, err := ParseEnvelope(data)
	if err != nil {
		return nil, err
	}
	if f := in.Fault(); f != nil {
		return nil, f
	}
	if in.PayloadName() != "ExecuteResponse" {
		return nil, &SerializationError{Op: "decode response", Type: in.PayloadName(), Err: errors.New("unexpected body element")}
	}
	result := in.payload.child("ExecuteResult")
	if result == nil {
		return nil, &SerializationError{Op: "decode response", Err: errors.New("missing ExecuteResult")}
	}
	typ := result.xsiType()
	decode, ok := responseDecoders[typ]
	if !ok {
		return nil, &SerializationError{Op: "decode response", Type: typ, Err: errUnknownType}
	}
	results, err := decodeParameters(result.child("Results"))
	if err != nil {
		return nil, err
	}
	return decode(result.child("ResponseName").value(), results)
}

// DecodeRequest parses an Execute request envelope. It is the server-side
// counterpart of Codec.Encode and ignores the security header.
func DecodeRequest(data []byte) (Request, error) {
	in, err := ParseEnvelope(data)
	if err != nil {
		return nil, err
	}
	if in.PayloadName() != "Execute" {
		return nil, &SerializationError{Op: "decode request", Type: in.PayloadName(), Err: errors.New("unexpected body element")}
	}
	req := in.payload.child("request")
	if req == nil {
		return nil, &SerializationError{Op: "decode request", Err: errors.New("missing request")}
	}
	typ := req.xsiType()
	decode, ok := requestDecoders[typ]
	if !ok {
		return nil, &SerializationError{Op: "decode request", Type: typ, Err: errUnknownType}
	}
	params, err := decodeParameters(req.child("Parameters"))
	if err != nil {
		return nil, err
	}
	return decode(req.child("RequestName").value(), params)
}

// EncodeResponse builds the Execute response envelope for resp. It is the
// server-side counterpart of DecodeResponse.
func EncodeResponse(resp Response, relatesTo string) ([]byte, error) {
	if resp == nil {
		return nil, &SerializationError{Op: "encode response", Err: errors.New("nil response")}
	}
	var b strings.Builder
	b.WriteString(`<ExecuteResponse xmlns="` + NsServices + `">`)
	b.WriteString(`<ExecuteResult i:type="` + resp.responseType() + `"` + typeDecls(resp.responseType()) + `>`)
	writeText(&b, "a:ResponseName", resp.ResponseName())
	if err := writeParameters(&b, "a:Results", resp.results()); err != nil {
		return nil, err
	}
	b.WriteString(`</ExecuteResult>`)
	b.WriteString(`</ExecuteResponse>`)
	return NewResponseEnvelope(ActionExecuteResponse, relatesTo, []byte(b.String()))
}

// NewFaultEnvelope builds a SOAP 1.2 fault response. Test servers use it to
// report errors the way the service does.
func NewFaultEnvelope(f Fault, relatesTo string) ([]byte, error) {
	var b strings.Builder
	b.WriteString(`<s:Fault><s:Code>`)
	writeText(&b, "s:Value", f.Code)
	if f.Subcode != "" {
		b.WriteString(`<s:Subcode>`)
		writeText(&b, "s:Value", f.Subcode)
		b.WriteString(`</s:Subcode>`)
	}
	b.WriteString(`</s:Code><s:Reason><s:Text xml:lang="en-US">` + escapeText(f.Detail) + `</s:Text></s:Reason></s:Fault>`)
	action := f.Action
	if action == "" {
		action = ActionExecuteFault
	}
	return NewResponseEnvelope(action, relatesTo, []byte(b.String()))
}

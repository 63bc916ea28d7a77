package soap

import (
	"errors"
	"strings"
)

// Fault represents a SOAP fault returned by the endpoint.
type Fault struct {
	// Code is the SOAP fault code as sent (e.g., "s:Sender", "S:Sender").
	Code string

	// Subcode is the first fault subcode (e.g., "a:InvalidSecurity"), if any.
	Subcode string

	// Action is the WS-Addressing Action header of the fault response.
	Action string

	// Detail is the human-readable reason, or the detail text when no
	// reason was sent.
	Detail string
}

// Error implements the error interface.
func (f *Fault) Error() string {
	var parts []string
	if f.Code != "" {
		parts = append(parts, f.Code)
	}
	if f.Subcode != "" {
		parts = append(parts, f.Subcode)
	}
	if f.Detail != "" {
		parts = append(parts, f.Detail)
	}
	return "soap fault: " + strings.Join(parts, ": ")
}

// IsAuthentication returns true if the fault reports a security failure
// (expired or unknown security context, bad signature, access denied) rather
// than a business error.
func (f *Fault) IsAuthentication() bool {
	for _, s := range []string{f.Subcode, f.Code} {
		local := s
		if i := strings.IndexByte(local, ':'); i >= 0 {
			local = local[i+1:]
		}
		switch local {
		case "InvalidSecurity", "InvalidSecurityToken", "FailedAuthentication",
			"BadContextToken", "MessageExpired", "SecurityTokenUnavailable":
			return true
		}
	}
	return strings.Contains(strings.ToLower(f.Detail), "security context token")
}

// IsFault returns true if the error is a SOAP Fault.
func IsFault(err error) bool {
	var f *Fault
	return errors.As(err, &f)
}

// SerializationError reports a payload that could not be encoded, or a
// response whose shape or type is not known to the codec.
type SerializationError struct {
	// Op describes what was being encoded or decoded.
	Op string

	// Type is the offending type name, if the failure concerns one.
	Type string

	Err error
}

// Error implements the error interface.
func (e *SerializationError) Error() string {
	msg := "soap: " + e.Op
	if e.Type != "" {
		msg += " (" + e.Type + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *SerializationError) Unwrap() error {
	return e.Err
}

// ParseFault parses a SOAP response and returns a Fault if the body holds one.
// Returns nil, nil if the response does not contain a fault.
func ParseFault(data []byte) (*Fault, error) {
	in, err := ParseEnvelope(data)
	if err != nil {
		return nil, err
	}
	return in.Fault(), nil
}

// CheckFault parses a response and returns an error if it contains a fault.
func CheckFault(data []byte) error {
	fault, err := ParseFault(data)
	if err != nil {
		return err
	}
	if fault != nil {
		return fault
	}
	return nil
}

// Fault decodes the body as a fault. Both the SOAP 1.2 shape
// (Code/Value, Reason/Text) and the SOAP 1.1 shape (faultcode, faultstring)
// are accepted. Returns nil when the body is not a fault.
func (in *Inbound) Fault() *Fault {
	p := in.payload
	if p == nil || p.name != "Fault" {
		return nil
	}
	f := &Fault{Action: in.Action}
	if code := p.child("Code"); code != nil {
		f.Code = code.child("Value").value()
		f.Subcode = code.path("Subcode", "Value").value()
		f.Detail = p.path("Reason", "Text").value()
	} else {
		f.Code = p.child("faultcode").value()
		f.Detail = p.child("faultstring").value()
	}
	if f.Detail == "" {
		f.Detail = detailText(p.child("Detail"))
		if f.Detail == "" {
			f.Detail = detailText(p.child("detail"))
		}
	}
	return f
}

// detailText flattens a fault detail element. OrganizationServiceFault
// details carry a Message child, which is preferred.
func detailText(d *node) string {
	if d == nil {
		return ""
	}
	for _, c := range d.children {
		if m := c.child("Message"); m != nil {
			return m.value()
		}
	}
	if len(d.children) == 0 {
		return d.value()
	}
	return d.children[0].value()
}

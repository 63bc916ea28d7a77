package soap

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testEndpoint = "https://crm.example.com/org/XRMServices/2011/Organization.svc"

func TestTrustRequest_RoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		action  string
		element []byte
		initial bool
	}{
		{"RST", ActionIssue, NewRequestSecurityToken("uuid-ctx", []byte{1, 2, 3}), true},
		{"RSTR", ActionIssueResponse, NewRequestSecurityTokenResponse("uuid-ctx", []byte{1, 2, 3}), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := NewTrustEnvelope(testEndpoint, tt.action, tt.element)
			require.NoError(t, err)

			req, err := ParseTrustRequest(data)
			require.NoError(t, err)

			assert.Equal(t, tt.initial, req.Initial)
			assert.Equal(t, tt.action, req.Action)
			assert.Equal(t, "uuid-ctx", req.Context)
			assert.Equal(t, []byte{1, 2, 3}, req.Token)
			assert.Equal(t, tt.element, req.Raw, "raw element must match the bytes that were sent")
			assert.NotEmpty(t, req.MessageID)
		})
	}
}

func TestRequestSecurityToken_Shape(t *testing.T) {
	s := string(NewRequestSecurityToken("uuid-ctx", []byte("tok")))
	assert.Contains(t, s, `<t:TokenType>`+TokenTypeSCT+`</t:TokenType>`)
	assert.Contains(t, s, `<t:RequestType>`+RequestTypeIssue+`</t:RequestType>`)
	assert.Contains(t, s, `ValueType="`+ValueTypeSpnego+`"`)
	assert.Contains(t, s, `>dG9r</t:BinaryExchange>`)
}

func TestParseTrustResponse_Continuation(t *testing.T) {
	elem := NewRequestSecurityTokenResponse("uuid-server", []byte("challenge"))
	data, err := NewResponseEnvelope(ActionIssueResponse, "urn:uuid:1", elem)
	require.NoError(t, err)

	resp, err := ParseTrustResponse(data)
	require.NoError(t, err)

	assert.False(t, resp.Final)
	assert.Equal(t, "uuid-server", resp.Context)
	assert.Equal(t, []byte("challenge"), resp.Token)
	assert.Equal(t, elem, resp.Raw)
}

func TestParseTrustResponse_Final(t *testing.T) {
	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	expires := created.Add(8 * time.Hour)
	granted := NewIssuedTokenResponse(IssuedToken{
		Context:      "uuid-server",
		TokenID:      "urn:uuid:sct",
		WrappedProof: []byte("wrapped"),
		Created:      created,
		Expires:      expires,
		Token:        []byte("last"),
	})
	confirm := NewAuthenticatorResponse("uuid-server", []byte("authenticator"))
	data, err := NewResponseEnvelope(ActionIssueResponse, "", NewResponseCollection(granted, confirm))
	require.NoError(t, err)

	resp, err := ParseTrustResponse(data)
	require.NoError(t, err)

	assert.True(t, resp.Final)
	assert.Equal(t, "uuid-server", resp.Context)
	assert.Equal(t, "urn:uuid:sct", resp.TokenID)
	assert.Equal(t, []byte("wrapped"), resp.WrappedProof)
	assert.Equal(t, []byte("last"), resp.Token)
	assert.True(t, resp.Created.Equal(created), "Created = %v", resp.Created)
	assert.True(t, resp.Expires.Equal(expires), "Expires = %v", resp.Expires)
	assert.Equal(t, []byte("authenticator"), resp.Authenticator)
	assert.Equal(t, granted, resp.Raw, "raw must be the first collection element")
}

func TestParseTrustResponse_Whitespace(t *testing.T) {
	// Server output may be indented; the raw element keeps its own bytes.
	raw := `<s:Envelope xmlns:s="http://www.w3.org/2003/05/soap-envelope">
  <s:Body>
    <t:RequestSecurityTokenResponse xmlns:t="http://schemas.xmlsoap.org/ws/2005/02/trust" Context="c1">
      <t:BinaryExchange ValueType="http://schemas.xmlsoap.org/ws/2005/02/trust/spnego">AQI=</t:BinaryExchange>
    </t:RequestSecurityTokenResponse>
  </s:Body>
</s:Envelope>`

	resp, err := ParseTrustResponse([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2}, resp.Token)
	assert.True(t, bytes.HasPrefix(resp.Raw, []byte(`<t:RequestSecurityTokenResponse `)))
	assert.True(t, bytes.HasSuffix(resp.Raw, []byte(`</t:RequestSecurityTokenResponse>`)))
}

func TestParseTrustResponse_Errors(t *testing.T) {
	oneElement, err := NewResponseEnvelope(ActionIssueResponse, "",
		NewResponseCollection(NewAuthenticatorResponse("c", []byte("a"))))
	require.NoError(t, err)

	noToken, err := NewResponseEnvelope(ActionIssueResponse, "",
		[]byte(`<t:RequestSecurityTokenResponse xmlns:t="`+NsTrust+`" Context="c"></t:RequestSecurityTokenResponse>`))
	require.NoError(t, err)

	other, err := NewResponseEnvelope("urn:x", "", []byte(`<Other/>`))
	require.NoError(t, err)

	for name, data := range map[string][]byte{
		"collection of one": oneElement,
		"no BinaryExchange": noToken,
		"unexpected body":   other,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ParseTrustResponse(data)
			var se *SerializationError
			assert.True(t, errors.As(err, &se), "err = %v, want *SerializationError", err)
		})
	}
}

func TestParseTrustResponse_Fault(t *testing.T) {
	data, err := NewFaultEnvelope(Fault{Code: "s:Sender", Subcode: "a:FailedAuthentication", Detail: "denied"}, "")
	require.NoError(t, err)

	_, err = ParseTrustResponse(data)
	var f *Fault
	require.True(t, errors.As(err, &f), "err = %v, want *Fault", err)
	assert.True(t, f.IsAuthentication())
}

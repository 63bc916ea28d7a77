package soap

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	accountID = uuid.MustParse("123e4567-e89b-12d3-a456-426614174000")
	contactID = uuid.MustParse("9f8e7d6c-5b4a-4321-8765-0fedcba98765")
	sessTok   = testToken{id: "urn:uuid:sct", key: bytes.Repeat([]byte{1}, 32)}
)

func testRequests() []Request {
	account := EntityReference{LogicalName: "account", ID: accountID}
	return []Request{
		CreateRequest{Target: Entity{
			LogicalName: "account",
			Attributes: Parameters{
				"name":          "Contoso <Ltd> & Co",
				"numberofstaff": 42,
				"donotemail":    true,
				"revenue":       Money{Value: 1250.5},
				"industrycode":  OptionSetValue{Value: 3},
				"ratio":         0.25,
				"bigcount":      int64(1) << 40,
				"founded":       time.Date(1999, 12, 31, 23, 59, 58, 0, time.UTC),
				"parentid":      EntityReference{LogicalName: "account", ID: contactID, Name: "Parent"},
				"externalid":    contactID,
				"description":   nil,
			},
		}},
		RetrieveRequest{Target: account, ColumnSet: NewColumnSet("name", "revenue")},
		RetrieveRequest{Target: account, ColumnSet: AllColumns()},
		RetrieveMultipleRequest{Query: FetchExpression{Query: `<fetch><entity name="account"/></fetch>`}},
		RetrieveMultipleRequest{Query: QueryExpression{
			EntityName: "contact",
			ColumnSet:  NewColumnSet("fullname"),
			Criteria: FilterExpression{
				FilterOperator: "And",
				Conditions: []ConditionExpression{
					{AttributeName: "lastname", Operator: "Equal", Values: []any{"Smith"}},
					{AttributeName: "statecode", Operator: "In", Values: []any{0, 1}},
				},
			},
			Orders:   []OrderExpression{{AttributeName: "fullname", OrderType: "Descending"}},
			TopCount: 10,
			PageInfo: PagingInfo{Count: 50, PageNumber: 1},
		}},
		UpdateRequest{Target: Entity{LogicalName: "account", ID: accountID, Attributes: Parameters{"name": "Renamed"}}},
		DeleteRequest{Target: account},
		AssociateRequest{
			Target:          account,
			Relationship:    Relationship{SchemaName: "account_primary_contact"},
			RelatedEntities: EntityReferenceCollection{{LogicalName: "contact", ID: contactID}},
		},
		DisassociateRequest{
			Target:          account,
			Relationship:    Relationship{SchemaName: "account_parent_account", PrimaryEntityRole: "Referenced"},
			RelatedEntities: EntityReferenceCollection{{LogicalName: "account", ID: contactID}},
		},
		WhoAmIRequest{},
		OrganizationRequest{Name: "PublishAllXml"},
		OrganizationRequest{Name: "SetState", Parameters: Parameters{
			"EntityMoniker": account,
			"State":         OptionSetValue{Value: 1},
			"Status":        OptionSetValue{Value: 2},
		}},
	}
}

// TestCodec_RequestRoundTrip verifies every known request survives
// Encode followed by the server-side DecodeRequest unchanged.
func TestCodec_RequestRoundTrip(t *testing.T) {
	c := &Codec{}
	for _, req := range testRequests() {
		t.Run(req.RequestName(), func(t *testing.T) {
			data, err := c.Encode(testEndpoint, req, sessTok)
			require.NoError(t, err)

			got, err := DecodeRequest(data)
			require.NoError(t, err)
			assert.Equal(t, req, got)
		})
	}
}

// TestCodec_ResponseRoundTrip verifies every known response survives
// EncodeResponse followed by Decode unchanged.
func TestCodec_ResponseRoundTrip(t *testing.T) {
	responses := []Response{
		CreateResponse{ID: accountID},
		RetrieveResponse{Entity: Entity{LogicalName: "account", ID: accountID, Attributes: Parameters{"name": "Contoso"}}},
		RetrieveMultipleResponse{EntityCollection: EntityCollection{
			EntityName: "account",
			Entities: []Entity{
				{LogicalName: "account", ID: accountID, Attributes: Parameters{"name": "A"}},
				{LogicalName: "account", ID: contactID, Attributes: Parameters{"name": "B"}},
			},
			MoreRecords:      true,
			PagingCookie:     `<cookie page="1"/>`,
			TotalRecordCount: -1,
		}},
		RetrieveMultipleResponse{EntityCollection: EntityCollection{EntityName: "account"}},
		UpdateResponse{},
		DeleteResponse{},
		AssociateResponse{},
		DisassociateResponse{},
		WhoAmIResponse{UserID: accountID, BusinessUnitID: contactID, OrganizationID: uuid.Nil},
		OrganizationResponse{Name: "RetrieveVersion", Results: Parameters{"Version": "9.2.0.0"}},
	}
	c := &Codec{}
	for _, resp := range responses {
		t.Run(resp.ResponseName(), func(t *testing.T) {
			data, err := EncodeResponse(resp, "urn:uuid:1")
			require.NoError(t, err)

			got, err := c.Decode(data)
			require.NoError(t, err)
			assert.Equal(t, resp, got)
		})
	}
}

// TestCodec_DecodeCreateResponse decodes a create result written the way the
// service writes it.
func TestCodec_DecodeCreateResponse(t *testing.T) {
	raw := `<s:Envelope xmlns:s="http://www.w3.org/2003/05/soap-envelope" xmlns:a="http://www.w3.org/2005/08/addressing"><s:Header><a:Action s:mustUnderstand="1">http://schemas.microsoft.com/xrm/2011/Contracts/Services/IOrganizationService/ExecuteResponse</a:Action></s:Header><s:Body><ExecuteResponse xmlns="http://schemas.microsoft.com/xrm/2011/Contracts/Services"><ExecuteResult xmlns:a="http://schemas.microsoft.com/xrm/2011/Contracts" xmlns:i="http://www.w3.org/2001/XMLSchema-instance" i:type="a:CreateResponse"><a:ResponseName>Create</a:ResponseName><a:Results xmlns:b="http://schemas.datacontract.org/2004/07/System.Collections.Generic"><a:KeyValuePairOfstringanyType><b:key>id</b:key><b:value i:type="c:guid" xmlns:c="http://schemas.microsoft.com/2003/10/Serialization/">123e4567-e89b-12d3-a456-426614174000</b:value></a:KeyValuePairOfstringanyType></a:Results></ExecuteResult></ExecuteResponse></s:Body></s:Envelope>`

	got, err := (&Codec{}).Decode([]byte(raw))
	require.NoError(t, err)

	cr, ok := got.(CreateResponse)
	require.True(t, ok, "got %T, want CreateResponse", got)
	assert.Equal(t, "123e4567-e89b-12d3-a456-426614174000", cr.ID.String())
}

// TestCodec_Headers verifies the organization service headers.
func TestCodec_Headers(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		data, err := (&Codec{}).Encode(testEndpoint, WhoAmIRequest{}, sessTok)
		require.NoError(t, err)
		s := string(data)

		assert.Contains(t, s, `<a:Action s:mustUnderstand="1">`+ActionExecute+`</a:Action>`)
		assert.Contains(t, s, `<a:MessageID>urn:uuid:`)
		assert.Contains(t, s, `<a:Address>`+AddressAnonymous+`</a:Address>`)
		assert.Contains(t, s, `<a:To s:mustUnderstand="1">`+testEndpoint+`</a:To>`)
		assert.Contains(t, s, `<SdkClientVersion xmlns="`+NsContracts+`">`+DefaultClientVersion+`</SdkClientVersion>`)
		assert.Contains(t, s, `<UserType xmlns="`+NsContracts+`">CrmUser</UserType>`)
		assert.NotContains(t, s, "CallerId")
		assert.False(t, strings.HasPrefix(s, "<?xml"))
		assert.NotContains(t, s, "\n")
	})

	t.Run("caller id", func(t *testing.T) {
		c := &Codec{ClientVersion: "9.2.24011.00000", CallerID: contactID}
		data, err := c.Encode(testEndpoint, WhoAmIRequest{}, sessTok)
		require.NoError(t, err)
		s := string(data)

		assert.Contains(t, s, `<SdkClientVersion xmlns="`+NsContracts+`">9.2.24011.00000</SdkClientVersion>`)
		assert.Contains(t, s, `<CallerId xmlns="`+NsContracts+`">`+contactID.String()+`</CallerId>`)
	})
}

// TestCodec_UnknownValueType verifies values outside the registry fail
// instead of being dropped.
func TestCodec_UnknownValueType(t *testing.T) {
	type widget struct{ N int }

	tests := []struct {
		name string
		req  Request
	}{
		{"attribute", CreateRequest{Target: Entity{LogicalName: "account", Attributes: Parameters{"w": widget{1}}}}},
		{"parameter", OrganizationRequest{Name: "Custom", Parameters: Parameters{"p": []int{1}}}},
		{"query", RetrieveMultipleRequest{Query: "<fetch/>"}},
		{"condition value", RetrieveMultipleRequest{Query: QueryExpression{
			EntityName: "x",
			Criteria:   FilterExpression{Conditions: []ConditionExpression{{AttributeName: "a", Values: []any{uint8(1)}}}},
		}}},
		{"unnamed request", OrganizationRequest{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := (&Codec{}).Encode(testEndpoint, tt.req, sessTok)
			var se *SerializationError
			assert.True(t, errors.As(err, &se), "err = %v, want *SerializationError", err)
		})
	}

	_, err := (&Codec{}).Encode(testEndpoint, nil, sessTok)
	assert.Error(t, err)
}

// TestCodec_UnknownResponseType verifies unknown result typing is rejected.
func TestCodec_UnknownResponseType(t *testing.T) {
	raw := `<s:Envelope xmlns:s="http://www.w3.org/2003/05/soap-envelope"><s:Body><ExecuteResponse xmlns="http://schemas.microsoft.com/xrm/2011/Contracts/Services"><ExecuteResult xmlns:a="http://schemas.microsoft.com/crm/2011/Contracts" xmlns:i="http://www.w3.org/2001/XMLSchema-instance" i:type="a:ExportSolutionResponse"><a:ResponseName>ExportSolution</a:ResponseName></ExecuteResult></ExecuteResponse></s:Body></s:Envelope>`

	_, err := (&Codec{}).Decode([]byte(raw))
	var se *SerializationError
	require.True(t, errors.As(err, &se), "err = %v, want *SerializationError", err)
	assert.Equal(t, "ExportSolutionResponse", se.Type)
}

// TestCodec_UnknownValueInResponse verifies unknown value typing is rejected.
func TestCodec_UnknownValueInResponse(t *testing.T) {
	raw := `<s:Envelope xmlns:s="http://www.w3.org/2003/05/soap-envelope"><s:Body><ExecuteResponse xmlns="http://schemas.microsoft.com/xrm/2011/Contracts/Services"><ExecuteResult xmlns:a="http://schemas.microsoft.com/xrm/2011/Contracts" xmlns:i="http://www.w3.org/2001/XMLSchema-instance" i:type="a:OrganizationResponse"><a:ResponseName>Custom</a:ResponseName><a:Results xmlns:b="http://schemas.datacontract.org/2004/07/System.Collections.Generic"><a:KeyValuePairOfstringanyType><b:key>x</b:key><b:value i:type="a:AliasedValue"/></a:KeyValuePairOfstringanyType></a:Results></ExecuteResult></ExecuteResponse></s:Body></s:Envelope>`

	_, err := (&Codec{}).Decode([]byte(raw))
	var se *SerializationError
	require.True(t, errors.As(err, &se), "err = %v, want *SerializationError", err)
	assert.Equal(t, "AliasedValue", se.Type)
}

// TestCodec_DecodeFault verifies a fault body is returned as *Fault.
func TestCodec_DecodeFault(t *testing.T) {
	data, err := NewFaultEnvelope(Fault{Code: "s:Sender", Detail: "Invalid argument"}, "")
	require.NoError(t, err)

	_, err = (&Codec{}).Decode(data)
	var f *Fault
	require.True(t, errors.As(err, &f), "err = %v, want *Fault", err)
	assert.Equal(t, "Invalid argument", f.Detail)
	assert.Equal(t, ActionExecuteFault, f.Action)
}

// TestCodec_MissingResult verifies a missing ExecuteResult is a SerializationError.
func TestCodec_MissingResult(t *testing.T) {
	data, err := NewResponseEnvelope(ActionExecuteResponse, "", []byte(`<ExecuteResponse xmlns="`+NsServices+`"></ExecuteResponse>`))
	require.NoError(t, err)

	_, err = (&Codec{}).Decode(data)
	var se *SerializationError
	assert.True(t, errors.As(err, &se), "err = %v, want *SerializationError", err)
}

package soap

// XML namespace URIs used by the organization service and WS-* headers.
const (
	// NsSoap is the SOAP 1.2 envelope namespace.
	NsSoap = "http://www.w3.org/2003/05/soap-envelope"

	// NsAddressing is the WS-Addressing 1.0 namespace.
	NsAddressing = "http://www.w3.org/2005/08/addressing"

	// NsTrust is the WS-Trust (February 2005) namespace.
	NsTrust = "http://schemas.xmlsoap.org/ws/2005/02/trust"

	// NsSecureConversation is the WS-SecureConversation (February 2005) namespace.
	NsSecureConversation = "http://schemas.xmlsoap.org/ws/2005/02/sc"

	// NsSecurity is the WS-Security extension namespace.
	NsSecurity = "http://docs.oasis-open.org/wss/2004/01/oasis-200401-wss-wssecurity-secext-1.0.xsd"

	// NsSecurityUtility is the WS-Security utility namespace (Timestamp, Id).
	NsSecurityUtility = "http://docs.oasis-open.org/wss/2004/01/oasis-200401-wss-wssecurity-utility-1.0.xsd"

	// NsXMLDsig is the XML digital signature namespace.
	NsXMLDsig = "http://www.w3.org/2000/09/xmldsig#"

	// NsXMLEnc is the XML encryption namespace.
	NsXMLEnc = "http://www.w3.org/2001/04/xmlenc#"

	// NsContracts is the organization service data contract namespace.
	NsContracts = "http://schemas.microsoft.com/xrm/2011/Contracts"

	// NsCrmContracts holds the CRM specific message contracts (WhoAmI).
	NsCrmContracts = "http://schemas.microsoft.com/crm/2011/Contracts"

	// NsServices is the organization service contract namespace.
	NsServices = "http://schemas.microsoft.com/xrm/2011/Contracts/Services"

	// NsCollections is the data contract namespace of generic collections.
	NsCollections = "http://schemas.datacontract.org/2004/07/System.Collections.Generic"

	// NsArrays is the data contract namespace of primitive arrays.
	NsArrays = "http://schemas.microsoft.com/2003/10/Serialization/Arrays"

	// NsSerialization is the data contract serialization namespace (guid, char).
	NsSerialization = "http://schemas.microsoft.com/2003/10/Serialization/"

	// NsXsi is the XML Schema Instance namespace.
	NsXsi = "http://www.w3.org/2001/XMLSchema-instance"

	// NsXsd is the XML Schema namespace.
	NsXsd = "http://www.w3.org/2001/XMLSchema"
)

// WS-Addressing constants.
const (
	// AddressAnonymous is the WS-Addressing anonymous reply address.
	AddressAnonymous = "http://www.w3.org/2005/08/addressing/anonymous"
)

// Action URIs for the organization service.
const (
	// ActionExecute invokes IOrganizationService.Execute.
	ActionExecute = NsServices + "/IOrganizationService/Execute"

	// ActionExecuteResponse is the response to Execute.
	ActionExecuteResponse = ActionExecute + "Response"

	// ActionExecuteFault is the action of an OrganizationServiceFault.
	ActionExecuteFault = NsServices + "/IOrganizationService/ExecuteOrganizationServiceFaultFault"
)

// Action and type URIs for the WS-Trust SPNEGO negotiation.
const (
	// ActionIssue carries a RequestSecurityToken.
	ActionIssue = NsTrust + "/RST/Issue"

	// ActionIssueResponse carries a RequestSecurityTokenResponse (either side).
	ActionIssueResponse = NsTrust + "/RSTR/Issue"

	// RequestTypeIssue is the RequestType of an issuance request.
	RequestTypeIssue = NsTrust + "/Issue"

	// TokenTypeSCT is the token type of a security context token.
	TokenTypeSCT = NsSecureConversation + "/sct"

	// ValueTypeSpnego marks a BinaryExchange carrying SPNEGO tokens.
	ValueTypeSpnego = NsTrust + "/spnego"

	// EncodingBase64 is the EncodingType of base64 binary values.
	EncodingBase64 = "http://docs.oasis-open.org/wss/2004/01/oasis-200401-wss-soap-message-security-1.0#Base64Binary"

	// KeyWrapGSS is the EncryptionMethod of a GSS-wrapped proof token.
	KeyWrapGSS = "http://schemas.xmlsoap.org/2005/02/trust/spnego#GSS_Wrap"
)

// Algorithm URIs used in the security header.
const (
	AlgExcC14N   = "http://www.w3.org/2001/10/xml-exc-c14n#"
	AlgHMACSHA1  = NsXMLDsig + "hmac-sha1"
	AlgSHA1      = NsXMLDsig + "sha1"
	AlgPSHA1     = NsSecureConversation + "/dk/p_sha1"
	DefaultLabel = "WS-SecureConversationWS-SecureConversation"
)

// Organization service header values.
const (
	// UserTypeCrmUser is the fixed UserType header value.
	UserTypeCrmUser = "CrmUser"

	// DefaultClientVersion is sent as SdkClientVersion when none is configured.
	DefaultClientVersion = "9.0"
)

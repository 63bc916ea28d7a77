// Package security establishes the negotiated security context used to sign
// organization service requests.
//
// # Negotiation
//
// Negotiator drives a WS-Trust issuance exchange whose BinaryExchange
// elements carry SPNEGO tokens produced by a Provider. The number of legs
// depends on the mechanism: Kerberos usually completes in one, NTLM in two.
// When the server returns the final response collection, the wrapped proof
// token is unwrapped with the provider and the server's authenticator is
// checked against a hash of every exchanged element before the Session is
// trusted.
//
// # Providers
//
//   - SSPIProvider: Windows SSPI Negotiate package (current user or explicit)
//   - NTLMProvider: pure Go NTLMv2 (via github.com/Azure/go-ntlmssp)
//   - KerberosProvider: pure Go Kerberos (via github.com/go-krb5/krb5);
//     password, keytab or credential cache
//
// NewProviderFactory picks SSPI on Windows. Elsewhere it uses Kerberos for the
// ambient identity (credential cache) and NTLM for explicit credentials.
//
// # Sessions
//
// SessionCache holds at most one Session per client. A session is reused
// only while it has more than RenewalSkew left; concurrent callers that find
// it stale share a single negotiation.
package security

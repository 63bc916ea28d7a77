// Package xrm provides an organization service client that authenticates
// with a negotiated security session.
//
// The client first runs a WS-Trust token exchange (SPNEGO binary exchange)
// with the service, receives a security context token and its proof key,
// then signs every SOAP 1.2 request with a key derived from that proof.
//
//   - Negotiation with NTLM, Kerberos or Windows SSPI
//   - Session reuse until shortly before the server-issued expiry
//   - Create, Retrieve, RetrieveMultiple, Update, Delete, Associate,
//     Disassociate and generic Execute
//
// # Architecture
//
// The library is organized into layers:
//
//	┌─────────────────────────────────────────────────────────┐
//	│  client/           Config + OrganizationService facade  │
//	├─────────────────────────────────────────────────────────┤
//	│  security/         Negotiator, providers, session cache │
//	├─────────────────────────────────────────────────────────┤
//	│  soap/             Envelopes, WS-Trust bodies, codec    │
//	├─────────────────────────────────────────────────────────┤
//	│  soap/transport/   HTTP POST                            │
//	└─────────────────────────────────────────────────────────┘
//
// # Quick Start
//
//	cfg := client.DefaultConfig()
//	cfg.Endpoint = "https://crm.contoso.com/contoso/XRMServices/2011/Organization.svc"
//	cfg.Principal = `CONTOSO\alice`
//	cfg.Secret = os.Getenv(client.SecretEnv)
//
//	c, err := client.New(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer c.Close()
//
//	who, err := c.WhoAmI(ctx)
package xrm

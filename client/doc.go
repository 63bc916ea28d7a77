// Package client provides a high-level API for the organization service.
//
// A Client negotiates a security session with the endpoint on first use
// (WS-Trust with an SPNEGO binary exchange), signs each request with it,
// and renegotiates shortly before the session expires or when the service
// rejects it.
//
//	cfg := client.DefaultConfig()
//	cfg.Endpoint = "https://crm.contoso.com/contoso/XRMServices/2011/Organization.svc"
//	cfg.Principal = `CONTOSO\alice`
//	cfg.Secret = os.Getenv(client.SecretEnv)
//	cfg.TargetName = "HTTP/crm.contoso.com"
//
//	c, err := client.New(cfg)
//	if err != nil {
//		return err
//	}
//	defer c.Close()
//
//	id, err := c.Create(ctx, soap.Entity{
//		LogicalName: "account",
//		Attributes:  soap.Parameters{"name": "Fourth Coffee"},
//	})
//
// Errors can be classified with KindOf and IsRetryable. The client never
// retries on its own.
package client

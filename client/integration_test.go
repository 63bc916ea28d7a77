//go:build integration
// +build integration

package client_test

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smnsjas/go-xrm/client"
	"github.com/smnsjas/go-xrm/security"
	"github.com/smnsjas/go-xrm/soap"
)

// integrationConfig builds a client config from the environment:
//
//	XRM_TEST_ENDPOINT  - organization service URL
//	XRM_TEST_USER      - principal (empty = current identity)
//	XRM_SECRET         - password
//	XRM_TEST_SPN       - target name (required for kerberos)
//	XRM_TEST_MECHANISM - auto, ntlm, kerberos, sspi
func integrationConfig(t *testing.T) client.Config {
	t.Helper()

	endpoint := os.Getenv("XRM_TEST_ENDPOINT")
	if endpoint == "" {
		t.Skip("XRM_TEST_ENDPOINT not set, skipping integration test")
	}

	cfg := client.DefaultConfig()
	cfg.Endpoint = endpoint
	cfg.Principal = os.Getenv("XRM_TEST_USER")
	cfg.Secret = os.Getenv(client.SecretEnv)
	cfg.TargetName = os.Getenv("XRM_TEST_SPN")
	cfg.InsecureSkipVerify = true // self-signed test servers
	if m := os.Getenv("XRM_TEST_MECHANISM"); m != "" {
		cfg.Mechanism = security.Mechanism(m)
	}
	if cfg.Principal != "" && cfg.Secret == "" {
		t.Skip("XRM_SECRET not set, skipping integration test")
	}
	return cfg
}

// To run:
//
//	export XRM_TEST_ENDPOINT=https://crm.contoso.com/contoso/XRMServices/2011/Organization.svc
//	export XRM_TEST_USER='CONTOSO\alice'
//	export XRM_SECRET=YourPassword
//	go test -v -tags=integration ./client/... -run TestIntegration
func TestIntegration_WhoAmIAndCRUD(t *testing.T) {
	c, err := client.New(integrationConfig(t))
	require.NoError(t, err)
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	who, err := c.WhoAmI(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, who.UserID)
	t.Logf("UserId=%s session expires %s", who.UserID, c.Session().ExpiresAt)

	name := "go-xrm integration " + uuid.NewString()
	id, err := c.Create(ctx, soap.Entity{
		LogicalName: "account",
		Attributes:  soap.Parameters{"name": name},
	})
	require.NoError(t, err)
	ref := soap.EntityReference{LogicalName: "account", ID: id}
	defer func() {
		assert.NoError(t, c.Delete(context.Background(), ref))
	}()

	got, err := c.Retrieve(ctx, ref, soap.NewColumnSet("name"))
	require.NoError(t, err)
	assert.Equal(t, name, got.Attributes["name"])

	require.NoError(t, c.Update(ctx, soap.Entity{
		LogicalName: "account",
		ID:          id,
		Attributes:  soap.Parameters{"name": name + " (updated)"},
	}))
}

func TestIntegration_ConcurrentCallsShareSession(t *testing.T) {
	c, err := client.New(integrationConfig(t))
	require.NoError(t, err)
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	var wg sync.WaitGroup
	errs := make(chan error, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.WhoAmI(ctx)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	require.NotNil(t, c.Session())
}

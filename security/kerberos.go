package security

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-krb5/krb5/client"
	"github.com/go-krb5/krb5/config"
	"github.com/go-krb5/krb5/credentials"
	"github.com/go-krb5/krb5/gssapi"
	"github.com/go-krb5/krb5/iana/flags"
	"github.com/go-krb5/krb5/keytab"
	"github.com/go-krb5/krb5/spnego"
)

// KerberosProvider negotiates with Kerberos through SPNEGO using the pure
// Go github.com/go-krb5/krb5 library.
type KerberosProvider struct {
	cfg    ProviderConfig
	cred   Credential
	client *client.Client

	negotiateClient *spnego.NegotiateClient
	target          string
	flags           ContextFlag
	sent            bool
	complete        bool
}

// NewKerberosProvider creates a Kerberos provider. The krb5 client is built
// by Init.
func NewKerberosProvider(cfg ProviderConfig, cred Credential) (*KerberosProvider, error) {
	return &KerberosProvider{cfg: cfg, cred: cred}, nil
}

// Init loads krb5.conf and builds a client from, in order of preference, a
// keytab, a credential cache or the password. An ambient identity always
// uses the credential cache.
func (p *KerberosProvider) Init(_ context.Context, target string, f ContextFlag) error {
	if target == "" {
		return errors.New("kerberos: target SPN is required")
	}
	p.target = target
	p.flags = f

	confPath := p.cfg.Krb5ConfPath
	if confPath == "" {
		confPath = os.Getenv("KRB5_CONFIG")
		if confPath == "" {
			confPath = "/etc/krb5.conf"
		}
	}
	conf, err := config.Load(confPath)
	if err != nil {
		return fmt.Errorf("kerberos: load krb5.conf from %s: %w", confPath, err)
	}

	realm := p.cfg.Realm
	if realm == "" {
		realm = strings.ToUpper(p.cred.Domain)
	}
	if realm == "" {
		realm = conf.LibDefaults.DefaultRealm
	}

	switch {
	case p.cfg.KeytabPath != "" && !p.cred.Ambient:
		kt, err := keytab.Load(p.cfg.KeytabPath)
		if err != nil {
			return fmt.Errorf("kerberos: load keytab from %s: %w", p.cfg.KeytabPath, err)
		}
		p.client = client.NewWithKeytab(p.cred.Username, realm, kt, conf, client.DisablePAFXFAST(true))
	case p.cfg.CCachePath != "" || p.cred.Ambient:
		path := ccachePath(p.cfg.CCachePath)
		cc, err := credentials.LoadCCache(path)
		if err != nil {
			return fmt.Errorf("kerberos: load ccache from %s: %w", path, err)
		}
		p.client, err = client.NewFromCCache(cc, conf, client.DisablePAFXFAST(true))
		if err != nil {
			return fmt.Errorf("kerberos: create client from ccache: %w", err)
		}
	case p.cred.Username != "":
		p.client = client.NewWithPassword(p.cred.Username, realm, p.cred.Secret, conf, client.DisablePAFXFAST(true))
	default:
		return errors.New("kerberos: no credentials provided (keytab, ccache, or password required)")
	}
	return nil
}

// ccachePath resolves the credential cache: the configured path, then
// KRB5CCNAME, then the per-user default.
func ccachePath(configured string) string {
	path := configured
	if path == "" {
		path = os.Getenv("KRB5CCNAME")
	}
	if path == "" {
		return fmt.Sprintf("/tmp/krb5cc_%d", os.Getuid())
	}
	return strings.TrimPrefix(path, "FILE:")
}

// Step returns the NegTokenInit on the first call. The server's reply
// carries the AP-REP, which completes the context.
func (p *KerberosProvider) Step(_ context.Context, input []byte) (Status, []byte, error) {
	if p.client == nil {
		return StatusFailed, nil, errors.New("kerberos: provider not initialized")
	}
	if !p.sent {
		token, err := p.initToken()
		if err != nil {
			return StatusFailed, nil, err
		}
		p.sent = true
		return StatusContinue, token, nil
	}
	if len(input) == 0 && !p.complete {
		return StatusFailed, nil, errors.New("kerberos: empty server token")
	}
	p.complete = true
	return StatusOK, nil, nil
}

func (p *KerberosProvider) initToken() ([]byte, error) {
	if err := p.client.Login(); err != nil {
		return nil, fmt.Errorf("kerberos: login: %w", err)
	}
	tkt, sessionKey, err := p.client.GetServiceTicket(p.target)
	if err != nil {
		return nil, fmt.Errorf("kerberos: get service ticket: %w", err)
	}

	var gssFlags, apOptions []int
	if p.flags.Has(FlagIntegrity) {
		gssFlags = append(gssFlags, gssapi.ContextFlagInteg)
	}
	if p.flags.Has(FlagConfidentiality) {
		gssFlags = append(gssFlags, gssapi.ContextFlagConf)
	}
	if p.flags.Has(FlagMutual) {
		gssFlags = append(gssFlags, gssapi.ContextFlagMutual)
		apOptions = append(apOptions, flags.APOptionMutualRequired)
	}

	negTokenInit, err := spnego.NewNegTokenInitKRB5WithFlags(p.client, tkt, sessionKey, gssFlags, apOptions)
	if err != nil {
		return nil, fmt.Errorf("kerberos: create negTokenInit: %w", err)
	}
	p.negotiateClient = spnego.NewNegotiateClient(p.client, p.target)

	token := &spnego.SPNEGOToken{Init: true, NegTokenInit: negTokenInit}
	b, err := token.Marshal()
	if err != nil {
		return nil, fmt.Errorf("kerberos: marshal token: %w", err)
	}
	return b, nil
}

// Decrypt unwraps a GSS wrap token (sealed or sign-only).
func (p *KerberosProvider) Decrypt(wrapped []byte) ([]byte, error) {
	if !p.complete || p.negotiateClient == nil {
		return nil, errors.New("kerberos: context not established")
	}
	res, err := p.negotiateClient.UnwrapAuto(wrapped)
	if err != nil {
		return nil, fmt.Errorf("kerberos: unwrap: %w", err)
	}
	return res.Payload, nil
}

// Close destroys the krb5 client.
func (p *KerberosProvider) Close() error {
	if p.client != nil {
		p.client.Destroy()
	}
	return nil
}

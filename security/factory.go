package security

import "fmt"

// Mechanism selects a provider backend.
type Mechanism string

const (
	MechanismAuto     Mechanism = "auto"
	MechanismNTLM     Mechanism = "ntlm"
	MechanismKerberos Mechanism = "kerberos"
	MechanismSSPI     Mechanism = "sspi"
)

// ProviderConfig configures the providers built by DefaultProviderFactory.
type ProviderConfig struct {
	// Mechanism defaults to MechanismAuto.
	Mechanism Mechanism

	// Kerberos settings.
	Realm        string
	Krb5ConfPath string
	KeytabPath   string
	CCachePath   string
}

// DefaultProviderFactory returns a factory for cfg.Mechanism. Auto picks
// SSPI on Windows. Elsewhere it picks NTLM for explicit credentials and
// Kerberos for the ambient identity or when a keytab is configured.
func DefaultProviderFactory(cfg ProviderConfig) ProviderFactory {
	return func(cred Credential) (Provider, error) {
		switch cfg.Mechanism {
		case MechanismNTLM:
			return asProvider(NewNTLMProvider(cred))
		case MechanismKerberos:
			return asProvider(NewKerberosProvider(cfg, cred))
		case MechanismSSPI:
			return newSSPIProvider(cred)
		case MechanismAuto, "":
			return autoProvider(cfg, cred)
		default:
			return nil, fmt.Errorf("%w: %q", ErrUnsupportedMechanism, cfg.Mechanism)
		}
	}
}

// asProvider keeps a nil concrete provider from becoming a non-nil
// interface value.
func asProvider[P Provider](p P, err error) (Provider, error) {
	if err != nil {
		return nil, err
	}
	return p, nil
}

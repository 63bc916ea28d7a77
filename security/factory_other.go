//go:build !windows

package security

import "fmt"

func newSSPIProvider(Credential) (Provider, error) {
	return nil, fmt.Errorf("sspi: %w", ErrUnsupportedMechanism)
}

func autoProvider(cfg ProviderConfig, cred Credential) (Provider, error) {
	if cred.Ambient || cfg.KeytabPath != "" || cfg.CCachePath != "" {
		return asProvider(NewKerberosProvider(cfg, cred))
	}
	return asProvider(NewNTLMProvider(cred))
}

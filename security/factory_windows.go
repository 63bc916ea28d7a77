//go:build windows

package security

func newSSPIProvider(cred Credential) (Provider, error) {
	return asProvider(NewSSPIProvider(cred))
}

func autoProvider(_ ProviderConfig, cred Credential) (Provider, error) {
	return asProvider(NewSSPIProvider(cred))
}

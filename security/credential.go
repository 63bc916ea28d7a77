package security

import (
	"log/slog"
	"strings"
)

// Credential identifies who negotiates. The zero value with Ambient set is
// the process's current identity.
type Credential struct {
	Domain   string
	Username string

	// Secret is carried verbatim. It is never logged or formatted.
	Secret string

	// Ambient selects the current process identity (SSO, credential cache).
	Ambient bool
}

// ResolveCredential normalizes a principal string:
//
//   - ""             ambient identity; secret is discarded
//   - DOMAIN\user    domain DOMAIN, user "user"
//   - user@domain    domain "domain", user "user" (no backslash, one @)
//   - anything else  domain "", user principal
//
// Malformed input never fails; it falls back to the last form.
func ResolveCredential(principal, secret string) Credential {
	if principal == "" {
		return Credential{Ambient: true}
	}
	if strings.Count(principal, `\`) == 1 {
		domain, user, _ := strings.Cut(principal, `\`)
		return Credential{Domain: domain, Username: user, Secret: secret}
	}
	if !strings.Contains(principal, `\`) && strings.Count(principal, "@") == 1 {
		user, domain, _ := strings.Cut(principal, "@")
		return Credential{Domain: domain, Username: user, Secret: secret}
	}
	return Credential{Username: principal, Secret: secret}
}

// Principal returns the normalized principal, e.g. "DOMAIN\user".
func (c Credential) Principal() string {
	switch {
	case c.Ambient:
		return "<current user>"
	case c.Domain == "":
		return c.Username
	default:
		return c.Domain + `\` + c.Username
	}
}

// String implements fmt.Stringer without the secret.
func (c Credential) String() string {
	return c.Principal()
}

// LogValue implements slog.LogValuer without the secret.
func (c Credential) LogValue() slog.Value {
	if c.Ambient {
		return slog.GroupValue(slog.Bool("ambient", true))
	}
	return slog.GroupValue(
		slog.String("domain", c.Domain),
		slog.String("username", c.Username),
	)
}

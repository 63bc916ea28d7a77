package security

import (
	"log/slog"
	"time"
)

// RenewalSkew is how long before expiry a session stops being reused.
const RenewalSkew = 10 * time.Second

// Session is an established security context. It is created only by a
// completed negotiation and is read-only afterwards.
type Session struct {
	// ContextTokenID is the server-issued SecurityContextToken identifier.
	ContextTokenID string

	// ProofToken is the shared key unwrapped from the final response.
	ProofToken []byte

	// ExpiresAt is the server-issued lifetime.
	ExpiresAt time.Time
}

// Usable reports whether the session may sign a request at now:
// now < ExpiresAt - RenewalSkew.
func (s *Session) Usable(now time.Time) bool {
	return s != nil && now.Before(s.ExpiresAt.Add(-RenewalSkew))
}

// TokenID returns the context token identifier.
func (s *Session) TokenID() string {
	return s.ContextTokenID
}

// Key returns the proof token.
func (s *Session) Key() []byte {
	return s.ProofToken
}

// LogValue implements slog.LogValuer without the proof token.
func (s *Session) LogValue() slog.Value {
	if s == nil {
		return slog.StringValue("<nil>")
	}
	return slog.GroupValue(
		slog.String("context_token", s.ContextTokenID),
		slog.Time("expires_at", s.ExpiresAt),
	)
}

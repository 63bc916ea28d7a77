package security

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"
)

// SessionNegotiator establishes a new session. *Negotiator implements it.
type SessionNegotiator interface {
	Negotiate(ctx context.Context, endpoint string, cred Credential) (*Session, error)
}

// SessionCache holds at most one session and renegotiates when it is no
// longer usable. Concurrent callers that find the session unusable share a
// single negotiation and observe the same result.
type SessionCache struct {
	mu      sync.RWMutex
	session *Session

	group  singleflight.Group
	clock  Clock
	logger *slog.Logger
}

// CacheOption configures a SessionCache.
type CacheOption func(*SessionCache)

// WithClock sets the clock used for lifetime checks.
func WithClock(c Clock) CacheOption {
	return func(sc *SessionCache) {
		if c != nil {
			sc.clock = c
		}
	}
}

// WithCacheLogger sets the logger.
func WithCacheLogger(l *slog.Logger) CacheOption {
	return func(sc *SessionCache) {
		if l != nil {
			sc.logger = l
		}
	}
}

// NewSessionCache creates an empty cache.
func NewSessionCache(opts ...CacheOption) *SessionCache {
	sc := &SessionCache{
		clock:  SystemClock{},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(sc)
	}
	return sc
}

// EnsureValid returns the cached session if it is usable, otherwise it
// negotiates a new one. A failed negotiation leaves the cached session as
// it was. The context of the caller that starts a negotiation governs it.
func (sc *SessionCache) EnsureValid(ctx context.Context, neg SessionNegotiator, endpoint string, cred Credential) (*Session, error) {
	if s := sc.usable(); s != nil {
		return s, nil
	}

	v, err, shared := sc.group.Do(endpoint, func() (any, error) {
		// Another caller may have finished a negotiation while we waited.
		if s := sc.usable(); s != nil {
			return s, nil
		}
		sc.logger.Debug("negotiating security session", "endpoint", endpoint)
		s, err := neg.Negotiate(ctx, endpoint, cred)
		if err != nil {
			return nil, err
		}
		sc.mu.Lock()
		sc.session = s
		sc.mu.Unlock()
		if !s.Usable(sc.clock.Now()) {
			sc.logger.Warn("negotiated session lifetime is shorter than the renewal skew",
				"expires_at", s.ExpiresAt, "skew", RenewalSkew)
		}
		return s, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		sc.logger.Debug("joined in-flight negotiation", "endpoint", endpoint)
	}
	return v.(*Session), nil
}

// Invalidate drops the cached session so the next call renegotiates.
func (sc *SessionCache) Invalidate() {
	sc.mu.Lock()
	sc.session = nil
	sc.mu.Unlock()
}

// Current returns the cached session, usable or not.
func (sc *SessionCache) Current() *Session {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.session
}

func (sc *SessionCache) usable() *Session {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	if sc.session.Usable(sc.clock.Now()) {
		return sc.session
	}
	return nil
}

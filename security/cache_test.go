package security

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubNegotiator struct {
	calls    atomic.Int32
	lifetime time.Duration
	clock    Clock
	err      error
	release  chan struct{}
}

func (n *stubNegotiator) Negotiate(ctx context.Context, _ string, _ Credential) (*Session, error) {
	c := n.calls.Add(1)
	if n.release != nil {
		select {
		case <-n.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if n.err != nil {
		return nil, n.err
	}
	return &Session{
		ContextTokenID: fmt.Sprintf("sct-%d", c),
		ProofToken:     []byte("proof"),
		ExpiresAt:      n.clock.Now().Add(n.lifetime),
	}, nil
}

var cacheStart = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func TestSessionCache_ReusesUsableSession(t *testing.T) {
	clock := NewManualClock(cacheStart)
	neg := &stubNegotiator{lifetime: time.Hour, clock: clock}
	cache := NewSessionCache(WithClock(clock))
	ctx := context.Background()

	s1, err := cache.EnsureValid(ctx, neg, "https://crm", Credential{Ambient: true})
	require.NoError(t, err)
	s2, err := cache.EnsureValid(ctx, neg, "https://crm", Credential{Ambient: true})
	require.NoError(t, err)

	assert.Same(t, s1, s2)
	assert.EqualValues(t, 1, neg.calls.Load())
}

func TestSessionCache_RenewsInsideSkew(t *testing.T) {
	clock := NewManualClock(cacheStart)
	neg := &stubNegotiator{lifetime: time.Minute, clock: clock}
	cache := NewSessionCache(WithClock(clock))
	ctx := context.Background()

	s1, err := cache.EnsureValid(ctx, neg, "https://crm", Credential{})
	require.NoError(t, err)

	// 55s in, 5s remain: inside the renewal skew.
	clock.Advance(55 * time.Second)
	s2, err := cache.EnsureValid(ctx, neg, "https://crm", Credential{})
	require.NoError(t, err)

	assert.NotSame(t, s1, s2)
	assert.EqualValues(t, 2, neg.calls.Load())
}

func TestSessionCache_KeepsSessionWithMarginLeft(t *testing.T) {
	clock := NewManualClock(cacheStart)
	neg := &stubNegotiator{lifetime: 2 * time.Minute, clock: clock}
	cache := NewSessionCache(WithClock(clock))
	ctx := context.Background()

	_, err := cache.EnsureValid(ctx, neg, "https://crm", Credential{})
	require.NoError(t, err)

	// 60s remain.
	clock.Advance(time.Minute)
	_, err = cache.EnsureValid(ctx, neg, "https://crm", Credential{})
	require.NoError(t, err)
	assert.EqualValues(t, 1, neg.calls.Load())
}

func TestSessionCache_ConcurrentCallersShareNegotiation(t *testing.T) {
	clock := NewManualClock(cacheStart)
	neg := &stubNegotiator{lifetime: time.Hour, clock: clock, release: make(chan struct{})}
	cache := NewSessionCache(WithClock(clock))

	const callers = 8
	var wg sync.WaitGroup
	sessions := make([]*Session, callers)
	errs := make([]error, callers)
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sessions[i], errs[i] = cache.EnsureValid(context.Background(), neg, "https://crm", Credential{})
		}()
	}

	require.Eventually(t, func() bool { return neg.calls.Load() == 1 }, time.Second, time.Millisecond)
	// Give the remaining callers time to join the in-flight negotiation.
	time.Sleep(20 * time.Millisecond)
	close(neg.release)
	wg.Wait()

	assert.EqualValues(t, 1, neg.calls.Load())
	for i := range callers {
		require.NoError(t, errs[i])
		assert.Same(t, sessions[0], sessions[i])
	}
}

func TestSessionCache_FailureKeepsPriorSession(t *testing.T) {
	clock := NewManualClock(cacheStart)
	neg := &stubNegotiator{lifetime: time.Minute, clock: clock}
	cache := NewSessionCache(WithClock(clock))
	ctx := context.Background()

	prior, err := cache.EnsureValid(ctx, neg, "https://crm", Credential{})
	require.NoError(t, err)

	clock.Advance(time.Minute)
	neg.err = &AuthenticationError{State: StateContinuing, Err: errors.New("denied")}
	_, err = cache.EnsureValid(ctx, neg, "https://crm", Credential{})
	require.Error(t, err)
	assert.True(t, IsAuthenticationError(err))
	assert.Same(t, prior, cache.Current())

	// Still unusable, so the next call negotiates again.
	neg.err = nil
	next, err := cache.EnsureValid(ctx, neg, "https://crm", Credential{})
	require.NoError(t, err)
	assert.NotSame(t, prior, next)
	assert.EqualValues(t, 3, neg.calls.Load())
}

func TestSessionCache_Invalidate(t *testing.T) {
	clock := NewManualClock(cacheStart)
	neg := &stubNegotiator{lifetime: time.Hour, clock: clock}
	cache := NewSessionCache(WithClock(clock))
	ctx := context.Background()

	_, err := cache.EnsureValid(ctx, neg, "https://crm", Credential{})
	require.NoError(t, err)
	cache.Invalidate()
	assert.Nil(t, cache.Current())

	_, err = cache.EnsureValid(ctx, neg, "https://crm", Credential{})
	require.NoError(t, err)
	assert.EqualValues(t, 2, neg.calls.Load())
}

func TestSessionCache_ShortLifetimeReturnedOnce(t *testing.T) {
	clock := NewManualClock(cacheStart)
	neg := &stubNegotiator{lifetime: 5 * time.Second, clock: clock}
	cache := NewSessionCache(WithClock(clock))
	ctx := context.Background()

	s, err := cache.EnsureValid(ctx, neg, "https://crm", Credential{})
	require.NoError(t, err)
	require.NotNil(t, s)

	_, err = cache.EnsureValid(ctx, neg, "https://crm", Credential{})
	require.NoError(t, err)
	assert.EqualValues(t, 2, neg.calls.Load())
}

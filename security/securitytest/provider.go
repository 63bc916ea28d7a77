// Package securitytest provides a deterministic security provider and an
// in-process organization service for tests.
package securitytest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/smnsjas/go-xrm/security"
)

// ErrInjected is returned by FakeProvider when a failure is configured.
var ErrInjected = errors.New("securitytest: injected provider failure")

// FakeProvider is a security.Provider with predictable tokens. It reports
// StatusOK after consuming Rounds server tokens and opens sealed values
// with Seal's XOR key.
type FakeProvider struct {
	// Rounds is the number of server tokens consumed before the context is
	// established. Zero means one.
	Rounds int

	// Key is shared with the Server and used by Decrypt.
	Key []byte

	// FailInit makes Init fail.
	FailInit bool

	// FailAtStep makes the n-th Step (1-based, Step(nil) is 1) fail.
	FailAtStep int

	// RejectAtStep makes the n-th Step report StatusFailed without an error.
	RejectAtStep int

	steps    int
	consumed int
	closed   atomic.Bool
	target   string
	flags    security.ContextFlag
}

// Init implements security.Provider.
func (p *FakeProvider) Init(_ context.Context, target string, flags security.ContextFlag) error {
	if p.FailInit {
		return ErrInjected
	}
	p.target, p.flags = target, flags
	return nil
}

// Step implements security.Provider.
func (p *FakeProvider) Step(_ context.Context, input []byte) (security.Status, []byte, error) {
	p.steps++
	if p.steps == p.FailAtStep {
		return security.StatusFailed, nil, ErrInjected
	}
	if p.steps == p.RejectAtStep {
		return security.StatusFailed, nil, nil
	}
	if input == nil {
		return security.StatusContinue, ClientToken(0), nil
	}
	if !bytes.HasPrefix(input, []byte("server-")) {
		return security.StatusFailed, nil, fmt.Errorf("securitytest: unexpected server token %q", input)
	}
	p.consumed++
	rounds := p.Rounds
	if rounds == 0 {
		rounds = 1
	}
	if p.consumed >= rounds {
		return security.StatusOK, ClientToken(p.consumed), nil
	}
	return security.StatusContinue, ClientToken(p.consumed), nil
}

// Decrypt implements security.Provider.
func (p *FakeProvider) Decrypt(wrapped []byte) ([]byte, error) {
	if len(p.Key) == 0 {
		return nil, errors.New("securitytest: no key")
	}
	return Seal(p.Key, wrapped), nil
}

// Close implements security.Provider.
func (p *FakeProvider) Close() error {
	p.closed.Store(true)
	return nil
}

// Closed reports whether Close was called.
func (p *FakeProvider) Closed() bool {
	return p.closed.Load()
}

// Target returns the target passed to Init.
func (p *FakeProvider) Target() string {
	return p.target
}

// Flags returns the flags passed to Init.
func (p *FakeProvider) Flags() security.ContextFlag {
	return p.flags
}

// Steps returns the number of Step calls.
func (p *FakeProvider) Steps() int {
	return p.steps
}

// ClientToken is the token FakeProvider sends after consuming n server tokens.
func ClientToken(n int) []byte {
	return fmt.Appendf(nil, "client-%d", n)
}

// ServerToken is the token the Server sends on leg n.
func ServerToken(n int) []byte {
	return fmt.Appendf(nil, "server-%d", n)
}

// Seal XORs data with key. It is its own inverse.
func Seal(key, data []byte) []byte {
	out := make([]byte, len(data))
	for i := range data {
		out[i] = data[i] ^ key[i%len(key)]
	}
	return out
}

// Factory creates FakeProviders and records what it was asked for.
type Factory struct {
	// New builds the provider for each negotiation.
	New func() *FakeProvider

	// FailOnNew makes every call fail.
	FailOnNew bool

	calls    atomic.Int32
	last     atomic.Pointer[FakeProvider]
	lastCred atomic.Pointer[security.Credential]
}

// ProviderFactory implements security.ProviderFactory.
func (f *Factory) ProviderFactory(cred security.Credential) (security.Provider, error) {
	f.calls.Add(1)
	f.lastCred.Store(&cred)
	if f.FailOnNew {
		return nil, ErrInjected
	}
	p := &FakeProvider{}
	if f.New != nil {
		p = f.New()
	}
	f.last.Store(p)
	return p, nil
}

// Calls returns how many providers were created.
func (f *Factory) Calls() int {
	return int(f.calls.Load())
}

// Last returns the most recently created provider.
func (f *Factory) Last() *FakeProvider {
	return f.last.Load()
}

// LastCredential returns the credential of the most recent call.
func (f *Factory) LastCredential() security.Credential {
	if c := f.lastCred.Load(); c != nil {
		return *c
	}
	return security.Credential{}
}

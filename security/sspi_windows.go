//go:build windows

package security

import (
	"context"
	"errors"
	"fmt"

	"github.com/alexbrainman/sspi"
	"github.com/alexbrainman/sspi/negotiate"
)

// SSPIProvider negotiates through the Windows Negotiate package. It
// supports the current logon identity as well as explicit credentials.
type SSPIProvider struct {
	cred     Credential
	sspiCred *sspi.Credentials
	ctx      *negotiate.ClientContext
	first    []byte
	complete bool
}

// NewSSPIProvider creates an SSPI provider.
func NewSSPIProvider(cred Credential) (*SSPIProvider, error) {
	return &SSPIProvider{cred: cred}, nil
}

// Init acquires credentials and creates the client context.
func (p *SSPIProvider) Init(_ context.Context, target string, f ContextFlag) error {
	var err error
	if p.cred.Ambient {
		p.sspiCred, err = negotiate.AcquireCurrentUserCredentials()
	} else {
		p.sspiCred, err = negotiate.AcquireUserCredentials(p.cred.Domain, p.cred.Username, p.cred.Secret)
	}
	if err != nil {
		return fmt.Errorf("sspi: acquire credentials: %w", err)
	}

	p.ctx, p.first, err = negotiate.NewClientContextWithFlags(p.sspiCred, target, sspiFlags(f))
	if err != nil {
		return fmt.Errorf("sspi: initialize context: %w", err)
	}
	return nil
}

func sspiFlags(f ContextFlag) uint32 {
	out := uint32(sspi.ISC_REQ_CONNECTION)
	if f.Has(FlagMutual) {
		out |= sspi.ISC_REQ_MUTUAL_AUTH
	}
	if f.Has(FlagReplayDetect) {
		out |= sspi.ISC_REQ_REPLAY_DETECT
	}
	if f.Has(FlagSequenceDetect) {
		out |= sspi.ISC_REQ_SEQUENCE_DETECT
	}
	if f.Has(FlagConfidentiality) {
		out |= sspi.ISC_REQ_CONFIDENTIALITY
	}
	if f.Has(FlagIntegrity) {
		out |= sspi.ISC_REQ_INTEGRITY
	}
	return out
}

// Step returns the token produced by Init on the first call, then feeds
// server tokens to InitializeSecurityContext.
func (p *SSPIProvider) Step(_ context.Context, input []byte) (Status, []byte, error) {
	if p.ctx == nil {
		return StatusFailed, nil, errors.New("sspi: provider not initialized")
	}
	if input == nil && p.first != nil {
		out := p.first
		p.first = nil
		return StatusContinue, out, nil
	}
	done, out, err := p.ctx.Update(input)
	if err != nil {
		return StatusFailed, nil, fmt.Errorf("sspi: update context: %w", err)
	}
	if done {
		p.complete = true
		return StatusOK, out, nil
	}
	return StatusContinue, out, nil
}

// Decrypt unwraps a value sealed by the server with sequence number 0.
func (p *SSPIProvider) Decrypt(wrapped []byte) ([]byte, error) {
	if !p.complete {
		return nil, errors.New("sspi: context not established")
	}
	_, plain, err := p.ctx.DecryptMessage(wrapped, 0)
	if err != nil {
		return nil, fmt.Errorf("sspi: decrypt: %w", err)
	}
	return plain, nil
}

// Close releases the context and the credentials handle.
func (p *SSPIProvider) Close() error {
	var errs []error
	if p.ctx != nil {
		errs = append(errs, p.ctx.Release())
		p.ctx = nil
	}
	if p.sspiCred != nil {
		errs = append(errs, p.sspiCred.Release())
		p.sspiCred = nil
	}
	return errors.Join(errs...)
}

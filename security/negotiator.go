package security

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/smnsjas/go-xrm/soap"
	"github.com/smnsjas/go-xrm/soap/transport"
)

// DefaultMaxLegs bounds the number of messages sent in one negotiation.
const DefaultMaxLegs = 10

// Negotiator runs the WS-Trust SPNEGO exchange against an endpoint.
type Negotiator struct {
	transport transport.Poster
	factory   ProviderFactory
	target    string
	flags     ContextFlag
	maxLegs   int
	logger    *slog.Logger
}

// NegotiatorOption configures a Negotiator.
type NegotiatorOption func(*Negotiator)

// WithTargetName sets the SPN or UPN the provider authenticates to.
func WithTargetName(target string) NegotiatorOption {
	return func(n *Negotiator) {
		n.target = target
	}
}

// WithMaxLegs bounds the number of messages sent per negotiation.
func WithMaxLegs(legs int) NegotiatorOption {
	return func(n *Negotiator) {
		if legs > 0 {
			n.maxLegs = legs
		}
	}
}

// WithContextFlags overrides the requested context properties.
func WithContextFlags(flags ContextFlag) NegotiatorOption {
	return func(n *Negotiator) {
		n.flags = flags
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) NegotiatorOption {
	return func(n *Negotiator) {
		if l != nil {
			n.logger = l
		}
	}
}

// NewNegotiator creates a negotiator that sends messages with t and creates
// one provider per negotiation with factory.
func NewNegotiator(t transport.Poster, factory ProviderFactory, opts ...NegotiatorOption) *Negotiator {
	n := &Negotiator{
		transport: t,
		factory:   factory,
		flags:     DefaultContextFlags,
		maxLegs:   DefaultMaxLegs,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Negotiate runs a full exchange and returns the established session.
//
// Provider failures are returned as *AuthenticationError and an
// authenticator mismatch as *ValidationError. Transport errors and faults
// returned by the endpoint are passed through wrapped.
func (n *Negotiator) Negotiate(ctx context.Context, endpoint string, cred Credential) (*Session, error) {
	provider, err := n.factory(cred)
	if err != nil {
		return nil, &AuthenticationError{State: StateInit, Status: StatusFailed, Err: err}
	}
	defer func() {
		if err := provider.Close(); err != nil {
			n.logger.Debug("close security provider", "error", err)
		}
	}()

	n.logger.Debug("negotiation started", "endpoint", endpoint, "credential", cred, "target", n.target)

	if err := provider.Init(ctx, n.target, n.flags); err != nil {
		return nil, &AuthenticationError{State: StateInit, Status: StatusFailed, Err: err}
	}
	status, token, err := provider.Step(ctx, nil)
	if err != nil || status != StatusContinue {
		return nil, stepError(StateInit, 0, status, err)
	}

	var log ExchangeLog
	element := soap.NewRequestSecurityToken(soap.NewContextID(), token)
	action := soap.ActionIssue

	for leg := 1; ; leg++ {
		if leg > n.maxLegs {
			return nil, &AuthenticationError{State: StateContinuing, Leg: leg - 1, Status: status, Err: ErrTooManyLegs}
		}

		log.Add(element)
		n.logger.Debug("negotiation leg", "leg", leg, "status", status, "token_len", len(token))

		resp, err := n.exchange(ctx, endpoint, action, element)
		if err != nil {
			return nil, fmt.Errorf("security: negotiation leg %d: %w", leg, err)
		}
		if resp.Final {
			return n.finalize(ctx, provider, status, resp, &log, leg)
		}

		log.Add(resp.Raw)
		if status == StatusOK {
			return nil, &AuthenticationError{State: StateContinuing, Leg: leg, Status: status,
				Err: errors.New("server continued after the context was established")}
		}
		status, token, err = provider.Step(ctx, resp.Token)
		if err != nil || (status != StatusOK && status != StatusContinue) {
			return nil, stepError(StateContinuing, leg, status, err)
		}
		element = soap.NewRequestSecurityTokenResponse(resp.Context, token)
		action = soap.ActionIssueResponse
	}
}

func (n *Negotiator) finalize(ctx context.Context, provider Provider, status Status, resp *soap.TrustResponse, log *ExchangeLog, leg int) (*Session, error) {
	if status != StatusOK {
		if len(resp.Token) == 0 {
			return nil, &AuthenticationError{State: StateFinalizing, Leg: leg, Status: status,
				Err: errors.New("final response carries no token but the context is incomplete")}
		}
		st, _, err := provider.Step(ctx, resp.Token)
		if err != nil || st != StatusOK {
			return nil, stepError(StateFinalizing, leg, st, err)
		}
	}

	proof, err := provider.Decrypt(resp.WrappedProof)
	if err != nil {
		return nil, &AuthenticationError{State: StateFinalizing, Leg: leg, Status: StatusOK,
			Err: fmt.Errorf("unwrap proof token: %w", err)}
	}
	if len(proof) == 0 {
		return nil, &AuthenticationError{State: StateFinalizing, Leg: leg, Status: StatusOK,
			Err: errors.New("empty proof token")}
	}

	log.Add(resp.Raw)
	if err := verifyAuthenticator(proof, log.Sum(), resp.Authenticator); err != nil {
		n.logger.Warn("negotiation authenticator mismatch", "legs", leg)
		return nil, err
	}

	s := &Session{ContextTokenID: resp.TokenID, ProofToken: proof, ExpiresAt: resp.Expires}
	n.logger.Debug("negotiation established", "legs", leg, "session", s)
	return s, nil
}

// exchange posts one negotiation message and decodes the reply. An HTTP error
// status whose body holds a fault is returned as the *soap.Fault.
func (n *Negotiator) exchange(ctx context.Context, endpoint, action string, element []byte) (*soap.TrustResponse, error) {
	env, err := soap.NewTrustEnvelope(endpoint, action, element)
	if err != nil {
		return nil, err
	}
	raw, err := n.transport.Post(ctx, endpoint, env)
	if err != nil {
		var se *transport.StatusError
		if !errors.As(err, &se) {
			return nil, err
		}
		if f, ferr := soap.ParseFault(raw); ferr == nil && f != nil {
			return nil, f
		}
		return nil, err
	}
	return soap.ParseTrustResponse(raw)
}

func stepError(state State, leg int, status Status, err error) error {
	if err == nil {
		err = fmt.Errorf("%w: %s", ErrUnexpectedStatus, status)
	} else if status == StatusContinue || status == StatusOK {
		status = StatusFailed
	}
	return &AuthenticationError{State: state, Leg: leg, Status: status, Err: err}
}

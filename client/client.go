package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/smnsjas/go-xrm/security"
	"github.com/smnsjas/go-xrm/soap"
	"github.com/smnsjas/go-xrm/soap/transport"
)

// Client is an organization service client. It negotiates a security
// session on first use and reuses it until it nears expiry.
//
// Client is safe for concurrent use. Concurrent operations that need a new
// session share one negotiation.
type Client struct {
	cfg        Config
	cred       security.Credential
	transport  transport.Poster
	codec      *soap.Codec
	negotiator security.SessionNegotiator
	cache      *security.SessionCache
	logger     *slog.Logger
	secLog     *SecurityLogger
	closed     atomic.Bool

	// Set by options, consumed by New.
	factory security.ProviderFactory
	clock   security.Clock
}

var _ OrganizationService = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger for the client and its security components.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithTransport replaces the HTTP transport.
func WithTransport(t transport.Poster) Option {
	return func(c *Client) {
		c.transport = t
	}
}

// WithProviderFactory replaces the security provider factory selected by
// Config.Mechanism.
func WithProviderFactory(f security.ProviderFactory) Option {
	return func(c *Client) {
		c.factory = f
	}
}

// WithClock sets the clock used for session lifetime checks.
func WithClock(clock security.Clock) Option {
	return func(c *Client) {
		c.clock = clock
	}
}

// New creates a client. No network traffic happens until the first
// operation.
func New(cfg Config, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := &Client{
		cfg:    cfg,
		cred:   security.ResolveCredential(cfg.Principal, cfg.Secret),
		logger: slog.Default(),
		clock:  security.SystemClock{},
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.transport == nil {
		c.transport = transport.NewHTTPTransport(
			transport.WithTimeout(cfg.Timeout),
			transport.WithInsecureSkipVerify(cfg.InsecureSkipVerify),
			transport.WithLogger(c.logger),
		)
	}
	if c.factory == nil {
		c.factory = security.DefaultProviderFactory(cfg.providerConfig())
	}

	c.secLog = NewSecurityLogger(c.logger, c.cred.Principal(), cfg.Endpoint)
	c.codec = &soap.Codec{
		ClientVersion: cfg.ClientVersion,
		CallerID:      cfg.callerID(),
		Now:           c.clock.Now,
	}
	c.negotiator = &auditedNegotiator{
		next: security.NewNegotiator(c.transport, c.factory,
			security.WithTargetName(cfg.TargetName),
			security.WithMaxLegs(cfg.MaxLegs),
			security.WithLogger(c.logger),
		),
		log: c.secLog,
	}
	c.cache = security.NewSessionCache(
		security.WithClock(c.clock),
		security.WithCacheLogger(c.logger),
	)
	return c, nil
}

// Endpoint returns the organization service URL.
func (c *Client) Endpoint() string {
	return c.cfg.Endpoint
}

// Session returns the current security session, or nil before the first
// negotiation.
func (c *Client) Session() *security.Session {
	return c.cache.Current()
}

// Execute sends req over a valid security session and returns the decoded
// response. A fault is returned as a *soap.Fault error; when the fault
// rejects the session it is dropped so the next call renegotiates.
func (c *Client) Execute(ctx context.Context, req soap.Request) (soap.Response, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}
	if req == nil {
		return nil, &soap.SerializationError{Op: "execute", Err: errors.New("nil request")}
	}
	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}

	sess, err := c.cache.EnsureValid(ctx, c.negotiator, c.cfg.Endpoint, c.cred)
	if err != nil {
		return nil, fmt.Errorf("client: %s: %w", req.RequestName(), err)
	}

	env, err := c.codec.Encode(c.cfg.Endpoint, req, sess)
	if err != nil {
		return nil, err
	}

	raw, postErr := c.transport.Post(ctx, c.cfg.Endpoint, env)
	if postErr != nil {
		var se *transport.StatusError
		if !errors.As(postErr, &se) {
			c.secLog.LogOperation(SubtypeOperationFailed, OutcomeFailure, SeverityWarning, req.RequestName(),
				map[string]any{"error": postErr.Error()})
			return nil, fmt.Errorf("client: %s: %w", req.RequestName(), postErr)
		}
	}

	resp, err := c.codec.Decode(raw)
	if err != nil {
		var f *soap.Fault
		if errors.As(err, &f) {
			return nil, c.fault(req, f)
		}
		if postErr != nil {
			// An error status without a readable fault.
			return nil, fmt.Errorf("client: %s: %w", req.RequestName(), postErr)
		}
		return nil, err
	}
	if postErr != nil {
		return nil, fmt.Errorf("client: %s: %w", req.RequestName(), postErr)
	}

	c.logger.Debug("operation complete", "request", req.RequestName(), "response", resp.ResponseName())
	return resp, nil
}

func (c *Client) fault(req soap.Request, f *soap.Fault) error {
	if f.IsAuthentication() {
		c.cache.Invalidate()
		c.secLog.LogSession(SubtypeSessionRevoked, OutcomeDenied, SeverityWarning,
			map[string]any{"request": req.RequestName(), "fault": f.Subcode})
	} else {
		c.logger.Debug("operation fault", "request", req.RequestName(), "code", f.Code, "detail", f.Detail)
	}
	return f
}

// Close drops the security session and idle connections. Operations after
// Close return ErrClosed.
func (c *Client) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	c.cache.Invalidate()
	if ht, ok := c.transport.(*transport.HTTPTransport); ok {
		ht.CloseIdleConnections()
	}
	return nil
}

// auditedNegotiator records security events around each negotiation.
type auditedNegotiator struct {
	next security.SessionNegotiator
	log  *SecurityLogger
}

func (a *auditedNegotiator) Negotiate(ctx context.Context, endpoint string, cred security.Credential) (*security.Session, error) {
	a.log.LogAuthentication(SubtypeAuthAttempt, OutcomeAttempt, SeverityInfo, nil)

	s, err := a.next.Negotiate(ctx, endpoint, cred)
	if err != nil {
		severity := SeverityWarning
		if security.IsValidationError(err) {
			severity = SeverityCritical
		}
		a.log.LogAuthentication(SubtypeAuthFailure, OutcomeFailure, severity,
			map[string]any{"error": err.Error(), "kind": KindOf(err).String()})
		return nil, err
	}

	a.log.LogAuthentication(SubtypeAuthSuccess, OutcomeSuccess, SeverityInfo, nil)
	a.log.LogSession(SubtypeSessionOpen, OutcomeSuccess, SeverityInfo,
		map[string]any{"context_token": s.ContextTokenID, "expires_at": s.ExpiresAt})
	return s, nil
}

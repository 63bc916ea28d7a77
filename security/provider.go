package security

import "context"

// Status is the outcome of a provider step.
type Status int

const (
	// StatusContinue means the mechanism expects another token from the server.
	StatusContinue Status = iota

	// StatusOK means the security context is established.
	StatusOK

	// StatusFailed means the mechanism rejected the exchange.
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusContinue:
		return "continue"
	case StatusOK:
		return "ok"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// ContextFlag requests a property of the security context.
type ContextFlag uint32

const (
	FlagMutual ContextFlag = 1 << iota
	FlagReplayDetect
	FlagSequenceDetect
	FlagConfidentiality
	FlagIntegrity
)

// DefaultContextFlags are the properties requested for every negotiation.
const DefaultContextFlags = FlagMutual | FlagReplayDetect | FlagSequenceDetect | FlagConfidentiality | FlagIntegrity

// Has reports whether all flags in f are set.
func (c ContextFlag) Has(f ContextFlag) bool {
	return c&f == f
}

// Provider is a negotiated-security mechanism: it produces and consumes the
// opaque tokens carried in BinaryExchange elements and unwraps the proof
// token once the context is established.
//
// # Thread Safety
//
// Provider implementations are NOT safe for concurrent use. Each
// negotiation uses its own provider instance.
//
// # Flow
//
//  1. Init(target, flags)
//  2. Step(nil) -> StatusContinue, first token
//  3. Step(server token) -> StatusContinue or StatusOK, next token
//  4. Decrypt(wrapped proof token) once StatusOK
//  5. Close
type Provider interface {
	// Init prepares a client context for target (an SPN or UPN).
	Init(ctx context.Context, target string, flags ContextFlag) error

	// Step consumes a server token (nil on the first call) and returns the
	// resulting status and the token to send, which may be empty.
	Step(ctx context.Context, input []byte) (Status, []byte, error)

	// Decrypt unwraps a value the server sealed with the established context.
	Decrypt(wrapped []byte) ([]byte, error)

	// Close releases any resources associated with the context.
	Close() error
}

// ProviderFactory creates a fresh provider for one negotiation.
type ProviderFactory func(cred Credential) (Provider, error)

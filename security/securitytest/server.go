package securitytest

import (
	"bytes"
	"crypto/rand"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/smnsjas/go-xrm/security"
	"github.com/smnsjas/go-xrm/soap"
)

// Fixed identities returned by DefaultHandler.
var (
	UserID         = uuid.MustParse("8f2b6f3a-1c2d-4e5f-8a9b-0c1d2e3f4a5b")
	BusinessUnitID = uuid.MustParse("1a2b3c4d-5e6f-4a8b-9c0d-1e2f3a4b5c6d")
	OrganizationID = uuid.MustParse("9e8d7c6b-5a4f-4e3d-2c1b-0a9f8e7d6c5b")
)

// Server is an in-process organization service. It plays the server side
// of the negotiation against FakeProvider, verifies the security header of
// each Execute request and dispatches it to Handler.
type Server struct {
	// Continuations is the number of challenges sent before the final
	// collection.
	Continuations int

	// Key seals the proof token. It must match FakeProvider.Key.
	Key []byte

	// Proof is the issued proof token. A random one is used when empty.
	Proof []byte

	// Lifetime of issued sessions. Defaults to one hour.
	Lifetime time.Duration

	// Now defaults to time.Now.
	Now func() time.Time

	// TamperAuthenticator corrupts the authenticator of the final response.
	TamperAuthenticator bool

	// NegotiateFault is returned for every negotiation message when set.
	NegotiateFault *soap.Fault

	// Handler answers Execute requests. Defaults to DefaultHandler.
	Handler func(soap.Request) (soap.Response, error)

	mu        sync.Mutex
	exchanges map[string]*security.ExchangeLog
	legs      map[string]int
	sessions  map[string]*security.Session
	requests  []soap.Request

	posts        atomic.Int32
	negotiations atomic.Int32
}

// NewServer creates a server that challenges continuations times.
func NewServer(key []byte, continuations int) *Server {
	return &Server{Key: key, Continuations: continuations}
}

// Posts returns the number of requests received.
func (s *Server) Posts() int {
	return int(s.posts.Load())
}

// Negotiations returns the number of negotiations started.
func (s *Server) Negotiations() int {
	return int(s.negotiations.Load())
}

// Requests returns the decoded Execute requests received.
func (s *Server) Requests() []soap.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]soap.Request(nil), s.requests...)
}

// RevokeSessions forgets every issued session so the next Execute request
// fails with an authentication fault.
func (s *Server) RevokeSessions() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions = nil
}

func (s *Server) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.posts.Add(1)
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !strings.HasPrefix(r.Header.Get("Content-Type"), "application/soap+xml") {
		http.Error(w, "unsupported media type", http.StatusUnsupportedMediaType)
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	in, err := soap.ParseEnvelope(body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	switch in.Action {
	case soap.ActionIssue, soap.ActionIssueResponse:
		s.negotiate(w, body)
	case soap.ActionExecute:
		s.execute(w, body, in.MessageID)
	default:
		writeFault(w, soap.Fault{Code: "s:Sender", Subcode: "a:ActionNotSupported", Detail: "unknown action " + in.Action}, in.MessageID)
	}
}

func (s *Server) negotiate(w http.ResponseWriter, body []byte) {
	req, err := soap.ParseTrustRequest(body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if s.NegotiateFault != nil {
		writeFault(w, *s.NegotiateFault, req.MessageID)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.exchanges == nil {
		s.exchanges = make(map[string]*security.ExchangeLog)
		s.legs = make(map[string]int)
	}
	log, ok := s.exchanges[req.Context]
	switch {
	case req.Initial:
		s.negotiations.Add(1)
		log = &security.ExchangeLog{}
		s.exchanges[req.Context] = log
		s.legs[req.Context] = 0
	case !ok:
		writeFault(w, soap.Fault{Code: "s:Sender", Subcode: "a:InvalidSecurity", Detail: "unknown negotiation context"}, req.MessageID)
		return
	}

	leg := s.legs[req.Context]
	if !bytes.Equal(req.Token, ClientToken(leg)) {
		delete(s.exchanges, req.Context)
		writeFault(w, soap.Fault{Code: "s:Sender", Subcode: "a:FailedAuthentication", Detail: "unexpected client token"}, req.MessageID)
		return
	}
	log.Add(req.Raw)
	leg++
	s.legs[req.Context] = leg

	if leg <= s.Continuations {
		elem := soap.NewRequestSecurityTokenResponse(req.Context, ServerToken(leg))
		log.Add(elem)
		writeEnvelope(w, http.StatusOK, soap.ActionIssueResponse, req.MessageID, elem)
		return
	}

	delete(s.exchanges, req.Context)
	delete(s.legs, req.Context)

	proof := s.Proof
	if len(proof) == 0 {
		proof = make([]byte, 32)
		_, _ = rand.Read(proof)
	}
	lifetime := s.Lifetime
	if lifetime == 0 {
		lifetime = time.Hour
	}
	now := s.now().UTC().Truncate(time.Millisecond)
	sess := &security.Session{
		ContextTokenID: "urn:uuid:" + uuid.NewString(),
		ProofToken:     proof,
		ExpiresAt:      now.Add(lifetime),
	}
	granted := soap.NewIssuedTokenResponse(soap.IssuedToken{
		Context:      req.Context,
		TokenID:      sess.ContextTokenID,
		WrappedProof: Seal(s.Key, proof),
		Created:      now,
		Expires:      sess.ExpiresAt,
		Token:        ServerToken(leg),
	})
	log.Add(granted)
	auth := security.ComputeAuthenticator(proof, log.Sum())
	if s.TamperAuthenticator {
		auth[0] ^= 0xff
	}
	if s.sessions == nil {
		s.sessions = make(map[string]*security.Session)
	}
	s.sessions[sess.ContextTokenID] = sess

	final := soap.NewResponseCollection(granted, soap.NewAuthenticatorResponse(req.Context, auth))
	writeEnvelope(w, http.StatusOK, soap.ActionIssueResponse, req.MessageID, final)
}

func (s *Server) execute(w http.ResponseWriter, body []byte, messageID string) {
	if !s.authorized(body) {
		writeFault(w, soap.Fault{
			Code:    "s:Sender",
			Subcode: "a:BadContextToken",
			Detail:  "The security context token is expired or is not valid.",
		}, messageID)
		return
	}

	req, err := soap.DecodeRequest(body)
	if err != nil {
		writeFault(w, soap.Fault{Code: "s:Sender", Detail: err.Error()}, messageID)
		return
	}
	s.mu.Lock()
	s.requests = append(s.requests, req)
	s.mu.Unlock()

	handler := s.Handler
	if handler == nil {
		handler = DefaultHandler
	}
	resp, err := handler(req)
	if err != nil {
		var f *soap.Fault
		if errors.As(err, &f) {
			writeFault(w, *f, messageID)
			return
		}
		writeFault(w, soap.Fault{Code: "s:Receiver", Detail: err.Error()}, messageID)
		return
	}
	out, err := soap.EncodeResponse(resp, messageID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeRaw(w, http.StatusOK, out)
}

func (s *Server) authorized(body []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for _, sess := range s.sessions {
		if now.Before(sess.ExpiresAt) && soap.VerifySecurityHeader(body, sess) == nil {
			return true
		}
	}
	return false
}

// DefaultHandler answers every built-in request with fixed data.
func DefaultHandler(req soap.Request) (soap.Response, error) {
	switch r := req.(type) {
	case soap.CreateRequest:
		id := r.Target.ID
		if id == uuid.Nil {
			id = uuid.New()
		}
		return soap.CreateResponse{ID: id}, nil
	case soap.RetrieveRequest:
		return soap.RetrieveResponse{Entity: soap.Entity{
			LogicalName: r.Target.LogicalName,
			ID:          r.Target.ID,
			Attributes:  soap.Parameters{"name": "Fourth Coffee"},
		}}, nil
	case soap.RetrieveMultipleRequest:
		return soap.RetrieveMultipleResponse{EntityCollection: soap.EntityCollection{
			EntityName: "account",
			Entities: []soap.Entity{
				{LogicalName: "account", ID: uuid.New(), Attributes: soap.Parameters{"name": "Fourth Coffee"}},
			},
		}}, nil
	case soap.UpdateRequest:
		return soap.UpdateResponse{}, nil
	case soap.DeleteRequest:
		return soap.DeleteResponse{}, nil
	case soap.AssociateRequest:
		return soap.AssociateResponse{}, nil
	case soap.DisassociateRequest:
		return soap.DisassociateResponse{}, nil
	case soap.WhoAmIRequest:
		return soap.WhoAmIResponse{UserID: UserID, BusinessUnitID: BusinessUnitID, OrganizationID: OrganizationID}, nil
	case soap.OrganizationRequest:
		return soap.OrganizationResponse{Name: r.Name, Results: r.Parameters}, nil
	default:
		return nil, &soap.Fault{Code: "s:Sender", Detail: "unsupported request " + req.RequestName()}
	}
}

func writeEnvelope(w http.ResponseWriter, status int, action, relatesTo string, body []byte) {
	out, err := soap.NewResponseEnvelope(action, relatesTo, body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeRaw(w, status, out)
}

func writeFault(w http.ResponseWriter, f soap.Fault, relatesTo string) {
	out, err := soap.NewFaultEnvelope(f, relatesTo)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeRaw(w, http.StatusInternalServerError, out)
}

func writeRaw(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/soap+xml; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

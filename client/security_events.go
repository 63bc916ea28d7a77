package client

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// NIST SP 800-92 compliant event types
const (
	EventAuthentication   = "authentication"
	EventSessionLifecycle = "session_lifecycle"
	EventOperation        = "operation"
)

// Security event subtypes
const (
	SubtypeAuthAttempt      = "attempt"
	SubtypeAuthSuccess      = "success"
	SubtypeAuthFailure      = "failure"
	SubtypeSessionOpen      = "open"
	SubtypeSessionRevoked   = "revoked"
	SubtypeOperationFailed  = "failed"
	SubtypeOperationExecute = "execute"
)

// Security event outcomes
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeDenied  = "denied"
	OutcomeAttempt = "attempt"
)

// Security event severities
const (
	SeverityInfo     = "INFO"
	SeverityWarning  = "WARNING"
	SeverityError    = "ERROR"
	SeverityCritical = "CRITICAL"
)

// SecurityEvent represents a structured security log event compliant with NIST SP 800-92.
type SecurityEvent struct {
	// NIST Required Fields
	Timestamp string `json:"timestamp"`  // ISO 8601 UTC
	EventType string `json:"event_type"` // authentication, session_lifecycle, operation
	Subtype   string `json:"subtype"`    // success, failure, attempt
	Severity  string `json:"severity"`   // INFO, WARNING, ERROR

	// Identity & Context
	User          string `json:"user,omitempty"`
	Source        string `json:"source"`         // "go-xrm" client
	Target        string `json:"target"`         // organization service endpoint
	CorrelationID string `json:"correlation_id"` // client-scoped UUID

	// Operation Details
	Action  string         `json:"action"`            // e.g., "Negotiate", "Execute"
	Outcome string         `json:"outcome"`           // success, failure
	Details map[string]any `json:"details,omitempty"` // Context-specific details
}

// SecurityLogger is a helper to generate and write security events.
type SecurityLogger struct {
	logger        *slog.Logger
	user          string
	target        string
	correlationID string
	now           func() time.Time
}

// NewSecurityLogger creates a new logger for a client.
// It generates a new CorrelationID (UUID) for this logger instance.
func NewSecurityLogger(logger *slog.Logger, user, target string) *SecurityLogger {
	return &SecurityLogger{
		logger:        logger,
		user:          user,
		target:        target,
		correlationID: uuid.New().String(),
		now:           time.Now,
	}
}

// CorrelationID returns the identifier shared by every event of this logger.
func (l *SecurityLogger) CorrelationID() string {
	return l.correlationID
}

// LogEvent constructs and logs a security event.
func (l *SecurityLogger) LogEvent(eventType, subtype, severity, outcome, action string, details map[string]any) {
	if l == nil || l.logger == nil {
		return
	}

	if details == nil {
		details = make(map[string]any)
	}
	event := &SecurityEvent{
		Timestamp:     l.now().UTC().Format(time.RFC3339),
		EventType:     eventType,
		Subtype:       subtype,
		Severity:      severity,
		User:          l.user,
		Source:        "go-xrm",
		Target:        l.target,
		CorrelationID: l.correlationID,
		Action:        action,
		Outcome:       outcome,
		Details:       details,
	}

	switch severity {
	case SeverityWarning:
		l.logger.Warn("SecurityEvent", "event", event)
	case SeverityError, SeverityCritical:
		l.logger.Error("SecurityEvent", "event", event)
	default:
		l.logger.Info("SecurityEvent", "event", event)
	}
}

// LogAuthentication logs negotiation events.
func (l *SecurityLogger) LogAuthentication(subtype, outcome, severity string, details map[string]any) {
	l.LogEvent(EventAuthentication, subtype, severity, outcome, "Negotiate", details)
}

// LogSession logs security session lifecycle events.
func (l *SecurityLogger) LogSession(subtype, outcome, severity string, details map[string]any) {
	l.LogEvent(EventSessionLifecycle, subtype, severity, outcome, "Session", details)
}

// LogOperation logs organization service operations.
func (l *SecurityLogger) LogOperation(subtype, outcome, severity, request string, details map[string]any) {
	l.LogEvent(EventOperation, subtype, severity, outcome, request, details)
}

// String returns the JSON representation of the event
func (e *SecurityEvent) String() string {
	b, _ := json.Marshal(e)
	return string(b)
}

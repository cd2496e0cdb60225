// Package audit records access decisions and authentication outcomes.
//
// It provides the bounded in-memory ring of access attempts the trust engine
// reads its history from, structured audit events with RFC 5424 syslog
// output, and aggregate metrics suitable for (optionally noised) export.
package audit

import "time"

// Severity represents syslog severity levels per RFC 5424.
type Severity int

const (
	SeverityWarning Severity = 4
	SeverityNotice  Severity = 5
	SeverityInfo    Severity = 6
)

// String returns the human-readable name for a severity level.
func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "INFO"
	case SeverityNotice:
		return "NOTICE"
	case SeverityWarning:
		return "WARNING"
	default:
		return "UNKNOWN"
	}
}

// EventType identifies a security-relevant audit event.
type EventType string

const (
	EventAccessGranted    EventType = "access.granted"
	EventAccessChallenged EventType = "access.challenged"
	EventAccessDenied     EventType = "access.denied"
	EventAuthSuccess      EventType = "auth.success"
	EventAuthFailure      EventType = "auth.failure"
	EventSessionCreated   EventType = "session.created"
	EventSessionRevoked   EventType = "session.revoked"
	EventBudgetExceeded   EventType = "privacy.budget_exceeded"
	EventTrustFailOpen    EventType = "trust.fail_open"
)

// AllEventTypes returns every defined event type for iteration and validation.
func AllEventTypes() []EventType {
	return []EventType{
		EventAccessGranted,
		EventAccessChallenged,
		EventAccessDenied,
		EventAuthSuccess,
		EventAuthFailure,
		EventSessionCreated,
		EventSessionRevoked,
		EventBudgetExceeded,
		EventTrustFailOpen,
	}
}

// severityMap maps each event type to its syslog severity.
var severityMap = map[EventType]Severity{
	EventAccessGranted:    SeverityInfo,
	EventAccessChallenged: SeverityNotice,
	EventAccessDenied:     SeverityWarning,
	EventAuthSuccess:      SeverityInfo,
	EventAuthFailure:      SeverityWarning,
	EventSessionCreated:   SeverityInfo,
	EventSessionRevoked:   SeverityNotice,
	EventBudgetExceeded:   SeverityWarning,
	EventTrustFailOpen:    SeverityWarning,
}

// SeverityFor returns the syslog severity for a given event type.
// Unknown event types return SeverityWarning (fail-secure: treat unknowns as concerning).
func SeverityFor(et EventType) Severity {
	if s, ok := severityMap[et]; ok {
		return s
	}
	return SeverityWarning
}

// Event represents a security-relevant audit event with structured fields.
type Event struct {
	Type        EventType
	Severity    Severity
	Timestamp   time.Time
	PrincipalID string
	IP          string
	Details     map[string]string // Event-specific fields
}

// Result is the terminal outcome recorded for an access attempt.
type Result string

const (
	ResultGranted Result = "GRANTED"
	ResultDenied  Result = "DENIED"
)

// AccessAttempt is an immutable record of one gated request. Attempts are
// write-only from the pipeline's perspective and read-only for metrics and
// trust-factor history.
type AccessAttempt struct {
	IP          string
	PrincipalID string // empty when the request never identified a principal
	Endpoint    string
	Result      Result
	Reason      string
	At          time.Time
}

// AuthEvent records one login outcome for a principal. The trust engine's
// track-record factor consumes these.
type AuthEvent struct {
	PrincipalID string
	Success     bool
	At          time.Time
}

// NewAccessEvent builds the audit Event for a recorded attempt.
func NewAccessEvent(t EventType, a AccessAttempt) Event {
	return Event{
		Type:        t,
		Severity:    SeverityFor(t),
		Timestamp:   a.At,
		PrincipalID: a.PrincipalID,
		IP:          a.IP,
		Details: map[string]string{
			"endpoint": a.Endpoint,
			"result":   string(a.Result),
			"reason":   a.Reason,
		},
	}
}

// NewAuthEvent builds the audit Event for a login outcome.
func NewAuthEvent(e AuthEvent, ip string) Event {
	t := EventAuthSuccess
	if !e.Success {
		t = EventAuthFailure
	}
	return Event{
		Type:        t,
		Severity:    SeverityFor(t),
		Timestamp:   e.At,
		PrincipalID: e.PrincipalID,
		IP:          ip,
	}
}

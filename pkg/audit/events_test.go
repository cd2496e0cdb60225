package audit

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSeverityForAllEventTypes(t *testing.T) {
	for _, et := range AllEventTypes() {
		t.Run(string(et), func(t *testing.T) {
			s := SeverityFor(et)
			assert.Contains(t, []Severity{SeverityInfo, SeverityNotice, SeverityWarning}, s)
		})
	}
}

func TestSeverityForUnknownType(t *testing.T) {
	assert.Equal(t, SeverityWarning, SeverityFor(EventType("made.up")), "unknown events are treated as concerning")
}

func TestNewAccessEvent(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ev := NewAccessEvent(EventAccessDenied, AccessAttempt{
		IP:          "10.0.0.5",
		PrincipalID: "usr_a",
		Endpoint:    "/api/v1/records/1",
		Result:      ResultDenied,
		Reason:      "device fingerprint mismatch",
		At:          at,
	})

	assert.Equal(t, EventAccessDenied, ev.Type)
	assert.Equal(t, SeverityWarning, ev.Severity)
	assert.Equal(t, at, ev.Timestamp)
	assert.Equal(t, "usr_a", ev.PrincipalID)
	assert.Equal(t, "device fingerprint mismatch", ev.Details["reason"])
}

func TestNewAuthEventMapsOutcome(t *testing.T) {
	ok := NewAuthEvent(AuthEvent{PrincipalID: "usr_a", Success: true, At: time.Now()}, "10.0.0.5")
	assert.Equal(t, EventAuthSuccess, ok.Type)

	fail := NewAuthEvent(AuthEvent{PrincipalID: "usr_a", Success: false, At: time.Now()}, "10.0.0.5")
	assert.Equal(t, EventAuthFailure, fail.Type)
	assert.Equal(t, SeverityWarning, fail.Severity)
}

// failingEmitter always errors, to prove MultiEmitter swallows backend failures.
type failingEmitter struct{}

func (failingEmitter) Emit(Event) error { return errors.New("backend down") }

type countingEmitter struct{ n int }

func (c *countingEmitter) Emit(Event) error {
	c.n++
	return nil
}

func TestMultiEmitterNeverPropagatesFailures(t *testing.T) {
	counter := &countingEmitter{}
	m := NewMultiEmitter(nil, failingEmitter{}, counter)

	err := m.Emit(Event{Type: EventAccessGranted})
	assert.NoError(t, err, "audit failures must not block requests")
	assert.Equal(t, 1, counter.n, "healthy backends still receive the event")
}

func TestFormatMessage(t *testing.T) {
	msg := Message{
		Facility:  FacLocal0,
		Severity:  SeverityWarning,
		Timestamp: time.Date(2026, 3, 1, 12, 30, 45, 123_000_000, time.UTC),
		Hostname:  "gw-01",
		AppName:   "gateway",
		EventID:   "access.denied",
		Params: []SDParam{
			{Name: "principal", Value: "usr_a"},
			{Name: "reason", Value: `quoted "value"`},
		},
	}

	got := string(FormatMessage(msg))
	assert.Equal(t, `<132>1 2026-03-01T12:30:45.123Z gw-01 gateway - access.denied [zthc principal="usr_a" reason="quoted \"value\""]`, got)
}

func TestFormatMessageNilValues(t *testing.T) {
	got := string(FormatMessage(Message{Facility: FacLocal0, Severity: SeverityInfo}))
	assert.Equal(t, "<134>1 - - - - - -", got)
}

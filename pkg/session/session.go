// Package session tracks authenticated sessions and their device fingerprints.
//
// The store is the single owner of session state: sessions are created on
// verified login, touched on every verified request, and terminated only by
// explicit revocation. Callers look sessions up by ID and never iterate or
// mutate them directly.
package session

import (
	"time"

	"github.com/google/uuid"
)

// MaxAccessLogEntries is the number of access-log entries retained per session.
// Touch trims the log to the most recent entries once this limit is exceeded.
const MaxAccessLogEntries = 100

// Device is the fingerprint recorded at session creation and compared against
// subsequent requests. IPSubnet holds the first two dotted-decimal octets
// (e.g. "10.0"); UAFamily holds the first whitespace-delimited token of the
// User-Agent header.
type Device struct {
	IPSubnet string
	UAFamily string
}

// Empty reports whether no fingerprint was recorded.
func (d Device) Empty() bool {
	return d.IPSubnet == "" && d.UAFamily == ""
}

// AccessEntry is one recorded request against a session.
type AccessEntry struct {
	Endpoint string
	At       time.Time
}

// Session is the server-side state for an authenticated principal.
// All mutation goes through the Store; callers receive copies.
type Session struct {
	ID             string
	PrincipalID    string
	CreatedAt      time.Time
	LastActivityAt time.Time
	Active         bool
	RevokedAt      *time.Time
	Device         Device
	AccessLog      []AccessEntry
}

// Store abstracts session CRUD so sessions can live in memory (default) or in
// persistent backing storage.
type Store interface {
	// Create registers a new active session for the principal with an empty
	// access log and returns a copy of it.
	Create(principalID string, device Device) Session

	// Get retrieves a session copy by ID. The second return is false if no
	// session with that ID exists.
	Get(id string) (Session, bool)

	// Touch appends an access-log entry and updates LastActivityAt,
	// trimming the log to MaxAccessLogEntries. Returns false if the
	// session does not exist or is revoked.
	Touch(id, endpoint string) bool

	// Revoke marks a session inactive. Returns false if not found.
	Revoke(id string) bool

	// RevokeAll revokes every active session belonging to the principal and
	// returns how many were revoked.
	RevokeAll(principalID string) int

	// Count returns the number of active sessions.
	Count() int
}

// generateSessionID generates a unique ID with format "sess_" + first 8 chars of UUID.
func generateSessionID() string {
	u := uuid.New().String()
	return "sess_" + u[:8]
}

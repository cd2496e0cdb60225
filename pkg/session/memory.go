package session

import (
	"sync"
	"time"
)

// MemoryStore is an in-memory Store safe for concurrent use. A per-session
// mutex serializes access-log appends and timestamp updates so concurrent
// requests against the same session never lose writes; appends for a single
// session are observed in real-time order.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*entry

	now func() time.Time
}

// entry pairs a session with its own lock. The store-level lock guards the
// map; the entry lock guards the session fields.
type entry struct {
	mu sync.Mutex
	s  Session
}

// MemoryStoreOption configures a MemoryStore.
type MemoryStoreOption func(*MemoryStore)

// WithClock overrides the time source. Tests use this to simulate session age
// and inactivity gaps without sleeping.
func WithClock(now func() time.Time) MemoryStoreOption {
	return func(m *MemoryStore) {
		m.now = now
	}
}

// NewMemoryStore creates an empty in-memory session store.
func NewMemoryStore(opts ...MemoryStoreOption) *MemoryStore {
	m := &MemoryStore{
		sessions: make(map[string]*entry),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Create registers a new active session for the principal.
func (m *MemoryStore) Create(principalID string, device Device) Session {
	now := m.now()
	s := Session{
		ID:             generateSessionID(),
		PrincipalID:    principalID,
		CreatedAt:      now,
		LastActivityAt: now,
		Active:         true,
		Device:         device,
	}

	m.mu.Lock()
	m.sessions[s.ID] = &entry{s: s}
	m.mu.Unlock()

	return s
}

// Get retrieves a copy of the session by ID.
func (m *MemoryStore) Get(id string) (Session, bool) {
	m.mu.RLock()
	e, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return Session{}, false
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return copySession(e.s), true
}

// Touch appends an access-log entry and refreshes LastActivityAt.
func (m *MemoryStore) Touch(id, endpoint string) bool {
	m.mu.RLock()
	e, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return false
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.s.Active {
		return false
	}

	now := m.now()
	e.s.LastActivityAt = now
	e.s.AccessLog = append(e.s.AccessLog, AccessEntry{Endpoint: endpoint, At: now})
	if len(e.s.AccessLog) > MaxAccessLogEntries {
		// Trim in place to the most recent entries.
		over := len(e.s.AccessLog) - MaxAccessLogEntries
		e.s.AccessLog = append(e.s.AccessLog[:0], e.s.AccessLog[over:]...)
	}
	return true
}

// Revoke marks the session inactive and records the revocation time.
// Revocation is idempotent: revoking an already-revoked session returns true.
func (m *MemoryStore) Revoke(id string) bool {
	m.mu.RLock()
	e, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return false
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.s.Active {
		now := m.now()
		e.s.Active = false
		e.s.RevokedAt = &now
	}
	return true
}

// RevokeAll revokes every active session for the principal.
func (m *MemoryStore) RevokeAll(principalID string) int {
	m.mu.RLock()
	matches := make([]*entry, 0)
	for _, e := range m.sessions {
		matches = append(matches, e)
	}
	m.mu.RUnlock()

	count := 0
	now := m.now()
	for _, e := range matches {
		e.mu.Lock()
		if e.s.PrincipalID == principalID && e.s.Active {
			e.s.Active = false
			t := now
			e.s.RevokedAt = &t
			count++
		}
		e.mu.Unlock()
	}
	return count
}

// Count returns the number of active sessions.
func (m *MemoryStore) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for _, e := range m.sessions {
		e.mu.Lock()
		if e.s.Active {
			count++
		}
		e.mu.Unlock()
	}
	return count
}

// copySession returns a deep copy so callers can never mutate store state.
func copySession(s Session) Session {
	out := s
	if s.RevokedAt != nil {
		t := *s.RevokedAt
		out.RevokedAt = &t
	}
	out.AccessLog = make([]AccessEntry, len(s.AccessLog))
	copy(out.AccessLog, s.AccessLog)
	return out
}

package audit

import (
	"sync"
	"time"
)

const (
	// DefaultMaxAttempts bounds the access-attempt ring.
	DefaultMaxAttempts = 10_000

	// DefaultMaxAuthEvents bounds the auth-event ring.
	DefaultMaxAuthEvents = 10_000
)

// RingLog is a bounded, concurrency-safe log of access attempts and auth
// events. Writers only append; once a ring is full the oldest entries are
// overwritten. It is the in-memory history backing both metrics export and
// the trust engine's behavioral factors.
type RingLog struct {
	mu       sync.RWMutex
	attempts ring[AccessAttempt]
	auths    ring[AuthEvent]
}

// RingLogOption configures a RingLog.
type RingLogOption func(*RingLog)

// WithMaxAttempts overrides the attempt ring capacity.
func WithMaxAttempts(n int) RingLogOption {
	return func(l *RingLog) {
		l.attempts = newRing[AccessAttempt](n)
	}
}

// WithMaxAuthEvents overrides the auth-event ring capacity.
func WithMaxAuthEvents(n int) RingLogOption {
	return func(l *RingLog) {
		l.auths = newRing[AuthEvent](n)
	}
}

// NewRingLog creates an empty ring log with default capacities.
func NewRingLog(opts ...RingLogOption) *RingLog {
	l := &RingLog{
		attempts: newRing[AccessAttempt](DefaultMaxAttempts),
		auths:    newRing[AuthEvent](DefaultMaxAuthEvents),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// RecordAttempt appends an access attempt, evicting the oldest when full.
func (l *RingLog) RecordAttempt(a AccessAttempt) {
	l.mu.Lock()
	l.attempts.push(a)
	l.mu.Unlock()
}

// RecordAuthEvent appends a login outcome, evicting the oldest when full.
func (l *RingLog) RecordAuthEvent(e AuthEvent) {
	l.mu.Lock()
	l.auths.push(e)
	l.mu.Unlock()
}

// RecentAttempts returns up to n of the principal's most recent attempts,
// newest first.
func (l *RingLog) RecentAttempts(principalID string, n int) []AccessAttempt {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]AccessAttempt, 0, n)
	l.attempts.scanNewestFirst(func(a AccessAttempt) bool {
		if a.PrincipalID == principalID {
			out = append(out, a)
		}
		return len(out) < n
	})
	return out
}

// RecentAuthEvents returns up to n of the principal's most recent login
// outcomes, newest first.
func (l *RingLog) RecentAuthEvents(principalID string, n int) []AuthEvent {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]AuthEvent, 0, n)
	l.auths.scanNewestFirst(func(e AuthEvent) bool {
		if e.PrincipalID == principalID {
			out = append(out, e)
		}
		return len(out) < n
	})
	return out
}

// CountAttemptsSince counts the principal's attempts at or after the given time.
func (l *RingLog) CountAttemptsSince(principalID string, since time.Time) int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	count := 0
	l.attempts.scanNewestFirst(func(a AccessAttempt) bool {
		if a.At.Before(since) {
			return false // entries are time-ordered; nothing older matches
		}
		if a.PrincipalID == principalID {
			count++
		}
		return true
	})
	return count
}

// Len returns the number of attempts currently retained.
func (l *RingLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.attempts.size
}

// Metrics is a read-only aggregate snapshot over the retained history.
type Metrics struct {
	Attempts         int `json:"attempts" yaml:"attempts"`
	Granted          int `json:"granted" yaml:"granted"`
	Denied           int `json:"denied" yaml:"denied"`
	UniquePrincipals int `json:"unique_principals" yaml:"unique_principals"`
	AuthSuccesses    int `json:"auth_successes" yaml:"auth_successes"`
	AuthFailures     int `json:"auth_failures" yaml:"auth_failures"`
}

// Snapshot aggregates the retained history into metrics counters.
func (l *RingLog) Snapshot() Metrics {
	l.mu.RLock()
	defer l.mu.RUnlock()

	m := Metrics{}
	principals := make(map[string]struct{})
	l.attempts.scanNewestFirst(func(a AccessAttempt) bool {
		m.Attempts++
		switch a.Result {
		case ResultGranted:
			m.Granted++
		case ResultDenied:
			m.Denied++
		}
		if a.PrincipalID != "" {
			principals[a.PrincipalID] = struct{}{}
		}
		return true
	})
	m.UniquePrincipals = len(principals)

	l.auths.scanNewestFirst(func(e AuthEvent) bool {
		if e.Success {
			m.AuthSuccesses++
		} else {
			m.AuthFailures++
		}
		return true
	})
	return m
}

// ring is a fixed-capacity circular buffer.
type ring[T any] struct {
	buf  []T
	head int // index of the next write
	size int
}

func newRing[T any](capacity int) ring[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return ring[T]{buf: make([]T, capacity)}
}

func (r *ring[T]) push(v T) {
	r.buf[r.head] = v
	r.head = (r.head + 1) % len(r.buf)
	if r.size < len(r.buf) {
		r.size++
	}
}

// scanNewestFirst visits entries newest to oldest until fn returns false.
func (r *ring[T]) scanNewestFirst(fn func(T) bool) {
	for i := 0; i < r.size; i++ {
		idx := (r.head - 1 - i + len(r.buf)*2) % len(r.buf)
		if !fn(r.buf[idx]) {
			return
		}
	}
}

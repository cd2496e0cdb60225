package trust

import (
	"time"

	"github.com/RaihaanIhsan/ZeroTrustHealthCare/pkg/audit"
	"github.com/RaihaanIhsan/ZeroTrustHealthCare/pkg/authz"
	"github.com/RaihaanIhsan/ZeroTrustHealthCare/pkg/policy"
	"github.com/RaihaanIhsan/ZeroTrustHealthCare/pkg/session"
)

// SessionHealth scores the liveness of the session: fresh, recently active
// sessions with steady usage score highest. A missing or revoked session
// scores zero.
func SessionHealth(s session.Session, ok bool, now time.Time) float64 {
	if !ok || !s.Active {
		return 0
	}

	score := 100.0

	// Tiered session-age penalty.
	age := now.Sub(s.CreatedAt)
	switch {
	case age > 12*time.Hour:
		score -= 15
	case age > 6*time.Hour:
		score -= 10
	case age > 3*time.Hour:
		score -= 5
	}

	// Tiered inactivity-gap penalty.
	idle := now.Sub(s.LastActivityAt)
	switch {
	case idle > 30*time.Minute:
		score -= 20
	case idle > 15*time.Minute:
		score -= 10
	case idle > 5*time.Minute:
		score -= 5
	}

	// Steady-usage bonus: mean inter-arrival of the last 5 recorded requests
	// under 10 minutes.
	if n := len(s.AccessLog); n >= 5 {
		last := s.AccessLog[n-5:]
		span := last[4].At.Sub(last[0].At)
		if span/4 < 10*time.Minute {
			score += 10
		}
	}

	return clamp(score)
}

// AuthTrackRecord scores the principal's login history: the success rate over
// the most recent events (up to 20, newest first), with an extra penalty for
// clustered recent failures. Principals with no history score a neutral 50.
func AuthTrackRecord(events []audit.AuthEvent) float64 {
	if len(events) == 0 {
		return 50
	}
	if len(events) > 20 {
		events = events[:20]
	}

	successes := 0
	for _, e := range events {
		if e.Success {
			successes++
		}
	}
	score := float64(successes) / float64(len(events)) * 100

	// Recent-failure clustering: failures among the last 5 events.
	recent := events
	if len(recent) > 5 {
		recent = recent[:5]
	}
	failures := 0
	for _, e := range recent {
		if !e.Success {
			failures++
		}
	}
	switch {
	case failures >= 3:
		score -= 30
	case failures >= 2:
		score -= 15
	}

	return clamp(score)
}

// DeviceConsistency scores how well the current request's fingerprint matches
// the device recorded at session creation. With no device history at all the
// factor is a neutral 50.
func DeviceConsistency(s session.Session, ok bool, current session.Device, now time.Time) float64 {
	if !ok || s.Device.Empty() {
		return 50
	}

	score := 100.0
	if s.Device.IPSubnet != current.IPSubnet {
		score -= 25
	}
	if s.Device.UAFamily != current.UAFamily {
		score -= 20
	}

	// Long-lived recognized devices earn a bonus.
	if now.Sub(s.CreatedAt) > 7*24*time.Hour && score > 80 {
		score += 10
	}

	return clamp(score)
}

// AccessPattern scores recent request behavior: bursts, endpoint novelty, and
// recent denials all reduce trust. attempts is the principal's history,
// newest first, at most the last 100 entries; burstCount is the number of
// requests in the trailing five minutes.
func AccessPattern(endpoint string, attempts []audit.AccessAttempt, burstCount int) float64 {
	// Too little history to judge: optimistic but not perfect.
	if len(attempts) < 5 {
		return 80
	}

	score := 100.0

	// Burst detection over the trailing five minutes.
	switch {
	case burstCount > 50:
		score -= 40
	case burstCount > 20:
		score -= 20
	}

	// Novelty penalty: endpoint never seen in the retained history.
	seen := false
	for _, a := range attempts {
		if a.Endpoint == endpoint {
			seen = true
			break
		}
	}
	if !seen {
		score -= 15
	}

	// Tiered penalty for denials among the last 20 attempts.
	recent := attempts
	if len(recent) > 20 {
		recent = recent[:20]
	}
	denials := 0
	for _, a := range recent {
		if a.Result == audit.ResultDenied {
			denials++
		}
	}
	switch {
	case denials >= 5:
		score -= 30
	case denials >= 2:
		score -= 15
	}

	return clamp(score)
}

// ContextCompliance scores the request's fit with deployment context rules:
// business hours, a recognized org unit, and a recognized role. Penalties stack.
func ContextCompliance(now time.Time, window policy.Window, orgUnit string, role authz.Role) float64 {
	score := 100.0
	if !policy.WithinBusinessHours(now, window) {
		score -= 20
	}
	if !recognizedOrgUnit(orgUnit) {
		score -= 15
	}
	if !recognizedRole(role) {
		score -= 30
	}
	return clamp(score)
}

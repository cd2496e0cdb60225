package trust

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RaihaanIhsan/ZeroTrustHealthCare/pkg/audit"
	"github.com/RaihaanIhsan/ZeroTrustHealthCare/pkg/authz"
	"github.com/RaihaanIhsan/ZeroTrustHealthCare/pkg/session"
)

// testClock is a settable time source shared by the engine and session store.
type testClock struct{ t time.Time }

func (c *testClock) now() time.Time          { return c.t }
func (c *testClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestEngine(t *testing.T, clock *testClock) (*Engine, session.Store, *audit.RingLog) {
	t.Helper()
	sessions := session.NewMemoryStore(session.WithClock(clock.now))
	events := audit.NewRingLog()

	engine, err := NewEngine(Config{
		Sessions:      sessions,
		Events:        events,
		BusinessHours: testWindow,
		Clock:         clock.now,
	})
	require.NoError(t, err)
	return engine, sessions, events
}

func TestNewEngineValidation(t *testing.T) {
	_, err := NewEngine(Config{})
	require.Error(t, err)

	_, err = NewEngine(Config{
		Sessions:           session.NewMemoryStore(),
		Events:             audit.NewRingLog(),
		AllowThreshold:     50,
		ChallengeThreshold: 70,
	})
	require.Error(t, err, "challenge threshold above allow threshold is a config error")
}

func TestEvaluateHealthyPrincipalAllows(t *testing.T) {
	clock := &testClock{t: time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)}
	engine, sessions, events := newTestEngine(t, clock)

	device := session.Device{IPSubnet: "10.0", UAFamily: "Chrome/1"}
	s := sessions.Create("usr_a", device)
	events.RecordAuthEvent(audit.AuthEvent{PrincipalID: "usr_a", Success: true, At: clock.t})

	eval, err := engine.Evaluate(context.Background(), Input{
		PrincipalID: "usr_a",
		Role:        authz.RoleDoctor,
		OrgUnit:     "cardiology",
		SessionID:   s.ID,
		Endpoint:    "/api/v1/records/1",
		Device:      device,
	})
	require.NoError(t, err)

	assert.Equal(t, ActionAllow, eval.Action)
	assert.InDelta(t, eval.Factors.Weighted(), eval.Score, 1e-9)
	assert.Equal(t, 100.0, eval.Factors[FactorSessionHealth])
	assert.Equal(t, 100.0, eval.Factors[FactorContextCompliance])
	assert.Equal(t, 85.0, eval.Factors[FactorRoleRisk])
	assert.Contains(t, eval.Reason, "high trust")
}

func TestEvaluateMissingSessionTanksScore(t *testing.T) {
	clock := &testClock{t: time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)}
	engine, _, _ := newTestEngine(t, clock)

	eval, err := engine.Evaluate(context.Background(), Input{
		PrincipalID: "usr_ghost",
		Role:        authz.RoleDoctor,
		OrgUnit:     "cardiology",
		SessionID:   "sess_missing",
		Endpoint:    "/api/v1/records/1",
	})
	require.NoError(t, err)
	assert.Equal(t, 0.0, eval.Factors[FactorSessionHealth])
	assert.NotEqual(t, ActionAllow, eval.Action)
}

// Within the freshness window only the context factor may change between two
// evaluations with otherwise identical inputs, even when the underlying
// session and history have moved on.
func TestCacheHitRecomputesOnlyContext(t *testing.T) {
	// One second before the end of business hours.
	clock := &testClock{t: time.Date(2026, 3, 2, 17, 59, 59, 0, time.UTC)}
	engine, sessions, events := newTestEngine(t, clock)

	device := session.Device{IPSubnet: "10.0", UAFamily: "Chrome/1"}
	s := sessions.Create("usr_a", device)
	in := Input{
		PrincipalID: "usr_a",
		Role:        authz.RoleDoctor,
		OrgUnit:     "cardiology",
		SessionID:   s.ID,
		Endpoint:    "/api/v1/records/1",
		Device:      device,
	}

	first, err := engine.Evaluate(context.Background(), in)
	require.NoError(t, err)
	require.Equal(t, 100.0, first.Factors[FactorContextCompliance])

	// The world changes: history accrues, the session is even revoked. A
	// fresh cache entry must ignore all of it except context.
	events.RecordAuthEvent(audit.AuthEvent{PrincipalID: "usr_a", Success: false, At: clock.t})
	sessions.Revoke(s.ID)

	// Moments later the request falls outside business hours.
	clock.advance(61 * time.Second)

	second, err := engine.Evaluate(context.Background(), in)
	require.NoError(t, err)

	assert.Equal(t, 80.0, second.Factors[FactorContextCompliance], "context recomputed: -20 outside hours")
	for f := Factor(0); f < NumFactors; f++ {
		if f == FactorContextCompliance {
			continue
		}
		assert.Equal(t, first.Factors[f], second.Factors[f], "factor %s must be served stale", f)
	}
	assert.InDelta(t, first.Score+(80.0-100.0)*Weight(FactorContextCompliance), second.Score, 1e-9)
	assert.Equal(t, first.ComputedAt, second.ComputedAt, "adjustment does not refresh the evaluation")
}

func TestCacheExpiryForcesFullRecompute(t *testing.T) {
	clock := &testClock{t: time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)}
	engine, sessions, _ := newTestEngine(t, clock)

	device := session.Device{IPSubnet: "10.0", UAFamily: "Chrome/1"}
	s := sessions.Create("usr_a", device)
	in := Input{
		PrincipalID: "usr_a",
		Role:        authz.RoleDoctor,
		OrgUnit:     "cardiology",
		SessionID:   s.ID,
		Endpoint:    "/api/v1/records/1",
		Device:      device,
	}

	first, err := engine.Evaluate(context.Background(), in)
	require.NoError(t, err)
	require.Equal(t, 100.0, first.Factors[FactorSessionHealth])

	sessions.Revoke(s.ID)
	clock.advance(DefaultCacheTTL + time.Second)

	second, err := engine.Evaluate(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, 0.0, second.Factors[FactorSessionHealth], "expired cache re-reads the session")
	assert.True(t, second.ComputedAt.After(first.ComputedAt))
}

func TestCacheCapacityEvictsOldest(t *testing.T) {
	clock := &testClock{t: time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)}
	sessions := session.NewMemoryStore(session.WithClock(clock.now))
	events := audit.NewRingLog()

	engine, err := NewEngine(Config{
		Sessions:      sessions,
		Events:        events,
		BusinessHours: testWindow,
		CacheCapacity: 3,
		Clock:         clock.now,
	})
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		_, err := engine.Evaluate(context.Background(), Input{
			PrincipalID: fmt.Sprintf("usr_%d", i),
			Role:        authz.RoleDoctor,
			OrgUnit:     "cardiology",
			SessionID:   "sess_none",
			Endpoint:    "/x",
		})
		require.NoError(t, err)
		clock.advance(time.Second)
	}

	assert.Equal(t, 3, engine.CacheLen(), "cache stays bounded")
}

func TestEvaluateRespectsContextCancellation(t *testing.T) {
	clock := &testClock{t: time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)}
	engine, _, _ := newTestEngine(t, clock)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := engine.Evaluate(ctx, Input{PrincipalID: "usr_a", SessionID: "sess_x"})
	require.Error(t, err)
}

func TestClearCache(t *testing.T) {
	clock := &testClock{t: time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)}
	engine, _, _ := newTestEngine(t, clock)

	_, err := engine.Evaluate(context.Background(), Input{PrincipalID: "usr_a", SessionID: "sess_x"})
	require.NoError(t, err)
	require.Equal(t, 1, engine.CacheLen())

	engine.ClearCache()
	assert.Equal(t, 0, engine.CacheLen())
}

func TestActionThresholds(t *testing.T) {
	tests := []struct {
		score float64
		want  Action
	}{
		{score: 100, want: ActionAllow},
		{score: 70, want: ActionAllow},
		{score: 69.999, want: ActionChallenge},
		{score: 50, want: ActionChallenge},
		{score: 49.999, want: ActionDeny},
		{score: 0, want: ActionDeny},
	}
	for _, tc := range tests {
		action, _ := actionForScore(tc.score, DefaultAllowThreshold, DefaultChallengeThreshold)
		assert.Equal(t, tc.want, action, "score %.3f", tc.score)
	}
}

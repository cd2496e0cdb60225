package trust

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/RaihaanIhsan/ZeroTrustHealthCare/pkg/audit"
	"github.com/RaihaanIhsan/ZeroTrustHealthCare/pkg/authz"
	"github.com/RaihaanIhsan/ZeroTrustHealthCare/pkg/policy"
	"github.com/RaihaanIhsan/ZeroTrustHealthCare/pkg/session"
)

// EventLog is the history collaborator the engine reads behavioral signals
// from. The audit ring log implements it in memory; the sqlite store offers a
// durable equivalent.
type EventLog interface {
	// RecentAuthEvents returns up to n login outcomes, newest first.
	RecentAuthEvents(principalID string, n int) []audit.AuthEvent

	// RecentAttempts returns up to n access attempts, newest first.
	RecentAttempts(principalID string, n int) []audit.AccessAttempt

	// CountAttemptsSince counts attempts at or after the given time.
	CountAttemptsSince(principalID string, since time.Time) int
}

// Config contains options for the Engine.
type Config struct {
	// Logger for structured evaluation logging. If nil, uses slog.Default().
	Logger *slog.Logger

	// Sessions is the session store consulted for health and device factors.
	Sessions session.Store

	// Events supplies login and attempt history.
	Events EventLog

	// BusinessHours is the window the context factor compares against.
	BusinessHours policy.Window

	// CacheTTL is the evaluation freshness window. Defaults to 15 minutes.
	CacheTTL time.Duration

	// CacheCapacity bounds the evaluation cache. Defaults to 1000.
	CacheCapacity int

	// AllowThreshold and ChallengeThreshold map scores onto actions.
	// Zero values use the defaults (70 and 50).
	AllowThreshold     float64
	ChallengeThreshold float64

	// Clock overrides the time source for tests.
	Clock func() time.Time
}

// Input carries the per-request signals the engine scores.
type Input struct {
	PrincipalID string
	Role        authz.Role
	OrgUnit     string
	SessionID   string
	Endpoint    string
	Device      session.Device // fingerprint of the current request
}

// Engine computes and caches trust evaluations. Safe for concurrent use.
type Engine struct {
	sessions  session.Store
	events    EventLog
	window    policy.Window
	allow     float64
	challenge float64
	cache     *evalCache
	logger    *slog.Logger
	now       func() time.Time
}

// NewEngine creates a trust engine with the given configuration.
func NewEngine(cfg Config) (*Engine, error) {
	if cfg.Sessions == nil {
		return nil, fmt.Errorf("trust: Config.Sessions is required")
	}
	if cfg.Events == nil {
		return nil, fmt.Errorf("trust: Config.Events is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Clock
	if now == nil {
		now = time.Now
	}
	allow := cfg.AllowThreshold
	if allow == 0 {
		allow = DefaultAllowThreshold
	}
	challenge := cfg.ChallengeThreshold
	if challenge == 0 {
		challenge = DefaultChallengeThreshold
	}
	if challenge > allow {
		return nil, fmt.Errorf("trust: challenge threshold %.1f exceeds allow threshold %.1f", challenge, allow)
	}

	return &Engine{
		sessions:  cfg.Sessions,
		events:    cfg.Events,
		window:    cfg.BusinessHours,
		allow:     allow,
		challenge: challenge,
		cache:     newEvalCache(cfg.CacheTTL, cfg.CacheCapacity, now),
		logger:    logger,
		now:       now,
	}, nil
}

// Evaluate scores the principal for the current request. Within the cache
// freshness window only the time-sensitive context factor is recomputed and
// the cached score is adjusted by the weighted delta; the other five factors
// are served stale by design.
func (e *Engine) Evaluate(ctx context.Context, in Input) (*Evaluation, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("trust evaluation aborted: %w", err)
	}
	now := e.now()

	if cached, ok := e.cache.get(in.PrincipalID); ok {
		adjusted := e.adjustContext(cached, in, now)
		e.cache.update(adjusted)
		e.logEvaluation(adjusted, true)
		return &adjusted, nil
	}

	eval := e.compute(in, now)
	e.cache.put(eval)
	e.logEvaluation(eval, false)
	return &eval, nil
}

// compute performs a full six-factor evaluation.
func (e *Engine) compute(in Input, now time.Time) Evaluation {
	sess, ok := e.sessions.Get(in.SessionID)

	authHistory := e.events.RecentAuthEvents(in.PrincipalID, 20)
	attempts := e.events.RecentAttempts(in.PrincipalID, 100)
	burst := e.events.CountAttemptsSince(in.PrincipalID, now.Add(-5*time.Minute))

	var fs FactorSet
	fs[FactorSessionHealth] = SessionHealth(sess, ok, now)
	fs[FactorAuthTrackRecord] = AuthTrackRecord(authHistory)
	fs[FactorDeviceConsistency] = DeviceConsistency(sess, ok, in.Device, now)
	fs[FactorAccessPattern] = AccessPattern(in.Endpoint, attempts, burst)
	fs[FactorContextCompliance] = ContextCompliance(now, e.window, in.OrgUnit, in.Role)
	fs[FactorRoleRisk] = RoleRisk(in.Role)

	score := clamp(fs.Weighted())
	action, reason := actionForScore(score, e.allow, e.challenge)

	return Evaluation{
		PrincipalID: in.PrincipalID,
		Score:       score,
		Action:      action,
		Reason:      reason,
		Factors:     fs,
		ComputedAt:  now,
	}
}

// adjustContext recomputes only the context factor against a cached
// evaluation and shifts the score by the weighted delta. This trades
// staleness on the other five factors for recomputation cost.
func (e *Engine) adjustContext(cached Evaluation, in Input, now time.Time) Evaluation {
	newContext := ContextCompliance(now, e.window, in.OrgUnit, in.Role)
	oldContext := cached.Factors[FactorContextCompliance]

	adjusted := cached
	adjusted.Factors[FactorContextCompliance] = newContext
	adjusted.Score = clamp(cached.Score + (newContext-oldContext)*Weight(FactorContextCompliance))
	adjusted.Action, adjusted.Reason = actionForScore(adjusted.Score, e.allow, e.challenge)
	return adjusted
}

// logEvaluation logs the evaluation with structured fields.
func (e *Engine) logEvaluation(eval Evaluation, cacheHit bool) {
	e.logger.Info("trust evaluation",
		"principal", eval.PrincipalID,
		"score", eval.Score,
		"action", eval.Action,
		"reason", eval.Reason,
		"cache_hit", cacheHit,
		"session_health", eval.Factors[FactorSessionHealth],
		"auth_track_record", eval.Factors[FactorAuthTrackRecord],
		"device_consistency", eval.Factors[FactorDeviceConsistency],
		"access_pattern", eval.Factors[FactorAccessPattern],
		"context_compliance", eval.Factors[FactorContextCompliance],
		"role_risk", eval.Factors[FactorRoleRisk],
	)
}

// CacheLen returns the number of cached evaluations.
func (e *Engine) CacheLen() int {
	return e.cache.len()
}

// ClearCache empties the evaluation cache. Intended for test isolation and
// operator-forced re-evaluation.
func (e *Engine) ClearCache() {
	e.cache.clear()
}

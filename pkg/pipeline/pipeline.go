// Package pipeline chains session validation, context policy, trust
// evaluation, and the privacy transforms into a single access decision for
// each gated request.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/RaihaanIhsan/ZeroTrustHealthCare/pkg/audit"
	"github.com/RaihaanIhsan/ZeroTrustHealthCare/pkg/authz"
	"github.com/RaihaanIhsan/ZeroTrustHealthCare/pkg/policy"
	"github.com/RaihaanIhsan/ZeroTrustHealthCare/pkg/privacy"
	"github.com/RaihaanIhsan/ZeroTrustHealthCare/pkg/session"
	"github.com/RaihaanIhsan/ZeroTrustHealthCare/pkg/trust"
)

// defaultAction names the authorization action used for record access checks.
const defaultAction = "record:read"

// ResourceLookup resolves a resource ID to its authorization attributes.
// Implementations typically consult the record catalog.
type ResourceLookup func(ctx context.Context, resourceID string) (authz.Resource, error)

// AttemptRecorder persists access attempts durably. The sqlite store
// implements it; persistence failures are logged, never propagated.
type AttemptRecorder interface {
	RecordAttempt(audit.AccessAttempt) error
}

// Config contains the pipeline's collaborators. Sessions, Trust, Assignments,
// and History are required; everything else is optional.
type Config struct {
	// Logger for structured decision logging. If nil, uses slog.Default().
	Logger *slog.Logger

	// Sessions is the session store requests are validated against.
	Sessions session.Store

	// Trust scores the principal once context policy passes.
	Trust *trust.Engine

	// Assignments checks resource assignment via Cedar policies.
	Assignments *authz.Authorizer

	// History receives every terminal attempt and feeds trust factors.
	History *audit.RingLog

	// Durable optionally persists attempts beyond process lifetime.
	Durable AttemptRecorder

	// Emitter optionally receives structured audit events.
	Emitter audit.EventEmitter

	// BusinessHours is the window the context policy enforces.
	BusinessHours policy.Window

	// Resources resolves resource IDs for org-unit and assignment checks,
	// which run only for org-unit-restricted roles. Nil skips resource-scoped
	// policy entirely (session, hours, and device checks still apply).
	Resources ResourceLookup

	// Cipher enables field-level encryption of identifying record fields.
	Cipher *privacy.FieldCipher

	// Noise enables differential-privacy noise on exported metrics.
	Noise *privacy.Injector

	// Aggregator enables confidential score aggregation over ciphertexts.
	Aggregator *privacy.Aggregator

	// Clock overrides the time source for tests.
	Clock func() time.Time
}

// Input carries one gated request through the pipeline.
type Input struct {
	PrincipalID string
	Role        authz.Role
	OrgUnit     string
	SessionID   string
	SourceIP    string
	UserAgent   string
	Endpoint    string
	ResourceID  string // empty for requests not scoped to a resource
}

// Decision is the pipeline's terminal outcome for a request.
type Decision struct {
	Action trust.Action
	Trust  *trust.Evaluation // nil when denied before trust scoring ran
	Audit  audit.AccessAttempt
}

// Pipeline gates requests. Safe for concurrent use.
type Pipeline struct {
	sessions    session.Store
	trust       *trust.Engine
	assignments *authz.Authorizer
	history     *audit.RingLog
	durable     AttemptRecorder
	emitter     audit.EventEmitter
	window      policy.Window
	resources   ResourceLookup
	cipher      *privacy.FieldCipher
	noise       *privacy.Injector
	aggregator  *privacy.Aggregator
	logger      *slog.Logger
	now         func() time.Time
}

// New creates an access pipeline from the given configuration.
func New(cfg Config) (*Pipeline, error) {
	if cfg.Sessions == nil {
		return nil, fmt.Errorf("pipeline: Config.Sessions is required")
	}
	if cfg.Trust == nil {
		return nil, fmt.Errorf("pipeline: Config.Trust is required")
	}
	if cfg.Assignments == nil {
		return nil, fmt.Errorf("pipeline: Config.Assignments is required")
	}
	if cfg.History == nil {
		return nil, fmt.Errorf("pipeline: Config.History is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	emitter := cfg.Emitter
	if emitter == nil {
		emitter = audit.NopEmitter{}
	}
	now := cfg.Clock
	if now == nil {
		now = time.Now
	}

	return &Pipeline{
		sessions:    cfg.Sessions,
		trust:       cfg.Trust,
		assignments: cfg.Assignments,
		history:     cfg.History,
		durable:     cfg.Durable,
		emitter:     emitter,
		window:      cfg.BusinessHours,
		resources:   cfg.Resources,
		cipher:      cfg.Cipher,
		noise:       cfg.Noise,
		aggregator:  cfg.Aggregator,
		logger:      logger,
		now:         now,
	}, nil
}

// Authorize runs a request through the full stage order: session validation,
// context policy, trust evaluation. The returned error is non-nil only for
// authentication and policy rejections; trust-driven CHALLENGE and DENY are
// conveyed through Decision.Action.
func (p *Pipeline) Authorize(ctx context.Context, in Input) (Decision, error) {
	now := p.now()
	device := policy.Fingerprint(in.SourceIP, in.UserAgent)

	// Stage 1: session validation.
	sess, ok := p.sessions.Get(in.SessionID)
	if !ok || !sess.Active || sess.PrincipalID != in.PrincipalID {
		err := ErrAuthentication("no valid session for request")
		return p.deny(in, now, err.Message, audit.EventAccessDenied), err
	}

	// Stage 2: context policy. Each check fails closed with a reason
	// carrying the "context:" marker.
	if !policy.WithinBusinessHours(now, p.window) {
		err := ErrPolicyViolation("request outside business hours")
		return p.deny(in, now, err.Message, audit.EventAccessDenied), err
	}
	if !policy.TrustedDevice(sess.Device, device) {
		err := ErrPolicyViolation("unrecognized device fingerprint")
		return p.deny(in, now, err.Message, audit.EventAccessDenied), err
	}

	// Resource-scoped checks apply only to org-unit-restricted roles.
	// Elevated roles cross departments freely and answer to trust scoring
	// instead.
	if in.ResourceID != "" && p.resources != nil && in.Role.OrgUnitRestricted() {
		resource, lookupErr := p.resources(ctx, in.ResourceID)
		if lookupErr != nil {
			err := ErrPolicyViolation(fmt.Sprintf("resource %s cannot be resolved", in.ResourceID))
			return p.deny(in, now, err.Message, audit.EventAccessDenied), err
		}
		if !policy.OrgUnitAllowed(in.OrgUnit, resource.OrgUnit) {
			err := ErrPolicyViolation(fmt.Sprintf("org unit %q does not cover resource in %q", in.OrgUnit, resource.OrgUnit))
			return p.deny(in, now, err.Message, audit.EventAccessDenied), err
		}

		assignment := p.assignments.Authorize(ctx, authz.Request{
			Principal: authz.Principal{UID: in.PrincipalID, Role: in.Role, OrgUnit: in.OrgUnit},
			Action:    defaultAction,
			Resource:  resource,
		})
		if !assignment.Allowed {
			err := ErrPolicyViolation(assignment.Reason)
			return p.deny(in, now, err.Message, audit.EventAccessDenied), err
		}
	}

	// Stage 3: trust evaluation. An engine failure fails open: availability
	// of care wins over scoring, but the event is loud in both logs and the
	// audit stream.
	eval, err := p.trust.Evaluate(ctx, trust.Input{
		PrincipalID: in.PrincipalID,
		Role:        in.Role,
		OrgUnit:     in.OrgUnit,
		SessionID:   in.SessionID,
		Endpoint:    in.Endpoint,
		Device:      device,
	})
	if err != nil {
		p.logger.Error("trust evaluation failed, failing open",
			"principal", in.PrincipalID,
			"endpoint", in.Endpoint,
			"error", err,
		)
		attempt := p.record(in, now, audit.ResultGranted, "trust evaluation unavailable, failed open", audit.EventTrustFailOpen)
		p.sessions.Touch(in.SessionID, in.Endpoint)
		return Decision{Action: trust.ActionAllow, Audit: attempt}, nil
	}

	if p.aggregator != nil {
		p.confidentialScore(ctx, eval)
	}

	switch eval.Action {
	case trust.ActionAllow:
		p.sessions.Touch(in.SessionID, in.Endpoint)
		attempt := p.record(in, now, audit.ResultGranted, eval.Reason, audit.EventAccessGranted)
		return Decision{Action: eval.Action, Trust: eval, Audit: attempt}, nil
	case trust.ActionChallenge:
		attempt := p.record(in, now, audit.ResultDenied, eval.Reason, audit.EventAccessChallenged)
		return Decision{Action: eval.Action, Trust: eval, Audit: attempt}, nil
	default:
		attempt := p.record(in, now, audit.ResultDenied, eval.Reason, audit.EventAccessDenied)
		return Decision{Action: eval.Action, Trust: eval, Audit: attempt}, nil
	}
}

// confidentialScore recomputes the composite score over ciphertexts and
// replaces the plaintext composite when the two agree to within quantization
// error. Disagreement beyond that indicates a scoring bug and is logged
// without overriding the engine.
func (p *Pipeline) confidentialScore(ctx context.Context, eval *trust.Evaluation) {
	weights := make([]float64, trust.NumFactors)
	for f := trust.Factor(0); f < trust.NumFactors; f++ {
		weights[f] = trust.Weight(f)
	}

	score, err := p.aggregator.AggregateScore(ctx, eval.Factors[:], weights)
	if err != nil {
		p.logger.Warn("confidential aggregation unavailable, using plaintext score",
			"principal", eval.PrincipalID,
			"error", err,
		)
		return
	}

	if math.Abs(score-eval.Score) > 1.0 {
		p.logger.Error("confidential aggregate disagrees with plaintext score",
			"principal", eval.PrincipalID,
			"plaintext", eval.Score,
			"aggregate", score,
		)
		return
	}
	eval.Score = score
}

// deny records a terminal denial and returns the corresponding decision.
func (p *Pipeline) deny(in Input, now time.Time, reason string, event audit.EventType) Decision {
	attempt := p.record(in, now, audit.ResultDenied, reason, event)
	return Decision{Action: trust.ActionDeny, Audit: attempt}
}

// record writes the attempt to the ring, best-effort to durable storage, and
// emits the audit event. Failures here never fail the request.
func (p *Pipeline) record(in Input, now time.Time, result audit.Result, reason string, event audit.EventType) audit.AccessAttempt {
	attempt := audit.AccessAttempt{
		IP:          in.SourceIP,
		PrincipalID: in.PrincipalID,
		Endpoint:    in.Endpoint,
		Result:      result,
		Reason:      reason,
		At:          now,
	}

	p.history.RecordAttempt(attempt)
	if p.durable != nil {
		if err := p.durable.RecordAttempt(attempt); err != nil {
			p.logger.Warn("durable attempt record failed",
				"principal", in.PrincipalID,
				"error", err,
			)
		}
	}
	if err := p.emitter.Emit(audit.NewAccessEvent(event, attempt)); err != nil {
		p.logger.Warn("audit emit failed", "event", event, "error", err)
	}
	return attempt
}

// ProtectRecord encrypts the identifying fields of a record before storage.
// With field encryption disabled the record passes through unchanged.
func (p *Pipeline) ProtectRecord(record map[string]string) (map[string]string, error) {
	if p.cipher == nil {
		return record, nil
	}
	out, err := p.cipher.EncryptRecord(record)
	if err != nil {
		return nil, fmt.Errorf("failed to protect record: %w", err)
	}
	return out, nil
}

// RevealRecord decrypts the identifying fields of a stored record for an
// authorized response. Decryption failures surface as structured errors and
// never return partial plaintext.
func (p *Pipeline) RevealRecord(record map[string]string) (map[string]string, error) {
	if p.cipher == nil {
		return record, nil
	}
	out, err := p.cipher.DecryptRecord(record)
	if err != nil {
		var de *privacy.DecryptionError
		if errors.As(err, &de) {
			return nil, ErrDecryption(de.Reason)
		}
		return nil, fmt.Errorf("failed to reveal record: %w", err)
	}
	return out, nil
}

// BudgetUsage reports the privacy budget state. ok is false when noise
// injection is disabled.
func (p *Pipeline) BudgetUsage() (used, ceiling float64, ok bool) {
	if p.noise == nil {
		return 0, 0, false
	}
	b := p.noise.Budget()
	return b.Used(), b.Ceiling(), true
}

// ResetBudget clears the accumulated privacy spend and reports whether noise
// injection is enabled. Resetting is an operator action, never automatic.
func (p *Pipeline) ResetBudget() bool {
	if p.noise == nil {
		return false
	}
	b := p.noise.Budget()
	used := b.Used()
	b.Reset()
	p.logger.Info("privacy budget reset", "used", used, "ceiling", b.Ceiling())
	return true
}

// Metrics exports aggregate counters, noised when a noise injector is
// configured. A tripped privacy budget surfaces as ErrCodeBudgetExceeded and
// an audit event; the true counts are never exported in that state.
func (p *Pipeline) Metrics() (audit.Metrics, error) {
	m := p.history.Snapshot()
	if p.noise == nil {
		return m, nil
	}

	counts := []*int{&m.Attempts, &m.Granted, &m.Denied, &m.UniquePrincipals, &m.AuthSuccesses, &m.AuthFailures}
	for _, c := range counts {
		noised, err := p.noise.NoisyCount(*c)
		if err != nil {
			if errors.Is(err, privacy.ErrPrivacyBudgetExceeded) {
				if emitErr := p.emitter.Emit(audit.Event{
					Type:      audit.EventBudgetExceeded,
					Severity:  audit.SeverityFor(audit.EventBudgetExceeded),
					Timestamp: p.now(),
				}); emitErr != nil {
					p.logger.Warn("audit emit failed", "event", audit.EventBudgetExceeded, "error", emitErr)
				}
				return audit.Metrics{}, ErrBudgetExceeded()
			}
			return audit.Metrics{}, fmt.Errorf("failed to noise metrics: %w", err)
		}
		*c = noised
	}
	return m, nil
}

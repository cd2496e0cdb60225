package pipeline

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RaihaanIhsan/ZeroTrustHealthCare/pkg/audit"
	"github.com/RaihaanIhsan/ZeroTrustHealthCare/pkg/authz"
	"github.com/RaihaanIhsan/ZeroTrustHealthCare/pkg/policy"
	"github.com/RaihaanIhsan/ZeroTrustHealthCare/pkg/session"
	"github.com/RaihaanIhsan/ZeroTrustHealthCare/pkg/trust"
)

// testClock is a settable time source shared by every component under test.
type testClock struct{ t time.Time }

func (c *testClock) now() time.Time          { return c.t }
func (c *testClock) advance(d time.Duration) { c.t = c.t.Add(d) }

// fixture wires a full pipeline over in-memory collaborators.
type fixture struct {
	clock     *testClock
	sessions  *session.MemoryStore
	history   *audit.RingLog
	engine    *trust.Engine
	pipe      *Pipeline
	resources map[string]authz.Resource
}

func newFixture(t *testing.T, mutate ...func(*Config)) *fixture {
	t.Helper()
	// A Tuesday morning, inside business hours.
	clock := &testClock{t: time.Date(2026, 3, 3, 10, 0, 0, 0, time.UTC)}

	window, err := policy.ParseWindow("08:00-18:00")
	require.NoError(t, err)

	sessions := session.NewMemoryStore(session.WithClock(clock.now))
	history := audit.NewRingLog()

	engine, err := trust.NewEngine(trust.Config{
		Sessions:      sessions,
		Events:        history,
		BusinessHours: window,
		Clock:         clock.now,
	})
	require.NoError(t, err)

	authorizer, err := authz.NewAuthorizer(authz.Config{})
	require.NoError(t, err)

	f := &fixture{
		clock:     clock,
		sessions:  sessions,
		history:   history,
		engine:    engine,
		resources: make(map[string]authz.Resource),
	}

	cfg := Config{
		Sessions:      sessions,
		Trust:         engine,
		Assignments:   authorizer,
		History:       history,
		BusinessHours: window,
		Resources: func(_ context.Context, id string) (authz.Resource, error) {
			r, ok := f.resources[id]
			if !ok {
				return authz.Resource{}, fmt.Errorf("resource %s not found", id)
			}
			return r, nil
		},
		Clock: clock.now,
	}
	for _, m := range mutate {
		m(&cfg)
	}
	pipe, err := New(cfg)
	require.NoError(t, err)
	f.pipe = pipe
	return f
}

// login creates a session for the principal from the given device and records
// the successful auth event.
func (f *fixture) login(principalID, ip, ua string) session.Session {
	sess := f.sessions.Create(principalID, policy.Fingerprint(ip, ua))
	f.history.RecordAuthEvent(audit.AuthEvent{PrincipalID: principalID, Success: true, At: f.clock.now()})
	return sess
}

func (f *fixture) doctorInput(sess session.Session) Input {
	return Input{
		PrincipalID: sess.PrincipalID,
		Role:        authz.RoleDoctor,
		OrgUnit:     "cardiology",
		SessionID:   sess.ID,
		SourceIP:    "10.0.0.5",
		UserAgent:   "Chrome/1 (X11; Linux)",
		Endpoint:    "/api/v1/records/r1",
	}
}

func TestAuthorizeHealthyRequestAllowed(t *testing.T) {
	f := newFixture(t)
	sess := f.login("usr_doc1", "10.0.0.5", "Chrome/1 (X11; Linux)")

	decision, err := f.pipe.Authorize(context.Background(), f.doctorInput(sess))
	require.NoError(t, err)

	assert.Equal(t, trust.ActionAllow, decision.Action)
	require.NotNil(t, decision.Trust)
	assert.GreaterOrEqual(t, decision.Trust.Score, 70.0)
	assert.Equal(t, audit.ResultGranted, decision.Audit.Result)

	t.Log("an allowed request must touch the session access log")
	got, ok := f.sessions.Get(sess.ID)
	require.True(t, ok)
	require.Len(t, got.AccessLog, 1)
	assert.Equal(t, "/api/v1/records/r1", got.AccessLog[0].Endpoint)
}

func TestAuthorizeRejectsMissingSession(t *testing.T) {
	f := newFixture(t)

	in := Input{
		PrincipalID: "usr_ghost",
		Role:        authz.RoleDoctor,
		OrgUnit:     "cardiology",
		SessionID:   "sess_missing",
		SourceIP:    "10.0.0.5",
		UserAgent:   "Chrome/1",
		Endpoint:    "/api/v1/records/r1",
	}
	decision, err := f.pipe.Authorize(context.Background(), in)
	require.Error(t, err)
	assert.Equal(t, ErrCodeAuthentication, ErrorCode(err))
	assert.Equal(t, trust.ActionDeny, decision.Action)
	assert.Nil(t, decision.Trust)

	t.Log("the denial is recorded as an access attempt")
	attempts := f.history.RecentAttempts("usr_ghost", 1)
	require.Len(t, attempts, 1)
	assert.Equal(t, audit.ResultDenied, attempts[0].Result)
}

func TestAuthorizeRejectsRevokedSession(t *testing.T) {
	f := newFixture(t)
	sess := f.login("usr_doc1", "10.0.0.5", "Chrome/1")
	f.sessions.Revoke(sess.ID)

	_, err := f.pipe.Authorize(context.Background(), f.doctorInput(sess))
	assert.Equal(t, ErrCodeAuthentication, ErrorCode(err))
}

func TestAuthorizeRejectsSessionOwnerMismatch(t *testing.T) {
	f := newFixture(t)
	sess := f.login("usr_doc1", "10.0.0.5", "Chrome/1")

	in := f.doctorInput(sess)
	in.PrincipalID = "usr_other"
	_, err := f.pipe.Authorize(context.Background(), in)
	assert.Equal(t, ErrCodeAuthentication, ErrorCode(err))
}

func TestAuthorizeRejectsOutsideBusinessHours(t *testing.T) {
	f := newFixture(t)
	sess := f.login("usr_doc1", "10.0.0.5", "Chrome/1 (X11; Linux)")

	f.clock.advance(12 * time.Hour) // 22:00

	_, err := f.pipe.Authorize(context.Background(), f.doctorInput(sess))
	require.Error(t, err)
	assert.Equal(t, ErrCodePolicyViolation, ErrorCode(err))
	assert.Contains(t, err.Error(), "context")
	assert.Contains(t, err.Error(), "business hours")
}

func TestAuthorizeRejectsUnknownResource(t *testing.T) {
	f := newFixture(t)
	sess := f.login("usr_nur1", "10.0.0.5", "Chrome/1 (X11; Linux)")

	in := f.doctorInput(sess)
	in.Role = authz.RoleNurse
	in.ResourceID = "rec_missing"
	_, err := f.pipe.Authorize(context.Background(), in)
	assert.Equal(t, ErrCodePolicyViolation, ErrorCode(err))
}

// Elevated roles are not org-unit-restricted: the resource lookup and
// org-unit gate are skipped and the request goes straight to trust scoring.
func TestAuthorizeElevatedRoleCrossesDepartments(t *testing.T) {
	f := newFixture(t)
	sess := f.login("usr_doc1", "10.0.0.5", "Chrome/1 (X11; Linux)")
	f.resources["rec_neuro"] = authz.Resource{
		UID:     "rec_neuro",
		Type:    "Record",
		OrgUnit: "neurology",
	}

	in := f.doctorInput(sess)
	in.ResourceID = "rec_neuro"

	decision, err := f.pipe.Authorize(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, trust.ActionAllow, decision.Action)

	t.Log("trust scoring ran, so the request was gated by score, not org unit")
	assert.Equal(t, 1, f.engine.CacheLen())
}

func TestAuthorizeAllowsAssignedNurse(t *testing.T) {
	f := newFixture(t)
	sess := f.login("usr_nur1", "10.0.0.5", "Chrome/1 (X11; Linux)")
	f.resources["rec_1"] = authz.Resource{
		UID:      "rec_1",
		Type:     "Record",
		OrgUnit:  "cardiology",
		Assigned: []string{"usr_nur1"},
	}

	in := f.doctorInput(sess)
	in.Role = authz.RoleNurse
	in.ResourceID = "rec_1"

	decision, err := f.pipe.Authorize(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, trust.ActionAllow, decision.Action)
}

func TestAuthorizeRejectsUnassignedNurse(t *testing.T) {
	f := newFixture(t)
	sess := f.login("usr_nur1", "10.0.0.5", "Chrome/1 (X11; Linux)")
	f.resources["rec_1"] = authz.Resource{
		UID:      "rec_1",
		Type:     "Record",
		OrgUnit:  "cardiology",
		Assigned: []string{"usr_nur2"},
	}

	in := f.doctorInput(sess)
	in.Role = authz.RoleNurse
	in.ResourceID = "rec_1"

	_, err := f.pipe.Authorize(context.Background(), in)
	require.Error(t, err)
	assert.Equal(t, ErrCodePolicyViolation, ErrorCode(err))
	assert.Contains(t, err.Error(), "not assigned")
}

// A principal with a run of failed logins who then hammers the API must not
// come out of trust scoring with an ALLOW.
func TestBurstAfterFailedLoginsIsNotAllowed(t *testing.T) {
	f := newFixture(t)
	now := f.clock.now()

	// Five failed logins, then one success that established the session.
	for i := 0; i < 5; i++ {
		f.history.RecordAuthEvent(audit.AuthEvent{
			PrincipalID: "usr_doc1",
			Success:     false,
			At:          now.Add(time.Duration(i-10) * time.Minute),
		})
	}
	sess := f.login("usr_doc1", "10.0.0.5", "Chrome/1 (X11; Linux)")

	// A burst of 55 requests in the trailing five minutes, several denied.
	for i := 0; i < 55; i++ {
		result := audit.ResultGranted
		if i >= 48 {
			result = audit.ResultDenied
		}
		f.history.RecordAttempt(audit.AccessAttempt{
			IP:          "10.0.0.5",
			PrincipalID: "usr_doc1",
			Endpoint:    "/api/v1/records/r1",
			Result:      result,
			At:          now.Add(-time.Duration(55-i) * time.Second),
		})
	}

	decision, err := f.pipe.Authorize(context.Background(), f.doctorInput(sess))
	require.NoError(t, err)

	require.NotNil(t, decision.Trust)
	pattern := decision.Trust.Factors[trust.FactorAccessPattern]
	t.Logf("access pattern factor: %.1f, score: %.1f, action: %s",
		pattern, decision.Trust.Score, decision.Action)

	assert.LessOrEqual(t, pattern, 60.0)
	assert.NotEqual(t, trust.ActionAllow, decision.Action)
}

// A request from a different /16 than the device recorded at login must be
// rejected as a device mismatch before trust scoring.
func TestDeviceSubnetChangeRejected(t *testing.T) {
	f := newFixture(t)
	sess := f.login("usr_doc1", "10.0.0.5", "Chrome/1 (X11; Linux)")

	in := f.doctorInput(sess)
	in.SourceIP = "10.99.0.7" // same UA family, different first two octets

	_, err := f.pipe.Authorize(context.Background(), in)
	require.Error(t, err)
	assert.Equal(t, ErrCodePolicyViolation, ErrorCode(err))
	assert.Contains(t, err.Error(), "context")
	assert.Contains(t, err.Error(), "device")
}

// A restricted-role principal reaching across departments is denied by
// context policy; trust scoring never runs.
func TestCrossDepartmentAccessDeniedBeforeTrust(t *testing.T) {
	f := newFixture(t)
	sess := f.login("usr_nur1", "10.0.0.5", "Chrome/1 (X11; Linux)")
	f.resources["rec_neuro"] = authz.Resource{
		UID:      "rec_neuro",
		Type:     "Record",
		OrgUnit:  "neurology",
		Assigned: []string{"usr_nur1"},
	}

	in := f.doctorInput(sess)
	in.Role = authz.RoleNurse
	in.ResourceID = "rec_neuro"

	_, err := f.pipe.Authorize(context.Background(), in)
	require.Error(t, err)
	assert.Equal(t, ErrCodePolicyViolation, ErrorCode(err))
	assert.Contains(t, err.Error(), "context")

	t.Log("no trust evaluation was cached, proving scoring never ran")
	assert.Zero(t, f.engine.CacheLen())
}

func TestAuthorizeRecordsGrantedAttempts(t *testing.T) {
	f := newFixture(t)
	sess := f.login("usr_doc1", "10.0.0.5", "Chrome/1 (X11; Linux)")

	_, err := f.pipe.Authorize(context.Background(), f.doctorInput(sess))
	require.NoError(t, err)

	attempts := f.history.RecentAttempts("usr_doc1", 10)
	require.Len(t, attempts, 1)
	assert.Equal(t, audit.ResultGranted, attempts[0].Result)
}

func TestMetricsWithoutNoisePassThrough(t *testing.T) {
	f := newFixture(t)
	sess := f.login("usr_doc1", "10.0.0.5", "Chrome/1 (X11; Linux)")

	_, err := f.pipe.Authorize(context.Background(), f.doctorInput(sess))
	require.NoError(t, err)

	m, err := f.pipe.Metrics()
	require.NoError(t, err)
	assert.Equal(t, 1, m.Attempts)
	assert.Equal(t, 1, m.Granted)
}

func TestRevealRecordWithoutCipherPassThrough(t *testing.T) {
	f := newFixture(t)
	record := map[string]string{"name": "Ada", "room": "4B"}

	got, err := f.pipe.RevealRecord(record)
	require.NoError(t, err)
	assert.Equal(t, record, got)
}

// captureEmitter retains emitted audit events for assertions.
type captureEmitter struct{ events []audit.Event }

func (c *captureEmitter) Emit(ev audit.Event) error {
	c.events = append(c.events, ev)
	return nil
}

// An engine failure mid-request fails open: the request is allowed, the
// attempt is recorded GRANTED with the fail-open reason, and the failure is
// loud in the audit stream.
func TestAuthorizeFailsOpenOnTrustError(t *testing.T) {
	emitter := &captureEmitter{}
	f := newFixture(t, func(cfg *Config) {
		cfg.Emitter = emitter
	})
	sess := f.login("usr_doc1", "10.0.0.5", "Chrome/1 (X11; Linux)")

	// Session and context checks pass; the cancelled context only surfaces
	// once trust evaluation starts.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	decision, err := f.pipe.Authorize(ctx, f.doctorInput(sess))
	require.NoError(t, err)
	assert.Equal(t, trust.ActionAllow, decision.Action)
	assert.Nil(t, decision.Trust)
	assert.Equal(t, audit.ResultGranted, decision.Audit.Result)
	assert.Contains(t, decision.Audit.Reason, "failed open")

	var types []audit.EventType
	for _, ev := range emitter.events {
		types = append(types, ev.Type)
	}
	assert.Contains(t, types, audit.EventTrustFailOpen)

	t.Log("the allowed request still touches the session access log")
	got, ok := f.sessions.Get(sess.ID)
	require.True(t, ok)
	assert.Len(t, got.AccessLog, 1)
}

package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"

	"github.com/RaihaanIhsan/ZeroTrustHealthCare/pkg/authz"
	"github.com/RaihaanIhsan/ZeroTrustHealthCare/pkg/trust"
)

// RequestIdentity carries the authenticated caller attributes the outer
// authentication layer resolved for the request. How the caller authenticated
// is outside this package; the middleware only consumes the result.
type RequestIdentity struct {
	PrincipalID string
	Role        authz.Role
	OrgUnit     string
	SessionID   string
}

// IdentityResolver extracts the caller identity from a request.
// Implementations read headers or cookies set by the authentication layer.
type IdentityResolver func(r *http.Request) (RequestIdentity, bool)

// ResourceIDExtractor maps a request to the resource ID it targets. Empty
// means the request is not resource-scoped.
type ResourceIDExtractor func(r *http.Request) string

// Middleware enforces the access pipeline on HTTP requests.
type Middleware struct {
	pipeline   *Pipeline
	identity   IdentityResolver
	resourceID ResourceIDExtractor
	logger     *slog.Logger
}

// MiddlewareOption configures the Middleware.
type MiddlewareOption func(*Middleware)

// WithLogger sets a custom logger for the middleware.
func WithLogger(l *slog.Logger) MiddlewareOption {
	return func(m *Middleware) {
		m.logger = l
	}
}

// WithResourceIDExtractor sets how resource IDs are derived from requests.
// The default reads the "id" path value.
func WithResourceIDExtractor(fn ResourceIDExtractor) MiddlewareOption {
	return func(m *Middleware) {
		m.resourceID = fn
	}
}

// NewMiddleware creates pipeline-enforcing HTTP middleware.
func NewMiddleware(p *Pipeline, identity IdentityResolver, opts ...MiddlewareOption) *Middleware {
	m := &Middleware{
		pipeline: p,
		identity: identity,
		resourceID: func(r *http.Request) string {
			return r.PathValue("id")
		},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

type decisionContextKey struct{}

// DecisionFromContext returns the pipeline decision recorded for an allowed
// request, or nil if none was made.
func DecisionFromContext(ctx context.Context) *Decision {
	d, _ := ctx.Value(decisionContextKey{}).(*Decision)
	return d
}

// Wrap wraps an HTTP handler with pipeline enforcement. The flow:
//  1. Resolve the caller identity; absent identity is 401.
//  2. Run the pipeline; structured errors map onto their HTTP status.
//  3. CHALLENGE returns 403 with a machine-readable challenge flag.
//  4. ALLOW passes through with the decision in the request context.
func (m *Middleware) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ident, ok := m.identity(r)
		if !ok {
			m.writeError(w, http.StatusUnauthorized, ErrCodeAuthentication, "authentication required")
			return
		}

		decision, err := m.pipeline.Authorize(r.Context(), Input{
			PrincipalID: ident.PrincipalID,
			Role:        ident.Role,
			OrgUnit:     ident.OrgUnit,
			SessionID:   ident.SessionID,
			SourceIP:    remoteIP(r),
			UserAgent:   r.UserAgent(),
			Endpoint:    r.URL.Path,
			ResourceID:  m.resourceID(r),
		})
		if err != nil {
			var pErr *Error
			if errors.As(err, &pErr) {
				m.writeError(w, pErr.HTTPStatus(), pErr.Code, pErr.Message)
				return
			}
			m.logger.Error("pipeline failure", "path", r.URL.Path, "error", err)
			m.writeError(w, http.StatusInternalServerError, "pipeline.internal", "internal error")
			return
		}

		switch decision.Action {
		case trust.ActionAllow:
			ctx := context.WithValue(r.Context(), decisionContextKey{}, &decision)
			next.ServeHTTP(w, r.WithContext(ctx))
		case trust.ActionChallenge:
			m.writeChallenge(w, &decision)
		default:
			reason := "access denied"
			if decision.Trust != nil {
				reason = decision.Trust.Reason
			}
			m.writeError(w, http.StatusForbidden, ErrCodePolicyViolation, reason)
		}
	})
}

// writeChallenge responds 403 with the challenge flag clients key on to
// trigger step-up verification.
func (m *Middleware) writeChallenge(w http.ResponseWriter, d *Decision) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusForbidden)
	body := map[string]any{
		"challenge": true,
		"reason":    "additional verification required",
	}
	if d.Trust != nil {
		body["reason"] = d.Trust.Reason
	}
	json.NewEncoder(w).Encode(body)
}

// writeError writes a JSON error response.
func (m *Middleware) writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{
		"error":   code,
		"message": message,
	})
}

// remoteIP strips the port from the request's remote address.
func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

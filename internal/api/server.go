// Package api exposes the gateway's HTTP surface: session lifecycle, record
// access behind the pipeline, and noised metrics export.
//
// Authentication of credentials is out of scope. A fronting identity layer is
// expected to verify the caller and pass the resolved identity in the
// X-Principal, X-Role, X-Org-Unit, and X-Session headers.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/RaihaanIhsan/ZeroTrustHealthCare/internal/version"
	"github.com/RaihaanIhsan/ZeroTrustHealthCare/pkg/audit"
	"github.com/RaihaanIhsan/ZeroTrustHealthCare/pkg/authz"
	"github.com/RaihaanIhsan/ZeroTrustHealthCare/pkg/pipeline"
	"github.com/RaihaanIhsan/ZeroTrustHealthCare/pkg/session"
)

// AuthRecorder persists authentication outcomes durably. The sqlite store
// implements it; persistence failures are logged, never propagated.
type AuthRecorder interface {
	RecordAuthEvent(audit.AuthEvent) error
}

// Server is the HTTP API server.
type Server struct {
	sessions session.Store
	pipe     *pipeline.Pipeline
	emitter  audit.EventEmitter
	history  *audit.RingLog
	durable  AuthRecorder
	logger   *slog.Logger
	catalog  *Catalog
}

// Config holds the server's collaborators.
type Config struct {
	// Logger for request logging. If nil, uses slog.Default().
	Logger *slog.Logger

	// Sessions is the session store behind the lifecycle endpoints.
	Sessions session.Store

	// Pipeline gates record access and produces noised metrics.
	Pipeline *pipeline.Pipeline

	// History receives auth events from the session endpoints.
	History *audit.RingLog

	// Emitter receives session lifecycle audit events.
	Emitter audit.EventEmitter

	// Durable optionally persists auth events beyond process lifetime.
	Durable AuthRecorder

	// Catalog is the record registry backing the record endpoints. It must
	// be the same catalog the pipeline's resource lookup reads.
	Catalog *Catalog
}

// NewServer creates the API server.
func NewServer(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	emitter := cfg.Emitter
	if emitter == nil {
		emitter = audit.NopEmitter{}
	}
	return &Server{
		sessions: cfg.Sessions,
		pipe:     cfg.Pipeline,
		emitter:  emitter,
		history:  cfg.History,
		durable:  cfg.Durable,
		logger:   logger,
		catalog:  cfg.Catalog,
	}
}

// RegisterRoutes registers all API routes on the mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /api/v1/version", s.handleVersion)

	mux.HandleFunc("POST /api/v1/sessions", s.handleCreateSession)
	mux.HandleFunc("DELETE /api/v1/sessions/{id}", s.handleRevokeSession)
	mux.HandleFunc("DELETE /api/v1/principals/{id}/sessions", s.handleRevokeAllSessions)

	mux.HandleFunc("POST /api/v1/records", s.handleCreateRecord)

	gate := pipeline.NewMiddleware(s.pipe, HeaderIdentity, pipeline.WithLogger(s.logger))
	mux.Handle("GET /api/v1/records/{id}", gate.Wrap(http.HandlerFunc(s.handleGetRecord)))

	// Listings are not resource-scoped; the path value is a patient ID, not
	// a record. Session, hours, device, and trust checks still apply.
	listGate := pipeline.NewMiddleware(s.pipe, HeaderIdentity,
		pipeline.WithLogger(s.logger),
		pipeline.WithResourceIDExtractor(func(*http.Request) string { return "" }),
	)
	mux.Handle("GET /api/v1/patients/{id}/records",
		listGate.Wrap(http.HandlerFunc(s.handleListPatientRecords)))

	mux.HandleFunc("GET /api/v1/metrics", s.handleMetrics)
	mux.HandleFunc("GET /api/v1/privacy/budget", s.handleBudget)
	mux.HandleFunc("POST /api/v1/privacy/budget/reset", s.handleBudgetReset)
}

// HeaderIdentity resolves the caller identity from the headers the fronting
// authentication layer sets.
func HeaderIdentity(r *http.Request) (pipeline.RequestIdentity, bool) {
	principal := r.Header.Get("X-Principal")
	if principal == "" {
		return pipeline.RequestIdentity{}, false
	}
	return pipeline.RequestIdentity{
		PrincipalID: principal,
		Role:        authz.Role(r.Header.Get("X-Role")),
		OrgUnit:     r.Header.Get("X-Org-Unit"),
		SessionID:   r.Header.Get("X-Session"),
	}, true
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"version": version.String()})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	m, err := s.pipe.Metrics()
	if err != nil {
		if code := pipeline.ErrorCode(err); code == pipeline.ErrCodeBudgetExceeded {
			s.writeError(w, r, http.StatusTooManyRequests, "privacy budget exceeded")
			return
		}
		s.writeError(w, r, http.StatusInternalServerError, "failed to export metrics")
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// budgetResponse is the wire form of the privacy budget state.
type budgetResponse struct {
	Used     float64 `json:"used"`
	Ceiling  float64 `json:"ceiling"`
	Exceeded bool    `json:"exceeded"`
}

func (s *Server) handleBudget(w http.ResponseWriter, r *http.Request) {
	used, ceiling, ok := s.pipe.BudgetUsage()
	if !ok {
		s.writeError(w, r, http.StatusNotFound, "noise injection disabled")
		return
	}
	writeJSON(w, http.StatusOK, budgetResponse{
		Used:     used,
		Ceiling:  ceiling,
		Exceeded: used >= ceiling,
	})
}

func (s *Server) handleBudgetReset(w http.ResponseWriter, r *http.Request) {
	used, _, ok := s.pipe.BudgetUsage()
	if !ok {
		s.writeError(w, r, http.StatusNotFound, "noise injection disabled")
		return
	}
	s.pipe.ResetBudget()
	writeJSON(w, http.StatusOK, map[string]float64{"used_before": used})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, message string) {
	s.logger.Warn("request failed", "method", r.Method, "path", r.URL.Path, "error", message)
	writeJSON(w, status, map[string]string{"error": message})
}

package api

import (
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/RaihaanIhsan/ZeroTrustHealthCare/pkg/audit"
	"github.com/RaihaanIhsan/ZeroTrustHealthCare/pkg/policy"
)

// createSessionRequest is posted by the authentication layer after it has
// verified the caller's credentials.
type createSessionRequest struct {
	PrincipalID string `json:"principal_id"`
}

// sessionResponse is the wire form of a created session.
type sessionResponse struct {
	SessionID   string `json:"session_id"`
	PrincipalID string `json:"principal_id"`
	CreatedAt   string `json:"created_at"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if req.PrincipalID == "" {
		s.writeError(w, r, http.StatusBadRequest, "principal_id is required")
		return
	}

	ip := remoteIP(r)
	sess := s.sessions.Create(req.PrincipalID, policy.Fingerprint(ip, r.UserAgent()))

	ev := audit.AuthEvent{
		PrincipalID: req.PrincipalID,
		Success:     true,
		At:          sess.CreatedAt,
	}
	s.history.RecordAuthEvent(ev)
	if s.durable != nil {
		if err := s.durable.RecordAuthEvent(ev); err != nil {
			s.logger.Warn("durable auth record failed", "principal", req.PrincipalID, "error", err)
		}
	}
	s.emit(audit.Event{
		Type:        audit.EventSessionCreated,
		Severity:    audit.SeverityFor(audit.EventSessionCreated),
		Timestamp:   sess.CreatedAt,
		PrincipalID: req.PrincipalID,
		IP:          ip,
		Details:     map[string]string{"session_id": sess.ID},
	})

	writeJSON(w, http.StatusCreated, sessionResponse{
		SessionID:   sess.ID,
		PrincipalID: sess.PrincipalID,
		CreatedAt:   sess.CreatedAt.UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleRevokeSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	sess, ok := s.sessions.Get(id)
	if !ok {
		s.writeError(w, r, http.StatusNotFound, "session not found")
		return
	}
	s.sessions.Revoke(id)

	s.emit(audit.Event{
		Type:        audit.EventSessionRevoked,
		Severity:    audit.SeverityFor(audit.EventSessionRevoked),
		Timestamp:   time.Now(),
		PrincipalID: sess.PrincipalID,
		IP:          remoteIP(r),
		Details:     map[string]string{"session_id": id},
	})
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRevokeAllSessions(w http.ResponseWriter, r *http.Request) {
	principalID := r.PathValue("id")
	revoked := s.sessions.RevokeAll(principalID)

	if revoked > 0 {
		s.emit(audit.Event{
			Type:        audit.EventSessionRevoked,
			Severity:    audit.SeverityFor(audit.EventSessionRevoked),
			Timestamp:   time.Now(),
			PrincipalID: principalID,
			IP:          remoteIP(r),
			Details:     map[string]string{"revoked": strconv.Itoa(revoked)},
		})
	}
	writeJSON(w, http.StatusOK, map[string]int{"revoked": revoked})
}

// emit forwards an audit event, logging rather than propagating failures.
func (s *Server) emit(ev audit.Event) {
	if err := s.emitter.Emit(ev); err != nil {
		s.logger.Warn("audit emit failed", "event", ev.Type, "error", err)
	}
}

// remoteIP strips the port from the request's remote address.
func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
